package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"go-ac7/ac7"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runConfig(t, filepath.Join(t.TempDir(), "config.json"), args...)
}

func runConfig(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func writeDrums(t *testing.T, path string) {
	t.Helper()
	var conductor smf.Track
	conductor.Add(0, []byte{0xFF, 0x58, 0x04, 0x04, 0x02, 0x18, 0x08})
	conductor.Close(0)
	var notes smf.Track
	notes.Add(0, gomidi.NoteOn(9, 36, 100))
	notes.Add(48, gomidi.NoteOff(9, 36))
	notes.Close(336)

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(96)
	s.Add(conductor)
	s.Add(notes)
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestBuildAndInspect(t *testing.T) {
	dir := t.TempDir()
	writeDrums(t, filepath.Join(dir, "drums.mid"))
	spec := `rhythm:
  name: Shuffle
  tempo: 96
  tracks:
    - part: 1
      element: 2
      source_file: drums.mid
      source_channel: 10
`
	specPath := filepath.Join(dir, "rhythm.yaml")
	os.WriteFile(specPath, []byte(spec), 0644)
	outPath := filepath.Join(dir, "out.ac7")

	if _, err := run(t, "build", specPath, outPath); err != nil {
		t.Fatalf("build: %v", err)
	}
	doc, err := os.ReadFile(outPath)
	if err != nil || string(doc[:4]) != "AC07" {
		t.Fatalf("output = %q, %v", doc[:min(len(doc), 4)], err)
	}

	out, err := run(t, "inspect", outPath, "--format", "json")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	var report struct {
		Summary struct {
			Name  string `json:"name"`
			Tempo int    `json:"tempo"`
		} `json:"summary"`
		Layout struct {
			Length   int               `json:"length"`
			Elements []json.RawMessage `json:"elements"`
		} `json:"layout"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if report.Summary.Name != "Shuffle" || report.Summary.Tempo != 96 {
		t.Errorf("summary = %+v", report.Summary)
	}
	if report.Layout.Length != len(doc) || len(report.Layout.Elements) != 12 {
		t.Errorf("layout length %d, %d elements", report.Layout.Length, len(report.Layout.Elements))
	}

	out, err = run(t, "inspect", outPath, "--format", "yaml")
	if err != nil || !strings.Contains(out, "name: Shuffle") {
		t.Errorf("yaml inspect = %q, %v", out, err)
	}

	out, err = run(t, "inspect", outPath, "--format", "text")
	if err != nil || !strings.Contains(out, "Shuffle  4/4  96bpm") || !strings.Contains(out, "Drm Prc Bas") {
		t.Errorf("text inspect = %q, %v", out, err)
	}

	if _, err := run(t, "inspect", outPath, "--format", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestConfiguredPalette(t *testing.T) {
	dir := t.TempDir()
	gpl := filepath.Join(dir, "mono.gpl")
	os.WriteFile(gpl, []byte("GIMP Palette\nName: Mono\n0 0 0\n255 255 255\n"), 0644)
	cfgPath := filepath.Join(dir, "config.json")
	os.WriteFile(cfgPath, []byte(`{"theme": {"palette": "`+gpl+`"}}`), 0644)

	if _, err := runConfig(t, cfgPath, "registration", filepath.Join(dir, "bank.rbk")); err != nil {
		t.Fatalf("registration: %v", err)
	}
	if cfg.Theme.Palette != gpl {
		t.Fatalf("palette = %q", cfg.Theme.Palette)
	}
	if name := loadTheme().Palette.Name; name != "Mono" {
		t.Errorf("theme palette = %q, want Mono", name)
	}

	cfg.Theme.Palette = filepath.Join(dir, "missing.gpl")
	if name := loadTheme().Palette.Name; name != "plasma" {
		t.Errorf("fallback palette = %q, want plasma", name)
	}
}

func TestInspectRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.ac7")
	os.WriteFile(path, []byte("not an ac7 file at all, just text"), 0644)
	if _, err := run(t, "inspect", path, "--format", "text"); err == nil {
		t.Error("expected error")
	}
}

func TestRegistrationCommand(t *testing.T) {
	out := filepath.Join(t.TempDir(), "bank.rbk")
	if _, err := run(t, "registration", out, "--volumes", "127,80,80,80", "--bank-size", "4"); err != nil {
		t.Fatalf("registration: %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(b, []byte("CT-X700")) || !bytes.Contains(b, []byte("RBKH")) {
		t.Errorf("bank header = %q", b[:20])
	}
	if n := bytes.Count(b, []byte("REGH")); n != 4 {
		t.Errorf("%d registrations, want 4", n)
	}
}

func TestParseVolumes(t *testing.T) {
	got, err := parseVolumes("127, 80,0")
	if err != nil || !bytes.Equal(got, []byte{127, 80, 0}) {
		t.Errorf("got %v, %v", got, err)
	}
	for _, bad := range []string{"128", "a,1", ""} {
		if _, err := parseVolumes(bad); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func TestCheckUpload(t *testing.T) {
	doc, err := ac7.NewBuilder(nil).Build(&ac7.RhythmSpec{Name: "Plain"})
	if err != nil {
		t.Fatal(err)
	}
	odd := bytes.Clone(doc)
	i := bytes.Index(odd, []byte("ELMT"))
	copy(odd[i:], "elmt")

	tests := []struct {
		name    string
		data    []byte
		force   bool
		wantErr bool
		warn    bool
	}{
		{"valid", doc, false, false, false},
		{"unframed refused", odd, false, true, false},
		{"unframed forced", odd, true, false, true},
		{"not ac7 forced", []byte("MThd\x00\x00\x00\x06"), true, true, false},
		{"short forced", []byte("AC"), true, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w bytes.Buffer
			err := checkUpload(&w, "x.ac7", tt.data, tt.force)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got := strings.Contains(w.String(), "warning: x.ac7"); got != tt.warn {
				t.Errorf("warning = %q", w.String())
			}
			if err != nil && !tt.force && !strings.Contains(err.Error(), "--force") {
				t.Errorf("error has no --force hint: %v", err)
			}
		})
	}
}

func TestSlotAndParamArgs(t *testing.T) {
	a, err := slotArg("300")
	if err != nil || a.ParameterSet != 6 || a.Category != 30 {
		t.Errorf("slot 300 = %+v, %v", a, err)
	}
	if _, err := slotArg("12"); err == nil {
		t.Error("slot 12 accepted")
	}
	p, err := paramArgs([]string{"3", "3", "0", "43"})
	if err != nil || p.Category != 3 || p.Memory != 3 || p.Parameter != 43 {
		t.Errorf("param = %+v, %v", p, err)
	}
	if _, err := paramArgs([]string{"3", "x", "0", "43"}); err == nil {
		t.Error("bad param accepted")
	}
}
