package widgets

import (
	"regexp"
	"strings"
	"testing"

	"go-ac7/ac7"
	"go-ac7/theme"
)

var ansiCodes = regexp.MustCompile("\x1b\\[[0-9;]*m")

func plain(s string) string {
	return ansiCodes.ReplaceAllString(s, "")
}

func layout() *ac7.Layout {
	l := &ac7.Layout{Elements: make([]ac7.Element, 2)}
	for part := 1; part <= ac7.NumParts; part++ {
		l.Elements[0].Tracks = append(l.Elements[0].Tracks, ac7.TrackRef{Part: part, Idle: true})
		l.Elements[1].Tracks = append(l.Elements[1].Tracks, ac7.TrackRef{Part: part, Idle: part != 1 && part != 3})
		if part == 1 {
			l.Elements[1].Tracks = append(l.Elements[1].Tracks, ac7.TrackRef{Part: 1})
		}
	}
	return l
}

func TestRenderSlotGrid(t *testing.T) {
	out := plain(RenderSlotGrid(theme.Default(), layout()))
	lines := strings.Split(out, "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), out)
	}
	if want := "      Drm Prc Bas Cd1 Cd2 Cd3 Cd4 Cd5"; lines[0] != want {
		t.Errorf("header = %q, want %q", lines[0], want)
	}
	if want := "   1* ·   ·   ·   ·   ·   ·   ·   ·"; lines[1] != want {
		t.Errorf("row 1 = %q, want %q", lines[1], want)
	}
	if want := "   2  ■◆  □   ■   □   □   □   □   □"; lines[2] != want {
		t.Errorf("row 2 = %q, want %q", lines[2], want)
	}
}

func TestRenderLegend(t *testing.T) {
	out := plain(RenderLegend(theme.Default()))
	for _, want := range []string{"■ busy", "□ idle", "◆ extra", "· empty", "intro or ending"} {
		if !strings.Contains(out, want) {
			t.Errorf("legend missing %q:\n%s", want, out)
		}
	}
}

func TestRenderKeyHelp(t *testing.T) {
	out := RenderKeyHelp([]KeySection{{Title: "Transfer", Keys: []KeyBinding{{"q", "cancel"}}}})
	if out != "Transfer\n  q            cancel" {
		t.Errorf("got %q", out)
	}
}
