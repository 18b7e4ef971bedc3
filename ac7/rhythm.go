package ac7

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
)

// Fixed rhythm geometry.
const (
	NumParts    = 8
	NumElements = 12
)

// Rhythm-wide defaults.
const (
	DefaultName          = "No Name"
	DefaultTimeSignature = "4/4"
	DefaultTempo         = 120
	DefaultVolume        = 127
	DefaultReverbType    = 23
	DefaultChorusType    = 2
	DefaultDelayType     = 4
)

// Document is the on-disk layout of a rhythm description.
type Document struct {
	Rhythm RhythmSpec `json:"rhythm" yaml:"rhythm"`
}

// RhythmSpec describes a rhythm: global settings, 8 parts, 12 elements and
// the MIDI tracks that fill them.
type RhythmSpec struct {
	Name          string        `json:"name,omitempty" yaml:"name,omitempty"`
	TimeSignature string        `json:"time_signature,omitempty" yaml:"time_signature,omitempty"`
	Tempo         *int          `json:"tempo,omitempty" yaml:"tempo,omitempty"`
	Volume        *int          `json:"volume,omitempty" yaml:"volume,omitempty"`
	ReverbType    *int          `json:"reverb_type,omitempty" yaml:"reverb_type,omitempty"`
	ChorusType    *int          `json:"chorus_type,omitempty" yaml:"chorus_type,omitempty"`
	DelayType     *int          `json:"delay_type,omitempty" yaml:"delay_type,omitempty"`
	Parts         []PartSpec    `json:"parts,omitempty" yaml:"parts,omitempty"`
	Elements      []ElementSpec `json:"elements,omitempty" yaml:"elements,omitempty"`
	Tracks        []TrackSpec   `json:"tracks,omitempty" yaml:"tracks,omitempty"`

	// BaseDir resolves relative source and tone file names.
	BaseDir string `json:"-" yaml:"-"`
}

// PartSpec holds the mixer settings of one part. Nil fields take defaults.
type PartSpec struct {
	Patch      *int   `json:"patch,omitempty" yaml:"patch,omitempty"`
	BankMSB    *int   `json:"bank_msb,omitempty" yaml:"bank_msb,omitempty"`
	Volume     *int   `json:"volume,omitempty" yaml:"volume,omitempty"`
	Pan        *int   `json:"pan,omitempty" yaml:"pan,omitempty"`
	ReverbSend *int   `json:"reverb_send,omitempty" yaml:"reverb_send,omitempty"`
	ChorusSend *int   `json:"chorus_send,omitempty" yaml:"chorus_send,omitempty"`
	DelaySend  *int   `json:"delay_send,omitempty" yaml:"delay_send,omitempty"`
	ToneFile   string `json:"tone_file,omitempty" yaml:"tone_file,omitempty"`
}

// ElementSpec holds per-element settings.
type ElementSpec struct {
	Omit       Flag  `json:"omit,omitempty" yaml:"omit,omitempty"`
	Override33 []int `json:"override_33,omitempty" yaml:"override_33,omitempty"`
	Override35 []int `json:"override_35,omitempty" yaml:"override_35,omitempty"`
}

// TrackSpec places (a channel of) a MIDI file in a part of an element.
type TrackSpec struct {
	Part            int    `json:"part" yaml:"part"`
	Element         int    `json:"element" yaml:"element"`
	SourceFile      string `json:"source_file" yaml:"source_file"`
	SourceChannel   int    `json:"source_channel,omitempty" yaml:"source_channel,omitempty"`
	ConversionTable string `json:"conversion_table,omitempty" yaml:"conversion_table,omitempty"`
	Inversion       string `json:"inversion,omitempty" yaml:"inversion,omitempty"`
	BreakPoint      *int   `json:"break_point,omitempty" yaml:"break_point,omitempty"`
	Retrigger       int    `json:"retrigger,omitempty" yaml:"retrigger,omitempty"`
	LowestNote      int    `json:"lowest_note,omitempty" yaml:"lowest_note,omitempty"`
	FRoot           int    `json:"f-root,omitempty" yaml:"f-root,omitempty"`
}

// Flag is a boolean that also accepts 0 and 1.
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	return f.parse(b)
}

func (f *Flag) UnmarshalYAML(b []byte) error {
	return f.parse(b)
}

func (f *Flag) parse(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"'`)
	switch strings.ToLower(s) {
	case "", "0", "false", "no", "null", "~":
		*f = false
	case "1", "true", "yes":
		*f = true
	default:
		return fmt.Errorf("invalid flag value %q", s)
	}
	return nil
}

// Part is a fully resolved part: every mixer field has a value.
type Part struct {
	Patch      uint8
	BankMSB    uint8
	Volume     uint8
	Pan        uint8 // 64 is centre
	ReverbSend uint8
	ChorusSend uint8
	DelaySend  uint8
	ToneFile   string
}

// Resolve fills the unset fields of a part (1-8) from the defaults.
func (p PartSpec) Resolve(part int) Part {
	inst := DefaultInstruments[part-1]
	if p.Patch != nil && p.BankMSB != nil && *p.Patch >= 0 && *p.BankMSB >= 0 {
		inst = Instrument{Patch: uint8(*p.Patch), BankMSB: uint8(*p.BankMSB)}
	}
	return Part{
		Patch:      inst.Patch,
		BankMSB:    inst.BankMSB,
		Volume:     uint8(intOr(p.Volume, 100)),
		Pan:        uint8(64 + intOr(p.Pan, 0)),
		ReverbSend: uint8(intOr(p.ReverbSend, 40)),
		ChorusSend: uint8(intOr(p.ChorusSend, 0)),
		DelaySend:  uint8(intOr(p.DelaySend, 0)),
		ToneFile:   p.ToneFile,
	}
}

// Part returns the resolved settings of part n (1-8).
func (r *RhythmSpec) Part(n int) Part {
	if len(r.Parts) == NumParts {
		return r.Parts[n-1].Resolve(n)
	}
	return PartSpec{}.Resolve(n)
}

// Element returns the settings of element n (1-12).
func (r *RhythmSpec) Element(n int) ElementSpec {
	if len(r.Elements) == NumElements {
		return r.Elements[n-1]
	}
	return ElementSpec{}
}

// TracksFor returns the tracks of one part in one element, in spec order.
func (r *RhythmSpec) TracksFor(part, element int) []TrackSpec {
	var out []TrackSpec
	for _, t := range r.Tracks {
		if t.Part == part && t.Element == element {
			out = append(out, t)
		}
	}
	return out
}

func (r *RhythmSpec) name() string {
	if r.Name == "" {
		return DefaultName
	}
	return r.Name
}

func (r *RhythmSpec) timeSignature() string {
	if r.TimeSignature == "" {
		return DefaultTimeSignature
	}
	return r.TimeSignature
}

// Validate checks the spec once, before anything is built.
func (r *RhythmSpec) Validate() error {
	if n := len(r.Parts); n != 0 && n != NumParts {
		return &CountMismatchError{What: "parts", Got: n, Want: NumParts}
	}
	if n := len(r.Elements); n != 0 && n != NumElements {
		return &CountMismatchError{What: "elements", Got: n, Want: NumElements}
	}
	if _, _, err := ParseTimeSignature(r.timeSignature()); err != nil {
		return err
	}

	checks := []rangeCheck{
		{"tempo", r.Tempo, 1, 255},
		{"volume", r.Volume, 0, 127},
		{"reverb_type", r.ReverbType, 0, 255},
		{"chorus_type", r.ChorusType, 0, 255},
		{"delay_type", r.DelayType, 0, 255},
	}
	for i, p := range r.Parts {
		pre := fmt.Sprintf("parts[%d].", i)
		checks = append(checks,
			rangeCheck{pre + "volume", p.Volume, 0, 127},
			rangeCheck{pre + "pan", p.Pan, -64, 63},
			rangeCheck{pre + "reverb_send", p.ReverbSend, 0, 127},
			rangeCheck{pre + "chorus_send", p.ChorusSend, 0, 127},
			rangeCheck{pre + "delay_send", p.DelaySend, 0, 127},
		)
		// negative patch or bank selects the default instrument
		if p.Patch != nil && *p.Patch > 127 {
			return &ValidationError{Field: pre + "patch", Msg: "must be at most 127"}
		}
		if p.BankMSB != nil && *p.BankMSB > 127 {
			return &ValidationError{Field: pre + "bank_msb", Msg: "must be at most 127"}
		}
	}
	for _, c := range checks {
		if c.v != nil && (*c.v < c.min || *c.v > c.max) {
			return &ValidationError{Field: c.field, Msg: fmt.Sprintf("%d out of range %d..%d", *c.v, c.min, c.max)}
		}
	}

	for i, e := range r.Elements {
		if err := checkBytes(fmt.Sprintf("elements[%d].override_33", i), e.Override33, 7); err != nil {
			return err
		}
		if err := checkBytes(fmt.Sprintf("elements[%d].override_35", i), e.Override35, 6); err != nil {
			return err
		}
	}

	for i, t := range r.Tracks {
		if err := t.validate(fmt.Sprintf("tracks[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

func (t TrackSpec) validate(pre string) error {
	switch {
	case t.Part < 1 || t.Part > NumParts:
		return &ValidationError{Field: pre + ".part", Msg: fmt.Sprintf("%d out of range 1..%d", t.Part, NumParts)}
	case t.Element < 1 || t.Element > NumElements:
		return &ValidationError{Field: pre + ".element", Msg: fmt.Sprintf("%d out of range 1..%d", t.Element, NumElements)}
	case t.SourceFile == "":
		return &ValidationError{Field: pre + ".source_file", Msg: "missing"}
	case t.SourceChannel < 0 || t.SourceChannel > 16:
		return &ValidationError{Field: pre + ".source_channel", Msg: fmt.Sprintf("%d out of range 0..16", t.SourceChannel)}
	case t.BreakPoint != nil && (*t.BreakPoint < 0 || *t.BreakPoint > 12):
		return &ValidationError{Field: pre + ".break_point", Msg: fmt.Sprintf("%d out of range 0..12", *t.BreakPoint)}
	case t.LowestNote < 0 || t.LowestNote > 127:
		return &ValidationError{Field: pre + ".lowest_note", Msg: fmt.Sprintf("%d out of range 0..127", t.LowestNote)}
	case t.FRoot < 0 || t.FRoot > 1:
		return &ValidationError{Field: pre + ".f-root", Msg: "must be 0 or 1"}
	}
	if t.ConversionTable != "" {
		if _, ok := ConversionIndex(t.ConversionTable); !ok {
			return &ValidationError{Field: pre + ".conversion_table", Msg: fmt.Sprintf("unknown table %q", t.ConversionTable)}
		}
	}
	if t.Inversion != "" {
		if _, ok := InversionIndex(t.Inversion); !ok {
			return &ValidationError{Field: pre + ".inversion", Msg: fmt.Sprintf("unknown inversion %q", t.Inversion)}
		}
	}
	return nil
}

type rangeCheck struct {
	field    string
	v        *int
	min, max int
}

func checkBytes(field string, v []int, n int) error {
	if v == nil {
		return nil
	}
	if len(v) != n {
		return &ValidationError{Field: field, Msg: fmt.Sprintf("need %d bytes, got %d", n, len(v))}
	}
	for _, x := range v {
		if x < 0 || x > 255 {
			return &ValidationError{Field: field, Msg: fmt.Sprintf("%d is not a byte", x)}
		}
	}
	return nil
}

// ParseTimeSignature parses "n/d" and returns the numerator and denominator.
func ParseTimeSignature(s string) (int, int, error) {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return 0, 0, &ValidationError{Field: "time_signature", Msg: fmt.Sprintf("%q is not n/d", s)}
	}
	n, err1 := strconv.Atoi(strings.TrimSpace(num))
	d, err2 := strconv.Atoi(strings.TrimSpace(den))
	if err1 != nil || err2 != nil {
		return 0, 0, &ValidationError{Field: "time_signature", Msg: fmt.Sprintf("%q is not n/d", s)}
	}
	if _, err := timeSignatureByte(n, d); err != nil {
		return 0, 0, err
	}
	return n, d, nil
}

// timeSignatureByte packs a signature as numerator<<3 | log2(denominator).
// Allowed are 2/4..8/4 and 2/8..16/8.
func timeSignatureByte(num, den int) (uint8, error) {
	bad := &InvalidTimeSignatureError{Numerator: num, Denominator: den}
	if num < 2 || num > 16 {
		return 0, bad
	}
	switch den {
	case 4:
		if num > 8 {
			return 0, bad
		}
		return uint8(num<<3 | 2), nil
	case 8:
		return uint8(num<<3 | 3), nil
	}
	return 0, bad
}

// Parse decodes a rhythm document. format is "json" or "yaml".
func Parse(data []byte, format string) (*RhythmSpec, error) {
	var doc Document
	switch format {
	case "json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse rhythm JSON: %w", err)
		}
	case "yaml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse rhythm YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown rhythm format %q", format)
	}
	if err := doc.Rhythm.Validate(); err != nil {
		return nil, err
	}
	return &doc.Rhythm, nil
}

// Load reads a rhythm description from a .json, .yaml or .yml file.
// Relative source files are resolved against the file's directory.
func Load(path string) (*RhythmSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rhythm: %w", err)
	}
	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	spec, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	spec.BaseDir = filepath.Dir(path)
	return spec, nil
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
