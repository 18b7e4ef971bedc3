package midi

import (
	"errors"
	"testing"
)

func TestDecodeTrackRunningStatus(t *testing.T) {
	b := []byte{
		0x00, 0x90, 0x3C, 0x64, // note on
		0x18, 0x3C, 0x00, // running status, velocity 0
		0x81, 0x40, 0x80, 0x3C, 0x40, // note off after 192 ticks
		0x00, 0xFF, 0x2F, 0x00,
	}
	trk, err := DecodeTrack(b)
	if err != nil {
		t.Fatalf("DecodeTrack: %v", err)
	}
	want := []Event{
		{Kind: KindNoteOn, Time: 0, Channel: 1, Note: 60, Velocity: 100},
		{Kind: KindNoteOn, Time: 24, Channel: 1, Note: 60, Velocity: 0},
		{Kind: KindNoteOff, Time: 216, Channel: 1, Note: 60, Velocity: 64},
		{Kind: KindTrackEnd, Time: 216},
	}
	if len(trk) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(trk), len(want), trk)
	}
	for i := range want {
		g, w := trk[i], want[i]
		if g.Kind != w.Kind || g.Time != w.Time || g.Channel != w.Channel || g.Note != w.Note || g.Velocity != w.Velocity {
			t.Errorf("event %d = %+v, want %+v", i, g, w)
		}
	}
}

func TestDecodeTrackRegisteredParam(t *testing.T) {
	b := []byte{
		0x00, 0xB2, 0x65, 0x00, // RPN MSB
		0x00, 0x64, 0x00, // RPN LSB (running status)
		0x00, 0x07, 0x64, // ordinary controller passes through
		0x00, 0x06, 0x02, // data entry MSB
		0x00, 0x26, 0x05, // data entry LSB completes the write
		0x00, 0x06, 0x0C, // a lone data entry does not emit anything
	}
	trk, err := DecodeTrack(b)
	if err != nil {
		t.Fatalf("DecodeTrack: %v", err)
	}
	if len(trk) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(trk), trk)
	}
	cc := trk[0]
	if cc.Kind != KindControlChange || cc.Channel != 3 || cc.Controller != 7 || cc.Value != 100 {
		t.Errorf("control change = %+v", cc)
	}
	rpn := trk[1]
	if rpn.Kind != KindRegisteredParam || rpn.Channel != 3 || rpn.Parameter != 0 || rpn.Value != 5+128*2 {
		t.Errorf("registered param = %+v", rpn)
	}
}

func TestDecodeTrackRegisteredParamPerChannel(t *testing.T) {
	b := []byte{
		0x00, 0xB0, 0x65, 0x00,
		0x00, 0xB1, 0x64, 0x01, // other channel, must not combine with channel 1
		0x00, 0xB0, 0x64, 0x00,
		0x00, 0xB0, 0x06, 0x0C,
		0x00, 0xB0, 0x26, 0x00,
	}
	trk, err := DecodeTrack(b)
	if err != nil {
		t.Fatalf("DecodeTrack: %v", err)
	}
	if len(trk) != 1 || trk[0].Channel != 1 || trk[0].Value != 12*128 {
		t.Fatalf("got %+v, want one channel 1 RPN with value %d", trk, 12*128)
	}
}

func TestDecodeTrackMeta(t *testing.T) {
	b := []byte{
		0x00, 0xFF, 0x51, 0x03, 0x07, 0xA1, 0x20, // 500000 us
		0x00, 0xFF, 0x58, 0x04, 0x06, 0x03, 0x18, 0x08, // 6/8
		0x00, 0xFF, 0x03, 0x02, 'h', 'i', // track name
		0x00, 0xF0, 0x03, 0x7E, 0x7F, 0xF7, // sysex
		0x00, 0xD0, 0x40, // channel pressure is dropped
		0x00, 0xE0, 0x7F, 0x7F,
		0x00, 0xFF, 0x2F, 0x00,
	}
	trk, err := DecodeTrack(b)
	if err != nil {
		t.Fatalf("DecodeTrack: %v", err)
	}
	kinds := []EventKind{KindTempoChange, KindTimeSignature, KindMetadata, KindSysEx, KindPitchBend, KindTrackEnd}
	if len(trk) != len(kinds) {
		t.Fatalf("got %d events, want %d: %+v", len(trk), len(kinds), trk)
	}
	for i, k := range kinds {
		if trk[i].Kind != k {
			t.Errorf("event %d kind = %v, want %v", i, trk[i].Kind, k)
		}
	}
	if trk[0].Tempo != 120 {
		t.Errorf("tempo = %d, want 120", trk[0].Tempo)
	}
	if trk[1].Numerator != 6 || trk[1].LogDenominator != 3 {
		t.Errorf("time signature = %d/%d, want 6/3", trk[1].Numerator, trk[1].LogDenominator)
	}
	if len(trk[3].Data) != 0 {
		t.Errorf("sysex data = % X, want empty", trk[3].Data)
	}
	if trk[4].Bend != 0x1FFF {
		t.Errorf("bend = %d, want %d", trk[4].Bend, 0x1FFF)
	}
}

func TestDecodeTrackErrors(t *testing.T) {
	tests := []struct {
		name   string
		in     []byte
		status uint8 // zero means a FormatError is expected
	}{
		{"poly pressure", []byte{0x00, 0xA0, 0x3C, 0x40}, 0xA0},
		{"no running status", []byte{0x00, 0x3C, 0x40}, 0x3C},
		{"running status cleared by meta", []byte{0x00, 0x90, 0x3C, 0x40, 0x00, 0xFF, 0x2F, 0x00, 0x00, 0x3C, 0x00}, 0x3C},
		{"system common", []byte{0x00, 0xF2, 0x00, 0x00}, 0xF2},
		{"truncated note", []byte{0x00, 0x90, 0x3C}, 0},
		{"truncated delta", []byte{0x81}, 0},
		{"truncated meta", []byte{0x00, 0xFF, 0x51, 0x03, 0x07}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTrack(tt.in)
			if tt.status == 0 {
				var fe *FormatError
				if !errors.As(err, &fe) {
					t.Fatalf("error = %v, want FormatError", err)
				}
				return
			}
			var ue *UnknownEventError
			if !errors.As(err, &ue) {
				t.Fatalf("error = %v, want UnknownEventError", err)
			}
			if ue.Status != tt.status {
				t.Errorf("status = %02X, want %02X", ue.Status, tt.status)
			}
		})
	}
}

func TestReadVarLen(t *testing.T) {
	tests := []struct {
		in   []byte
		want int
		next int
	}{
		{[]byte{0x00}, 0, 1},
		{[]byte{0x7F}, 127, 1},
		{[]byte{0x81, 0x00}, 128, 2},
		{[]byte{0xFF, 0x7F}, 16383, 2},
		{[]byte{0x81, 0x80, 0x00}, 16384, 3},
	}
	for _, tt := range tests {
		got, next, err := readVarLen(tt.in, 0)
		if err != nil {
			t.Fatalf("readVarLen(% X): %v", tt.in, err)
		}
		if got != tt.want || next != tt.next {
			t.Errorf("readVarLen(% X) = %d, %d; want %d, %d", tt.in, got, next, tt.want, tt.next)
		}
	}
}

func TestMerge(t *testing.T) {
	a := Track{{Kind: KindNoteOn, Time: 0, Note: 1}, {Kind: KindNoteOn, Time: 48, Note: 3}}
	b := Track{{Kind: KindNoteOn, Time: 0, Note: 2}, {Kind: KindNoteOn, Time: 24, Note: 4}}
	got := Merge([]Track{a, b})
	want := []uint8{1, 2, 4, 3}
	for i, n := range want {
		if got[i].Note != n {
			t.Fatalf("merged notes = %+v, want order %v", got, want)
		}
	}
}
