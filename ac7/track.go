package ac7

import (
	"math"

	"go-ac7/midi"
)

// IdleTrack is the encoding of an empty track: skip to the end, then stop.
var IdleTrack = []byte{0x80, 0xFF, 0x04, 0x00, 0xFC, 0x00}

// Track record codes. Codes below 0x80 are note numbers.
const (
	CodeVolume     uint8 = 0x83
	CodeModulation uint8 = 0x84
	CodePan        uint8 = 0x85
	CodeExpression uint8 = 0x86
	CodeSustain    uint8 = 0x87
	CodeReverb     uint8 = 0x88
	CodeChorus     uint8 = 0x89
	CodePitchBend  uint8 = 0x8A
	CodeBendRange  uint8 = 0x8D
	CodeEnd        uint8 = 0xFC
	CodeTimeJump   uint8 = 0xFF
)

// TicksPerClock converts the 24-per-quarter MIDI clock to the 96-per-quarter
// AC7 clock.
const TicksPerClock = 4

var controllerCodes = map[uint8]uint8{
	1:  CodeModulation,
	7:  CodeVolume,
	10: CodePan,
	11: CodeExpression,
	64: CodeSustain,
	91: CodeReverb,
	93: CodeChorus,
}

// EncodeTrack converts time-ordered events (24 clocks per quarter) into AC7
// track records ending at end. channel 0 takes every channel. A nil event
// list gives IdleTrack.
func EncodeTrack(events []midi.Event, channel int, end float64) []byte {
	if events == nil {
		return append([]byte(nil), IdleTrack...)
	}
	var out []byte
	latest := 0
	emit := func(t float64, code, param uint8) {
		// Round absolute times, not deltas, so sub-clock positions (192 PPQ
		// and finer) never accumulate drift and the end lands on round(4*end).
		now := int(math.Round(TicksPerClock * t))
		d := now - latest
		if d < 0 {
			d = 0
		} else {
			latest = now
		}
		for d > 0xFFFF {
			out = append(out, 0xFF, CodeTimeJump, 0xFF)
			d -= 0xFFFF
		}
		if d > 0xFF {
			out = append(out, uint8(d%256), CodeTimeJump, uint8(d/256))
			d = 0
		}
		out = append(out, uint8(d), code, param)
	}

	for _, e := range events {
		if channel != 0 && int(e.Channel) != channel {
			continue
		}
		code, param, ok := record(e)
		if !ok {
			continue
		}
		emit(e.Time, code, param)
	}
	emit(end, CodeEnd, 0)
	return out
}

// record maps one event to its AC7 code and parameter byte.
func record(e midi.Event) (uint8, uint8, bool) {
	switch e.Kind {
	case midi.KindNoteOn:
		v := e.Velocity
		if v == 0 {
			// 0 means note off in a track record
			v = 1
		}
		return e.Note & 0x7F, v, true
	case midi.KindNoteOff:
		return e.Note & 0x7F, 0, true
	case midi.KindControlChange:
		code, ok := controllerCodes[e.Controller]
		return code, uint8(e.Value & 0x7F), ok
	case midi.KindPitchBend:
		return CodePitchBend, uint8((e.Bend+0x2000)>>7&0x7F), true
	case midi.KindRegisteredParam:
		if e.Parameter != 0 {
			return 0, 0, false
		}
		return CodeBendRange, uint8(e.Value>>7&0x7F), true
	}
	return 0, 0, false
}

// Starter returns the three bytes that open every non-drum track: chord
// conversion, break point/inversion/retrigger, lowest note/f-root.
func Starter(t TrackSpec) [3]byte {
	conv, ok := ConversionIndex(t.ConversionTable)
	if !ok {
		conv = defaultConversion(t.Part, t.Element)
	}
	bp := defaultBreakPoint(t.Part)
	if t.BreakPoint != nil {
		bp = *t.BreakPoint
	}
	inv, _ := InversionIndex(t.Inversion)
	return [3]byte{
		uint8(conv),
		uint8(bp<<4 | inv<<1 | t.Retrigger&1),
		uint8(t.LowestNote&0x7F | (t.FRoot&1)<<7),
	}
}

// trackFlag is the atom 0x22 byte of a part. Only part 1 carries 0x0F;
// percussion counts from 0 with the melodic parts.
func trackFlag(part int) uint8 {
	if part <= 1 {
		return 0x0F
	}
	return uint8(part - 2)
}
