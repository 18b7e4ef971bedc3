package midi

import (
	"fmt"
	"math"
)

// FormatError reports a structurally invalid MIDI file or track.
type FormatError struct {
	Pos int
	Msg string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("midi: format error at byte %d: %s", e.Pos, e.Msg)
}

// UnknownEventError reports a status byte the decoder does not understand.
type UnknownEventError struct {
	Status uint8
	Pos    int
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("midi: unknown event %02X at byte %d", e.Status, e.Pos)
}

// rpnRegs holds the running controller values that together form a
// registered parameter write. -1 means not yet seen.
type rpnRegs struct {
	c100, c101, c6, c38 int
}

func (r *rpnRegs) reset() {
	*r = rpnRegs{-1, -1, -1, -1}
}

func (r *rpnRegs) complete() bool {
	return r.c100 >= 0 && r.c101 >= 0 && r.c6 >= 0 && r.c38 >= 0
}

// DecoderState carries running status and per-channel RPN registers across
// the events of a single track.
type DecoderState struct {
	runningStatus uint8
	rpn           [16]rpnRegs
}

// NewDecoderState returns a state ready for the first event of a track.
func NewDecoderState() *DecoderState {
	s := &DecoderState{}
	for i := range s.rpn {
		s.rpn[i].reset()
	}
	return s
}

// DecodeTrack decodes the body of one MTrk chunk. Event times are absolute
// and expressed in the file's own ticks.
func DecodeTrack(b []byte) (Track, error) {
	s := NewDecoderState()
	var trk Track
	var total int
	pos := 0
	for pos < len(b) {
		delta, next, err := readVarLen(b, pos)
		if err != nil {
			return nil, err
		}
		ev, next, err := s.Step(b, next)
		if err != nil {
			return nil, err
		}
		pos = next
		total += delta
		if ev != nil {
			ev.Time = float64(total)
			trk = append(trk, *ev)
		}
	}
	return trk, nil
}

// Step decodes the event starting at pos and returns the position of the
// next delta time. A nil event with no error means the bytes were consumed
// without producing anything (partial RPN writes, channel pressure).
func (s *DecoderState) Step(b []byte, pos int) (*Event, int, error) {
	if pos >= len(b) {
		return nil, pos, &FormatError{Pos: pos, Msg: "missing event after delta time"}
	}
	status := b[pos]
	p := pos
	switch {
	case status >= 0xF0:
		s.runningStatus = 0
		p++
	case status < 0x80:
		if s.runningStatus < 0x80 {
			return nil, pos, &UnknownEventError{Status: status, Pos: pos}
		}
		status = s.runningStatus
	default:
		s.runningStatus = status
		p++
	}

	switch status {
	case Meta:
		return s.meta(b, p)
	case SysExStart:
		n, q, err := readVarLen(b, p)
		if err != nil {
			return nil, pos, err
		}
		if q+n > len(b) {
			return nil, pos, &FormatError{Pos: q, Msg: "sysex runs past end of track"}
		}
		return &Event{Kind: KindSysEx, Data: []byte{}}, q + n, nil
	}

	ch := status & 0x0F
	need := func(n int) error {
		if p+n > len(b) {
			return &FormatError{Pos: p, Msg: fmt.Sprintf("event %02X truncated", status)}
		}
		return nil
	}

	switch status & 0xF0 {
	case CC:
		if err := need(2); err != nil {
			return nil, pos, err
		}
		return s.controller(ch, b[p], b[p+1]), p + 2, nil
	case ProgramChange:
		if err := need(1); err != nil {
			return nil, pos, err
		}
		return &Event{Kind: KindPatchChange, Channel: ch + 1, Patch: b[p]}, p + 1, nil
	case NoteOff:
		if err := need(2); err != nil {
			return nil, pos, err
		}
		return &Event{Kind: KindNoteOff, Channel: ch + 1, Note: b[p], Velocity: b[p+1]}, p + 2, nil
	case NoteOn:
		if err := need(2); err != nil {
			return nil, pos, err
		}
		return &Event{Kind: KindNoteOn, Channel: ch + 1, Note: b[p], Velocity: b[p+1]}, p + 2, nil
	case PitchBendChange:
		if err := need(2); err != nil {
			return nil, pos, err
		}
		bend := int(b[p]&0x7F) + 128*int(b[p+1]&0x7F) - 0x2000
		return &Event{Kind: KindPitchBend, Channel: ch + 1, Bend: bend}, p + 2, nil
	case ChannelPressure:
		// recognised but not carried into the AC7 track
		if err := need(1); err != nil {
			return nil, pos, err
		}
		return nil, p + 1, nil
	}
	return nil, pos, &UnknownEventError{Status: status, Pos: pos}
}

func (s *DecoderState) controller(ch, num, val uint8) *Event {
	r := &s.rpn[ch]
	switch num {
	case CCRPNLSB:
		r.c100 = int(val)
	case CCRPNMSB:
		r.c101 = int(val)
	case CCDataEntryMSB:
		r.c6 = int(val)
	case CCDataEntryLSB:
		r.c38 = int(val)
	default:
		return &Event{Kind: KindControlChange, Channel: ch + 1, Controller: num, Value: int(val)}
	}
	if !r.complete() {
		return nil
	}
	ev := &Event{
		Kind:      KindRegisteredParam,
		Channel:   ch + 1,
		Parameter: r.c100 + 128*r.c101,
		Value:     r.c38 + 128*r.c6,
	}
	r.reset()
	return ev
}

func (s *DecoderState) meta(b []byte, p int) (*Event, int, error) {
	if p >= len(b) {
		return nil, p, &FormatError{Pos: p, Msg: "meta event truncated"}
	}
	typ := b[p]
	n, q, err := readVarLen(b, p+1)
	if err != nil {
		return nil, p, err
	}
	if q+n > len(b) {
		return nil, p, &FormatError{Pos: q, Msg: fmt.Sprintf("meta event %02X runs past end of track", typ)}
	}
	data := b[q : q+n]
	next := q + n

	switch {
	case typ == MetaTempo && n == 3:
		us := int(data[0])<<16 | int(data[1])<<8 | int(data[2])
		if us == 0 {
			break
		}
		return &Event{Kind: KindTempoChange, Tempo: int(math.Round(60000000.0 / float64(us)))}, next, nil
	case typ == MetaTimeSignature && n == 4:
		return &Event{Kind: KindTimeSignature, Numerator: data[0], LogDenominator: data[1]}, next, nil
	case typ == MetaEndOfTrack && n == 0:
		return &Event{Kind: KindTrackEnd}, next, nil
	}
	return &Event{Kind: KindMetadata, Data: []byte{}}, next, nil
}

// readVarLen reads a MIDI variable-length quantity.
func readVarLen(b []byte, pos int) (int, int, error) {
	v := 0
	for p := pos; p < len(b); p++ {
		x := b[p]
		v = v<<7 | int(x&0x7F)
		if x&0x80 == 0 {
			return v, p + 1, nil
		}
		if p-pos >= 3 {
			return 0, pos, &FormatError{Pos: pos, Msg: "variable-length quantity longer than 4 bytes"}
		}
	}
	return 0, pos, &FormatError{Pos: pos, Msg: "variable-length quantity runs past end of data"}
}
