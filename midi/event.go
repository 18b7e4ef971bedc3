package midi

import "sort"

// MIDI status nibbles
const (
	NoteOff         uint8 = 0x80
	NoteOn          uint8 = 0x90
	CC              uint8 = 0xB0
	ProgramChange   uint8 = 0xC0
	ChannelPressure uint8 = 0xD0
	PitchBendChange uint8 = 0xE0
	SysExStart      uint8 = 0xF0
	Meta            uint8 = 0xFF
)

// Meta event types
const (
	MetaTempo         uint8 = 0x51
	MetaTimeSignature uint8 = 0x58
	MetaEndOfTrack    uint8 = 0x2F
)

// Controllers that make up a registered parameter write
const (
	CCDataEntryMSB uint8 = 6
	CCDataEntryLSB uint8 = 38
	CCRPNLSB       uint8 = 100
	CCRPNMSB       uint8 = 101
)

// ClocksPerQuarter is the normalized clock every decoded event time is
// expressed in.
const ClocksPerQuarter = 24

// EventKind identifies a decoded event
type EventKind int

const (
	KindNoteOn EventKind = iota
	KindNoteOff
	KindControlChange
	KindPatchChange
	KindPitchBend
	KindTempoChange
	KindTimeSignature
	KindRegisteredParam
	KindSysEx
	KindMetadata
	KindTrackEnd
)

var kindNames = [...]string{
	"note_on", "note_off", "control_change", "patch_change", "pitch_bend",
	"tempo_change", "time_signature", "registered_param", "sysex", "metadata", "track_end",
}

func (k EventKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Event is one decoded track event. Only the fields relevant to Kind are set.
type Event struct {
	Kind    EventKind
	Time    float64 // absolute time (ticks while decoding, clocks after ReadFile)
	Channel uint8   // 1-16, zero for meta and sysex events

	Note     uint8
	Velocity uint8

	Controller uint8
	Value      int // controller value, or RPN value (c38 + 128*c6)
	Parameter  int // RPN number (c100 + 128*c101)

	Patch uint8
	Bend  int // -0x2000 .. 0x1FFF

	Tempo          int // beats per minute
	Numerator      uint8
	LogDenominator uint8

	Data []byte
}

// Track is the decoded, time-ordered event list of one MTrk chunk.
type Track []Event

// End returns the largest event time in the track.
func (t Track) End() float64 {
	var end float64
	for _, e := range t {
		if e.Time > end {
			end = e.Time
		}
	}
	return end
}

// TimeSignature returns the first time signature event of the track.
func (t Track) TimeSignature() (Event, bool) {
	for _, e := range t {
		if e.Kind == KindTimeSignature {
			return e, true
		}
	}
	return Event{}, false
}

// Merge combines tracks into one time-ordered track. Events with equal times
// keep their track order.
func Merge(trks []Track) Track {
	var out Track
	for _, t := range trks {
		out = append(out, t...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time < out[j].Time
	})
	return out
}
