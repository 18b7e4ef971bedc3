package midi

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"go-ac7/debug"
)

// Header is the content of the MThd chunk.
type Header struct {
	Format   uint16
	Tracks   uint16
	Division uint16 // ticks per quarter note
}

// ReadFile parses a standard MIDI file and returns one track per MTrk
// chunk, in file order, with event times rescaled to ClocksPerQuarter.
func ReadFile(b []byte) ([]Track, error) {
	_, trks, err := parse(b)
	return trks, err
}

// ReadFrom reads and parses a standard MIDI file from r.
func ReadFrom(r io.Reader) ([]Track, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read midi: %w", err)
	}
	return ReadFile(b)
}

// Load reads and parses the MIDI file at path.
func Load(path string) ([]Track, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trks, err := ReadFile(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return trks, nil
}

func parse(b []byte) (Header, []Track, error) {
	var h Header
	if err := expectTag(b, 0, "MThd"); err != nil {
		return h, nil, err
	}
	if len(b) < 14 {
		return h, nil, &FormatError{Pos: 0, Msg: "header chunk truncated"}
	}
	hlen := int(binary.BigEndian.Uint32(b[4:8]))
	h.Format = binary.BigEndian.Uint16(b[8:10])
	h.Tracks = binary.BigEndian.Uint16(b[10:12])
	h.Division = binary.BigEndian.Uint16(b[12:14])
	if h.Division == 0 {
		return h, nil, &FormatError{Pos: 12, Msg: "zero time division"}
	}
	if h.Division&0x8000 != 0 {
		return h, nil, &FormatError{Pos: 12, Msg: "SMPTE time division not supported"}
	}
	scale := float64(ClocksPerQuarter) / float64(h.Division)

	pos := 8 + hlen
	trks := make([]Track, 0, h.Tracks)
	for i := 0; i < int(h.Tracks); i++ {
		if err := expectTag(b, pos, "MTrk"); err != nil {
			return h, nil, err
		}
		if pos+8 > len(b) {
			return h, nil, &FormatError{Pos: pos, Msg: "track chunk header truncated"}
		}
		n := int(binary.BigEndian.Uint32(b[pos+4 : pos+8]))
		if pos+8+n > len(b) {
			return h, nil, &FormatError{Pos: pos, Msg: fmt.Sprintf("track %d runs past end of file", i)}
		}
		trk, err := DecodeTrack(b[pos+8 : pos+8+n])
		if err != nil {
			return h, nil, fmt.Errorf("track %d: %w", i, err)
		}
		for j := range trk {
			trk[j].Time *= scale
		}
		trks = append(trks, trk)
		pos += 8 + n
	}
	debug.Log("midi", "format %d, %d tracks, division %d", h.Format, h.Tracks, h.Division)
	if debug.Enabled() {
		counts := make([]int, len(trks))
		for i, trk := range trks {
			counts[i] = len(trk)
		}
		debug.Log("midi", "events per track %v", counts)
	}
	return h, trks, nil
}

func expectTag(b []byte, pos int, tag string) error {
	if pos < 0 || pos+4 > len(b) || !bytes.Equal(b[pos:pos+4], []byte(tag)) {
		got := []byte{}
		if pos >= 0 && pos < len(b) {
			got = b[pos:min(pos+4, len(b))]
		}
		return &FormatError{Pos: pos, Msg: fmt.Sprintf("expected %q, got %q", tag, got)}
	}
	return nil
}
