package ac7

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// Layout is the structure of an AC7 document as read back from bytes.
type Layout struct {
	Length   int       `json:"length" yaml:"length"`
	Blocks   [4]Block  `json:"blocks" yaml:"blocks"`
	Shared   []Atom    `json:"shared" yaml:"shared"`
	Elements []Element `json:"elements" yaml:"elements"`
}

// Block is one of the four top-level blocks.
type Block struct {
	Tag    string `json:"tag" yaml:"tag"`
	Start  int    `json:"start" yaml:"start"`
	Length int    `json:"length" yaml:"length"`
	Items  []Item `json:"items" yaml:"items"`
}

// Item locates one entry of a block, relative to the document start.
type Item struct {
	Offset int `json:"offset" yaml:"offset"`
	Length int `json:"length" yaml:"length"`
}

// Element is the decoded atom list of one ELMT item, with its track table
// resolved against the DRUM and OTHR blocks.
type Element struct {
	Atoms  []Atom     `json:"atoms" yaml:"atoms"`
	Tracks []TrackRef `json:"tracks" yaml:"tracks"`
}

// TrackRef is one entry of an element's track table.
type TrackRef struct {
	Part   int    `json:"part" yaml:"part"`
	Block  string `json:"block" yaml:"block"`
	Index  int    `json:"index" yaml:"index"`
	Length int    `json:"length" yaml:"length"`
	// Idle is set for tracks that only wait for the end of the element.
	Idle bool `json:"idle" yaml:"idle"`
}

// Atom returns the first atom with tag.
func (e Element) Atom(tag uint8) (Atom, bool) {
	for _, a := range e.Atoms {
		if a.Tag == tag {
			return a, true
		}
	}
	return Atom{}, false
}

// Block returns the block with tag, or nil.
func (l *Layout) Block(tag string) *Block {
	for i := range l.Blocks {
		if l.Blocks[i].Tag == tag {
			return &l.Blocks[i]
		}
	}
	return nil
}

// Inspect parses an AC7 document and checks that every pointer and offset
// lands inside its block with no overlap.
func Inspect(b []byte) (*Layout, error) {
	if len(b) < HeaderSize || string(b[:4]) != Magic {
		return nil, &FormatError{Pos: 0, Msg: "missing AC07 header"}
	}
	l := &Layout{Length: int(binary.LittleEndian.Uint32(b[4:]))}
	if l.Length != len(b) {
		return nil, &FormatError{Pos: 4, Msg: fmt.Sprintf("header length %d, document is %d bytes", l.Length, len(b))}
	}
	var ptrs [4]int
	for i := range ptrs {
		ptrs[i] = int(binary.LittleEndian.Uint32(b[8+4*i:]))
	}
	if binary.LittleEndian.Uint32(b[24:]) != endOfPointers {
		return nil, &FormatError{Pos: 24, Msg: "pointer list not terminated"}
	}

	next := HeaderSize
	for i, tag := range BlockTags {
		if ptrs[i] != next {
			return nil, &FormatError{Pos: 8 + 4*i, Msg: fmt.Sprintf("%s block at %d, expected %d", tag, ptrs[i], next)}
		}
		var blk Block
		var err error
		if i == 0 {
			blk, err = l.inspectElements(b, ptrs[i])
		} else {
			blk, err = inspectBlock(b, tag, ptrs[i])
		}
		if err != nil {
			return nil, err
		}
		l.Blocks[i] = blk
		next = blk.Start + blk.Length
	}
	if next != len(b) {
		return nil, &FormatError{Pos: next, Msg: fmt.Sprintf("%d trailing bytes", len(b)-next)}
	}
	if err := l.resolveTracks(b); err != nil {
		return nil, err
	}
	return l, nil
}

// resolveTracks walks each element's track and mixer tables in step. A
// mixer entry of 0xFFFF keeps the previous part.
func (l *Layout) resolveTracks(b []byte) error {
	drums, others := l.Block(BlockTags[2]), l.Block(BlockTags[3])
	for i := range l.Elements {
		e := &l.Elements[i]
		pos := l.Blocks[0].Items[i].Offset
		idx, ok := e.Atom(AtomTrackIndex)
		if !ok {
			continue
		}
		mix, _ := e.Atom(AtomMixerIndex)
		if len(idx.Payload)%2 != 0 || len(mix.Payload) != len(idx.Payload) {
			return &FormatError{Pos: pos, Msg: fmt.Sprintf("element %d: track and mixer tables differ", i+1)}
		}
		part := 0
		for j := 0; j < len(idx.Payload); j += 2 {
			if binary.LittleEndian.Uint16(mix.Payload[j:]) != 0xFFFF {
				part++
			}
			if part < 1 || part > NumParts {
				return &FormatError{Pos: pos, Msg: fmt.Sprintf("element %d: track %d has no part", i+1, j/2)}
			}
			blk := others
			if IsDrumPart(part) {
				blk = drums
			}
			n := int(binary.LittleEndian.Uint16(idx.Payload[j:])) - 0x8000
			if n < 0 || n >= len(blk.Items) {
				return &FormatError{Pos: pos, Msg: fmt.Sprintf("element %d: %s track %d out of range", i+1, blk.Tag, n)}
			}
			it := blk.Items[n]
			body := b[it.Offset : it.Offset+it.Length]
			if blk == others && len(body) >= 3 {
				body = body[3:]
			}
			e.Tracks = append(e.Tracks, TrackRef{
				Part:   part,
				Block:  blk.Tag,
				Index:  n,
				Length: it.Length,
				Idle:   bytes.Equal(body, IdleTrack),
			})
		}
	}
	return nil
}

func inspectBlock(b []byte, tag string, start int) (Block, error) {
	blk := Block{Tag: tag, Start: start}
	if start+BlockHeaderSize > len(b) || string(b[start:start+4]) != tag {
		return blk, &FormatError{Pos: start, Msg: "missing " + tag + " tag"}
	}
	blk.Length = int(binary.LittleEndian.Uint32(b[start+4:]))
	n := int(binary.LittleEndian.Uint16(b[start+8:]))
	end := start + blk.Length
	data := start + BlockHeaderSize + 4*n
	if end > len(b) || data > end {
		return blk, &FormatError{Pos: start + 4, Msg: fmt.Sprintf("%s block length %d is out of range", tag, blk.Length)}
	}
	offsets := readOffsets(b, start+BlockHeaderSize, n)
	items, err := locateItems(offsets, data, end)
	if err != nil {
		return blk, err
	}
	blk.Items = items
	return blk, nil
}

func (l *Layout) inspectElements(b []byte, start int) (Block, error) {
	blk := Block{Tag: BlockTags[0], Start: start}
	if start+ElementHeaderSize > len(b) || binary.LittleEndian.Uint32(b[start:]) != ElementMagic {
		return blk, &FormatError{Pos: start, Msg: "missing element block magic"}
	}
	blk.Length = int(binary.LittleEndian.Uint16(b[start+4:]))
	n := int(b[start+6])
	end := start + blk.Length
	table := start + ElementHeaderSize
	if end > len(b) || table+4*n > end {
		return blk, &FormatError{Pos: start + 4, Msg: fmt.Sprintf("element block length %d is out of range", blk.Length)}
	}
	shared, used, err := DecodeAtoms(b[table+4*n : end])
	if err != nil {
		return blk, err
	}
	l.Shared = shared
	data := table + 4*n + used

	offsets := readOffsets(b, table, n)
	items, err := locateItems(offsets, data, end)
	if err != nil {
		return blk, err
	}
	for _, it := range items {
		if it.Length < 6 || string(b[it.Offset:it.Offset+4]) != BlockTags[0] {
			return blk, &FormatError{Pos: it.Offset, Msg: "element without ELMT tag"}
		}
		size := int(binary.LittleEndian.Uint16(b[it.Offset+4:]))
		if 6+size != it.Length {
			return blk, &FormatError{Pos: it.Offset + 4, Msg: fmt.Sprintf("element length %d does not fill its slot of %d", size, it.Length-6)}
		}
		atoms, _, err := DecodeAtoms(b[it.Offset+6 : it.Offset+it.Length])
		if err != nil {
			return blk, err
		}
		l.Elements = append(l.Elements, Element{Atoms: atoms})
	}
	blk.Items = items
	return blk, nil
}

func readOffsets(b []byte, at, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = int(binary.LittleEndian.Uint32(b[at+4*i:]))
	}
	return out
}

// locateItems turns an offset table into contiguous items filling
// [data, end).
func locateItems(offsets []int, data, end int) ([]Item, error) {
	items := make([]Item, len(offsets))
	pos := data
	for i, off := range offsets {
		if off != pos {
			return nil, &FormatError{Pos: off, Msg: fmt.Sprintf("item %d at %d, expected %d", i, off, pos)}
		}
		next := end
		if i+1 < len(offsets) {
			next = offsets[i+1]
		}
		if next < off || next > end {
			return nil, &FormatError{Pos: off, Msg: fmt.Sprintf("item %d overlaps or runs past its block", i)}
		}
		items[i] = Item{Offset: off, Length: next - off}
		pos = next
	}
	if pos != end {
		return nil, &FormatError{Pos: pos, Msg: "block has unused bytes"}
	}
	return items, nil
}

// Summary holds the rhythm-wide settings of a document.
type Summary struct {
	Name          string `json:"name" yaml:"name"`
	TimeSignature string `json:"timeSignature" yaml:"timeSignature"`
	Tempo         int    `json:"tempo" yaml:"tempo"`
	Volume        int    `json:"volume" yaml:"volume"`
}

// Summary reads the shared atoms. Missing atoms leave their field zero.
func (l *Layout) Summary() Summary {
	var s Summary
	for _, a := range l.Shared {
		if len(a.Payload) == 0 {
			continue
		}
		switch a.Tag {
		case AtomName:
			s.Name = strings.TrimRight(string(a.Payload[:min(len(a.Payload), 8)]), " ")
		case AtomTimeSignature:
			if num, den, ok := decodeTimeSignature(a.Payload[0]); ok {
				s.TimeSignature = fmt.Sprintf("%d/%d", num, den)
			}
		case AtomTempo:
			s.Tempo = int(a.Payload[0])
		case AtomVolume:
			s.Volume = int(a.Payload[0])
		}
	}
	return s
}

func decodeTimeSignature(b uint8) (int, int, bool) {
	switch b & 7 {
	case 2:
		return int(b >> 3), 4, true
	case 3:
		return int(b >> 3), 8, true
	}
	return 0, 0, false
}
