package ac7

// Atom tags used in the ELMT block.
const (
	AtomName          uint8 = 0
	AtomTimeSignature uint8 = 1
	AtomTempo         uint8 = 2
	AtomMeasures      uint8 = 6
	AtomTrackCount    uint8 = 7
	AtomVolume        uint8 = 9
	AtomUnknown17     uint8 = 17
	AtomTrackIndex    uint8 = 0x20
	AtomMixerIndex    uint8 = 0x21
	AtomTrackFlags    uint8 = 0x22
	AtomDelaySends    uint8 = 0x30
	AtomOverride33    uint8 = 0x33
	AtomOverride35    uint8 = 0x35
	AtomDSP           uint8 = 0x36
	AtomReverbType    uint8 = 64
	AtomChorusType    uint8 = 65
	AtomDelayType     uint8 = 66
	AtomAiXSection    uint8 = 253
	AtomCTXSection    uint8 = 254
	AtomEnd           uint8 = 255
)

// Atom is one tag/length/payload record.
type Atom struct {
	Tag     uint8  `json:"tag"`
	Payload []byte `json:"payload"`
}

// EncodeAtom returns tag, payload length and payload.
func EncodeAtom(tag uint8, payload []byte) ([]byte, error) {
	if len(payload) > 0xFF {
		return nil, &PayloadTooLargeError{Tag: tag, Len: len(payload)}
	}
	out := make([]byte, 0, 2+len(payload))
	out = append(out, tag, uint8(len(payload)))
	return append(out, payload...), nil
}

// DecodeAtoms reads atoms up to and including the end atom (255). It
// returns the atoms and the number of bytes consumed.
func DecodeAtoms(b []byte) ([]Atom, int, error) {
	var atoms []Atom
	pos := 0
	for {
		if pos+2 > len(b) {
			return atoms, pos, &FormatError{Pos: pos, Msg: "atom list without end atom"}
		}
		tag, n := b[pos], int(b[pos+1])
		if pos+2+n > len(b) {
			return atoms, pos, &FormatError{Pos: pos, Msg: "atom payload runs past end of data"}
		}
		atoms = append(atoms, Atom{Tag: tag, Payload: b[pos+2 : pos+2+n]})
		pos += 2 + n
		if tag == AtomEnd {
			return atoms, pos, nil
		}
	}
}

// atomList accumulates encoded atoms and keeps the first error.
type atomList struct {
	buf []byte
	err error
}

func (l *atomList) add(tag uint8, payload ...byte) {
	if l.err != nil {
		return
	}
	a, err := EncodeAtom(tag, payload)
	if err != nil {
		l.err = err
		return
	}
	l.buf = append(l.buf, a...)
}

func (l *atomList) bytes() ([]byte, error) {
	return l.buf, l.err
}
