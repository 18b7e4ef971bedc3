package ac7

import (
	"encoding/binary"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"go-ac7/debug"
	"go-ac7/midi"
	"go-ac7/tone"
)

// Sources supplies the MIDI and tone files named in a rhythm spec.
type Sources interface {
	ReadSource(name string) ([]byte, error)
}

// DirSources reads files from disk, resolving relative names against the
// directory.
type DirSources string

func (d DirSources) ReadSource(name string) ([]byte, error) {
	if !filepath.IsAbs(name) && d != "" {
		name = filepath.Join(string(d), name)
	}
	return os.ReadFile(name)
}

// MemorySources serves files from a map.
type MemorySources map[string][]byte

func (m MemorySources) ReadSource(name string) ([]byte, error) {
	b, ok := m[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return b, nil
}

// Builder turns rhythm specs into AC7 documents. A Builder holds no state
// between builds.
type Builder struct {
	src Sources
}

// NewBuilder creates a builder that reads source files from src.
func NewBuilder(src Sources) *Builder {
	return &Builder{src: src}
}

// Build encodes spec, reading sources relative to spec.BaseDir.
func Build(spec *RhythmSpec) ([]byte, error) {
	return NewBuilder(DirSources(spec.BaseDir)).Build(spec)
}

// buildState carries the growing item lists of one build.
type buildState struct {
	spec     *RhythmSpec
	elements [][]byte
	mixers   [][]byte
	drums    [][]byte
	others   [][]byte

	midi map[string][]midi.Track
	dsp  map[string][]tone.Effect
}

// elementTiming is what pass 1 learns about an element.
type elementTiming struct {
	num, den int
	duration float64 // 24 clocks per quarter
}

func (t elementTiming) measures() int {
	perBeat := 96 / t.den
	m := int(math.Round(t.duration / float64(t.num*perBeat)))
	return min(max(m, 1), 255)
}

// Build encodes spec as a complete AC7 document.
func (b *Builder) Build(spec *RhythmSpec) ([]byte, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	st := &buildState{
		spec: spec,
		midi: make(map[string][]midi.Track),
		dsp:  make(map[string][]tone.Effect),
	}
	for el := 1; el <= NumElements; el++ {
		item, err := b.element(st, el)
		if err != nil {
			return nil, err
		}
		st.elements = append(st.elements, item)
	}
	if n := len(st.mixers); n != NumParts*NumElements {
		return nil, &CountMismatchError{What: "mixer entries", Got: n, Want: NumParts * NumElements}
	}
	shared, err := sharedAtoms(spec)
	if err != nil {
		return nil, err
	}
	doc, err := assembleDocument(shared, st.elements, st.mixers, st.drums, st.others)
	if err != nil {
		return nil, err
	}
	debug.Log("ac7", "built %q: %d bytes, %d drum and %d other tracks",
		spec.name(), len(doc), len(st.drums), len(st.others))
	return doc, nil
}

// element runs both passes for element el and returns its ELMT item.
func (b *Builder) element(st *buildState, el int) ([]byte, error) {
	es := st.spec.Element(el)
	var tracks []TrackSpec
	if !es.Omit {
		for _, t := range st.spec.Tracks {
			if t.Element == el {
				tracks = append(tracks, t)
			}
		}
	}

	tm, err := b.timing(st, tracks, el)
	if err != nil {
		return nil, err
	}
	tsb, err := timeSignatureByte(tm.num, tm.den)
	if err != nil {
		return nil, &InvalidTimeSignatureError{Element: el, Numerator: tm.num, Denominator: tm.den}
	}

	var index, mixer, flags []byte
	count := 0
	for part := 1; part <= NumParts; part++ {
		var owned []TrackSpec
		if !es.Omit {
			owned = st.spec.TracksFor(part, el)
		}
		for i, t := range owned {
			trks, err := b.loadMIDI(st, t.SourceFile)
			if err != nil {
				return nil, err
			}
			events := midi.Merge(trks)
			if events == nil {
				events = midi.Track{}
			}
			frag := EncodeTrack(events, t.SourceChannel, tm.duration)
			if !IsDrumPart(part) {
				s := Starter(t)
				frag = append(s[:], frag...)
			}
			index = st.addTrack(index, part, frag)
			mixer = st.addMixer(mixer, part, i > 0)
			flags = append(flags, trackFlag(part))
		}
		if len(owned) == 0 {
			frag := EncodeTrack(nil, 0, 0)
			if !IsDrumPart(part) {
				s := Starter(TrackSpec{Part: part, Element: el})
				frag = append(s[:], frag...)
			}
			index = st.addTrack(index, part, frag)
			mixer = st.addMixer(mixer, part, false)
			flags = append(flags, trackFlag(part))
		}
		count += max(len(owned), 1)
	}
	if count > 0xFF {
		return nil, fmt.Errorf("ac7: element %d has %d tracks", el, count)
	}

	var sends [NumParts]byte
	for part := 1; part <= NumParts; part++ {
		sends[part-1] = st.spec.Part(part).DelaySend
	}

	var l atomList
	l.add(AtomTimeSignature, tsb)
	l.add(AtomMeasures, uint8(tm.measures()))
	l.add(AtomTrackCount, uint8(count))
	l.add(AtomTrackIndex, index...)
	l.add(AtomMixerIndex, mixer...)
	l.add(AtomTrackFlags, flags...)
	l.add(AtomDelaySends, sends[:]...)
	for part := 1; part <= NumParts; part++ {
		p := st.spec.Part(part)
		if p.ToneFile == "" {
			continue
		}
		chain, err := b.loadDSP(st, p.ToneFile)
		if err != nil {
			return nil, err
		}
		l.add(AtomDSP, dspPayload(part, chain)...)
	}
	if es.Override33 != nil {
		l.add(AtomOverride33, intBytes(es.Override33)...)
	}
	if es.Override35 != nil {
		l.add(AtomOverride35, intBytes(es.Override35)...)
	}
	l.add(AtomAiXSection)
	l.add(AtomCTXSection)
	l.add(AtomEnd)
	atoms, err := l.bytes()
	if err != nil {
		return nil, fmt.Errorf("element %d: %w", el, err)
	}

	debug.Log("ac7", "element %2d: %d/%d, %d measures, %d tracks, omit=%v",
		el, tm.num, tm.den, tm.measures(), count, bool(es.Omit))
	return elementItem(atoms)
}

// timing is pass 1: the element's signature and duration.
func (b *Builder) timing(st *buildState, tracks []TrackSpec, el int) (elementTiming, error) {
	if len(tracks) == 0 {
		return elementTiming{num: 4, den: 4, duration: 4 * midi.ClocksPerQuarter}, nil
	}
	var tm elementTiming
	found := false
	for _, t := range tracks {
		trks, err := b.loadMIDI(st, t.SourceFile)
		if err != nil {
			return tm, err
		}
		for _, trk := range trks {
			tm.duration = max(tm.duration, trk.End())
			if found {
				continue
			}
			if ts, ok := trk.TimeSignature(); ok {
				tm.num = int(ts.Numerator)
				tm.den = 1 << min(ts.LogDenominator, 30)
				found = true
			}
		}
	}
	if !found {
		return tm, &MissingTimeSignatureError{Element: el}
	}
	return tm, nil
}

// addTrack appends a track fragment to the DRUM or OTHR list and returns
// index extended by its tagged position.
func (st *buildState) addTrack(index []byte, part int, frag []byte) []byte {
	var n int
	if IsDrumPart(part) {
		n = len(st.drums)
		st.drums = append(st.drums, frag)
	} else {
		n = len(st.others)
		st.others = append(st.others, frag)
	}
	return binary.LittleEndian.AppendUint16(index, uint16(n+0x8000))
}

// addMixer appends a mixer fragment for part, or the reuse marker when the
// part already owns one in this element.
func (st *buildState) addMixer(index []byte, part int, reuse bool) []byte {
	if reuse {
		return binary.LittleEndian.AppendUint16(index, 0xFFFF)
	}
	n := len(st.mixers)
	st.mixers = append(st.mixers, st.spec.Part(part).mixerFragment())
	return binary.LittleEndian.AppendUint16(index, uint16(n+0x8000))
}

func (b *Builder) loadMIDI(st *buildState, name string) ([]midi.Track, error) {
	if trks, ok := st.midi[name]; ok {
		return trks, nil
	}
	data, err := b.src.ReadSource(name)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	trks, err := midi.ReadFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	st.midi[name] = trks
	return trks, nil
}

func (b *Builder) loadDSP(st *buildState, name string) ([]tone.Effect, error) {
	if chain, ok := st.dsp[name]; ok {
		return chain, nil
	}
	data, err := b.src.ReadSource(name)
	if err != nil {
		return nil, fmt.Errorf("read tone: %w", err)
	}
	f, err := tone.Read(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	chain, err := tone.DSPChain(f.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	st.dsp[name] = chain
	return chain, nil
}

// dspPayload is the atom 0x36 payload: part, then type, count and
// parameters of each effect.
func dspPayload(part int, chain []tone.Effect) []byte {
	out := []byte{uint8(part - 1)}
	for _, e := range chain {
		out = append(out, e.Type, uint8(len(e.Params)))
		out = append(out, e.Params...)
	}
	return out
}

// sharedAtoms are the rhythm-wide atoms ahead of the first element.
func sharedAtoms(spec *RhythmSpec) ([]byte, error) {
	num, den, err := ParseTimeSignature(spec.timeSignature())
	if err != nil {
		return nil, err
	}
	tsb, err := timeSignatureByte(num, den)
	if err != nil {
		return nil, err
	}

	name := displayName(spec.name())
	var l atomList
	l.add(AtomName, append(name, 0x00, 0x01, 0x00, 0x00)...)
	l.add(AtomTimeSignature, tsb)
	l.add(AtomTempo, uint8(intOr(spec.Tempo, DefaultTempo)))
	l.add(AtomVolume, uint8(intOr(spec.Volume, DefaultVolume)))
	l.add(AtomReverbType, uint8(intOr(spec.ReverbType, DefaultReverbType)))
	l.add(AtomChorusType, uint8(intOr(spec.ChorusType, DefaultChorusType)))
	l.add(AtomDelayType, uint8(intOr(spec.DelayType, DefaultDelayType)))
	for _, v := range [][2]byte{{0x06, 0x01}, {0x07, 0x12}, {0x08, 0x13}, {0x09, 0x22}, {0x0A, 0x23}, {0x0B, 0x31}} {
		l.add(AtomUnknown17, v[:]...)
	}
	l.add(AtomEnd)
	return l.bytes()
}

// displayName keeps the first 7 characters of name and pads to 8 bytes.
// The keyboard shows ASCII only.
func displayName(name string) []byte {
	out := make([]byte, 0, 8)
	for _, r := range name {
		if len(out) == 7 {
			break
		}
		if r < 0x20 || r > 0x7E {
			r = '?'
		}
		out = append(out, byte(r))
	}
	for len(out) < 8 {
		out = append(out, ' ')
	}
	return out
}

func intBytes(v []int) []byte {
	out := make([]byte, len(v))
	for i, x := range v {
		out[i] = byte(x)
	}
	return out
}
