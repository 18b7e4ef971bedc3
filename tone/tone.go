// Package tone reads and writes .TON tone files and extracts the DSP chain
// stored in a tone body.
package tone

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"
)

// ErrFormat is wrapped by every error about a malformed tone file.
var ErrFormat = errors.New("tone: malformed file")

// DefaultModel is written by Wrap when no model name is given.
const DefaultModel = "CT-X3000"

const (
	modelSize  = 16
	headerSize = modelSize + 4 + 12
	trailer    = "EODA"
)

// DSP chain layout inside a tone body.
const (
	MaxEffects   = 4
	EffectParams = 13
	dspBase      = 0x136
	dspStride    = 0x12
	dspParamsAt  = 2
	minBodySize  = dspBase + (MaxEffects-1)*dspStride + dspParamsAt + EffectParams
)

// File is a decoded tone file.
type File struct {
	Model string
	Body  []byte
}

// Read decodes a tone file and verifies its tags, length and CRC.
func Read(b []byte) (*File, error) {
	if len(b) < headerSize+len(trailer) {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrFormat, len(b))
	}
	if string(b[modelSize:modelSize+4]) != "TONH" {
		return nil, fmt.Errorf("%w: missing TONH tag", ErrFormat)
	}
	crc := binary.LittleEndian.Uint32(b[modelSize+8:])
	n := int(binary.LittleEndian.Uint32(b[modelSize+12:]))
	if headerSize+n+len(trailer) > len(b) {
		return nil, fmt.Errorf("%w: body length %d runs past end of file", ErrFormat, n)
	}
	body := b[headerSize : headerSize+n]
	if string(b[headerSize+n:headerSize+n+len(trailer)]) != trailer {
		return nil, fmt.Errorf("%w: missing %s tag", ErrFormat, trailer)
	}
	if got := crc32.ChecksumIEEE(body); got != crc {
		return nil, fmt.Errorf("%w: crc %08X, header says %08X", ErrFormat, got, crc)
	}
	model := strings.TrimRight(string(bytes.TrimRight(b[:modelSize], "\x00")), " ")
	return &File{Model: model, Body: body}, nil
}

// Wrap builds a tone file around body.
func Wrap(model string, body []byte) []byte {
	if model == "" {
		model = DefaultModel
	}
	out := make([]byte, 0, headerSize+len(body)+len(trailer))
	out = append(out, padModel(model)...)
	out = append(out, "TONH"...)
	out = binary.LittleEndian.AppendUint32(out, 0)
	out = binary.LittleEndian.AppendUint32(out, crc32.ChecksumIEEE(body))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(body)))
	out = append(out, body...)
	return append(out, trailer...)
}

// padModel truncates or space-pads a model name to 16 bytes.
func padModel(model string) []byte {
	m := []byte(model)
	if len(m) > modelSize {
		m = m[:modelSize]
	}
	return append(m, bytes.Repeat([]byte{' '}, modelSize-len(m))...)
}

// Effect is one slot of the DSP chain.
type Effect struct {
	Type   uint8  `json:"type" yaml:"type"`
	Params []byte `json:"params" yaml:"params"`
}

// DSPChain returns the effects of a tone body in chain order. A slot with
// effect type 0 ends the chain.
func DSPChain(body []byte) ([]Effect, error) {
	if len(body) < minBodySize {
		return nil, fmt.Errorf("%w: body of %d bytes has no DSP chain", ErrFormat, len(body))
	}
	var chain []Effect
	for j := 0; j < MaxEffects; j++ {
		at := dspBase + j*dspStride
		if body[at] == 0 {
			break
		}
		p := make([]byte, EffectParams)
		copy(p, body[at+dspParamsAt:])
		chain = append(chain, Effect{Type: body[at], Params: p})
	}
	return chain, nil
}

// SetDSPChain writes effects into a tone body, clearing unused slots.
func SetDSPChain(body []byte, chain []Effect) error {
	if len(body) < minBodySize {
		return fmt.Errorf("%w: body of %d bytes has no DSP chain", ErrFormat, len(body))
	}
	if len(chain) > MaxEffects {
		return fmt.Errorf("tone: %d effects, at most %d fit", len(chain), MaxEffects)
	}
	for j := 0; j < MaxEffects; j++ {
		at := dspBase + j*dspStride
		body[at] = 0
		clear(body[at+dspParamsAt : at+dspParamsAt+EffectParams])
		if j >= len(chain) {
			continue
		}
		if len(chain[j].Params) > EffectParams {
			return fmt.Errorf("tone: effect %d has %d parameters, at most %d fit", j+1, len(chain[j].Params), EffectParams)
		}
		body[at] = chain[j].Type
		copy(body[at+dspParamsAt:], chain[j].Params)
	}
	return nil
}
