// Package registration writes .RBK registration bank files.
package registration

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"go-ac7/ac7"
)

// DefaultModel is the model name written into new banks. Keyboards accept
// banks made for other models.
const DefaultModel = "CT-X700"

// AtomVolumes holds the volumes of the upper 1, upper 2, lower and
// rhythm parts.
const AtomVolumes = 0x11

var (
	ErrNoVolumes       = errors.New("registration: no volumes atom")
	ErrTooManyVolumes  = errors.New("registration: too many volume values")
	ErrInvalidBankSize = errors.New("registration: bank size must be 4 or 8")
)

// basic is a registration captured from a CT-X700.
var basic = []ac7.Atom{
	{Tag: 0x01, Payload: []byte{0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20}},
	{Tag: 0x02, Payload: []byte{0x78}},
	{Tag: 0x03, Payload: []byte{0x0B, 0x07}},
	{Tag: 0x10, Payload: []byte{0x00, 0x01, 0x31, 0x01, 0x20, 0x01, 0x00, 0x01, 0x00, 0x00}},
	{Tag: 0x22, Payload: []byte{0x01, 0x01, 0x01, 0x00}},
	{Tag: 0x23, Payload: []byte{0x00, 0x00, 0xFF, 0x00}},
	{Tag: 0x25, Payload: []byte{0x00, 0x00, 0x01, 0x01}},
	{Tag: 0x20, Payload: []byte{0x01}},
	{Tag: 0x21, Payload: []byte{0x36}},
	{Tag: 0x0C, Payload: []byte{0x00}},
	{Tag: 0x0A, Payload: []byte{0x00}},
	{Tag: 0x0B, Payload: []byte{0x00}},
	{Tag: 0xF0, Payload: []byte{0x00, 0x04}},
	{Tag: 0xF0, Payload: []byte{0x01, 0x00}},
	{Tag: 0xF0, Payload: []byte{0x02, 0x04}},
	{Tag: 0xF0, Payload: []byte{0x03, 0x04}},
	{Tag: 0xF0, Payload: []byte{0x04, 0x32}},
	{Tag: 0xF0, Payload: []byte{0x05, 0x00}},
	{Tag: 0xF0, Payload: []byte{0x06, 0x00}},
	{Tag: 0x04, Payload: []byte{0x00}},
	{Tag: 0x11, Payload: []byte{0x7F, 0x7F, 0x7F, 0x7F, 0x64}},
	{Tag: 0x12, Payload: []byte{0x40, 0x40, 0x40, 0x40, 0x40}},
	{Tag: 0x13, Payload: []byte{0x00, 0x00, 0x00, 0x00, 0x00}},
	{Tag: 0x14, Payload: []byte{0x00, 0x00, 0x00, 0x00, 0x00}},
	{Tag: 0x15, Payload: []byte{0x1E, 0x24, 0x07, 0x28, 0x28}},
	{Tag: 0x16, Payload: []byte{0x00, 0x00, 0x00, 0x00, 0x00}},
	{Tag: 0x17, Payload: []byte{0x00, 0x00, 0x00, 0x00, 0x00}},
	{Tag: 0x1A, Payload: []byte{0x01, 0x00, 0x00, 0x00, 0x00}},
	{Tag: 0x18, Payload: []byte{0x02, 0x02, 0x02, 0x02, 0x02}},
	{Tag: 0x3C, Payload: []byte{0x41}},
	{Tag: 0x34, Payload: []byte{0x00, 0x00, 0x00, 0x00}},
	{Tag: 0x3D, Payload: []byte{0x00}},
	{Tag: 0x5E, Payload: []byte{0x17, 0x10}},
	{Tag: 0x0E, Payload: []byte{0x00}},
	{Tag: 0x0D, Payload: []byte{0x00}},
	{Tag: 0x0F, Payload: []byte{0xFF, 0xFF}},
	{Tag: 0x81, Payload: []byte{0x00}},
	{Tag: 0x09, Payload: []byte{0x00}},
	{Tag: 0x83, Payload: []byte{0x02}},
	{Tag: 0x84, Payload: []byte{0x64}},
	{Tag: 0x40, Payload: []byte{0x73}},
	{Tag: 0x85, Payload: []byte{0x00}},
	{Tag: 0x86, Payload: []byte{0x00}},
	{Tag: 0x87, Payload: []byte{0x00}},
	{Tag: 0xFF, Payload: []byte{}},
}

// BasicRegistration returns a known-good registration to start from.
func BasicRegistration() []byte {
	var out []byte
	for _, a := range basic {
		b, err := ac7.EncodeAtom(a.Tag, a.Payload)
		if err != nil {
			panic(err)
		}
		out = append(out, b...)
	}
	return out
}

// ChangeVolumes returns a copy of reg with the first len(volumes) bytes of
// the volumes atom replaced.
func ChangeVolumes(reg []byte, volumes []uint8) ([]byte, error) {
	atoms, _, err := ac7.DecodeAtoms(reg)
	if err != nil {
		return nil, fmt.Errorf("registration: %w", err)
	}
	pos := 0
	for _, a := range atoms {
		if a.Tag == AtomVolumes {
			if len(volumes) > len(a.Payload) {
				return nil, fmt.Errorf("%w: %d values, atom holds %d", ErrTooManyVolumes, len(volumes), len(a.Payload))
			}
			out := append([]byte(nil), reg...)
			copy(out[pos+2:], volumes)
			return out, nil
		}
		pos += 2 + len(a.Payload)
	}
	return nil, ErrNoVolumes
}

// MakeBank builds an .RBK file. bankSize is 4 for the CT-X700/800 and 8
// for the CT-X3000/5000, and regs must hold exactly that many
// registrations.
func MakeBank(model string, bankSize int, regs [][]byte) ([]byte, error) {
	var sizeLog uint32
	switch bankSize {
	case 4:
	case 8:
		sizeLog = 1
	default:
		return nil, ErrInvalidBankSize
	}
	if len(regs) != bankSize {
		return nil, fmt.Errorf("registration: need %d registrations, got %d", bankSize, len(regs))
	}
	if model == "" {
		model = DefaultModel
	}
	name := make([]byte, 16)
	copy(name, model)

	out := append(name, "RBKH"...)
	out = binary.LittleEndian.AppendUint32(out, sizeLog)
	for _, r := range regs {
		out = append(out, "REGH"...)
		out = binary.LittleEndian.AppendUint32(out, sizeLog)
		out = binary.LittleEndian.AppendUint32(out, crc32.ChecksumIEEE(r))
		out = binary.LittleEndian.AppendUint32(out, uint32(len(r)))
		out = append(out, r...)
		out = append(out, "EODA"...)
	}
	return out, nil
}
