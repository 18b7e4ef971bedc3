// Package sysex implements the Casio SysEx wire format: the 7-bit packing
// used for binary payloads, packet construction and parsing, and the
// handshake used to move bulk data to and from the instrument.
package sysex

import (
	"errors"
	"fmt"
)

// ErrMalformedInput is returned by Unpack7 for bytes that are not valid
// 7-bit data.
var ErrMalformedInput = errors.New("sysex: malformed 7-bit data")

// Pack7 re-segments an 8-bit byte stream into 7-bit groups, least
// significant bits first. Every 7 input bytes produce 8 output bytes; a
// trailing partial group is flushed as a final byte.
func Pack7(b []byte) []byte {
	out := make([]byte, 0, len(b)+len(b)/7+1)
	var rem byte
	phase := 0
	for _, x := range b {
		out = append(out, (rem|x<<phase)&0x7F)
		rem = x >> (7 - phase)
		phase++
		if phase == 7 {
			out = append(out, rem)
			rem = 0
			phase = 0
		}
	}
	if phase > 0 {
		out = append(out, rem)
	}
	return out
}

// Unpack7 reverses Pack7. Every 8 input bytes produce 7 output bytes.
func Unpack7(b []byte) ([]byte, error) {
	out := make([]byte, 0, len(b))
	var rem byte
	phase := 0
	for i, x := range b {
		if x >= 0x80 {
			return nil, fmt.Errorf("%w: byte %02X at position %d", ErrMalformedInput, x, i)
		}
		if phase == 0 {
			rem = x
		} else {
			out = append(out, x<<(8-phase)|rem)
			rem = x >> phase
		}
		phase = (phase + 1) % 8
	}
	if rem != 0 {
		return nil, fmt.Errorf("%w: leftover data", ErrMalformedInput)
	}
	return out, nil
}
