package ac7

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeAtom(t *testing.T) {
	tests := []struct {
		tag     uint8
		payload []byte
		want    []byte
	}{
		{1, []byte{0x22}, []byte{0x01, 0x01, 0x22}},
		{255, nil, []byte{0xFF, 0x00}},
		{0x20, []byte{0x00, 0x80, 0x01, 0x80}, []byte{0x20, 0x04, 0x00, 0x80, 0x01, 0x80}},
	}
	for _, tt := range tests {
		got, err := EncodeAtom(tt.tag, tt.payload)
		if err != nil {
			t.Fatalf("EncodeAtom(%d): %v", tt.tag, err)
		}
		if !bytes.Equal(got, tt.want) {
			t.Errorf("EncodeAtom(%d) = % X, want % X", tt.tag, got, tt.want)
		}
	}
}

func TestEncodeAtomTooLarge(t *testing.T) {
	if _, err := EncodeAtom(0x36, make([]byte, 255)); err != nil {
		t.Fatalf("255 bytes: %v", err)
	}
	_, err := EncodeAtom(0x36, make([]byte, 256))
	var tooLarge *PayloadTooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("err = %v, want PayloadTooLargeError", err)
	}
	if tooLarge.Tag != 0x36 || tooLarge.Len != 256 {
		t.Errorf("got %+v", tooLarge)
	}
}

func TestAtomListKeepsFirstError(t *testing.T) {
	var l atomList
	l.add(1, 0x22)
	l.add(2, make([]byte, 300)...)
	l.add(3, 0x01)
	if _, err := l.bytes(); err == nil {
		t.Fatal("expected error")
	}
	if !bytes.Equal(l.buf, []byte{1, 1, 0x22}) {
		t.Errorf("buf = % X", l.buf)
	}
}

func TestDecodeAtoms(t *testing.T) {
	in := []byte{0x01, 0x01, 0x22, 0x06, 0x01, 0x02, 0xFF, 0x00, 0xAA}
	atoms, n, err := DecodeAtoms(in)
	if err != nil {
		t.Fatal(err)
	}
	if n != 8 {
		t.Errorf("consumed %d, want 8", n)
	}
	if len(atoms) != 3 || atoms[1].Tag != 6 || atoms[1].Payload[0] != 2 || atoms[2].Tag != AtomEnd {
		t.Errorf("atoms = %+v", atoms)
	}
}

func TestDecodeAtomsErrors(t *testing.T) {
	for _, in := range [][]byte{
		{0x01, 0x01, 0x22},
		{0x01, 0x05, 0x22},
		{},
	} {
		var fe *FormatError
		if _, _, err := DecodeAtoms(in); !errors.As(err, &fe) {
			t.Errorf("DecodeAtoms(% X) err = %v", in, err)
		}
	}
}
