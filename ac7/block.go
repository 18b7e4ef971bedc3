package ac7

import (
	"encoding/binary"
	"fmt"
)

// Document layout constants.
const (
	Magic             = "AC07"
	HeaderSize        = 0x1C
	BlockHeaderSize   = 10 // tag, u32 length, u16 count
	ElementHeaderSize = 7  // magic, u16 length, u8 count
	ElementMagic      = 0x07FFFFFF
	endOfPointers     = 0xFFFFFFFF
)

// Block tags in document order.
var BlockTags = [4]string{"ELMT", "MIXR", "DRUM", "OTHR"}

// assembleBlock builds a MIXR, DRUM or OTHR block that starts at absolute
// position start.
func assembleBlock(tag string, items [][]byte, start int) ([]byte, error) {
	if len(items) > 0xFFFF {
		return nil, fmt.Errorf("ac7: %s block has %d items", tag, len(items))
	}
	size := BlockHeaderSize + 4*len(items)
	for _, it := range items {
		size += len(it)
	}
	out := make([]byte, 0, size)
	out = append(out, tag...)
	out = binary.LittleEndian.AppendUint32(out, uint32(size))
	out = binary.LittleEndian.AppendUint16(out, uint16(len(items)))
	cursor := start + BlockHeaderSize + 4*len(items)
	for _, it := range items {
		out = binary.LittleEndian.AppendUint32(out, uint32(cursor))
		cursor += len(it)
	}
	for _, it := range items {
		out = append(out, it...)
	}
	return out, nil
}

// assembleElementBlock builds the ELMT block. The rhythm-wide atoms sit
// between the offset table and the first element.
func assembleElementBlock(shared []byte, items [][]byte, start int) ([]byte, error) {
	if len(items) != NumElements {
		return nil, &CountMismatchError{What: "elements", Got: len(items), Want: NumElements}
	}
	size := ElementHeaderSize + 4*len(items) + len(shared)
	for _, it := range items {
		size += len(it)
	}
	if size > 0xFFFF {
		return nil, fmt.Errorf("ac7: ELMT block is %d bytes, limit is 65535", size)
	}
	out := make([]byte, 0, size)
	out = binary.LittleEndian.AppendUint32(out, ElementMagic)
	out = binary.LittleEndian.AppendUint16(out, uint16(size))
	out = append(out, uint8(len(items)))
	cursor := start + ElementHeaderSize + 4*len(items) + len(shared)
	for _, it := range items {
		out = binary.LittleEndian.AppendUint32(out, uint32(cursor))
		cursor += len(it)
	}
	out = append(out, shared...)
	for _, it := range items {
		out = append(out, it...)
	}
	return out, nil
}

// elementItem frames an element's atom list.
func elementItem(atoms []byte) ([]byte, error) {
	if len(atoms) > 0xFFFF {
		return nil, fmt.Errorf("ac7: element is %d bytes, limit is 65535", len(atoms))
	}
	out := make([]byte, 0, 6+len(atoms))
	out = append(out, BlockTags[0]...)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(atoms)))
	return append(out, atoms...), nil
}

// assembleDocument lays out the four blocks behind the header.
func assembleDocument(shared []byte, elements, mixers, drums, others [][]byte) ([]byte, error) {
	addr := HeaderSize
	var ptrs [4]int
	var blocks [4][]byte

	elmt, err := assembleElementBlock(shared, elements, addr)
	if err != nil {
		return nil, err
	}
	ptrs[0], blocks[0] = addr, elmt
	addr += len(elmt)

	for i, items := range [][][]byte{mixers, drums, others} {
		blk, err := assembleBlock(BlockTags[i+1], items, addr)
		if err != nil {
			return nil, err
		}
		ptrs[i+1], blocks[i+1] = addr, blk
		addr += len(blk)
	}

	out := make([]byte, 0, addr)
	out = append(out, Magic...)
	out = binary.LittleEndian.AppendUint32(out, uint32(addr))
	for _, p := range ptrs {
		out = binary.LittleEndian.AppendUint32(out, uint32(p))
	}
	out = binary.LittleEndian.AppendUint32(out, endOfPointers)
	for _, b := range blocks {
		out = append(out, b...)
	}
	return out, nil
}

// mixerFragment is the MIXR item of a part: patch, bank, volume, pan,
// reverb send, chorus send.
func (p Part) mixerFragment() []byte {
	return []byte{p.Patch, p.BankMSB, p.Volume, p.Pan, p.ReverbSend, p.ChorusSend}
}
