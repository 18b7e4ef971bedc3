package sysex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// DeviceID is the Casio manufacturer byte, the CT-X model ID and the
// "any device" byte.
var DeviceID = [4]byte{0x44, 0x19, 0x01, 0x7F}

// Commands, the byte after DeviceID.
const (
	CmdRead  uint8 = 0x00 // read parameter
	CmdWrite uint8 = 0x01 // write parameter, also the read response
	CmdHBR   uint8 = 0x04 // request bulk data
	CmdHBS   uint8 = 0x05 // bulk data
	CmdSBS   uint8 = 0x08 // start bulk session
	CmdACK   uint8 = 0x0A
	CmdBusy  uint8 = 0x0B
	CmdESS   uint8 = 0x0D // end of bulk data
	CmdEBS   uint8 = 0x0E // end bulk session
)

// SBS sub-commands.
const (
	SBSDownload uint8 = 2
	SBSUpload   uint8 = 3
)

const (
	sysExStart = 0xF0
	sysExEnd   = 0xF7

	// dataHeaderSize is F0, DeviceID, command, category, memory,
	// parameter set (2) and length (2).
	dataHeaderSize = 12
	// paramHeaderSize adds four 2-byte blocks, the parameter (2),
	// index (2) and length-1 (2).
	paramHeaderSize = 24
	crcSize         = 5
)

var (
	ErrBadPacket = errors.New("sysex: malformed packet")
	ErrBadCRC    = errors.New("sysex: crc mismatch")
)

// Address selects a parameter set: category 30 memory 1 holds the user
// rhythms, category 3 memory 3 the tones in play.
type Address struct {
	Category     int
	Memory       int
	ParameterSet int
}

// Param locates a single parameter inside a parameter set.
type Param struct {
	Address
	Block     [4]int
	Parameter int
	Index     int
	Length    int // bytes for string parameters; 1 for numbers
}

func header(cmd uint8) []byte {
	w := make([]byte, 0, 64)
	w = append(w, sysExStart)
	w = append(w, DeviceID[:]...)
	return append(w, cmd)
}

func appendAddress(w []byte, a Address) []byte {
	return append(w, uint8(a.Category), uint8(a.Memory), uint8(a.ParameterSet%128), uint8(a.ParameterSet/128))
}

// SBSPacket starts a bulk session.
func SBSPacket(sub uint8) []byte {
	return append(header(CmdSBS), sub, sysExEnd)
}

// ControlPacket builds the address-only packets: HBR, ACK, ESS and EBS.
func ControlPacket(cmd uint8, a Address) []byte {
	return append(appendAddress(header(cmd), a), sysExEnd)
}

// DataPacket builds a bulk data packet carrying data, followed by the
// packed CRC-32 of everything after F0.
func DataPacket(a Address, data []byte) []byte {
	w := appendAddress(header(CmdHBS), a)
	w = append(w, uint8(len(data)%128), uint8(len(data)/128))
	w = append(w, Pack7(data)...)
	crc := binary.LittleEndian.AppendUint32(nil, crc32.ChecksumIEEE(w[1:]))
	w = append(w, Pack7(crc)...)
	return append(w, sysExEnd)
}

func paramPacket(cmd uint8, p Param, length int, data []byte) []byte {
	w := appendAddress(header(cmd), p.Address)
	for _, b := range p.Block {
		w = append(w, uint8(b%128), uint8(b/128))
	}
	w = append(w, uint8(p.Parameter%128), uint8(p.Parameter/128))
	w = binary.LittleEndian.AppendUint16(w, uint16(p.Index))
	w = binary.LittleEndian.AppendUint16(w, uint16(length-1))
	w = append(w, data...)
	return append(w, sysExEnd)
}

// ReadPacket asks for a parameter value.
func ReadPacket(p Param) []byte {
	return paramPacket(CmdRead, p, max(p.Length, 1), nil)
}

// WritePacket sets a parameter. data must already be in 7-bit form.
func WritePacket(p Param, data []byte) []byte {
	return paramPacket(CmdWrite, p, max(p.Length, 1), data)
}

// Packet is a parsed incoming message.
type Packet struct {
	Command uint8
	Address Address
	// Data is the unpacked payload of a bulk data packet, or the raw value
	// of a parameter response.
	Data []byte
}

// Parse validates a complete F0..F7 message. Bulk packets must carry a
// matching CRC.
func Parse(p []byte) (Packet, error) {
	if len(p) < 7 || p[0] != sysExStart || p[1] != DeviceID[0] || p[4] != DeviceID[3] || p[len(p)-1] != sysExEnd {
		return Packet{}, fmt.Errorf("%w: % X", ErrBadPacket, p)
	}
	pkt := Packet{Command: p[5]}
	if len(p) >= 11 {
		pkt.Address = Address{Category: int(p[6]), Memory: int(p[7]), ParameterSet: int(p[8]) + 128*int(p[9])}
	}

	switch pkt.Command {
	case 0x03, CmdHBS:
		if len(p) < dataHeaderSize+crcSize+1 {
			return Packet{}, fmt.Errorf("%w: bulk packet of %d bytes", ErrBadPacket, len(p))
		}
		c := p[len(p)-1-crcSize : len(p)-1]
		var want uint32
		for i, x := range c {
			want |= uint32(x&0x7F) << (7 * i)
		}
		if got := crc32.ChecksumIEEE(p[1 : len(p)-1-crcSize]); got != want {
			return Packet{}, fmt.Errorf("%w: got %08X, packet says %08X", ErrBadCRC, got, want)
		}
		if pkt.Command == CmdHBS {
			data, err := Unpack7(p[dataHeaderSize : len(p)-1-crcSize])
			if err != nil {
				return Packet{}, err
			}
			pkt.Data = data
		}
	case CmdWrite:
		if len(p) > paramHeaderSize {
			pkt.Data = append([]byte(nil), p[paramHeaderSize:len(p)-1]...)
		}
	}
	return pkt, nil
}

// Framer cuts a raw MIDI byte stream into F0..F7 messages. A new F0 inside
// a message restarts it; any other status byte drops it.
type Framer struct {
	buf []byte
	in  bool
}

// Feed consumes b and returns the messages it completed.
func (f *Framer) Feed(b []byte) [][]byte {
	var out [][]byte
	for _, x := range b {
		switch {
		case x == sysExStart:
			f.buf = append(f.buf[:0], x)
			f.in = true
		case !f.in:
		case x == sysExEnd:
			out = append(out, append(append([]byte(nil), f.buf...), x))
			f.buf = f.buf[:0]
			f.in = false
		case x >= 0x80:
			f.buf = f.buf[:0]
			f.in = false
		default:
			f.buf = append(f.buf, x)
		}
	}
	return out
}

// EncodeNumber splits v into width 7-bit digits, least significant first.
func EncodeNumber(v, width int) []byte {
	out := make([]byte, width)
	for i := range out {
		out[i] = uint8(v & 0x7F)
		v >>= 7
	}
	return out
}

// DecodeNumber joins 1 to 5 7-bit digits, least significant first.
func DecodeNumber(d []byte) (int, error) {
	if len(d) < 1 || len(d) > 5 {
		return 0, fmt.Errorf("%w: %d-byte number", ErrMalformedInput, len(d))
	}
	v := 0
	for i, x := range d {
		if x >= 0x80 || (i == 4 && x >= 0x10) {
			return 0, fmt.Errorf("%w: digit %02X", ErrMalformedInput, x)
		}
		v |= int(x) << (7 * i)
	}
	return v, nil
}
