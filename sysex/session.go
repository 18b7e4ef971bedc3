package sysex

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go-ac7/debug"
	"go-ac7/kv"
)

// Port is a bidirectional MIDI connection able to carry SysEx.
type Port interface {
	Send(msg []byte) error
	// Receive delivers raw incoming bytes; chunks need not align with
	// message boundaries.
	Receive() <-chan []byte
	Close() error
}

// TransportTimeoutError is returned when the instrument does not answer in
// time. The session's port has been closed when it is returned.
type TransportTimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TransportTimeoutError) Error() string {
	return fmt.Sprintf("sysex: %s: no answer after %v", e.Op, e.After)
}

var (
	ErrInvalidSlot = errors.New("sysex: user rhythm numbers are 294-343")
	ErrPortClosed  = errors.New("sysex: port closed")
)

// User rhythm numbering as shown on the keyboard.
const (
	FirstUserRhythm = 294
	LastUserRhythm  = 343
	rhythmCategory  = 30
	userMemory      = 1
)

// Defaults for a new Session.
const (
	DefaultTimeout   = 4 * time.Second
	DefaultChunkSize = 0x80
	DefaultSettle    = 300 * time.Millisecond
)

// RhythmSlot maps a user rhythm number (294-343) to its parameter set.
func RhythmSlot(n int) (Address, error) {
	if n < FirstUserRhythm || n > LastUserRhythm {
		return Address{}, fmt.Errorf("%w: got %d", ErrInvalidSlot, n)
	}
	return Address{Category: rhythmCategory, Memory: userMemory, ParameterSet: n - FirstUserRhythm}, nil
}

// Progress is called after every transferred chunk.
type Progress func(done, total int)

// Session runs transfers over one port. It is not safe for concurrent use.
type Session struct {
	port Port

	// Timeout bounds every wait for an answer.
	Timeout time.Duration
	// ChunkSize is the number of data bytes per upload packet.
	ChunkSize int
	// Settle is the pause after the unacknowledged end-of-session packets.
	Settle time.Duration
	// Widths caches the digit count of numeric parameters. May be nil.
	Widths kv.Store

	framer Framer
	queue  []Packet
}

// NewSession creates a session with default timings.
func NewSession(port Port, widths kv.Store) *Session {
	return &Session{
		port:      port,
		Timeout:   DefaultTimeout,
		ChunkSize: DefaultChunkSize,
		Settle:    DefaultSettle,
		Widths:    widths,
	}
}

// Close closes the port.
func (s *Session) Close() error {
	return s.port.Close()
}

func (s *Session) send(msg []byte) error {
	debug.Log("sysex", "tx % X", msg)
	if err := s.port.Send(msg); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// drain discards input that arrived before a transfer starts.
func (s *Session) drain() {
	s.queue = nil
	s.framer = Framer{}
	for {
		select {
		case b, ok := <-s.port.Receive():
			if !ok {
				return
			}
			debug.Log("sysex", "drained % X", b)
		default:
			return
		}
	}
}

// wait returns the next packet accepted by match and discards the rest.
// The deadline covers the whole wait.
func (s *Session) wait(ctx context.Context, op string, match func(Packet) bool) (Packet, error) {
	timer := time.NewTimer(s.Timeout)
	defer timer.Stop()
	for {
		for len(s.queue) > 0 {
			p := s.queue[0]
			s.queue = s.queue[1:]
			if match(p) {
				return p, nil
			}
		}
		select {
		case <-ctx.Done():
			return Packet{}, ctx.Err()
		case <-timer.C:
			if err := s.port.Close(); err != nil {
				debug.Log("sysex", "close after timeout: %v", err)
			}
			return Packet{}, &TransportTimeoutError{Op: op, After: s.Timeout}
		case b, ok := <-s.port.Receive():
			if !ok {
				return Packet{}, ErrPortClosed
			}
			for _, msg := range s.framer.Feed(b) {
				p, err := Parse(msg)
				if err != nil {
					debug.Log("sysex", "rx dropped: %v", err)
					continue
				}
				debug.Log("sysex", "rx command %02X, %d data bytes", p.Command, len(p.Data))
				s.queue = append(s.queue, p)
			}
		}
	}
}

// waitAck waits for anything that acknowledges the last packet: ACK, ESS
// or a bulk data packet.
func (s *Session) waitAck(ctx context.Context, op string) (Packet, error) {
	return s.wait(ctx, op, func(p Packet) bool {
		switch p.Command {
		case CmdACK, CmdESS, CmdHBS:
			return true
		}
		return false
	})
}

func (s *Session) pause(ctx context.Context) error {
	if s.Settle <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.Settle):
		return nil
	}
}

// Upload writes data to a parameter set as a bulk transfer.
func (s *Session) Upload(ctx context.Context, a Address, data []byte, progress Progress) error {
	s.drain()
	if err := s.send(SBSPacket(SBSUpload)); err != nil {
		return err
	}
	if _, err := s.waitAck(ctx, "start upload"); err != nil {
		return err
	}

	chunk := s.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	for i := 0; i < len(data); i += chunk {
		end := min(i+chunk, len(data))
		if err := s.send(DataPacket(a, data[i:end])); err != nil {
			return err
		}
		if _, err := s.waitAck(ctx, fmt.Sprintf("upload byte %d", i)); err != nil {
			return err
		}
		debug.LogEvery(16, "sysex", "upload acked through byte %d", end)
		if progress != nil {
			progress(end, len(data))
		}
	}

	if err := s.send(ControlPacket(CmdESS, a)); err != nil {
		return err
	}
	if err := s.pause(ctx); err != nil {
		return err
	}
	if err := s.send(ControlPacket(CmdEBS, a)); err != nil {
		return err
	}
	debug.Log("sysex", "uploaded %d bytes to %+v", len(data), a)
	return s.pause(ctx)
}

// Download reads a parameter set as a bulk transfer. progress receives the
// byte count so far and a total of -1.
func (s *Session) Download(ctx context.Context, a Address, progress Progress) ([]byte, error) {
	s.drain()
	if err := s.send(SBSPacket(SBSDownload)); err != nil {
		return nil, err
	}
	if _, err := s.waitAck(ctx, "start download"); err != nil {
		return nil, err
	}
	if err := s.send(ControlPacket(CmdHBR, a)); err != nil {
		return nil, err
	}

	var data []byte
	for {
		p, err := s.waitAck(ctx, fmt.Sprintf("download byte %d", len(data)))
		if err != nil {
			return nil, err
		}
		if p.Command == CmdESS {
			break
		}
		if p.Command == CmdHBS {
			data = append(data, p.Data...)
			if progress != nil {
				progress(len(data), -1)
			}
		}
		if err := s.send(ControlPacket(CmdACK, a)); err != nil {
			return nil, err
		}
	}

	if err := s.send(ControlPacket(CmdEBS, a)); err != nil {
		return nil, err
	}
	debug.Log("sysex", "downloaded %d bytes from %+v", len(data), a)
	return data, s.pause(ctx)
}

// GetParameter reads the raw value of one parameter.
func (s *Session) GetParameter(ctx context.Context, p Param) ([]byte, error) {
	s.drain()
	if err := s.send(ReadPacket(p)); err != nil {
		return nil, err
	}
	resp, err := s.wait(ctx, fmt.Sprintf("read parameter %d", p.Parameter), func(r Packet) bool {
		return r.Command == CmdWrite
	})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// SetParameter writes a raw value. The instrument does not answer.
func (s *Session) SetParameter(ctx context.Context, p Param, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.Length = len(data)
	return s.send(WritePacket(p, data))
}

// GetNumber reads a numeric parameter.
func (s *Session) GetNumber(ctx context.Context, p Param) (int, error) {
	p.Length = 1
	d, err := s.GetParameter(ctx, p)
	if err != nil {
		return 0, err
	}
	return DecodeNumber(d)
}

// SetNumber writes a numeric parameter. The number of 7-bit digits the
// instrument expects is learned by reading the parameter once and kept in
// the width cache.
func (s *Session) SetNumber(ctx context.Context, p Param, v int) error {
	p.Length = 1
	width, err := s.width(ctx, p)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.send(WritePacket(p, EncodeNumber(v, width)))
}

func (s *Session) width(ctx context.Context, p Param) (int, error) {
	key := kv.Key{"width", strconv.Itoa(p.Category), strconv.Itoa(p.Parameter)}
	if s.Widths != nil {
		if b, err := s.Widths.Get(ctx, key); err == nil && len(b) == 1 {
			return int(b[0]), nil
		}
	}
	d, err := s.GetParameter(ctx, p)
	if err != nil {
		return 0, err
	}
	if len(d) < 1 || len(d) > 5 {
		return 0, fmt.Errorf("sysex: parameter %d answered with %d bytes", p.Parameter, len(d))
	}
	if s.Widths != nil {
		if err := s.Widths.Set(ctx, key, []byte{uint8(len(d))}); err != nil {
			debug.Log("sysex", "width cache: %v", err)
		}
	}
	return len(d), nil
}
