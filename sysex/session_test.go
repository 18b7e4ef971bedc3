package sysex

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go-ac7/debug"
	"go-ac7/kv"
)

// fakeKeyboard answers host packets the way the instrument does.
type fakeKeyboard struct {
	mu     sync.Mutex
	rx     chan []byte
	sent   [][]byte
	closed   bool
	closeErr error
	mute     bool

	stored   []byte   // bulk data received
	outgoing [][]byte // bulk data to send on HBR, one packet each
	params   map[int][]byte
}

func newFakeKeyboard() *fakeKeyboard {
	return &fakeKeyboard{rx: make(chan []byte, 64), params: make(map[int][]byte)}
}

func (k *fakeKeyboard) Receive() <-chan []byte { return k.rx }

func (k *fakeKeyboard) Close() error {
	k.mu.Lock()
	k.closed = true
	k.mu.Unlock()
	return k.closeErr
}

func (k *fakeKeyboard) Send(msg []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.sent = append(k.sent, append([]byte(nil), msg...))
	if k.mute {
		return nil
	}
	pkt, err := Parse(msg)
	if err != nil {
		return err
	}
	a := Address{Category: 30, Memory: 1}
	switch pkt.Command {
	case CmdSBS:
		// busy first, then the ACK split across two reads
		ack := ControlPacket(CmdACK, a)
		k.rx <- ControlPacket(CmdBusy, a)
		k.rx <- ack[:3]
		k.rx <- ack[3:]
	case CmdHBS:
		k.stored = append(k.stored, pkt.Data...)
		k.rx <- ControlPacket(CmdACK, pkt.Address)
	case CmdHBR, CmdACK:
		if len(k.outgoing) == 0 {
			k.rx <- ControlPacket(CmdESS, pkt.Address)
			break
		}
		k.rx <- DataPacket(pkt.Address, k.outgoing[0])
		k.outgoing = k.outgoing[1:]
	case CmdRead:
		if v, ok := k.params[int(msg[18])]; ok {
			k.rx <- WritePacket(Param{Address: pkt.Address, Parameter: int(msg[18])}, v)
		}
	case CmdWrite:
		k.params[int(msg[18])] = pkt.Data
	}
	return nil
}

func (k *fakeKeyboard) commands() []uint8 {
	k.mu.Lock()
	defer k.mu.Unlock()
	var out []uint8
	for _, m := range k.sent {
		out = append(out, m[5])
	}
	return out
}

func newTestSession(k *fakeKeyboard, widths kv.Store) *Session {
	s := NewSession(k, widths)
	s.Timeout = time.Second
	s.Settle = 0
	return s
}

func TestRhythmSlot(t *testing.T) {
	a, err := RhythmSlot(294)
	if err != nil || a != (Address{30, 1, 0}) {
		t.Errorf("294 = %+v, %v", a, err)
	}
	a, err = RhythmSlot(343)
	if err != nil || a.ParameterSet != 49 {
		t.Errorf("343 = %+v, %v", a, err)
	}
	for _, n := range []int{293, 344, 0} {
		if _, err := RhythmSlot(n); !errors.Is(err, ErrInvalidSlot) {
			t.Errorf("%d: err = %v", n, err)
		}
	}
}

func TestUpload(t *testing.T) {
	k := newFakeKeyboard()
	s := newTestSession(k, nil)
	data := bytes.Repeat([]byte{0xA5, 0x00, 0x7F, 0x80}, 100) // 400 bytes

	var calls []int
	a, _ := RhythmSlot(300)
	err := s.Upload(context.Background(), a, data, func(done, total int) {
		if total != len(data) {
			t.Errorf("total = %d", total)
		}
		calls = append(calls, done)
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !bytes.Equal(k.stored, data) {
		t.Errorf("keyboard stored %d bytes, want %d", len(k.stored), len(data))
	}
	want := []int{128, 256, 384, 400}
	if len(calls) != len(want) || calls[3] != 400 {
		t.Errorf("progress = %v, want %v", calls, want)
	}
	cmds := k.commands()
	wantCmds := []uint8{CmdSBS, CmdHBS, CmdHBS, CmdHBS, CmdHBS, CmdESS, CmdEBS}
	if !bytes.Equal(cmds, wantCmds) {
		t.Errorf("commands = % X, want % X", cmds, wantCmds)
	}
}

func TestDownload(t *testing.T) {
	k := newFakeKeyboard()
	k.outgoing = [][]byte{[]byte("AC07"), bytes.Repeat([]byte{0xEE}, 128), {0x01}}
	s := newTestSession(k, nil)

	var last int
	data, err := s.Download(context.Background(), Address{30, 1, 7}, func(done, _ int) { last = done })
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	want := append(append([]byte("AC07"), bytes.Repeat([]byte{0xEE}, 128)...), 0x01)
	if !bytes.Equal(data, want) {
		t.Errorf("got %d bytes, want %d", len(data), len(want))
	}
	if last != len(want) {
		t.Errorf("progress ended at %d", last)
	}
	cmds := k.commands()
	wantCmds := []uint8{CmdSBS, CmdHBR, CmdACK, CmdACK, CmdACK, CmdEBS}
	if !bytes.Equal(cmds, wantCmds) {
		t.Errorf("commands = % X, want % X", cmds, wantCmds)
	}
}

func TestTimeoutClosesPort(t *testing.T) {
	k := newFakeKeyboard()
	k.mute = true
	s := newTestSession(k, nil)
	s.Timeout = 20 * time.Millisecond

	err := s.Upload(context.Background(), Address{30, 1, 0}, []byte{1}, nil)
	var timeout *TransportTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("err = %v, want TransportTimeoutError", err)
	}
	if !k.closed {
		t.Error("port left open")
	}
}

func TestTimeoutLogsCloseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	if err := debug.Enable(path); err != nil {
		t.Fatal(err)
	}
	k := newFakeKeyboard()
	k.mute = true
	k.closeErr = errors.New("port gone")
	s := newTestSession(k, nil)
	s.Timeout = 20 * time.Millisecond

	_, err := s.Download(context.Background(), Address{30, 1, 0}, nil)
	debug.Disable()
	var timeout *TransportTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("err = %v, want TransportTimeoutError", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "close after timeout: port gone") {
		t.Errorf("close error not logged:\n%s", b)
	}
}

func TestContextCancel(t *testing.T) {
	k := newFakeKeyboard()
	k.mute = true
	s := newTestSession(k, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Download(ctx, Address{30, 1, 0}, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}

func TestParameters(t *testing.T) {
	ctx := context.Background()
	k := newFakeKeyboard()
	k.params[43] = []byte{0x05, 0x00}
	widths := kv.NewMemory()
	s := newTestSession(k, widths)
	p := Param{Address: Address{3, 3, 0}, Parameter: 43}

	v, err := s.GetNumber(ctx, p)
	if err != nil || v != 5 {
		t.Fatalf("GetNumber = %d, %v", v, err)
	}

	if err := s.SetNumber(ctx, p, 200); err != nil {
		t.Fatalf("SetNumber: %v", err)
	}
	if got := k.params[43]; !bytes.Equal(got, []byte{0x48, 0x01}) {
		t.Errorf("stored % X", got)
	}
	w, err := widths.Get(ctx, kv.Key{"width", "3", "43"})
	if err != nil || w[0] != 2 {
		t.Errorf("cached width = %v, %v", w, err)
	}

	// a cached width skips the read
	before := len(k.commands())
	if err := s.SetNumber(ctx, p, 7); err != nil {
		t.Fatal(err)
	}
	if cmds := k.commands()[before:]; len(cmds) != 1 || cmds[0] != CmdWrite {
		t.Errorf("commands = % X", cmds)
	}

	if err := s.SetParameter(ctx, Param{Address: Address{3, 1, 8}, Parameter: 0}, []byte("ABCDEFGHIJK")); err != nil {
		t.Fatal(err)
	}
	name, err := s.GetParameter(ctx, Param{Address: Address{3, 1, 8}, Parameter: 0, Length: 11})
	if err != nil || string(name) != "ABCDEFGHIJK" {
		t.Errorf("name = %q, %v", name, err)
	}
}
