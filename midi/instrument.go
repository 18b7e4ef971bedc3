package midi

import (
	"errors"
	"fmt"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"go-ac7/debug"
)

// sysExBufferSize fits the largest bulk data packet with room to spare.
const sysExBufferSize = 1024

var ErrInstrumentClosed = errors.New("midi: instrument closed")

// Instrument is an open in/out port pair carrying SysEx to and from a
// keyboard. It satisfies sysex.Port.
type Instrument struct {
	name     string
	inPort   drivers.In
	outPort  drivers.Out
	send     func(msg gomidi.Message) error
	stopFunc func()

	mu     sync.Mutex
	closed bool
	rx     chan []byte
}

// NewInstrument opens both ports and starts listening for SysEx.
func NewInstrument(name string, inPort drivers.In, outPort drivers.Out) (*Instrument, error) {
	if inPort == nil || outPort == nil {
		return nil, fmt.Errorf("%s: need both an input and an output port", name)
	}
	inst := &Instrument{
		name:    name,
		inPort:  inPort,
		outPort: outPort,
		rx:      make(chan []byte, 256),
	}

	send, err := gomidi.SendTo(outPort)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	inst.send = send

	stop, err := gomidi.ListenTo(inPort, inst.receive,
		gomidi.UseSysEx(),
		gomidi.SysExBufferSize(sysExBufferSize),
		gomidi.HandleError(func(err error) {
			debug.Log("midi", "%s: listen error: %v", name, err)
		}))
	if err != nil {
		outPort.Close()
		return nil, fmt.Errorf("open input: %w", err)
	}
	inst.stopFunc = stop

	debug.Log("midi", "opened %s (in %q, out %q)", name, inPort.String(), outPort.String())
	return inst, nil
}

func (inst *Instrument) receive(msg gomidi.Message, _ int32) {
	if len(msg) == 0 || msg[0] != 0xF0 {
		return
	}
	b := append([]byte(nil), msg...)

	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.closed {
		return
	}
	select {
	case inst.rx <- b:
	default:
		debug.Log("midi", "%s: receive queue full, dropped %d bytes", inst.name, len(b))
	}
}

// Name returns the port name the instrument was found under.
func (inst *Instrument) Name() string {
	return inst.name
}

// Send writes one complete F0..F7 message.
func (inst *Instrument) Send(msg []byte) error {
	inst.mu.Lock()
	closed := inst.closed
	inst.mu.Unlock()
	if closed {
		return ErrInstrumentClosed
	}
	return inst.send(gomidi.Message(msg))
}

// Receive delivers incoming SysEx messages. The channel is closed by Close.
func (inst *Instrument) Receive() <-chan []byte {
	return inst.rx
}

// Close stops listening and closes both ports. It may be called more than
// once.
func (inst *Instrument) Close() error {
	inst.mu.Lock()
	if inst.closed {
		inst.mu.Unlock()
		return nil
	}
	inst.closed = true
	close(inst.rx)
	inst.mu.Unlock()

	if inst.stopFunc != nil {
		inst.stopFunc()
	}
	errIn := inst.inPort.Close()
	errOut := inst.outPort.Close()
	debug.Log("midi", "closed %s", inst.name)
	return errors.Join(errIn, errOut)
}
