package midi

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver

	"go-ac7/debug"
)

var (
	ErrNoInstrument = errors.New("midi: no matching instrument")
	// ErrPortsTimeout means the driver did not answer; on macOS CoreMIDI
	// recovers after `sudo killall coreaudiod midiserver`.
	ErrPortsTimeout = errors.New("midi: listing ports timed out")
)

// DeviceEvent is emitted when a matching port appears or goes away
type DeviceEvent struct {
	Type DeviceEventType
	Name string
}

type DeviceEventType int

const (
	DeviceConnected DeviceEventType = iota
	DeviceDisconnected
)

func (t DeviceEventType) String() string {
	if t == DeviceConnected {
		return "connected"
	}
	return "disconnected"
}

// PortInfo describes a port name and the directions it is available in.
type PortInfo struct {
	Name string
	In   bool
	Out  bool
}

// DeviceManager finds instruments by port name and watches for hot-plug.
type DeviceManager struct {
	match       string
	present     map[string]bool
	mu          sync.Mutex
	events      chan DeviceEvent
	pollRate    time.Duration
	scanTimeout time.Duration
}

// NewDeviceManager creates a manager matching port names that contain
// match, ignoring case. An empty match accepts every port.
func NewDeviceManager(match string) *DeviceManager {
	return &DeviceManager{
		match:       match,
		present:     make(map[string]bool),
		events:      make(chan DeviceEvent, 16),
		pollRate:    time.Second,
		scanTimeout: 3 * time.Second,
	}
}

// Events returns a channel of connect/disconnect events. It is closed when
// Run returns.
func (dm *DeviceManager) Events() <-chan DeviceEvent {
	return dm.events
}

// Ports lists every visible port.
func (dm *DeviceManager) Ports() ([]PortInfo, error) {
	ins, outs, err := dm.query()
	if err != nil {
		return nil, err
	}
	return mergePorts(portNames(ins), portNames(outs)), nil
}

// OpenInstrument opens the first input and output whose names match.
func (dm *DeviceManager) OpenInstrument() (*Instrument, error) {
	ins, outs, err := dm.query()
	if err != nil {
		return nil, err
	}
	i := pick(portNames(ins), dm.match)
	o := pick(portNames(outs), dm.match)
	if i < 0 || o < 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoInstrument, dm.match)
	}
	return NewInstrument(ins[i].String(), ins[i], outs[o])
}

// Run polls for matching ports until ctx is done (blocking - run in goroutine)
func (dm *DeviceManager) Run(ctx context.Context) {
	ticker := time.NewTicker(dm.pollRate)
	defer ticker.Stop()
	defer close(dm.events)

	dm.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dm.scan(ctx)
		}
	}
}

func (dm *DeviceManager) scan(ctx context.Context) {
	ins, _, err := dm.query()
	if err != nil {
		// skip this scan
		debug.Log("midi", "scan: %v", err)
		return
	}
	for _, ev := range dm.update(portNames(ins)) {
		debug.Log("midi", "%s %s", ev.Name, ev.Type)
		select {
		case dm.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// update records the matching names now visible and returns what changed.
func (dm *DeviceManager) update(names []string) []DeviceEvent {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	seen := make(map[string]bool)
	var out []DeviceEvent
	for _, name := range names {
		if !matches(name, dm.match) {
			continue
		}
		seen[name] = true
		if !dm.present[name] {
			out = append(out, DeviceEvent{Type: DeviceConnected, Name: name})
		}
	}
	var gone []string
	for name := range dm.present {
		if !seen[name] {
			gone = append(gone, name)
		}
	}
	slices.Sort(gone)
	for _, name := range gone {
		out = append(out, DeviceEvent{Type: DeviceDisconnected, Name: name})
	}
	dm.present = seen
	return out
}

// query lists ports with a timeout (CoreMIDI can hang)
func (dm *DeviceManager) query() ([]drivers.In, []drivers.Out, error) {
	type portsResult struct {
		inPorts  []drivers.In
		outPorts []drivers.Out
	}
	ch := make(chan portsResult, 1)
	go func() {
		inPorts := gomidi.GetInPorts()
		outPorts := gomidi.GetOutPorts()
		ch <- portsResult{inPorts: inPorts, outPorts: outPorts}
	}()

	select {
	case r := <-ch:
		return r.inPorts, r.outPorts, nil
	case <-time.After(dm.scanTimeout):
		return nil, nil, ErrPortsTimeout
	}
}

func portNames[P interface{ String() string }](ports []P) []string {
	names := make([]string, len(ports))
	for i, p := range ports {
		names[i] = p.String()
	}
	return names
}

func matches(name, match string) bool {
	return strings.Contains(strings.ToLower(name), strings.ToLower(match))
}

func pick(names []string, match string) int {
	return slices.IndexFunc(names, func(n string) bool { return matches(n, match) })
}

// mergePorts joins input and output names, inputs first.
func mergePorts(ins, outs []string) []PortInfo {
	var out []PortInfo
	index := make(map[string]int)
	for _, n := range ins {
		if _, ok := index[n]; !ok {
			index[n] = len(out)
			out = append(out, PortInfo{Name: n})
		}
		out[index[n]].In = true
	}
	for _, n := range outs {
		if _, ok := index[n]; !ok {
			index[n] = len(out)
			out = append(out, PortInfo{Name: n})
		}
		out[index[n]].Out = true
	}
	return out
}
