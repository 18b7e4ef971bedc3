package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	midiport "go-ac7/midi"
	"go-ac7/sysex"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	match := "casio"
	if len(os.Args) > 2 {
		match = os.Args[2]
	}

	switch os.Args[1] {
	case "list":
		listPorts()
	case "monitor":
		monitor(match)
	case "ping":
		ping(match)
	default:
		usage()
	}
}

func usage() {
	fmt.Println("SysEx Test Scripts")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list             - List all MIDI ports")
	fmt.Println("  monitor [match]  - Print Casio SysEx packets from the keyboard")
	fmt.Println("  ping [match]     - Open and close a bulk session, print the answers")
}

func listPorts() {
	fmt.Println("=== MIDI Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	ports, err := midiport.NewDeviceManager("").Ports()
	if err != nil {
		fmt.Println("\nTIMEOUT! CoreMIDI is hung.")
		fmt.Println("Fix: sudo killall coreaudiod midiserver")
		return
	}
	for i, p := range ports {
		fmt.Printf("  %d: %-40s in=%v out=%v\n", i, p.Name, p.In, p.Out)
	}
}

func open(match string) *midiport.Instrument {
	inst, err := midiport.NewDeviceManager(match).OpenInstrument()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Using %s\n", inst.Name())
	return inst
}

func monitor(match string) {
	inst := open(match)
	defer inst.Close()

	fmt.Println("Listening. Ctrl+C to exit.")
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	var f sysex.Framer
	for {
		select {
		case <-sig:
			return
		case b, ok := <-inst.Receive():
			if !ok {
				return
			}
			for _, msg := range f.Feed(b) {
				printPacket(msg)
			}
		}
	}
}

func ping(match string) {
	inst := open(match)
	defer inst.Close()

	a := sysex.Address{Category: 30, Memory: 1}
	send := func(name string, msg []byte) {
		fmt.Printf("-> %-4s % X\n", name, msg)
		if err := inst.Send(msg); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}

	send("SBS", sysex.SBSPacket(sysex.SBSDownload))
	wait(inst, 500*time.Millisecond)
	send("EBS", sysex.ControlPacket(sysex.CmdEBS, a))
	wait(inst, 500*time.Millisecond)

	// a plain message to show the port is alive on the keyboard display
	send("note", midi.NoteOn(0, 60, 1))
	send("off", midi.NoteOff(0, 60))
}

func wait(inst *midiport.Instrument, d time.Duration) {
	var f sysex.Framer
	deadline := time.After(d)
	for {
		select {
		case <-deadline:
			return
		case b, ok := <-inst.Receive():
			if !ok {
				return
			}
			for _, msg := range f.Feed(b) {
				printPacket(msg)
			}
		}
	}
}

var commandNames = map[uint8]string{
	sysex.CmdRead:  "READ",
	sysex.CmdWrite: "WRITE",
	sysex.CmdHBR:   "HBR",
	sysex.CmdHBS:   "HBS",
	sysex.CmdSBS:   "SBS",
	sysex.CmdACK:   "ACK",
	sysex.CmdBusy:  "BUSY",
	sysex.CmdESS:   "ESS",
	sysex.CmdEBS:   "EBS",
}

func printPacket(msg []byte) {
	ts := time.Now().Format("15:04:05.000")
	p, err := sysex.Parse(msg)
	if err != nil {
		fmt.Printf("[%s] <- ?    %v\n", ts, err)
		return
	}
	name, ok := commandNames[p.Command]
	if !ok {
		name = fmt.Sprintf("%02X", p.Command)
	}
	line := fmt.Sprintf("[%s] <- %-5s cat=%d mem=%d set=%d", ts, name, p.Address.Category, p.Address.Memory, p.Address.ParameterSet)
	if len(p.Data) > 0 {
		data := fmt.Sprintf("% X", p.Data[:min(len(p.Data), 16)])
		if len(p.Data) > 16 {
			data += " ..."
		}
		line += fmt.Sprintf(" %d bytes: %s", len(p.Data), strings.TrimSpace(data))
	}
	fmt.Println(line)
}
