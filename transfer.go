package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"go-ac7/ac7"
	"go-ac7/debug"
	"go-ac7/kv"
	"go-ac7/midi"
	"go-ac7/sysex"
	"go-ac7/tui"
)

var uploadForce bool

var uploadCmd = &cobra.Command{
	Use:   "upload <slot 294-343> <file.ac7>",
	Short: "Send an AC7 file to a user rhythm slot",
	Long: `Send an AC7 file to a user rhythm slot. Files that do not parse as AC7
are refused unless --force is given.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := slotArg(args[0])
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		if err := checkUpload(cmd.ErrOrStderr(), args[1], data, uploadForce); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		s, closeSession, err := openSession()
		if err != nil {
			return err
		}
		defer closeSession()

		title := fmt.Sprintf("Uploading %s to rhythm %s", args[1], args[0])
		_, err = runTransfer(ctx, title, func(ctx context.Context, progress sysex.Progress) ([]byte, error) {
			return nil, s.Upload(ctx, a, data, progress)
		})
		return err
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <slot 294-343> [out.ac7]",
	Short: "Read a user rhythm slot",
	Long: `Read a user rhythm slot. The file is written to stdout when no output is
given.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := slotArg(args[0])
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		s, closeSession, err := openSession()
		if err != nil {
			return err
		}
		defer closeSession()

		title := "Downloading rhythm " + args[0]
		data, err := runTransfer(ctx, title, func(ctx context.Context, progress sysex.Progress) ([]byte, error) {
			return s.Download(ctx, a, progress)
		})
		if err != nil {
			return err
		}
		if len(args) == 1 {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		return saveToFile(args[1], data)
	},
}

var paramCmd = &cobra.Command{
	Use:   "param",
	Short: "Read or write a single numeric parameter",
	Long: `Read or write a single numeric parameter.

Examples:
  ac7 param get 3 3 0 43       # category, memory, parameter set, parameter
  ac7 param set 3 3 0 43 64`,
}

var paramGetCmd = &cobra.Command{
	Use:   "get <category> <memory> <set> <parameter>",
	Short: "Read a numeric parameter",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := paramArgs(args)
		if err != nil {
			return err
		}
		s, closeSession, err := openSession()
		if err != nil {
			return err
		}
		defer closeSession()

		v, err := s.GetNumber(cmd.Context(), p)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	},
}

var paramSetCmd = &cobra.Command{
	Use:   "set <category> <memory> <set> <parameter> <value>",
	Short: "Write a numeric parameter",
	Args:  cobra.ExactArgs(5),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := paramArgs(args[:4])
		if err != nil {
			return err
		}
		v, err := strconv.Atoi(args[4])
		if err != nil {
			return fmt.Errorf("value: %w", err)
		}
		s, closeSession, err := openSession()
		if err != nil {
			return err
		}
		defer closeSession()
		return s.SetNumber(cmd.Context(), p, v)
	},
}

var portsWatch bool

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI ports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dm := midi.NewDeviceManager(cfg.Device.PortName)
		ports, err := dm.Ports()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, p := range ports {
			dir := ""
			if p.In {
				dir += "in "
			}
			if p.Out {
				dir += "out"
			}
			fmt.Fprintf(w, "  %-7s %s\n", dir, p.Name)
		}
		if !portsWatch {
			return nil
		}

		fmt.Fprintf(w, "\nwatching for %q, ctrl+c to stop\n", cfg.Device.PortName)
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		go dm.Run(ctx)
		for ev := range dm.Events() {
			fmt.Fprintf(w, "[%s] %s %s\n", time.Now().Format("15:04:05"), ev.Type, ev.Name)
		}
		return nil
	},
}

func init() {
	paramCmd.AddCommand(paramGetCmd, paramSetCmd)
	uploadCmd.Flags().BoolVar(&uploadForce, "force", false, "upload files that do not parse as AC7")
	portsCmd.Flags().BoolVarP(&portsWatch, "watch", "w", false, "keep watching for the instrument to connect or disconnect")
}

// checkUpload refuses data Inspect rejects. With force it only warns:
// files from other tools may frame elements differently.
func checkUpload(w io.Writer, name string, data []byte, force bool) error {
	_, err := ac7.Inspect(data)
	if err == nil {
		return nil
	}
	if !force {
		return fmt.Errorf("%s is not a valid AC7 file: %w (use --force to send it anyway)", name, err)
	}
	if len(data) < 4 || string(data[:4]) != ac7.Magic {
		return fmt.Errorf("%s has no AC07 header", name)
	}
	fmt.Fprintf(w, "warning: %s: %v\n", name, err)
	return nil
}

func slotArg(s string) (sysex.Address, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return sysex.Address{}, fmt.Errorf("slot: %w", err)
	}
	return sysex.RhythmSlot(n)
}

func paramArgs(args []string) (sysex.Param, error) {
	var v [4]int
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return sysex.Param{}, fmt.Errorf("argument %d: %w", i+1, err)
		}
		v[i] = n
	}
	return sysex.Param{
		Address:   sysex.Address{Category: v[0], Memory: v[1], ParameterSet: v[2]},
		Parameter: v[3],
	}, nil
}

// openSession connects to the configured instrument. The width cache lives
// in BadgerDB unless no cache directory can be found.
func openSession() (*sysex.Session, func(), error) {
	inst, err := midi.NewDeviceManager(cfg.Device.PortName).OpenInstrument()
	if err != nil {
		return nil, nil, err
	}

	var widths kv.Store
	if dir := cfg.CacheDir(); dir != "" {
		db, err := kv.NewBadger(kv.BadgerOptions{Dir: dir})
		if err != nil {
			debug.Log("cli", "width cache at %s: %v", dir, err)
		} else {
			widths = db
		}
	}
	if widths == nil {
		widths = kv.NewMemory()
	}

	s := sysex.NewSession(inst, widths)
	if t := cfg.AckTimeout(); t > 0 {
		s.Timeout = t
	}
	if cfg.Transfer.ChunkSize > 0 {
		s.ChunkSize = cfg.Transfer.ChunkSize
	}
	s.Settle = cfg.Settle()

	return s, func() {
		if err := s.Close(); err != nil {
			debug.Log("cli", "close %s: %v", inst.Name(), err)
		}
		if err := widths.Close(); err != nil {
			debug.Log("cli", "close width cache: %v", err)
		}
	}, nil
}

// runTransfer shows a progress view on a terminal and plain lines
// otherwise. Both go to stderr so downloads can be piped.
func runTransfer(ctx context.Context, title string, fn tui.TransferFunc) ([]byte, error) {
	var data []byte
	var err error
	if isatty.IsTerminal(os.Stderr.Fd()) && isatty.IsTerminal(os.Stdin.Fd()) {
		data, err = tui.Transfer(ctx, title, loadTheme(), fn, tea.WithOutput(os.Stderr))
	} else {
		fmt.Fprintln(os.Stderr, title)
		last := -1
		data, err = fn(ctx, func(done, total int) {
			if total > 0 && done*10/total != last {
				last = done * 10 / total
				fmt.Fprintf(os.Stderr, "  %d/%d bytes\n", done, total)
			}
		})
	}
	var timeout *sysex.TransportTimeoutError
	if errors.As(err, &timeout) {
		return nil, fmt.Errorf("%w (is the keyboard connected and idle?)", err)
	}
	return data, err
}
