// Command ac7 builds AC7 rhythm files for Casio CT-X keyboards and moves
// them to and from the instrument over MIDI.
//
// Usage:
//
//	ac7 [flags] <command> [args]
//
// Commands:
//
//	build         - encode a rhythm spec (JSON or YAML) as an AC7 file
//	inspect       - show the structure of an AC7 file
//	upload        - send an AC7 file to a user rhythm slot
//	download      - read a user rhythm slot
//	param         - read or write a single parameter
//	ports         - list MIDI ports
//	tone          - show or copy the DSP chain of a tone file
//	registration  - write a registration bank
//
// Configuration:
//
//	~/.config/go-ac7/config.json, see the config package.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go-ac7/config"
	"go-ac7/debug"
	"go-ac7/theme"
)

var (
	configPath string
	debugFlag  bool

	// cfg is loaded before any command runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ac7",
	Short: "Casio AC7 rhythm builder and transfer tool",
	Long: `Build AC7 rhythm files from MIDI and a rhythm spec, inspect them, and
transfer them to the user rhythm slots (294-343) of a CT-X keyboard.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configPath != "" {
			cfg, err = config.LoadFile(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if debugFlag || cfg.Debug {
			if err := debug.Enable(config.LogPath()); err != nil {
				return fmt.Errorf("enable debug log: %w", err)
			}
		}
		debug.Log("cli", "%s %v", cmd.CommandPath(), args)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/go-ac7/config.json)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "write a debug log to ~/.config/go-ac7/debug.log")

	rootCmd.AddCommand(buildCmd, inspectCmd)
	rootCmd.AddCommand(uploadCmd, downloadCmd, paramCmd, portsCmd)
	rootCmd.AddCommand(toneCmd, registrationCmd)
}

// loadTheme returns the configured palette, falling back to the built-in
// one when the file cannot be read.
func loadTheme() *theme.Theme {
	th, err := theme.Load(cfg.Theme.Palette)
	if err != nil {
		debug.Log("cli", "palette %s: %v", cfg.Theme.Palette, err)
		return theme.Default()
	}
	return th
}

func main() {
	defer debug.Disable()
	if err := rootCmd.Execute(); err != nil {
		debug.Log("cli", "error: %v", err)
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
