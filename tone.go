package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go-ac7/tone"
)

var toneCmd = &cobra.Command{
	Use:   "tone",
	Short: "Show or copy the DSP chain of a tone file",
	Long: `Show or copy the DSP chain of a .TON tone file. A rhythm part with a
tone file set in its spec carries the tone's DSP chain.`,
}

var toneShowCmd = &cobra.Command{
	Use:   "show <file.ton>",
	Short: "Print the model and DSP chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := readTone(args[0])
		if err != nil {
			return err
		}
		chain, err := tone.DSPChain(f.Body)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "model %s, %d byte body\n", f.Model, len(f.Body))
		if len(chain) == 0 {
			fmt.Fprintln(w, "  no DSP effects")
		}
		for i, e := range chain {
			fmt.Fprintf(w, "  %d: type %3d  params % X\n", i+1, e.Type, e.Params)
		}
		return nil
	},
}

var toneCopyDSPCmd = &cobra.Command{
	Use:   "copy-dsp <from.ton> <to.ton> [out.ton]",
	Short: "Copy the DSP chain of one tone into another",
	Long: `Copy the DSP chain of one tone into another. The target is rewritten in
place unless an output file is given.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := readTone(args[0])
		if err != nil {
			return err
		}
		to, err := readTone(args[1])
		if err != nil {
			return err
		}
		chain, err := tone.DSPChain(from.Body)
		if err != nil {
			return err
		}
		if err := tone.SetDSPChain(to.Body, chain); err != nil {
			return err
		}
		out := args[1]
		if len(args) == 3 {
			out = args[2]
		}
		return saveToFile(out, tone.Wrap(to.Model, to.Body))
	},
}

func init() {
	toneCmd.AddCommand(toneShowCmd, toneCopyDSPCmd)
}

func readTone(path string) (*tone.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := tone.Read(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}
