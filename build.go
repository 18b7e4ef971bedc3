package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"go-ac7/ac7"
	"go-ac7/theme"
	"go-ac7/widgets"
)

var buildCmd = &cobra.Command{
	Use:   "build <spec.json|spec.yaml> [out.ac7]",
	Short: "Encode a rhythm spec as an AC7 file",
	Long: `Encode a rhythm spec as an AC7 file. MIDI and tone files named in the
spec are read relative to the spec's directory. The file is written to
stdout when no output is given.

Example spec (rhythm.yaml):
  rhythm:
    name: Shuffle
    tempo: 96
    tracks:
      - part: 1
        element: 2
        source_file: drums.mid
        source_channel: 10`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := ac7.Load(args[0])
		if err != nil {
			return err
		}
		doc, err := ac7.Build(spec)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			_, err = cmd.OutOrStdout().Write(doc)
			return err
		}
		return saveToFile(args[1], doc)
	},
}

var inspectFormat string

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.ac7>",
	Short: "Show the structure of an AC7 file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		l, err := ac7.Inspect(data)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		return writeLayout(cmd.OutOrStdout(), l, inspectFormat, loadTheme())
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectFormat, "format", "text", "output format: text, json or yaml")
}

func writeLayout(w io.Writer, l *ac7.Layout, format string, th *theme.Theme) error {
	type report struct {
		Summary ac7.Summary `json:"summary" yaml:"summary"`
		Layout  *ac7.Layout `json:"layout" yaml:"layout"`
	}
	r := report{Summary: l.Summary(), Layout: l}

	switch format {
	case "json":
		b, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", b)
		return err
	case "yaml":
		b, err := yaml.Marshal(r)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	case "text":
		_, err := io.WriteString(w, renderLayout(th, l))
		return err
	}
	return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
}

func renderLayout(th *theme.Theme, l *ac7.Layout) string {
	headerStyle := lipgloss.NewStyle().Foreground(th.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(th.Muted())

	s := l.Summary()
	var out strings.Builder
	out.WriteString(headerStyle.Render(fmt.Sprintf("%s  %s  %dbpm  volume %d", s.Name, s.TimeSignature, s.Tempo, s.Volume)))
	out.WriteString("\n\n")
	for _, b := range l.Blocks {
		out.WriteString(fmt.Sprintf("  %s  at %#06x  %6d bytes  %3d items\n", b.Tag, b.Start, b.Length, len(b.Items)))
	}
	out.WriteString("\n")
	out.WriteString(widgets.RenderSlotGrid(th, l))
	out.WriteString("\n\n")
	for i, e := range l.Elements {
		m, _ := e.Atom(ac7.AtomMeasures)
		ts, _ := e.Atom(ac7.AtomTimeSignature)
		measures := 0
		if len(m.Payload) > 0 {
			measures = int(m.Payload[0])
		}
		var tags []string
		for _, a := range e.Atoms {
			tags = append(tags, fmt.Sprintf("%02x", a.Tag))
		}
		out.WriteString(dimStyle.Render(fmt.Sprintf("  %2d  ts %02x  measures %3d  atoms %s",
			i+1, ts.Payload, measures, strings.Join(tags, " "))))
		out.WriteString("\n")
	}
	out.WriteString("\n")
	out.WriteString(widgets.RenderLegend(th))
	out.WriteString("\n")
	return out.String()
}

// saveToFile saves data to a file
func saveToFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
