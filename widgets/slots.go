package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go-ac7/ac7"
	"go-ac7/theme"
)

// PartLabels head the columns of the slot grid.
var PartLabels = [ac7.NumParts]string{"Drm", "Prc", "Bas", "Cd1", "Cd2", "Cd3", "Cd4", "Cd5"}

const cellWidth = 4

// RenderSlotGrid draws one row per element and one column per part.
func RenderSlotGrid(th *theme.Theme, l *ac7.Layout) string {
	dim := lipgloss.NewStyle().Foreground(th.Muted())
	busy := lipgloss.NewStyle().Foreground(th.Active())
	extra := lipgloss.NewStyle().Foreground(th.Warning())

	var lines []string
	var head strings.Builder
	head.WriteString("      ")
	for _, p := range PartLabels {
		head.WriteString(fmt.Sprintf("%-*s", cellWidth, p))
	}
	lines = append(lines, dim.Render(strings.TrimRight(head.String(), " ")))

	for i, e := range l.Elements {
		var line strings.Builder
		kind := " "
		if ac7.IsIntroOrEnding(i + 1) {
			kind = "*"
		}
		line.WriteString(fmt.Sprintf("  %2d%s ", i+1, kind))

		empty := true
		for _, tr := range e.Tracks {
			if !tr.Idle {
				empty = false
			}
		}
		for part := 1; part <= ac7.NumParts; part++ {
			var tracks []ac7.TrackRef
			for _, tr := range e.Tracks {
				if tr.Part == part {
					tracks = append(tracks, tr)
				}
			}
			var cell strings.Builder
			switch {
			case empty || len(tracks) == 0:
				cell.WriteString(dim.Render(string(th.Symbols.Omitted)))
			case tracks[0].Idle:
				cell.WriteString(dim.Render(string(th.Symbols.Idle)))
			default:
				cell.WriteString(busy.Render(string(th.Symbols.Busy)))
			}
			n := 1
			for i := 1; i < len(tracks) && n < cellWidth-1; i++ {
				cell.WriteString(extra.Render(string(th.Symbols.Extra)))
				n++
			}
			line.WriteString(cell.String())
			if part < ac7.NumParts {
				line.WriteString(strings.Repeat(" ", cellWidth-n))
			}
		}
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

// RenderLegend explains the grid symbols.
func RenderLegend(th *theme.Theme) string {
	s := th.Symbols
	items := []struct {
		sym   rune
		color lipgloss.Color
		name  string
		desc  string
	}{
		{s.Busy, th.Active(), "busy", "track with events"},
		{s.Idle, th.Muted(), "idle", "track that only waits"},
		{s.Extra, th.Warning(), "extra", "another track on the same part"},
		{s.Omitted, th.Muted(), "empty", "element without events"},
	}
	var lines []string
	for _, it := range items {
		lines = append(lines, RenderLegendItem(it.sym, it.color, it.name, it.desc))
	}
	lines = append(lines, "  *  intro or ending")
	return strings.Join(lines, "\n")
}

// RenderLegendItem renders a single legend item: "■ Name - description"
func RenderLegendItem(sym rune, color lipgloss.Color, name, desc string) string {
	style := lipgloss.NewStyle().Foreground(color)
	return fmt.Sprintf("  %s %s - %s", style.Render(string(sym)), name, desc)
}

// RenderKeyHelp formats key bindings in a friendly way
func RenderKeyHelp(sections []KeySection) string {
	var lines []string
	for _, sec := range sections {
		if sec.Title != "" {
			lines = append(lines, sec.Title)
		}
		for _, k := range sec.Keys {
			lines = append(lines, fmt.Sprintf("  %-12s %s", k.Key, k.Desc))
		}
	}
	return strings.Join(lines, "\n")
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}
