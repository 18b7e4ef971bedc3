package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-ac7/sysex"
	"go-ac7/theme"
	"go-ac7/widgets"
)

const barWidth = 32

// TransferFunc performs a transfer, reporting progress as it goes.
type TransferFunc func(ctx context.Context, progress sysex.Progress) ([]byte, error)

// ProgressMsg reports bytes transferred. Total is -1 when unknown.
type ProgressMsg struct {
	Done  int
	Total int
}

// DoneMsg ends the transfer.
type DoneMsg struct {
	Data []byte
	Err  error
}

type Model struct {
	Title string
	Theme *theme.Theme

	cancel     context.CancelFunc
	done       int
	total      int
	cancelling bool
	finished   bool
	data       []byte
	err        error
}

func NewModel(title string, th *theme.Theme, cancel context.CancelFunc) Model {
	return Model{
		Title:  title,
		Theme:  th,
		cancel: cancel,
		total:  -1,
	}
}

// Result returns the transfer outcome once DoneMsg has arrived.
func (m Model) Result() ([]byte, error) {
	if !m.finished {
		return nil, errors.New("transfer did not finish")
	}
	return m.data, m.err
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			// wait for the transfer to notice; the port must not be left
			// mid-session
			if !m.cancelling && m.cancel != nil {
				m.cancel()
			}
			m.cancelling = true
		}

	case ProgressMsg:
		m.done, m.total = msg.Done, msg.Total

	case DoneMsg:
		m.finished = true
		m.data, m.err = msg.Data, msg.Err
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) View() string {
	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())

	var out strings.Builder
	out.WriteString("\n  ")
	out.WriteString(headerStyle.Render(m.Title))
	out.WriteString("\n\n  ")

	switch {
	case m.finished && m.err != nil:
		out.WriteString(lipgloss.NewStyle().Foreground(m.Theme.Warning()).Render("failed: " + m.err.Error()))
	case m.finished:
		out.WriteString(lipgloss.NewStyle().Foreground(m.Theme.Success()).Render(fmt.Sprintf("done, %d bytes", m.done)))
	default:
		out.WriteString(m.bar())
	}
	out.WriteString("\n\n")

	if m.cancelling && !m.finished {
		out.WriteString(dimStyle.Render("  cancelling..."))
	} else if !m.finished {
		out.WriteString(dimStyle.Render(widgets.RenderKeyHelp([]widgets.KeySection{{
			Keys: []widgets.KeyBinding{{Key: "q", Desc: "cancel transfer"}},
		}})))
	}
	out.WriteString("\n")
	return out.String()
}

func (m Model) bar() string {
	if m.total <= 0 {
		return fmt.Sprintf("%d bytes", m.done)
	}
	frac := float64(m.done) / float64(m.total)
	frac = min(max(frac, 0), 1)
	full := int(frac * barWidth)

	fill := lipgloss.NewStyle().Foreground(m.Theme.Color(0.3 + 0.7*frac))
	empty := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	return fmt.Sprintf("%s%s %3d%%  %d/%d bytes",
		fill.Render(strings.Repeat(string(m.Theme.Symbols.BarFull), full)),
		empty.Render(strings.Repeat(string(m.Theme.Symbols.BarEmpty), barWidth-full)),
		int(frac*100), m.done, m.total)
}

// Transfer runs fn under a progress view until it returns.
func Transfer(ctx context.Context, title string, th *theme.Theme, fn TransferFunc, opts ...tea.ProgramOption) ([]byte, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewModel(title, th, cancel), opts...)
	go func() {
		data, err := fn(ctx, func(done, total int) {
			p.Send(ProgressMsg{Done: done, Total: total})
		})
		p.Send(DoneMsg{Data: data, Err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	return final.(Model).Result()
}
