package tui

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"go-ac7/sysex"
	"go-ac7/theme"
)

func TestUpdateProgress(t *testing.T) {
	m := NewModel("Uploading", theme.Default(), nil)
	next, cmd := m.Update(ProgressMsg{Done: 64, Total: 128})
	if cmd != nil {
		t.Error("progress should not return a command")
	}
	view := next.(Model).View()
	if !strings.Contains(view, " 50%  64/128 bytes") {
		t.Errorf("view = %q", view)
	}
	if !strings.Contains(view, "cancel transfer") {
		t.Errorf("missing key help: %q", view)
	}
}

func TestUpdateUnknownTotal(t *testing.T) {
	m := NewModel("Downloading", theme.Default(), nil)
	next, _ := m.Update(ProgressMsg{Done: 300, Total: -1})
	if view := next.(Model).View(); !strings.Contains(view, "300 bytes") {
		t.Errorf("view = %q", view)
	}
}

func TestCancelWaitsForDone(t *testing.T) {
	cancelled := 0
	m := NewModel("Uploading", theme.Default(), func() { cancelled++ })

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd != nil {
		t.Error("cancel should not quit before the transfer stops")
	}
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cancelled != 1 {
		t.Errorf("cancel called %d times", cancelled)
	}
	if view := next.(Model).View(); !strings.Contains(view, "cancelling") {
		t.Errorf("view = %q", view)
	}

	next, cmd = next.Update(DoneMsg{Err: context.Canceled})
	if cmd == nil {
		t.Fatal("done should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("done command is not tea.Quit")
	}
	if _, err := next.(Model).Result(); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}

func TestResultBeforeDone(t *testing.T) {
	if _, err := NewModel("x", theme.Default(), nil).Result(); err == nil {
		t.Error("expected error")
	}
}

func TestTransfer(t *testing.T) {
	fn := func(ctx context.Context, progress sysex.Progress) ([]byte, error) {
		progress(2, 4)
		progress(4, 4)
		return []byte("AC07"), nil
	}
	var out bytes.Buffer
	data, err := Transfer(context.Background(), "Downloading", theme.Default(), fn,
		tea.WithInput(nil), tea.WithOutput(&out), tea.WithoutSignalHandler())
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if string(data) != "AC07" {
		t.Errorf("data = %q", data)
	}
}

func TestTransferError(t *testing.T) {
	boom := errors.New("no answer")
	fn := func(context.Context, sysex.Progress) ([]byte, error) { return nil, boom }
	_, err := Transfer(context.Background(), "Uploading", theme.Default(), fn,
		tea.WithInput(nil), tea.WithOutput(io.Discard), tea.WithoutSignalHandler())
	if !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
}
