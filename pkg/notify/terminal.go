package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Theme defines the colours used for terminal toasts.
type Theme struct {
	Success lipgloss.Color
	Info    lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Muted   lipgloss.Color
}

// DefaultTheme returns the default toast colours.
func DefaultTheme() Theme {
	return Theme{
		Success: lipgloss.Color("10"),  // Green
		Info:    lipgloss.Color("12"),  // Blue
		Warning: lipgloss.Color("11"),  // Yellow
		Error:   lipgloss.Color("9"),   // Red
		Muted:   lipgloss.Color("240"), // Gray
	}
}

// Terminal renders notices as one-line toasts.
type Terminal struct {
	mu     sync.Mutex
	w      io.Writer
	styled bool
	theme  Theme
}

// NewTerminal writes to f, styling output only when f is a terminal.
func NewTerminal(f *os.File) *Terminal {
	styled := isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	return NewTerminalWriter(f, styled)
}

// NewTerminalWriter writes to w; styled selects lipgloss rendering.
func NewTerminalWriter(w io.Writer, styled bool) *Terminal {
	return &Terminal{w: w, styled: styled, theme: DefaultTheme()}
}

func (t *Terminal) Notify(_ context.Context, n Notice) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = fmt.Fprintln(t.w, t.render(n))
}

func (t *Terminal) render(n Notice) string {
	tag := badge(n.Level)
	line := n.Title
	if n.Message != "" {
		line += ": " + n.Message
	}
	if !t.styled {
		return tag + " " + line
	}

	tagStyle := lipgloss.NewStyle().Bold(true).Foreground(t.colour(n.Level))
	out := tagStyle.Render(tag) + " " + line
	if n.RequestID != "" {
		out += " " + lipgloss.NewStyle().Foreground(t.theme.Muted).Render("("+n.RequestID+")")
	}
	return out
}

func (t *Terminal) colour(l Level) lipgloss.Color {
	switch l {
	case LevelSuccess:
		return t.theme.Success
	case LevelWarning:
		return t.theme.Warning
	case LevelError:
		return t.theme.Error
	default:
		return t.theme.Info
	}
}

func badge(l Level) string {
	switch l {
	case LevelSuccess:
		return "[ok]"
	case LevelWarning:
		return "[pending]"
	case LevelError:
		return "[error]"
	default:
		return "[info]"
	}
}
