// Package color provides terminal color output for issuer.
// It respects the NO_COLOR environment variable (https://no-color.org/).
// Styles are rendered with lipgloss, which additionally drops colors when
// stdout is not a terminal.
package color

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
)

var state struct {
	once    sync.Once
	enabled atomic.Bool
}

// Init initializes color support from the environment and the --no-color flag.
func Init(noColorFlag bool) {
	state.once.Do(func() {
		enabled := true
		if _, ok := os.LookupEnv("NO_COLOR"); ok {
			enabled = false
		}
		if os.Getenv("TERM") == "dumb" {
			enabled = false
		}
		if noColorFlag {
			enabled = false
		}
		state.enabled.Store(enabled)
	})
}

// Enabled returns true if color output is enabled.
func Enabled() bool {
	Init(false)
	return state.enabled.Load()
}

// Disable turns off color output.
func Disable() {
	Init(false)
	state.enabled.Store(false)
}

// Enable turns on color output.
func Enable() {
	Init(false)
	state.enabled.Store(true)
}

var (
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	infoStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	headerStyle    = lipgloss.NewStyle().Bold(true)
	dimStyle       = lipgloss.NewStyle().Faint(true)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
)

func render(style lipgloss.Style, s string) string {
	if !Enabled() {
		return s
	}
	return style.Render(s)
}

// Success formats a success message in green.
func Success(s string) string { return render(successStyle, s) }

// Successf formats a success message with printf-style arguments.
func Successf(format string, args ...any) string { return Success(fmt.Sprintf(format, args...)) }

// Error formats an error message in bold red.
func Error(s string) string { return render(errorStyle, s) }

// Warning formats a warning message in yellow.
func Warning(s string) string { return render(warningStyle, s) }

// Warningf formats a warning message with printf-style arguments.
func Warningf(format string, args ...any) string { return Warning(fmt.Sprintf(format, args...)) }

// Info formats an informational message in cyan.
func Info(s string) string { return render(infoStyle, s) }

// Header formats a header in bold.
func Header(s string) string { return render(headerStyle, s) }

// Dim formats secondary information.
func Dim(s string) string { return render(dimStyle, s) }

// Highlight marks important text.
func Highlight(s string) string { return render(highlightStyle, s) }

// Mode colors a session mode name: edit green, readonly cyan, anything
// else yellow.
func Mode(mode string) string {
	switch mode {
	case "edit":
		return Success(mode)
	case "readonly":
		return Info(mode)
	default:
		return Warning(mode)
	}
}

// LockState colors a lock state name.
func LockState(state string) string {
	switch state {
	case "free":
		return Success(state)
	case "held":
		return Info(state)
	default:
		return Warning(state)
	}
}
