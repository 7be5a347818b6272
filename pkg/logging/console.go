package logging

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Level controls how much of the run log is echoed to the console.
type Level int

const (
	// LevelQuiet echoes only warnings and errors.
	LevelQuiet Level = iota
	// LevelNormal also echoes informational messages.
	LevelNormal
	// LevelVerbose is reserved for chattier components.
	LevelVerbose
	// LevelDebug echoes everything.
	LevelDebug
)

// ParseLevel converts a verbosity name, defaulting to LevelNormal.
func ParseLevel(name string) Level {
	switch name {
	case "quiet":
		return LevelQuiet
	case "verbose":
		return LevelVerbose
	case "debug":
		return LevelDebug
	default:
		return LevelNormal
	}
}

var (
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB3BA"))
	debugStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

type console struct {
	mu    sync.Mutex
	w     io.Writer
	level Level
}

var (
	consoleMu  sync.RWMutex
	consoleOut *console
)

// SetConsole echoes log entries at or above level to w. A nil writer disables echoing.
func SetConsole(w io.Writer, level Level) {
	consoleMu.Lock()
	defer consoleMu.Unlock()
	if w == nil {
		consoleOut = nil
		return
	}
	consoleOut = &console{w: w, level: level}
}

func echo(level string, entry string) {
	consoleMu.RLock()
	c := consoleOut
	consoleMu.RUnlock()
	if c == nil {
		return
	}

	var style lipgloss.Style
	switch level {
	case "ERROR":
		style = errorStyle
	case "WARN":
		style = warnStyle
	case "INFO":
		if c.level < LevelNormal {
			return
		}
		style = infoStyle
	default:
		if c.level < LevelDebug {
			return
		}
		style = debugStyle
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, style.Render(entry))
}
