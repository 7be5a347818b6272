package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger provides component-tagged logging into the shared run log.
//
// All log methods (Debugf, Infof, Warnf, Errorf) write unconditionally to the
// run log; the console echo is filtered by the level given to SetConsole.
type Logger struct {
	sessionID string
	component string
	out       io.Writer
	logger    *log.Logger
	mu        sync.Mutex
	logPath   string
}

var (
	// Global session ID for the current process
	sessionID     string
	sessionIDOnce sync.Once

	// runLog is shared by every component logger once Initialize succeeded
	runLog   *RunLog
	runLogMu sync.RWMutex
)

// getSessionID returns or creates the session ID for this process
func getSessionID() string {
	sessionIDOnce.Do(func() {
		sessionID = uuid.New().String()
	})
	return sessionID
}

// Initialize opens the run log in dir. Loggers created afterwards write there.
func Initialize(dir string) (*RunLog, error) {
	rl, err := OpenRunLog(dir, "output-")
	if err != nil {
		return nil, err
	}
	runLogMu.Lock()
	runLog = rl
	runLogMu.Unlock()
	return rl, nil
}

// Output returns the writer backing the run log, or stderr before Initialize.
func Output() io.Writer {
	runLogMu.RLock()
	defer runLogMu.RUnlock()
	if runLog == nil {
		return os.Stderr
	}
	return runLog
}

// NewLogger creates a new logger for a specific component.
//
// If the run log has not been initialized it returns a fallback logger that
// writes to stderr along with an error, so callers can detect fallback mode.
func NewLogger(component string) (*Logger, error) {
	runLogMu.RLock()
	rl := runLog
	runLogMu.RUnlock()

	if rl == nil {
		err := fmt.Errorf("run log not initialized")
		return newFallbackLogger(component, err), err
	}

	return &Logger{
		sessionID: getSessionID(),
		component: component,
		out:       rl,
		logger:    log.New(rl, "", 0), // We'll format timestamps ourselves
		logPath:   rl.Path(),
	}, nil
}

// MustLogger is NewLogger without the fallback error.
func MustLogger(component string) *Logger {
	l, _ := NewLogger(component)
	return l
}

// NewWriterLogger creates a logger writing to w. Used where no run log exists, e.g. tests.
func NewWriterLogger(component string, w io.Writer) *Logger {
	return &Logger{
		sessionID: getSessionID(),
		component: component,
		out:       w,
		logger:    log.New(w, "", 0),
	}
}

// newFallbackLogger creates a logger that writes to stderr when file logging fails
func newFallbackLogger(component string, err error) *Logger {
	logger := log.New(os.Stderr, fmt.Sprintf("[%s] ", component), log.LstdFlags|log.Lshortfile)
	logger.Printf("WARNING: Failed to initialize file logging: %v", err)
	logger.Printf("Falling back to stderr logging")

	return &Logger{
		sessionID: getSessionID(),
		component: component,
		out:       os.Stderr,
		logger:    logger,
	}
}

// formatLogEntry creates a structured log entry with timestamp, component, and level
func (l *Logger) formatLogEntry(level, message string) string {
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	return fmt.Sprintf("[%s] [%s] [%s] %s", timestamp, l.component, level, message)
}

func (l *Logger) write(level, format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.formatLogEntry(level, fmt.Sprintf(format, v...))
	l.logger.Println(entry)
	echo(level, entry)
}

// Printf logs a formatted message
func (l *Logger) Printf(format string, v ...interface{}) {
	l.write("INFO", format, v...)
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.write("DEBUG", format, v...)
}

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...interface{}) {
	l.write("INFO", format, v...)
}

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.write("WARN", format, v...)
}

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.write("ERROR", format, v...)
}

// Writer returns an io.Writer that writes to the same destination without formatting
func (l *Logger) Writer() io.Writer {
	return l.out
}

// SessionID returns the current session ID
func (l *Logger) SessionID() string {
	return l.sessionID
}

// LogPath returns the path to the run log this logger was created against
func (l *Logger) LogPath() string {
	return l.logPath
}

// GetSessionID returns the current global session ID
func GetSessionID() string {
	return getSessionID()
}
