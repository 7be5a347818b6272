package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRunLog initializes the run log in a temp dir and resets global state afterwards
func setupRunLog(t *testing.T) *RunLog {
	t.Helper()

	origRunLog := runLog
	origSessionID := sessionID
	origSessionIDOnce := sessionIDOnce

	sessionID = ""
	sessionIDOnce = sync.Once{}

	rl, err := Initialize(t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() {
		rl.Close()
		runLogMu.Lock()
		runLog = origRunLog
		runLogMu.Unlock()
		sessionID = origSessionID
		sessionIDOnce = origSessionIDOnce
		SetConsole(nil, LevelNormal)
	})
	return rl
}

func TestNewLogger(t *testing.T) {
	rl := setupRunLog(t)

	logger, err := NewLogger("test-component")
	require.NoError(t, err)

	assert.Equal(t, "test-component", logger.component)
	assert.NotEmpty(t, logger.sessionID)
	assert.Equal(t, rl.Path(), logger.LogPath())

	_, err = os.Stat(logger.LogPath())
	assert.NoError(t, err)
}

func TestNewLoggerFallback(t *testing.T) {
	runLogMu.Lock()
	orig := runLog
	runLog = nil
	runLogMu.Unlock()
	t.Cleanup(func() {
		runLogMu.Lock()
		runLog = orig
		runLogMu.Unlock()
	})

	logger, err := NewLogger("fallback")
	require.Error(t, err)
	require.NotNil(t, logger)
	assert.Equal(t, os.Stderr, logger.Writer())
	assert.Equal(t, os.Stderr, Output())
}

func TestLoggerFormatting(t *testing.T) {
	rl := setupRunLog(t)

	logger, err := NewLogger("test")
	require.NoError(t, err)

	logger.Printf("Test message %d", 123)
	logger.Debugf("Debug message")
	logger.Infof("Info message")
	logger.Warnf("Warning message")
	logger.Errorf("Error message")

	content, err := os.ReadFile(rl.Path())
	require.NoError(t, err)
	logContent := string(content)

	expectedPatterns := []string{
		"[test] [INFO] Test message 123",
		"[test] [DEBUG] Debug message",
		"[test] [INFO] Info message",
		"[test] [WARN] Warning message",
		"[test] [ERROR] Error message",
		"session " + GetSessionID(),
	}
	for _, pattern := range expectedPatterns {
		assert.Contains(t, logContent, pattern)
	}
}

func TestMultipleComponentsShareRunLog(t *testing.T) {
	rl := setupRunLog(t)

	logger1, err := NewLogger("component1")
	require.NoError(t, err)
	logger2, err := NewLogger("component2")
	require.NoError(t, err)

	assert.Equal(t, logger1.SessionID(), logger2.SessionID())

	logger1.Printf("Message from component1")
	logger2.Printf("Message from component2")
	_, err = Output().Write([]byte("raw engine line\n"))
	require.NoError(t, err)

	content, err := os.ReadFile(rl.Path())
	require.NoError(t, err)
	assert.Contains(t, string(content), "[component1]")
	assert.Contains(t, string(content), "[component2]")
	assert.Contains(t, string(content), "raw engine line")
}

func TestConsoleEcho(t *testing.T) {
	setupRunLog(t)

	var buf bytes.Buffer
	SetConsole(&buf, LevelQuiet)

	logger, err := NewLogger("console")
	require.NoError(t, err)
	logger.Infof("hidden at quiet")
	logger.Errorf("always shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden at quiet")
	assert.Contains(t, out, "always shown")

	buf.Reset()
	SetConsole(&buf, LevelNormal)
	logger.Infof("shown at normal")
	logger.Debugf("debug hidden")
	assert.Contains(t, buf.String(), "shown at normal")
	assert.NotContains(t, buf.String(), "debug hidden")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelQuiet, ParseLevel("quiet"))
	assert.Equal(t, LevelVerbose, ParseLevel("verbose"))
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelNormal, ParseLevel("normal"))
	assert.Equal(t, LevelNormal, ParseLevel("bogus"))
}

func TestRunLogRotation(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2026, 3, 1, 23, 59, 0, 0, time.Local)

	rl, err := OpenRunLog(dir, "output-")
	require.NoError(t, err)
	defer rl.Close()
	rl.now = func() time.Time { return day }

	// Move the log onto a fixed date.
	_, _, err = rl.Rotate()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "output-2026-03-01.txt"), rl.Path())

	prev, rotated, err := rl.Rotate()
	require.NoError(t, err)
	assert.False(t, rotated)
	assert.Empty(t, prev)

	_, err = rl.Write([]byte("first day\n"))
	require.NoError(t, err)

	rl.now = func() time.Time { return day.Add(2 * time.Minute) }
	prev, rotated, err = rl.Rotate()
	require.NoError(t, err)
	assert.True(t, rotated)
	assert.Equal(t, filepath.Join(dir, "output-2026-03-01.txt"), prev)
	assert.True(t, strings.HasSuffix(rl.Path(), "output-2026-03-02.txt"))

	content, err := os.ReadFile(prev)
	require.NoError(t, err)
	assert.Contains(t, string(content), "first day")
}

func TestRunLogClose(t *testing.T) {
	rl, err := OpenRunLog(t.TempDir(), "output-")
	require.NoError(t, err)

	assert.NoError(t, rl.Close())
	assert.NoError(t, rl.Close())

	_, err = rl.Write([]byte("x"))
	assert.ErrorIs(t, err, os.ErrClosed)
}
