package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RunLog is the durable run log: one file per day in a directory, shared by
// every component logger and by the engine output drain.
type RunLog struct {
	dir    string
	prefix string

	mu   sync.Mutex
	file *os.File
	date string
	now  func() time.Time
}

// OpenRunLog opens (or appends to) today's run log in dir.
func OpenRunLog(dir, prefix string) (*RunLog, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	r := &RunLog{dir: dir, prefix: prefix, now: time.Now}
	if err := r.open(r.now()); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RunLog) pathFor(date string) string {
	return filepath.Join(r.dir, fmt.Sprintf("%s%s.txt", r.prefix, date))
}

func (r *RunLog) open(now time.Time) error {
	date := now.Format("2006-01-02")
	file, err := os.OpenFile(r.pathFor(date), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open run log: %w", err)
	}
	r.file = file
	r.date = date
	fmt.Fprintf(file, "=== run log opened %s, session %s ===\n", now.Format(time.RFC3339), getSessionID())
	return nil
}

// Write appends raw bytes to the current day's file.
func (r *RunLog) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return 0, os.ErrClosed
	}
	return r.file.Write(p)
}

// Path returns the file currently written to.
func (r *RunLog) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pathFor(r.date)
}

// Rotate switches to a new file when the date changed. It returns the path of
// the finished file and whether a rotation happened.
func (r *RunLog) Rotate() (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Format("2006-01-02") == r.date {
		return "", false, nil
	}

	previous := r.pathFor(r.date)
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			return "", false, fmt.Errorf("failed to close run log: %w", err)
		}
		r.file = nil
	}
	if err := r.open(now); err != nil {
		return "", false, err
	}
	return previous, true, nil
}

// Close closes the current file. Safe to call multiple times.
func (r *RunLog) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
