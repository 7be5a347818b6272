// Package engine exchanges positions with the external move-selection engine.
package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/entrhq/tzaarbot/pkg/alert"
	"github.com/entrhq/tzaarbot/pkg/escalation"
	"github.com/entrhq/tzaarbot/pkg/logging"
	"github.com/entrhq/tzaarbot/pkg/types"
)

const phase = "engine"

var (
	// ErrEngineExit means the engine exited with a non-zero code or could not be started.
	ErrEngineExit = errors.New("engine failed")
	// ErrResultMissing means the engine exited cleanly without writing its result.
	ErrResultMissing = errors.New("engine result file missing")
	// ErrMalformedResult means the result file could not be parsed.
	ErrMalformedResult = errors.New("malformed engine result")
)

// Config describes how the engine is invoked.
type Config struct {
	// Path is the engine executable.
	Path string
	// Profile selects the engine's AI.
	Profile string
	// PositionPath is where the position is written. The engine reads it and
	// overwrites it with its best moves.
	PositionPath string
	// ResultPath is read after the engine exits. Defaults to PositionPath.
	ResultPath string
	// ExecutedPath receives the position after the chosen moves were played.
	ExecutedPath string
	// ArchiveDir keeps timestamped copies of every position sent to the engine.
	ArchiveDir string
	// AlertPatterns are glob patterns; an output line matching one triggers an alert.
	AlertPatterns []string
}

// Args returns the engine's fixed argument list.
func (c Config) Args() []string {
	return []string{"-a", c.Profile, "-e", c.ExecutedPath, "-b", c.PositionPath}
}

// Resolution is a successfully resolved turn.
type Resolution struct {
	*Result
	// Archive is the archived copy of the position sent to the engine.
	Archive string
	// ExecutedArchive is the archived position after the moves were played.
	ExecutedArchive string
}

// Bridge writes positions, runs the engine and parses its decision.
type Bridge struct {
	cfg      Config
	markers  []glob.Glob
	template *types.Template
	out      io.Writer
	log      *logging.Logger
	notifier alert.Notifier
	now      func() time.Time
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithOutput sets the durable run log the engine output is copied to.
func WithOutput(w io.Writer) Option {
	return func(b *Bridge) { b.out = w }
}

// WithNotifier sets where assertion alerts go.
func WithNotifier(n alert.Notifier) Option {
	return func(b *Bridge) { b.notifier = n }
}

// WithLogger sets the component logger.
func WithLogger(l *logging.Logger) Option {
	return func(b *Bridge) { b.log = l }
}

// WithClock overrides the clock used for archive names.
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) { b.now = now }
}

// NewBridge creates a bridge for cfg.
func NewBridge(cfg Config, opts ...Option) (*Bridge, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("engine path is required")
	}
	if cfg.PositionPath == "" || cfg.ExecutedPath == "" {
		return nil, fmt.Errorf("engine position and executed paths are required")
	}
	if cfg.ResultPath == "" {
		cfg.ResultPath = cfg.PositionPath
	}

	b := &Bridge{
		cfg:      cfg,
		template: &types.StandardTemplate,
		out:      io.Discard,
		now:      time.Now,
	}
	for _, p := range cfg.AlertPatterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid alert pattern %q: %w", p, err)
		}
		b.markers = append(b.markers, g)
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = logging.MustLogger(phase)
	}
	if b.notifier == nil {
		b.notifier = alert.NewLogNotifier(b.log)
	}
	return b, nil
}

// Resolve runs one engine turn for the session's position. Every error is an
// *escalation.Error of class ClassEngineExit carrying the archived position.
func (b *Bridge) Resolve(ctx context.Context, sess types.GameSession, pos *types.Position) (*Resolution, error) {
	fail := func(err error, archive string) error {
		return escalation.Wrap(escalation.ClassEngineExit, phase, err).
			WithGame(sess.GameID).
			WithAttachment(archive)
	}

	if err := b.writePositionFile(pos); err != nil {
		return nil, fail(err, "")
	}

	stamp := b.now().Format("2006-01-02_15-04-05")
	base := fmt.Sprintf("BAJgame-%d_%d_%s", sess.GameID, int(pos.Orientation), stamp)
	archive := filepath.Join(b.cfg.ArchiveDir, base+".txt")
	if err := copyFile(b.cfg.PositionPath, archive); err != nil {
		return nil, fail(fmt.Errorf("failed to archive position: %w", err), "")
	}
	b.log.Infof("playing game %d as %s, archive %s", sess.GameID, pos.Orientation, archive)

	if err := b.clearOutputs(); err != nil {
		return nil, fail(err, archive)
	}

	code, err := b.run(ctx, sess.GameID, archive)
	if err != nil {
		return nil, fail(fmt.Errorf("%w: %v", ErrEngineExit, err), archive)
	}
	if code != 0 {
		return nil, fail(fmt.Errorf("%w: exit code %d when playing game %d, archive %s", ErrEngineExit, code, sess.GameID, archive), archive)
	}

	data, err := os.ReadFile(b.cfg.ResultPath)
	if err != nil {
		return nil, fail(fmt.Errorf("%w: %v", ErrResultMissing, err), archive)
	}
	fmt.Fprintf(b.out, "output: %s\n", strings.TrimSpace(string(data)))

	res, err := ParseResult(string(data))
	if err != nil {
		return nil, fail(err, archive)
	}
	if res.HasStats {
		b.log.Infof("%s %.3f %d", base, res.Duration, res.Value)
	}

	executed := filepath.Join(b.cfg.ArchiveDir, base+"-exec.txt")
	if err := copyFile(b.cfg.ExecutedPath, executed); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fail(fmt.Errorf("%w: file with executed moves does not exist", ErrResultMissing), archive)
		}
		return nil, fail(fmt.Errorf("failed to archive executed position: %w", err), archive)
	}

	return &Resolution{Result: res, Archive: archive, ExecutedArchive: executed}, nil
}

func (b *Bridge) writePositionFile(pos *types.Position) error {
	if err := os.MkdirAll(filepath.Dir(b.cfg.PositionPath), 0750); err != nil {
		return fmt.Errorf("failed to create position directory: %w", err)
	}
	f, err := os.Create(b.cfg.PositionPath)
	if err != nil {
		return fmt.Errorf("failed to create position file: %w", err)
	}
	if err := WritePosition(f, pos, b.template); err != nil {
		f.Close()
		return fmt.Errorf("failed to write position file: %w", err)
	}
	return f.Close()
}

// clearOutputs removes files of a previous turn so they cannot be mistaken for this turn's output.
func (b *Bridge) clearOutputs() error {
	paths := []string{b.cfg.ExecutedPath}
	if b.cfg.ResultPath != b.cfg.PositionPath {
		paths = append(paths, b.cfg.ResultPath)
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove stale %s: %w", p, err)
		}
	}
	return nil
}

// run starts the engine and drains its combined output into the run log until it exits.
func (b *Bridge) run(ctx context.Context, gameID int, archive string) (int, error) {
	cmd := exec.CommandContext(ctx, b.cfg.Path, b.cfg.Args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("failed to start engine: %w", err)
	}

	alerted := false
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		fmt.Fprintln(b.out, line)
		if !alerted && b.matches(line) {
			alerted = true
			body := fmt.Sprintf("output: %s\nwhen playing game %d, log name %s", line, gameID, filepath.Base(archive))
			b.log.Errorf("%s", body)
			if nerr := b.notifier.Notify(ctx, alert.Alert{Subject: "assertation failed", Body: body, Attachment: archive}); nerr != nil {
				b.log.Errorf("unable to send alert: %v", nerr)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		b.log.Warnf("engine output truncated: %v", err)
		// Keep the pipe drained so the engine cannot block on a full buffer.
		_, _ = io.Copy(b.out, stdout)
	}

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
	return 0, nil
}

func (b *Bridge) matches(line string) bool {
	for _, g := range b.markers {
		if g.Match(line) {
			return true
		}
	}
	return false
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
