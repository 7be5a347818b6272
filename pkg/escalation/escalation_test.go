package escalation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/tzaarbot/pkg/alert"
	"github.com/entrhq/tzaarbot/pkg/logging"
)

type recordingNotifier struct {
	alerts []alert.Alert
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, a alert.Alert) error {
	r.alerts = append(r.alerts, a)
	return r.err
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func newTestEscalator(n alert.Notifier) (*Escalator, *bytes.Buffer, *[]time.Duration) {
	var buf bytes.Buffer
	var sleeps []time.Duration
	e := NewEscalator(n, logging.NewWriterLogger("escalation", &buf), 30*time.Second).
		WithSleep(func(_ context.Context, d time.Duration) { sleeps = append(sleeps, d) })
	return e, &buf, &sleeps
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{name: "plain error", err: errors.New("boom"), want: ClassFailure},
		{name: "explicit class", err: Wrap(ClassDecode, "decode", errors.New("x")), want: ClassDecode},
		{name: "wrapped explicit class", err: fmt.Errorf("turn: %w", Wrap(ClassEngineExit, "engine", errors.New("x"))), want: ClassEngineExit},
		{name: "connection refused", err: fmt.Errorf("get: %w", syscall.ECONNREFUSED), want: ClassNetworkTransient},
		{name: "timeout", err: fmt.Errorf("get: %w", timeoutError{}), want: ClassNetworkTransient},
		{name: "dial error", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("no route")}, want: ClassNetworkTransient},
		{name: "deadline", err: context.DeadlineExceeded, want: ClassNetworkTransient},
		{name: "unclassified network failure", err: Wrap(ClassFailure, "poll", syscall.ECONNRESET), want: ClassNetworkTransient},
		{
			name: "move submission stays fatal",
			err:  Wrap(ClassMoveSubmission, "submit", syscall.ECONNRESET),
			want: ClassMoveSubmission,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestHandleTransientIsSilent(t *testing.T) {
	n := &recordingNotifier{}
	e, buf, sleeps := newTestEscalator(n)

	out := e.Handle(context.Background(), fmt.Errorf("poll: %w", syscall.ECONNREFUSED))
	assert.Equal(t, ClassNetworkTransient, out.Class)
	assert.False(t, out.Alerted)
	assert.True(t, out.BackedOff)
	assert.Empty(t, n.alerts)
	assert.Equal(t, []time.Duration{30 * time.Second}, *sleeps)
	assert.Contains(t, buf.String(), "network error")
}

func TestHandleOrderWarningOnlyLogs(t *testing.T) {
	n := &recordingNotifier{}
	e, buf, sleeps := newTestEscalator(n)

	out := e.Handle(context.Background(), Wrap(ClassOrderWarning, "decode", errors.New("height before stone")))
	assert.False(t, out.Alerted)
	assert.False(t, out.BackedOff)
	assert.Empty(t, n.alerts)
	assert.Empty(t, *sleeps)
	assert.Contains(t, buf.String(), "height before stone")
}

func TestHandleFatalAlertsWithAttachment(t *testing.T) {
	n := &recordingNotifier{}
	e, buf, sleeps := newTestEscalator(n)

	err := Wrap(ClassEngineExit, "engine", errors.New("engine returned 2")).
		WithGame(4711).
		WithAttachment("/var/tzaar/BAJgame-4711_1.txt")
	out := e.Handle(context.Background(), err)

	assert.True(t, out.Alerted)
	require.Len(t, n.alerts, 1)
	a := n.alerts[0]
	assert.Equal(t, "error: bad exit code", a.Subject)
	assert.Equal(t, "/var/tzaar/BAJgame-4711_1.txt", a.Attachment)
	assert.Contains(t, a.Body, "phase: engine")
	assert.Contains(t, a.Body, "game: 4711")
	assert.Contains(t, a.Body, "engine returned 2")
	assert.Contains(t, a.Body, "call context:")
	assert.Contains(t, a.Body, "TestHandleFatalAlertsWithAttachment")
	assert.Len(t, *sleeps, 1)
	assert.Contains(t, buf.String(), "[ERROR]")
}

func TestHandleSurvivesAlertFailure(t *testing.T) {
	n := &recordingNotifier{err: errors.New("smtp down")}
	e, buf, sleeps := newTestEscalator(n)

	out := e.Handle(context.Background(), errors.New("unexpected"))
	assert.Equal(t, ClassFailure, out.Class)
	assert.True(t, out.Alerted)
	assert.Len(t, *sleeps, 1)
	assert.Contains(t, buf.String(), "unable to send alert")
	assert.Equal(t, "error in polling loop", n.alerts[0].Subject)
}

func TestHandleNil(t *testing.T) {
	e, _, sleeps := newTestEscalator(&recordingNotifier{})
	assert.Equal(t, Outcome{}, e.Handle(context.Background(), nil))
	assert.Empty(t, *sleeps)
}

func TestDiagnosticTruncatesErrorText(t *testing.T) {
	e, _, _ := newTestEscalator(&recordingNotifier{})
	long := make([]byte, 3*maxErrorText)
	for i := range long {
		long[i] = 'x'
	}
	diag := e.Diagnostic(errors.New(string(long)))
	assert.Less(t, len(diag), 2*maxErrorText)
	assert.Contains(t, diag, "...")
}

func TestFromPanic(t *testing.T) {
	var err *Error
	func() {
		defer func() {
			err = FromPanic("turn", recover())
		}()
		panic("index out of range")
	}()

	require.NotNil(t, err)
	assert.Equal(t, ClassFailure, err.Class)
	assert.Contains(t, err.Error(), "panic: index out of range")
	assert.Equal(t, "turn", err.Phase)
}

func TestSleepStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	Sleep(ctx, time.Hour)
	assert.Less(t, time.Since(start), time.Second)
}
