package escalation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/tzaarbot/pkg/alert"
	"github.com/entrhq/tzaarbot/pkg/logging"
)

// maxErrorText bounds the error text in a diagnostic.
const maxErrorText = 2000

// Outcome reports what Handle did with a failure.
type Outcome struct {
	Class     Class
	Alerted   bool
	BackedOff bool
}

// Escalator applies the propagation policy: transient failures back off
// silently, order warnings are only logged, everything else is logged,
// alerted and backed off.
type Escalator struct {
	notifier alert.Notifier
	log      *logging.Logger
	delay    time.Duration
	sleep    func(ctx context.Context, d time.Duration)
	now      func() time.Time
}

// NewEscalator creates an escalator. The notifier is wrapped so that alert
// delivery failures are logged and never reach the caller.
func NewEscalator(n alert.Notifier, log *logging.Logger, delay time.Duration) *Escalator {
	return &Escalator{
		notifier: alert.Safe(n, log),
		log:      log,
		delay:    delay,
		sleep:    Sleep,
		now:      time.Now,
	}
}

// WithSleep replaces the backoff sleep, e.g. in tests.
func (e *Escalator) WithSleep(sleep func(ctx context.Context, d time.Duration)) *Escalator {
	e.sleep = sleep
	return e
}

// Delay returns the fixed backoff delay.
func (e *Escalator) Delay() time.Duration {
	return e.delay
}

// Handle logs, alerts and backs off according to the class of err.
func (e *Escalator) Handle(ctx context.Context, err error) Outcome {
	if err == nil {
		return Outcome{}
	}
	class := Classify(err)
	out := Outcome{Class: class}

	switch {
	case class == ClassNetworkTransient:
		e.log.Warnf("network error, waiting %s: %v", e.delay, err)
	case !class.Alerts():
		e.log.Warnf("%v", err)
	default:
		diag := e.Diagnostic(err)
		e.log.Errorf("%s", diag)
		_ = e.notifier.Notify(ctx, alert.Alert{
			Subject:    subjectFor(err, class),
			Body:       diag,
			Attachment: attachmentOf(err),
		})
		out.Alerted = true
	}

	if class.BacksOff() {
		e.log.Infof("-- waiting %s due to %s", e.delay, class)
		e.sleep(ctx, e.delay)
		out.BackedOff = true
	}
	return out
}

// Notify sends an alert outside of failure handling, e.g. engine assertions or the daily output.
func (e *Escalator) Notify(ctx context.Context, a alert.Alert) {
	_ = e.notifier.Notify(ctx, a)
}

// Notifier exposes the delivery-safe notifier.
func (e *Escalator) Notifier() alert.Notifier {
	return e.notifier
}

// Diagnostic formats timestamp, phase, game, error text and the truncated call context.
func (e *Escalator) Diagnostic(err error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "time: %s\n", e.now().Format("2006-01-02 15:04:05"))

	if ce, ok := asError(err); ok {
		fmt.Fprintf(&b, "phase: %s\n", ce.Phase)
		if ce.GameID != 0 {
			fmt.Fprintf(&b, "game: %d\n", ce.GameID)
		}
		fmt.Fprintf(&b, "class: %s\n", Classify(err))
		fmt.Fprintf(&b, "error: %s\n", truncate(ce.Err.Error(), maxErrorText))
		if cc := ce.CallContext(); cc != "" {
			b.WriteString("call context:\n")
			b.WriteString(cc)
		}
		return b.String()
	}

	fmt.Fprintf(&b, "class: %s\n", Classify(err))
	fmt.Fprintf(&b, "error: %s\n", truncate(err.Error(), maxErrorText))
	return b.String()
}

func subjectFor(err error, class Class) string {
	phase := "polling loop"
	if ce, ok := asError(err); ok && ce.Phase != "" {
		phase = ce.Phase
	}
	switch class {
	case ClassDecode:
		return "error loading pos"
	case ClassEngineExit:
		return "error: bad exit code"
	case ClassSessionExpired:
		return "error: not logged on after login"
	case ClassInviteRejected:
		return "error: bad game invitation"
	case ClassMoveSubmission:
		return "error during playing"
	default:
		return "error in " + phase
	}
}

func attachmentOf(err error) string {
	if ce, ok := asError(err); ok {
		return ce.Attachment
	}
	return ""
}

func asError(err error) (*Error, bool) {
	var ce *Error
	ok := errors.As(err, &ce)
	return ce, ok
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
