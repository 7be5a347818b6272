// Package alert delivers operator notifications.
package alert

import (
	"context"

	"github.com/entrhq/tzaarbot/pkg/logging"
)

// Alert is one operator notification.
type Alert struct {
	Subject string
	Body    string
	// Attachment is an optional path to a file sent along with the body.
	Attachment string
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, a Alert) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, a Alert) error {
	return f(ctx, a)
}

// LogNotifier writes alerts to the run log instead of delivering them.
type LogNotifier struct {
	log *logging.Logger
}

// NewLogNotifier creates a notifier that only logs.
func NewLogNotifier(log *logging.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify logs the alert.
func (n *LogNotifier) Notify(_ context.Context, a Alert) error {
	if a.Attachment != "" {
		n.log.Warnf("ALERT %s: %s (attachment %s)", a.Subject, a.Body, a.Attachment)
	} else {
		n.log.Warnf("ALERT %s: %s", a.Subject, a.Body)
	}
	return nil
}

type safeNotifier struct {
	next Notifier
	log  *logging.Logger
}

// Safe wraps n so that delivery failures are logged and never returned.
func Safe(n Notifier, log *logging.Logger) Notifier {
	return &safeNotifier{next: n, log: log}
}

func (s *safeNotifier) Notify(ctx context.Context, a Alert) error {
	if err := s.next.Notify(ctx, a); err != nil {
		s.log.Errorf("unable to send alert %q: %v", a.Subject, err)
		return nil
	}
	s.log.Infof("alert sent: %s", a.Subject)
	return nil
}
