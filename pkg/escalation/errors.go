// Package escalation classifies failures of the polling loop and decides
// whether they are retried silently, logged, or alerted.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime"
	"strings"
	"syscall"
)

// Class is the failure taxonomy of the client.
type Class int

const (
	// ClassFailure is any failure without a more specific class.
	ClassFailure Class = iota
	// ClassDecode means the board or the account could not be found on the page.
	ClassDecode
	// ClassOrderWarning means stone and height images arrived out of order.
	ClassOrderWarning
	// ClassEngineExit means the engine failed or produced no usable result.
	ClassEngineExit
	// ClassMoveSubmission means the token chain broke while submitting a move.
	ClassMoveSubmission
	// ClassSessionExpired means logging in again did not restore the session.
	ClassSessionExpired
	// ClassInviteRejected means the bot was invited to a game it does not play.
	ClassInviteRejected
	// ClassNetworkTransient means the platform was unreachable for a moment.
	ClassNetworkTransient
)

var classNames = map[Class]string{
	ClassFailure:          "failure",
	ClassDecode:           "decode",
	ClassOrderWarning:     "order_warning",
	ClassEngineExit:       "engine_exit",
	ClassMoveSubmission:   "move_submission",
	ClassSessionExpired:   "session_expired",
	ClassInviteRejected:   "invite_rejected",
	ClassNetworkTransient: "network_transient",
}

func (c Class) String() string {
	if s, ok := classNames[c]; ok {
		return s
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// Alerts reports whether failures of this class reach the alert channel.
func (c Class) Alerts() bool {
	return c != ClassNetworkTransient && c != ClassOrderWarning
}

// BacksOff reports whether the loop sleeps after a failure of this class.
func (c Class) BacksOff() bool {
	return c != ClassOrderWarning
}

// maxFrames bounds the call context captured with each error.
const maxFrames = 6

// Error is a classified failure of one phase of the loop.
type Error struct {
	Class  Class
	Phase  string
	GameID int
	// Attachment is an optional artifact for the alert, e.g. the archived position.
	Attachment string
	Err        error

	frames []uintptr
}

// Wrap classifies err as having happened in phase.
func Wrap(class Class, phase string, err error) *Error {
	return wrap(class, phase, err, 3)
}

func wrap(class Class, phase string, err error, skip int) *Error {
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip, pcs)
	return &Error{Class: class, Phase: phase, Err: err, frames: pcs[:n]}
}

// WithGame records the game the failure belongs to.
func (e *Error) WithGame(id int) *Error {
	e.GameID = id
	return e
}

// WithAttachment records an artifact to send with the alert.
func (e *Error) WithAttachment(path string) *Error {
	e.Attachment = path
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Phase)
	if e.GameID != 0 {
		fmt.Fprintf(&b, " (game %d)", e.GameID)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CallContext formats the captured frames, one per line.
func (e *Error) CallContext() string {
	if len(e.frames) == 0 {
		return ""
	}
	var b strings.Builder
	frames := runtime.CallersFrames(e.frames)
	for {
		f, more := frames.Next()
		fmt.Fprintf(&b, "  %s (%s:%d)\n", f.Function, f.File, f.Line)
		if !more {
			break
		}
	}
	return b.String()
}

// FromPanic converts a recovered panic value into a classified error.
func FromPanic(phase string, r any) *Error {
	err, ok := r.(error)
	if !ok {
		err = fmt.Errorf("%v", r)
	}
	// Skip runtime.Callers, wrap, FromPanic and the recovering function.
	return wrap(ClassFailure, phase, fmt.Errorf("panic: %w", err), 4)
}

// Classify returns the class of err. Explicit classes win over the
// network heuristics, so a broken move submission is never retried silently.
func Classify(err error) Class {
	var e *Error
	if errors.As(err, &e) && e.Class != ClassFailure {
		return e.Class
	}
	if IsTransient(err) {
		return ClassNetworkTransient
	}
	return ClassFailure
}

// IsTransient reports whether err is a connection level hiccup worth a silent retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
