// Package session drives the bot: login, polling, playing turns and joining invitations.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/entrhq/tzaarbot/pkg/alert"
	"github.com/entrhq/tzaarbot/pkg/board"
	"github.com/entrhq/tzaarbot/pkg/engine"
	"github.com/entrhq/tzaarbot/pkg/escalation"
	"github.com/entrhq/tzaarbot/pkg/history"
	"github.com/entrhq/tzaarbot/pkg/logging"
	"github.com/entrhq/tzaarbot/pkg/page"
	"github.com/entrhq/tzaarbot/pkg/protocol"
	"github.com/entrhq/tzaarbot/pkg/types"
)

var (
	// ErrNotLoggedIn means the platform still shows the login form after logging in.
	ErrNotLoggedIn = errors.New("not logged on after login")
	// ErrGameIDNotFound means the game page carries no move form.
	ErrGameIDNotFound = errors.New("game id not found")
	// ErrInviteNotFound means the join page has no join form near the invitation image.
	ErrInviteNotFound = errors.New("invitation id not found")
	// ErrInviteRejected means the invitation is for a game the bot does not play.
	ErrInviteRejected = errors.New("invited to unsupported game")
)

// State is the position of the machine in the polling cycle.
type State int

// Machine states. The machine starts logged out and returns to polling after every turn or invitation.
const (
	StateLoggedOut State = iota
	StatePolling
	StateGameActive
	StateInviteDetected
)

func (s State) String() string {
	switch s {
	case StateLoggedOut:
		return "logged out"
	case StatePolling:
		return "polling"
	case StateGameActive:
		return "game active"
	case StateInviteDetected:
		return "invite detected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Platform is the subset of the platform client the machine drives.
type Platform interface {
	Login(ctx context.Context) (string, error)
	NextGame(ctx context.Context) (string, error)
	JoinPage(ctx context.Context) (string, error)
	Join(ctx context.Context, id string) (string, error)
}

// Resolver picks the move for a decoded position.
type Resolver interface {
	Resolve(ctx context.Context, sess types.GameSession, pos *types.Position) (*engine.Resolution, error)
}

// Submitter plays a move through the token chain.
type Submitter interface {
	Submit(ctx context.Context, sess *types.GameSession, m types.Move) error
}

// Journal records what the machine did.
type Journal interface {
	RecordTurn(ctx context.Context, turn history.TurnRecord) (string, error)
	RecordInvite(ctx context.Context, invite history.InviteRecord) error
}

// Rotator switches the run log to a new file when the day changes.
type Rotator interface {
	Rotate() (prev string, rotated bool, err error)
}

// Config holds the polling parameters.
type Config struct {
	Account       string
	PollInterval  time.Duration
	InvitePattern string
	InviteWindow  int
}

// Machine runs the polling loop. It is single-threaded: one request, one
// engine run and one turn at a time.
type Machine struct {
	cfg       Config
	platform  Platform
	decoder   *board.Decoder
	resolver  Resolver
	submitter Submitter
	escalator *escalation.Escalator
	invite    glob.Glob

	journal Journal
	rotator Rotator
	log     *logging.Logger
	sleep   func(ctx context.Context, d time.Duration)

	state State
}

// Option configures a Machine.
type Option func(*Machine)

// WithJournal records turns and invites.
func WithJournal(j Journal) Option {
	return func(m *Machine) { m.journal = j }
}

// WithRotator enables daily run log rotation with a "daily output" alert.
func WithRotator(r Rotator) Option {
	return func(m *Machine) { m.rotator = r }
}

// WithLogger sets the component logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Machine) { m.log = l }
}

// WithSleep replaces the idle poll wait, e.g. in tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration)) Option {
	return func(m *Machine) { m.sleep = sleep }
}

// NewMachine wires the collaborators of one bot account.
func NewMachine(cfg Config, p Platform, r Resolver, s Submitter, esc *escalation.Escalator, opts ...Option) (*Machine, error) {
	if cfg.Account == "" {
		return nil, fmt.Errorf("account is required")
	}
	if p == nil || r == nil || s == nil || esc == nil {
		return nil, fmt.Errorf("platform, resolver, submitter and escalator are required")
	}
	invite, err := glob.Compile(cfg.InvitePattern)
	if err != nil {
		return nil, fmt.Errorf("invalid invite pattern %q: %w", cfg.InvitePattern, err)
	}

	m := &Machine{
		cfg:       cfg,
		platform:  p,
		decoder:   board.NewDecoder(cfg.Account),
		resolver:  r,
		submitter: s,
		escalator: esc,
		invite:    invite,
		sleep:     escalation.Sleep,
		state:     StateLoggedOut,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logging.MustLogger("session")
	}
	return m, nil
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Run polls until ctx is done. Failures never end the loop.
func (m *Machine) Run(ctx context.Context) error {
	m.log.Infof("starting polling loop for %s every %s", m.cfg.Account, m.cfg.PollInterval)
	for ctx.Err() == nil {
		if !m.Step(ctx) {
			m.sleep(ctx, m.cfg.PollInterval)
		}
	}
	m.log.Infof("polling loop stopped: %v", ctx.Err())
	return ctx.Err()
}

// Step runs one polling iteration and escalates any failure, including
// panics. It reports whether the caller should poll again without waiting.
func (m *Machine) Step(ctx context.Context) (again bool) {
	defer func() {
		if r := recover(); r != nil {
			m.state = StateLoggedOut
			m.escalator.Handle(ctx, escalation.FromPanic("polling loop", r))
			again = true
		}
	}()

	m.rotate(ctx)

	again, err := m.poll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		// Backoff is applied by the escalator.
		m.escalator.Handle(ctx, err)
		return true
	}
	return again
}

func (m *Machine) rotate(ctx context.Context) {
	if m.rotator == nil {
		return
	}
	prev, rotated, err := m.rotator.Rotate()
	if err != nil {
		m.log.Warnf("run log rotation failed: %v", err)
		return
	}
	if rotated {
		day := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(prev), "output-"), ".txt")
		m.escalator.Notify(ctx, alert.Alert{
			Subject:    "daily output",
			Body:       "output for day " + day,
			Attachment: prev,
		})
	}
}

func (m *Machine) poll(ctx context.Context) (bool, error) {
	if m.state == StateLoggedOut {
		if err := m.login(ctx); err != nil {
			return false, err
		}
	}

	markup, err := m.platform.NextGame(ctx)
	if err != nil {
		return false, err
	}

	if page.HasLoginForm(markup) {
		m.log.Warnf("bot not logged on, logging in again")
		m.state = StateLoggedOut
		if err := m.login(ctx); err != nil {
			return false, err
		}
		if markup, err = m.platform.NextGame(ctx); err != nil {
			return false, err
		}
		if page.HasLoginForm(markup) {
			m.state = StateLoggedOut
			return false, escalation.Wrap(escalation.ClassSessionExpired, "polling", ErrNotLoggedIn)
		}
	}

	switch {
	case page.IsGamePage(markup):
		m.state = StateGameActive
		defer func() { m.state = StatePolling }()
		return true, m.playTurn(ctx, markup)

	case page.HasInvite(markup):
		m.state = StateInviteDetected
		defer func() { m.state = StatePolling }()
		return m.handleInvite(ctx)

	default:
		m.log.Debugf("nothing to play")
		return false, nil
	}
}

func (m *Machine) login(ctx context.Context) error {
	markup, err := m.platform.Login(ctx)
	if err != nil {
		return err
	}
	if page.HasLoginForm(markup) {
		return escalation.Wrap(escalation.ClassSessionExpired, "logging in", ErrNotLoggedIn)
	}
	m.state = StatePolling
	return nil
}

// playTurn decodes the page, asks the engine and submits its move.
func (m *Machine) playTurn(ctx context.Context, markup string) error {
	gameID, ok := page.ExtractGameID(markup)
	if !ok {
		return escalation.Wrap(escalation.ClassDecode, "loading position", ErrGameIDNotFound)
	}

	pos, warnings, err := m.decoder.Decode(markup)
	for _, w := range warnings {
		m.escalator.Handle(ctx, escalation.Wrap(escalation.ClassOrderWarning, "loading position", w).WithGame(gameID))
	}
	if err != nil {
		return escalation.Wrap(escalation.ClassDecode, "loading position", err).WithGame(gameID)
	}

	token, ok := page.ExtractToken(markup)
	if !ok {
		return escalation.Wrap(escalation.ClassDecode, "loading position", protocol.ErrTokenNotFound).WithGame(gameID)
	}

	sess := types.GameSession{GameID: gameID, Orientation: pos.Orientation, Token: token}
	m.log.Infof("game %d: playing as %s", gameID, pos.Orientation)

	res, err := m.resolver.Resolve(ctx, sess, pos)
	if err != nil {
		m.recordTurn(ctx, sess, nil, err)
		return err
	}

	err = m.submitter.Submit(ctx, &sess, res.Move)
	m.recordTurn(ctx, sess, res, err)
	if err != nil {
		return err
	}
	m.log.Infof("game %d: done make move %s", gameID, res.Move)
	return nil
}

func (m *Machine) recordTurn(ctx context.Context, sess types.GameSession, res *engine.Resolution, err error) {
	if m.journal == nil {
		return
	}
	turn := history.TurnRecord{
		GameID:  sess.GameID,
		Side:    int(sess.Orientation),
		Outcome: history.OutcomeSubmitted,
	}
	if res != nil {
		turn.Move = res.Move.String()
		turn.Duration = res.Duration
		turn.Value = res.Value
		turn.Archive = res.Archive
	}
	if err != nil {
		turn.Outcome = history.OutcomeFailed
		turn.Error = err.Error()
	}
	if _, jerr := m.journal.RecordTurn(ctx, turn); jerr != nil {
		m.log.Warnf("unable to journal turn of game %d: %v", sess.GameID, jerr)
	}
}

// handleInvite joins the invitation if it is for the expected game type.
func (m *Machine) handleInvite(ctx context.Context) (bool, error) {
	markup, err := m.platform.JoinPage(ctx)
	if err != nil {
		return false, err
	}

	id, ok := page.ExtractInviteID(markup, m.cfg.InviteWindow)
	if !ok {
		return false, escalation.Wrap(escalation.ClassInviteRejected, "invitation", ErrInviteNotFound)
	}

	if !m.invite.Match(id) {
		m.recordInvite(ctx, id, false)
		return false, escalation.Wrap(escalation.ClassInviteRejected, "invitation",
			fmt.Errorf("%w: bot was invited to game %s", ErrInviteRejected, id))
	}

	m.log.Infof("joining game %s", id)
	if _, err := m.platform.Join(ctx, id); err != nil {
		return false, err
	}
	m.recordInvite(ctx, id, true)
	return true, nil
}

func (m *Machine) recordInvite(ctx context.Context, id string, joined bool) {
	if m.journal == nil {
		return
	}
	if err := m.journal.RecordInvite(ctx, history.InviteRecord{InviteID: id, Joined: joined}); err != nil {
		m.log.Warnf("unable to journal invitation %s: %v", id, err)
	}
}
