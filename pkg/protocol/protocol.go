// Package protocol submits an engine move through the platform's token chain.
package protocol

import (
	"context"
	"errors"
	"fmt"

	"github.com/entrhq/tzaarbot/pkg/escalation"
	"github.com/entrhq/tzaarbot/pkg/logging"
	"github.com/entrhq/tzaarbot/pkg/page"
	"github.com/entrhq/tzaarbot/pkg/platform"
	"github.com/entrhq/tzaarbot/pkg/types"
)

const phase = "move submission"

// ErrTokenNotFound means a response did not carry the token for the next submission.
var ErrTokenNotFound = errors.New("session token not found")

// Poster sends one move action and returns the response page.
type Poster interface {
	PostMove(ctx context.Context, gameID int, action string, col, row int, token string) (string, error)
}

// Client executes moves. Each submission uses the token of the response
// immediately before it and no token is ever sent twice.
type Client struct {
	poster Poster
	log    *logging.Logger
}

// NewClient creates a protocol client on top of p.
func NewClient(p Poster, log *logging.Logger) *Client {
	if log == nil {
		log = logging.MustLogger("protocol")
	}
	return &Client{poster: p, log: log}
}

// Submit plays m in the session's game. sess.Token must hold the token of the
// page the move was decided on; it is replaced as the chain advances. Errors
// are *escalation.Error of class ClassMoveSubmission: the move may be partly applied.
func (c *Client) Submit(ctx context.Context, sess *types.GameSession, m types.Move) error {
	step := 0
	post := func(action string, col, row int, refresh bool) error {
		step++
		resp, err := c.poster.PostMove(ctx, sess.GameID, action, col, row, sess.Token)
		if err != nil {
			return c.fail(sess, step, action, err)
		}
		// The token is spent either way.
		sess.Token = ""
		if !refresh {
			return nil
		}
		token, ok := page.ExtractToken(resp)
		if !ok {
			return c.fail(sess, step, action, ErrTokenNotFound)
		}
		sess.Token = token
		return nil
	}

	if sess.Token == "" {
		return c.fail(sess, 0, platform.ActionSource, ErrTokenNotFound)
	}
	c.log.Infof("game %d: submitting %s", sess.GameID, m)

	if err := post(platform.ActionSource, m.First.From.Col, m.First.From.Row, true); err != nil {
		return err
	}
	if err := post(platform.ActionDestination, m.First.To.Col, m.First.To.Row, m.Kind != types.MoveTerminal); err != nil {
		return err
	}

	switch m.Kind {
	case types.MoveTerminal:
	case types.MovePass:
		if err := post(platform.ActionPass, -1, -1, false); err != nil {
			return err
		}
	case types.MoveStack, types.MoveCapture:
		if err := post(platform.ActionSource, m.Second.From.Col, m.Second.From.Row, true); err != nil {
			return err
		}
		if err := post(platform.ActionDestination, m.Second.To.Col, m.Second.To.Row, false); err != nil {
			return err
		}
	default:
		return c.fail(sess, step, "", fmt.Errorf("unsupported move kind %s", m.Kind))
	}

	c.log.Infof("game %d: move done after %d submissions", sess.GameID, step)
	return nil
}

func (c *Client) fail(sess *types.GameSession, step int, action string, err error) error {
	return escalation.Wrap(escalation.ClassMoveSubmission, phase,
		fmt.Errorf("step %d (%s): %w", step, action, err)).WithGame(sess.GameID)
}
