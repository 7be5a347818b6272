package protocol

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/tzaarbot/pkg/escalation"
	"github.com/entrhq/tzaarbot/pkg/logging"
	"github.com/entrhq/tzaarbot/pkg/types"
)

type call struct {
	Action string
	Col    int
	Row    int
	Token  string
}

// chainPoster answers the n-th submission with a page carrying token T<n>.
type chainPoster struct {
	calls    []call
	failAt   int
	noTokens bool
}

func (p *chainPoster) PostMove(_ context.Context, gameID int, action string, col, row int, token string) (string, error) {
	p.calls = append(p.calls, call{Action: action, Col: col, Row: row, Token: token})
	n := len(p.calls)
	if n == p.failAt {
		return "", errors.New("connection reset")
	}
	if p.noTokens {
		return "<html>no token here</html>", nil
	}
	return fmt.Sprintf(`<form action="traitement.php?id=%d"><input type="hidden" name="pIdCoup" value="T%d"></form>`, gameID, n), nil
}

func newSession() *types.GameSession {
	return &types.GameSession{GameID: 9, Orientation: types.SideMinus, Token: "T0"}
}

func newTestClient(p Poster) *Client {
	return NewClient(p, logging.NewWriterLogger("protocol", &bytes.Buffer{}))
}

var (
	first  = types.SubMove{From: types.Coord{Col: 1, Row: 2}, To: types.Coord{Col: 3, Row: 4}}
	second = types.SubMove{From: types.Coord{Col: 5, Row: 6}, To: types.Coord{Col: 7, Row: 8}}
)

func TestSubmitSequences(t *testing.T) {
	tests := []struct {
		name string
		move types.Move
		want []call
	}{
		{
			name: "terminal",
			move: types.Move{First: first, Kind: types.MoveTerminal},
			want: []call{
				{Action: "choisirSource", Col: 1, Row: 2, Token: "T0"},
				{Action: "destination", Col: 3, Row: 4, Token: "T1"},
			},
		},
		{
			name: "pass",
			move: types.Move{First: first, Kind: types.MovePass},
			want: []call{
				{Action: "choisirSource", Col: 1, Row: 2, Token: "T0"},
				{Action: "destination", Col: 3, Row: 4, Token: "T1"},
				{Action: "passer", Col: -1, Row: -1, Token: "T2"},
			},
		},
		{
			name: "capture",
			move: types.Move{First: first, Kind: types.MoveCapture, Second: second},
			want: []call{
				{Action: "choisirSource", Col: 1, Row: 2, Token: "T0"},
				{Action: "destination", Col: 3, Row: 4, Token: "T1"},
				{Action: "choisirSource", Col: 5, Row: 6, Token: "T2"},
				{Action: "destination", Col: 7, Row: 8, Token: "T3"},
			},
		},
		{
			name: "stack",
			move: types.Move{First: first, Kind: types.MoveStack, Second: second},
			want: []call{
				{Action: "choisirSource", Col: 1, Row: 2, Token: "T0"},
				{Action: "destination", Col: 3, Row: 4, Token: "T1"},
				{Action: "choisirSource", Col: 5, Row: 6, Token: "T2"},
				{Action: "destination", Col: 7, Row: 8, Token: "T3"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &chainPoster{}
			require.NoError(t, newTestClient(p).Submit(context.Background(), newSession(), tt.move))
			assert.Equal(t, tt.want, p.calls)
		})
	}
}

func TestSubmitNeverReusesToken(t *testing.T) {
	p := &chainPoster{}
	move := types.Move{First: first, Kind: types.MoveCapture, Second: second}
	require.NoError(t, newTestClient(p).Submit(context.Background(), newSession(), move))

	seen := map[string]bool{}
	for i, c := range p.calls {
		assert.False(t, seen[c.Token], "token %s reused", c.Token)
		seen[c.Token] = true
		if i > 0 {
			assert.Equal(t, fmt.Sprintf("T%d", i), c.Token, "submission %d must use the previous response's token", i+1)
		}
	}
}

func TestSubmitFailureMidChain(t *testing.T) {
	p := &chainPoster{failAt: 2}
	move := types.Move{First: first, Kind: types.MoveCapture, Second: second}

	err := newTestClient(p).Submit(context.Background(), newSession(), move)
	require.Error(t, err)
	assert.Len(t, p.calls, 2)

	var escErr *escalation.Error
	require.True(t, errors.As(err, &escErr))
	assert.Equal(t, escalation.ClassMoveSubmission, escErr.Class)
	assert.Equal(t, 9, escErr.GameID)
	assert.Contains(t, err.Error(), "step 2")
}

func TestSubmitMissingToken(t *testing.T) {
	p := &chainPoster{noTokens: true}
	sess := newSession()

	err := newTestClient(p).Submit(context.Background(), sess, types.Move{First: first, Kind: types.MovePass})
	assert.ErrorIs(t, err, ErrTokenNotFound)
	assert.Equal(t, escalation.ClassMoveSubmission, escalation.Classify(err))
	assert.Len(t, p.calls, 1)
	assert.Empty(t, sess.Token)
}

func TestSubmitWithoutInitialToken(t *testing.T) {
	p := &chainPoster{}
	sess := newSession()
	sess.Token = ""

	err := newTestClient(p).Submit(context.Background(), sess, types.Move{First: first, Kind: types.MoveTerminal})
	assert.ErrorIs(t, err, ErrTokenNotFound)
	assert.Empty(t, p.calls)
}

func TestSubmitTerminalNeedsNoTrailingToken(t *testing.T) {
	p := &chainPoster{}
	sess := newSession()

	require.NoError(t, newTestClient(p).Submit(context.Background(), sess, types.Move{First: first, Kind: types.MoveTerminal}))
	assert.Empty(t, sess.Token)
}
