package session

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/tzaarbot/pkg/engine"
	"github.com/entrhq/tzaarbot/pkg/escalation"
	"github.com/entrhq/tzaarbot/pkg/history"
	"github.com/entrhq/tzaarbot/pkg/logging"
	"github.com/entrhq/tzaarbot/pkg/platform"
	"github.com/entrhq/tzaarbot/pkg/protocol"
)

// gameServer emulates the platform for one pending turn.
type gameServer struct {
	mu    sync.Mutex
	turn  string
	moves []url.Values
}

func (s *gameServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.URL.Path {
	case "/gestion.php":
		_, _ = w.Write([]byte("welcome"))
	case "/partiesuivante.php":
		_, _ = w.Write([]byte(s.turn))
	case "/jeux/tza/traitement.php":
		s.moves = append(s.moves, r.PostForm)
		// The turn is consumed once a move starts.
		s.turn = idlePage
		_, _ = w.Write([]byte(tokenPage(fmt.Sprintf("T%d", len(s.moves)))))
	default:
		http.NotFound(w, r)
	}
}

type e2e struct {
	machine  *Machine
	server   *gameServer
	notifier *recordingNotifier
	journal  *history.Store
	archive  string
}

func newE2E(t *testing.T, script string) *e2e {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake engine needs a POSIX shell")
	}
	dir := t.TempDir()
	log := logging.NewWriterLogger("e2e", &bytes.Buffer{})

	srv := &gameServer{turn: gamePage(31, "T0")}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	client, err := platform.NewClient(ts.URL, account, "pw", platform.WithLogger(log))
	require.NoError(t, err)

	enginePath := filepath.Join(dir, "engine.sh")
	require.NoError(t, os.WriteFile(enginePath, []byte("#!/bin/sh\n"+script), 0755))

	notifier := &recordingNotifier{}
	esc := escalation.NewEscalator(notifier, log, time.Minute).WithSleep(func(context.Context, time.Duration) {})

	archive := filepath.Join(dir, "games")
	bridge, err := engine.NewBridge(engine.Config{
		Path:          enginePath,
		Profile:       "42",
		PositionPath:  filepath.Join(dir, "BAJcurrGame.sav"),
		ExecutedPath:  filepath.Join(dir, "BAJposAfter.sav"),
		ArchiveDir:    archive,
		AlertPatterns: []string{"*ASSERTATION*"},
	}, engine.WithLogger(log), engine.WithNotifier(esc.Notifier()))
	require.NoError(t, err)

	journal, err := history.Open(filepath.Join(dir, "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = journal.Close() })

	m, err := NewMachine(Config{
		Account:       account,
		PollInterval:  time.Minute,
		InvitePattern: "tza-*",
		InviteWindow:  530,
	}, client, bridge, protocol.NewClient(client, log), esc,
		WithLogger(log), WithJournal(journal), WithSleep(func(context.Context, time.Duration) {}))
	require.NoError(t, err)

	return &e2e{machine: m, server: srv, notifier: notifier, journal: journal, archive: archive}
}

func TestEndToEndTurn(t *testing.T) {
	env := newE2E(t, `
cp "$6" "$4"
printf 'A1 A2\n1 E4 F5\n0.75 9\n' > "$6"
`)
	ctx := context.Background()

	assert.True(t, env.machine.Step(ctx))
	assert.False(t, env.machine.Step(ctx))

	require.Len(t, env.server.moves, 4)
	want := []struct{ action, col, row, token string }{
		{"choisirSource", "0", "0", "T0"},
		{"destination", "0", "1", "T1"},
		{"choisirSource", "4", "3", "T2"},
		{"destination", "5", "5", "T3"},
	}
	for i, w := range want {
		got := env.server.moves[i]
		assert.Equal(t, w.action, got.Get("pAction"), "submission %d", i+1)
		assert.Equal(t, w.col, got.Get("pL"), "submission %d", i+1)
		assert.Equal(t, w.row, got.Get("pC"), "submission %d", i+1)
		assert.Equal(t, w.token, got.Get("pIdCoup"), "submission %d", i+1)
	}

	// The bot is listed second, so the position is written for the minus side.
	archived, err := filepath.Glob(filepath.Join(env.archive, "BAJgame-31_-1_*.txt"))
	require.NoError(t, err)
	assert.Len(t, archived, 2)

	turns, err := env.journal.Turns(ctx, 31)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, history.OutcomeSubmitted, turns[0].Outcome)
	assert.Equal(t, 0.75, turns[0].Duration)
	assert.Equal(t, 9, turns[0].Value)
	assert.Empty(t, env.notifier.alerts)
}

func TestEndToEndEngineFailure(t *testing.T) {
	env := newE2E(t, `
echo "ASSERTATION board corrupt"
exit 1
`)

	assert.True(t, env.machine.Step(context.Background()))

	assert.Empty(t, env.server.moves)
	assert.Equal(t, gamePage(31, "T0"), env.server.turn)

	subjects := env.notifier.subjects()
	require.Equal(t, []string{"assertation failed", "error: bad exit code"}, subjects)
	attachment := env.notifier.alerts[1].Attachment
	assert.Equal(t, env.archive, filepath.Dir(attachment))
	assert.FileExists(t, attachment)

	turns, err := env.journal.Turns(context.Background(), 31)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, history.OutcomeFailed, turns[0].Outcome)
}
