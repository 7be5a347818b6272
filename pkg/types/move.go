package types

import "fmt"

// MoveKind classifies what follows the first sub-move of a turn.
type MoveKind int

const (
	// MoveStack is a second sub-move stacking on an own stone.
	MoveStack MoveKind = 0
	// MoveCapture is a second sub-move capturing an enemy stone.
	MoveCapture MoveKind = 1
	// MovePass passes the second sub-move.
	MovePass MoveKind = -1
	// MoveTerminal has no second sub-move (opening move or winning capture).
	MoveTerminal MoveKind = -2
)

// ParseMoveKind converts the engine's numeric code.
func ParseMoveKind(code int) (MoveKind, error) {
	switch k := MoveKind(code); k {
	case MoveStack, MoveCapture, MovePass, MoveTerminal:
		return k, nil
	default:
		return 0, fmt.Errorf("unknown move kind %d", code)
	}
}

// HasSecond reports whether the kind carries a second from/to pair.
func (k MoveKind) HasSecond() bool {
	return k == MoveStack || k == MoveCapture
}

func (k MoveKind) String() string {
	switch k {
	case MoveStack:
		return "stack"
	case MoveCapture:
		return "capture"
	case MovePass:
		return "pass"
	case MoveTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// SubMove is one from/to pair.
type SubMove struct {
	From Coord
	To   Coord
}

// Move is the engine's decision for a whole turn.
type Move struct {
	First  SubMove
	Kind   MoveKind
	Second SubMove // zero unless Kind.HasSecond()
}

func (m Move) String() string {
	s := fmt.Sprintf("%s->%s %s", m.First.From, m.First.To, m.Kind)
	if m.Kind.HasSecond() {
		s += fmt.Sprintf(" %s->%s", m.Second.From, m.Second.To)
	}
	return s
}

// GameSession is built once per detected turn and discarded after the move is submitted.
type GameSession struct {
	GameID      int
	Orientation Side
	// Token authorizes the next state-mutating request. Every response replaces it.
	Token string
}
