// Package board reconstructs a board position from the platform's game page.
package board

import (
	"errors"
	"fmt"
	"strings"

	"github.com/entrhq/tzaarbot/pkg/page"
	"github.com/entrhq/tzaarbot/pkg/types"
)

var (
	// ErrBoardNotFound means no line renders the board.
	ErrBoardNotFound = errors.New("no line with board found")
	// ErrDuplicateBoard means more than one line renders the board.
	ErrDuplicateBoard = errors.New("more than one line with board found")
	// ErrAccountNotFound means no player annotation names the bot account.
	ErrAccountNotFound = errors.New("account not found among players")
	// ErrIncompleteBoard means the images ran out before all cells were decoded.
	ErrIncompleteBoard = errors.New("board images ended before all cells were decoded")
)

// WarningKind names an ordering violation between stone and height images.
type WarningKind string

const (
	// StoneBeforeHeight means a stone arrived while the previous stone still awaited its height.
	StoneBeforeHeight WarningKind = "stone_before_height"
	// HeightWithoutStone means a height arrived while no stone awaited it.
	HeightWithoutStone WarningKind = "height_without_stone"
)

// OrderWarning is a non-fatal decoding anomaly. Decoding continues with best-effort values.
type OrderWarning struct {
	Kind  WarningKind
	Index int
}

func (w OrderWarning) Error() string {
	switch w.Kind {
	case StoneBeforeHeight:
		return fmt.Sprintf("found stone before another stone got height at cell %d", w.Index)
	case HeightWithoutStone:
		return fmt.Sprintf("found height before stone at cell %d", w.Index)
	default:
		return fmt.Sprintf("%s at cell %d", w.Kind, w.Index)
	}
}

// Decoder turns game pages into positions for a single account.
type Decoder struct {
	account  string
	template *types.Template
}

// NewDecoder creates a decoder for the given account using the standard template.
func NewDecoder(account string) *Decoder {
	return &Decoder{
		account:  account,
		template: &types.StandardTemplate,
	}
}

// Decode parses the page. Warnings are returned alongside a valid position;
// a non-nil error means no position could be built.
func (d *Decoder) Decode(markup string) (*types.Position, []OrderWarning, error) {
	boardLine, side, err := d.scan(markup)
	if err != nil {
		return nil, nil, err
	}

	pos := &types.Position{Orientation: side}
	warnings, err := d.fill(pos, strings.Split(boardLine, page.CellDelimiter))
	if err != nil {
		return nil, warnings, err
	}
	return pos, warnings, nil
}

// scan locates the single board line and the bot's side.
func (d *Decoder) scan(markup string) (string, types.Side, error) {
	var boardLine string
	boards := 0
	current, side := types.SidePlus, types.SideNone

	for _, line := range strings.Split(markup, "\n") {
		switch {
		case page.HasBoard(line):
			boards++
			boardLine = line
		case page.IsPlayerAnnotation(line):
			if page.NamesPlayer(line, d.account) {
				if side == types.SideNone {
					side = current
				}
			} else {
				current = current.Opposite()
			}
		}
	}

	switch {
	case boards == 0:
		return "", types.SideNone, ErrBoardNotFound
	case boards > 1:
		return "", types.SideNone, fmt.Errorf("%w: %d lines", ErrDuplicateBoard, boards)
	case side == types.SideNone:
		return "", types.SideNone, fmt.Errorf("%w: %s", ErrAccountNotFound, d.account)
	}
	return boardLine, side, nil
}

// fill walks the template in lock-step with the image tokens.
func (d *Decoder) fill(pos *types.Position, tokens []string) ([]OrderWarning, error) {
	var (
		warnings      []OrderWarning
		tracker       heightTracker
		centerPending bool
		k             int
	)

	skipOffBoard := func() {
		for k < types.CellCount && !d.template.Playable(k) {
			pos.Cells[k] = types.Cell{}
			if k == types.CenterIndex {
				centerPending = true
			}
			k++
		}
	}

	for _, tok := range tokens {
		skipOffBoard()
		if k >= types.CellCount {
			break
		}

		switch {
		case isBlank(tok):
			if centerPending {
				// The hole in the middle is drawn with its own blank image.
				centerPending = false
				continue
			}
			pos.Cells[k] = types.Cell{}
			k++

		case isStone(tok):
			centerPending = false
			if tracker.stone() {
				warnings = append(warnings, OrderWarning{Kind: StoneBeforeHeight, Index: k})
			}
			pos.Cells[k].Occupancy = stoneValue(tok)

		case isHeight(tok):
			centerPending = false
			if tracker.height() {
				warnings = append(warnings, OrderWarning{Kind: HeightWithoutStone, Index: k})
			}
			pos.Cells[k].Height = heightValue(tok)
			k++
		}
	}
	skipOffBoard()

	if k < types.CellCount || tracker.awaiting() {
		return warnings, fmt.Errorf("%w: decoded %d of %d cells", ErrIncompleteBoard, k, types.CellCount)
	}
	return warnings, nil
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isBlank(tok string) bool {
	return len(tok) > 4 && strings.HasPrefix(tok, "_.gif")
}

// isStone matches two-digit stone images: rank class 0-3 then sub-side 1 or 2.
func isStone(tok string) bool {
	return len(tok) > 5 && isDigit(tok[0]) && tok[0] <= '3' && (tok[1] == '1' || tok[1] == '2')
}

func isHeight(tok string) bool {
	return len(tok) > 4 && strings.HasPrefix(tok, "num") && isDigit(tok[3])
}

// stoneValue maps rank class d to rank 4-d and sub-side s to sign 1-2(s-1).
func stoneValue(tok string) int {
	rank := 4 - int(tok[0]-'0')
	sign := 1 - 2*int(tok[1]-'1')
	return sign * rank
}

func heightValue(tok string) int {
	h := int(tok[3] - '0')
	if isDigit(tok[4]) {
		h = h*10 + int(tok[4]-'0')
	}
	return h
}
