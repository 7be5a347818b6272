package types

import "fmt"

const (
	// BoardSize is the width and height of the square grid the hexagonal board is mapped onto.
	BoardSize = 9

	// CellCount is the number of cells in a Position.
	CellCount = BoardSize * BoardSize

	// OffBoard is the sentinel the engine expects on cells outside the hexagon.
	OffBoard = 100

	// CenterIndex is the off-board hole in the middle of the board.
	CenterIndex = 4*BoardSize + 4
)

// Side identifies one of the two players. Plus moves first.
type Side int

const (
	// SideNone means the side is unknown.
	SideNone Side = 0
	// SidePlus is the first (white) player.
	SidePlus Side = 1
	// SideMinus is the second (black) player.
	SideMinus Side = -1
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	return -s
}

// String returns a short name for the side.
func (s Side) String() string {
	switch s {
	case SidePlus:
		return "plus"
	case SideMinus:
		return "minus"
	default:
		return "none"
	}
}

// Template is the static playable/off-board classification of all cells.
type Template [CellCount]bool

// StandardTemplate marks playable cells of the standard board. It never changes between games.
var StandardTemplate = func() Template {
	rows := [BoardSize]string{
		"xxxxx....",
		"xxxxxx...",
		"xxxxxxx..",
		"xxxxxxxx.",
		"xxxx.xxxx",
		".xxxxxxxx",
		"..xxxxxxx",
		"...xxxxxx",
		"....xxxxx",
	}
	var t Template
	for r, row := range rows {
		for c, ch := range row {
			t[r*BoardSize+c] = ch == 'x'
		}
	}
	return t
}()

// Playable reports whether index i can ever hold a stone.
func (t *Template) Playable(i int) bool {
	return i >= 0 && i < CellCount && t[i]
}

// Cell is the decoded state of one board cell.
type Cell struct {
	// Occupancy is the signed stone rank (1..3); the sign is the owning side. Zero means empty.
	Occupancy int
	// Height is the stack height, meaningful only when Occupancy != 0.
	Height int
}

// Empty reports whether no stone occupies the cell.
func (c Cell) Empty() bool {
	return c.Occupancy == 0
}

// Owner returns the side owning the stone on the cell.
func (c Cell) Owner() Side {
	switch {
	case c.Occupancy > 0:
		return SidePlus
	case c.Occupancy < 0:
		return SideMinus
	default:
		return SideNone
	}
}

// Position is a freshly decoded board: cells in row-major order plus the side the bot plays.
type Position struct {
	Cells       [CellCount]Cell
	Orientation Side
}

// At returns the cell at row and column.
func (p *Position) At(row, col int) Cell {
	return p.Cells[row*BoardSize+col]
}

// Stones returns the number of occupied cells.
func (p *Position) Stones() int {
	n := 0
	for _, c := range p.Cells {
		if !c.Empty() {
			n++
		}
	}
	return n
}

// Coord is a 0-based board coordinate.
type Coord struct {
	Col int
	Row int
}

// Index returns the row-major index of the coordinate.
func (c Coord) Index() int {
	return c.Row*BoardSize + c.Col
}

// String formats the coordinate as (col,row).
func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.Col, c.Row)
}
