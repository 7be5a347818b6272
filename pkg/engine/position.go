package engine

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/entrhq/tzaarbot/pkg/types"
)

// WritePosition serializes pos in the engine's position file format: the
// side sign, then the occupancy grid, then the height grid, nine values per line.
func WritePosition(w io.Writer, pos *types.Position, tmpl *types.Template) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d\n", int(pos.Orientation))

	writeGrid := func(value func(k int) int) {
		for row := 0; row < types.BoardSize; row++ {
			vals := make([]string, types.BoardSize)
			for col := range vals {
				vals[col] = strconv.Itoa(value(row*types.BoardSize + col))
			}
			bw.WriteString(strings.Join(vals, " "))
			bw.WriteByte('\n')
		}
	}

	writeGrid(func(k int) int {
		if !tmpl.Playable(k) {
			return types.OffBoard
		}
		return pos.Cells[k].Occupancy
	})
	writeGrid(func(k int) int {
		if !tmpl.Playable(k) {
			return 0
		}
		return pos.Cells[k].Height
	})
	return bw.Flush()
}

// ParseCoord decodes letter+digit notation into template coordinates.
//
// Columns are letters from 'A'. Rows are digits from 1 and are de-skewed for
// the rhombus layout: columns right of E shift down by their distance to E,
// and column E skips the center hole.
func ParseCoord(s string) (types.Coord, error) {
	if len(s) < 2 {
		return types.Coord{}, fmt.Errorf("invalid coordinate %q", s)
	}
	letter := unicode.ToUpper(rune(s[0]))
	if letter < 'A' || letter > 'I' {
		return types.Coord{}, fmt.Errorf("invalid column in coordinate %q", s)
	}
	digit, err := strconv.Atoi(s[1:])
	if err != nil || digit < 1 {
		return types.Coord{}, fmt.Errorf("invalid row in coordinate %q", s)
	}

	col := int(letter - 'A')
	row := digit - 1
	switch {
	case col > 4:
		row += col - 4
	case col == 4 && row > 3:
		row++
	}

	c := types.Coord{Col: col, Row: row}
	if row >= types.BoardSize || !types.StandardTemplate.Playable(c.Index()) {
		return types.Coord{}, fmt.Errorf("coordinate %q is off the board", s)
	}
	return c, nil
}

// Result is the engine's decision plus the statistics it reported.
type Result struct {
	Move types.Move
	// Duration is the search time in seconds, Value the evaluation. Both are
	// only set when HasStats is true.
	Duration float64
	Value    int
	HasStats bool
	// Raw is the unparsed result text.
	Raw string
}

// ParseResult decodes the whitespace separated tokens of the result file.
func ParseResult(text string) (*Result, error) {
	fields := strings.Fields(text)
	if len(fields) < 3 {
		return nil, fmt.Errorf("%w: expected at least 3 tokens, got %d", ErrMalformedResult, len(fields))
	}

	first, err := parseSubMove(fields[0], fields[1])
	if err != nil {
		return nil, err
	}

	code, err := strconv.Atoi(fields[2])
	if err != nil {
		return nil, fmt.Errorf("%w: move kind %q", ErrMalformedResult, fields[2])
	}
	kind, err := types.ParseMoveKind(code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}

	res := &Result{Move: types.Move{First: first, Kind: kind}, Raw: text}
	stats := 3
	if kind.HasSecond() {
		if len(fields) < 5 {
			return nil, fmt.Errorf("%w: %s move without second sub-move", ErrMalformedResult, kind)
		}
		second, err := parseSubMove(fields[3], fields[4])
		if err != nil {
			return nil, err
		}
		res.Move.Second = second
		stats = 5
	}

	if len(fields) >= stats+2 {
		d, derr := strconv.ParseFloat(fields[stats], 64)
		v, verr := strconv.Atoi(fields[stats+1])
		if derr == nil && verr == nil {
			res.Duration, res.Value, res.HasStats = d, v, true
		}
	}
	return res, nil
}

func parseSubMove(from, to string) (types.SubMove, error) {
	f, err := ParseCoord(from)
	if err != nil {
		return types.SubMove{}, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	t, err := ParseCoord(to)
	if err != nil {
		return types.SubMove{}, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	return types.SubMove{From: f, To: t}, nil
}
