package game

import (
	"fmt"

	"github.com/shravanasati/term-tac-toe/internal/apperror"
)

// Cell is the value stored in one board square.
type Cell uint8

const (
	Empty Cell = iota
	MarkerA
	MarkerB
)

const DefaultBoardSize = 3

// Coordinate is a 0-indexed (row, col) pair on the board.
type Coordinate struct {
	Row int
	Col int
}

// WinResult describes the outcome of a board scan. Victory false with a
// non-full board means the game is still in progress; draw is signaled by
// the caller checking Full().
type WinResult struct {
	Victory     bool
	Winner      Cell
	Coordinates []Coordinate
}

// Board is a pure N×N tic-tac-toe grid. Logical positions are 1-indexed
// from 1 to N², scanning rows left to right, top to bottom. The board knows
// nothing about turn order; that is a protocol concern.
type Board struct {
	size  int
	cells []Cell
}

func NewBoard(size int) (*Board, error) {
	if size < 3 {
		return nil, fmt.Errorf("%w: got %d", apperror.ErrBoardTooSmall, size)
	}

	return &Board{
		size:  size,
		cells: make([]Cell, size*size),
	}, nil
}

func (that *Board) Size() int {
	return that.size
}

// Positions returns the highest valid logical position, N².
func (that *Board) Positions() int {
	return that.size * that.size
}

// Cells returns a flat snapshot of the board in position order.
func (that *Board) Cells() []Cell {
	snapshot := make([]Cell, len(that.cells))
	copy(snapshot, that.cells)

	return snapshot
}

// Coordinate maps a 1-indexed position to its (row, col) pair.
func (that *Board) Coordinate(position int) Coordinate {
	return Coordinate{
		Row: (position - 1) / that.size,
		Col: (position - 1) % that.size,
	}
}

// Apply fills the given position with the marker. It fails without mutating
// the board if the position is out of range or already occupied.
func (that *Board) Apply(position int, marker Cell) error {
	if position < 1 || position > len(that.cells) {
		return fmt.Errorf("%w: position %d", apperror.ErrInvalidCell, position)
	}

	if that.cells[position-1] != Empty {
		return fmt.Errorf("%w: position %d", apperror.ErrCellOccupied, position)
	}

	that.cells[position-1] = marker

	return nil
}

// Full reports whether the board has no empty cell left.
func (that *Board) Full() bool {
	for _, cell := range that.cells {
		if cell == Empty {
			return false
		}
	}

	return true
}

// CheckOutcome scans all rows, then all columns, then the two main
// diagonals for N identical non-empty cells and returns the first completed
// line found. The fixed scan order is the tie-break policy for the
// (normally unreachable) case of multiple simultaneous lines.
func (that *Board) CheckOutcome() WinResult {
	n := that.size

	for row := 0; row < n; row++ {
		line := make([]Coordinate, 0, n)
		for col := 0; col < n; col++ {
			line = append(line, Coordinate{Row: row, Col: col})
		}
		if result, ok := that.lineWinner(line); ok {
			return result
		}
	}

	for col := 0; col < n; col++ {
		line := make([]Coordinate, 0, n)
		for row := 0; row < n; row++ {
			line = append(line, Coordinate{Row: row, Col: col})
		}
		if result, ok := that.lineWinner(line); ok {
			return result
		}
	}

	mainDiagonal := make([]Coordinate, 0, n)
	antiDiagonal := make([]Coordinate, 0, n)
	for i := 0; i < n; i++ {
		mainDiagonal = append(mainDiagonal, Coordinate{Row: i, Col: i})
		antiDiagonal = append(antiDiagonal, Coordinate{Row: i, Col: n - i - 1})
	}

	if result, ok := that.lineWinner(mainDiagonal); ok {
		return result
	}

	if result, ok := that.lineWinner(antiDiagonal); ok {
		return result
	}

	return WinResult{}
}

func (that *Board) lineWinner(line []Coordinate) (WinResult, bool) {
	first := that.at(line[0])
	if first == Empty {
		return WinResult{}, false
	}

	for _, coordinate := range line[1:] {
		if that.at(coordinate) != first {
			return WinResult{}, false
		}
	}

	return WinResult{
		Victory:     true,
		Winner:      first,
		Coordinates: line,
	}, true
}

func (that *Board) at(coordinate Coordinate) Cell {
	return that.cells[coordinate.Row*that.size+coordinate.Col]
}
