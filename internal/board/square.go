// Package board implements the chess position, move generation and the
// make/undo state machine on top of bitboards.
package board

import "fmt"

// Square is a board square, A1=0, H1=7, A8=56, H8=63.
type Square uint8

const (
	A1 Square = iota
	B1
	C1
	D1
	E1
	F1
	G1
	H1
	A2
	B2
	C2
	D2
	E2
	F2
	G2
	H2
	A3
	B3
	C3
	D3
	E3
	F3
	G3
	H3
	A4
	B4
	C4
	D4
	E4
	F4
	G4
	H4
	A5
	B5
	C5
	D5
	E5
	F5
	G5
	H5
	A6
	B6
	C6
	D6
	E6
	F6
	G6
	H6
	A7
	B7
	C7
	D7
	E7
	F7
	G7
	H7
	A8
	B8
	C8
	D8
	E8
	F8
	G8
	H8
	NoSquare Square = 64
)

// File returns 0 for the a-file through 7 for the h-file.
func (sq Square) File() int {
	return int(sq) & 7
}

// Rank returns 0 for the first rank through 7 for the eighth.
func (sq Square) Rank() int {
	return int(sq) >> 3
}

// String returns the algebraic name ("e4"), or "-" for NoSquare.
func (sq Square) String() string {
	if sq >= NoSquare {
		return "-"
	}
	return string([]byte{byte('a' + sq.File()), byte('1' + sq.Rank())})
}

// NewSquare builds a square from zero-based file and rank.
func NewSquare(file, rank int) Square {
	return Square(rank*8 + file)
}

// ParseSquare parses algebraic notation such as "e4".
func ParseSquare(s string) (Square, error) {
	if len(s) != 2 {
		return NoSquare, fmt.Errorf("invalid square %q", s)
	}
	file := int(s[0]) - 'a'
	rank := int(s[1]) - '1'
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return NoSquare, fmt.Errorf("invalid square %q", s)
	}
	return NewSquare(file, rank), nil
}

// Mirror flips the square vertically.
func (sq Square) Mirror() Square {
	return sq ^ 56
}

// RelativeRank returns the rank as seen from c's side of the board.
func (sq Square) RelativeRank(c Color) int {
	if c == White {
		return sq.Rank()
	}
	return 7 - sq.Rank()
}

func mustSquare(sq Square) {
	if sq >= NoSquare {
		panic(fmt.Sprintf("board: square index %d out of range", sq))
	}
}
