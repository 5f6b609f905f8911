package board

import (
	"math/bits"
	"strings"
)

// Bitboard is a set of squares. Bit 0 = A1, bit 7 = H1, bit 56 = A8, bit 63 = H8.
type Bitboard uint64

const (
	FileA Bitboard = 0x0101010101010101
	FileB Bitboard = FileA << 1
	FileG Bitboard = FileA << 6
	FileH Bitboard = FileA << 7

	Rank1 Bitboard = 0x00000000000000FF
	Rank2 Bitboard = Rank1 << (8 * 1)
	Rank3 Bitboard = Rank1 << (8 * 2)
	Rank6 Bitboard = Rank1 << (8 * 5)
	Rank7 Bitboard = Rank1 << (8 * 6)
	Rank8 Bitboard = Rank1 << (8 * 7)

	Empty Bitboard = 0

	NotFileA  Bitboard = ^FileA
	NotFileH  Bitboard = ^FileH
	NotFileAB Bitboard = ^(FileA | FileB)
	NotFileGH Bitboard = ^(FileG | FileH)

	LightSquares Bitboard = 0x55AA55AA55AA55AA
	DarkSquares  Bitboard = ^LightSquares
)

// SquareBB returns a bitboard with only sq set.
func SquareBB(sq Square) Bitboard {
	return 1 << sq
}

// Has reports whether sq is in the set.
func (b Bitboard) Has(sq Square) bool {
	return b&(1<<sq) != 0
}

// Count returns the number of squares in the set.
func (b Bitboard) Count() int {
	return bits.OnesCount64(uint64(b))
}

// Several reports whether more than one square is set.
func (b Bitboard) Several() bool {
	return b&(b-1) != 0
}

// LSB returns the lowest square, or NoSquare for an empty set.
func (b Bitboard) LSB() Square {
	if b == 0 {
		return NoSquare
	}
	return Square(bits.TrailingZeros64(uint64(b)))
}

// PopLSB removes and returns the lowest square.
func (b *Bitboard) PopLSB() Square {
	sq := Square(bits.TrailingZeros64(uint64(*b)))
	*b &= *b - 1
	return sq
}

func (b Bitboard) North() Bitboard     { return b << 8 }
func (b Bitboard) South() Bitboard     { return b >> 8 }
func (b Bitboard) East() Bitboard      { return (b << 1) & NotFileA }
func (b Bitboard) West() Bitboard      { return (b >> 1) & NotFileH }
func (b Bitboard) NorthEast() Bitboard { return (b << 9) & NotFileA }
func (b Bitboard) NorthWest() Bitboard { return (b << 7) & NotFileH }
func (b Bitboard) SouthEast() Bitboard { return (b >> 7) & NotFileA }
func (b Bitboard) SouthWest() Bitboard { return (b >> 9) & NotFileH }

// Forward shifts one rank toward the opponent of c.
func (b Bitboard) Forward(c Color) Bitboard {
	if c == White {
		return b << 8
	}
	return b >> 8
}

// String draws the set with rank 8 on top.
func (b Bitboard) String() string {
	var sb strings.Builder
	for rank := 7; rank >= 0; rank-- {
		sb.WriteByte(byte('1' + rank))
		sb.WriteByte(' ')
		for file := 0; file < 8; file++ {
			if b.Has(NewSquare(file, rank)) {
				sb.WriteString("1 ")
			} else {
				sb.WriteString(". ")
			}
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("  a b c d e f g h\n")
	return sb.String()
}
