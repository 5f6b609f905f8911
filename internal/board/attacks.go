package board

var (
	knightAttacks [64]Bitboard
	kingAttacks   [64]Bitboard
	pawnAttacks   [2][64]Bitboard

	betweenBB [64][64]Bitboard
	lineBB    [64][64]Bitboard
)

func init() {
	initLeaperAttacks()
	initLines()
	initSliders()
}

func initLeaperAttacks() {
	for sq := A1; sq <= H8; sq++ {
		bb := SquareBB(sq)

		knightAttacks[sq] = (bb<<17)&NotFileA | (bb<<15)&NotFileH |
			(bb>>17)&NotFileH | (bb>>15)&NotFileA |
			(bb<<10)&NotFileAB | (bb<<6)&NotFileGH |
			(bb>>10)&NotFileGH | (bb>>6)&NotFileAB

		kingAttacks[sq] = bb.North() | bb.South() | bb.East() | bb.West() |
			bb.NorthEast() | bb.NorthWest() | bb.SouthEast() | bb.SouthWest()

		pawnAttacks[White][sq] = bb.NorthEast() | bb.NorthWest()
		pawnAttacks[Black][sq] = bb.SouthEast() | bb.SouthWest()
	}
}

// lineDirections pairs each step with its opposite at index i^1.
var lineDirections = [8][2]int{{0, 1}, {0, -1}, {1, 0}, {-1, 0}, {1, 1}, {-1, -1}, {1, -1}, {-1, 1}}

func ray(sq Square, df, dr int) Bitboard {
	var bb Bitboard
	for f, r := sq.File()+df, sq.Rank()+dr; f >= 0 && f < 8 && r >= 0 && r < 8; f, r = f+df, r+dr {
		bb |= SquareBB(NewSquare(f, r))
	}
	return bb
}

func initLines() {
	for a := A1; a <= H8; a++ {
		for i, dir := range lineDirections {
			back := lineDirections[i^1]
			full := ray(a, dir[0], dir[1]) | ray(a, back[0], back[1]) | SquareBB(a)

			var walked Bitboard
			for f, r := a.File()+dir[0], a.Rank()+dir[1]; f >= 0 && f < 8 && r >= 0 && r < 8; f, r = f+dir[0], r+dir[1] {
				b := NewSquare(f, r)
				betweenBB[a][b] = walked
				lineBB[a][b] = full
				walked |= SquareBB(b)
			}
		}
	}
}

// KnightAttacks returns the squares a knight on sq attacks.
func KnightAttacks(sq Square) Bitboard {
	return knightAttacks[sq]
}

// KingAttacks returns the squares a king on sq attacks.
func KingAttacks(sq Square) Bitboard {
	return kingAttacks[sq]
}

// PawnAttacks returns the squares a pawn of color c on sq attacks.
func PawnAttacks(sq Square, c Color) Bitboard {
	return pawnAttacks[c][sq]
}

// QueenAttacks is the union of the rook and bishop lookups.
func QueenAttacks(sq Square, occupied Bitboard) Bitboard {
	return BishopAttacks(sq, occupied) | RookAttacks(sq, occupied)
}

// Between returns the squares strictly between two aligned squares.
func Between(a, b Square) Bitboard {
	return betweenBB[a][b]
}

// Line returns the full rank, file or diagonal through two aligned squares.
func Line(a, b Square) Bitboard {
	return lineBB[a][b]
}

// PieceAttacks returns the attack set of a piece of type pt and color c on sq.
func PieceAttacks(pt PieceType, c Color, sq Square, occupied Bitboard) Bitboard {
	switch pt {
	case Pawn:
		return pawnAttacks[c][sq]
	case Knight:
		return knightAttacks[sq]
	case Bishop:
		return BishopAttacks(sq, occupied)
	case Rook:
		return RookAttacks(sq, occupied)
	case Queen:
		return QueenAttacks(sq, occupied)
	case King:
		return kingAttacks[sq]
	}
	return 0
}

// AttackersTo returns every piece of either color attacking sq under the given occupancy.
func (p *Position) AttackersTo(sq Square, occupied Bitboard) Bitboard {
	return pawnAttacks[Black][sq]&p.Colors[White]&p.Pieces[Pawn] |
		pawnAttacks[White][sq]&p.Colors[Black]&p.Pieces[Pawn] |
		knightAttacks[sq]&p.Pieces[Knight] |
		kingAttacks[sq]&p.Pieces[King] |
		BishopAttacks(sq, occupied)&(p.Pieces[Bishop]|p.Pieces[Queen]) |
		RookAttacks(sq, occupied)&(p.Pieces[Rook]|p.Pieces[Queen])
}

// IsAttacked reports whether any piece of color by attacks sq.
func (p *Position) IsAttacked(sq Square, by Color, occupied Bitboard) bool {
	them := p.Colors[by]
	if pawnAttacks[by.Other()][sq]&them&p.Pieces[Pawn] != 0 ||
		knightAttacks[sq]&them&p.Pieces[Knight] != 0 ||
		kingAttacks[sq]&them&p.Pieces[King] != 0 {
		return true
	}
	if BishopAttacks(sq, occupied)&them&(p.Pieces[Bishop]|p.Pieces[Queen]) != 0 {
		return true
	}
	return RookAttacks(sq, occupied)&them&(p.Pieces[Rook]|p.Pieces[Queen]) != 0
}

// attackedBy returns every square attacked by color c.
func (p *Position) attackedBy(c Color) Bitboard {
	occ := p.Occupied()
	pieces := p.Colors[c]

	pawns := pieces & p.Pieces[Pawn]
	var attacked Bitboard
	if c == White {
		attacked = pawns.NorthEast() | pawns.NorthWest()
	} else {
		attacked = pawns.SouthEast() | pawns.SouthWest()
	}
	for bb := pieces & p.Pieces[Knight]; bb != 0; {
		attacked |= knightAttacks[bb.PopLSB()]
	}
	for bb := pieces & (p.Pieces[Bishop] | p.Pieces[Queen]); bb != 0; {
		attacked |= BishopAttacks(bb.PopLSB(), occ)
	}
	for bb := pieces & (p.Pieces[Rook] | p.Pieces[Queen]); bb != 0; {
		attacked |= RookAttacks(bb.PopLSB(), occ)
	}
	return attacked | kingAttacks[p.KingSq[c]]
}
