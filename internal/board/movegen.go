package board

import "fmt"

type castling struct {
	right    CastlingRights
	flag     MoveFlag
	from, to Square
	transit  Square
	empty    Bitboard
}

var castlings = [2][2]castling{
	White: {
		{WhiteKingSide, FlagCastleWK, E1, G1, F1, SquareBB(F1) | SquareBB(G1)},
		{WhiteQueenSide, FlagCastleWQ, E1, C1, D1, SquareBB(B1) | SquareBB(C1) | SquareBB(D1)},
	},
	Black: {
		{BlackKingSide, FlagCastleBK, E8, G8, F8, SquareBB(F8) | SquareBB(G8)},
		{BlackQueenSide, FlagCastleBQ, E8, C8, D8, SquareBB(B8) | SquareBB(C8) | SquareBB(D8)},
	},
}

// GenerateMoves appends every pseudo-legal move: quiets, captures, promotions and castling.
func (p *Position) GenerateMoves(ml *MoveList) {
	p.generate(ml, false)
}

// GenerateNoisy appends the moves searched in quiescence: captures (including
// en passant and capturing promotions) and quiet queen promotions.
func (p *Position) GenerateNoisy(ml *MoveList) {
	p.generate(ml, true)
}

func (p *Position) generate(ml *MoveList, noisy bool) {
	us := p.SideToMove
	them := us.Other()
	occ := p.Occupied()
	enemies := p.Colors[them] &^ p.Pieces[King]

	targets := ^p.Colors[us] &^ p.Pieces[King]
	if noisy {
		targets = enemies
	}

	p.generatePawnMoves(ml, enemies, noisy)

	for pt := Knight; pt <= King; pt++ {
		for pieces := p.PiecesOf(us, pt); pieces != 0; {
			from := pieces.PopLSB()
			for att := PieceAttacks(pt, us, from, occ) & targets; att != 0; {
				ml.Add(NewMove(from, att.PopLSB(), FlagNormal))
			}
		}
	}

	if !noisy {
		p.generateCastling(ml)
	}
}

func (p *Position) generatePawnMoves(ml *MoveList, enemies Bitboard, noisy bool) {
	us := p.SideToMove
	pawns := p.PiecesOf(us, Pawn)
	empty := ^p.Occupied()

	up, promoRank, doubleRank := 8, Rank8, Rank3
	if us == Black {
		up, promoRank, doubleRank = -8, Rank1, Rank6
	}

	push1 := pawns.Forward(us) & empty
	push2 := (push1 & doubleRank).Forward(us) & empty

	if !noisy {
		for bb := push1 &^ promoRank; bb != 0; {
			to := bb.PopLSB()
			ml.Add(NewMove(Square(int(to)-up), to, FlagNormal))
		}
		for bb := push2; bb != 0; {
			to := bb.PopLSB()
			ml.Add(NewMove(Square(int(to)-2*up), to, FlagDoublePush))
		}
	}
	for bb := push1 & promoRank; bb != 0; {
		to := bb.PopLSB()
		from := Square(int(to) - up)
		if noisy {
			ml.Add(NewPromotion(from, to, Queen))
		} else {
			addPromotions(ml, from, to)
		}
	}

	for bb := pawns; bb != 0; {
		from := bb.PopLSB()
		att := pawnAttacks[us][from]
		for caps := att & enemies; caps != 0; {
			to := caps.PopLSB()
			if promoRank.Has(to) {
				addPromotions(ml, from, to)
			} else {
				ml.Add(NewMove(from, to, FlagNormal))
			}
		}
		if p.EnPassant != NoSquare && att.Has(p.EnPassant) {
			ml.Add(NewMove(from, p.EnPassant, FlagEnPassant))
		}
	}
}

func addPromotions(ml *MoveList, from, to Square) {
	ml.Add(NewPromotion(from, to, Queen))
	ml.Add(NewPromotion(from, to, Knight))
	ml.Add(NewPromotion(from, to, Rook))
	ml.Add(NewPromotion(from, to, Bishop))
}

func (p *Position) generateCastling(ml *MoveList) {
	if p.Checkers != 0 {
		return
	}
	occ := p.Occupied()
	for _, c := range castlings[p.SideToMove] {
		if p.Castling&c.right != 0 && occ&c.empty == 0 &&
			!p.Threats.Has(c.transit) && !p.Threats.Has(c.to) {
			ml.Add(NewMove(c.from, c.to, c.flag))
		}
	}
}

// IsPseudoLegal reports whether m could have been produced by GenerateMoves
// in this position. It is used to vet moves from the transposition table.
func (p *Position) IsPseudoLegal(m Move) bool {
	if m == NoMove {
		return false
	}
	us := p.SideToMove
	from, to, flag := m.From(), m.To(), m.Flag()
	if flag > FlagPromoQueen {
		return false
	}

	pc := p.Mailbox[from]
	if pc == NoPiece || pc.Color() != us {
		return false
	}
	target := p.Mailbox[to]
	if target != NoPiece && (target.Color() == us || target.Type() == King) {
		return false
	}
	pt := pc.Type()
	occ := p.Occupied()

	if m.IsCastle() {
		if pt != King || p.Checkers != 0 {
			return false
		}
		for _, c := range castlings[us] {
			if c.flag == flag {
				return from == c.from && to == c.to && p.Castling&c.right != 0 && occ&c.empty == 0 &&
					!p.Threats.Has(c.transit) && !p.Threats.Has(c.to)
			}
		}
		return false
	}

	if pt != Pawn {
		return flag == FlagNormal && PieceAttacks(pt, us, from, occ).Has(to)
	}

	up := 8
	if us == Black {
		up = -8
	}
	promoting := to.RelativeRank(us) == 7
	if m.IsPromotion() != promoting {
		return false
	}

	switch flag {
	case FlagEnPassant:
		return to == p.EnPassant && pawnAttacks[us][from].Has(to)
	case FlagDoublePush:
		return from.RelativeRank(us) == 1 && int(to) == int(from)+2*up &&
			target == NoPiece && p.Mailbox[Square(int(from)+up)] == NoPiece
	}
	if pawnAttacks[us][from].Has(to) {
		return target != NoPiece
	}
	return int(to) == int(from)+up && target == NoPiece
}

// IsLegal reports whether a pseudo-legal move leaves the mover's king safe,
// using the cached checkers, pins and threats instead of playing the move.
func (p *Position) IsLegal(m Move) bool {
	us := p.SideToMove
	them := us.Other()
	from, to := m.From(), m.To()
	ksq := p.KingSq[us]
	occ := p.Occupied()

	if m.IsCastle() {
		return p.Checkers == 0 && !p.Threats.Has(to) && !p.Threats.Has((from+to)/2)
	}

	if m.Flag() == FlagEnPassant {
		captured := to ^ 8
		after := occ&^SquareBB(from)&^SquareBB(captured) | SquareBB(to)
		return p.AttackersTo(ksq, after)&p.Colors[them]&^SquareBB(captured) == 0
	}

	if from == ksq {
		if p.Threats.Has(to) {
			return false
		}
		// Sliders checking the king still hit squares behind it once it steps away.
		return !p.IsAttacked(to, them, occ&^SquareBB(from))
	}

	if p.Checkers.Several() {
		return false
	}
	if p.Checkers != 0 {
		checker := p.Checkers.LSB()
		if !(Between(ksq, checker) | p.Checkers).Has(to) {
			return false
		}
	}
	if p.Pinned().Has(from) && !Line(ksq, from).Has(to) {
		return false
	}
	return true
}

// IsLegalSlow decides legality by playing the move and testing king safety.
func (b *Board) IsLegalSlow(m Move) bool {
	if m.IsCastle() {
		transit := (m.From() + m.To()) / 2
		if b.Checkers != 0 || b.IsAttacked(transit, b.SideToMove.Other(), b.Occupied()) {
			return false
		}
	}
	legal := b.MakeMove(m)
	b.UndoMove()
	return legal
}

// LegalMoves returns every legal move in the position.
func (p *Position) LegalMoves() MoveList {
	var pseudo, legal MoveList
	p.GenerateMoves(&pseudo)
	for _, m := range pseudo.Slice() {
		if p.IsLegal(m) {
			legal.Add(m)
		}
	}
	return legal
}

// HasLegalMoves reports whether the side to move has any legal move.
func (p *Position) HasLegalMoves() bool {
	var ml MoveList
	p.GenerateMoves(&ml)
	for _, m := range ml.Slice() {
		if p.IsLegal(m) {
			return true
		}
	}
	return false
}

// IsCheckmate reports whether the side to move is mated.
func (p *Position) IsCheckmate() bool {
	return p.InCheck() && !p.HasLegalMoves()
}

// IsStalemate reports whether the side to move has no moves but is not in check.
func (p *Position) IsStalemate() bool {
	return !p.InCheck() && !p.HasLegalMoves()
}

// ParseMove resolves coordinate notation ("e2e4", "e7e8q") to a legal move.
func (p *Position) ParseMove(s string) (Move, error) {
	moves := p.LegalMoves()
	for _, m := range moves.Slice() {
		if m.String() == s {
			return m, nil
		}
	}
	return NoMove, fmt.Errorf("%w: %s in %s", ErrIllegalMove, s, p.FEN())
}

// Perft counts the leaf nodes of the legal move tree to the given depth.
func (b *Board) Perft(depth int) uint64 {
	if depth == 0 {
		return 1
	}
	var ml MoveList
	b.GenerateMoves(&ml)
	var nodes uint64
	for _, m := range ml.Slice() {
		if !b.IsLegal(m) {
			continue
		}
		if depth == 1 {
			nodes++
			continue
		}
		b.MakeMove(m)
		nodes += b.Perft(depth - 1)
		b.UndoMove()
	}
	return nodes
}

// Divide returns the perft count below each legal root move.
func (b *Board) Divide(depth int) map[string]uint64 {
	out := make(map[string]uint64)
	moves := b.LegalMoves()
	for _, m := range moves.Slice() {
		b.MakeMove(m)
		out[m.String()] = b.Perft(depth - 1)
		b.UndoMove()
	}
	return out
}
