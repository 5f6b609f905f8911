package board

// Move packs a move into 16 bits:
// bits 0-5:   from square
// bits 6-11:  to square
// bits 12-15: MoveFlag
type Move uint16

// MoveFlag distinguishes the move kinds that need special handling.
type MoveFlag uint8

const (
	FlagNormal MoveFlag = iota
	FlagDoublePush
	FlagEnPassant
	FlagCastleWK
	FlagCastleWQ
	FlagCastleBK
	FlagCastleBQ
	FlagPromoKnight
	FlagPromoBishop
	FlagPromoRook
	FlagPromoQueen
)

// NoMove is the null sentinel; A1A1 is never a real move.
const NoMove Move = 0

// NewMove builds a move from its parts.
func NewMove(from, to Square, flag MoveFlag) Move {
	return Move(from) | Move(to)<<6 | Move(flag)<<12
}

// NewPromotion builds a promotion to pt.
func NewPromotion(from, to Square, pt PieceType) Move {
	return NewMove(from, to, FlagPromoKnight+MoveFlag(pt-Knight))
}

func (m Move) From() Square   { return Square(m & 0x3F) }
func (m Move) To() Square     { return Square((m >> 6) & 0x3F) }
func (m Move) Flag() MoveFlag { return MoveFlag(m >> 12) }

// IsPromotion reports whether the move promotes a pawn.
func (m Move) IsPromotion() bool {
	return m.Flag() >= FlagPromoKnight
}

// Promotion returns the promoted piece type, or NoPieceType.
func (m Move) Promotion() PieceType {
	if !m.IsPromotion() {
		return NoPieceType
	}
	return Knight + PieceType(m.Flag()-FlagPromoKnight)
}

// IsCastle reports whether the move is one of the four castling moves.
func (m Move) IsCastle() bool {
	f := m.Flag()
	return f >= FlagCastleWK && f <= FlagCastleBQ
}

// String returns coordinate notation, e.g. "e2e4" or "e7e8q".
func (m Move) String() string {
	if m == NoMove {
		return "0000"
	}
	s := m.From().String() + m.To().String()
	if m.IsPromotion() {
		s += string(m.Promotion().Char())
	}
	return s
}

// castleRook gives the rook's from and to squares for each castling flag.
var castleRook = [...]struct{ from, to Square }{
	FlagCastleWK: {H1, F1},
	FlagCastleWQ: {A1, D1},
	FlagCastleBK: {H8, F8},
	FlagCastleBQ: {A8, D8},
}

// MoveList is a fixed-capacity move buffer; no legal position has more than 218 moves.
type MoveList struct {
	moves [256]Move
	count int
}

// Add appends m.
func (ml *MoveList) Add(m Move) {
	ml.moves[ml.count] = m
	ml.count++
}

func (ml *MoveList) Len() int       { return ml.count }
func (ml *MoveList) Get(i int) Move { return ml.moves[i] }
func (ml *MoveList) Clear()         { ml.count = 0 }
func (ml *MoveList) Slice() []Move  { return ml.moves[:ml.count] }
func (ml *MoveList) Swap(i, j int)  { ml.moves[i], ml.moves[j] = ml.moves[j], ml.moves[i] }

// Contains reports whether m is in the list.
func (ml *MoveList) Contains(m Move) bool {
	for i := 0; i < ml.count; i++ {
		if ml.moves[i] == m {
			return true
		}
	}
	return false
}

// CastleRookSquares returns the rook's from and to squares for a castling move.
func CastleRookSquares(m Move) (from, to Square) {
	r := castleRook[m.Flag()]
	return r.from, r.to
}
