package board

// Color is a side.
type Color uint8

const (
	White Color = iota
	Black
	NoColor Color = 2
)

// Other returns the opposing side.
func (c Color) Other() Color {
	return c ^ 1
}

func (c Color) String() string {
	switch c {
	case White:
		return "white"
	case Black:
		return "black"
	default:
		return "none"
	}
}

// PieceType is a piece kind without color.
type PieceType uint8

const (
	Pawn PieceType = iota
	Knight
	Bishop
	Rook
	Queen
	King
	NoPieceType PieceType = 6
)

// Char returns the lowercase FEN letter.
func (pt PieceType) Char() byte {
	if pt >= NoPieceType {
		return ' '
	}
	return "pnbrqk"[pt]
}

func (pt PieceType) String() string {
	switch pt {
	case Pawn:
		return "pawn"
	case Knight:
		return "knight"
	case Bishop:
		return "bishop"
	case Rook:
		return "rook"
	case Queen:
		return "queen"
	case King:
		return "king"
	default:
		return "none"
	}
}

// Piece is a colored piece, encoded as type + color*6.
type Piece uint8

const (
	WhitePawn Piece = iota
	WhiteKnight
	WhiteBishop
	WhiteRook
	WhiteQueen
	WhiteKing
	BlackPawn
	BlackKnight
	BlackBishop
	BlackRook
	BlackQueen
	BlackKing
	NoPiece
)

// NewPiece combines a type and a color.
func NewPiece(pt PieceType, c Color) Piece {
	if pt >= NoPieceType || c >= NoColor {
		return NoPiece
	}
	return Piece(pt) + Piece(c)*6
}

// Type returns the piece type, NoPieceType for NoPiece.
func (p Piece) Type() PieceType {
	if p >= NoPiece {
		return NoPieceType
	}
	return PieceType(p % 6)
}

// Color returns the piece color, NoColor for NoPiece.
func (p Piece) Color() Color {
	if p >= NoPiece {
		return NoColor
	}
	return Color(p / 6)
}

// String returns the FEN letter, uppercase for White.
func (p Piece) String() string {
	if p >= NoPiece {
		return "."
	}
	return string("PNBRQKpnbrqk"[p])
}

// PieceFromChar converts a FEN letter to a piece.
func PieceFromChar(c byte) Piece {
	for i := 0; i < 12; i++ {
		if "PNBRQKpnbrqk"[i] == c {
			return Piece(i)
		}
	}
	return NoPiece
}
