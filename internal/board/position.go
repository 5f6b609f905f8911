package board

import (
	"errors"
	"fmt"
	"strings"
)

// ErrIllegalMove is returned when a move string does not name a legal move.
var ErrIllegalMove = errors.New("illegal move")

// CastlingRights holds the four castling bits.
type CastlingRights uint8

const (
	WhiteKingSide CastlingRights = 1 << iota
	WhiteQueenSide
	BlackKingSide
	BlackQueenSide

	NoCastling  CastlingRights = 0
	AllCastling CastlingRights = WhiteKingSide | WhiteQueenSide | BlackKingSide | BlackQueenSide
)

// String returns the FEN castling field.
func (cr CastlingRights) String() string {
	if cr == NoCastling {
		return "-"
	}
	var sb strings.Builder
	for i, c := range "KQkq" {
		if cr&(1<<i) != 0 {
			sb.WriteRune(c)
		}
	}
	return sb.String()
}

// castlingKeep[sq] is ANDed into the rights whenever a move touches sq.
var castlingKeep [64]CastlingRights

func init() {
	for sq := range castlingKeep {
		castlingKeep[sq] = AllCastling
	}
	castlingKeep[E1] &^= WhiteKingSide | WhiteQueenSide
	castlingKeep[H1] &^= WhiteKingSide
	castlingKeep[A1] &^= WhiteQueenSide
	castlingKeep[E8] &^= BlackKingSide | BlackQueenSide
	castlingKeep[H8] &^= BlackKingSide
	castlingKeep[A8] &^= BlackQueenSide
}

// Position is one complete game state. It is a plain value so the board
// history can snapshot it by copy.
type Position struct {
	Colors  [2]Bitboard
	Pieces  [6]Bitboard
	Mailbox [64]Piece

	SideToMove     Color
	Castling       CastlingRights
	EnPassant      Square
	HalfMoveClock  int
	FullMoveNumber int
	pliesFromNull  int

	Hash        uint64
	PawnHash    uint64
	NonPawnHash [2]uint64
	MajorHash   uint64
	MinorHash   uint64

	KingSq [2]Square

	// Recomputed after every move.
	Checkers   Bitboard
	PinnedDiag Bitboard
	PinnedOrth Bitboard
	Threats    Bitboard
}

// Occupied returns every occupied square.
func (p *Position) Occupied() Bitboard {
	return p.Colors[White] | p.Colors[Black]
}

// PiecesOf returns the squares holding pieces of type pt and color c.
func (p *Position) PiecesOf(c Color, pt PieceType) Bitboard {
	return p.Colors[c] & p.Pieces[pt]
}

// PieceAt returns the piece on sq, or NoPiece.
func (p *Position) PieceAt(sq Square) Piece {
	mustSquare(sq)
	return p.Mailbox[sq]
}

// InCheck reports whether the side to move is in check.
func (p *Position) InCheck() bool {
	return p.Checkers != 0
}

// Pinned returns every piece of the side to move pinned to its king.
func (p *Position) Pinned() Bitboard {
	return p.PinnedDiag | p.PinnedOrth
}

// HasNonPawnMaterial reports whether c has a knight, bishop, rook or queen.
func (p *Position) HasNonPawnMaterial(c Color) bool {
	return p.Colors[c]&^(p.Pieces[Pawn]|p.Pieces[King]) != 0
}

func (p *Position) addPiece(pc Piece, sq Square) {
	bb := SquareBB(sq)
	p.Colors[pc.Color()] |= bb
	p.Pieces[pc.Type()] |= bb
	p.Mailbox[sq] = pc
	p.toggleHashes(pc, sq)
	if pc.Type() == King {
		p.KingSq[pc.Color()] = sq
	}
}

func (p *Position) removePiece(sq Square) Piece {
	pc := p.Mailbox[sq]
	bb := SquareBB(sq)
	p.Colors[pc.Color()] &^= bb
	p.Pieces[pc.Type()] &^= bb
	p.Mailbox[sq] = NoPiece
	p.toggleHashes(pc, sq)
	return pc
}

func (p *Position) movePiece(from, to Square) {
	p.addPiece(p.removePiece(from), to)
}

// updateDerived recomputes checkers, pins and threats for the side to move.
func (p *Position) updateDerived() {
	us := p.SideToMove
	them := us.Other()
	ksq := p.KingSq[us]
	occ := p.Occupied()
	enemies := p.Colors[them]

	p.Checkers = p.AttackersTo(ksq, occ) & enemies

	p.PinnedDiag = p.pinnedBy(ksq, BishopAttacks(ksq, enemies)&enemies&(p.Pieces[Bishop]|p.Pieces[Queen]), occ)
	p.PinnedOrth = p.pinnedBy(ksq, RookAttacks(ksq, enemies)&enemies&(p.Pieces[Rook]|p.Pieces[Queen]), occ)

	p.Threats = p.attackedBy(them)
}

// pinnedBy returns our pieces that are the sole blocker between ksq and a sniper.
func (p *Position) pinnedBy(ksq Square, snipers, occ Bitboard) Bitboard {
	var pinned Bitboard
	own := p.Colors[p.SideToMove]
	for snipers != 0 {
		blockers := Between(ksq, snipers.PopLSB()) & occ
		if blockers != 0 && !blockers.Several() && blockers&own != 0 {
			pinned |= blockers
		}
	}
	return pinned
}

// Board is a position plus the snapshot history needed to undo moves and
// detect repetitions. A Board has a single owner; use Clone to hand a copy to
// another goroutine.
type Board struct {
	Position
	history []Position
}

const historyCapacity = 1024

// NewBoard returns a board set to the standard starting position.
func NewBoard() *Board {
	b, err := ParseFEN(StartFEN)
	if err != nil {
		panic(err)
	}
	return b
}

// Clone returns an independent copy including history.
func (b *Board) Clone() *Board {
	c := &Board{Position: b.Position}
	c.history = make([]Position, len(b.history), max(historyCapacity, cap(b.history)))
	copy(c.history, b.history)
	return c
}

// Ply returns the number of moves applied since the board was set up.
func (b *Board) Ply() int {
	return len(b.history)
}

// MakeMove applies a pseudo-legal move. It returns false when the move leaves
// the mover's king attacked; the caller must still call UndoMove.
func (b *Board) MakeMove(m Move) bool {
	b.history = append(b.history, b.Position)
	p := &b.Position

	from, to, flag := m.From(), m.To(), m.Flag()
	mustSquare(from)
	us := p.SideToMove
	them := us.Other()
	pc := p.Mailbox[from]
	if pc == NoPiece {
		panic(fmt.Sprintf("board: move %s from empty square", m))
	}

	if p.EnPassant != NoSquare {
		p.Hash ^= zobristEnPassant[p.EnPassant.File()]
		p.EnPassant = NoSquare
	}
	p.HalfMoveClock++
	p.pliesFromNull++

	switch {
	case flag == FlagEnPassant:
		p.removePiece(to ^ 8)
		p.movePiece(from, to)
		p.HalfMoveClock = 0
	case m.IsCastle():
		rook := castleRook[flag]
		p.movePiece(from, to)
		p.movePiece(rook.from, rook.to)
	default:
		if p.Mailbox[to] != NoPiece {
			p.removePiece(to)
			p.HalfMoveClock = 0
		}
		p.movePiece(from, to)
		if pc.Type() == Pawn {
			p.HalfMoveClock = 0
			if flag == FlagDoublePush {
				p.EnPassant = (from + to) / 2
				p.Hash ^= zobristEnPassant[p.EnPassant.File()]
			} else if m.IsPromotion() {
				p.removePiece(to)
				p.addPiece(NewPiece(m.Promotion(), us), to)
			}
		}
	}

	if rights := p.Castling & castlingKeep[from] & castlingKeep[to]; rights != p.Castling {
		p.Hash ^= zobristCastling[p.Castling] ^ zobristCastling[rights]
		p.Castling = rights
	}

	if us == Black {
		p.FullMoveNumber++
	}
	p.SideToMove = them
	p.toggleSide()
	p.updateDerived()

	return !p.IsAttacked(p.KingSq[us], them, p.Occupied())
}

// UndoMove restores the position saved by the matching MakeMove or MakeNullMove.
func (b *Board) UndoMove() {
	n := len(b.history) - 1
	b.Position = b.history[n]
	b.history = b.history[:n]
}

// MakeNullMove passes the turn. Only valid when not in check.
func (b *Board) MakeNullMove() {
	b.history = append(b.history, b.Position)
	p := &b.Position
	if p.EnPassant != NoSquare {
		p.Hash ^= zobristEnPassant[p.EnPassant.File()]
		p.EnPassant = NoSquare
	}
	p.HalfMoveClock++
	p.pliesFromNull = 0
	p.SideToMove = p.SideToMove.Other()
	p.toggleSide()
	p.updateDerived()
}

// UndoNullMove reverts MakeNullMove.
func (b *Board) UndoNullMove() {
	b.UndoMove()
}

// LastMoveWasNull reports whether the previous ply was a null move.
func (b *Board) LastMoveWasNull() bool {
	return len(b.history) > 0 && b.pliesFromNull == 0
}

// IsRepetition reports whether the current position occurred earlier within
// the reversible-move horizon. Only positions with the same side to move are compared.
func (b *Board) IsRepetition() bool {
	return b.repetitions(1) >= 1
}

// IsThreefold reports whether the current position has occurred twice before.
func (b *Board) IsThreefold() bool {
	return b.repetitions(2) >= 2
}

func (b *Board) repetitions(stopAt int) int {
	n := len(b.history)
	horizon := min(b.HalfMoveClock, b.pliesFromNull, n)
	count := 0
	for i := 2; i <= horizon; i += 2 {
		if b.history[n-i].Hash == b.Hash {
			count++
			if count >= stopAt {
				break
			}
		}
	}
	return count
}

// IsFiftyMoveDraw reports whether the fifty-move rule applies.
func (b *Board) IsFiftyMoveDraw() bool {
	return b.HalfMoveClock >= 100
}

// IsInsufficientMaterial reports positions where neither side can mate:
// bare kings, a single minor piece, or bishops all on one square color.
func (p *Position) IsInsufficientMaterial() bool {
	if p.Pieces[Pawn]|p.Pieces[Rook]|p.Pieces[Queen] != 0 {
		return false
	}
	minors := p.Pieces[Knight] | p.Pieces[Bishop]
	if minors.Count() <= 1 {
		return true
	}
	if p.Pieces[Knight] == 0 {
		bishops := p.Pieces[Bishop]
		return bishops&LightSquares == 0 || bishops&DarkSquares == 0
	}
	return false
}

// String draws the board with rank 8 on top followed by the FEN.
func (b *Board) String() string {
	var sb strings.Builder
	for rank := 7; rank >= 0; rank-- {
		sb.WriteByte(byte('1' + rank))
		sb.WriteByte(' ')
		for file := 0; file < 8; file++ {
			sb.WriteString(b.Mailbox[NewSquare(file, rank)].String())
			sb.WriteByte(' ')
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("  a b c d e f g h\n")
	sb.WriteString("FEN: " + b.FEN() + "\n")
	return sb.String()
}
