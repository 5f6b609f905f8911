package nnue

import "github.com/hailam/chesscore/internal/board"

// FeatureIndex maps a piece on a square to its input index from one
// perspective. Pieces of the perspective's own color occupy the first 384
// inputs; Black sees the board mirrored so both sides share weights.
func FeatureIndex(perspective board.Color, pc board.Piece, sq board.Square) int {
	rel := 0
	if pc.Color() != perspective {
		rel = 1
	}
	if perspective == board.Black {
		sq = sq.Mirror()
	}
	return rel*6*64 + int(pc.Type())*64 + int(sq)
}

// delta lists the pieces a move removes and adds. Castling touches four
// squares, every other move at most three.
type delta struct {
	sub  [2]pieceSquare
	add  [2]pieceSquare
	nsub int
	nadd int
}

type pieceSquare struct {
	pc board.Piece
	sq board.Square
}

func (d *delta) remove(pc board.Piece, sq board.Square) {
	d.sub[d.nsub] = pieceSquare{pc, sq}
	d.nsub++
}

func (d *delta) put(pc board.Piece, sq board.Square) {
	d.add[d.nadd] = pieceSquare{pc, sq}
	d.nadd++
}

// moveDelta computes the feature changes of m in pos, before m is played.
func moveDelta(pos *board.Position, m board.Move) delta {
	var d delta
	from, to := m.From(), m.To()
	pc := pos.Mailbox[from]
	us := pc.Color()

	d.remove(pc, from)
	switch {
	case m.Flag() == board.FlagEnPassant:
		d.remove(board.NewPiece(board.Pawn, us.Other()), to^8)
		d.put(pc, to)
	case m.IsCastle():
		rook := board.NewPiece(board.Rook, us)
		rfrom, rto := board.CastleRookSquares(m)
		d.remove(rook, rfrom)
		d.put(pc, to)
		d.put(rook, rto)
	default:
		if captured := pos.Mailbox[to]; captured != board.NoPiece {
			d.remove(captured, to)
		}
		if m.IsPromotion() {
			d.put(board.NewPiece(m.Promotion(), us), to)
		} else {
			d.put(pc, to)
		}
	}
	return d
}
