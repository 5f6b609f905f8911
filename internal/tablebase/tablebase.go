// Package tablebase consults endgame tablebases at the search root.
package tablebase

import (
	"context"
	"encoding/binary"
	"errors"

	"github.com/cespare/xxhash/v2"

	"github.com/hailam/chesscore/internal/board"
)

// ErrNoResult is returned when a prober has no answer for a position.
var ErrNoResult = errors.New("no tablebase result")

// WDL represents Win/Draw/Loss result.
type WDL int

const (
	WDLLoss        WDL = -2
	WDLBlessedLoss WDL = -1 // loss saved by the fifty-move rule
	WDLDraw        WDL = 0
	WDLCursedWin   WDL = 1 // win spoiled by the fifty-move rule
	WDLWin         WDL = 2
)

// Query is a position in the form tablebase probers consume.
type Query struct {
	White, Black board.Bitboard

	Kings, Queens, Rooks, Bishops, Knights, Pawns board.Bitboard

	Castling  board.CastlingRights
	EnPassant board.Square
	Turn      board.Color
	Rule50    int

	FEN string
}

// NewQuery captures pos.
func NewQuery(pos *board.Position) Query {
	return Query{
		White:     pos.Colors[board.White],
		Black:     pos.Colors[board.Black],
		Kings:     pos.Pieces[board.King],
		Queens:    pos.Pieces[board.Queen],
		Rooks:     pos.Pieces[board.Rook],
		Bishops:   pos.Pieces[board.Bishop],
		Knights:   pos.Pieces[board.Knight],
		Pawns:     pos.Pieces[board.Pawn],
		Castling:  pos.Castling,
		EnPassant: pos.EnPassant,
		Turn:      pos.SideToMove,
		Rule50:    pos.HalfMoveClock,
		FEN:       pos.FEN(),
	}
}

// Pieces counts the men on the board, kings included.
func (q Query) Pieces() int {
	return (q.White | q.Black).Count()
}

// Probeable reports whether a prober covering maxPieces men can answer q.
// Tablebases hold no positions with castling rights.
func (q Query) Probeable(maxPieces int) bool {
	return q.Castling == board.NoCastling && q.Pieces() <= maxPieces
}

// Key identifies q for caching. The clock is part of the key since it
// changes which wins are cursed.
func (q Query) Key() uint64 {
	buf := make([]byte, 0, 8*8+4)
	for _, bb := range []board.Bitboard{q.White, q.Black, q.Kings, q.Queens, q.Rooks, q.Bishops, q.Knights, q.Pawns} {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(bb))
	}
	buf = append(buf, byte(q.Castling), byte(q.EnPassant), byte(q.Turn), byte(min(q.Rule50, 255)))
	return xxhash.Sum64(buf)
}

// RootResult is the tablebase's choice at the root. Promotion is
// NoPieceType unless the move promotes.
type RootResult struct {
	From      board.Square    `json:"from"`
	To        board.Square    `json:"to"`
	Promotion board.PieceType `json:"promotion"`
	EnPassant bool            `json:"en_passant"`
	WDL       WDL             `json:"wdl"`
	DTZ       int             `json:"dtz"`
}

// Match finds the legal move in moves the result describes.
func (r RootResult) Match(moves []board.Move) (board.Move, bool) {
	for _, m := range moves {
		if m.From() != r.From || m.To() != r.To || m.Promotion() != r.Promotion {
			continue
		}
		if r.EnPassant != (m.Flag() == board.FlagEnPassant) {
			continue
		}
		return m, true
	}
	return board.NoMove, false
}

// Prober is the interface for tablebase probing.
type Prober interface {
	// ProbeRoot returns the best move for q, or ErrNoResult.
	ProbeRoot(ctx context.Context, q Query) (RootResult, error)

	// MaxPieces returns the maximum number of men supported.
	MaxPieces() int
}

// NoopProber is a prober that never has a result.
type NoopProber struct{}

func (NoopProber) ProbeRoot(context.Context, Query) (RootResult, error) {
	return RootResult{}, ErrNoResult
}

func (NoopProber) MaxPieces() int {
	return 0
}
