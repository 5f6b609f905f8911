package board

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// StartFEN is the standard starting position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// ErrInvalidFEN wraps every FEN parsing failure.
var ErrInvalidFEN = errors.New("invalid FEN")

func fenError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidFEN, fmt.Sprintf(format, args...))
}

// ParseFEN builds a board from a FEN string. The clocks may be omitted and
// default to 0 and 1. Positions that cannot arise in a game (missing kings,
// pawns on the back ranks, the side not to move in check) are rejected.
func ParseFEN(fen string) (*Board, error) {
	fields := strings.Fields(fen)
	if len(fields) != 4 && len(fields) != 6 {
		return nil, fenError("need 4 or 6 fields, got %d", len(fields))
	}

	b := &Board{history: make([]Position, 0, historyCapacity)}
	p := &b.Position
	for sq := range p.Mailbox {
		p.Mailbox[sq] = NoPiece
	}
	p.EnPassant = NoSquare
	p.FullMoveNumber = 1

	if err := parsePlacement(p, fields[0]); err != nil {
		return nil, err
	}

	switch fields[1] {
	case "w":
		p.SideToMove = White
	case "b":
		p.SideToMove = Black
	default:
		return nil, fenError("bad side to move %q", fields[1])
	}

	if err := parseCastling(p, fields[2]); err != nil {
		return nil, err
	}

	if fields[3] != "-" {
		sq, err := ParseSquare(fields[3])
		if err != nil {
			return nil, fenError("bad en passant square: %v", err)
		}
		if sq.RelativeRank(p.SideToMove) != 5 {
			return nil, fenError("en passant square %s on wrong rank", sq)
		}
		if p.Mailbox[sq^8] != NewPiece(Pawn, p.SideToMove.Other()) {
			return nil, fenError("no pawn in front of en passant square %s", sq)
		}
		p.EnPassant = sq
	}

	if len(fields) == 6 {
		hmc, err := strconv.Atoi(fields[4])
		if err != nil || hmc < 0 {
			return nil, fenError("bad half-move clock %q", fields[4])
		}
		fmn, err := strconv.Atoi(fields[5])
		if err != nil || fmn < 1 {
			return nil, fenError("bad full-move number %q", fields[5])
		}
		p.HalfMoveClock = hmc
		p.FullMoveNumber = fmn
	}

	if p.SideToMove == White {
		p.toggleSide()
	}
	p.Hash ^= zobristCastling[p.Castling]
	if p.EnPassant != NoSquare {
		p.Hash ^= zobristEnPassant[p.EnPassant.File()]
	}

	if p.IsAttacked(p.KingSq[p.SideToMove.Other()], p.SideToMove, p.Occupied()) {
		return nil, fenError("side not to move is in check")
	}
	p.updateDerived()
	return b, nil
}

func parsePlacement(p *Position, placement string) error {
	ranks := strings.Split(placement, "/")
	if len(ranks) != 8 {
		return fenError("need 8 ranks, got %d", len(ranks))
	}

	for i, row := range ranks {
		rank := 7 - i
		file := 0
		for j := 0; j < len(row); j++ {
			c := row[j]
			if c >= '1' && c <= '8' {
				file += int(c - '0')
				if file > 8 {
					return fenError("rank %d overflows", rank+1)
				}
				continue
			}
			pc := PieceFromChar(c)
			if pc == NoPiece {
				return fenError("bad piece character %q", c)
			}
			if file > 7 {
				return fenError("rank %d overflows", rank+1)
			}
			if pc.Type() == Pawn && (rank == 0 || rank == 7) {
				return fenError("pawn on back rank")
			}
			p.addPiece(pc, NewSquare(file, rank))
			file++
		}
		if file != 8 {
			return fenError("rank %d has %d squares", rank+1, file)
		}
	}

	for c := White; c <= Black; c++ {
		if p.PiecesOf(c, King).Count() != 1 {
			return fenError("%s must have exactly one king", c)
		}
	}
	return nil
}

func parseCastling(p *Position, field string) error {
	if field == "-" {
		return nil
	}
	for i := 0; i < len(field); i++ {
		var right CastlingRights
		var king, rook Piece
		var ksq, rsq Square
		switch field[i] {
		case 'K':
			right, king, rook, ksq, rsq = WhiteKingSide, WhiteKing, WhiteRook, E1, H1
		case 'Q':
			right, king, rook, ksq, rsq = WhiteQueenSide, WhiteKing, WhiteRook, E1, A1
		case 'k':
			right, king, rook, ksq, rsq = BlackKingSide, BlackKing, BlackRook, E8, H8
		case 'q':
			right, king, rook, ksq, rsq = BlackQueenSide, BlackKing, BlackRook, E8, A8
		default:
			return fenError("bad castling character %q", field[i])
		}
		if p.Castling&right != 0 {
			return fenError("duplicate castling character %q", field[i])
		}
		if p.Mailbox[ksq] != king || p.Mailbox[rsq] != rook {
			return fenError("castling right %q without king and rook in place", field[i])
		}
		p.Castling |= right
	}
	return nil
}

// FEN returns the six-field FEN of the current position.
func (p *Position) FEN() string {
	var sb strings.Builder
	for rank := 7; rank >= 0; rank-- {
		empty := 0
		for file := 0; file < 8; file++ {
			pc := p.Mailbox[NewSquare(file, rank)]
			if pc == NoPiece {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteString(strconv.Itoa(empty))
				empty = 0
			}
			sb.WriteString(pc.String())
		}
		if empty > 0 {
			sb.WriteString(strconv.Itoa(empty))
		}
		if rank > 0 {
			sb.WriteByte('/')
		}
	}

	if p.SideToMove == White {
		sb.WriteString(" w ")
	} else {
		sb.WriteString(" b ")
	}
	sb.WriteString(p.Castling.String())
	sb.WriteByte(' ')
	sb.WriteString(p.EnPassant.String())
	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(p.HalfMoveClock))
	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(p.FullMoveNumber))
	return sb.String()
}
