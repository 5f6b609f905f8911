package engine

import "github.com/hailam/chesscore/internal/board"

// historyMax bounds every history entry; the gravity update keeps values inside it.
const historyMax = 16384

// gravity moves *v toward bonus's sign, slowing as it approaches limit.
func gravity(v *int16, bonus, limit int) {
	bonus = max(-limit, min(limit, bonus))
	*v += int16(bonus - int(*v)*abs(bonus)/limit)
}

// historyBonus is the reward for a quiet move causing a cutoff at depth.
func historyBonus(depth int) int {
	return min(300*depth-250, 2500)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// QuietHistory scores quiet moves by side, from and to square, and whether
// the origin and destination squares are attacked by the opponent.
type QuietHistory [2][64][2][64][2]int16

func threatIndex(pos *board.Position, sq board.Square) int {
	if pos.Threats.Has(sq) {
		return 1
	}
	return 0
}

// Get returns the history score of quiet move m in pos.
func (h *QuietHistory) Get(pos *board.Position, m board.Move) int {
	from, to := m.From(), m.To()
	return int(h[pos.SideToMove][from][threatIndex(pos, from)][to][threatIndex(pos, to)])
}

// Update applies bonus (negative for a malus) to quiet move m in pos.
func (h *QuietHistory) Update(pos *board.Position, m board.Move, bonus int) {
	from, to := m.From(), m.To()
	gravity(&h[pos.SideToMove][from][threatIndex(pos, from)][to][threatIndex(pos, to)], bonus, historyMax)
}

// Clear zeroes the table.
func (h *QuietHistory) Clear() {
	*h = QuietHistory{}
}

// pieceTo identifies a move by the piece moved and its destination: 12*64 contexts.
type pieceTo int

const noPieceTo pieceTo = -1

func makePieceTo(pc board.Piece, to board.Square) pieceTo {
	return pieceTo(int(pc)*64 + int(to))
}

// ContinuationHistory scores a move by the move played one or two plies
// earlier. Both axes are (color, piece type, destination).
type ContinuationHistory [12 * 64][12 * 64]int16

// Get returns the score of cur following prev, or 0 when prev is unknown.
func (h *ContinuationHistory) Get(prev, cur pieceTo) int {
	if prev == noPieceTo {
		return 0
	}
	return int(h[prev][cur])
}

// Update applies bonus to cur following prev.
func (h *ContinuationHistory) Update(prev, cur pieceTo, bonus int) {
	if prev == noPieceTo {
		return
	}
	gravity(&h[prev][cur], bonus, historyMax)
}

// Clear zeroes the table.
func (h *ContinuationHistory) Clear() {
	*h = ContinuationHistory{}
}
