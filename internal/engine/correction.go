package engine

import "github.com/hailam/chesscore/internal/board"

// Correction table geometry.
const (
	CorrectionHistorySize = 16384
	CorrectionHistoryMask = CorrectionHistorySize - 1

	correctionLimit = 1024
	correctionGrain = 48 // summed weighted entries per centipawn
)

// CorrectionHistory adjusts static evaluation based on search results.
// When the search finds the static eval was off, the error is recorded
// under several structural keys of the position and the weighted sum of
// those entries is added to later evaluations of similar positions.
type CorrectionHistory struct {
	pawn    [2][CorrectionHistorySize]int16
	nonPawn [2][2][CorrectionHistorySize]int16
	major   [2][CorrectionHistorySize]int16
	minor   [2][CorrectionHistorySize]int16
}

// hashIndex mixes high bits into the low bits used as the index.
func hashIndex(hash uint64) int {
	return int((hash ^ hash>>32) & CorrectionHistoryMask)
}

// Correction returns the adjustment for pos in centipawns.
func (ch *CorrectionHistory) Correction(pos *board.Position) int {
	stm := pos.SideToMove
	total := 2*int(ch.pawn[stm][hashIndex(pos.PawnHash)]) +
		int(ch.nonPawn[stm][board.White][hashIndex(pos.NonPawnHash[board.White])]) +
		int(ch.nonPawn[stm][board.Black][hashIndex(pos.NonPawnHash[board.Black])]) +
		int(ch.major[stm][hashIndex(pos.MajorHash)]) +
		int(ch.minor[stm][hashIndex(pos.MinorHash)])
	return total / correctionGrain
}

// Correct applies the correction to eval, keeping it clear of mate scores.
func (ch *CorrectionHistory) Correct(pos *board.Position, eval int) int {
	return max(-MateBound+1, min(MateBound-1, eval+ch.Correction(pos)))
}

// Update records that a depth-deep search scored pos diff centipawns away
// from its static evaluation.
func (ch *CorrectionHistory) Update(pos *board.Position, diff, depth int) {
	if depth < 1 {
		return
	}
	bonus := max(-correctionLimit/4, min(correctionLimit/4, diff*depth/8))
	stm := pos.SideToMove
	gravity(&ch.pawn[stm][hashIndex(pos.PawnHash)], bonus, correctionLimit)
	gravity(&ch.nonPawn[stm][board.White][hashIndex(pos.NonPawnHash[board.White])], bonus, correctionLimit)
	gravity(&ch.nonPawn[stm][board.Black][hashIndex(pos.NonPawnHash[board.Black])], bonus, correctionLimit)
	gravity(&ch.major[stm][hashIndex(pos.MajorHash)], bonus, correctionLimit)
	gravity(&ch.minor[stm][hashIndex(pos.MinorHash)], bonus, correctionLimit)
}

// Clear resets all correction values.
func (ch *CorrectionHistory) Clear() {
	*ch = CorrectionHistory{}
}
