package engine

import "github.com/hailam/chesscore/internal/board"

type pickerStage uint8

const (
	stageTTMove pickerStage = iota
	stageGenerate
	stageGenerateNoisy
	stageEmit
	stageDone
)

// Move ordering score bands.
const (
	scoreGoodNoisy = 1 << 24
	scoreKiller    = 1 << 20
	scoreBadNoisy  = -(1 << 24)
)

// heuristics groups the per-worker move ordering tables.
type heuristics struct {
	quiet QuietHistory
	cont  ContinuationHistory
	corr  CorrectionHistory
}

func (h *heuristics) clear() {
	h.quiet.Clear()
	h.cont.Clear()
	h.corr.Clear()
}

// quietScore is the combined history score of a quiet move.
func (h *heuristics) quietScore(pos *board.Position, m board.Move, prev [2]pieceTo) int {
	cur := makePieceTo(pos.Mailbox[m.From()], m.To())
	return h.quiet.Get(pos, m) + h.cont.Get(prev[0], cur) + h.cont.Get(prev[1], cur)
}

// MovePicker yields pseudo-legal moves in decreasing order of promise:
// the hash move, then the generated moves by score. Scores are computed once
// at generation and moves are selected lazily, so a cutoff after the first
// few moves never pays for a full sort.
type MovePicker struct {
	pos    *board.Position
	h      *heuristics
	prev   [2]pieceTo
	ttMove board.Move
	killer board.Move
	useSEE bool

	stage  pickerStage
	moves  board.MoveList
	scores [256]int
	next   int
}

// newMovePicker orders every pseudo-legal move for the main search.
func newMovePicker(pos *board.Position, h *heuristics, prev [2]pieceTo, ttMove, killer board.Move) *MovePicker {
	mp := &MovePicker{pos: pos, h: h, prev: prev, killer: killer, useSEE: true, stage: stageTTMove}
	if pos.IsPseudoLegal(ttMove) {
		mp.ttMove = ttMove
	}
	return mp
}

// newNoisyPicker orders the quiescence moves: captures and queen promotions.
func newNoisyPicker(pos *board.Position, ttMove board.Move) *MovePicker {
	mp := &MovePicker{pos: pos, stage: stageTTMove}
	if pos.IsPseudoLegal(ttMove) && inNoisySet(pos, ttMove) {
		mp.ttMove = ttMove
	}
	return mp
}

// isNoisy reports whether m captures or promotes.
func isNoisy(pos *board.Position, m board.Move) bool {
	return pos.Mailbox[m.To()] != board.NoPiece || m.Flag() == board.FlagEnPassant || m.IsPromotion()
}

// inNoisySet reports whether GenerateNoisy produces m.
func inNoisySet(pos *board.Position, m board.Move) bool {
	return pos.Mailbox[m.To()] != board.NoPiece || m.Flag() == board.FlagEnPassant || m.Promotion() == board.Queen
}

// Next returns the next move, or NoMove when the picker is exhausted.
func (mp *MovePicker) Next() board.Move {
	for {
		switch mp.stage {
		case stageTTMove:
			if mp.h == nil {
				mp.stage = stageGenerateNoisy
			} else {
				mp.stage = stageGenerate
			}
			if mp.ttMove != board.NoMove {
				return mp.ttMove
			}

		case stageGenerate:
			mp.pos.GenerateMoves(&mp.moves)
			mp.score()
			mp.stage = stageEmit

		case stageGenerateNoisy:
			mp.pos.GenerateNoisy(&mp.moves)
			mp.score()
			mp.stage = stageEmit

		case stageEmit:
			for mp.next < mp.moves.Len() {
				m := mp.selectBest()
				if m != mp.ttMove {
					return m
				}
			}
			mp.stage = stageDone

		case stageDone:
			return board.NoMove
		}
	}
}

// selectBest swaps the best remaining move into place and returns it.
func (mp *MovePicker) selectBest() board.Move {
	best := mp.next
	for i := mp.next + 1; i < mp.moves.Len(); i++ {
		if mp.scores[i] > mp.scores[best] {
			best = i
		}
	}
	mp.moves.Swap(mp.next, best)
	mp.scores[mp.next], mp.scores[best] = mp.scores[best], mp.scores[mp.next]
	m := mp.moves.Get(mp.next)
	mp.next++
	return m
}

func (mp *MovePicker) score() {
	for i, m := range mp.moves.Slice() {
		if isNoisy(mp.pos, m) {
			mp.scores[i] = mp.noisyScore(m)
		} else if m == mp.killer {
			mp.scores[i] = scoreKiller
		} else {
			mp.scores[i] = mp.h.quietScore(mp.pos, m, mp.prev)
		}
	}
}

// noisyScore ranks captures by MVV-LVA. In the main search captures losing
// material by SEE drop below the quiets, as do underpromotions.
func (mp *MovePicker) noisyScore(m board.Move) int {
	victim := mp.pos.Mailbox[m.To()].Type()
	if m.Flag() == board.FlagEnPassant {
		victim = board.Pawn
	}
	attacker := mp.pos.Mailbox[m.From()].Type()
	s := 10*board.SEEValue[victim] - board.SEEValue[attacker]

	if m.IsPromotion() {
		s += board.SEEValue[m.Promotion()]
		if m.Promotion() != board.Queen {
			return scoreBadNoisy + s
		}
	}
	if mp.useSEE && !mp.pos.SEE(m, 0) {
		return scoreBadNoisy + s
	}
	return scoreGoodNoisy + s
}
