package engine

import (
	"sync/atomic"

	"github.com/hailam/chesscore/internal/board"
	"github.com/hailam/chesscore/internal/nnue"
)

// stackOffset lets the search look two plies before the root without bounds checks.
const stackOffset = 2

// frame is the per-ply search state.
type frame struct {
	move       board.Move
	pieceTo    pieceTo
	staticEval int
	excluded   board.Move
	killer     board.Move
}

// Worker runs iterative deepening on a private board copy. Workers share
// only the transposition table and the engine's stop flag.
type Worker struct {
	id int
	e  *Engine

	board       *board.Board
	acc         *nnue.AccumulatorStack
	incremental bool

	nodes     atomic.Uint64
	selDepth  int
	rootDepth int

	h     heuristics
	stack [MaxPly + stackOffset + 2]frame
	pv    pvTable

	// Results of the deepest completed iteration.
	completed int
	bestMove  board.Move
	bestScore int
	pvLine    []board.Move
}

func newWorker(id int, e *Engine) *Worker {
	return &Worker{id: id, e: e, incremental: true}
}

// ID returns the worker's ID.
func (w *Worker) ID() int {
	return w.id
}

// Nodes returns the number of nodes searched by this worker.
func (w *Worker) Nodes() uint64 {
	return w.nodes.Load()
}

func (w *Worker) main() bool {
	return w.id == 0
}

// setup prepares the worker for a search from b.
func (w *Worker) setup(b *board.Board, net *nnue.Network) {
	w.board = b.Clone()
	if w.acc == nil || w.acc.Network() != net {
		w.acc = nnue.NewAccumulatorStack(net)
	}
	w.acc.Refresh(&w.board.Position)

	w.nodes.Store(0)
	w.selDepth = 0
	w.completed = 0
	w.bestMove = board.NoMove
	w.bestScore = -Infinity
	w.pvLine = nil
	// Killers carry over from the previous search.
	for i := range w.stack {
		w.stack[i] = frame{pieceTo: noPieceTo, staticEval: ScoreNone, killer: w.stack[i].killer}
	}
}

// clear forgets everything learned in previous games.
func (w *Worker) clear() {
	w.h.clear()
	for i := range w.stack {
		w.stack[i].killer = board.NoMove
	}
}

func (w *Worker) frame(ply int) *frame {
	return &w.stack[ply+stackOffset]
}

func (w *Worker) prevContexts(ply int) [2]pieceTo {
	return [2]pieceTo{w.frame(ply - 1).pieceTo, w.frame(ply - 2).pieceTo}
}

func (w *Worker) stopped() bool {
	return w.e.stop.Load()
}

// checkLimits runs on the main worker at every node and enforces the node
// and hard time limits every 4096 nodes, once depth 1 has completed.
func (w *Worker) checkLimits() {
	if !w.main() || w.completed == 0 {
		return
	}
	nodes := w.nodes.Load()
	if nodes&4095 != 0 {
		return
	}
	if w.e.limits.Nodes > 0 && w.e.totalNodes() >= w.e.limits.Nodes {
		w.e.stop.Store(true)
	}
	if w.e.tm.HardExpired() {
		w.e.stop.Store(true)
	}
}

// evaluate returns the network score of the current position, clear of mate scores.
func (w *Worker) evaluate() int {
	var v int
	if w.incremental {
		v = w.acc.Evaluate(w.board.SideToMove)
	} else {
		v = w.acc.Network().Evaluate(&w.board.Position)
	}
	return max(-MateBound+1, min(MateBound-1, v))
}

func (w *Worker) makeMove(m board.Move, ply int) {
	f := w.frame(ply)
	f.move = m
	f.pieceTo = makePieceTo(w.board.Mailbox[m.From()], m.To())
	if w.incremental {
		w.acc.Push(&w.board.Position, m)
	}
	w.board.MakeMove(m)
	w.nodes.Add(1)
}

func (w *Worker) undoMove() {
	w.board.UndoMove()
	if w.incremental {
		w.acc.Pop()
	}
}

func (w *Worker) makeNullMove(ply int) {
	f := w.frame(ply)
	f.move = board.NoMove
	f.pieceTo = noPieceTo
	if w.incremental {
		w.acc.PushNull()
	}
	w.board.MakeNullMove()
	w.nodes.Add(1)
}

func (w *Worker) undoNullMove() {
	w.board.UndoNullMove()
	if w.incremental {
		w.acc.Pop()
	}
}

func (w *Worker) isDraw() bool {
	return w.board.IsRepetition() || w.board.IsFiftyMoveDraw() || w.board.IsInsufficientMaterial()
}

// iterate runs iterative deepening until a limit or the stop flag ends it.
// Helpers skip some depths so the workers spread over different depths.
func (w *Worker) iterate() {
	maxDepth := MaxPly - 1
	if w.e.limits.Depth > 0 {
		maxDepth = min(w.e.limits.Depth, maxDepth)
	}

	prevScore := 0
	for depth := 1; depth <= maxDepth; depth++ {
		if w.stopped() {
			break
		}
		if !w.main() && depth > 1 && depth < maxDepth && (depth+w.id)%3 == 0 {
			continue
		}

		w.rootDepth = depth
		w.selDepth = 0
		score := w.aspiration(depth, prevScore)
		if w.stopped() && w.completed > 0 {
			break
		}

		prevScore = score
		w.completed = depth
		w.bestScore = score
		w.pvLine = w.pv.line()
		if len(w.pvLine) > 0 {
			w.bestMove = w.pvLine[0]
		}

		if w.main() && !w.e.iterationDone(w) {
			break
		}
	}
}

// aspiration searches the root in a window around the previous score,
// widening it after every fail.
func (w *Worker) aspiration(depth, prev int) int {
	alpha, beta := -Infinity, Infinity
	delta := aspirationWindow
	if depth >= aspirationDepth {
		alpha = max(prev-delta, -Infinity)
		beta = min(prev+delta, Infinity)
	}

	for {
		score := w.negamax(alpha, beta, depth, 0, false)
		if w.stopped() {
			return score
		}
		switch {
		case score <= alpha:
			beta = (alpha + beta) / 2
			alpha = max(score-delta, -Infinity)
		case score >= beta:
			beta = min(score+delta, Infinity)
		default:
			return score
		}
		delta += delta / 2
	}
}

// negamax is the principal variation search.
func (w *Worker) negamax(alpha, beta, depth, ply int, cutNode bool) int {
	pvNode := beta-alpha > 1
	root := ply == 0
	b := w.board
	pos := &b.Position

	if pvNode {
		w.pv.clear(ply)
	}
	inCheck := b.InCheck()
	if inCheck && ply < 2*w.rootDepth {
		depth++
	}
	if depth <= 0 {
		return w.quiescence(alpha, beta, ply)
	}

	w.checkLimits()
	if w.stopped() && w.completed > 0 {
		return 0
	}
	w.selDepth = max(w.selDepth, ply)

	if !root {
		if w.isDraw() {
			return DrawScore
		}
		if ply >= MaxPly-1 {
			if inCheck {
				return DrawScore
			}
			return w.evaluate()
		}
		alpha = max(alpha, -MateScore+ply)
		beta = min(beta, MateScore-ply-1)
		if alpha >= beta {
			return alpha
		}
	}

	f := w.frame(ply)
	excluded := f.excluded
	w.frame(ply + 1).excluded = board.NoMove

	var tte TTEntry
	ttHit := false
	ttMove := board.NoMove
	ttScore := ScoreNone
	if excluded == board.NoMove {
		tte, ttHit = w.e.tt.Probe(pos.Hash)
	}
	if ttHit {
		ttMove = tte.Move
		ttScore = scoreFromTT(tte.Score, ply)
		if !pvNode && tte.Depth >= depth &&
			(tte.Bound == BoundExact ||
				tte.Bound == BoundLower && ttScore >= beta ||
				tte.Bound == BoundUpper && ttScore <= alpha) {
			return ttScore
		}
	}

	rawEval, staticEval, eval := ScoreNone, ScoreNone, ScoreNone
	switch {
	case inCheck:
	case excluded != board.NoMove:
		staticEval = f.staticEval
		eval = staticEval
	default:
		if ttHit && tte.Eval != ScoreNone {
			rawEval = tte.Eval
		} else {
			rawEval = w.evaluate()
		}
		staticEval = w.h.corr.Correct(pos, rawEval)
		eval = staticEval
		if ttHit && ttScore != ScoreNone &&
			(tte.Bound == BoundLower && ttScore > eval || tte.Bound == BoundUpper && ttScore < eval) {
			eval = ttScore
		}
	}
	f.staticEval = staticEval

	improving := false
	if !inCheck {
		prev := w.frame(ply - 2).staticEval
		improving = prev == ScoreNone || staticEval > prev
	}

	if !pvNode && !inCheck && excluded == board.NoMove {
		// Reverse futility pruning.
		if depth <= rfpMaxDepth && eval < MateBound &&
			eval-rfpMargin*(depth-btoi(improving)) >= beta {
			return eval
		}

		// Null move pruning.
		if depth >= nmpMinDepth && eval >= beta && staticEval >= beta &&
			!b.LastMoveWasNull() && pos.HasNonPawnMaterial(pos.SideToMove) && beta > -MateBound {
			r := 3 + depth/3 + min((eval-beta)/200, 3)
			w.makeNullMove(ply)
			score := -w.negamax(-beta, -beta+1, depth-r, ply+1, !cutNode)
			w.undoNullMove()
			if w.stopped() && w.completed > 0 {
				return 0
			}
			if score >= beta {
				if score >= MateBound {
					score = beta
				}
				return score
			}
		}
	}

	// Internal iterative reduction.
	if depth >= iirMinDepth && ttMove == board.NoMove && (pvNode || cutNode) && excluded == board.NoMove {
		depth--
	}

	mp := newMovePicker(pos, &w.h, w.prevContexts(ply), ttMove, f.killer)
	alphaOrig := alpha
	bestScore := -Infinity
	bestMove := board.NoMove
	moveCount := 0
	skipQuiets := false
	var quiets [64]board.Move
	nQuiets := 0

	for m := mp.Next(); m != board.NoMove; m = mp.Next() {
		if m == excluded || !pos.IsLegal(m) {
			continue
		}
		quiet := !isNoisy(pos, m)
		if quiet && skipQuiets {
			continue
		}
		moveCount++

		if !root && bestScore > -MateBound && pos.HasNonPawnMaterial(pos.SideToMove) {
			lmrDepth := max(depth-1-lmrTable[min(depth, 63)][min(moveCount, 63)], 0)
			if quiet {
				if depth <= lmpMaxDepth && moveCount > lmpThreshold[btoi(improving)][depth] {
					skipQuiets = true
					continue
				}
				if !inCheck && lmrDepth <= futilityMaxDepth &&
					staticEval+futilityBase+futilityPerDepth*lmrDepth <= alpha {
					skipQuiets = true
					continue
				}
				if !pos.SEE(m, seeQuietMargin*lmrDepth) {
					continue
				}
			} else if depth <= futilityMaxDepth && !pos.SEE(m, seeCaptureMargin*depth) {
				continue
			}
		}

		// Singular extension.
		extension := 0
		if !root && m == ttMove && excluded == board.NoMove && depth >= singularMinDepth &&
			ply < 2*w.rootDepth && tte.Bound&BoundLower != 0 && tte.Depth >= depth-3 &&
			ttScore > -MateBound && ttScore < MateBound {
			sBeta := ttScore - 2*depth
			f.excluded = m
			score := w.negamax(sBeta-1, sBeta, (depth-1)/2, ply, cutNode)
			f.excluded = board.NoMove
			switch {
			case score < sBeta:
				extension = 1
			case sBeta >= beta:
				return sBeta
			case ttScore >= beta:
				extension = -1
			}
		}

		newDepth := depth - 1 + extension
		histScore := 0
		if quiet {
			histScore = w.h.quietScore(pos, m, w.prevContexts(ply))
		}

		w.makeMove(m, ply)
		givesCheck := b.InCheck()

		var score int
		if depth >= 2 && moveCount > 1+btoi(root) {
			r := lmrTable[min(depth, 63)][min(moveCount, 63)]
			r += btoi(!pvNode) + btoi(cutNode)
			r -= btoi(improving) + btoi(givesCheck)
			if quiet {
				r -= histScore / 8192
			} else {
				r--
			}
			reduced := min(newDepth, max(1, newDepth-r))
			score = -w.negamax(-alpha-1, -alpha, reduced, ply+1, true)
			if score > alpha && reduced < newDepth {
				score = -w.negamax(-alpha-1, -alpha, newDepth, ply+1, !cutNode)
			}
		} else if !pvNode || moveCount > 1 {
			score = -w.negamax(-alpha-1, -alpha, newDepth, ply+1, !cutNode)
		}
		if pvNode && (moveCount == 1 || score > alpha) {
			score = -w.negamax(-beta, -alpha, newDepth, ply+1, false)
		}
		w.undoMove()

		if w.stopped() && w.completed > 0 {
			return 0
		}

		if score > bestScore {
			bestScore = score
			if score > alpha {
				bestMove = m
				if pvNode {
					w.pv.update(ply, m)
				}
				if score >= beta {
					break
				}
				alpha = score
			}
		}
		if quiet && m != bestMove && nQuiets < len(quiets) {
			quiets[nQuiets] = m
			nQuiets++
		}
	}

	if moveCount == 0 {
		switch {
		case excluded != board.NoMove:
			return alpha
		case inCheck:
			return -MateScore + ply
		}
		return DrawScore
	}

	if bestScore >= beta && !isNoisy(pos, bestMove) {
		w.updateQuietStats(ply, depth, bestMove, quiets[:nQuiets])
	}

	if excluded == board.NoMove {
		bound := BoundExact
		switch {
		case bestScore >= beta:
			bound = BoundLower
		case bestScore <= alphaOrig:
			bound = BoundUpper
		}
		w.e.tt.Store(pos.Hash, bestMove, scoreToTT(bestScore, ply), rawEval, depth, bound)

		if !inCheck && (bestMove == board.NoMove || !isNoisy(pos, bestMove)) &&
			!(bound == BoundLower && bestScore <= staticEval) &&
			!(bound == BoundUpper && bestScore >= staticEval) {
			w.h.corr.Update(pos, bestScore-staticEval, depth)
		}
	}
	return bestScore
}

// quiescence resolves captures until the position is quiet. In check every
// evasion is searched.
func (w *Worker) quiescence(alpha, beta, ply int) int {
	pvNode := beta-alpha > 1
	b := w.board
	pos := &b.Position

	if pvNode {
		w.pv.clear(ply)
	}
	w.checkLimits()
	if w.stopped() && w.completed > 0 {
		return 0
	}
	w.selDepth = max(w.selDepth, ply)

	if w.isDraw() {
		return DrawScore
	}
	inCheck := b.InCheck()
	if ply >= MaxPly-1 {
		if inCheck {
			return DrawScore
		}
		return w.evaluate()
	}

	tte, ttHit := w.e.tt.Probe(pos.Hash)
	ttMove := board.NoMove
	if ttHit {
		ttMove = tte.Move
		ttScore := scoreFromTT(tte.Score, ply)
		if !pvNode && (tte.Bound == BoundExact ||
			tte.Bound == BoundLower && ttScore >= beta ||
			tte.Bound == BoundUpper && ttScore <= alpha) {
			return ttScore
		}
	}

	rawEval, standPat := ScoreNone, ScoreNone
	bestScore := -Infinity
	if !inCheck {
		if ttHit && tte.Eval != ScoreNone {
			rawEval = tte.Eval
		} else {
			rawEval = w.evaluate()
		}
		standPat = w.h.corr.Correct(pos, rawEval)
		if standPat >= beta {
			return standPat
		}
		alpha = max(alpha, standPat)
		bestScore = standPat
	}

	var mp *MovePicker
	if inCheck {
		mp = newMovePicker(pos, &w.h, w.prevContexts(ply), ttMove, board.NoMove)
	} else {
		mp = newNoisyPicker(pos, ttMove)
	}

	alphaOrig := alpha
	bestMove := board.NoMove
	moveCount := 0
	for m := mp.Next(); m != board.NoMove; m = mp.Next() {
		if !pos.IsLegal(m) {
			continue
		}
		moveCount++
		if !inCheck {
			if !pos.SEE(m, 0) {
				continue
			}
			if !m.IsPromotion() {
				victim := board.SEEValue[pos.Mailbox[m.To()].Type()]
				if m.Flag() == board.FlagEnPassant {
					victim = board.SEEValue[board.Pawn]
				}
				if futile := standPat + qsFutilityMargin + victim; futile <= alpha {
					bestScore = max(bestScore, futile)
					continue
				}
			}
		}

		w.makeMove(m, ply)
		score := -w.quiescence(-beta, -alpha, ply+1)
		w.undoMove()
		if w.stopped() && w.completed > 0 {
			return 0
		}

		if score > bestScore {
			bestScore = score
			if score > alpha {
				bestMove = m
				if pvNode {
					w.pv.update(ply, m)
				}
				if score >= beta {
					break
				}
				alpha = score
			}
		}
	}

	if inCheck && moveCount == 0 {
		return -MateScore + ply
	}

	bound := BoundUpper
	switch {
	case bestScore >= beta:
		bound = BoundLower
	case bestScore > alphaOrig:
		bound = BoundExact
	}
	w.e.tt.Store(pos.Hash, bestMove, scoreToTT(bestScore, ply), rawEval, 0, bound)
	return bestScore
}

// updateQuietStats rewards the quiet move that caused a cutoff and
// penalises the quiets tried before it.
func (w *Worker) updateQuietStats(ply, depth int, best board.Move, tried []board.Move) {
	pos := &w.board.Position
	prev := w.prevContexts(ply)
	bonus := historyBonus(depth)

	w.frame(ply).killer = best
	w.updateQuiet(pos, best, prev, bonus)
	for _, m := range tried {
		w.updateQuiet(pos, m, prev, -bonus)
	}
}

func (w *Worker) updateQuiet(pos *board.Position, m board.Move, prev [2]pieceTo, bonus int) {
	w.h.quiet.Update(pos, m, bonus)
	cur := makePieceTo(pos.Mailbox[m.From()], m.To())
	w.h.cont.Update(prev[0], cur, bonus)
	w.h.cont.Update(prev[1], cur, bonus)
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
