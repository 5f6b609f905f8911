package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/hailam/chesscore/internal/board"
)

// Score constants. Mate scores are MateScore minus the ply of the mate.
const (
	Infinity  = 32001
	MateScore = 32000
	MaxPly    = 256
	MateBound = MateScore - MaxPly
	ScoreNone = -32002
	DrawScore = 0
)

// Pruning and reduction constants.
const (
	aspirationDepth  = 4
	aspirationWindow = 25

	rfpMaxDepth = 8
	rfpMargin   = 80

	nmpMinDepth = 3

	iirMinDepth = 4

	lmpMaxDepth = 8

	futilityMaxDepth = 8
	futilityBase     = 100
	futilityPerDepth = 90

	seeQuietMargin   = -60
	seeCaptureMargin = -100

	singularMinDepth = 7

	qsFutilityMargin = 150
)

// lmpThreshold[improving][depth] is the quiet move count after which
// remaining quiets are skipped.
var lmpThreshold [2][lmpMaxDepth + 1]int

// lmrTable[depth][moveNumber] is the base late move reduction.
var lmrTable [64][64]int

func init() {
	for d := 1; d <= lmpMaxDepth; d++ {
		lmpThreshold[0][d] = (3 + d*d) / 2
		lmpThreshold[1][d] = 3 + d*d
	}
	for d := 1; d < 64; d++ {
		for n := 1; n < 64; n++ {
			lmrTable[d][n] = int(0.75 + math.Log(float64(d))*math.Log(float64(n))/2.25)
		}
	}
}

// Limits constrains a search. Zero values mean no limit of that kind.
type Limits struct {
	Depth     int
	Nodes     uint64
	MoveTime  time.Duration
	Time      [2]time.Duration
	Inc       [2]time.Duration
	MovesToGo int
	Infinite  bool
}

// Info is reported after every completed iteration.
type Info struct {
	Depth    int
	SelDepth int
	Score    int
	Nodes    uint64
	Time     time.Duration
	HashFull int
	PV       []board.Move
}

// Result is the outcome of a search: the best move of the deepest completed
// iteration and its score.
type Result struct {
	BestMove board.Move
	Ponder   board.Move
	Score    int
	Depth    int
	SelDepth int
	Nodes    uint64
	PV       []board.Move
	Elapsed  time.Duration
	Source   string
}

// IsMateScore reports whether score encodes a forced mate.
func IsMateScore(score int) bool {
	return score >= MateBound || score <= -MateBound
}

// FormatScore renders a score as "cp N" or "mate N", with N in moves.
func FormatScore(score int) string {
	switch {
	case score >= MateBound:
		return fmt.Sprintf("mate %d", (MateScore-score+1)/2)
	case score <= -MateBound:
		return fmt.Sprintf("mate %d", -(MateScore+score)/2)
	}
	return fmt.Sprintf("cp %d", score)
}

// pvTable is the triangular principal variation store.
type pvTable struct {
	length [MaxPly + 1]int
	moves  [MaxPly + 1][MaxPly + 1]board.Move
}

func (pv *pvTable) clear(ply int) {
	pv.length[ply] = 0
}

func (pv *pvTable) update(ply int, m board.Move) {
	pv.moves[ply][0] = m
	n := copy(pv.moves[ply][1:], pv.moves[ply+1][:pv.length[ply+1]])
	pv.length[ply] = n + 1
}

func (pv *pvTable) line() []board.Move {
	out := make([]board.Move, pv.length[0])
	copy(out, pv.moves[0][:pv.length[0]])
	return out
}
