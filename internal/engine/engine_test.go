package engine

import (
	"context"
	"testing"
	"time"

	"github.com/hailam/chesscore/internal/board"
	"github.com/hailam/chesscore/internal/tablebase"
)

const kiwipete = "r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1"

func mustBoard(t testing.TB, fen string) *board.Board {
	t.Helper()
	b, err := board.ParseFEN(fen)
	if err != nil {
		t.Fatalf("ParseFEN(%q): %v", fen, err)
	}
	return b
}

func newTestEngine(t testing.TB, threads int) *Engine {
	t.Helper()
	opts := DefaultOptions()
	opts.Threads = threads
	e, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func isLegal(b *board.Board, m board.Move) bool {
	legal := b.LegalMoves()
	return legal.Contains(m)
}

func TestTranspositionTable(t *testing.T) {
	tt := NewTranspositionTable(1)
	m := board.NewMove(board.E2, board.E4, board.FlagDoublePush)

	if _, ok := tt.Probe(0x1234); ok {
		t.Fatal("probe hit on an empty table")
	}

	tt.Store(0x1234, m, 57, 31, 9, BoundExact)
	e, ok := tt.Probe(0x1234)
	if !ok {
		t.Fatal("probe missed a stored entry")
	}
	if e.Move != m || e.Score != 57 || e.Eval != 31 || e.Depth != 9 || e.Bound != BoundExact {
		t.Errorf("got %+v", e)
	}

	// A shallower bound does not replace a much deeper entry.
	tt.Store(0x1234, board.NoMove, -10, 0, 2, BoundUpper)
	if e, _ := tt.Probe(0x1234); e.Depth != 9 {
		t.Errorf("shallow store replaced deep entry: %+v", e)
	}

	// A store without a move keeps the previous move.
	tt.Store(0x1234, board.NoMove, 12, 0, 10, BoundLower)
	if e, _ := tt.Probe(0x1234); e.Move != m || e.Depth != 10 {
		t.Errorf("move not preserved: %+v", e)
	}

	tt.Store(0x99, m, 0, 0, 400, BoundExact)
	if e, _ := tt.Probe(0x99); e.Depth != 255 {
		t.Errorf("depth not clamped: %d", e.Depth)
	}

	tt.Clear()
	if _, ok := tt.Probe(0x1234); ok {
		t.Error("probe hit after Clear")
	}
}

func TestMateScoresAdjustedByPly(t *testing.T) {
	tests := []struct {
		score, ply int
	}{
		{MateScore - 5, 3},
		{-MateScore + 8, 6},
		{120, 10},
		{DrawScore, 0},
	}
	for _, tt := range tests {
		stored := scoreToTT(tt.score, tt.ply)
		if got := scoreFromTT(stored, tt.ply); got != tt.score {
			t.Errorf("round trip of %d at ply %d = %d", tt.score, tt.ply, got)
		}
	}
	// Mate found 3 plies below the node is mate in 2 from the node itself.
	if got := scoreToTT(MateScore-5, 3); got != MateScore-2 {
		t.Errorf("scoreToTT = %d, want %d", got, MateScore-2)
	}
}

func TestFormatScore(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{35, "cp 35"},
		{-120, "cp -120"},
		{MateScore - 1, "mate 1"},
		{MateScore - 3, "mate 2"},
		{-MateScore + 2, "mate -1"},
		{-MateScore + 4, "mate -2"},
	}
	for _, tt := range tests {
		if got := FormatScore(tt.score); got != tt.want {
			t.Errorf("FormatScore(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
	if IsMateScore(tablebaseWin) {
		t.Error("tablebase score reported as mate")
	}
}

func TestHistoryGravityStaysBounded(t *testing.T) {
	var v int16
	for range 1000 {
		gravity(&v, historyBonus(20), historyMax)
	}
	if v <= 0 || int(v) > historyMax {
		t.Errorf("after repeated bonuses v = %d", v)
	}
	for range 1000 {
		gravity(&v, -historyBonus(20), historyMax)
	}
	if v >= 0 || int(v) < -historyMax {
		t.Errorf("after repeated maluses v = %d", v)
	}
}

func TestCorrectionHistory(t *testing.T) {
	b := mustBoard(t, kiwipete)
	ch := new(CorrectionHistory)

	if got := ch.Correct(&b.Position, 40); got != 40 {
		t.Errorf("empty history changed eval to %d", got)
	}
	for range 200 {
		ch.Update(&b.Position, 300, 10)
	}
	if got := ch.Correct(&b.Position, 40); got <= 40 {
		t.Errorf("positive corrections gave %d", got)
	}
	if got := ch.Correct(&b.Position, MateBound+50); got >= MateBound {
		t.Errorf("corrected eval %d reached the mate range", got)
	}
	ch.Clear()
	if got := ch.Correction(&b.Position); got != 0 {
		t.Errorf("correction after Clear = %d", got)
	}
}

func TestMovePicker(t *testing.T) {
	for _, fen := range []string{board.StartFEN, kiwipete, "r3k2r/Pppp1ppp/1b3nbN/nP6/BBP1P3/q4N2/Pp1P2PP/R2Q1RK1 w kq - 0 1"} {
		t.Run(fen, func(t *testing.T) {
			b := mustBoard(t, fen)
			pos := &b.Position

			var all board.MoveList
			pos.GenerateMoves(&all)
			ttMove := all.Get(all.Len() - 1)

			h := new(heuristics)
			mp := newMovePicker(pos, h, [2]pieceTo{noPieceTo, noPieceTo}, ttMove, board.NoMove)

			seen := map[board.Move]bool{}
			var order []board.Move
			for m := mp.Next(); m != board.NoMove; m = mp.Next() {
				if seen[m] {
					t.Fatalf("move %s returned twice", m)
				}
				seen[m] = true
				order = append(order, m)
			}
			if len(order) != all.Len() {
				t.Fatalf("picker returned %d moves, generator %d", len(order), all.Len())
			}
			if order[0] != ttMove {
				t.Errorf("first move %s, want hash move %s", order[0], ttMove)
			}

			quietSeen := false
			for _, m := range order[1:] {
				goodNoisy := isNoisy(pos, m) && m.Promotion() != board.Knight &&
					m.Promotion() != board.Bishop && m.Promotion() != board.Rook && pos.SEE(m, 0)
				if !isNoisy(pos, m) {
					quietSeen = true
				} else if goodNoisy && quietSeen {
					t.Errorf("good capture %s ordered after a quiet move", m)
				}
			}
		})
	}
}

func TestNoisyPicker(t *testing.T) {
	b := mustBoard(t, kiwipete)
	pos := &b.Position

	var noisy board.MoveList
	pos.GenerateNoisy(&noisy)

	mp := newNoisyPicker(pos, board.NewMove(board.E2, board.A6, board.FlagNormal))
	n := 0
	for m := mp.Next(); m != board.NoMove; m = mp.Next() {
		if !inNoisySet(pos, m) {
			t.Errorf("quiet move %s in quiescence picker", m)
		}
		n++
	}
	if n != noisy.Len() {
		t.Errorf("noisy picker returned %d moves, want %d", n, noisy.Len())
	}
}

func TestTimeManager(t *testing.T) {
	var tm TimeManager

	tm.Init(Limits{MoveTime: time.Second}, board.White, 50*time.Millisecond)
	if tm.Soft() != 950*time.Millisecond || tm.Hard() != 950*time.Millisecond {
		t.Errorf("movetime: soft %v hard %v", tm.Soft(), tm.Hard())
	}

	limits := Limits{Time: [2]time.Duration{time.Minute, 10 * time.Second}}
	tm.Init(limits, board.Black, 0)
	if tm.Soft() <= 0 || tm.Soft() > tm.Hard() || tm.Hard() > 10*time.Second {
		t.Errorf("clock: soft %v hard %v", tm.Soft(), tm.Hard())
	}
	if tm.SoftExpired(0) || tm.HardExpired() {
		t.Error("fresh time manager already expired")
	}

	tm.Init(Limits{Infinite: true}, board.White, 0)
	if tm.SoftExpired(10) || tm.HardExpired() {
		t.Error("infinite search has a time limit")
	}
}

func TestSearchFindsMate(t *testing.T) {
	tests := []struct {
		name  string
		fen   string
		depth int
		move  string
		min   int
	}{
		{"back rank", "6k1/5ppp/8/8/8/8/5PPP/3R2K1 w - - 0 1", 4, "d1d8", MateScore - 1},
		{"scholar", "r1bqkb1r/pppp1ppp/2n2n2/4p2Q/2B1P3/8/PPPP1PPP/RNB1K1NR w KQkq - 4 4", 4, "h5f7", MateScore - 1},
		{"rook", "7k/8/5K2/8/8/8/8/R7 w - - 0 1", 8, "", MateBound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, 1)
			b := mustBoard(t, tt.fen)
			res := e.Search(context.Background(), b, Limits{Depth: tt.depth})
			if tt.move != "" && res.BestMove.String() != tt.move {
				t.Errorf("best move %s, want %s", res.BestMove, tt.move)
			}
			if res.Score < tt.min {
				t.Errorf("score %s, want at least %s", FormatScore(res.Score), FormatScore(tt.min))
			}
		})
	}
}

func TestSearchWithoutLegalMoves(t *testing.T) {
	tests := []struct {
		name  string
		fen   string
		score int
	}{
		{"checkmate", "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3", -MateScore},
		{"stalemate", "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1", DrawScore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, 1)
			res := e.Search(context.Background(), mustBoard(t, tt.fen), Limits{Depth: 5})
			if res.BestMove != board.NoMove {
				t.Errorf("best move %s in a terminal position", res.BestMove)
			}
			if res.Score != tt.score {
				t.Errorf("score %d, want %d", res.Score, tt.score)
			}
		})
	}
}

func TestSearchDepthLimit(t *testing.T) {
	e := newTestEngine(t, 1)
	b := mustBoard(t, kiwipete)
	before := b.FEN()

	var infos []Info
	e.OnInfo = func(info Info) { infos = append(infos, info) }

	res := e.Search(context.Background(), b, Limits{Depth: 5})
	if res.Depth != 5 {
		t.Errorf("completed depth %d, want 5", res.Depth)
	}
	if !isLegal(b, res.BestMove) {
		t.Errorf("illegal best move %s", res.BestMove)
	}
	if len(res.PV) == 0 || res.PV[0] != res.BestMove {
		t.Errorf("pv %v does not start with best move %s", res.PV, res.BestMove)
	}
	if b.FEN() != before {
		t.Errorf("search modified the board: %s", b.FEN())
	}
	if len(infos) != 5 {
		t.Fatalf("got %d info reports, want 5", len(infos))
	}
	for i, info := range infos {
		if info.Depth != i+1 {
			t.Errorf("info %d has depth %d", i, info.Depth)
		}
	}
}

func TestSearchNodeLimit(t *testing.T) {
	e := newTestEngine(t, 1)
	const limit = 20000
	res := e.Search(context.Background(), mustBoard(t, kiwipete), Limits{Nodes: limit})
	if res.Nodes > limit+8192 {
		t.Errorf("searched %d nodes with a limit of %d", res.Nodes, limit)
	}
	if res.BestMove == board.NoMove {
		t.Error("no best move")
	}
}

func TestSearchMoveTime(t *testing.T) {
	e := newTestEngine(t, 1)
	start := time.Now()
	res := e.Search(context.Background(), mustBoard(t, board.StartFEN), Limits{MoveTime: 200 * time.Millisecond})
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("200ms search took %v", elapsed)
	}
	if res.BestMove == board.NoMove {
		t.Error("no best move")
	}
}

func TestSearchStops(t *testing.T) {
	t.Run("context", func(t *testing.T) {
		e := newTestEngine(t, 2)
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		b := mustBoard(t, kiwipete)
		res := e.Search(ctx, b, Limits{Infinite: true})
		if !isLegal(b, res.BestMove) {
			t.Errorf("illegal best move %s", res.BestMove)
		}
	})

	t.Run("stop", func(t *testing.T) {
		e := newTestEngine(t, 1)
		b := mustBoard(t, board.StartFEN)
		done := make(chan Result)
		go func() { done <- e.Search(context.Background(), b, Limits{Infinite: true}) }()

		time.Sleep(100 * time.Millisecond)
		e.Stop()
		select {
		case res := <-done:
			if !isLegal(b, res.BestMove) {
				t.Errorf("illegal best move %s", res.BestMove)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("search ignored Stop")
		}
	})
}

func TestLazySMP(t *testing.T) {
	e := newTestEngine(t, 4)
	b := mustBoard(t, kiwipete)
	res := e.Search(context.Background(), b, Limits{Depth: 7})
	if !isLegal(b, res.BestMove) {
		t.Errorf("illegal best move %s", res.BestMove)
	}
	if res.Depth != 7 {
		t.Errorf("depth %d, want 7", res.Depth)
	}
	var helperNodes uint64
	for _, w := range e.workers[1:] {
		helperNodes += w.Nodes()
	}
	if helperNodes == 0 {
		t.Error("helpers searched no nodes")
	}
}

func TestBenchIsDeterministic(t *testing.T) {
	e := newTestEngine(t, 1)
	first, err := e.Bench(context.Background(), 4)
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.Bench(context.Background(), 4)
	if err != nil {
		t.Fatal(err)
	}
	if first.Nodes != second.Nodes {
		t.Errorf("bench nodes %d then %d", first.Nodes, second.Nodes)
	}
	t.Logf("bench: %d nodes, %d nps", second.Nodes, second.NPS())
}

func TestSetOptions(t *testing.T) {
	e := newTestEngine(t, 1)

	opts := e.Options()
	opts.Threads = 3
	opts.HashMB = 2
	if err := e.SetOptions(opts); err != nil {
		t.Fatal(err)
	}
	if len(e.workers) != 3 {
		t.Errorf("%d workers, want 3", len(e.workers))
	}

	opts.Threads = 0
	if err := e.SetOptions(opts); err == nil {
		t.Error("zero threads accepted without error")
	}
	if got := e.Options().Threads; got != 1 {
		t.Errorf("threads clamped to %d, want 1", got)
	}

	opts.EvalFile = t.TempDir() + "/missing.nnue"
	if err := e.SetOptions(opts); err == nil {
		t.Error("missing network file accepted")
	}
}

type fixedProber struct {
	result tablebase.RootResult
	calls  int
}

func (p *fixedProber) ProbeRoot(context.Context, tablebase.Query) (tablebase.RootResult, error) {
	p.calls++
	return p.result, nil
}

func (p *fixedProber) MaxPieces() int { return 7 }

func TestTablebaseRoot(t *testing.T) {
	e := newTestEngine(t, 1)
	p := &fixedProber{result: tablebase.RootResult{
		From: board.E7, To: board.E8, Promotion: board.Queen, WDL: tablebase.WDLWin,
	}}
	e.SetProber(p)

	res := e.Search(context.Background(), mustBoard(t, "8/4P3/8/8/8/k7/8/4K3 w - - 0 1"), Limits{Depth: 10})
	if res.Source != "tablebase" {
		t.Fatalf("source %q, want tablebase", res.Source)
	}
	if res.BestMove.String() != "e7e8q" {
		t.Errorf("best move %s, want e7e8q", res.BestMove)
	}
	if res.Score != tablebaseWin {
		t.Errorf("score %d, want %d", res.Score, tablebaseWin)
	}

	// Too many pieces: the search runs instead.
	res = e.Search(context.Background(), mustBoard(t, board.StartFEN), Limits{Depth: 2})
	if res.Source != "search" || p.calls != 1 {
		t.Errorf("source %q after %d probes", res.Source, p.calls)
	}
}

// slowProber answers only after delay and ignores cancellation.
type slowProber struct {
	delay time.Duration
}

func (p slowProber) ProbeRoot(context.Context, tablebase.Query) (tablebase.RootResult, error) {
	time.Sleep(p.delay)
	return tablebase.RootResult{From: board.E7, To: board.E8, Promotion: board.Queen, WDL: tablebase.WDLWin}, nil
}

func (p slowProber) MaxPieces() int { return 7 }

func TestTablebaseRespectsMoveTime(t *testing.T) {
	e := newTestEngine(t, 1)
	e.SetProber(slowProber{delay: 2 * time.Second})
	b := mustBoard(t, "8/4P3/8/8/8/k7/8/4K3 w - - 0 1")

	start := time.Now()
	res := e.Search(context.Background(), b, Limits{MoveTime: 100 * time.Millisecond})
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("100ms search took %v", elapsed)
	}
	if res.Source != "search" {
		t.Errorf("source %q, want search", res.Source)
	}
	if !isLegal(b, res.BestMove) {
		t.Errorf("illegal best move %s", res.BestMove)
	}
}

func TestUpdateQuietStats(t *testing.T) {
	e := newTestEngine(t, 1)
	w := e.workers[0]
	b := mustBoard(t, "rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq - 0 2")
	w.setup(b, e.net.Load())
	pos := &w.board.Position

	w.frame(-1).pieceTo = makePieceTo(board.BlackPawn, board.E5)
	w.frame(-2).pieceTo = makePieceTo(board.WhitePawn, board.E4)
	prev := w.prevContexts(0)

	move := func(s string) board.Move {
		m, err := w.board.ParseMove(s)
		if err != nil {
			t.Fatal(err)
		}
		return m
	}
	best, tried := move("g1f3"), []board.Move{move("a2a3"), move("b1c3")}

	w.updateQuietStats(0, 5, best, tried)

	if k := w.frame(0).killer; k != best {
		t.Errorf("killer %s, want %s", k, best)
	}
	if v := w.h.quiet.Get(pos, best); v <= 0 {
		t.Errorf("cutoff move history %d", v)
	}
	cur := makePieceTo(pos.Mailbox[best.From()], best.To())
	for i, p := range prev {
		if v := w.h.cont.Get(p, cur); v <= 0 {
			t.Errorf("cutoff move continuation[%d] %d", i, v)
		}
	}
	for _, m := range tried {
		if v := w.h.quiet.Get(pos, m); v >= 0 {
			t.Errorf("%s history %d after failing low", m, v)
		}
		cur := makePieceTo(pos.Mailbox[m.From()], m.To())
		for i, p := range prev {
			if v := w.h.cont.Get(p, cur); v >= 0 {
				t.Errorf("%s continuation[%d] %d after failing low", m, i, v)
			}
		}
	}
}

func TestKillersPersistAcrossSearches(t *testing.T) {
	e := newTestEngine(t, 1)
	w := e.workers[0]
	b := mustBoard(t, board.StartFEN)
	killer, err := b.ParseMove("g1f3")
	if err != nil {
		t.Fatal(err)
	}

	w.setup(b, e.net.Load())
	w.frame(3).killer = killer
	w.setup(b, e.net.Load())
	if k := w.frame(3).killer; k != killer {
		t.Errorf("killer %s after setup, want %s", k, killer)
	}
	if f := w.frame(3); f.pieceTo != noPieceTo || f.staticEval != ScoreNone {
		t.Errorf("frame not reset: %+v", *f)
	}

	w.clear()
	if k := w.frame(3).killer; k != board.NoMove {
		t.Errorf("killer %s after clear", k)
	}
}

func TestNewGameClearsTable(t *testing.T) {
	e := newTestEngine(t, 1)
	b := mustBoard(t, board.StartFEN)
	e.Search(context.Background(), b, Limits{Depth: 3})
	if _, ok := e.tt.Probe(b.Hash); !ok {
		t.Fatal("root not stored in the table")
	}
	e.NewGame()
	if _, ok := e.tt.Probe(b.Hash); ok {
		t.Error("table not cleared by NewGame")
	}
}
