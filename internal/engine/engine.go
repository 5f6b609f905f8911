// Package engine searches chess positions: move ordering, the shared
// transposition table, time management and a Lazy SMP alpha-beta search.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hailam/chesscore/internal/board"
	"github.com/hailam/chesscore/internal/nnue"
	"github.com/hailam/chesscore/internal/tablebase"
)

// Options configures the engine.
type Options struct {
	HashMB       int           `json:"hash_mb"`
	Threads      int           `json:"threads"`
	MoveOverhead time.Duration `json:"move_overhead"`
	EvalFile     string        `json:"eval_file"`
	UseTablebase bool          `json:"use_tablebase"`
	TablebaseURL string        `json:"tablebase_url"`
}

// Option bounds.
const (
	MinHashMB  = 1
	MaxHashMB  = 65536
	MaxThreads = 256
)

// DefaultOptions returns the options the engine starts with.
func DefaultOptions() Options {
	return Options{
		HashMB:       16,
		Threads:      1,
		MoveOverhead: 30 * time.Millisecond,
		TablebaseURL: tablebase.DefaultLichessURL,
	}
}

// Validate clamps out of range values and reports the first one found.
func (o *Options) Validate() error {
	var err error
	if o.HashMB < MinHashMB || o.HashMB > MaxHashMB {
		err = fmt.Errorf("hash %d MB out of range [%d, %d]", o.HashMB, MinHashMB, MaxHashMB)
		o.HashMB = max(MinHashMB, min(MaxHashMB, o.HashMB))
	}
	if o.Threads < 1 || o.Threads > MaxThreads {
		if err == nil {
			err = fmt.Errorf("threads %d out of range [1, %d]", o.Threads, MaxThreads)
		}
		o.Threads = max(1, min(MaxThreads, o.Threads))
	}
	if o.MoveOverhead < 0 {
		o.MoveOverhead = 0
	}
	return err
}

// Tablebase scores are kept below the mate range.
const tablebaseWin = MateBound - 1 - MaxPly

// Engine owns the shared transposition table, the stop flag and one worker
// per thread.
type Engine struct {
	mu      sync.Mutex // serialises searches and option changes
	opts    Options
	tt      *TranspositionTable
	net     atomic.Pointer[nnue.Network]
	prober  tablebase.Prober
	workers []*Worker

	stop   atomic.Bool
	cancel context.CancelFunc
	cmu    sync.Mutex // guards cancel

	// Per-search state, written before workers start.
	limits    Limits
	tm        TimeManager
	lastBest  board.Move
	stability int

	// OnInfo is called by the main worker after every completed iteration.
	OnInfo func(Info)
}

// New creates an engine. The network is loaded from opts.EvalFile, or the
// built-in network is used when it is empty.
func New(opts Options) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		log.Warn().Str("component", "engine").Err(err).Msg("clamped-option")
	}
	net, err := loadNetwork(opts.EvalFile)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		opts:   opts,
		tt:     NewTranspositionTable(opts.HashMB),
		prober: tablebase.NoopProber{},
	}
	e.net.Store(net)
	e.resizeWorkers(opts.Threads)
	return e, nil
}

func loadNetwork(path string) (*nnue.Network, error) {
	if path == "" {
		return nnue.Default(), nil
	}
	net, err := nnue.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load network: %w", err)
	}
	log.Info().Str("component", "engine").Str("file", path).Msg("network-loaded")
	return net, nil
}

func (e *Engine) resizeWorkers(n int) {
	for len(e.workers) < n {
		e.workers = append(e.workers, newWorker(len(e.workers), e))
	}
	e.workers = e.workers[:n]
}

// Options returns the current options.
func (e *Engine) Options() Options {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opts
}

// SetOptions applies opts, resizing the table, the worker pool and
// reloading the network as needed. It waits for a running search to end.
func (e *Engine) SetOptions(opts Options) error {
	verr := opts.Validate()

	e.mu.Lock()
	defer e.mu.Unlock()

	if opts.EvalFile != e.opts.EvalFile {
		net, err := loadNetwork(opts.EvalFile)
		if err != nil {
			return err
		}
		e.net.Store(net)
	}
	if opts.HashMB != e.opts.HashMB {
		e.tt.Resize(opts.HashMB)
		log.Debug().Str("component", "engine").
			Str("size", humanize.IBytes(uint64(e.tt.Len())*ttSlotSize)).Msg("hash-resized")
	}
	if opts.Threads != e.opts.Threads {
		e.resizeWorkers(opts.Threads)
	}
	e.opts = opts
	return verr
}

// SetProber installs the tablebase oracle consulted at the root. nil
// disables probing.
func (e *Engine) SetProber(p tablebase.Prober) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p == nil {
		p = tablebase.NoopProber{}
	}
	e.prober = p
}

// NewGame clears the transposition table and every worker's histories.
func (e *Engine) NewGame() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tt.Clear()
	for _, w := range e.workers {
		w.clear()
	}
}

// Stop aborts a running search. The search returns the result of its last
// completed iteration.
func (e *Engine) Stop() {
	e.cmu.Lock()
	defer e.cmu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

// Evaluate returns the static evaluation of pos from the side to move's view.
// It is safe to call during a search.
func (e *Engine) Evaluate(pos *board.Position) int {
	return e.net.Load().Evaluate(pos)
}

func (e *Engine) totalNodes() uint64 {
	var n uint64
	for _, w := range e.workers {
		n += w.Nodes()
	}
	return n
}

// Search finds the best move in b within limits. It blocks until a limit
// is reached, ctx is done or Stop is called; b is not modified.
func (e *Engine) Search(ctx context.Context, b *board.Board, limits Limits) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.cmu.Lock()
	e.cancel = cancel
	e.cmu.Unlock()
	defer func() {
		e.cmu.Lock()
		e.cancel = nil
		e.cmu.Unlock()
	}()

	e.stop.Store(false)
	stopOnDone := context.AfterFunc(ctx, func() { e.stop.Store(true) })
	defer stopOnDone()

	logger := log.With().Str("component", "search").Str("session", uuid.NewString()).Logger()
	start := time.Now()

	moves := b.LegalMoves()
	if moves.Len() == 0 {
		score := DrawScore
		if b.InCheck() {
			score = -MateScore
		}
		logger.Debug().Str("fen", b.FEN()).Msg("no-legal-moves")
		return Result{Score: score, Source: "terminal"}
	}

	e.limits = limits
	e.tm.Init(limits, b.SideToMove, e.opts.MoveOverhead)

	if r, ok := e.probeRoot(ctx, b, moves.Slice()); ok {
		r.Elapsed = time.Since(start)
		logger.Info().Str("move", r.BestMove.String()).Int("score", r.Score).Msg("tablebase-hit")
		if limits.Infinite {
			<-ctx.Done()
		}
		return r
	}

	e.lastBest = board.NoMove
	e.stability = 0
	net := e.net.Load()
	for _, w := range e.workers {
		w.setup(b, net)
	}

	logger.Debug().Int("threads", len(e.workers)).Dur("soft", e.tm.Soft()).Dur("hard", e.tm.Hard()).
		Str("fen", b.FEN()).Msg("using-lazy-smp")

	var g errgroup.Group
	for _, w := range e.workers {
		g.Go(func() error {
			w.iterate()
			if w.main() {
				if limits.Infinite {
					<-ctx.Done()
				}
				e.stop.Store(true)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("worker-failed")
	}

	main := e.workers[0]
	res := Result{
		BestMove: main.bestMove,
		Score:    main.bestScore,
		Depth:    main.completed,
		SelDepth: main.selDepth,
		Nodes:    e.totalNodes(),
		PV:       main.pvLine,
		Elapsed:  time.Since(start),
		Source:   "search",
	}
	if res.BestMove == board.NoMove || !moves.Contains(res.BestMove) {
		res.BestMove = moves.Get(0)
		res.PV = []board.Move{res.BestMove}
	}
	if len(res.PV) > 1 {
		res.Ponder = res.PV[1]
	}

	logger.Info().Str("move", res.BestMove.String()).Str("score", FormatScore(res.Score)).
		Int("depth", res.Depth).Str("nodes", humanize.Comma(int64(res.Nodes))).
		Dur("elapsed", res.Elapsed).Msg("best-move")
	return res
}

// probeTimeShare is the fraction of the hard time cap a timed search may
// spend waiting for the tablebase.
const probeTimeShare = 4

// probeRoot asks the tablebase for the root move. In a timed search the
// probe is abandoned after a share of the hard cap and the search runs.
func (e *Engine) probeRoot(ctx context.Context, b *board.Board, moves []board.Move) (Result, bool) {
	q := tablebase.NewQuery(&b.Position)
	if !q.Probeable(e.prober.MaxPieces()) {
		return Result{}, false
	}
	if e.tm.Timed() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.tm.Hard()/probeTimeShare)
		defer cancel()
	}
	type probe struct {
		r   tablebase.RootResult
		err error
	}
	prober := e.prober
	done := make(chan probe, 1)
	go func() {
		r, err := prober.ProbeRoot(ctx, q)
		done <- probe{r, err}
	}()

	var r tablebase.RootResult
	var err error
	select {
	case p := <-done:
		r, err = p.r, p.err
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		if !errors.Is(err, tablebase.ErrNoResult) {
			log.Warn().Str("component", "search").Err(err).Msg("tablebase-probe")
		}
		return Result{}, false
	}
	m, ok := r.Match(moves)
	if !ok {
		log.Warn().Str("component", "search").Str("fen", q.FEN).Msg("tablebase-move-not-legal")
		return Result{}, false
	}

	score := DrawScore
	switch r.WDL {
	case tablebase.WDLWin:
		score = tablebaseWin
	case tablebase.WDLLoss:
		score = -tablebaseWin
	}
	return Result{BestMove: m, Score: score, PV: []board.Move{m}, Source: "tablebase"}, true
}

// iterationDone reports a completed iteration of the main worker and
// decides whether to start another.
func (e *Engine) iterationDone(w *Worker) bool {
	if w.bestMove == e.lastBest {
		e.stability++
	} else {
		e.stability = 0
		e.lastBest = w.bestMove
	}

	if e.OnInfo != nil {
		e.OnInfo(Info{
			Depth:    w.completed,
			SelDepth: w.selDepth,
			Score:    w.bestScore,
			Nodes:    e.totalNodes(),
			Time:     e.tm.Elapsed(),
			HashFull: e.tt.HashFull(),
			PV:       w.pvLine,
		})
	}

	if e.limits.Nodes > 0 && e.totalNodes() >= e.limits.Nodes {
		return false
	}
	return !e.tm.SoftExpired(e.stability)
}

// Perft counts leaf nodes below b to depth.
func (e *Engine) Perft(b *board.Board, depth int) uint64 {
	return b.Clone().Perft(depth)
}

// BenchFENs are the positions searched by Bench.
var BenchFENs = []string{
	board.StartFEN,
	"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
	"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1",
	"r3k2r/Pppp1ppp/1b3nbN/nP6/BBP1P3/q4N2/Pp1P2PP/R2Q1RK1 w kq - 0 1",
	"rnbq1k1r/pp1Pbppp/2p5/8/2B5/8/PPP1NnPP/RNBQK2R w KQ - 1 8",
	"r4rk1/1pp1qppp/p1np1n2/2b1p1B1/2B1P1b1/P1NP1N2/1PP1QPPP/R4RK1 w - - 0 10",
	"6k1/5ppp/8/8/8/8/5PPP/3R2K1 w - - 0 1",
	"8/8/4k3/8/2p5/8/B2P2K1/8 w - - 0 1",
}

// BenchResult summarises a bench run.
type BenchResult struct {
	Nodes   uint64
	Elapsed time.Duration
}

// NPS returns nodes per second.
func (r BenchResult) NPS() uint64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return uint64(float64(r.Nodes) / r.Elapsed.Seconds())
}

// Bench searches every BenchFENs position to depth from a fresh game and
// returns the node total, which is deterministic for a single thread.
func (e *Engine) Bench(ctx context.Context, depth int) (BenchResult, error) {
	var total BenchResult
	e.NewGame()
	for _, fen := range BenchFENs {
		b, err := board.ParseFEN(fen)
		if err != nil {
			return total, err
		}
		res := e.Search(ctx, b, Limits{Depth: depth})
		total.Nodes += res.Nodes
		total.Elapsed += res.Elapsed
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}
	log.Info().Str("component", "bench").Str("nodes", humanize.Comma(int64(total.Nodes))).
		Str("nps", humanize.Comma(int64(total.NPS()))).Msg("bench-done")
	return total, nil
}
