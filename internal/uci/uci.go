// Package uci implements the Universal Chess Interface text protocol on top
// of the engine.
package uci

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hailam/chesscore/internal/board"
	"github.com/hailam/chesscore/internal/engine"
	"github.com/hailam/chesscore/internal/storage"
	"github.com/hailam/chesscore/internal/tablebase"
)

// Store persists options and usage statistics. It may be nil.
type Store interface {
	SaveOptions(v any) error
	RecordGame(id string) error
	RecordSearch(rec storage.SearchRecord) error
}

// ProberFactory builds the tablebase prober for a base URL.
type ProberFactory func(url string) (tablebase.Prober, error)

// UCI implements the Universal Chess Interface protocol.
type UCI struct {
	engine    *engine.Engine
	store     Store
	newProber ProberFactory
	logger    zerolog.Logger

	board *board.Board

	out   io.Writer
	outMu sync.Mutex

	// Search state
	searching    bool
	searchDone   chan struct{}
	cancelSearch context.CancelFunc
}

// New creates a protocol handler. store and newProber may be nil.
func New(eng *engine.Engine, store Store, newProber ProberFactory) *UCI {
	u := &UCI{
		engine:    eng,
		store:     store,
		newProber: newProber,
		logger:    log.With().Str("component", "uci").Logger(),
		board:     board.NewBoard(),
	}
	eng.OnInfo = u.sendInfo
	return u
}

// Run reads commands from r and writes responses to w until "quit" or the
// end of input. A running search is stopped before Run returns.
func (u *UCI) Run(r io.Reader, w io.Writer) error {
	u.out = w
	defer u.handleStop()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]
		u.logger.Trace().Str("cmd", cmd).Strs("args", args).Msg("command")

		switch cmd {
		case "uci":
			u.handleUCI()
		case "isready":
			u.send("readyok")
		case "ucinewgame":
			u.handleNewGame()
		case "position":
			u.handlePosition(args)
		case "go":
			u.handleGo(args)
		case "stop":
			u.handleStop()
		case "quit":
			return nil
		case "setoption":
			u.handleSetOption(args)
		// Debug commands
		case "d":
			u.handleDisplay()
		case "perft":
			u.handlePerft(args)
		case "bench":
			u.handleBench(args)
		default:
			u.logger.Debug().Str("cmd", cmd).Msg("unknown-command")
		}
	}
	return scanner.Err()
}

func (u *UCI) send(format string, args ...any) {
	u.outMu.Lock()
	defer u.outMu.Unlock()
	fmt.Fprintf(u.out, format+"\n", args...)
}

// handleUCI responds to the "uci" command.
func (u *UCI) handleUCI() {
	def := engine.DefaultOptions()
	u.send("id name ChessCore")
	u.send("id author the ChessCore authors")
	u.send("")
	u.send("option name Hash type spin default %d min %d max %d", def.HashMB, engine.MinHashMB, engine.MaxHashMB)
	u.send("option name Threads type spin default %d min 1 max %d", def.Threads, engine.MaxThreads)
	u.send("option name Move Overhead type spin default %d min 0 max 5000", def.MoveOverhead.Milliseconds())
	u.send("option name EvalFile type string default <empty>")
	u.send("option name UseTablebase type check default false")
	u.send("option name TablebaseURL type string default %s", tablebase.DefaultLichessURL)
	u.send("option name Clear Hash type button")
	u.send("uciok")
}

// handleNewGame resets the engine for a new game.
func (u *UCI) handleNewGame() {
	u.handleStop()
	u.engine.NewGame()
	u.board = board.NewBoard()

	id := uuid.NewString()
	u.logger.Debug().Str("game", id).Msg("new-game")
	if u.store != nil {
		if err := u.store.RecordGame(id); err != nil {
			u.logger.Warn().Err(err).Msg("record-game")
		}
	}
}

// handlePosition parses and sets up a position.
// Formats:
//   - position startpos
//   - position startpos moves e2e4 e7e5
//   - position fen <fen>
//   - position fen <fen> moves e2e4
//
// On any error the previous position is kept.
func (u *UCI) handlePosition(args []string) {
	b, err := parsePosition(args)
	if err != nil {
		u.logger.Warn().Err(err).Msg("bad-position")
		u.send("info string %v", err)
		return
	}
	u.handleStop()
	u.board = b
}

func parsePosition(args []string) (*board.Board, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("position: missing startpos or fen")
	}

	movesAt := slices.Index(args, "moves")
	setup := args
	var moves []string
	if movesAt >= 0 {
		setup, moves = args[:movesAt], args[movesAt+1:]
	}

	var b *board.Board
	switch setup[0] {
	case "startpos":
		b = board.NewBoard()
	case "fen":
		var err error
		if b, err = board.ParseFEN(strings.Join(setup[1:], " ")); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("position: unknown setup %q", setup[0])
	}

	for _, s := range moves {
		m, err := b.ParseMove(s)
		if err != nil {
			return nil, err
		}
		b.MakeMove(m)
	}
	return b, nil
}

// parseGoOptions converts "go" arguments into search limits for the side to move.
func parseGoOptions(args []string) engine.Limits {
	var limits engine.Limits

	ms := func(i int) time.Duration {
		v, _ := strconv.Atoi(args[i])
		return time.Duration(max(v, 0)) * time.Millisecond
	}

	for i := 0; i < len(args); i++ {
		if args[i] == "infinite" {
			limits.Infinite = true
			continue
		}
		if i+1 >= len(args) {
			break
		}
		switch args[i] {
		case "depth":
			limits.Depth, _ = strconv.Atoi(args[i+1])
		case "nodes":
			limits.Nodes, _ = strconv.ParseUint(args[i+1], 10, 64)
		case "movetime":
			limits.MoveTime = ms(i + 1)
		case "wtime":
			limits.Time[board.White] = ms(i + 1)
		case "btime":
			limits.Time[board.Black] = ms(i + 1)
		case "winc":
			limits.Inc[board.White] = ms(i + 1)
		case "binc":
			limits.Inc[board.Black] = ms(i + 1)
		case "movestogo":
			limits.MovesToGo, _ = strconv.Atoi(args[i+1])
		default:
			continue
		}
		i++
	}
	return limits
}

// handleGo starts a search with the given parameters. The search runs in a
// goroutine so "stop" can interrupt it.
func (u *UCI) handleGo(args []string) {
	u.handleStop()
	limits := parseGoOptions(args)

	ctx, cancel := context.WithCancel(context.Background())
	u.searching = true
	u.searchDone = make(chan struct{})
	u.cancelSearch = cancel
	b := u.board.Clone()

	go func() {
		defer close(u.searchDone)

		res := u.engine.Search(ctx, b, limits)
		if u.store != nil {
			rec := storage.SearchRecord{Nodes: res.Nodes, Elapsed: res.Elapsed, Tablebase: res.Source == "tablebase"}
			if err := u.store.RecordSearch(rec); err != nil {
				u.logger.Warn().Err(err).Msg("record-search")
			}
		}

		switch {
		case res.BestMove == board.NoMove:
			u.send("info depth 0 score %s", engine.FormatScore(res.Score))
			u.send("bestmove 0000")
		case res.Ponder != board.NoMove:
			u.send("bestmove %s ponder %s", res.BestMove, res.Ponder)
		default:
			u.send("bestmove %s", res.BestMove)
		}
	}()
}

// sendInfo outputs search info in UCI format.
func (u *UCI) sendInfo(info engine.Info) {
	parts := []string{
		fmt.Sprintf("depth %d seldepth %d", info.Depth, info.SelDepth),
		"score " + engine.FormatScore(info.Score),
		fmt.Sprintf("nodes %d time %d", info.Nodes, info.Time.Milliseconds()),
	}
	if info.Time > 0 {
		parts = append(parts, fmt.Sprintf("nps %d", uint64(float64(info.Nodes)/info.Time.Seconds())))
	}
	parts = append(parts, fmt.Sprintf("hashfull %d", info.HashFull))
	if len(info.PV) > 0 {
		pv := make([]string, len(info.PV))
		for i, m := range info.PV {
			pv[i] = m.String()
		}
		parts = append(parts, "pv "+strings.Join(pv, " "))
	}
	u.send("info %s", strings.Join(parts, " "))
}

// handleStop stops the current search and waits for its bestmove. The
// search context is cancelled even if the search has not started yet.
func (u *UCI) handleStop() {
	if u.searching {
		u.cancelSearch()
		<-u.searchDone
		u.searching = false
		u.cancelSearch = nil
	}
}

// parseSetOption splits "name <name...> value <value...>".
func parseSetOption(args []string) (name, value string) {
	var nameParts, valueParts []string
	target := &nameParts
	for _, arg := range args {
		switch arg {
		case "name":
			target = &nameParts
		case "value":
			target = &valueParts
		default:
			*target = append(*target, arg)
		}
	}
	return strings.Join(nameParts, " "), strings.Join(valueParts, " ")
}

// handleSetOption processes "setoption" commands.
func (u *UCI) handleSetOption(args []string) {
	u.handleStop()
	name, value := parseSetOption(args)
	opts := u.engine.Options()

	atoi := func() (int, bool) {
		n, err := strconv.Atoi(value)
		if err != nil {
			u.send("info string invalid value %q for %s", value, name)
			return 0, false
		}
		return n, true
	}

	switch strings.ToLower(name) {
	case "hash":
		n, ok := atoi()
		if !ok {
			return
		}
		opts.HashMB = n
	case "threads":
		n, ok := atoi()
		if !ok {
			return
		}
		opts.Threads = n
	case "move overhead":
		n, ok := atoi()
		if !ok {
			return
		}
		opts.MoveOverhead = time.Duration(n) * time.Millisecond
	case "evalfile":
		if value == "<empty>" {
			value = ""
		}
		opts.EvalFile = value
	case "usetablebase":
		opts.UseTablebase = strings.EqualFold(value, "true")
	case "tablebaseurl":
		opts.TablebaseURL = value
	case "clear hash":
		u.engine.NewGame()
		return
	default:
		u.send("info string unknown option %q", name)
		return
	}

	if err := u.Apply(opts); err != nil {
		u.send("info string %v", err)
	}
}

// Apply sets engine options, installs the tablebase prober they call for
// and persists them.
func (u *UCI) Apply(opts engine.Options) error {
	prev := u.engine.Options()
	if err := u.engine.SetOptions(opts); err != nil {
		u.logger.Warn().Err(err).Msg("set-options")
		if opts.EvalFile != prev.EvalFile && u.engine.Options().EvalFile == prev.EvalFile {
			return err
		}
	}
	opts = u.engine.Options()

	if opts.UseTablebase != prev.UseTablebase || opts.TablebaseURL != prev.TablebaseURL {
		u.installProber(opts)
	}

	if u.store != nil {
		if err := u.store.SaveOptions(opts); err != nil {
			u.logger.Warn().Err(err).Msg("save-options")
		}
	}
	return nil
}

func (u *UCI) installProber(opts engine.Options) {
	if !opts.UseTablebase || u.newProber == nil {
		u.engine.SetProber(nil)
		return
	}
	url := opts.TablebaseURL
	if url == "" {
		url = tablebase.DefaultLichessURL
	}
	p, err := u.newProber(url)
	if err != nil {
		u.logger.Warn().Err(err).Str("url", url).Msg("tablebase-unavailable")
		u.engine.SetProber(nil)
		return
	}
	u.engine.SetProber(p)
	u.logger.Info().Str("url", url).Msg("tablebase-enabled")
}

// handleDisplay prints the board, FEN and static evaluation.
func (u *UCI) handleDisplay() {
	u.outMu.Lock()
	fmt.Fprint(u.out, u.board.String())
	u.outMu.Unlock()
	u.send("Eval: %d", u.engine.Evaluate(&u.board.Position))
}

// handlePerft runs a perft test, listing the count below each root move.
func (u *UCI) handlePerft(args []string) {
	depth := 5
	if len(args) > 0 {
		if d, err := strconv.Atoi(args[0]); err == nil && d > 0 {
			depth = d
		}
	}

	start := time.Now()
	divide := u.board.Clone().Divide(depth)
	var nodes uint64
	for _, mv := range slices.Sorted(maps.Keys(divide)) {
		u.send("%s: %d", mv, divide[mv])
		nodes += divide[mv]
	}
	elapsed := time.Since(start)

	u.send("")
	u.send("Nodes searched: %d", nodes)
	u.logger.Info().Int("depth", depth).Str("nodes", humanize.Comma(int64(nodes))).
		Dur("elapsed", elapsed).Msg("perft")
}

// handleBench searches the bench positions to a fixed depth.
func (u *UCI) handleBench(args []string) {
	u.handleStop()
	depth := 8
	if len(args) > 0 {
		if d, err := strconv.Atoi(args[0]); err == nil && d > 0 {
			depth = d
		}
	}
	res, err := u.engine.Bench(context.Background(), depth)
	if err != nil {
		u.send("info string bench: %v", err)
		return
	}
	u.send("Nodes searched: %d", res.Nodes)
	u.send("Nodes/second: %d", res.NPS())
}
