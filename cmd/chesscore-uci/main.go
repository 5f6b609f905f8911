// Command chesscore-uci runs the engine behind the UCI protocol on stdin and
// stdout. Logs go to stderr.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hailam/chesscore/internal/board"
	"github.com/hailam/chesscore/internal/engine"
	"github.com/hailam/chesscore/internal/storage"
	"github.com/hailam/chesscore/internal/tablebase"
	"github.com/hailam/chesscore/internal/uci"
)

// Entries kept in the in-memory tablebase cache.
const tablebaseCacheEntries = 1 << 16

var (
	hashMB   = flag.Int("hash", 0, "transposition table size in MB (0 keeps the stored value)")
	threads  = flag.Int("threads", 0, "search threads (0 keeps the stored value)")
	overhead = flag.Duration("overhead", -1, "move overhead subtracted from clock time")
	evalFile = flag.String("evalfile", "", "network weights file (.bin or .bin.zst)")
	dataDir  = flag.String("data", "", "data directory (default: platform data directory)")
	logLevel = flag.String("log-level", "info", "log level: trace, debug, info, warn, error, disabled")
	bench    = flag.Int("bench", 0, "run the bench at this depth and exit")
	noStore  = flag.Bool("no-store", false, "do not open the database")
)

func main() {
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad -log-level: %v\n", err)
		os.Exit(2)
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("exit")
	}
}

func run() error {
	var store *storage.Store
	if !*noStore {
		s, err := storage.OpenDefault(*dataDir)
		if err != nil {
			log.Warn().Err(err).Msg("running-without-storage")
		} else {
			store = s
			defer store.Close()
		}
	}

	opts := engine.DefaultOptions()
	if store != nil {
		if err := store.LoadOptions(&opts); err != nil {
			log.Warn().Err(err).Msg("load-options")
		}
	}
	if *hashMB > 0 {
		opts.HashMB = *hashMB
	}
	if *threads > 0 {
		opts.Threads = *threads
	}
	if *overhead >= 0 {
		opts.MoveOverhead = *overhead
	}
	if *evalFile != "" {
		opts.EvalFile = *evalFile
	}
	evalPath, err := storage.ResolveNNUEFile(*dataDir, opts.EvalFile)
	if err != nil {
		return err
	}
	opts.EvalFile = evalPath

	eng, err := engine.New(opts)
	if err != nil {
		return err
	}
	log.Info().Int("hash_mb", opts.HashMB).Int("threads", opts.Threads).Str("eval", evalName(opts.EvalFile)).
		Str("slider_index", board.SlidingIndexStrategy).Msg("engine-ready")

	if *bench > 0 {
		res, err := eng.Bench(context.Background(), *bench)
		if err != nil {
			return err
		}
		fmt.Printf("%d nodes %d nps\n", res.Nodes, res.NPS())
		log.Info().Str("nodes", humanize.Comma(int64(res.Nodes))).Dur("elapsed", res.Elapsed).Msg("bench")
		return nil
	}

	newProber := func(url string) (tablebase.Prober, error) {
		var persist tablebase.Persister
		if store != nil {
			persist = store
		}
		return tablebase.NewCachedProber(tablebase.NewLichessProber(url), tablebaseCacheEntries, persist)
	}

	var ustore uci.Store
	if store != nil {
		ustore = store
	}
	protocol := uci.New(eng, ustore, newProber)
	if opts.UseTablebase {
		if p, err := newProber(opts.TablebaseURL); err != nil {
			log.Warn().Err(err).Msg("tablebase-unavailable")
		} else {
			eng.SetProber(p)
		}
	}

	if store != nil {
		if stats, err := store.LoadStats(); err == nil && stats.Games > 0 {
			log.Debug().Int("games", stats.Games).Str("nodes", humanize.Comma(int64(stats.Nodes))).
				Time("last_played", stats.LastPlayed).Msg("stats")
		}
	}
	return protocol.Run(os.Stdin, os.Stdout)
}

func evalName(path string) string {
	if path == "" {
		return "built-in"
	}
	return path
}
