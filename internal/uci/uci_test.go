package uci

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/hailam/chesscore/internal/board"
	"github.com/hailam/chesscore/internal/engine"
	"github.com/hailam/chesscore/internal/storage"
	"github.com/hailam/chesscore/internal/tablebase"
)

type memStore struct {
	options  any
	games    []string
	searches []storage.SearchRecord
}

func (s *memStore) SaveOptions(v any) error { s.options = v; return nil }
func (s *memStore) RecordGame(id string) error {
	s.games = append(s.games, id)
	return nil
}
func (s *memStore) RecordSearch(rec storage.SearchRecord) error {
	s.searches = append(s.searches, rec)
	return nil
}

func newTestUCI(t *testing.T) (*UCI, *memStore) {
	t.Helper()
	eng, err := engine.New(engine.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	store := &memStore{}
	return New(eng, store, nil), store
}

func run(t *testing.T, u *UCI, script string) string {
	t.Helper()
	var out bytes.Buffer
	if err := u.Run(strings.NewReader(script), &out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out.String()
}

func bestMove(t *testing.T, out string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if f := strings.Fields(line); len(f) >= 2 && f[0] == "bestmove" {
			return f[1]
		}
	}
	t.Fatalf("no bestmove in output:\n%s", out)
	return ""
}

func TestHandshake(t *testing.T) {
	u, _ := newTestUCI(t)
	out := run(t, u, "uci\nisready\n")
	for _, want := range []string{"id name ChessCore", "option name Hash type spin", "option name Threads", "uciok", "readyok"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
}

func TestParsePosition(t *testing.T) {
	tests := []struct {
		args    string
		fen     string
		wantErr bool
	}{
		{"startpos", board.StartFEN, false},
		{"startpos moves e2e4 e7e5 g1f3", "rnbqkbnr/pppp1ppp/8/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R b KQkq - 1 2", false},
		{"fen 8/4P3/8/8/8/k7/8/4K3 w - - 0 1 moves e7e8n", "4N3/8/8/8/8/k7/8/4K3 b - - 0 1", false},
		{"startpos moves e2e5", "", true},
		{"fen not a fen", "", true},
		{"sideways", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.args, func(t *testing.T) {
			b, err := parsePosition(strings.Fields(tt.args))
			if tt.wantErr {
				if err == nil {
					t.Errorf("accepted, FEN %s", b.FEN())
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got := b.FEN(); got != tt.fen {
				t.Errorf("FEN %s, want %s", got, tt.fen)
			}
		})
	}
}

func TestParseGoOptions(t *testing.T) {
	limits := parseGoOptions(strings.Fields("wtime 60000 btime 30000 winc 1000 binc 500 movestogo 20 depth 12 nodes 5000"))
	want := engine.Limits{
		Depth:     12,
		Nodes:     5000,
		Time:      [2]time.Duration{time.Minute, 30 * time.Second},
		Inc:       [2]time.Duration{time.Second, 500 * time.Millisecond},
		MovesToGo: 20,
	}
	if limits != want {
		t.Errorf("got %+v, want %+v", limits, want)
	}

	if l := parseGoOptions([]string{"infinite"}); !l.Infinite {
		t.Error("infinite not set")
	}
	if l := parseGoOptions([]string{"movetime", "250"}); l.MoveTime != 250*time.Millisecond {
		t.Errorf("movetime %v", l.MoveTime)
	}
	if l := parseGoOptions([]string{"depth"}); l.Depth != 0 {
		t.Errorf("dangling depth parsed as %d", l.Depth)
	}
}

func TestParseSetOption(t *testing.T) {
	name, value := parseSetOption(strings.Fields("name Move Overhead value 100"))
	if name != "Move Overhead" || value != "100" {
		t.Errorf("got %q = %q", name, value)
	}
	name, value = parseSetOption(strings.Fields("name Clear Hash"))
	if name != "Clear Hash" || value != "" {
		t.Errorf("got %q = %q", name, value)
	}
}

func TestGo(t *testing.T) {
	u, store := newTestUCI(t)
	out := run(t, u, "ucinewgame\nposition startpos moves e2e4\ngo depth 3\nstop\n")

	mv := bestMove(t, out)
	b, _ := parsePosition(strings.Fields("startpos moves e2e4"))
	if _, err := b.ParseMove(mv); err != nil {
		t.Errorf("bestmove %s: %v", mv, err)
	}
	if !strings.Contains(out, "info depth 1 ") {
		t.Errorf("no info line:\n%s", out)
	}
	if len(store.games) != 1 || len(store.searches) != 1 {
		t.Errorf("recorded %d games, %d searches", len(store.games), len(store.searches))
	}
}

func TestGoWithoutLegalMoves(t *testing.T) {
	u, _ := newTestUCI(t)
	out := run(t, u, "position fen 7k/5Q2/6K1/8/8/8/8/8 b - - 0 1\ngo depth 4\nstop\n")
	if mv := bestMove(t, out); mv != "0000" {
		t.Errorf("bestmove %s in stalemate", mv)
	}
}

func TestStopInfinite(t *testing.T) {
	u, _ := newTestUCI(t)
	done := make(chan string)
	go func() {
		var out bytes.Buffer
		pr := strings.NewReader("position startpos\ngo infinite\n")
		u.Run(pr, &out)
		done <- out.String()
	}()

	// End of input stops the search.
	select {
	case out := <-done:
		if mv := bestMove(t, out); mv == "0000" {
			t.Error("no move from the start position")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("infinite search was not stopped")
	}
}

func TestStopRightAfterGo(t *testing.T) {
	u, _ := newTestUCI(t)
	done := make(chan string)
	go func() {
		var out bytes.Buffer
		// The stop races the search goroutine taking the engine lock.
		for range 20 {
			u.Run(strings.NewReader("position startpos\ngo infinite\nstop\n"), &out)
		}
		done <- out.String()
	}()

	select {
	case out := <-done:
		if n := strings.Count(out, "bestmove "); n != 20 {
			t.Errorf("%d bestmove lines, want 20", n)
		}
		if strings.Contains(out, "bestmove 0000") {
			t.Errorf("null move from the start position:\n%s", out)
		}
	case <-time.After(20 * time.Second):
		t.Fatal("stop after go infinite did not end the search")
	}
}

func TestSetOption(t *testing.T) {
	u, store := newTestUCI(t)
	run(t, u, "setoption name Hash value 4\nsetoption name Threads value 2\nsetoption name Move Overhead value 75\n")

	opts := u.engine.Options()
	if opts.HashMB != 4 || opts.Threads != 2 || opts.MoveOverhead != 75*time.Millisecond {
		t.Errorf("options %+v", opts)
	}
	saved, ok := store.options.(engine.Options)
	if !ok || saved != opts {
		t.Errorf("saved %+v, want %+v", store.options, opts)
	}

	out := run(t, u, "setoption name Hash value lots\nsetoption name Bogus value 1\n")
	if !strings.Contains(out, "invalid value") || !strings.Contains(out, "unknown option") {
		t.Errorf("errors not reported:\n%s", out)
	}
}

func TestSetOptionTablebase(t *testing.T) {
	eng, err := engine.New(engine.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	var gotURL string
	u := New(eng, nil, func(url string) (tablebase.Prober, error) {
		gotURL = url
		return tablebase.NoopProber{}, nil
	})
	run(t, u, "setoption name TablebaseURL value http://localhost:9000/standard\nsetoption name UseTablebase value true\n")

	if !eng.Options().UseTablebase {
		t.Error("tablebase not enabled")
	}
	if gotURL != "http://localhost:9000/standard" {
		t.Errorf("prober built for %q", gotURL)
	}
}

func TestPerft(t *testing.T) {
	u, _ := newTestUCI(t)
	out := run(t, u, "position startpos\nperft 3\n")
	if !strings.Contains(out, "Nodes searched: 8902") {
		t.Errorf("wrong perft output:\n%s", out)
	}
	if !strings.Contains(out, "e2e4: 600") {
		t.Errorf("divide line missing:\n%s", out)
	}
}

func TestDisplay(t *testing.T) {
	u, _ := newTestUCI(t)
	out := run(t, u, "d\n")
	if !strings.Contains(out, "FEN: "+board.StartFEN) || !strings.Contains(out, "Eval: 0") {
		t.Errorf("display output:\n%s", out)
	}
}
