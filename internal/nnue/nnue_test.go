package nnue

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/hailam/chesscore/internal/board"
)

func mustParse(t *testing.T, fen string) *board.Board {
	t.Helper()
	b, err := board.ParseFEN(fen)
	if err != nil {
		t.Fatalf("ParseFEN(%q): %v", fen, err)
	}
	return b
}

// randomNetwork fills every weight so that opponent features and all neurons
// take part, unlike the sparse built-in network.
func randomNetwork(seed uint64) *Network {
	rng := rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
	n := &Network{}
	for i := range n.FeatureWeights {
		for j := range n.FeatureWeights[i] {
			n.FeatureWeights[i][j] = int16(rng.IntN(33) - 16)
		}
	}
	for i := range n.FeatureBias {
		n.FeatureBias[i] = int16(rng.IntN(128))
	}
	for i := range n.OutputWeights {
		n.OutputWeights[i] = int16(rng.IntN(129) - 64)
	}
	n.OutputBias = int32(rng.IntN(2001) - 1000)
	return n
}

func TestDefaultNetwork(t *testing.T) {
	net := Default()
	tests := []struct {
		name     string
		fen      string
		min, max int
	}{
		{"start position", board.StartFEN, 0, 0},
		{"queen up", "rnb1kbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", 850, 950},
		{"queen down", "rnb1kbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR b KQkq - 0 1", -950, -850},
		{"knight up", "r1bqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", 250, 400},
		{"bare kings", "4k3/8/8/8/8/8/8/4K3 w - - 0 1", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := mustParse(t, tt.fen)
			got := net.Evaluate(&b.Position)
			if got < tt.min || got > tt.max {
				t.Errorf("Evaluate = %d, want in [%d, %d]", got, tt.min, tt.max)
			}
		})
	}
}

func TestEvaluationIsAntisymmetric(t *testing.T) {
	net := Default()
	white := mustParse(t, "r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1")
	black := mustParse(t, "r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R b KQkq - 0 1")
	w, b := net.Evaluate(&white.Position), net.Evaluate(&black.Position)
	if w != -b {
		t.Errorf("white to move %d, black to move %d; want negations", w, b)
	}
}

func TestIncrementalMatchesRefresh(t *testing.T) {
	fens := []string{
		board.StartFEN,
		"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
		"rnbq1k1r/pp1Pbppp/2p5/8/2B5/8/PPP1NnPP/RNBQK2R w KQ - 1 8",
		"4k3/8/8/8/3Pp3/8/8/4K3 b - d3 0 1",
	}
	for _, net := range []*Network{Default(), randomNetwork(7)} {
		for _, fen := range fens {
			b := mustParse(t, fen)
			stack := NewAccumulatorStack(net)
			stack.Refresh(&b.Position)
			walk(t, b, stack, 2)
			if stack.Depth() != 0 {
				t.Fatalf("%s: stack depth %d after walk", fen, stack.Depth())
			}
		}
	}
}

func walk(t *testing.T, b *board.Board, stack *AccumulatorStack, depth int) {
	t.Helper()
	if depth == 0 {
		return
	}
	moves := b.LegalMoves()
	for _, m := range moves.Slice() {
		stack.Push(&b.Position, m)
		b.MakeMove(m)

		var fresh Accumulator
		fresh.Refresh(stack.Network(), &b.Position)
		if *stack.Current() != fresh {
			t.Fatalf("%s after %s: incremental accumulator differs from refresh", b.FEN(), m)
		}
		if got, want := stack.Evaluate(b.SideToMove), stack.Network().Evaluate(&b.Position); got != want {
			t.Fatalf("%s: stack eval %d, direct eval %d", b.FEN(), got, want)
		}

		walk(t, b, stack, depth-1)
		b.UndoMove()
		stack.Pop()
	}
}

func TestPushNull(t *testing.T) {
	b := mustParse(t, board.StartFEN)
	stack := NewAccumulatorStack(Default())
	stack.Refresh(&b.Position)
	before := *stack.Current()
	stack.PushNull()
	if stack.Depth() != 1 || *stack.Current() != before {
		t.Fatal("PushNull must duplicate the current accumulator")
	}
	stack.Pop()
	if stack.Depth() != 0 {
		t.Fatalf("depth %d after Pop", stack.Depth())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	net := randomNetwork(42)
	var buf bytes.Buffer
	if err := net.Save(&buf); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *got != *net {
		t.Fatal("loaded network differs from saved one")
	}
}

func TestSaveFileLoadFile(t *testing.T) {
	net := randomNetwork(3)
	dir := t.TempDir()
	for _, name := range []string{"net.bin", "net.bin.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := net.SaveFile(path); err != nil {
				t.Fatalf("SaveFile: %v", err)
			}
			got, err := LoadFile(path)
			if err != nil {
				t.Fatalf("LoadFile: %v", err)
			}
			if *got != *net {
				t.Fatal("loaded network differs from saved one")
			}
		})
	}
}

func TestLoadRejects(t *testing.T) {
	var good bytes.Buffer
	if err := Default().Save(&good); err != nil {
		t.Fatal(err)
	}
	raw := good.Bytes()

	badMagic := append([]byte{}, raw...)
	badMagic[0] ^= 0xFF
	badHidden := append([]byte{}, raw...)
	badHidden[8] = 64

	tests := map[string][]byte{
		"empty":        nil,
		"bad magic":    badMagic,
		"wrong hidden": badHidden,
		"truncated":    raw[:len(raw)/2],
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(bytes.NewReader(data))
			if !errors.Is(err, ErrBadWeights) {
				t.Errorf("Load error = %v, want ErrBadWeights", err)
			}
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.bin")); err == nil {
		t.Fatal("LoadFile on a missing file succeeded")
	}
}
