package engine

import (
	"math/bits"
	"sync/atomic"

	"github.com/hailam/chesscore/internal/board"
)

// Bound tells how a stored score relates to the true value.
type Bound uint8

const (
	BoundNone  Bound = iota
	BoundUpper       // failed low
	BoundLower       // failed high
	BoundExact
)

// TTEntry is a decoded transposition table slot.
type TTEntry struct {
	Move  board.Move
	Score int
	Eval  int
	Depth int
	Bound Bound
}

// ttSlot packs an entry into two words. check holds data XOR the 16-bit tag,
// so a slot torn by a concurrent writer fails the tag test and reads as a miss.
type ttSlot struct {
	data  atomic.Uint64
	check atomic.Uint64
}

const ttSlotSize = 16

// TranspositionTable is shared by all search workers without locks.
type TranspositionTable struct {
	slots []ttSlot
}

// NewTranspositionTable allocates a table of roughly sizeMB megabytes.
func NewTranspositionTable(sizeMB int) *TranspositionTable {
	tt := &TranspositionTable{}
	tt.Resize(sizeMB)
	return tt
}

// Resize reallocates the table, dropping every entry.
func (tt *TranspositionTable) Resize(sizeMB int) {
	n := max(uint64(sizeMB)*1024*1024/ttSlotSize, 1)
	tt.slots = make([]ttSlot, n)
}

// Clear empties the table.
func (tt *TranspositionTable) Clear() {
	for i := range tt.slots {
		tt.slots[i].data.Store(0)
		tt.slots[i].check.Store(0)
	}
}

// Len returns the number of slots.
func (tt *TranspositionTable) Len() int {
	return len(tt.slots)
}

func (tt *TranspositionTable) slot(hash uint64) *ttSlot {
	hi, _ := bits.Mul64(hash, uint64(len(tt.slots)))
	return &tt.slots[hi]
}

func pack(m board.Move, score, eval, depth int, bound Bound) uint64 {
	return uint64(m) |
		uint64(uint16(int16(score)))<<16 |
		uint64(uint16(int16(eval)))<<32 |
		uint64(uint8(max(0, min(depth, 255))))<<48 |
		uint64(bound)<<56
}

func unpack(data uint64) TTEntry {
	return TTEntry{
		Move:  board.Move(data),
		Score: int(int16(data >> 16)),
		Eval:  int(int16(data >> 32)),
		Depth: int(uint8(data >> 48)),
		Bound: Bound(data>>56) & 3,
	}
}

// Probe returns the entry stored for hash. Tag mismatches, empty slots and
// torn reads all report a miss.
func (tt *TranspositionTable) Probe(hash uint64) (TTEntry, bool) {
	s := tt.slot(hash)
	data := s.data.Load()
	if s.check.Load()^data != uint64(uint16(hash)) {
		return TTEntry{}, false
	}
	e := unpack(data)
	if e.Bound == BoundNone {
		return TTEntry{}, false
	}
	return e, true
}

// Store writes an entry. A deeper non-exact result for the same position is
// kept, and the previous best move survives a store without one.
func (tt *TranspositionTable) Store(hash uint64, m board.Move, score, eval, depth int, bound Bound) {
	s := tt.slot(hash)
	tag := uint64(uint16(hash))
	old := s.data.Load()
	if s.check.Load()^old == tag {
		prev := unpack(old)
		if prev.Bound != BoundNone {
			if bound != BoundExact && depth+4 < prev.Depth {
				return
			}
			if m == board.NoMove {
				m = prev.Move
			}
		}
	}
	data := pack(m, score, eval, depth, bound)
	s.data.Store(data)
	s.check.Store(data ^ tag)
}

// HashFull estimates table occupancy in permille from the first slots.
func (tt *TranspositionTable) HashFull() int {
	n := min(1000, len(tt.slots))
	used := 0
	for i := 0; i < n; i++ {
		if Bound(tt.slots[i].data.Load()>>56)&3 != BoundNone {
			used++
		}
	}
	return used * 1000 / n
}

// scoreToTT converts a mate score from root-relative to node-relative.
func scoreToTT(score, ply int) int {
	switch {
	case score >= MateBound:
		return score + ply
	case score <= -MateBound:
		return score - ply
	}
	return score
}

// scoreFromTT converts a stored score back to root-relative.
func scoreFromTT(score, ply int) int {
	switch {
	case score >= MateBound:
		return score - ply
	case score <= -MateBound:
		return score + ply
	}
	return score
}
