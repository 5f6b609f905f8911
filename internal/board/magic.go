package board

import "math/bits"

// Sliding attacks use fixed-size perfect-hash tables: every blocker subset of a
// square's relevance mask maps to one slot. The slot index comes from either a
// magic multiply or a bit extract, chosen by build tag (see magic_index.go and
// pext_index.go); both fill identical tables.

const (
	rookIndexBits   = 12
	bishopIndexBits = 9
)

type slider struct {
	mask  Bitboard
	magic uint64
	shift uint8
}

var (
	rookSliders   [64]slider
	bishopSliders [64]slider

	rookTable   [64][1 << rookIndexBits]Bitboard
	bishopTable [64][1 << bishopIndexBits]Bitboard
)

var (
	rookDirections   = [4][2]int{{0, 1}, {0, -1}, {1, 0}, {-1, 0}}
	bishopDirections = [4][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

// RookAttacks returns the rook attack set from sq, stopping at the first blocker
// in each direction. Blocker squares are included.
func RookAttacks(sq Square, occupied Bitboard) Bitboard {
	return rookTable[sq][rookSliders[sq].index(occupied)]
}

// BishopAttacks returns the bishop attack set from sq under the given occupancy.
func BishopAttacks(sq Square, occupied Bitboard) Bitboard {
	return bishopTable[sq][bishopSliders[sq].index(occupied)]
}

func initSliders() {
	for sq := A1; sq <= H8; sq++ {
		fillSlider(&rookSliders[sq], sq, rookMask(sq), rookIndexBits, rookTable[sq][:], rookAttacksSlow)
		fillSlider(&bishopSliders[sq], sq, bishopMask(sq), bishopIndexBits, bishopTable[sq][:], bishopAttacksSlow)
	}
}

func fillSlider(s *slider, sq Square, mask Bitboard, indexBits int, table []Bitboard, slow func(Square, Bitboard) Bitboard) {
	s.mask = mask
	s.shift = uint8(64 - indexBits)

	n := 1 << mask.Count()
	occupancies := make([]Bitboard, n)
	attacks := make([]Bitboard, n)
	for i := 0; i < n; i++ {
		occupancies[i] = pdep(uint64(i), mask)
		attacks[i] = slow(sq, occupancies[i])
	}
	s.fit(sq, occupancies, attacks, table)
}

// pdep deposits the low bits of src onto the set bits of mask, lowest first.
func pdep(src uint64, mask Bitboard) Bitboard {
	var out Bitboard
	for m := mask; m != 0; m &= m - 1 {
		if src&1 != 0 {
			out |= m & -m
		}
		src >>= 1
	}
	return out
}

// pext gathers the bits of x selected by mask into the low bits of the result.
func pext(x uint64, mask Bitboard) uint64 {
	var out uint64
	bit := uint64(1)
	for m := uint64(mask); m != 0; m &= m - 1 {
		if x&m&-m != 0 {
			out |= bit
		}
		bit <<= 1
	}
	return out
}

func slideAttacks(sq Square, occupied Bitboard, dirs [4][2]int) Bitboard {
	var attacks Bitboard
	for _, d := range dirs {
		for f, r := sq.File()+d[0], sq.Rank()+d[1]; f >= 0 && f < 8 && r >= 0 && r < 8; f, r = f+d[0], r+d[1] {
			s := NewSquare(f, r)
			attacks |= SquareBB(s)
			if occupied.Has(s) {
				break
			}
		}
	}
	return attacks
}

func rookAttacksSlow(sq Square, occupied Bitboard) Bitboard {
	return slideAttacks(sq, occupied, rookDirections)
}

func bishopAttacksSlow(sq Square, occupied Bitboard) Bitboard {
	return slideAttacks(sq, occupied, bishopDirections)
}

// rookMask is the rook's empty-board attack set minus the last square of each
// ray, since a piece on the edge never blocks anything further.
func rookMask(sq Square) Bitboard {
	var mask Bitboard
	f, r := sq.File(), sq.Rank()
	for i := r + 1; i < 7; i++ {
		mask |= SquareBB(NewSquare(f, i))
	}
	for i := r - 1; i > 0; i-- {
		mask |= SquareBB(NewSquare(f, i))
	}
	for i := f + 1; i < 7; i++ {
		mask |= SquareBB(NewSquare(i, r))
	}
	for i := f - 1; i > 0; i-- {
		mask |= SquareBB(NewSquare(i, r))
	}
	return mask
}

func bishopMask(sq Square) Bitboard {
	edges := (Rank1 | Rank8 | FileA | FileH) &^ SquareBB(sq)
	return bishopAttacksSlow(sq, 0) &^ edges
}

// magicRNG is the xorshift64* generator also used for Zobrist keys.
type magicRNG struct {
	state uint64
}

func (r *magicRNG) next() uint64 {
	r.state ^= r.state >> 12
	r.state ^= r.state << 25
	r.state ^= r.state >> 27
	return r.state * 0x2545F4914F6CDD1D
}

// sparse returns a candidate with roughly an eighth of its bits set, which
// makes good magic multipliers far more likely.
func (r *magicRNG) sparse() uint64 {
	return r.next() & r.next() & r.next()
}

var magicSeeds = [8]uint64{728, 10316, 55013, 32803, 12281, 15100, 16645, 255}

func findMagic(s *slider, sq Square, occupancies, attacks, table []Bitboard) {
	rng := magicRNG{state: magicSeeds[sq.Rank()]}
	epoch := make([]int, len(table))
	for attempt := 1; ; attempt++ {
		var magic uint64
		for {
			magic = rng.sparse()
			if bits.OnesCount64((uint64(s.mask)*magic)>>56) >= 6 {
				break
			}
		}
		s.magic = magic

		ok := true
		for i, occ := range occupancies {
			idx := s.index(occ)
			if epoch[idx] < attempt {
				epoch[idx] = attempt
				table[idx] = attacks[i]
			} else if table[idx] != attacks[i] {
				ok = false
				break
			}
		}
		if ok {
			return
		}
	}
}
