//go:build pext

package board

// SlidingIndexStrategy names the slider table index scheme compiled in.
const SlidingIndexStrategy = "pext"

func (s *slider) index(occupied Bitboard) uint64 {
	return pext(uint64(occupied), s.mask)
}

func (s *slider) fit(_ Square, occupancies, attacks, table []Bitboard) {
	for i, occ := range occupancies {
		table[s.index(occ)] = attacks[i]
	}
}
