//go:build !pext

package board

// SlidingIndexStrategy names the slider table index scheme compiled in.
const SlidingIndexStrategy = "magic"

func (s *slider) index(occupied Bitboard) uint64 {
	return (uint64(occupied&s.mask) * s.magic) >> s.shift
}

func (s *slider) fit(sq Square, occupancies, attacks, table []Bitboard) {
	findMagic(s, sq, occupancies, attacks, table)
}
