package board

// Zobrist keys, generated from a fixed seed so hashes are stable across runs.
var (
	zobristPiece     [12][64]uint64
	zobristEnPassant [8]uint64
	zobristCastling  [16]uint64
	zobristWhite     uint64
)

func init() {
	rng := magicRNG{state: 0x98F107A2BEEF1234}
	for p := range zobristPiece {
		for sq := range zobristPiece[p] {
			zobristPiece[p][sq] = rng.next()
		}
	}
	for f := range zobristEnPassant {
		zobristEnPassant[f] = rng.next()
	}
	for cr := range zobristCastling {
		zobristCastling[cr] = rng.next()
	}
	zobristWhite = rng.next()
}

// PieceKey returns the Zobrist key of piece p on sq.
func PieceKey(p Piece, sq Square) uint64 {
	return zobristPiece[p][sq]
}

func isMajor(pt PieceType) bool {
	return pt == Rook || pt == Queen || pt == King
}

func isMinor(pt PieceType) bool {
	return pt == Knight || pt == Bishop || pt == King
}

// toggleHashes XORs the key of p on sq into every hash whose filter accepts p.
func (p *Position) toggleHashes(pc Piece, sq Square) {
	key := zobristPiece[pc][sq]
	pt := pc.Type()
	p.Hash ^= key
	if pt == Pawn {
		p.PawnHash ^= key
	} else {
		p.NonPawnHash[pc.Color()] ^= key
	}
	if isMajor(pt) {
		p.MajorHash ^= key
	}
	if isMinor(pt) {
		p.MinorHash ^= key
	}
}

// toggleSide flips the side-to-move key in every hash.
func (p *Position) toggleSide() {
	p.Hash ^= zobristWhite
	p.PawnHash ^= zobristWhite
	p.NonPawnHash[White] ^= zobristWhite
	p.NonPawnHash[Black] ^= zobristWhite
	p.MajorHash ^= zobristWhite
	p.MinorHash ^= zobristWhite
}

// Hashes bundles every incrementally maintained key.
type Hashes struct {
	Hash        uint64
	PawnHash    uint64
	NonPawnHash [2]uint64
	MajorHash   uint64
	MinorHash   uint64
}

// ComputeHashes recomputes every key from scratch.
func (p *Position) ComputeHashes() Hashes {
	var scratch Position
	for sq := A1; sq <= H8; sq++ {
		if pc := p.Mailbox[sq]; pc != NoPiece {
			scratch.toggleHashes(pc, sq)
		}
	}
	if p.SideToMove == White {
		scratch.toggleSide()
	}
	scratch.Hash ^= zobristCastling[p.Castling]
	if p.EnPassant != NoSquare {
		scratch.Hash ^= zobristEnPassant[p.EnPassant.File()]
	}
	return scratch.hashes()
}

func (p *Position) hashes() Hashes {
	return Hashes{
		Hash:        p.Hash,
		PawnHash:    p.PawnHash,
		NonPawnHash: p.NonPawnHash,
		MajorHash:   p.MajorHash,
		MinorHash:   p.MinorHash,
	}
}
