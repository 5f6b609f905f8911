package board

// SEEValue holds the piece values used by static exchange evaluation.
var SEEValue = [7]int{100, 300, 300, 500, 900, 0, 0}

// moveGain is the material the move wins before any recapture.
func (p *Position) moveGain(m Move) int {
	switch {
	case m.IsCastle():
		return 0
	case m.Flag() == FlagEnPassant:
		return SEEValue[Pawn]
	}
	gain := SEEValue[p.Mailbox[m.To()].Type()]
	if m.IsPromotion() {
		gain += SEEValue[m.Promotion()] - SEEValue[Pawn]
	}
	return gain
}

// SEE reports whether the exchange started by m on its destination square
// nets at least threshold for the side to move. Both sides recapture with
// their least valuable attacker, and sliders uncovered by a capture join in.
func (p *Position) SEE(m Move, threshold int) bool {
	if m.IsCastle() {
		return threshold <= 0
	}
	from, to := m.From(), m.To()

	next := p.Mailbox[from].Type()
	if m.IsPromotion() {
		next = m.Promotion()
	}

	// Even if the mover is never recaptured the threshold is out of reach.
	balance := p.moveGain(m) - threshold
	if balance < 0 {
		return false
	}
	// Losing the moved piece for nothing still meets the threshold.
	balance -= SEEValue[next]
	if balance >= 0 {
		return true
	}

	occ := p.Occupied()&^SquareBB(from) | SquareBB(to)
	if m.Flag() == FlagEnPassant {
		occ &^= SquareBB(to ^ 8)
	}
	bishops := p.Pieces[Bishop] | p.Pieces[Queen]
	rooks := p.Pieces[Rook] | p.Pieces[Queen]
	attackers := p.AttackersTo(to, occ) & occ

	side := p.SideToMove.Other()
	for {
		ours := attackers & p.Colors[side]
		if ours == 0 {
			break
		}
		for next = Pawn; next < King; next++ {
			if ours&p.Pieces[next] != 0 {
				break
			}
		}
		occ &^= SquareBB((ours & p.Pieces[next]).LSB())

		if next == Pawn || next == Bishop || next == Queen {
			attackers |= BishopAttacks(to, occ) & bishops
		}
		if next == Rook || next == Queen {
			attackers |= RookAttacks(to, occ) & rooks
		}
		attackers &= occ

		side = side.Other()
		balance = -balance - 1 - SEEValue[next]
		if balance >= 0 {
			// A king cannot recapture into a defended square.
			if next == King && attackers&p.Colors[side] != 0 {
				side = side.Other()
			}
			break
		}
	}
	return p.SideToMove != side
}
