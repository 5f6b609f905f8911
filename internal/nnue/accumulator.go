package nnue

import "github.com/hailam/chesscore/internal/board"

// Accumulator stores the hidden layer pre-activations for both perspectives.
type Accumulator struct {
	Values [2][HiddenSize]int16
}

// Refresh recomputes acc from scratch.
func (acc *Accumulator) Refresh(n *Network, pos *board.Position) {
	acc.Values[board.White] = n.FeatureBias
	acc.Values[board.Black] = n.FeatureBias
	for occ := pos.Occupied(); occ != 0; {
		sq := occ.PopLSB()
		acc.add(n, pos.Mailbox[sq], sq)
	}
}

func (acc *Accumulator) add(n *Network, pc board.Piece, sq board.Square) {
	for c := board.White; c <= board.Black; c++ {
		w := &n.FeatureWeights[FeatureIndex(c, pc, sq)]
		v := &acc.Values[c]
		for i := range v {
			v[i] += w[i]
		}
	}
}

func (acc *Accumulator) sub(n *Network, pc board.Piece, sq board.Square) {
	for c := board.White; c <= board.Black; c++ {
		w := &n.FeatureWeights[FeatureIndex(c, pc, sq)]
		v := &acc.Values[c]
		for i := range v {
			v[i] -= w[i]
		}
	}
}

// AccumulatorStack keeps one accumulator per ply, aligned with the board's
// move history: Push before MakeMove, Pop after UndoMove.
type AccumulatorStack struct {
	net   *Network
	stack []Accumulator
	top   int
}

// NewAccumulatorStack creates a stack evaluating with net.
func NewAccumulatorStack(net *Network) *AccumulatorStack {
	return &AccumulatorStack{net: net, stack: make([]Accumulator, 1, 256)}
}

// Network returns the network the stack evaluates with.
func (s *AccumulatorStack) Network() *Network {
	return s.net
}

// Refresh resets the stack to a single accumulator computed from pos.
func (s *AccumulatorStack) Refresh(pos *board.Position) {
	s.top = 0
	s.stack[0].Refresh(s.net, pos)
}

// Current returns the accumulator of the current ply.
func (s *AccumulatorStack) Current() *Accumulator {
	return &s.stack[s.top]
}

func (s *AccumulatorStack) next() *Accumulator {
	if s.top+1 == len(s.stack) {
		s.stack = append(s.stack, Accumulator{})
	}
	s.stack[s.top+1] = s.stack[s.top]
	s.top++
	return &s.stack[s.top]
}

// Push applies m, which must not have been played on pos yet.
func (s *AccumulatorStack) Push(pos *board.Position, m board.Move) {
	d := moveDelta(pos, m)
	acc := s.next()
	for i := 0; i < d.nsub; i++ {
		acc.sub(s.net, d.sub[i].pc, d.sub[i].sq)
	}
	for i := 0; i < d.nadd; i++ {
		acc.add(s.net, d.add[i].pc, d.add[i].sq)
	}
}

// PushNull duplicates the current accumulator for a null move.
func (s *AccumulatorStack) PushNull() {
	s.next()
}

// Pop discards the current ply.
func (s *AccumulatorStack) Pop() {
	if s.top == 0 {
		panic("nnue: accumulator stack underflow")
	}
	s.top--
}

// Depth returns the number of pushed plies.
func (s *AccumulatorStack) Depth() int {
	return s.top
}

// Evaluate scores the current accumulator from stm's point of view.
func (s *AccumulatorStack) Evaluate(stm board.Color) int {
	return s.net.Output(&s.stack[s.top], stm)
}
