// Package nnue implements the efficiently updatable evaluation network.
//
// The network has 768 inputs per perspective (own/opponent × piece type ×
// square, mirrored for Black), a 128-neuron hidden layer shared by both
// perspectives, a clipped ReLU and a single output. Weights are quantised:
// the accumulator works in QA units and the output layer in QB units.
package nnue

import "github.com/hailam/chesscore/internal/board"

// Network architecture constants
const (
	InputSize  = 2 * 6 * 64
	HiddenSize = 128

	QA    = 255 // activation quantisation
	QB    = 64  // output weight quantisation
	Scale = 400 // network output to centipawns
)

// crelu clips an accumulator value to [0, QA].
func crelu(x int16) int32 {
	if x < 0 {
		return 0
	}
	if x > QA {
		return QA
	}
	return int32(x)
}

// Evaluate scores pos from the side to move's point of view without an
// accumulator stack. The search uses AccumulatorStack instead.
func (n *Network) Evaluate(pos *board.Position) int {
	var acc Accumulator
	acc.Refresh(n, pos)
	return n.Output(&acc, pos.SideToMove)
}
