package nnue

import "github.com/hailam/chesscore/internal/board"

// Network holds the quantised weights.
type Network struct {
	// Input -> hidden, shared by both perspectives.
	FeatureWeights [InputSize][HiddenSize]int16
	FeatureBias    [HiddenSize]int16

	// Hidden -> output: side to move first, then the opponent.
	OutputWeights [2 * HiddenSize]int16
	OutputBias    int32
}

// Output computes the network output for acc from stm's point of view, in centipawns.
func (n *Network) Output(acc *Accumulator, stm board.Color) int {
	us, them := &acc.Values[stm], &acc.Values[stm.Other()]
	sum := int64(n.OutputBias)
	for i := 0; i < HiddenSize; i++ {
		sum += int64(crelu(us[i])) * int64(n.OutputWeights[i])
		sum += int64(crelu(them[i])) * int64(n.OutputWeights[HiddenSize+i])
	}
	return int(sum * Scale / (QA * QB))
}

// Neuron layout of the built-in network.
const (
	materialNeuron  = 0 // one per piece type, pawn..queen
	placementNeuron = 8 // one per piece type, pawn..king

	materialUnit    = 16
	placementBias   = 128
	placementWeight = 82 // one activation unit ≈ 2cp
)

var defaultValues = [5]int{100, 320, 330, 500, 900}

// Placement bonuses in centipawns, laid out as seen from White with rank 8 first.
var placement = [6][64]int16{
	board.Pawn: {
		0, 0, 0, 0, 0, 0, 0, 0,
		50, 50, 50, 50, 50, 50, 50, 50,
		10, 10, 20, 30, 30, 20, 10, 10,
		5, 5, 10, 25, 25, 10, 5, 5,
		0, 0, 0, 20, 20, 0, 0, 0,
		5, -5, -10, 0, 0, -10, -5, 5,
		5, 10, 10, -20, -20, 10, 10, 5,
		0, 0, 0, 0, 0, 0, 0, 0,
	},
	board.Knight: {
		-50, -40, -30, -30, -30, -30, -40, -50,
		-40, -20, 0, 0, 0, 0, -20, -40,
		-30, 0, 10, 15, 15, 10, 0, -30,
		-30, 5, 15, 20, 20, 15, 5, -30,
		-30, 0, 15, 20, 20, 15, 0, -30,
		-30, 5, 10, 15, 15, 10, 5, -30,
		-40, -20, 0, 5, 5, 0, -20, -40,
		-50, -40, -30, -30, -30, -30, -40, -50,
	},
	board.Bishop: {
		-20, -10, -10, -10, -10, -10, -10, -20,
		-10, 0, 0, 0, 0, 0, 0, -10,
		-10, 0, 5, 10, 10, 5, 0, -10,
		-10, 5, 5, 10, 10, 5, 5, -10,
		-10, 0, 10, 10, 10, 10, 0, -10,
		-10, 10, 10, 10, 10, 10, 10, -10,
		-10, 5, 0, 0, 0, 0, 5, -10,
		-20, -10, -10, -10, -10, -10, -10, -20,
	},
	board.Rook: {
		0, 0, 0, 0, 0, 0, 0, 0,
		5, 10, 10, 10, 10, 10, 10, 5,
		-5, 0, 0, 0, 0, 0, 0, -5,
		-5, 0, 0, 0, 0, 0, 0, -5,
		-5, 0, 0, 0, 0, 0, 0, -5,
		-5, 0, 0, 0, 0, 0, 0, -5,
		-5, 0, 0, 0, 0, 0, 0, -5,
		0, 0, 0, 5, 5, 0, 0, 0,
	},
	board.Queen: {
		-20, -10, -10, -5, -5, -10, -10, -20,
		-10, 0, 0, 0, 0, 0, 0, -10,
		-10, 0, 5, 5, 5, 5, 0, -10,
		-5, 0, 5, 5, 5, 5, 0, -5,
		0, 0, 5, 5, 5, 5, 0, -5,
		-10, 5, 5, 5, 5, 5, 0, -10,
		-10, 0, 5, 0, 0, 0, 0, -10,
		-20, -10, -10, -5, -5, -10, -10, -20,
	},
	board.King: {
		-30, -40, -40, -50, -50, -40, -40, -30,
		-30, -40, -40, -50, -50, -40, -40, -30,
		-30, -40, -40, -50, -50, -40, -40, -30,
		-30, -40, -40, -50, -50, -40, -40, -30,
		-20, -30, -30, -40, -40, -30, -30, -20,
		-10, -20, -20, -20, -20, -20, -20, -10,
		20, 20, 0, 0, 0, 0, 20, 20,
		20, 30, 10, 0, 0, 10, 30, 20,
	},
}

// Default builds a deterministic material-and-placement network so the engine
// can play without a weights file. Each material neuron counts one piece type
// of its perspective's own pieces; each placement neuron sums that piece
// type's placement bonus around a bias that keeps it inside the ReLU range.
// The opponent half carries the negated output weights, so the output is
// antisymmetric in the side to move.
func Default() *Network {
	n := &Network{}
	for pt := board.Pawn; pt <= board.Queen; pt++ {
		neuron := materialNeuron + int(pt)
		for sq := 0; sq < 64; sq++ {
			n.FeatureWeights[int(pt)*64+sq][neuron] = materialUnit
		}
		w := int16(defaultValues[pt] * QA * QB / (materialUnit * Scale))
		n.OutputWeights[neuron] = w
		n.OutputWeights[HiddenSize+neuron] = -w
	}
	for pt := board.Pawn; pt <= board.King; pt++ {
		neuron := placementNeuron + int(pt)
		n.FeatureBias[neuron] = placementBias
		for sq := 0; sq < 64; sq++ {
			n.FeatureWeights[int(pt)*64+sq][neuron] = placement[pt][sq^56] / 2
		}
		n.OutputWeights[neuron] = placementWeight
		n.OutputWeights[HiddenSize+neuron] = -placementWeight
	}
	return n
}
