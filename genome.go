package mlp

import (
	"math"

	"github.com/pkg/errors"

	"github.com/stevegt/mlp/dna"
)

// maxDNAWidth bounds the widths a genome may declare, and
// maxDNAWeights the weight count of any one of its layers.
const (
	maxDNAWidth   = 1 << 16
	maxDNAWeights = 1 << 24
)

// DNA returns the network's genome: its topology, activations, cost
// function, weights, and biases.
func (n *Network) DNA() (D *dna.DNA) {
	D = dna.New(n.Name)
	if n.InputNames != nil {
		D.InputNames = append([]string{}, n.InputNames...)
	}
	if n.OutputNames != nil {
		D.OutputNames = append([]string{}, n.OutputNames...)
	}
	D.AddOp(dna.OpSetInputs, float64(n.InputCount()))
	D.AddOp(dna.OpSetCost, float64(n.Cost))
	for _, layer := range n.Layers {
		D.AddOp(dna.OpAddLayer, float64(layer.NodesOut))
		D.AddOp(dna.OpSetActivation, float64(layer.Activation))
		for _, row := range layer.Weights {
			for _, w := range row {
				D.AddOp(dna.OpSetWeight, w)
			}
		}
		for _, b := range layer.Biases {
			D.AddOp(dna.OpSetBias, b)
		}
	}
	D.AddOp(dna.OpHalt, 0)
	return
}

// NetworkFromDNA builds a network by running the statements of a
// genome.  Weights and biases the genome leaves unset are zero.
// Statements after OpHalt are ignored.
func NetworkFromDNA(D *dna.DNA) (n *Network, err error) {
	n = &Network{Name: D.Name, Cost: MeanSquaredError}
	if len(D.InputNames) > 0 {
		n.InputNames = append([]string{}, D.InputNames...)
	}
	if len(D.OutputNames) > 0 {
		n.OutputNames = append([]string{}, D.OutputNames...)
	}

	var inputCount int
	var layer *Layer
	var weightCursor, biasCursor int
	for pc, statement := range D.Statements {
		op, arg := statement.Opcode, statement.Arg
		if op == dna.OpHalt {
			break
		}
		if op != dna.OpSetInputs && op != dna.OpSetCost && op != dna.OpAddLayer && layer == nil {
			return nil, errors.Errorf("statement %d: %v before first layer", pc, op)
		}
		switch op {
		case dna.OpSetInputs:
			if len(n.Layers) > 0 {
				return nil, errors.Errorf("statement %d: %v after first layer", pc, op)
			}
			inputCount, err = width(arg)
		case dna.OpSetCost:
			var num int
			num, err = integer(arg)
			n.Cost = Cost(num)
			if _, ok := costNames[n.Cost]; err == nil && !ok {
				err = errors.Errorf("unknown cost %d", num)
			}
		case dna.OpAddLayer:
			nodesIn := inputCount
			if layer != nil {
				nodesIn = layer.NodesOut
			}
			if nodesIn == 0 {
				err = errors.Errorf("layer before %v", dna.OpSetInputs)
				break
			}
			var nodesOut int
			nodesOut, err = width(arg)
			if err != nil {
				break
			}
			if nodesIn*nodesOut > maxDNAWeights {
				err = errors.Errorf("layer %dx%d has more than %d weights", nodesOut, nodesIn, maxDNAWeights)
				break
			}
			layer = newLayer(nodesIn, nodesOut)
			n.Layers = append(n.Layers, layer)
			weightCursor, biasCursor = 0, 0
		case dna.OpSetActivation:
			var num int
			num, err = integer(arg)
			layer.Activation = Activation(num)
			if _, ok := activationNames[layer.Activation]; err == nil && !ok {
				err = errors.Errorf("unknown activation %d", num)
			}
		case dna.OpSetWeight:
			if weightCursor >= layer.NodesIn*layer.NodesOut {
				err = errors.Errorf("layer %d has only %d weights", len(n.Layers)-1, layer.NodesIn*layer.NodesOut)
				break
			}
			layer.Weights[weightCursor/layer.NodesIn][weightCursor%layer.NodesIn] = arg
			weightCursor++
		case dna.OpSetBias:
			if biasCursor >= layer.NodesOut {
				err = errors.Errorf("layer %d has only %d biases", len(n.Layers)-1, layer.NodesOut)
				break
			}
			layer.Biases[biasCursor] = arg
			biasCursor++
		default:
			err = errors.Errorf("unknown opcode %v", op)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "statement %d", pc)
		}
	}

	err = n.validate()
	if err != nil {
		return nil, errors.Wrap(err, "invalid dna")
	}
	n.init()
	return
}

// integer converts a statement argument to an int.
func integer(arg float64) (int, error) {
	if arg != math.Trunc(arg) || math.Abs(arg) > maxDNAWidth {
		return 0, errors.Errorf("argument %v is not a small integer", arg)
	}
	return int(arg), nil
}

// width converts a statement argument to a layer width.
func width(arg float64) (int, error) {
	w, err := integer(arg)
	if err == nil && w < 1 {
		err = errors.Errorf("width %d is not positive", w)
	}
	return w, err
}
