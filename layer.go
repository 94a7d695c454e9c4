package mlp

import (
	"math"

	. "github.com/stevegt/goadapt"
	"gonum.org/v1/gonum/floats"
)

// Layer is a fully-connected layer of nodes.  Row i of Weights holds
// the incoming weights of output node i.
type Layer struct {
	NodesIn    int
	NodesOut   int
	Weights    [][]float64
	Biases     []float64
	Activation Activation
	// accumulated cost gradients, applied by ApplyGradients
	gradients *Gradients
}

// NewLayer creates a layer with nodesIn inputs and nodesOut outputs.
// Weights and biases are drawn uniformly from [-1, 1), the gradient
// accumulators start at zero, and the activation defaults to sigmoid.
func NewLayer(nodesIn, nodesOut int, rng Rand) (l *Layer) {
	l = newLayer(nodesIn, nodesOut)
	l.Randomize(rng)
	return
}

// newLayer creates a layer with zero weights and biases.
func newLayer(nodesIn, nodesOut int) (l *Layer) {
	Assert(nodesIn > 0, "layer needs at least one input, got %d", nodesIn)
	Assert(nodesOut > 0, "layer needs at least one output, got %d", nodesOut)
	l = &Layer{
		NodesIn:    nodesIn,
		NodesOut:   nodesOut,
		Weights:    make([][]float64, nodesOut),
		Biases:     make([]float64, nodesOut),
		Activation: Sigmoid,
	}
	for i := range l.Weights {
		l.Weights[i] = make([]float64, nodesIn)
	}
	l.init()
	return
}

// init checks the layer's shape and allocates the gradient
// accumulators.  Layers decoded from JSON or DNA come through here.
func (l *Layer) init() {
	Assert(len(l.Weights) == l.NodesOut, "layer has %d weight rows, expected %d", len(l.Weights), l.NodesOut)
	Assert(len(l.Biases) == l.NodesOut, "layer has %d biases, expected %d", len(l.Biases), l.NodesOut)
	for i, row := range l.Weights {
		Assert(len(row) == l.NodesIn, "node %d has %d weights, expected %d", i, len(row), l.NodesIn)
	}
	if l.gradients == nil {
		l.gradients = NewGradients(l.NodesIn, l.NodesOut)
	}
}

// Randomize sets the weights and biases to random values in [-1, 1).
func (l *Layer) Randomize(rng Rand) {
	rng = orGlobal(rng)
	for _, row := range l.Weights {
		for j := range row {
			row[j] = rng.Float64()*2 - 1
		}
	}
	for i := range l.Biases {
		l.Biases[i] = rng.Float64()*2 - 1
	}
}

// SetWeights sets the weights of all nodes to the given values.
func (l *Layer) SetWeights(weights [][]float64) {
	Assert(len(weights) == l.NodesOut)
	for i, row := range weights {
		Assert(len(row) == l.NodesIn)
		copy(l.Weights[i], row)
	}
}

// SetBiases sets the bias of each node to the corresponding value.
func (l *Layer) SetBiases(biases []float64) {
	Assert(len(biases) == l.NodesOut)
	copy(l.Biases, biases)
}

// Gradients returns the layer's gradient accumulators.
func (l *Layer) Gradients() *Gradients {
	return l.gradients
}

func (l *Layer) checkInputs(inputs []float64) error {
	if len(inputs) != l.NodesIn {
		return &SizeMismatchError{Actual: len(inputs), Expected: l.NodesIn}
	}
	return nil
}

// weightedInput returns the pre-activation sum for output node i.
func (l *Layer) weightedInput(inputs []float64, i int) float64 {
	return floats.Dot(inputs, l.Weights[i]) + l.Biases[i]
}

// CalculateOutputs runs the inference forward pass of the layer.
func (l *Layer) CalculateOutputs(inputs []float64) (outputs []float64, err error) {
	err = l.checkInputs(inputs)
	if err != nil {
		return
	}
	outputs = make([]float64, l.NodesOut)
	for i := range outputs {
		outputs[i] = l.Activation.Calculate(l.weightedInput(inputs, i))
	}
	return
}

// CalculateTrainingOutputs runs the forward pass and records the
// inputs, weighted inputs, and activations in data for the backward
// pass.  The returned slice is data.Activations.
func (l *Layer) CalculateTrainingOutputs(inputs []float64, data *LayerData) (activations []float64, err error) {
	err = l.checkInputs(inputs)
	if err != nil {
		return
	}
	data.Inputs = append(data.Inputs[:0], inputs...)
	for i := 0; i < l.NodesOut; i++ {
		z := l.weightedInput(inputs, i)
		data.WeightedInputs[i] = z
		data.Activations[i] = l.Activation.Calculate(z)
	}
	return data.Activations, nil
}

// CalculateNodeCost returns the cost of a single output node.
func (l *Layer) CalculateNodeCost(cost Cost, target, output float64) float64 {
	return cost.CalculateSingle(target, output)
}

// CalculateOutputLayerNodeValues fills data.NodeValues with the
// derivative of the cost with respect to each node's weighted input.
// Only meaningful for the output layer.
func (l *Layer) CalculateOutputLayerNodeValues(data *LayerData, targets []float64, cost Cost) {
	Assert(len(targets) == l.NodesOut, "got %d targets, expected %d", len(targets), l.NodesOut)
	for i := range data.NodeValues {
		costD1 := cost.Derivative(targets[i], data.Activations[i])
		activationD1 := l.Activation.Derivative(data.WeightedInputs[i])
		data.NodeValues[i] = costD1 * activationD1
	}
}

// CalculateHiddenLayerNodeValues backpropagates the node values of the
// next (downstream) layer through its weights into data.NodeValues.
func (l *Layer) CalculateHiddenLayerNodeValues(data *LayerData, next *Layer, nextNodeValues []float64) {
	Assert(next.NodesIn == l.NodesOut, "next layer takes %d inputs, this layer has %d outputs", next.NodesIn, l.NodesOut)
	Assert(len(nextNodeValues) == next.NodesOut)
	for i := 0; i < l.NodesOut; i++ {
		nodeValue := 0.0
		for k, nextNodeValue := range nextNodeValues {
			// the weighted input of downstream node k depends on
			// this node's output through next.Weights[k][i]
			nodeValue += next.Weights[k][i] * nextNodeValue
		}
		data.NodeValues[i] = nodeValue * l.Activation.Derivative(data.WeightedInputs[i])
	}
}

// UpdateGradients adds the cost gradient for the pass recorded in data
// to the layer's accumulators.
func (l *Layer) UpdateGradients(data *LayerData) {
	l.AccumulateGradients(data, l.gradients)
}

// AccumulateGradients adds the cost gradient for the pass recorded in
// data to g, which must have this layer's shape.
//
//	dcost/dweight[i][j] = input[j] * nodeValue[i]
//	dcost/dbias[i]      = nodeValue[i]
func (l *Layer) AccumulateGradients(data *LayerData, g *Gradients) {
	Assert(len(data.Inputs) == l.NodesIn, "layer data holds %d inputs, expected %d", len(data.Inputs), l.NodesIn)
	for i := 0; i < l.NodesOut; i++ {
		floats.AddScaled(g.Weights[i], data.NodeValues[i], data.Inputs)
	}
	floats.Add(g.Biases, data.NodeValues)
}

// MergeGradients adds g to the layer's accumulators.
func (l *Layer) MergeGradients(g *Gradients) {
	l.gradients.Add(g)
}

// ApplyGradients moves the weights and biases against the accumulated
// cost gradient, scaled by learningRate.  The accumulators are left
// untouched; call ClearGradients before the next batch.
func (l *Layer) ApplyGradients(learningRate float64) {
	g := l.gradients
	for i, row := range l.Weights {
		floats.AddScaled(row, -learningRate, g.Weights[i])
	}
	floats.AddScaled(l.Biases, -learningRate, g.Biases)
}

// ClearGradients resets the gradient accumulators to zero.
func (l *Layer) ClearGradients() {
	l.gradients.Clear()
}

// finite returns false if any weight or bias is NaN or infinite.
func (l *Layer) finite() bool {
	for _, row := range l.Weights {
		if !allFinite(row) {
			return false
		}
	}
	return allFinite(l.Biases)
}

func allFinite(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// Gradients holds cost gradients with the shape of one layer.
type Gradients struct {
	Weights [][]float64
	Biases  []float64
}

// NewGradients returns zeroed gradients for a layer with nodesIn
// inputs and nodesOut outputs.
func NewGradients(nodesIn, nodesOut int) (g *Gradients) {
	g = &Gradients{
		Weights: make([][]float64, nodesOut),
		Biases:  make([]float64, nodesOut),
	}
	for i := range g.Weights {
		g.Weights[i] = make([]float64, nodesIn)
	}
	return
}

// Add adds other to g.
func (g *Gradients) Add(other *Gradients) {
	Assert(len(g.Weights) == len(other.Weights))
	for i := range g.Weights {
		floats.Add(g.Weights[i], other.Weights[i])
	}
	floats.Add(g.Biases, other.Biases)
}

// Clear sets every gradient to zero.
func (g *Gradients) Clear() {
	for _, row := range g.Weights {
		clear(row)
	}
	clear(g.Biases)
}

func (g *Gradients) finite() bool {
	for _, row := range g.Weights {
		if !allFinite(row) {
			return false
		}
	}
	return allFinite(g.Biases)
}

// LayerData is the scratch state of one layer for one forward and
// backward pass.  It is reused across training steps.
type LayerData struct {
	// Inputs is the vector fed into the layer.
	Inputs []float64
	// WeightedInputs holds the pre-activation sums.
	WeightedInputs []float64
	// Activations holds the activated outputs.
	Activations []float64
	// NodeValues holds dcost/dweightedInput for each node.
	NodeValues []float64
}

// NewLayerData allocates scratch state sized for l.
func NewLayerData(l *Layer) *LayerData {
	return &LayerData{
		Inputs:         make([]float64, 0, l.NodesIn),
		WeightedInputs: make([]float64, l.NodesOut),
		Activations:    make([]float64, l.NodesOut),
		NodeValues:     make([]float64, l.NodesOut),
	}
}

// Reset zeroes the scratch state.
func (d *LayerData) Reset() {
	d.Inputs = d.Inputs[:0]
	clear(d.WeightedInputs)
	clear(d.Activations)
	clear(d.NodeValues)
}
