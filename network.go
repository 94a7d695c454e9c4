package mlp

import (
	"encoding/json"
	"fmt"
	"math"

	. "github.com/stevegt/goadapt"
)

// Network is a feedforward multilayer perceptron.  Layers[0] is
// closest to the inputs.  The cost function applies to the output
// layer only, so it is stored once on the network.
type Network struct {
	Name        string
	InputNames  []string `json:",omitempty"`
	OutputNames []string `json:",omitempty"`
	Layers      []*Layer
	Cost        Cost
}

// NewNetwork creates a new network from a topology.  The layerSizes
// arg is the width of each layer, input width first and output width
// last, so it needs at least two entries.  Weights and biases are
// drawn from rng; a nil rng uses the math/rand global source.  The
// activation function defaults to sigmoid and the cost function to
// mean squared error.
func NewNetwork(name string, rng Rand, layerSizes ...int) (net *Network) {
	Assert(len(layerSizes) >= 2, "topology needs at least 2 widths, got %v", layerSizes)
	net = &Network{
		Name:   name,
		Layers: make([]*Layer, len(layerSizes)-1),
		Cost:   MeanSquaredError,
	}
	for i := range net.Layers {
		net.Layers[i] = NewLayer(layerSizes[i], layerSizes[i+1], rng)
	}
	net.init()
	return
}

// validate checks that adjacent layer widths chain together.
func (n *Network) validate() error {
	if len(n.Layers) == 0 {
		return fmt.Errorf("network %q has no layers", n.Name)
	}
	for i, layer := range n.Layers {
		if layer == nil {
			return fmt.Errorf("network %q layer %d is missing", n.Name, i)
		}
		if layer.NodesIn <= 0 || layer.NodesOut <= 0 {
			return fmt.Errorf("layer %d has shape %dx%d", i, layer.NodesOut, layer.NodesIn)
		}
		if len(layer.Weights) != layer.NodesOut || len(layer.Biases) != layer.NodesOut {
			return fmt.Errorf("layer %d has %d weight rows and %d biases, expected %d", i, len(layer.Weights), len(layer.Biases), layer.NodesOut)
		}
		for j, row := range layer.Weights {
			if len(row) != layer.NodesIn {
				return fmt.Errorf("layer %d node %d has %d weights, expected %d", i, j, len(row), layer.NodesIn)
			}
		}
		if i > 0 && n.Layers[i-1].NodesOut != layer.NodesIn {
			return fmt.Errorf("layer %d takes %d inputs, layer %d has %d outputs", i, layer.NodesIn, i-1, n.Layers[i-1].NodesOut)
		}
	}
	if n.InputNames != nil && len(n.InputNames) != n.InputCount() {
		return fmt.Errorf("%d input names for %d inputs", len(n.InputNames), n.InputCount())
	}
	if n.OutputNames != nil && len(n.OutputNames) != n.OutputCount() {
		return fmt.Errorf("%d output names for %d outputs", len(n.OutputNames), n.OutputCount())
	}
	return nil
}

// init validates the network and allocates the gradient accumulators
// of every layer.
func (n *Network) init() {
	Ck(n.validate())
	for _, layer := range n.Layers {
		layer.init()
	}
}

// Save serializes the network configuration, weights, and biases to a
// JSON string.
func (n *Network) Save() (out string) {
	buf, err := json.MarshalIndent(n, "", "  ")
	if err != nil {
		n.showNaNs()
		Assert(false, "error marshaling network: %v", err)
	}
	out = string(buf)
	return
}

// Load deserializes a network configuration, weights, and biases from
// a JSON string.
func Load(txt string) (n *Network, err error) {
	defer func() {
		if err != nil {
			n = nil
		}
	}()
	defer Return(&err)
	err = json.Unmarshal([]byte(txt), &n)
	Ck(err)
	if n == nil {
		return nil, fmt.Errorf("no network in %q", txt)
	}
	n.init()
	return
}

// Clone returns a deep copy of the network, giving it a new name.
// Gradient accumulators are not copied.
func (n *Network) Clone(newName string) (clone *Network) {
	clone, err := Load(n.Save())
	Ck(err)
	clone.Name = newName
	return
}

// InputCount returns the width of the network's input vector.
func (n *Network) InputCount() int {
	return n.Layers[0].NodesIn
}

// OutputCount returns the width of the network's output vector.
func (n *Network) OutputCount() int {
	return n.Layers[len(n.Layers)-1].NodesOut
}

// Widths returns the topology of the network.
func (n *Network) Widths() (widths []int) {
	widths = append(widths, n.InputCount())
	for _, layer := range n.Layers {
		widths = append(widths, layer.NodesOut)
	}
	return
}

// InputLayer returns the layer closest to the inputs.
func (n *Network) InputLayer() *Layer {
	n.assertStructure()
	return n.Layers[0]
}

// OutputLayer returns the last layer.
func (n *Network) OutputLayer() *Layer {
	n.assertStructure()
	return n.Layers[len(n.Layers)-1]
}

// HiddenLayers returns the layers between the input and output
// layers.  The slice is empty for a network with exactly two layers.
func (n *Network) HiddenLayers() []*Layer {
	n.assertStructure()
	return n.Layers[1 : len(n.Layers)-1]
}

func (n *Network) assertStructure() {
	Assert(len(n.Layers) >= 2, "network %q has %d layers, need at least 2", n.Name, len(n.Layers))
}

// SetActivation sets the activation function of the given 0-based
// layer.  If layerNum is -1, the activation function is set for all
// layers.
func (n *Network) SetActivation(layerNum int, activation Activation) {
	if layerNum < 0 {
		for _, layer := range n.Layers {
			layer.Activation = activation
		}
		return
	}
	Assert(layerNum < len(n.Layers), "layer %d out of range", layerNum)
	n.Layers[layerNum].Activation = activation
}

// CalculateOutputs executes the forward function of the network and
// returns its output values.  A SizeMismatchError from any layer is
// returned as-is.
func (n *Network) CalculateOutputs(inputs []float64) (outputs []float64, err error) {
	outputs = inputs
	for _, layer := range n.Layers {
		outputs, err = layer.CalculateOutputs(outputs)
		if err != nil {
			return nil, err
		}
	}
	return
}

// CalculateCost runs the inputs through the network and returns the
// total cost of the output nodes against targets.
func (n *Network) CalculateCost(inputs, targets []float64) (cost float64, err error) {
	outputs, err := n.CalculateOutputs(inputs)
	if err != nil {
		return
	}
	Assert(len(targets) == len(outputs), "got %d targets, expected %d", len(targets), len(outputs))
	outputLayer := n.Layers[len(n.Layers)-1]
	for i, output := range outputs {
		cost += outputLayer.CalculateNodeCost(n.Cost, targets[i], output)
	}
	return
}

// NewLayerData allocates one scratch structure per layer.
func (n *Network) NewLayerData() (data []*LayerData) {
	data = make([]*LayerData, len(n.Layers))
	for i, layer := range n.Layers {
		data[i] = NewLayerData(layer)
	}
	return
}

// backprop runs one forward pass recording per-layer state in data,
// then fills in every layer's node values, starting from the output
// layer and working backwards.
func (n *Network) backprop(inputs, targets []float64, data []*LayerData) (err error) {
	Assert(len(data) == len(n.Layers), "got %d layer data, expected %d", len(data), len(n.Layers))
	last := len(n.Layers) - 1

	// provide inputs, record state
	layerInputs := inputs
	for i, layer := range n.Layers {
		layerInputs, err = layer.CalculateTrainingOutputs(layerInputs, data[i])
		if err != nil {
			return
		}
	}

	n.Layers[last].CalculateOutputLayerNodeValues(data[last], targets, n.Cost)
	for i := last - 1; i >= 0; i-- {
		n.Layers[i].CalculateHiddenLayerNodeValues(data[i], n.Layers[i+1], data[i+1].NodeValues)
	}
	return
}

// UpdateAllGradients runs one full forward and backward pass for a
// single training example and adds its cost gradient to every layer's
// accumulators.
func (n *Network) UpdateAllGradients(inputs, targets []float64, data []*LayerData) (err error) {
	err = n.backprop(inputs, targets, data)
	if err != nil {
		return
	}
	for i, layer := range n.Layers {
		layer.UpdateGradients(data[i])
	}
	return
}

// AccumulateAllGradients is UpdateAllGradients, but adds the gradient
// to grads instead of the layers' own accumulators.  It only reads the
// network, so concurrent calls are safe as long as each has its own
// data and grads.
func (n *Network) AccumulateAllGradients(inputs, targets []float64, data []*LayerData, grads []*Gradients) (err error) {
	Assert(len(grads) == len(n.Layers))
	err = n.backprop(inputs, targets, data)
	if err != nil {
		return
	}
	for i, layer := range n.Layers {
		layer.AccumulateGradients(data[i], grads[i])
	}
	return
}

// NewGradients allocates one zeroed gradient buffer per layer.
func (n *Network) NewGradients() (grads []*Gradients) {
	grads = make([]*Gradients, len(n.Layers))
	for i, layer := range n.Layers {
		grads[i] = NewGradients(layer.NodesIn, layer.NodesOut)
	}
	return
}

// ApplyAllGradients applies every layer's accumulated gradients.
func (n *Network) ApplyAllGradients(learningRate float64) {
	for _, layer := range n.Layers {
		layer.ApplyGradients(learningRate)
	}
}

// ClearAllGradients resets every layer's accumulators.
func (n *Network) ClearAllGradients() {
	for _, layer := range n.Layers {
		layer.ClearGradients()
	}
}

// finite returns false if any weight, bias, or accumulated gradient
// is NaN or infinite.
func (n *Network) finite() bool {
	for _, layer := range n.Layers {
		if !layer.finite() || !layer.gradients.finite() {
			return false
		}
	}
	return true
}

// showNaNs shows the weights and biases of all nodes that are NaN.
func (n *Network) showNaNs() {
	for i, layer := range n.Layers {
		for j := range layer.Weights {
			for k, w := range layer.Weights[j] {
				if math.IsNaN(w) {
					Pf("layer %v node %v weight %v is NaN\n", i, j, k)
				}
			}
			if math.IsNaN(layer.Biases[j]) {
				Pf("layer %v node %v bias is NaN\n", i, j)
			}
		}
	}
}

// SetInputNames sets the names of the inputs. The names are used in
// the arguments to PredictNamed().
func (n *Network) SetInputNames(names ...string) {
	Assert(len(names) == n.InputCount(), "%d names for %d inputs", len(names), n.InputCount())
	n.InputNames = names
}

// SetOutputNames sets the names of the outputs. The names are used in
// the results of PredictNamed().
func (n *Network) SetOutputNames(names ...string) {
	Assert(len(names) == n.OutputCount(), "%d names for %d outputs", len(names), n.OutputCount())
	n.OutputNames = names
}

// PredictNamed returns named outputs for the given named inputs.  It
// ignores named inputs which are not in the network, and sets to zero
// named inputs which are in the network but not in the given map.
func (n *Network) PredictNamed(inputMap map[string]float64) (outputMap map[string]float64, err error) {
	Assert(n.InputNames != nil, "network %q has no input names", n.Name)
	Assert(n.OutputNames != nil, "network %q has no output names", n.Name)
	inputs := make([]float64, len(n.InputNames))
	for i, name := range n.InputNames {
		input, ok := inputMap[name]
		if !ok {
			continue
		}
		Assert(!math.IsNaN(input), "input %s is NaN", name)
		inputs[i] = input
	}
	outputs, err := n.CalculateOutputs(inputs)
	if err != nil {
		return
	}
	outputMap = make(map[string]float64)
	for i, name := range n.OutputNames {
		outputMap[name] = outputs[i]
	}
	return
}

// Validate checks the network against a data set, ensuring that the
// cost of every point is at most maxCost.
func (n *Network) Validate(ds *DataSet, maxCost float64) (err error) {
	for _, p := range ds.Points {
		cost, err := n.CalculateCost(p.Inputs, p.Targets)
		if err != nil {
			return err
		}
		if cost > maxCost {
			outputs, _ := n.CalculateOutputs(p.Inputs)
			return fmt.Errorf("cost too high for inputs: %v, expected: %v, got: %v", p.Inputs, p.Targets, outputs)
		}
	}
	return
}
