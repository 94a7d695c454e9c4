package mlp

import (
	"github.com/pkg/errors"

	"github.com/stevegt/mlp/shape"
)

// NewNetworkFromShape creates a network with the topology, names, and
// activations of a parsed shape.  Weights and biases are random.
func NewNetworkFromShape(s *shape.Shape, rng Rand) (net *Network, err error) {
	activations := make([]Activation, len(s.LayerShapes))
	for i, ls := range s.LayerShapes {
		activations[i], err = ParseActivation(ls.ActivationName)
		if err != nil {
			return nil, errors.Wrapf(err, "shape %s layer %d", s.Name, i)
		}
	}
	net = NewNetwork(s.Name, rng, s.Widths()...)
	for i, activation := range activations {
		net.SetActivation(i, activation)
	}
	if s.InputNames != nil {
		net.SetInputNames(s.InputNames...)
	}
	if s.OutputNames != nil {
		net.SetOutputNames(s.OutputNames...)
	}
	return
}

// ParseShape parses a shape string and builds a network from it.
func ParseShape(txt string, rng Rand) (net *Network, err error) {
	s, err := shape.Parse(txt)
	if err != nil {
		return
	}
	return NewNetworkFromShape(s, rng)
}

// Shape returns the shape of the network.  A network without output
// names gives its output layer a width instead.
func (n *Network) Shape() (s *shape.Shape) {
	s = &shape.Shape{Name: n.Name}
	if n.InputNames != nil {
		s.InputNames = append([]string{}, n.InputNames...)
	} else {
		s.SetInputCount(n.InputCount())
	}
	for _, layer := range n.Layers {
		s.LayerShapes = append(s.LayerShapes, &shape.LayerShape{
			ActivationName: layer.Activation.String(),
			Width:          layer.NodesOut,
		})
	}
	if n.OutputNames != nil {
		s.OutputNames = append([]string{}, n.OutputNames...)
		s.LayerShapes[len(s.LayerShapes)-1].Names = s.OutputNames
	}
	return
}
