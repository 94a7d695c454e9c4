package mlp

import (
	"fmt"
	"math"
)

// Activation selects the per-node activation function of a layer.
// Derivatives always take the pre-activation weighted input, not the
// activation output.
type Activation int

const (
	Sigmoid Activation = iota
	Tanh
	ReLU
	Linear
)

// sigmoid activation function
func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// sigmoid derivative
func sigmoidD1(x float64) float64 {
	s := sigmoid(x)
	return s * (1 - s)
}

// tanh activation function
func tanh(x float64) float64 {
	return math.Tanh(x)
}

// tanh derivative
func tanhD1(x float64) float64 {
	return 1 - math.Pow(math.Tanh(x), 2)
}

// relu activation function
func relu(x float64) float64 {
	if x < 0 {
		return 0
	}
	return x
}

// relu derivative; the subgradient at zero is zero
func reluD1(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}

// linear activation function
func linear(x float64) float64 {
	return x
}

// linear derivative
func linearD1(x float64) float64 {
	return 1
}

var activationNames = map[Activation]string{
	Sigmoid: "sigmoid",
	Tanh:    "tanh",
	ReLU:    "relu",
	Linear:  "linear",
}

// Activations returns every supported activation.
func Activations() []Activation {
	return []Activation{Sigmoid, Tanh, ReLU, Linear}
}

// Calculate applies the activation function to x.
func (a Activation) Calculate(x float64) float64 {
	switch a {
	case Sigmoid:
		return sigmoid(x)
	case Tanh:
		return tanh(x)
	case ReLU:
		return relu(x)
	case Linear:
		return linear(x)
	}
	panic(fmt.Sprintf("unknown activation %d", int(a)))
}

// Derivative returns the derivative of the activation function at the
// pre-activation value x.
func (a Activation) Derivative(x float64) float64 {
	switch a {
	case Sigmoid:
		return sigmoidD1(x)
	case Tanh:
		return tanhD1(x)
	case ReLU:
		return reluD1(x)
	case Linear:
		return linearD1(x)
	}
	panic(fmt.Sprintf("unknown activation %d", int(a)))
}

func (a Activation) String() string {
	name, ok := activationNames[a]
	if !ok {
		return fmt.Sprintf("Activation(%d)", int(a))
	}
	return name
}

// ParseActivation returns the activation with the given name.
func ParseActivation(name string) (a Activation, err error) {
	for a, n := range activationNames {
		if n == name {
			return a, nil
		}
	}
	return a, fmt.Errorf("unknown activation function: %s", name)
}

// MarshalText encodes the activation as its name.
func (a Activation) MarshalText() ([]byte, error) {
	name, ok := activationNames[a]
	if !ok {
		return nil, fmt.Errorf("unknown activation %d", int(a))
	}
	return []byte(name), nil
}

// UnmarshalText decodes an activation name.
func (a *Activation) UnmarshalText(txt []byte) (err error) {
	*a, err = ParseActivation(string(txt))
	return
}
