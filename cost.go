package mlp

import (
	"fmt"
	"math"

	. "github.com/stevegt/goadapt"
)

// Cost selects the function used to measure the error between a
// network's outputs and the training targets.
type Cost int

const (
	MeanSquaredError Cost = iota
	CrossEntropy
)

var costNames = map[Cost]string{
	MeanSquaredError: "mse",
	CrossEntropy:     "cross-entropy",
}

// Calculate returns the total cost of outputs against targets.  The
// vector form is the sum of CalculateSingle over the elements.
func (c Cost) Calculate(targets, outputs []float64) (cost float64) {
	Assert(len(targets) == len(outputs), "cost: %d targets, %d outputs", len(targets), len(outputs))
	for i := range targets {
		cost += c.CalculateSingle(targets[i], outputs[i])
	}
	return
}

// CalculateSingle returns the cost of a single output against its
// target.
//
// Cross-entropy is not finite when output is exactly 0 or 1; callers
// keep outputs inside (0, 1), e.g. with a sigmoid output layer.
func (c Cost) CalculateSingle(target, output float64) float64 {
	switch c {
	case MeanSquaredError:
		// cost = 0.5 * (y - x)^2
		return math.Pow(target-output, 2) / 2
	case CrossEntropy:
		return -target*math.Log(output) - (1-target)*math.Log(1-output)
	}
	panic(fmt.Sprintf("unknown cost %d", int(c)))
}

// Derivative returns the derivative of CalculateSingle with respect to
// output.
func (c Cost) Derivative(target, output float64) float64 {
	switch c {
	case MeanSquaredError:
		// dcost/dx = x - y
		return output - target
	case CrossEntropy:
		return (output - target) / (output * (1 - output))
	}
	panic(fmt.Sprintf("unknown cost %d", int(c)))
}

func (c Cost) String() string {
	name, ok := costNames[c]
	if !ok {
		return fmt.Sprintf("Cost(%d)", int(c))
	}
	return name
}

// ParseCost returns the cost function with the given name.
func ParseCost(name string) (c Cost, err error) {
	for c, n := range costNames {
		if n == name {
			return c, nil
		}
	}
	return c, fmt.Errorf("unknown cost function: %s", name)
}

// MarshalText encodes the cost function as its name.
func (c Cost) MarshalText() ([]byte, error) {
	name, ok := costNames[c]
	if !ok {
		return nil, fmt.Errorf("unknown cost %d", int(c))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a cost function name.
func (c *Cost) UnmarshalText(txt []byte) (err error) {
	*c, err = ParseCost(string(txt))
	return
}
