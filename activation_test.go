package mlp

import (
	"math"
	"testing"

	. "github.com/stevegt/goadapt"
	"gonum.org/v1/gonum/diff/fd"
)

// panics returns true if f panics.
func panics(f func()) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = true
		}
	}()
	f()
	return
}

func TestSigmoid(t *testing.T) {
	if y := Sigmoid.Calculate(0); y != 0.5 {
		t.Error(y)
	}
	if y := Sigmoid.Calculate(2); math.Abs(y-0.88079708) > 0.0001 {
		t.Error(y)
	}
	// the derivative takes the weighted input, not the output
	if d := Sigmoid.Derivative(0); d != 0.25 {
		t.Error(d)
	}
}

func TestActivationValues(t *testing.T) {
	Tassert(t, ReLU.Calculate(-3) == 0, ReLU.Calculate(-3))
	Tassert(t, ReLU.Calculate(3) == 3, ReLU.Calculate(3))
	Tassert(t, ReLU.Derivative(0) == 0, ReLU.Derivative(0))
	Tassert(t, Tanh.Calculate(0) == 0, Tanh.Calculate(0))
	Tassert(t, Tanh.Derivative(0) == 1, Tanh.Derivative(0))
	Tassert(t, Linear.Calculate(-2.5) == -2.5, Linear.Calculate(-2.5))
	Tassert(t, Linear.Derivative(7) == 1, Linear.Derivative(7))
	Tassert(t, panics(func() { Activation(99).Calculate(0) }), "unknown activation should panic")
}

func TestActivationDerivatives(t *testing.T) {
	settings := &fd.Settings{Formula: fd.Central, Step: 1e-6}
	for _, a := range Activations() {
		for x := -10.0; x <= 10.0; x += 0.25 {
			if a == ReLU && x == 0 {
				// not differentiable
				continue
			}
			want := fd.Derivative(a.Calculate, x, settings)
			got := a.Derivative(x)
			Tassert(t, math.Abs(got-want) < 1e-4, "%s'(%v) = %v, finite difference %v", a, x, got, want)
		}
	}
}

func TestActivationNames(t *testing.T) {
	for _, a := range Activations() {
		b, err := ParseActivation(a.String())
		Tassert(t, err == nil, err)
		Tassert(t, a == b, a, b)
	}
	_, err := ParseActivation("softmax")
	Tassert(t, err != nil, "expected error for unknown activation")
	Tassert(t, Activation(42).String() == "Activation(42)", Activation(42).String())
}

func TestCost(t *testing.T) {
	targets := []float64{0, 1, 0.5}
	outputs := []float64{0.5, 0.5, 0.5}
	got := MeanSquaredError.Calculate(targets, outputs)
	Tassert(t, math.Abs(got-0.25) < 1e-12, got)

	got = CrossEntropy.CalculateSingle(1, 0.5)
	Tassert(t, math.Abs(got-math.Ln2) < 1e-12, got)

	Tassert(t, panics(func() { MeanSquaredError.Calculate([]float64{1}, []float64{1, 2}) }), "length mismatch should panic")

	// cross-entropy is not finite at the edges
	Tassert(t, math.IsInf(CrossEntropy.CalculateSingle(1, 0), 1), CrossEntropy.CalculateSingle(1, 0))
}

func TestCostDerivatives(t *testing.T) {
	settings := &fd.Settings{Formula: fd.Central, Step: 1e-7}
	for _, c := range []Cost{MeanSquaredError, CrossEntropy} {
		for _, target := range []float64{0, 0.3, 0.5, 1} {
			for output := 0.01; output < 0.995; output += 0.01 {
				f := func(o float64) float64 { return c.CalculateSingle(target, o) }
				want := fd.Derivative(f, output, settings)
				got := c.Derivative(target, output)
				tol := 1e-4 * math.Max(1, math.Abs(want))
				Tassert(t, math.Abs(got-want) < tol, "%s'(%v, %v) = %v, finite difference %v", c, target, output, got, want)
			}
		}
	}
}

func TestCostNames(t *testing.T) {
	for _, c := range []Cost{MeanSquaredError, CrossEntropy} {
		d, err := ParseCost(c.String())
		Tassert(t, err == nil, err)
		Tassert(t, c == d, c, d)
	}
	_, err := ParseCost("hinge")
	Tassert(t, err != nil, "expected error for unknown cost")
}
