package mlp

import (
	"errors"
	"fmt"
	"math/rand"
)

// SizeMismatchError is returned by a forward pass when the input vector
// width differs from the width the layer expects.
type SizeMismatchError struct {
	Actual   int
	Expected int
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("size mismatch: got %d inputs, expected %d", e.Actual, e.Expected)
}

// ErrUnstable is returned by training when a cost, gradient, weight,
// or bias stops being finite.
var ErrUnstable = errors.New("numerical instability")

// Rand is the source of randomness used for weight initialization and
// training sample selection.  *rand.Rand satisfies it; seed one for
// reproducible runs.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// globalRand uses the math/rand top-level functions.
type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }
func (globalRand) Intn(n int) int   { return rand.Intn(n) }

func orGlobal(rng Rand) Rand {
	if rng == nil {
		return globalRand{}
	}
	return rng
}
