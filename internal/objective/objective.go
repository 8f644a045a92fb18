// Package objective maps sampled output configurations to scalar energies:
// decoding rules turn photon-number configurations into bit vectors or
// normalized weight vectors, and Objective implementations score them.
package objective

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParameter reports malformed decode arguments
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrDegenerateSample reports a decoded weight vector with zero total
	ErrDegenerateSample = errors.New("degenerate sample: zero total weight")
)

// Objective scores a candidate bit vector. Implementations are treated as
// black boxes: any error is propagated to the caller unmodified.
type Objective interface {
	Evaluate(bits []int) (float64, error)
}

// Func adapts a plain function to the Objective interface
type Func func(bits []int) (float64, error)

// Evaluate implements Objective
func (f Func) Evaluate(bits []int) (float64, error) {
	return f(bits)
}

// WeightAdapter scores configurations through a weight-vector objective.
// Degenerate samples (no photons in any decoded group) are recovered
// locally by substituting the configured penalty energy instead of failing.
type WeightAdapter struct {
	BitsPerVariable int
	Penalty         float64
	Fn              func(weights []float64) (float64, error)
}

// Score decodes the configuration into normalized weights and evaluates it
func (w *WeightAdapter) Score(cfg []int) (float64, error) {
	if w.Fn == nil {
		return 0, fmt.Errorf("%w: weight objective function is required", ErrInvalidParameter)
	}
	weights, err := DecodeWeights(cfg, w.BitsPerVariable)
	if errors.Is(err, ErrDegenerateSample) {
		return w.Penalty, nil
	}
	if err != nil {
		return 0, err
	}
	return w.Fn(weights)
}
