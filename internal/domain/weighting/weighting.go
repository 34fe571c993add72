// Package weighting computes the reputation contribution of a peer endorsement.
//
// The engine is pure: no I/O, no state beyond its configured rate. It does not
// enforce one-endorsement-per-(endorser, badge); the endorsement store owns that
// uniqueness constraint and callers must persist through it before applying the
// delta returned here.
package weighting

import (
	"math"

	"github.com/okian/credence/internal/domain/errkind"
)

// DefaultBaseRate is 5% of the endorser's score at endorsement time.
const DefaultBaseRate = 0.05

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithBaseRate overrides the endorsement base rate. Non-positive or non-finite
// rates are ignored.
func WithBaseRate(rate float64) Option {
	return func(e *Engine) {
		if rate > 0 && !math.IsInf(rate, 0) && !math.IsNaN(rate) {
			e.baseRate = rate
		}
	}
}

// Engine turns an endorser's reputation snapshot into a weight.
type Engine struct {
	baseRate float64
}

// New creates an Engine with the default base rate.
func New(opts ...Option) *Engine {
	e := &Engine{baseRate: DefaultBaseRate}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BaseRate returns the configured rate.
func (e *Engine) BaseRate() float64 { return e.baseRate }

// ComputeWeight returns endorserReputation × base rate. Zero or negative
// reputation contributes nothing.
func (e *Engine) ComputeWeight(endorserReputation int64) float64 {
	if endorserReputation <= 0 {
		return 0
	}
	return float64(endorserReputation) * e.baseRate
}

// Delta converts a weight into the integer ledger delta, rounding half away from zero.
func (e *Engine) Delta(weight float64) int64 {
	if weight <= 0 || math.IsNaN(weight) {
		return 0
	}
	return int64(math.Round(weight))
}

// Validate rejects weights a caller supplied that cannot have come from ComputeWeight.
func (e *Engine) Validate(weight float64) error {
	const op = "weighting.validate"
	switch {
	case math.IsNaN(weight), math.IsInf(weight, 0):
		return errkind.New(op, errkind.ErrValidation, "weight must be finite")
	case weight < 0:
		return errkind.Newf(op, errkind.ErrValidation, "weight must not be negative, got %v", weight)
	}
	return nil
}
