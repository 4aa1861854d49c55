// Package integrator accumulates a velocity command into a position command.
package integrator

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Integrator holds a running integral advanced by rate*period per call.
// It is not safe for concurrent use; callers serialize access.
type Integrator struct {
	integral *mat.VecDense
	period   float64
}

// New creates a zeroed integrator of the given size stepping by period.
func New(size int, period time.Duration) *Integrator {
	return &Integrator{
		integral: mat.NewVecDense(size, nil),
		period:   period.Seconds(),
	}
}

// Reset zeroes the integral.
func (i *Integrator) Reset() {
	i.integral.Zero()
}

// SetIntegral seeds the integral with v.
func (i *Integrator) SetIntegral(v mat.Vector) error {
	if v.Len() != i.integral.Len() {
		return fmt.Errorf("integrator: seed has %d entries, want %d", v.Len(), i.integral.Len())
	}
	i.integral.CopyVec(v)
	return nil
}

// Integrate adds rate*period to the integral.
func (i *Integrator) Integrate(rate mat.Vector) error {
	if rate.Len() != i.integral.Len() {
		return fmt.Errorf("integrator: rate has %d entries, want %d", rate.Len(), i.integral.Len())
	}
	i.integral.AddScaledVec(i.integral, i.period, rate)
	return nil
}

// GetIntegral returns a copy of the current integral.
func (i *Integrator) GetIntegral() *mat.VecDense {
	return mat.VecDenseCopyOf(i.integral)
}

// Period is the integration step in seconds.
func (i *Integrator) Period() float64 {
	return i.period
}
