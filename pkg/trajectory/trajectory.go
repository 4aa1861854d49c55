// Package trajectory builds and samples piecewise-linear (first-order-hold)
// trajectories over vector-valued samples.
package trajectory

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrTooFewBreaks      = errors.New("trajectory needs at least two breakpoints")
	ErrBreaksNotSorted   = errors.New("trajectory breakpoints must be strictly increasing")
	ErrSampleMismatch    = errors.New("trajectory samples do not match breakpoints")
	ErrNonPositiveLength = errors.New("trajectory duration must be positive")
)

// segment is c0 + c1*(t - start) on [start, next break)
type segment struct {
	start float64
	c0    *mat.VecDense
	c1    *mat.VecDense
}

// Trajectory is a piecewise polynomial of order <= 1. Values outside the
// break range clamp to the first/last segment like a drake PiecewisePolynomial.
type Trajectory struct {
	breaks   []float64
	segments []segment
	rows     int
}

// FirstOrderHold linearly interpolates samples[i] at breaks[i].
func FirstOrderHold(breaks []float64, samples []mat.Vector) (*Trajectory, error) {
	if len(breaks) < 2 {
		return nil, ErrTooFewBreaks
	}
	if len(samples) != len(breaks) {
		return nil, fmt.Errorf("%w: %d breaks, %d samples", ErrSampleMismatch, len(breaks), len(samples))
	}
	rows := samples[0].Len()
	for i, s := range samples {
		if s.Len() != rows {
			return nil, fmt.Errorf("%w: sample %d has %d rows, want %d", ErrSampleMismatch, i, s.Len(), rows)
		}
	}
	for i := 1; i < len(breaks); i++ {
		if !(breaks[i] > breaks[i-1]) {
			return nil, ErrBreaksNotSorted
		}
	}

	traj := &Trajectory{
		breaks:   append([]float64(nil), breaks...),
		segments: make([]segment, len(breaks)-1),
		rows:     rows,
	}
	for i := range traj.segments {
		dt := breaks[i+1] - breaks[i]
		slope := mat.NewVecDense(rows, nil)
		slope.SubVec(samples[i+1], samples[i])
		slope.ScaleVec(1/dt, slope)
		traj.segments[i] = segment{
			start: breaks[i],
			c0:    mat.VecDenseCopyOf(samples[i]),
			c1:    slope,
		}
	}
	return traj, nil
}

// Derivative returns the time derivative. For a first-order hold this is a
// piecewise-constant trajectory holding each segment's slope.
func (t *Trajectory) Derivative() *Trajectory {
	d := &Trajectory{
		breaks:   append([]float64(nil), t.breaks...),
		segments: make([]segment, len(t.segments)),
		rows:     t.rows,
	}
	for i, s := range t.segments {
		d.segments[i] = segment{
			start: s.start,
			c0:    mat.VecDenseCopyOf(s.c1),
			c1:    mat.NewVecDense(t.rows, nil),
		}
	}
	return d
}

// Value samples the trajectory at time tm, clamping tm into [StartTime, EndTime].
func (t *Trajectory) Value(tm float64) *mat.VecDense {
	if tm < t.StartTime() {
		tm = t.StartTime()
	}
	if tm > t.EndTime() {
		tm = t.EndTime()
	}
	s := t.segments[t.segmentIndex(tm)]
	out := mat.NewVecDense(t.rows, nil)
	out.AddScaledVec(s.c0, tm-s.start, s.c1)
	return out
}

// segmentIndex finds the segment whose interval contains tm; the final break
// belongs to the last segment.
func (t *Trajectory) segmentIndex(tm float64) int {
	i := sort.SearchFloat64s(t.breaks, tm)
	if i < len(t.breaks) && t.breaks[i] == tm {
		i++
	}
	i--
	if i < 0 {
		return 0
	}
	if i >= len(t.segments) {
		return len(t.segments) - 1
	}
	return i
}

// StartTime is the first breakpoint.
func (t *Trajectory) StartTime() float64 { return t.breaks[0] }

// EndTime is the last breakpoint.
func (t *Trajectory) EndTime() float64 { return t.breaks[len(t.breaks)-1] }

// Rows is the sample dimension.
func (t *Trajectory) Rows() int { return t.rows }

// Breaks returns a copy of the breakpoints.
func (t *Trajectory) Breaks() []float64 { return append([]float64(nil), t.breaks...) }

// EvaluatePosition samples traj at tm, holding the value at end once tm passes it.
func EvaluatePosition(traj *Trajectory, tm, end float64) *mat.VecDense {
	if tm > end {
		return traj.Value(end)
	}
	return traj.Value(tm)
}

// EvaluateVelocity samples traj at tm and returns zeros once tm passes end, so
// feed-forward stops exactly at the end of the segment.
func EvaluateVelocity(traj *Trajectory, tm, end float64) *mat.VecDense {
	if tm > end {
		return mat.NewVecDense(traj.Rows(), nil)
	}
	return traj.Value(tm)
}

// Hold is a two-point position trajectory with its derivative.
type Hold struct {
	Position *Trajectory
	Velocity *Trajectory
	EndTime  float64
}

// BuildHold moves linearly from start to end over [0, duration].
func BuildHold(duration float64, start, end mat.Vector) (*Hold, error) {
	if !(duration > 0) {
		return nil, fmt.Errorf("%w: %v", ErrNonPositiveLength, duration)
	}
	pos, err := FirstOrderHold([]float64{0, duration}, []mat.Vector{start, end})
	if err != nil {
		return nil, err
	}
	return &Hold{
		Position: pos,
		Velocity: pos.Derivative(),
		EndTime:  duration,
	}, nil
}

// PositionAt returns the hold's clamped position at tm.
func (h *Hold) PositionAt(tm float64) *mat.VecDense {
	return EvaluatePosition(h.Position, tm, h.EndTime)
}

// VelocityAt returns the hold's velocity at tm, zero past the end.
func (h *Hold) VelocityAt(tm float64) *mat.VecDense {
	return EvaluateVelocity(h.Velocity, tm, h.EndTime)
}
