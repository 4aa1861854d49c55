package controller

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/open-legged/controller/pkg/kinematics"
	"gonum.org/v1/gonum/mat"
)

// StateSnapshot is a copy of the robot state; callers may keep and modify it.
type StateSnapshot struct {
	Q               *mat.VecDense
	U               *mat.VecDense
	JointPositions  *mat.VecDense
	JointVelocities *mat.VecDense
	UpdatedAt       time.Time
	Received        bool
}

// StateStore holds the latest generalized coordinates and velocities. Both
// start at zero, quaternion included, until the first update arrives.
type StateStore struct {
	mu        sync.RWMutex
	clock     clock.Clock
	q         *mat.VecDense
	u         *mat.VecDense
	qj        *mat.VecDense
	qjDot     *mat.VecDense
	updatedAt time.Time
	received  chan struct{}
	once      sync.Once
}

func NewStateStore(clk clock.Clock) *StateStore {
	return &StateStore{
		clock:    clk,
		q:        mat.NewVecDense(kinematics.GenCoordDim, nil),
		u:        mat.NewVecDense(kinematics.GenVelDim, nil),
		qj:       mat.NewVecDense(kinematics.NumJoints, nil),
		qjDot:    mat.NewVecDense(kinematics.NumJoints, nil),
		received: make(chan struct{}),
	}
}

// SetGenCoord replaces q and q_j. The first call releases Received.
func (s *StateStore) SetGenCoord(data []float64) error {
	if len(data) != kinematics.GenCoordDim {
		return fmt.Errorf("%w: gen_coord has %d entries, want %d", ErrMalformedState, len(data), kinematics.GenCoordDim)
	}
	q := mat.NewVecDense(len(data), append([]float64(nil), data...))
	qj, err := kinematics.JointPositions(q)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedState, err)
	}

	s.mu.Lock()
	s.q, s.qj = q, qj
	s.updatedAt = s.clock.Now()
	s.mu.Unlock()

	s.once.Do(func() { close(s.received) })
	return nil
}

// SetGenVel replaces u and q_j_dot.
func (s *StateStore) SetGenVel(data []float64) error {
	if len(data) != kinematics.GenVelDim {
		return fmt.Errorf("%w: gen_vel has %d entries, want %d", ErrMalformedState, len(data), kinematics.GenVelDim)
	}
	u := mat.NewVecDense(len(data), append([]float64(nil), data...))
	qjDot, err := kinematics.JointVelocities(u)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedState, err)
	}

	s.mu.Lock()
	s.u, s.qjDot = u, qjDot
	s.updatedAt = s.clock.Now()
	s.mu.Unlock()
	return nil
}

// Received is closed once the first gen_coord update has been stored.
func (s *StateStore) Received() <-chan struct{} {
	return s.received
}

func (s *StateStore) hasReceived() bool {
	select {
	case <-s.received:
		return true
	default:
		return false
	}
}

func (s *StateStore) Snapshot() StateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return StateSnapshot{
		Q:               mat.VecDenseCopyOf(s.q),
		U:               mat.VecDenseCopyOf(s.u),
		JointPositions:  mat.VecDenseCopyOf(s.qj),
		JointVelocities: mat.VecDenseCopyOf(s.qjDot),
		UpdatedAt:       s.updatedAt,
		Received:        s.hasReceived(),
	}
}
