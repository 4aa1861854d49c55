package kinematics

import "gonum.org/v1/gonum/mat"

// Model evaluates foot kinematics for a generalized coordinate vector.
// Implementations are pure: the same q always yields the same result.
type Model interface {
	// FootPositions returns the stacked foot positions, 3 per leg.
	FootPositions(q mat.Vector) (*mat.VecDense, error)
	// StackedFootJacobian returns d(feet)/d(u), NumFeetCoords x GenVelDim.
	// Callers strip the body-twist columns with StripBodyTwist.
	StackedFootJacobian(q mat.Vector) (*mat.Dense, error)
}
