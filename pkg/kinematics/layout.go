// Package kinematics holds the robot model used by the feet controller: the
// generalized state layout, an analytic quadruped foot model and the Jacobian
// pseudo-inverse helpers.
package kinematics

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// State layout of a 4-legged robot with 3 joints per leg.
const (
	NumLegs         = 4
	JointsPerLeg    = 3
	NumJoints       = NumLegs * JointsPerLeg
	NumFeetCoords   = NumLegs * 3
	BodyPoseDim     = 7 // position xyz + quaternion wxyz
	BodyTwistDim    = 6 // linear xyz + angular xyz
	GenCoordDim     = BodyPoseDim + NumJoints
	GenVelDim       = BodyTwistDim + NumJoints
	VerticalAxisIdx = 2
)

var ErrDimension = errors.New("kinematics: dimension mismatch")

// JointPositions extracts q_j from the generalized coordinates.
func JointPositions(q mat.Vector) (*mat.VecDense, error) {
	if q.Len() != GenCoordDim {
		return nil, fmt.Errorf("%w: gen_coord has %d entries, want %d", ErrDimension, q.Len(), GenCoordDim)
	}
	return tail(q, BodyPoseDim), nil
}

// JointVelocities extracts q_j_dot from the generalized velocities.
func JointVelocities(u mat.Vector) (*mat.VecDense, error) {
	if u.Len() != GenVelDim {
		return nil, fmt.Errorf("%w: gen_vel has %d entries, want %d", ErrDimension, u.Len(), GenVelDim)
	}
	return tail(u, BodyTwistDim), nil
}

func tail(v mat.Vector, from int) *mat.VecDense {
	out := mat.NewVecDense(v.Len()-from, nil)
	for i := from; i < v.Len(); i++ {
		out.SetVec(i-from, v.AtVec(i))
	}
	return out
}

// NeutralBodyState builds generalized coordinates with the body at the origin,
// identity orientation and the given joint angles.
func NeutralBodyState(qj mat.Vector) (*mat.VecDense, error) {
	if qj.Len() != NumJoints {
		return nil, fmt.Errorf("%w: joint vector has %d entries, want %d", ErrDimension, qj.Len(), NumJoints)
	}
	q := mat.NewVecDense(GenCoordDim, nil)
	q.SetVec(3, 1) // quaternion w
	for i := 0; i < NumJoints; i++ {
		q.SetVec(BodyPoseDim+i, qj.AtVec(i))
	}
	return q, nil
}

// StripBodyTwist drops the leading body-twist columns of a stacked foot
// Jacobian, leaving the joint columns.
func StripBodyTwist(j mat.Matrix) (*mat.Dense, error) {
	r, c := j.Dims()
	if c != GenVelDim {
		return nil, fmt.Errorf("%w: jacobian has %d columns, want %d", ErrDimension, c, GenVelDim)
	}
	out := mat.NewDense(r, NumJoints, nil)
	for row := 0; row < r; row++ {
		for col := BodyTwistDim; col < c; col++ {
			out.Set(row, col-BodyTwistDim, j.At(row, col))
		}
	}
	return out, nil
}
