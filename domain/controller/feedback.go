package controller

import (
	"fmt"

	"github.com/open-legged/controller/pkg/kinematics"
	"gonum.org/v1/gonum/mat"
)

// FeetController is the task-space position law
//
//	q_j_dot = pinv(J) * (Kp * (p_desired - p) + v_desired)
//
// evaluated with the body held at the neutral pose. There is no velocity
// error term; v_desired enters as feed-forward only.
type FeetController struct {
	model  kinematics.Model
	policy kinematics.InversionPolicy
	kp     float64
}

func NewFeetController(model kinematics.Model, policy kinematics.InversionPolicy, kp float64) *FeetController {
	return &FeetController{model: model, policy: policy, kp: kp}
}

// FootPositions returns the feet for joint angles qj with a neutral body.
func (f *FeetController) FootPositions(qj mat.Vector) (*mat.VecDense, error) {
	q, err := kinematics.NeutralBodyState(qj)
	if err != nil {
		return nil, err
	}
	return f.model.FootPositions(q)
}

// Command returns the joint velocity command and whether the damped inverse
// was used.
func (f *FeetController) Command(qj, desiredPos, desiredVel mat.Vector) (*mat.VecDense, bool, error) {
	q, err := kinematics.NeutralBodyState(qj)
	if err != nil {
		return nil, false, err
	}
	feet, err := f.model.FootPositions(q)
	if err != nil {
		return nil, false, fmt.Errorf("foot positions: %w", err)
	}
	full, err := f.model.StackedFootJacobian(q)
	if err != nil {
		return nil, false, fmt.Errorf("foot jacobian: %w", err)
	}
	jac, err := kinematics.StripBodyTwist(full)
	if err != nil {
		return nil, false, err
	}
	if desiredPos.Len() != feet.Len() || desiredVel.Len() != feet.Len() {
		return nil, false, fmt.Errorf("%w: desired feet have %d/%d entries, model has %d",
			kinematics.ErrDimension, desiredPos.Len(), desiredVel.Len(), feet.Len())
	}

	inv, damped, err := f.policy.Invert(jac)
	if err != nil {
		return nil, damped, err
	}

	var task mat.VecDense
	task.SubVec(desiredPos, feet)
	task.ScaleVec(f.kp, &task)
	task.AddVec(&task, desiredVel)

	var qjDot mat.VecDense
	qjDot.MulVec(inv, &task)
	return &qjDot, damped, nil
}
