package controller

import (
	"fmt"

	"github.com/open-legged/controller/pkg/integrator"
	"github.com/open-legged/controller/pkg/trajectory"
	"gonum.org/v1/gonum/mat"
)

// CommandPair is published once per outbound tick, one entry per joint.
type CommandPair struct {
	Position []float64 `json:"q_j_cmd"`
	Velocity []float64 `json:"q_j_dot_cmd"`
}

// modeEnv is what mode behaviors need from the controller. It is only
// touched with the controller lock held.
type modeEnv struct {
	feet            *FeetController
	integrator      *integrator.Integrator
	neutral         *mat.VecDense
	standingHeight  float64
	standupDuration float64
	initialDuration float64
}

// plan is the trajectory a mode built on entry
type plan struct {
	behavior *modeBehavior
	mode     RobotMode
	hold     *trajectory.Hold
	damped   bool
}

type modeBehavior struct {
	control ControlMode
	enter   func(env *modeEnv, snap StateSnapshot) (*trajectory.Hold, error)
	step    func(env *modeEnv, p *plan, t float64, snap StateSnapshot) (CommandPair, error)
}

// A nil enter marks a mode that exists but has no implementation.
var behaviors = map[RobotMode]*modeBehavior{
	ModeIdle: {
		control: JointTracking,
		enter:   enterIdle,
		step:    stepJointTracking,
	},
	ModeStandup: {
		control: FeetTracking,
		enter:   enterStandup,
		step:    stepFeetTracking,
	},
	ModeWalk: {},
}

func behaviorFor(m RobotMode) (*modeBehavior, error) {
	b, ok := behaviors[m]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(m))
	}
	if b.enter == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotImplemented, m)
	}
	return b, nil
}

// enterIdle moves the joints from where they are to the neutral posture.
func enterIdle(env *modeEnv, snap StateSnapshot) (*trajectory.Hold, error) {
	return trajectory.BuildHold(env.initialDuration, snap.JointPositions, env.neutral)
}

// enterStandup seeds the integrator with the measured joints, then raises
// every foot to the standing height keeping x and y.
func enterStandup(env *modeEnv, snap StateSnapshot) (*trajectory.Hold, error) {
	// Start feet come from the measured joints on a neutral body pose, not the
	// measured body pose in q[0:7], so they share the feedback law's frame.
	start, err := env.feet.FootPositions(snap.JointPositions)
	if err != nil {
		return nil, err
	}
	end, err := trajectory.FeetAtHeight(start, env.standingHeight)
	if err != nil {
		return nil, err
	}
	hold, err := trajectory.BuildHold(env.standupDuration, start, end)
	if err != nil {
		return nil, err
	}
	if err := env.integrator.SetIntegral(snap.JointPositions); err != nil {
		return nil, err
	}
	return hold, nil
}

func stepJointTracking(_ *modeEnv, p *plan, t float64, _ StateSnapshot) (CommandPair, error) {
	return CommandPair{
		Position: p.hold.PositionAt(t).RawVector().Data,
		Velocity: p.hold.VelocityAt(t).RawVector().Data,
	}, nil
}

func stepFeetTracking(env *modeEnv, p *plan, t float64, snap StateSnapshot) (CommandPair, error) {
	qjDot, damped, err := env.feet.Command(snap.JointPositions, p.hold.PositionAt(t), p.hold.VelocityAt(t))
	if err != nil {
		return CommandPair{}, err
	}
	p.damped = damped
	if err := env.integrator.Integrate(qjDot); err != nil {
		return CommandPair{}, err
	}
	return CommandPair{
		Position: env.integrator.GetIntegral().RawVector().Data,
		Velocity: qjDot.RawVector().Data,
	}, nil
}
