package controller

import (
	"fmt"
	"strings"
	"time"
)

// RobotMode is the operator-facing intent
type RobotMode int

const (
	ModeIdle RobotMode = iota
	ModeStandup
	ModeWalk
)

func (m RobotMode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeStandup:
		return "standup"
	case ModeWalk:
		return "walk"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// ParseRobotMode accepts the String form, case-insensitively
func ParseRobotMode(s string) (RobotMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "idle":
		return ModeIdle, nil
	case "standup":
		return ModeStandup, nil
	case "walk":
		return ModeWalk, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// ControlMode is the control law executed on each tick
type ControlMode int

const (
	JointTracking ControlMode = iota
	FeetTracking
)

func (c ControlMode) String() string {
	switch c {
	case JointTracking:
		return "joint_tracking"
	case FeetTracking:
		return "feet_tracking"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// ControlModeFor returns the control law a robot mode runs. Walk has no
// control law yet and reports ErrNotImplemented.
func ControlModeFor(m RobotMode) (ControlMode, error) {
	b, err := behaviorFor(m)
	if err != nil {
		return 0, err
	}
	return b.control, nil
}

// ModeContext describes the active mode. It is rebuilt on every transition.
type ModeContext struct {
	Mode         RobotMode
	Control      ControlMode
	Start        time.Time
	EndTime      float64
	TransitionID string
}
