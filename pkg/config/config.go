package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Number of actuated joints the controller commands (4 legs x HAA/HFE/KFE).
const NumJoints = 12

// Default values applied to fields omitted from the operational config.
const (
	DefaultRobotID                = "anymal"
	DefaultFrequencyHz            = 200.0
	DefaultStandingHeight         = 0.4
	DefaultKPosP                  = 10.0
	DefaultStandupDurationS       = 2.0
	DefaultInitialConfigDurationS = 1.0
	DefaultStartupTimeoutMs       = 5000
	DefaultInboundQueueSize       = 64
	DefaultModeRequestTimeoutMs   = 1000
	DefaultDamping                = 1e-4
	DefaultConditionThreshold     = 1e3

	MaxFrequencyHz = 1000.0
)

// DefaultNeutralJointConfig is the joint posture the Idle mode moves to, ordered
// LF, RF, LH, RH with HAA, HFE, KFE per leg.
var DefaultNeutralJointConfig = []float64{
	0.03, 0.4, -0.8,
	-0.03, 0.4, -0.8,
	0.03, -0.4, 0.8,
	-0.03, -0.4, 0.8,
}

// Config represents the operational controller configuration
type Config struct {
	Version       string              `yaml:"version" json:"version"`
	ConfigID      string              `yaml:"config_id" json:"config_id"`
	LastUpdated   string              `yaml:"lastUpdated" json:"lastUpdated"`
	RobotID       string              `yaml:"robot_id" json:"robot_id"`
	Controller    ControllerConfig    `yaml:"controller" json:"controller"`
	PseudoInverse PseudoInverseConfig `yaml:"pseudo_inverse" json:"pseudo_inverse"`
	Model         ModelConfig         `yaml:"model" json:"model"`
}

// ControllerConfig holds the control-loop parameters, fixed at construction
type ControllerConfig struct {
	FrequencyHz            float64   `yaml:"frequency_hz" json:"frequency_hz"`
	StandingHeight         float64   `yaml:"standing_height" json:"standing_height"`
	KPosP                  float64   `yaml:"k_pos_p" json:"k_pos_p"`
	StandupDurationS       float64   `yaml:"standup_duration_s" json:"standup_duration_s"`
	InitialConfigDurationS float64   `yaml:"initial_config_duration_s" json:"initial_config_duration_s"`
	NeutralJointConfig     []float64 `yaml:"neutral_joint_config" json:"neutral_joint_config"`
	StartupTimeoutMs       int       `yaml:"startup_timeout_ms" json:"startup_timeout_ms"`
	InboundQueueSize       int       `yaml:"inbound_queue_size" json:"inbound_queue_size"`
	ModeRequestTimeoutMs   int       `yaml:"mode_request_timeout_ms" json:"mode_request_timeout_ms"`
}

// PseudoInverseConfig selects when the feet controller damps the Jacobian inverse
type PseudoInverseConfig struct {
	Damping            float64 `yaml:"damping" json:"damping"`
	ConditionThreshold float64 `yaml:"condition_threshold" json:"condition_threshold"`
}

// ModelConfig holds the leg geometry of the analytic quadruped model (meters)
type ModelConfig struct {
	HipX             float64 `yaml:"hip_x" json:"hip_x"`
	HipY             float64 `yaml:"hip_y" json:"hip_y"`
	HipLateralOffset float64 `yaml:"hip_lateral_offset" json:"hip_lateral_offset"`
	ThighLength      float64 `yaml:"thigh_length" json:"thigh_length"`
	ShankLength      float64 `yaml:"shank_length" json:"shank_length"`
}

// Channels holds the transport channel names derived from the robot ID
type Channels struct {
	GenCoord  string `json:"gen_coord"`
	GenVel    string `json:"gen_vel"`
	Standup   string `json:"standup"`
	JointCmd  string `json:"q_j_cmd"`
	JointVCmd string `json:"q_j_dot_cmd"`
}

// LoadConfig loads configuration from the specified file path,
// applies defaults for omitted fields and validates the result
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses operational config YAML
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// ApplyDefaults fills zero-valued fields with their defaults
func (c *Config) ApplyDefaults() {
	if c.RobotID == "" {
		c.RobotID = DefaultRobotID
	}

	ctl := &c.Controller
	if ctl.FrequencyHz == 0 {
		ctl.FrequencyHz = DefaultFrequencyHz
	}
	if ctl.StandingHeight == 0 {
		ctl.StandingHeight = DefaultStandingHeight
	}
	if ctl.KPosP == 0 {
		ctl.KPosP = DefaultKPosP
	}
	if ctl.StandupDurationS == 0 {
		ctl.StandupDurationS = DefaultStandupDurationS
	}
	if ctl.InitialConfigDurationS == 0 {
		ctl.InitialConfigDurationS = DefaultInitialConfigDurationS
	}
	if ctl.NeutralJointConfig == nil {
		ctl.NeutralJointConfig = append([]float64(nil), DefaultNeutralJointConfig...)
	}
	if ctl.StartupTimeoutMs == 0 {
		ctl.StartupTimeoutMs = DefaultStartupTimeoutMs
	}
	if ctl.InboundQueueSize == 0 {
		ctl.InboundQueueSize = DefaultInboundQueueSize
	}
	if ctl.ModeRequestTimeoutMs == 0 {
		ctl.ModeRequestTimeoutMs = DefaultModeRequestTimeoutMs
	}

	if c.PseudoInverse.Damping == 0 {
		c.PseudoInverse.Damping = DefaultDamping
	}
	if c.PseudoInverse.ConditionThreshold == 0 {
		c.PseudoInverse.ConditionThreshold = DefaultConditionThreshold
	}

	m := &c.Model
	if m.HipX == 0 {
		m.HipX = 0.277
	}
	if m.HipY == 0 {
		m.HipY = 0.116
	}
	if m.HipLateralOffset == 0 {
		m.HipLateralOffset = 0.041
	}
	if m.ThighLength == 0 {
		m.ThighLength = 0.25
	}
	if m.ShankLength == 0 {
		m.ShankLength = 0.25
	}
}

// Validate checks the invariants the controller relies on
func (c *Config) Validate() error {
	ctl := c.Controller
	if ctl.FrequencyHz <= 0 || ctl.FrequencyHz > MaxFrequencyHz {
		return fmt.Errorf("controller.frequency_hz must be in (0, %.0f], got %v", MaxFrequencyHz, ctl.FrequencyHz)
	}
	if ctl.StandupDurationS <= 0 {
		return fmt.Errorf("controller.standup_duration_s must be positive, got %v", ctl.StandupDurationS)
	}
	if ctl.InitialConfigDurationS <= 0 {
		return fmt.Errorf("controller.initial_config_duration_s must be positive, got %v", ctl.InitialConfigDurationS)
	}
	if len(ctl.NeutralJointConfig) != NumJoints {
		return fmt.Errorf("controller.neutral_joint_config must have %d entries, got %d", NumJoints, len(ctl.NeutralJointConfig))
	}
	if ctl.StartupTimeoutMs < 0 || ctl.InboundQueueSize < 0 || ctl.ModeRequestTimeoutMs < 0 {
		return fmt.Errorf("controller timeouts and queue size must not be negative")
	}
	if c.PseudoInverse.Damping < 0 {
		return fmt.Errorf("pseudo_inverse.damping must not be negative, got %v", c.PseudoInverse.Damping)
	}
	if c.PseudoInverse.ConditionThreshold < 1 {
		return fmt.Errorf("pseudo_inverse.condition_threshold must be >= 1, got %v", c.PseudoInverse.ConditionThreshold)
	}
	if c.Model.ThighLength <= 0 || c.Model.ShankLength <= 0 {
		return fmt.Errorf("model link lengths must be positive")
	}
	return nil
}

// ControlPeriod is the outbound loop period derived from the frequency
func (c *Config) ControlPeriod() time.Duration {
	return time.Duration(float64(time.Second) / c.Controller.FrequencyHz)
}

// StartupTimeout bounds the wait for a time source and the first state update
func (c *Config) StartupTimeout() time.Duration {
	return time.Duration(c.Controller.StartupTimeoutMs) * time.Millisecond
}

// ModeRequestTimeout bounds how long a transport caller waits for a transition
func (c *Config) ModeRequestTimeout() time.Duration {
	return time.Duration(c.Controller.ModeRequestTimeoutMs) * time.Millisecond
}

// Channels returns the channel names namespaced by the robot ID
func (c *Config) Channels() Channels {
	return Channels{
		GenCoord:  "/" + c.RobotID + "/gen_coord",
		GenVel:    "/" + c.RobotID + "/gen_vel",
		Standup:   "/" + c.RobotID + "/standup",
		JointCmd:  "/q_j_cmd",
		JointVCmd: "/q_j_dot_cmd",
	}
}
