package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// BootstrapConfig holds the initial configuration loaded from controller_config.yaml
type BootstrapConfig struct {
	Logging LoggingConfig         `yaml:"logging"`
	Server  BootstrapServerConfig `yaml:"server"`
	ZeroMQ  ZeroMQBootstrap       `yaml:"zeromq"`
	Data    DataConfig            `yaml:"data"`
}

// LoggingConfig holds logging settings from bootstrap
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogPath string `yaml:"log_path,omitempty"`
}

// BootstrapServerConfig holds bootstrap server settings
type BootstrapServerConfig struct {
	HTTPPort int `yaml:"http_port"`
}

// ZeroMQBootstrap holds ZeroMQ settings from bootstrap
type ZeroMQBootstrap struct {
	StateConnectAddress string `yaml:"state_connect_address"`
	CommandBindAddress  string `yaml:"command_bind_address"`
	RequestBindAddress  string `yaml:"request_bind_address"`
	PollTimeoutMs       int    `yaml:"poll_timeout_ms"`
	MessageBufferSize   int    `yaml:"message_buffer_size"`
}

// DataConfig holds data directory settings from bootstrap
type DataConfig struct {
	Directory            string `yaml:"directory"`
	ControllerConfigFile string `yaml:"controller_config_file"`
}

// LoadBootstrapConfig loads the bootstrap configuration from controller_config.yaml
func LoadBootstrapConfig(configDir string) (*BootstrapConfig, error) {
	bootstrapConfigPath := filepath.Join(configDir, "controller_config.yaml")

	data, err := os.ReadFile(bootstrapConfigPath)
	if err != nil {
		return nil, fmt.Errorf("error reading bootstrap config file '%s': %w", bootstrapConfigPath, err)
	}

	var bootstrapCfg BootstrapConfig
	if err := yaml.Unmarshal(data, &bootstrapCfg); err != nil {
		return nil, fmt.Errorf("error parsing bootstrap config file '%s': %w", bootstrapConfigPath, err)
	}

	if bootstrapCfg.ZeroMQ.StateConnectAddress == "" {
		return nil, fmt.Errorf("missing required field in bootstrap config: zeromq.state_connect_address")
	}
	if bootstrapCfg.ZeroMQ.CommandBindAddress == "" {
		return nil, fmt.Errorf("missing required field in bootstrap config: zeromq.command_bind_address")
	}
	if bootstrapCfg.ZeroMQ.RequestBindAddress == "" {
		return nil, fmt.Errorf("missing required field in bootstrap config: zeromq.request_bind_address")
	}
	if bootstrapCfg.Data.Directory == "" {
		return nil, fmt.Errorf("missing required field in bootstrap config: data.directory")
	}
	if bootstrapCfg.Data.ControllerConfigFile == "" {
		return nil, fmt.Errorf("missing required field in bootstrap config: data.controller_config_file")
	}

	if bootstrapCfg.ZeroMQ.PollTimeoutMs <= 0 {
		bootstrapCfg.ZeroMQ.PollTimeoutMs = 100
	}
	if bootstrapCfg.ZeroMQ.MessageBufferSize <= 0 {
		bootstrapCfg.ZeroMQ.MessageBufferSize = 1000
	}
	if bootstrapCfg.Server.HTTPPort == 0 {
		bootstrapCfg.Server.HTTPPort = 8080
	}

	// Relative data directories resolve against the bootstrap config dir
	if !filepath.IsAbs(bootstrapCfg.Data.Directory) {
		bootstrapCfg.Data.Directory = filepath.Join(configDir, bootstrapCfg.Data.Directory)
	}

	return &bootstrapCfg, nil
}

// ControllerConfigPath is the full path of the operational config file
func (b *BootstrapConfig) ControllerConfigPath() string {
	return filepath.Join(b.Data.Directory, b.Data.ControllerConfigFile)
}

// PollTimeout is how long transport loops block before re-checking shutdown
func (z ZeroMQBootstrap) PollTimeout() time.Duration {
	return time.Duration(z.PollTimeoutMs) * time.Millisecond
}
