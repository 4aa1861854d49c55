package services

import (
	"fmt"
	"os"
	"sync"

	"github.com/open-legged/controller/pkg/config"
	customlog "github.com/open-legged/controller/pkg/log"
)

// ControllerConfigService exposes the operational configuration the
// controller was built from. The configuration is fixed for the life of the
// process; there is no update path.
type ControllerConfigService interface {
	LoadConfig() error
	GetCurrentConfig() *config.Config
	GetCurrentConfigYAML() ([]byte, error)
	ConfigPath() string
}

type controllerConfigService struct {
	operationalConfigPath string
	logger                customlog.Logger
	currentConfig         *config.Config
	rawYAML               []byte
	mu                    sync.RWMutex
}

// NewControllerConfigService loads and validates the config at
// operationalConfigPath. Unlike a hot-reloadable store, a controller cannot
// start without it, so a failed load is returned.
func NewControllerConfigService(operationalConfigPath string, logger customlog.Logger) (ControllerConfigService, error) {
	if operationalConfigPath == "" {
		return nil, fmt.Errorf("operational configuration path cannot be empty")
	}
	if logger == nil {
		logger, _ = customlog.NewLogrusLogger("info", "")
		logger.Warnf("No logger provided to ControllerConfigService, using default.")
	}

	service := &controllerConfigService{
		operationalConfigPath: operationalConfigPath,
		logger:                logger,
	}
	if err := service.LoadConfig(); err != nil {
		return nil, err
	}

	logger.Infof("ControllerConfigService initialized for path: %s", operationalConfigPath)
	return service, nil
}

// LoadConfig reads and validates the operational config file. It is called
// once at construction.
func (s *controllerConfigService) LoadConfig() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Infof("Loading operational configuration from: %s", s.operationalConfigPath)
	data, err := os.ReadFile(s.operationalConfigPath)
	if err != nil {
		return fmt.Errorf("error reading operational config file '%s': %w", s.operationalConfigPath, err)
	}

	cfg, err := config.ParseConfig(data)
	if err != nil {
		return fmt.Errorf("invalid operational config '%s': %w", s.operationalConfigPath, err)
	}

	s.currentConfig = cfg
	s.rawYAML = data
	s.logger.Infof("Loaded operational configuration ID: %s, Version: %s, Robot: %s", cfg.ConfigID, cfg.Version, cfg.RobotID)
	return nil
}

// GetCurrentConfig returns the active configuration. Callers must not modify it.
func (s *controllerConfigService) GetCurrentConfig() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentConfig
}

// GetCurrentConfigYAML returns the YAML the active configuration was parsed
// from, not whatever is on disk now.
func (s *controllerConfigService) GetCurrentConfigYAML() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.rawYAML == nil {
		return nil, fmt.Errorf("no operational configuration loaded")
	}
	return append([]byte(nil), s.rawYAML...), nil
}

func (s *controllerConfigService) ConfigPath() string {
	return s.operationalConfigPath
}
