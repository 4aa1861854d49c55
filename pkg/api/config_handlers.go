package api

import (
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	customlog "github.com/open-legged/controller/pkg/log"
	"github.com/open-legged/controller/services"
)

// ConfigHandler holds dependencies for configuration API endpoints.
type ConfigHandler struct {
	configService services.ControllerConfigService
	logger        customlog.Logger
}

// NewConfigHandler creates a new handler for configuration endpoints.
func NewConfigHandler(configService services.ControllerConfigService, logger customlog.Logger) *ConfigHandler {
	if configService == nil {
		panic("ConfigService cannot be nil in NewConfigHandler")
	}
	if logger == nil {
		panic("Logger cannot be nil in NewConfigHandler")
	}
	return &ConfigHandler{
		configService: configService,
		logger:        logger,
	}
}

// RegisterConfigRoutes registers the read-only configuration endpoints.
func RegisterConfigRoutes(app *fiber.App, configService services.ControllerConfigService, logger customlog.Logger) {
	h := NewConfigHandler(configService, logger)

	apiGroup := app.Group("/api/v1/config")
	apiGroup.Get("/controller", h.handleGetControllerConfig)
	apiGroup.Get("/controller/channels", h.handleGetChannels)

	logger.Infof("Registered controller configuration API endpoints under /api/v1/config")
}

// handleGetControllerConfig returns the YAML the controller was started with.
func (h *ConfigHandler) handleGetControllerConfig(c *fiber.Ctx) error {
	h.logger.Debugf("Handling GET request for /api/v1/config/controller")
	yamlData, err := h.configService.GetCurrentConfigYAML()
	if err != nil {
		h.logger.Errorf("Failed to get current controller config YAML: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(ErrorResponse{
			Error: fmt.Sprintf("Failed to retrieve configuration: %v", err),
			Code:  http.StatusInternalServerError,
		})
	}

	c.Set(fiber.HeaderContentType, "application/x-yaml")
	return c.Send(yamlData)
}

func (h *ConfigHandler) handleGetChannels(c *fiber.Ctx) error {
	cfg := h.configService.GetCurrentConfig()
	return c.JSON(fiber.Map{
		"robot_id": cfg.RobotID,
		"channels": cfg.Channels(),
	})
}
