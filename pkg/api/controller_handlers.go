package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/open-legged/controller/domain/controller"
	customlog "github.com/open-legged/controller/pkg/log"
)

// ControllerAPI is the part of the controller exposed over HTTP
type ControllerAPI interface {
	Status() controller.Status
	RequestMode(ctx context.Context, mode controller.RobotMode) (controller.ModeContext, error)
}

// ControllerHandler serves the status and mode endpoints
type ControllerHandler struct {
	ctl     ControllerAPI
	timeout time.Duration
	logger  customlog.Logger
}

// RegisterControllerRoutes registers the controller endpoints. Mode requests
// wait at most timeout for the transition.
func RegisterControllerRoutes(app *fiber.App, ctl ControllerAPI, timeout time.Duration, logger customlog.Logger) {
	h := &ControllerHandler{ctl: ctl, timeout: timeout, logger: logger}

	group := app.Group("/api/v1/controller")
	group.Get("/status", h.handleStatus)
	group.Post("/mode", h.handleMode)
	group.Post("/standup", h.handleStandup)

	logger.Infof("Registered controller API endpoints under /api/v1/controller")
}

func (h *ControllerHandler) handleStatus(c *fiber.Ctx) error {
	return c.JSON(h.ctl.Status())
}

func (h *ControllerHandler) handleMode(c *fiber.Ctx) error {
	var req ModeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(ErrorResponse{
			Error: "Invalid request body: " + err.Error(),
			Code:  http.StatusBadRequest,
		})
	}
	mode, err := controller.ParseRobotMode(req.Mode)
	if err != nil {
		return h.fail(c, err)
	}
	return h.request(c, mode)
}

func (h *ControllerHandler) handleStandup(c *fiber.Ctx) error {
	return h.request(c, controller.ModeStandup)
}

func (h *ControllerHandler) request(c *fiber.Ctx, mode controller.RobotMode) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	mc, err := h.ctl.RequestMode(ctx, mode)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(ModeResponse{
		Status:       "success",
		Mode:         mc.Mode.String(),
		TransitionID: mc.TransitionID,
	})
}

func (h *ControllerHandler) fail(c *fiber.Ctx, err error) error {
	code := controller.StatusCode(err)
	h.logger.Warnf("Mode request from %s failed (%d): %v", c.IP(), code, err)
	return c.Status(code).JSON(ErrorResponse{Error: err.Error(), Code: code})
}
