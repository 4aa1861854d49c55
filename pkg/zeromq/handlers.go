package zeromq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/open-legged/controller/domain/controller"
	customlog "github.com/open-legged/controller/pkg/log"
)

// ModeRequester is the part of the controller the request socket drives
type ModeRequester interface {
	RequestMode(ctx context.Context, mode controller.RobotMode) (controller.ModeContext, error)
}

// ModeRequestData is the data of a MODE_REQUEST
type ModeRequestData struct {
	Mode string `json:"mode"`
}

// AckData is the data of an ACK reply
type AckData struct {
	Status       string `json:"status"`
	Mode         string `json:"mode"`
	TransitionID string `json:"transition_id"`
}

// ModeHandler handles STANDUP_REQUEST and MODE_REQUEST. It replies once the
// transition has completed on the controller.
type ModeHandler struct {
	requester ModeRequester
	timeout   time.Duration
	logger    customlog.Logger
}

// NewModeHandler creates a handler that waits at most timeout per request
func NewModeHandler(requester ModeRequester, timeout time.Duration, logger customlog.Logger) *ModeHandler {
	return &ModeHandler{
		requester: requester,
		timeout:   timeout,
		logger:    logger,
	}
}

// HandleMessage processes a mode request and returns an ACK
func (h *ModeHandler) HandleMessage(msg *ZeroMQMessage) ([]byte, error) {
	var mode controller.RobotMode
	switch msg.Type {
	case MsgTypeStandupRequest:
		mode = controller.ModeStandup
	case MsgTypeModeRequest:
		var data ModeRequestData
		if len(msg.Data) == 0 {
			return nil, fmt.Errorf("%w: MODE_REQUEST without data", ErrInvalidMessage)
		}
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		parsed, err := controller.ParseRobotMode(data.Mode)
		if err != nil {
			return nil, err
		}
		mode = parsed
	default:
		return nil, fmt.Errorf("unexpected message type: %s", msg.Type)
	}

	h.logger.Infof("Processing %s for mode %s", msg.Type, mode)

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	mc, err := h.requester.RequestMode(ctx, mode)
	if err != nil {
		return nil, err
	}

	return newEnvelope(MsgTypeAck, AckData{
		Status:       "OK",
		Mode:         mc.Mode.String(),
		TransitionID: mc.TransitionID,
	})
}

// RegisterModeHandlers registers the mode handler for both request types
func RegisterModeHandlers(service *ZeroMQService, requester ModeRequester, timeout time.Duration, logger customlog.Logger) *ModeHandler {
	handler := NewModeHandler(requester, timeout, logger)
	service.RegisterHandler(MsgTypeStandupRequest, handler)
	service.RegisterHandler(MsgTypeModeRequest, handler)
	return handler
}
