package controller

import (
	"context"
	"errors"
	"net/http"
)

var (
	ErrNotImplemented = errors.New("robot mode is not implemented")
	ErrUnknownMode    = errors.New("unknown robot mode")
	ErrBusy           = errors.New("a mode transition is already in progress")
	ErrShuttingDown   = errors.New("controller is shutting down")
	ErrNotStarted     = errors.New("controller loops are not running")
	ErrStartupTimeout = errors.New("controller startup timed out")
	ErrMalformedState = errors.New("malformed state update")
)

// StatusCode maps controller errors to the numeric codes used in transport
// error replies and HTTP responses.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnknownMode), errors.Is(err, ErrMalformedState):
		return http.StatusBadRequest
	case errors.Is(err, ErrBusy):
		return http.StatusConflict
	case errors.Is(err, ErrNotImplemented):
		return http.StatusNotImplemented
	case errors.Is(err, ErrShuttingDown), errors.Is(err, ErrNotStarted),
		errors.Is(err, ErrStartupTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
