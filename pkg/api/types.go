package api

// ModeRequest is the body of POST /api/v1/controller/mode
type ModeRequest struct {
	Mode string `json:"mode"`
}

// ModeResponse is returned once a mode transition has completed
type ModeResponse struct {
	Status       string `json:"status"`
	Mode         string `json:"mode"`
	TransitionID string `json:"transition_id"`
}

// ErrorResponse is returned for failed requests; Code repeats the HTTP status
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
