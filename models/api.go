package models

// APIResponse is the envelope for trigger endpoints.
type APIResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// SessionResponse is the readback envelope for GET /session/:id.
type SessionResponse struct {
	Success bool             `json:"success"`
	Session *Session         `json:"session,omitempty"`
	Status  ProcessingStatus `json:"status,omitempty"`
	Error   *ErrorDetail     `json:"error,omitempty"`
}

// HealthResponse is the payload for the health endpoint.
type HealthResponse struct {
	Status        string `json:"status"`
	Uptime        string `json:"uptime"`
	MaxWorkers    int    `json:"max_workers"`
	ActiveWorkers int    `json:"active_workers"`
	Version       string `json:"version"`
}

// SelectTabRequest selects one discovered tab by zero-based index.
type SelectTabRequest struct {
	Tab *int `json:"tab" binding:"required"`
}

// RegenerateRequest re-requests the answer for one delivered question,
// numbered as shown in the chat (1-based).
type RegenerateRequest struct {
	Question *int `json:"question" binding:"required"`
}
