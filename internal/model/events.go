package model

// JobEvent is a typed progress notification emitted whenever a job changes
// status. Both the websocket hub and the client poller consume these instead
// of raw strings.
type JobEvent struct {
	JobID        string    `json:"jobId"`
	Status       JobStatus `json:"status"`
	OutputPath   string    `json:"outputPath,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage represents a status change pushed to subscribers
type WSProgressMessage struct {
	Type   string    `json:"type"`
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
}

// WSCompleteMessage represents job completion
type WSCompleteMessage struct {
	Type   string      `json:"type"`
	JobID  string      `json:"jobId"`
	Result interface{} `json:"result"`
}

// WSErrorMessage represents a failed job
type WSErrorMessage struct {
	Type  string  `json:"type"`
	JobID string  `json:"jobId"`
	Error WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
