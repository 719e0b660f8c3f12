package types

import "time"

// Status constants for API responses
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// BaseResponse contains fields common to all API responses
type BaseResponse struct {
	Status  string `json:"status"`  // One of the Status constants above
	Message string `json:"message"` // Human-readable message
}

// ErrorResponse for error cases
type ErrorResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Error   string      `json:"error,omitempty"`   // Error code
	Details interface{} `json:"details,omitempty"` // Additional error details
}

// SessionSummary is the list view of a session
type SessionSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	State        string    `json:"state"`
	ChatID       int64     `json:"chat_id"`
	AudioCount   int       `json:"audio_count"`
	ErrorCount   int       `json:"error_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// AudioSummary describes one clip without transport identifiers
type AudioSummary struct {
	Sequence            int       `json:"sequence"`
	ReceivedAt          time.Time `json:"received_at"`
	Filename            string    `json:"filename"`
	SizeBytes           int64     `json:"size_bytes"`
	DurationSeconds     *float64  `json:"duration_seconds,omitempty"`
	TranscriptionStatus string    `json:"transcription_status"`
	TranscriptFilename  string    `json:"transcript_filename,omitempty"`
}

// ErrorSummary is one recorded failure
type ErrorSummary struct {
	Timestamp   time.Time `json:"timestamp"`
	Operation   string    `json:"operation"`
	Target      string    `json:"target,omitempty"`
	Message     string    `json:"message"`
	Recoverable bool      `json:"recoverable"`
}

// SessionDetail is the full view of a session
type SessionDetail struct {
	SessionSummary
	InterruptedFrom  string         `json:"interrupted_from,omitempty"`
	Provider         string         `json:"provider,omitempty"`
	ProcessingOutput string         `json:"processing_output,omitempty"`
	Transcribed      int            `json:"transcribed"`
	Failed           int            `json:"failed"`
	Pending          int            `json:"pending"`
	DurationSeconds  float64        `json:"duration_seconds"`
	Audio            []AudioSummary `json:"audio"`
	Errors           []ErrorSummary `json:"errors"`
}

// SessionsResponse for session lists
type SessionsResponse struct {
	BaseResponse
	Sessions []SessionSummary `json:"sessions"`
	Count    int              `json:"count"`
}

// SessionResponse for a single session
type SessionResponse struct {
	BaseResponse
	Session *SessionDetail `json:"session"`
}

// OutputsResponse lists pipeline artifacts
type OutputsResponse struct {
	BaseResponse
	SessionID string   `json:"session_id"`
	Outputs   []string `json:"outputs"`
	Count     int      `json:"count"`
}
