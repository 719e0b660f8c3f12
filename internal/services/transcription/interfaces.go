package transcription

import (
	"context"

	"github.com/killallgit/voxlog/internal/models"
)

// Service transcribes every clip of a finalized session
type Service interface {
	// TranscribeSession processes each non-successful clip in sequence order and moves the
	// session to TRANSCRIBED. A cancelled context stops between clips and leaves the
	// session TRANSCRIBING.
	TranscribeSession(ctx context.Context, sessionID string, progress ProgressFunc) (*Summary, error)

	// IsReady reports whether the backend can accept work
	IsReady() bool
}

// Backend turns one audio file into text
type Backend interface {
	IsReady() bool
	Transcribe(ctx context.Context, audioPath string) (*Result, error)
}

// SessionStore is the slice of the session service the gateway writes through
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*models.Session, error)
	UpdateTranscriptionStatus(ctx context.Context, id string, sequence int, status models.TranscriptionStatus, transcriptFilename string) (*models.Session, error)
	AddError(ctx context.Context, id string, entry models.ErrorEntry) (*models.Session, error)
	TransitionState(ctx context.Context, id string, newState models.SessionState) (*models.Session, error)
}

// Result is a backend's answer for one clip
type Result struct {
	Success bool
	Text    string
	Error   string
}

// Summary describes one TranscribeSession run
type Summary struct {
	SessionID string `json:"session_id"`
	Total     int    `json:"total"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Cancelled bool   `json:"cancelled"`
}

// Progress is reported after each clip is handled
type Progress struct {
	Done     int
	Total    int
	Sequence int
	Success  bool
}

// ProgressFunc receives per-clip progress; may be nil
type ProgressFunc func(Progress)
