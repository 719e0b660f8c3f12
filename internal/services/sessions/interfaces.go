package sessions

import (
	"context"
	"time"

	"github.com/killallgit/voxlog/internal/models"
)

// Repository persists session records, one record per session id
type Repository interface {
	// Save atomically writes the full record; identical content is a no-op
	Save(ctx context.Context, session *models.Session) error

	// Load returns nil, nil when the id is unknown
	Load(ctx context.Context, id string) (*models.Session, error)

	// List returns sessions newest first; limit <= 0 returns all of them
	List(ctx context.Context, limit int) ([]*models.Session, error)

	// Exists reports whether a record is stored under id
	Exists(ctx context.Context, id string) (bool, error)
}

// Layout resolves where a session's files live on disk
type Layout interface {
	SessionDir(id string) string
	AudioPath(id, filename string) string
	TranscriptPath(id, filename string) string
}

// Service is the single writer of session state. Every mutating call validates the
// transition, refreshes the checkpoint and persists the record before returning.
type Service interface {
	CreateSession(ctx context.Context, chatID int64) (*models.Session, error)
	GetActiveSession(ctx context.Context, chatID int64) (*models.Session, error)
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context, limit int) ([]*models.Session, error)

	AddAudio(ctx context.Context, id string, entry models.AudioEntry) (*models.Session, error)
	FinalizeSession(ctx context.Context, id string) (*models.Session, error)
	TransitionState(ctx context.Context, id string, newState models.SessionState) (*models.Session, error)
	UpdateTranscriptionStatus(ctx context.Context, id string, sequence int, status models.TranscriptionStatus, transcriptFilename string) (*models.Session, error)
	AddError(ctx context.Context, id string, entry models.ErrorEntry) (*models.Session, error)

	ResumeSession(ctx context.Context, id string) (*models.Session, error)
	DiscardSession(ctx context.Context, id string) (*models.Session, error)
	FailSession(ctx context.Context, id string, entry models.ErrorEntry) (*models.Session, error)
	StartProcessing(ctx context.Context, id string, provider string) (*models.Session, error)
	CompleteProcessing(ctx context.Context, id string, outputDir string) (*models.Session, error)
	RenameSession(ctx context.Context, id string, name string) (*models.Session, error)

	DetectOrphanedSessions(ctx context.Context, threshold time.Duration) ([]*models.Session, error)
}
