package types

import (
	"context"

	"github.com/killallgit/voxlog/internal/database"
	"github.com/killallgit/voxlog/internal/models"
)

// SessionReader is the read side of the session service
type SessionReader interface {
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context, limit int) ([]*models.Session, error)
}

// OutputLister lists pipeline artifacts of a processed session
type OutputLister interface {
	ListOutputs(session *models.Session) ([]string, error)
}

// QueueStatus reports the event worker backlog
type QueueStatus interface {
	Pending() int
}

// BuildInfo identifies the running binary
type BuildInfo struct {
	Version   string
	GitCommit string
	BuildTime string
}

// Dependencies holds all the dependencies needed by handlers
type Dependencies struct {
	DB       *database.DB
	Sessions SessionReader
	Outputs  OutputLister
	Queue    QueueStatus
	Build    BuildInfo
}
