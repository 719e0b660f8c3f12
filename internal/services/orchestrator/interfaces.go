package orchestrator

import (
	"context"

	"github.com/killallgit/voxlog/internal/models"
)

// Messenger sends outbound messages through the chat transport
type Messenger interface {
	SendNotification(ctx context.Context, chatID int64, text string, opts *models.NotifyOptions) error
	SendFile(ctx context.Context, chatID int64, path string, caption string) error
	AcknowledgeCallback(ctx context.Context, callbackID string, text string) error
}

// AudioFetcher downloads a transport-held voice file to dest
type AudioFetcher interface {
	FetchAudio(ctx context.Context, fileID string, dest string) (int64, error)
}

// DurationProber reads the length of an audio file in seconds
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}
