package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/killallgit/voxlog/internal/models"
	apperrors "github.com/killallgit/voxlog/pkg/errors"
)

func (o *Orchestrator) handleVoice(ctx context.Context, event models.Event) error {
	voice := event.Voice
	if voice == nil {
		return fmt.Errorf("voice event without payload")
	}
	chatID := event.ChatID

	if o.cfg.MaxAudioSize > 0 && voice.FileSize > o.cfg.MaxAudioSize {
		return o.notify(ctx, chatID, fmt.Sprintf(msgAudioTooLarge, formatBytes(voice.FileSize), formatBytes(o.cfg.MaxAudioSize)), nil)
	}

	session, err := o.sessions.GetActiveSession(ctx, chatID)
	if err != nil {
		o.fail(ctx, chatID, "", "add_audio", err, false)
		return nil
	}
	if session == nil || session.State != models.SessionStateCollecting {
		if session, err = o.startSession(ctx, chatID); err != nil || session == nil {
			return err
		}
	}

	tmpPath, size, err := o.download(ctx, voice.FileID)
	if err != nil {
		o.fail(ctx, chatID, session.ID, "download", err, false)
		return nil
	}
	if size == 0 {
		size = voice.FileSize
	}

	// Single worker: nothing else appends between this read and AddAudio
	dest := o.layout.AudioPath(session.ID, models.AudioFilename(session.NextSequence()))
	if err := moveFile(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		o.fail(ctx, chatID, session.ID, "store_audio", apperrors.StorageError("move audio", err), false)
		return nil
	}

	entry := models.AudioEntry{
		ReceivedAt:     event.ReceivedAt,
		FileSizeBytes:  size,
		TelegramFileID: voice.FileID,
	}
	if d := o.probeDuration(ctx, dest, voice.DurationSeconds); d > 0 {
		entry.DurationSeconds = &d
	}

	updated, err := o.sessions.AddAudio(ctx, session.ID, entry)
	if err != nil {
		os.Remove(dest)
		o.fail(ctx, chatID, session.ID, "add_audio", err, false)
		return nil
	}

	added := updated.AudioEntries[len(updated.AudioEntries)-1]
	if want := o.layout.AudioPath(session.ID, added.LocalFilename); want != dest {
		if err := moveFile(dest, want); err != nil {
			log.Printf("[ERROR] Clip %d of session %s stored at %s instead of %s: %v", added.Sequence, session.ID, dest, want, err)
		}
	}

	length := "unknown length"
	if added.DurationSeconds != nil {
		length = formatDuration(time.Duration(*added.DurationSeconds * float64(time.Second)))
	}
	return o.notify(ctx, chatID, fmt.Sprintf(msgAudioAdded, added.Sequence, updated.DisplayName(), length), &models.NotifyOptions{Silent: true})
}

// download fetches a voice file into the temp directory
func (o *Orchestrator) download(ctx context.Context, fileID string) (string, int64, error) {
	dir := o.cfg.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", 0, apperrors.StorageError("mkdir", err)
	}

	tmp, err := os.CreateTemp(dir, "voice_*.ogg")
	if err != nil {
		return "", 0, apperrors.StorageError("create temp file", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	size, err := o.fetcher.FetchAudio(ctx, fileID, tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		if apperrors.GetCode(err) == apperrors.ErrCodeInternal {
			err = apperrors.ExternalServiceError("telegram", err)
		}
		return "", 0, err
	}
	return tmpPath, size, nil
}

// probeDuration prefers the file's real length and falls back to the transport's value
func (o *Orchestrator) probeDuration(ctx context.Context, path string, reported int) float64 {
	if o.prober != nil {
		d, err := o.prober.Duration(ctx, path)
		if err == nil && d > 0 {
			return d
		}
		log.Printf("[DEBUG] Could not probe %s: %v", path, err)
	}
	return float64(reported)
}

// moveFile renames src to dst, copying when they sit on different filesystems
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
