package transcription

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/killallgit/voxlog/internal/models"
	"github.com/killallgit/voxlog/internal/services/sessions"
	apperrors "github.com/killallgit/voxlog/pkg/errors"
)

type service struct {
	store   SessionStore
	layout  sessions.Layout
	backend Backend
}

// NewService creates a new transcription gateway
func NewService(store SessionStore, layout sessions.Layout, backend Backend) Service {
	return &service{
		store:   store,
		layout:  layout,
		backend: backend,
	}
}

func (s *service) IsReady() bool {
	return s.backend != nil && s.backend.IsReady()
}

func (s *service) TranscribeSession(ctx context.Context, sessionID string, progress ProgressFunc) (*Summary, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State != models.SessionStateTranscribing {
		return nil, apperrors.InvalidState(sessionID, string(session.State), string(models.SessionStateTranscribed))
	}
	if !s.IsReady() {
		return nil, apperrors.New(apperrors.ErrCodeTranscription, "transcription backend is not ready").
			WithDetail("session_id", sessionID)
	}

	entries := append([]models.AudioEntry(nil), session.AudioEntries...)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Sequence < entries[j].Sequence
	})

	summary := &Summary{SessionID: sessionID, Total: len(entries)}
	log.Printf("[INFO] Transcribing session %s (%d clip(s))", sessionID, len(entries))

	for i, entry := range entries {
		if ctx.Err() != nil {
			summary.Cancelled = true
			log.Printf("[INFO] Transcription of session %s cancelled after %d/%d clip(s)", sessionID, i, len(entries))
			return summary, nil
		}

		if entry.TranscriptionStatus == models.TranscriptionSuccess {
			summary.Succeeded++
			summary.Skipped++
			report(progress, Progress{Done: i + 1, Total: len(entries), Sequence: entry.Sequence, Success: true})
			continue
		}

		ok, err := s.transcribeEntry(ctx, sessionID, entry)
		if err != nil {
			return summary, err
		}
		if ctx.Err() != nil && !ok {
			// The backend was interrupted mid-clip; leave the entry for the next run
			summary.Cancelled = true
			log.Printf("[INFO] Transcription of session %s cancelled during clip %d", sessionID, entry.Sequence)
			return summary, nil
		}

		if ok {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		report(progress, Progress{Done: i + 1, Total: len(entries), Sequence: entry.Sequence, Success: ok})
	}

	if _, err := s.store.TransitionState(ctx, sessionID, models.SessionStateTranscribed); err != nil {
		return summary, err
	}

	log.Printf("[INFO] Session %s transcribed: %d succeeded, %d failed, %d skipped",
		sessionID, summary.Succeeded, summary.Failed, summary.Skipped)
	return summary, nil
}

// transcribeEntry handles one clip. The bool is the clip outcome; the error is only
// set when the outcome could not be recorded.
func (s *service) transcribeEntry(ctx context.Context, sessionID string, entry models.AudioEntry) (bool, error) {
	audioPath := s.layout.AudioPath(sessionID, entry.LocalFilename)

	result, err := s.backend.Transcribe(ctx, audioPath)
	if ctx.Err() != nil && (err != nil || result == nil || !result.Success) {
		return false, nil
	}

	var failure string
	switch {
	case err != nil:
		failure = err.Error()
	case result == nil:
		failure = "backend returned no result"
	case !result.Success:
		failure = result.Error
		if failure == "" {
			failure = "backend reported failure"
		}
	}

	if failure == "" {
		filename := models.TranscriptFilename(entry.Sequence)
		if writeErr := sessions.WriteTextFile(s.layout.TranscriptPath(sessionID, filename), result.Text); writeErr != nil {
			failure = fmt.Sprintf("saving transcript: %v", writeErr)
		} else {
			if _, err := s.store.UpdateTranscriptionStatus(ctx, sessionID, entry.Sequence, models.TranscriptionSuccess, filename); err != nil {
				return false, err
			}
			log.Printf("[DEBUG] Transcribed clip %d of session %s (%d chars)", entry.Sequence, sessionID, len(result.Text))
			return true, nil
		}
	}

	log.Printf("[WARN] Clip %d of session %s failed: %s", entry.Sequence, sessionID, failure)
	if _, err := s.store.UpdateTranscriptionStatus(ctx, sessionID, entry.Sequence, models.TranscriptionFailed, ""); err != nil {
		return false, err
	}
	if _, err := s.store.AddError(ctx, sessionID, models.ErrorEntry{
		Operation:   "transcription",
		Target:      entry.LocalFilename,
		Message:     failure,
		Recoverable: false,
	}); err != nil {
		return false, err
	}
	return false, nil
}

func report(progress ProgressFunc, p Progress) {
	if progress != nil {
		progress(p)
	}
}
