package orchestrator

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/killallgit/voxlog/internal/models"
	"github.com/killallgit/voxlog/internal/services/processor"
	"github.com/killallgit/voxlog/internal/services/transcription"
	apperrors "github.com/killallgit/voxlog/pkg/errors"
)

// runTranscription drives a TRANSCRIBING session through the gateway and reports back
func (o *Orchestrator) runTranscription(ctx context.Context, chatID int64, session *models.Session) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.register(session.ID, chatID, cancel)
	defer o.unregister(session.ID)

	o.notify(ctx, chatID, fmt.Sprintf(msgTranscribing, len(session.AudioEntries), session.DisplayName()), &models.NotifyOptions{
		Buttons: [][]models.Button{{{Text: "Cancel", Data: models.CallbackData(actionCancel, session.ID)}}},
	})

	progress := func(p transcription.Progress) {
		if p.Total > 1 && p.Done < p.Total {
			o.notify(ctx, chatID, fmt.Sprintf(msgProgress, p.Done, p.Total), &models.NotifyOptions{Silent: true})
		}
	}

	summary, err := o.transcriber.TranscribeSession(runCtx, session.ID, progress)
	if err != nil {
		// A backend that was never reached leaves the session resumable via /transcribe
		resolve := !apperrors.Is(err, apperrors.ErrCodeTranscription) && !apperrors.Is(err, apperrors.ErrCodeInvalidState)
		o.fail(ctx, chatID, session.ID, "transcription", err, resolve)
		return nil
	}

	if summary.Cancelled {
		return o.notify(ctx, chatID, fmt.Sprintf(msgCancelled, summary.Succeeded, summary.Total), nil)
	}

	var opts *models.NotifyOptions
	if summary.Succeeded > 0 && o.processor != nil {
		opts = &models.NotifyOptions{
			Buttons: [][]models.Button{{{Text: "Process", Data: models.CallbackData(actionProcess, session.ID)}}},
		}
	}
	return o.notify(ctx, chatID, summaryText(session, summary.Succeeded, summary.Failed), opts)
}

// runProcessing brackets the external pipeline with PROCESSING and PROCESSED or ERROR
func (o *Orchestrator) runProcessing(ctx context.Context, chatID int64, session *models.Session, provider string) error {
	if session.State != models.SessionStateTranscribed {
		return o.notify(ctx, chatID, fmt.Sprintf(msgNotReadyToProcess, session.DisplayName(), stateLabel(session.State)), nil)
	}
	if provider == "" {
		provider = o.processor.DefaultProvider()
	}

	// session keeps the TRANSCRIBED snapshot the processor validates against
	if _, err := o.sessions.StartProcessing(ctx, session.ID, provider); err != nil {
		o.fail(ctx, chatID, session.ID, "processing", err, false)
		return nil
	}
	o.notify(ctx, chatID, fmt.Sprintf(msgProcessing, session.DisplayName(), orNone(provider)), nil)

	outputDir, err := o.processor.Process(ctx, session, provider)
	if err != nil {
		o.fail(ctx, chatID, session.ID, "processing", err, true)
		return nil
	}

	done, err := o.sessions.CompleteProcessing(ctx, session.ID, outputDir)
	if err != nil {
		o.fail(ctx, chatID, session.ID, "processing", err, true)
		return nil
	}

	log.Printf("[INFO] Session %s processed into %s", done.ID, outputDir)
	return o.sendOutputs(ctx, chatID, done)
}

// sendOutputs delivers every pipeline artifact of a session as a file
func (o *Orchestrator) sendOutputs(ctx context.Context, chatID int64, session *models.Session) error {
	outputs, err := o.processor.ListOutputs(session)
	if err != nil {
		o.fail(ctx, chatID, session.ID, "list_outputs", err, false)
		return nil
	}
	if len(outputs) == 0 {
		return o.notify(ctx, chatID, fmt.Sprintf(msgNoOutputs, session.DisplayName()), nil)
	}

	o.notify(ctx, chatID, fmt.Sprintf(msgProcessed, len(outputs)), nil)
	for _, rel := range outputs {
		path := processor.OutputPath(o.layout, session, rel)
		if err := o.messenger.SendFile(ctx, chatID, path, filepath.ToSlash(rel)); err != nil {
			log.Printf("[WARN] Failed to send output %s of session %s: %v", rel, session.ID, err)
		}
	}
	return nil
}
