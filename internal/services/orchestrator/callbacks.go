package orchestrator

import (
	"context"
	"fmt"

	"github.com/killallgit/voxlog/internal/models"
	apperrors "github.com/killallgit/voxlog/pkg/errors"
)

func (o *Orchestrator) cbProcess(ctx context.Context, chatID int64, sessionID string) error {
	session, ok := o.lookup(ctx, chatID, sessionID, "processing")
	if !ok {
		return nil
	}
	return o.runProcessing(ctx, chatID, session, "")
}

// cbCancel only runs when nothing was cancelled on the submit path
func (o *Orchestrator) cbCancel(ctx context.Context, chatID int64, sessionID string) error {
	if o.Cancel(sessionID) {
		return o.notify(ctx, chatID, msgCancelling, nil)
	}
	return o.notify(ctx, chatID, msgNothingToCancel, nil)
}

func (o *Orchestrator) cbResume(ctx context.Context, chatID int64, sessionID string) error {
	session, ok := o.lookup(ctx, chatID, sessionID, "resume")
	if !ok {
		return nil
	}

	// At most one collecting session per chat
	active, err := o.sessions.GetActiveSession(ctx, chatID)
	if err != nil {
		o.fail(ctx, chatID, sessionID, "resume", err, false)
		return nil
	}
	if active != nil && active.ID != session.ID && active.State == models.SessionStateCollecting {
		return o.notify(ctx, chatID, fmt.Sprintf(msgFinishCurrent, active.DisplayName()), nil)
	}

	resumed, err := o.sessions.ResumeSession(ctx, session.ID)
	if err != nil {
		o.fail(ctx, chatID, sessionID, "resume", err, false)
		return nil
	}
	return o.notify(ctx, chatID, fmt.Sprintf(msgResumed, resumed.DisplayName()), nil)
}

func (o *Orchestrator) cbFinalize(ctx context.Context, chatID int64, sessionID string) error {
	session, ok := o.lookup(ctx, chatID, sessionID, "finalize")
	if !ok {
		return nil
	}
	if len(session.AudioEntries) == 0 {
		return o.notify(ctx, chatID, msgNoAudio, nil)
	}
	return o.finalizeAndTranscribe(ctx, chatID, session.ID)
}

func (o *Orchestrator) cbDiscard(ctx context.Context, chatID int64, sessionID string) error {
	session, ok := o.lookup(ctx, chatID, sessionID, "discard")
	if !ok {
		return nil
	}

	discarded, err := o.sessions.DiscardSession(ctx, session.ID)
	if err != nil {
		o.fail(ctx, chatID, sessionID, "discard", err, false)
		return nil
	}
	return o.notify(ctx, chatID, fmt.Sprintf(msgDiscarded, discarded.DisplayName()), nil)
}

func (o *Orchestrator) cbOutputs(ctx context.Context, chatID int64, sessionID string) error {
	session, ok := o.lookup(ctx, chatID, sessionID, "list_outputs")
	if !ok {
		return nil
	}
	return o.sendOutputs(ctx, chatID, session)
}

// lookup loads the session a button refers to, reporting failures to the chat
func (o *Orchestrator) lookup(ctx context.Context, chatID int64, sessionID, operation string) (*models.Session, bool) {
	session, err := o.sessions.GetSession(ctx, sessionID)
	if err != nil {
		o.fail(ctx, chatID, sessionID, operation, err, false)
		return nil, false
	}
	if session.ChatID != chatID {
		o.notify(ctx, chatID, humanized[apperrors.ErrCodeNotFound], nil)
		return nil, false
	}
	return session, true
}
