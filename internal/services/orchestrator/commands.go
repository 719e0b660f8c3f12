package orchestrator

import (
	"context"
	"fmt"

	"github.com/killallgit/voxlog/internal/models"
)

const listLimit = 10

func (o *Orchestrator) cmdStart(ctx context.Context, chatID int64, args string) error {
	_, err := o.startSession(ctx, chatID)
	return err
}

// startSession creates a session, announces it and transcribes a collecting session it
// replaced
func (o *Orchestrator) startSession(ctx context.Context, chatID int64) (*models.Session, error) {
	previous, err := o.sessions.GetActiveSession(ctx, chatID)
	if err != nil {
		o.fail(ctx, chatID, "", "create_session", err, false)
		return nil, nil
	}

	session, err := o.sessions.CreateSession(ctx, chatID)
	if err != nil {
		o.fail(ctx, chatID, "", "create_session", err, false)
		return nil, nil
	}
	o.notify(ctx, chatID, fmt.Sprintf(msgSessionStarted, session.DisplayName()), nil)

	if previous != nil && previous.State == models.SessionStateCollecting {
		closed, err := o.sessions.GetSession(ctx, previous.ID)
		if err == nil && closed.State == models.SessionStateTranscribing {
			if err := o.runTranscription(ctx, chatID, closed); err != nil {
				return session, err
			}
		}
	}
	return session, nil
}

func (o *Orchestrator) cmdDone(ctx context.Context, chatID int64, args string) error {
	session, err := o.sessions.GetActiveSession(ctx, chatID)
	if err != nil {
		o.fail(ctx, chatID, "", "finalize", err, false)
		return nil
	}
	if session == nil {
		return o.notify(ctx, chatID, msgNoActiveSession, nil)
	}
	if session.State != models.SessionStateCollecting {
		return o.notify(ctx, chatID, fmt.Sprintf(msgBusy, session.DisplayName(), stateLabel(session.State)), nil)
	}
	if len(session.AudioEntries) == 0 {
		return o.notify(ctx, chatID, msgNoAudio, nil)
	}

	return o.finalizeAndTranscribe(ctx, chatID, session.ID)
}

func (o *Orchestrator) finalizeAndTranscribe(ctx context.Context, chatID int64, sessionID string) error {
	finalized, err := o.sessions.FinalizeSession(ctx, sessionID)
	if err != nil {
		o.fail(ctx, chatID, sessionID, "finalize", err, false)
		return nil
	}
	return o.runTranscription(ctx, chatID, finalized)
}

func (o *Orchestrator) cmdTranscribe(ctx context.Context, chatID int64, args string) error {
	session, err := o.findSession(ctx, chatID, models.SessionStateTranscribing)
	if err != nil {
		o.fail(ctx, chatID, "", "transcription", err, false)
		return nil
	}
	if session == nil {
		return o.notify(ctx, chatID, "Nothing is waiting for transcription.", nil)
	}
	return o.runTranscription(ctx, chatID, session)
}

func (o *Orchestrator) cmdProcess(ctx context.Context, chatID int64, args string) error {
	session, err := o.findSession(ctx, chatID, models.SessionStateTranscribed)
	if err != nil {
		o.fail(ctx, chatID, "", "processing", err, false)
		return nil
	}
	if session == nil {
		return o.notify(ctx, chatID, "No transcribed session to process.", nil)
	}
	return o.runProcessing(ctx, chatID, session, args)
}

func (o *Orchestrator) cmdStatus(ctx context.Context, chatID int64, args string) error {
	session, err := o.sessions.GetActiveSession(ctx, chatID)
	if err != nil {
		o.fail(ctx, chatID, "", "status", err, false)
		return nil
	}
	if session == nil {
		return o.notify(ctx, chatID, msgNoActiveSession, nil)
	}
	return o.notify(ctx, chatID, statusText(session), nil)
}

func (o *Orchestrator) cmdList(ctx context.Context, chatID int64, args string) error {
	all, err := o.sessions.ListSessions(ctx, 0)
	if err != nil {
		o.fail(ctx, chatID, "", "list", err, false)
		return nil
	}

	mine := make([]*models.Session, 0, listLimit)
	for _, s := range all {
		if s.ChatID == chatID {
			mine = append(mine, s)
			if len(mine) == listLimit {
				break
			}
		}
	}
	return o.notify(ctx, chatID, listText(mine), nil)
}

func (o *Orchestrator) cmdRename(ctx context.Context, chatID int64, args string) error {
	if args == "" {
		return o.notify(ctx, chatID, msgRenameUsage, nil)
	}

	target, err := o.sessions.GetActiveSession(ctx, chatID)
	if err == nil && target == nil {
		target, err = o.findSession(ctx, chatID)
	}
	if err != nil {
		o.fail(ctx, chatID, "", "rename", err, false)
		return nil
	}
	if target == nil {
		return o.notify(ctx, chatID, msgNoActiveSession, nil)
	}

	renamed, err := o.sessions.RenameSession(ctx, target.ID, args)
	if err != nil {
		o.fail(ctx, chatID, target.ID, "rename", err, false)
		return nil
	}
	return o.notify(ctx, chatID, fmt.Sprintf(msgRenamed, renamed.IntelligibleName), nil)
}

// cmdCancel only runs when nothing was cancelled on the submit path
func (o *Orchestrator) cmdCancel(ctx context.Context, chatID int64, args string) error {
	if o.CancelChat(chatID) > 0 {
		return o.notify(ctx, chatID, msgCancelling, nil)
	}
	return o.notify(ctx, chatID, msgNothingToCancel, nil)
}

func (o *Orchestrator) cmdHelp(ctx context.Context, chatID int64, args string) error {
	return o.notify(ctx, chatID, msgHelp, nil)
}

// findSession returns the chat's most recent session in one of states, or any state when
// none are given
func (o *Orchestrator) findSession(ctx context.Context, chatID int64, states ...models.SessionState) (*models.Session, error) {
	all, err := o.sessions.ListSessions(ctx, 0)
	if err != nil {
		return nil, err
	}
	for _, s := range all {
		if s.ChatID != chatID {
			continue
		}
		if len(states) == 0 {
			return s, nil
		}
		for _, state := range states {
			if s.State == state {
				return s, nil
			}
		}
	}
	return nil, nil
}
