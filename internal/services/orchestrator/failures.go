package orchestrator

import (
	"context"
	"fmt"
	"log"

	"github.com/killallgit/voxlog/internal/models"
	apperrors "github.com/killallgit/voxlog/pkg/errors"
)

// fail logs err under a fresh correlation id, records it on the session when there is
// one and tells the user. With resolve set, a session left in a transient state is moved
// to ERROR so nothing stays half-done.
func (o *Orchestrator) fail(ctx context.Context, chatID int64, sessionID, operation string, err error, resolve bool) string {
	cid := o.newCorrelationID()
	log.Printf("[ERROR] [%s] %s failed (chat %d, session %s, code %s): %v",
		cid, operation, chatID, orNone(sessionID), apperrors.GetCode(err), err)

	if sessionID != "" {
		o.recordFailure(ctx, cid, sessionID, operation, err, resolve)
	}

	o.notify(ctx, chatID, humanize(err, cid), nil)
	return cid
}

func (o *Orchestrator) recordFailure(ctx context.Context, cid, sessionID, operation string, err error, resolve bool) {
	// Stale-client races and unknown ids have nothing to record
	if apperrors.Is(err, apperrors.ErrCodeNotFound) || apperrors.Is(err, apperrors.ErrCodeInvalidState) {
		return
	}

	entry := models.ErrorEntry{
		Operation:   operation,
		Target:      sessionID,
		Message:     fmt.Sprintf("%v (ref %s)", err, cid),
		Recoverable: isRecoverable(err),
	}

	if resolve {
		session, getErr := o.sessions.FailSession(ctx, sessionID, entry)
		if getErr != nil {
			log.Printf("[ERROR] [%s] Could not resolve session %s to ERROR: %v", cid, sessionID, getErr)
			return
		}
		log.Printf("[WARN] [%s] Session %s is now %s", cid, sessionID, session.State)
		return
	}

	if _, addErr := o.sessions.AddError(ctx, sessionID, entry); addErr != nil {
		log.Printf("[ERROR] [%s] Could not record error on session %s: %v", cid, sessionID, addErr)
	}
}

// isRecoverable reports whether retrying the same action may succeed
func isRecoverable(err error) bool {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeStorage, apperrors.ErrCodeProcessing, apperrors.ErrCodeTranscription,
		apperrors.ErrCodeExternalService:
		return true
	}
	return false
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
