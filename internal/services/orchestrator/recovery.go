package orchestrator

import (
	"context"
	"log"

	"github.com/killallgit/voxlog/internal/models"
)

// RecoverOrphans marks sessions left mid-flight by a previous run as interrupted and
// asks the user what to do with each one
func (o *Orchestrator) RecoverOrphans(ctx context.Context) ([]*models.Session, error) {
	orphans, err := o.sessions.DetectOrphanedSessions(ctx, o.cfg.StalenessThreshold)
	if err != nil {
		log.Printf("[ERROR] Orphan detection incomplete: %v", err)
	}
	if len(orphans) == 0 {
		return orphans, err
	}

	log.Printf("[INFO] Found %d interrupted session(s)", len(orphans))
	for _, session := range orphans {
		o.notify(ctx, session.ChatID, recoveryText(session), &models.NotifyOptions{
			Buttons: recoveryButtons(session),
		})
	}
	return orphans, err
}
