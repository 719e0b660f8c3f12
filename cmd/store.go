package cmd

import (
	"context"
	"log"

	"github.com/killallgit/voxlog/internal/database"
	"github.com/killallgit/voxlog/internal/services/sessions"
	"github.com/killallgit/voxlog/pkg/config"
)

// store is the session repository stack built from configuration
type store struct {
	files *sessions.FileStorage
	db    *database.DB
	index *sessions.IndexedRepository
}

// openStore opens the session directory and, when a database path is set, the sqlite index.
// migrate creates the index table if missing.
func openStore(cfg *config.Config, migrate bool) (*store, error) {
	files, err := sessions.NewFileStorage(cfg.Storage.SessionsDir)
	if err != nil {
		return nil, err
	}

	st := &store{files: files}
	if cfg.Database.Path == "" {
		return st, nil
	}

	db, err := database.Initialize(cfg.Database.Path, cfg.Database.Verbose)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := db.MigrateSessionIndex(); err != nil {
			db.Close()
			return nil, err
		}
	}

	st.db = db
	st.index = sessions.NewIndexedRepository(files, db.DB)
	return st, nil
}

// repository returns the indexed repository when available, the bare file storage otherwise
func (s *store) repository() sessions.Repository {
	if s.index != nil {
		return s.index
	}
	return s.files
}

// newSessionService seeds the name generator from disk and builds the session service
func (s *store) newSessionService(ctx context.Context) (sessions.Service, error) {
	repo := s.repository()
	names := sessions.NewNameGenerator(nil)
	if err := names.SeedFrom(ctx, repo); err != nil {
		return nil, err
	}
	return sessions.NewService(repo, names), nil
}

// reconcile rebuilds the index from the session directory so records saved while
// the index was unavailable become visible to bounded listings again
func (s *store) reconcile(ctx context.Context) {
	if s.index == nil {
		return
	}
	n, err := s.index.Reindex(ctx)
	if err != nil {
		log.Printf("[WARN] Failed to rebuild session index: %v", err)
		return
	}
	log.Printf("[DEBUG] Session index rebuilt with %d sessions", n)
}

func (s *store) Close() {
	if s.db == nil {
		return
	}
	if err := s.db.Close(); err != nil {
		log.Printf("[WARN] Failed to close session index: %v", err)
	}
}
