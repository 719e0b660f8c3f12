package sessions

import (
	"context"
	"log"

	"github.com/killallgit/voxlog/internal/models"
	apperrors "github.com/killallgit/voxlog/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IndexedRepository mirrors listing fields into the sqlite session_index table.
// The JSON files stay authoritative; index failures are logged and listing falls
// back to a directory scan.
type IndexedRepository struct {
	store Repository
	db    *gorm.DB
}

// NewIndexedRepository wraps store with a gorm-backed index
func NewIndexedRepository(store Repository, db *gorm.DB) *IndexedRepository {
	return &IndexedRepository{store: store, db: db}
}

// Save writes the record and upserts its index row
func (r *IndexedRepository) Save(ctx context.Context, session *models.Session) error {
	if err := r.store.Save(ctx, session); err != nil {
		return err
	}

	// The record is already on disk, so the index row must not be lost to a cancelled caller
	if err := r.upsert(context.WithoutCancel(ctx), session); err != nil {
		log.Printf("[WARN] Failed to index session %s: %v", session.ID, err)
	}
	return nil
}

// Load reads straight from the underlying store
func (r *IndexedRepository) Load(ctx context.Context, id string) (*models.Session, error) {
	return r.store.Load(ctx, id)
}

// Exists reads straight from the underlying store
func (r *IndexedRepository) Exists(ctx context.Context, id string) (bool, error) {
	return r.store.Exists(ctx, id)
}

// List resolves ids through the index and loads each record from the store. An
// unbounded listing reads the store directly so records missing from the index are
// never hidden from recovery or active-session lookups.
func (r *IndexedRepository) List(ctx context.Context, limit int) ([]*models.Session, error) {
	if limit <= 0 {
		return r.store.List(ctx, 0)
	}

	var rows []models.SessionIndex
	query := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		log.Printf("[WARN] Session index unavailable, scanning directory: %v", err)
		return r.store.List(ctx, limit)
	}

	result := make([]*models.Session, 0, len(rows))
	for _, row := range rows {
		session, err := r.store.Load(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		if session == nil {
			// Stale row: the directory was removed out from under us
			r.db.WithContext(ctx).Delete(&models.SessionIndex{}, "id = ?", row.ID)
			continue
		}
		result = append(result, session)
	}

	sortNewestFirst(result)
	return result, nil
}

// ListByState returns index rows in the given state, newest first
func (r *IndexedRepository) ListByState(ctx context.Context, state models.SessionState) ([]models.SessionIndex, error) {
	var rows []models.SessionIndex
	err := r.db.WithContext(ctx).
		Where("state = ?", string(state)).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.StorageError("index query", err)
	}
	return rows, nil
}

// Reindex rebuilds the index from the session directories and returns the row count
func (r *IndexedRepository) Reindex(ctx context.Context) (int, error) {
	all, err := r.store.List(ctx, 0)
	if err != nil {
		return 0, err
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.SessionIndex{}).Error; err != nil {
			return err
		}
		for _, session := range all {
			if err := tx.Create(models.NewSessionIndex(session)).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, apperrors.StorageError("reindex", err)
	}

	log.Printf("[INFO] Reindexed %d session(s)", len(all))
	return len(all), nil
}

func (r *IndexedRepository) upsert(ctx context.Context, session *models.Session) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"chat_id", "state", "name", "audio_count", "created_at", "updated_at"}),
	}).Create(models.NewSessionIndex(session)).Error
}
