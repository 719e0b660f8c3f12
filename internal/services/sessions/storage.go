package sessions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/killallgit/voxlog/internal/models"
	apperrors "github.com/killallgit/voxlog/pkg/errors"
)

const (
	metadataFile   = "metadata.json"
	audioDir       = "audio"
	transcriptsDir = "transcripts"
)

// FileStorage stores each session under <basePath>/<id>/ as metadata.json plus
// audio/ and transcripts/ subfolders
type FileStorage struct {
	basePath string
}

// NewFileStorage creates the base directory and returns a file-backed repository
func NewFileStorage(basePath string) (*FileStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, apperrors.StorageError("init", fmt.Errorf("failed to create sessions directory: %w", err))
	}

	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	return &FileStorage{basePath: absPath}, nil
}

// BasePath returns the sessions root directory
func (fs *FileStorage) BasePath() string {
	return fs.basePath
}

// SessionDir returns the directory holding one session
func (fs *FileStorage) SessionDir(id string) string {
	return filepath.Join(fs.basePath, id)
}

// AudioPath returns the path of a stored clip
func (fs *FileStorage) AudioPath(id, filename string) string {
	return filepath.Join(fs.basePath, id, audioDir, filename)
}

// TranscriptPath returns the path of a stored per-clip transcript
func (fs *FileStorage) TranscriptPath(id, filename string) string {
	return filepath.Join(fs.basePath, id, transcriptsDir, filename)
}

// Save writes the record to a temp file in the session directory and renames it
// over metadata.json, so readers only ever see a complete record
func (fs *FileStorage) Save(ctx context.Context, session *models.Session) error {
	if session == nil {
		return apperrors.ValidationError("session", "cannot be nil")
	}
	if err := validateID(session.ID); err != nil {
		return err
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return apperrors.StorageError("encode", err)
	}
	data = append(data, '\n')

	dir := fs.SessionDir(session.ID)
	for _, sub := range []string{audioDir, transcriptsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return apperrors.StorageError("mkdir", err).WithDetail("session_id", session.ID)
		}
	}

	target := filepath.Join(dir, metadataFile)
	if existing, err := os.ReadFile(target); err == nil && bytes.Equal(existing, data) {
		return nil
	}

	if err := writeFileAtomic(target, data); err != nil {
		return apperrors.StorageError("write", err).WithDetail("session_id", session.ID)
	}

	return nil
}

// Load reads one record; a missing record is not an error
func (fs *FileStorage) Load(ctx context.Context, id string) (*models.Session, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(fs.SessionDir(id), metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.StorageError("read", err).WithDetail("session_id", id)
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, apperrors.StorageError("decode", err).WithDetail("session_id", id)
	}
	if session.AudioEntries == nil {
		session.AudioEntries = []models.AudioEntry{}
	}
	if session.Errors == nil {
		session.Errors = []models.ErrorEntry{}
	}

	return &session, nil
}

// Exists reports whether a record is stored under id
func (fs *FileStorage) Exists(ctx context.Context, id string) (bool, error) {
	if err := validateID(id); err != nil {
		return false, err
	}

	_, err := os.Stat(filepath.Join(fs.SessionDir(id), metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, apperrors.StorageError("stat", err).WithDetail("session_id", id)
	}
	return true, nil
}

// List scans the sessions directory and returns records newest first
func (fs *FileStorage) List(ctx context.Context, limit int) ([]*models.Session, error) {
	entries, err := os.ReadDir(fs.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.Session{}, nil
		}
		return nil, apperrors.StorageError("list", err)
	}

	result := make([]*models.Session, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		session, err := fs.Load(ctx, entry.Name())
		if err != nil {
			log.Printf("[WARN] Skipping unreadable session %s: %v", entry.Name(), err)
			continue
		}
		if session == nil {
			continue
		}
		result = append(result, session)
	}

	sortNewestFirst(result)

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// sortNewestFirst orders by created_at descending, id descending on ties
func sortNewestFirst(list []*models.Session) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID > list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

// writeFileAtomic writes data next to path and renames it into place
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	// Persist the rename itself; not every platform lets a directory be fsynced
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}

	return nil
}

// WriteTextFile atomically writes a text artifact (transcripts, consolidated files)
func WriteTextFile(path string, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperrors.StorageError("mkdir", err)
	}
	if err := writeFileAtomic(path, []byte(content)); err != nil {
		return apperrors.StorageError("write", err).WithDetail("path", path)
	}
	return nil
}

// validateID rejects ids that would escape the sessions directory
func validateID(id string) error {
	if id == "" || id == "." || id == ".." || filepath.Base(id) != id || strings.ContainsAny(id, `/\`) {
		return apperrors.ValidationError("id", fmt.Sprintf("invalid session id %q", id))
	}
	return nil
}
