package sessions

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/killallgit/voxlog/internal/models"
	apperrors "github.com/killallgit/voxlog/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *FileStorage {
	t.Helper()
	storage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	return storage
}

func TestFileStorage_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	created := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	session := models.NewSession("2026-05-04_10-00-00", 7, created)
	d := 12.5
	session.AudioEntries = append(session.AudioEntries, models.AudioEntry{
		Sequence:            1,
		ReceivedAt:          created,
		LocalFilename:       "001.ogg",
		FileSizeBytes:       2048,
		DurationSeconds:     &d,
		TranscriptionStatus: models.TranscriptionPending,
	})
	session.Touch(created)

	require.NoError(t, storage.Save(ctx, session))

	for _, sub := range []string{"audio", "transcripts"} {
		info, err := os.Stat(filepath.Join(storage.SessionDir(session.ID), sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	loaded, err := storage.Load(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, session.ID, loaded.ID)
	assert.Equal(t, int64(7), loaded.ChatID)
	require.Len(t, loaded.AudioEntries, 1)
	assert.Equal(t, 12.5, *loaded.AudioEntries[0].DurationSeconds)
	assert.True(t, created.Equal(loaded.LastActivity()))

	exists, err := storage.Exists(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFileStorage_RoundTripLeavesRecordUntouched(t *testing.T) {
	created := time.Date(2026, 5, 4, 10, 0, 0, 123456789, time.UTC)
	d := 3.25

	tests := []struct {
		name  string
		build func() *models.Session
	}{
		{
			name: "fresh session",
			build: func() *models.Session {
				s := models.NewSession(models.SessionIDFor(created), 7, created)
				s.Touch(created)
				return s
			},
		},
		{
			name: "clips and errors",
			build: func() *models.Session {
				s := models.NewSession(models.SessionIDFor(created), 7, created)
				s.IntelligibleName = "amber-fjord"
				s.AudioEntries = append(s.AudioEntries, models.AudioEntry{
					Sequence:            1,
					ReceivedAt:          created.Add(time.Second),
					LocalFilename:       "001.ogg",
					FileSizeBytes:       4096,
					DurationSeconds:     &d,
					TelegramFileID:      "file-a",
					TranscriptionStatus: models.TranscriptionSuccess,
					TranscriptFilename:  "001.txt",
				})
				s.Errors = append(s.Errors, models.ErrorEntry{
					Timestamp:   created.Add(2 * time.Second),
					Operation:   "download",
					Target:      "file-b",
					Message:     "connection reset",
					Recoverable: true,
				})
				s.Touch(created.Add(3 * time.Second))
				return s
			},
		},
		{
			name: "interrupted session",
			build: func() *models.Session {
				s := models.NewSession(models.SessionIDFor(created), 7, created)
				s.State = models.SessionStateInterrupted
				s.InterruptedFrom = models.SessionStateTranscribing
				s.Touch(created)
				return s
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			storage := newTestStorage(t)
			session := tt.build()
			require.NoError(t, storage.Save(ctx, session))

			path := filepath.Join(storage.SessionDir(session.ID), "metadata.json")
			old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			require.NoError(t, os.Chtimes(path, old, old))
			before, err := os.ReadFile(path)
			require.NoError(t, err)

			loaded, err := storage.Load(ctx, session.ID)
			require.NoError(t, err)
			require.NotNil(t, loaded)
			require.NoError(t, storage.Save(ctx, loaded))

			after, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, string(before), string(after))

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.True(t, old.Equal(info.ModTime()), "record rewritten: mtime %s", info.ModTime())
		})
	}
}

func TestFileStorage_LoadMissing(t *testing.T) {
	storage := newTestStorage(t)

	session, err := storage.Load(context.Background(), "2026-01-01_00-00-00")
	assert.NoError(t, err)
	assert.Nil(t, session)

	exists, err := storage.Exists(context.Background(), "2026-01-01_00-00-00")
	assert.NoError(t, err)
	assert.False(t, exists)
}

func TestFileStorage_SaveLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	session := models.NewSession("2026-01-01_00-00-00", 1, time.Now().UTC())

	for i := 0; i < 3; i++ {
		session.State = models.SessionStateCollecting
		session.IntelligibleName = []string{"a", "b", "c"}[i]
		require.NoError(t, storage.Save(ctx, session))
	}
	// Identical content is a no-op
	require.NoError(t, storage.Save(ctx, session))

	entries, err := os.ReadDir(storage.SessionDir(session.ID))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"metadata.json", "audio", "transcripts"}, names)

	loaded, err := storage.Load(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "c", loaded.IntelligibleName)
}

func TestFileStorage_CorruptRecord(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	good := models.NewSession("2026-01-02_00-00-00", 1, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, storage.Save(ctx, good))

	badDir := storage.SessionDir("2026-01-03_00-00-00")
	require.NoError(t, os.MkdirAll(badDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(badDir, "metadata.json"), []byte("{not json"), 0644))

	_, err := storage.Load(ctx, "2026-01-03_00-00-00")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeStorage))

	list, err := storage.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, good.ID, list[0].ID)
}

func TestFileStorage_ListOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		created := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, storage.Save(ctx, models.NewSession(models.SessionIDFor(created), 1, created)))
	}
	// Stray directories without metadata are ignored
	require.NoError(t, os.MkdirAll(filepath.Join(storage.BasePath(), "scratch"), 0755))

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{name: "all", limit: 0, want: []string{"2026-02-01_15-00-00", "2026-02-01_14-00-00", "2026-02-01_13-00-00", "2026-02-01_12-00-00"}},
		{name: "limited", limit: 2, want: []string{"2026-02-01_15-00-00", "2026-02-01_14-00-00"}},
		{name: "limit larger than count", limit: 10, want: []string{"2026-02-01_15-00-00", "2026-02-01_14-00-00", "2026-02-01_13-00-00", "2026-02-01_12-00-00"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := storage.List(ctx, tt.limit)
			require.NoError(t, err)

			ids := make([]string, len(list))
			for i, s := range list {
				ids[i] = s.ID
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestFileStorage_InvalidIDs(t *testing.T) {
	storage := newTestStorage(t)

	for _, id := range []string{"", ".", "..", "../escape", "a/b"} {
		t.Run(id, func(t *testing.T) {
			_, err := storage.Load(context.Background(), id)
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidation))
		})
	}
}

func TestWriteTextFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.txt")

	require.NoError(t, WriteTextFile(path, "first"))
	require.NoError(t, WriteTextFile(path, "second"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}
