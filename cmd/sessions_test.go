package cmd

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/killallgit/voxlog/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSessionTable(t *testing.T) {
	var empty bytes.Buffer
	renderSessionTable(&empty, nil)
	assert.Contains(t, empty.String(), "No sessions recorded yet.")

	created := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	s := models.NewSession(models.SessionIDFor(created), 1, created)
	s.IntelligibleName = "amber-harbor"
	s.AudioEntries = []models.AudioEntry{{Sequence: 1}, {Sequence: 2}}

	var buf bytes.Buffer
	renderSessionTable(&buf, []*models.Session{s})
	out := buf.String()
	assert.Contains(t, out, "Sessions (1)")
	assert.Contains(t, out, s.ID)
	assert.Contains(t, out, "amber-harbor")
	assert.Contains(t, out, "COLLECTING")
}

func TestRenderSessionDetail(t *testing.T) {
	created := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	duration := 12.5
	s := models.NewSession(models.SessionIDFor(created), 42, created)
	s.State = models.SessionStateTranscribed
	s.AudioEntries = []models.AudioEntry{
		{Sequence: 1, LocalFilename: "001.ogg", FileSizeBytes: 2048, DurationSeconds: &duration, TranscriptionStatus: models.TranscriptionSuccess, ReceivedAt: created},
		{Sequence: 2, LocalFilename: "002.ogg", FileSizeBytes: 1024, TranscriptionStatus: models.TranscriptionFailed, ReceivedAt: created},
	}
	s.Errors = []models.ErrorEntry{{Timestamp: created, Operation: "transcribe", Target: "002.ogg", Message: "whisper exited"}}

	var buf bytes.Buffer
	renderSessionDetail(&buf, s)
	out := buf.String()
	assert.Contains(t, out, "Clips:     2 (1 transcribed, 1 failed, 0 pending)")
	assert.Contains(t, out, "001.ogg")
	assert.Contains(t, out, "transcribe 002.ogg: whisper exited")
	assert.Contains(t, out, "Chat:      42")
}

func TestSessionsListFromStore(t *testing.T) {
	st := newTestStore(t, true)
	seedSessions(t, st, 3)

	list, err := st.repository().List(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, list, 2)

	var buf bytes.Buffer
	renderSessionTable(&buf, list)
	assert.Contains(t, buf.String(), "2026-06-01_11-00-00")
	assert.NotContains(t, buf.String(), "2026-06-01_09-00-00")
}

func TestTruncateName(t *testing.T) {
	assert.Equal(t, "-", truncateName("", 10))
	assert.Equal(t, "short", truncateName("short", 10))
	assert.Equal(t, "abcd…", truncateName("abcdefgh", 5))
}
