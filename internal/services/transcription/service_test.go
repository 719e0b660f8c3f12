package transcription

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/killallgit/voxlog/internal/models"
	"github.com/killallgit/voxlog/internal/services/sessions"
	apperrors "github.com/killallgit/voxlog/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend answers per audio filename
type fakeBackend struct {
	mu      sync.Mutex
	ready   bool
	results map[string]*Result
	errs    map[string]error
	calls   []string
	onCall  func(name string)
}

func (f *fakeBackend) IsReady() bool { return f.ready }

func (f *fakeBackend) Transcribe(ctx context.Context, audioPath string) (*Result, error) {
	name := filepath.Base(audioPath)

	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()

	if f.onCall != nil {
		f.onCall(name)
	}
	if err, ok := f.errs[name]; ok {
		return nil, err
	}
	if res, ok := f.results[name]; ok {
		return res, nil
	}
	return &Result{Success: true, Text: "text of " + name}, nil
}

type fixture struct {
	svc     sessions.Service
	storage *sessions.FileStorage
	session *models.Session
}

func newFixture(t *testing.T, clips int) *fixture {
	t.Helper()
	ctx := context.Background()

	storage, err := sessions.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	svc := sessions.NewService(storage, nil)

	session, err := svc.CreateSession(ctx, 1)
	require.NoError(t, err)
	for i := 0; i < clips; i++ {
		session, err = svc.AddAudio(ctx, session.ID, models.AudioEntry{FileSizeBytes: 10})
		require.NoError(t, err)
	}
	if clips > 0 {
		session, err = svc.FinalizeSession(ctx, session.ID)
		require.NoError(t, err)
	}

	return &fixture{svc: svc, storage: storage, session: session}
}

func TestTranscribeSession_AllSucceed(t *testing.T) {
	f := newFixture(t, 3)
	backend := &fakeBackend{ready: true}
	gateway := NewService(f.svc, f.storage, backend)

	var progress []Progress
	summary, err := gateway.TranscribeSession(context.Background(), f.session.ID, func(p Progress) {
		progress = append(progress, p)
	})
	require.NoError(t, err)

	assert.Equal(t, &Summary{SessionID: f.session.ID, Total: 3, Succeeded: 3}, summary)
	assert.Equal(t, []string{"001.ogg", "002.ogg", "003.ogg"}, backend.calls)
	require.Len(t, progress, 3)
	assert.Equal(t, Progress{Done: 3, Total: 3, Sequence: 3, Success: true}, progress[2])

	session, err := f.svc.GetSession(context.Background(), f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateTranscribed, session.State)
	for _, entry := range session.AudioEntries {
		assert.Equal(t, models.TranscriptionSuccess, entry.TranscriptionStatus)
		data, err := os.ReadFile(f.storage.TranscriptPath(session.ID, entry.TranscriptFilename))
		require.NoError(t, err)
		assert.Equal(t, "text of "+entry.LocalFilename, string(data))
	}
}

func TestTranscribeSession_PartialFailure(t *testing.T) {
	f := newFixture(t, 3)
	backend := &fakeBackend{
		ready:   true,
		results: map[string]*Result{"002.ogg": {Success: false, Error: "garbled audio"}},
		errs:    map[string]error{"003.ogg": errors.New("backend crashed")},
	}
	gateway := NewService(f.svc, f.storage, backend)

	summary, err := gateway.TranscribeSession(context.Background(), f.session.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 2, summary.Failed)
	assert.False(t, summary.Cancelled)

	session, err := f.svc.GetSession(context.Background(), f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateTranscribed, session.State)

	ok, failed, pending := session.TranscriptionCounts()
	assert.Equal(t, 1, ok)
	assert.Equal(t, 2, failed)
	assert.Equal(t, 0, pending)

	require.Len(t, session.Errors, 2)
	assert.Equal(t, "002.ogg", session.Errors[0].Target)
	assert.Equal(t, "garbled audio", session.Errors[0].Message)
	assert.False(t, session.Errors[0].Recoverable)
	assert.Equal(t, "backend crashed", session.Errors[1].Message)
}

func TestTranscribeSession_AllFailStillTranscribed(t *testing.T) {
	f := newFixture(t, 2)
	backend := &fakeBackend{
		ready: true,
		errs:  map[string]error{"001.ogg": errors.New("x"), "002.ogg": errors.New("y")},
	}
	gateway := NewService(f.svc, f.storage, backend)

	summary, err := gateway.TranscribeSession(context.Background(), f.session.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Failed)

	session, err := f.svc.GetSession(context.Background(), f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateTranscribed, session.State)
}

func TestTranscribeSession_Cancellation(t *testing.T) {
	f := newFixture(t, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := &fakeBackend{ready: true}
	backend.onCall = func(name string) {
		if name == "002.ogg" {
			cancel()
		}
	}
	gateway := NewService(f.svc, f.storage, backend)

	summary, err := gateway.TranscribeSession(ctx, f.session.ID, nil)
	require.NoError(t, err)
	assert.True(t, summary.Cancelled)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, []string{"001.ogg", "002.ogg"}, backend.calls)

	session, err := f.svc.GetSession(context.Background(), f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateTranscribing, session.State)

	// Re-running skips what already succeeded
	backend.onCall = nil
	backend.calls = nil
	summary, err = gateway.TranscribeSession(context.Background(), f.session.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 4, summary.Succeeded)
	assert.Equal(t, []string{"003.ogg", "004.ogg"}, backend.calls)

	session, err = f.svc.GetSession(context.Background(), f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateTranscribed, session.State)
}

func TestTranscribeSession_InterruptedBackendLeavesClipPending(t *testing.T) {
	f := newFixture(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := &fakeBackend{
		ready: true,
		errs:  map[string]error{"001.ogg": context.Canceled},
		onCall: func(name string) {
			cancel()
		},
	}
	gateway := NewService(f.svc, f.storage, backend)

	summary, err := gateway.TranscribeSession(ctx, f.session.ID, nil)
	require.NoError(t, err)
	assert.True(t, summary.Cancelled)

	session, err := f.svc.GetSession(context.Background(), f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TranscriptionPending, session.AudioEntries[0].TranscriptionStatus)
	assert.Empty(t, session.Errors)
}

func TestTranscribeSession_Preconditions(t *testing.T) {
	t.Run("wrong state", func(t *testing.T) {
		f := newFixture(t, 0)
		gateway := NewService(f.svc, f.storage, &fakeBackend{ready: true})

		_, err := gateway.TranscribeSession(context.Background(), f.session.ID, nil)
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidState))
	})

	t.Run("backend not ready", func(t *testing.T) {
		f := newFixture(t, 1)
		gateway := NewService(f.svc, f.storage, &fakeBackend{ready: false})

		_, err := gateway.TranscribeSession(context.Background(), f.session.ID, nil)
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeTranscription))

		session, err := f.svc.GetSession(context.Background(), f.session.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SessionStateTranscribing, session.State)
	})

	t.Run("unknown session", func(t *testing.T) {
		f := newFixture(t, 0)
		gateway := NewService(f.svc, f.storage, &fakeBackend{ready: true})

		_, err := gateway.TranscribeSession(context.Background(), "2000-01-01_00-00-00", nil)
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))
	})
}
