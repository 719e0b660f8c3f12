package orchestrator

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/killallgit/voxlog/internal/models"
	"github.com/killallgit/voxlog/internal/services/processor"
	"github.com/killallgit/voxlog/internal/services/sessions"
	"github.com/killallgit/voxlog/internal/services/transcription"
	"github.com/killallgit/voxlog/pkg/command"
	apperrors "github.com/killallgit/voxlog/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	chatID int64
	text   string
	opts   *models.NotifyOptions
}

type fakeMessenger struct {
	mu    sync.Mutex
	sent  []sentMessage
	files []string
	acks  []string
}

func (f *fakeMessenger) SendNotification(ctx context.Context, chatID int64, text string, opts *models.NotifyOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text, opts: opts})
	return nil
}

func (f *fakeMessenger) SendFile(ctx context.Context, chatID int64, path string, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files = append(f.files, path)
	return nil
}

func (f *fakeMessenger) AcknowledgeCallback(ctx context.Context, callbackID string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks = append(f.acks, callbackID)
	return nil
}

func (f *fakeMessenger) last() sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentMessage{}
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeMessenger) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.text
	}
	return out
}

type fakeFetcher struct {
	err error
}

func (f *fakeFetcher) FetchAudio(ctx context.Context, fileID string, dest string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	data := []byte("ogg:" + fileID)
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

type fakeBackend struct {
	onCall func(path string)
	fail   map[string]bool
}

func (f *fakeBackend) IsReady() bool { return true }

func (f *fakeBackend) Transcribe(ctx context.Context, path string) (*transcription.Result, error) {
	if f.onCall != nil {
		f.onCall(path)
	}
	if f.fail[filepath.Base(path)] {
		return &transcription.Result{Success: false, Error: "unintelligible"}, nil
	}
	return &transcription.Result{Success: true, Text: "words from " + filepath.Base(path)}, nil
}

// pipelineRunner writes one artifact into the --output directory
type pipelineRunner struct {
	args []string
}

func (p *pipelineRunner) Run(ctx context.Context, name string, args ...string) (command.Result, error) {
	p.args = args
	for i := 0; i+1 < len(args); i++ {
		if args[i] == "--output" {
			if err := os.WriteFile(filepath.Join(args[i+1], "summary.md"), []byte("# summary"), 0644); err != nil {
				return command.Result{ExitCode: 1}, err
			}
		}
	}
	return command.Result{}, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	orch      *Orchestrator
	sessions  sessions.Service
	storage   *sessions.FileStorage
	messenger *fakeMessenger
	fetcher   *fakeFetcher
	backend   *fakeBackend
	runner    *pipelineRunner
	clock     *clock
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	storage, err := sessions.NewFileStorage(t.TempDir())
	require.NoError(t, err)

	h := &harness{
		storage:   storage,
		messenger: &fakeMessenger{},
		fetcher:   &fakeFetcher{},
		backend:   &fakeBackend{},
		runner:    &pipelineRunner{},
		clock:     &clock{now: time.Date(2026, 8, 3, 7, 30, 0, 0, time.UTC)},
	}
	h.sessions = sessions.NewService(storage, sessions.NewNameGenerator(rand.New(rand.NewSource(3))), sessions.WithClock(h.clock.Now))

	h.orch = New(Dependencies{
		Sessions:    h.sessions,
		Layout:      storage,
		Transcriber: transcription.NewService(h.sessions, storage, h.backend),
		Processor:   processor.NewService(storage, processor.Config{PipelineCommand: "pipeline", DefaultProvider: "local"}, h.runner),
		Messenger:   h.messenger,
		Fetcher:     h.fetcher,
	}, Config{
		TempDir:            t.TempDir(),
		MaxAudioSize:       1 << 20,
		StalenessThreshold: time.Hour,
	})
	h.orch.newCorrelationID = func() string { return "cid00001" }
	return h
}

func voiceEvent(chatID int64, fileID string, size int64) models.Event {
	return models.Event{
		Kind:       models.EventKindVoice,
		ChatID:     chatID,
		ReceivedAt: time.Date(2026, 8, 3, 7, 30, 0, 0, time.UTC),
		Voice:      &models.VoicePayload{FileID: fileID, DurationSeconds: 5, FileSize: size},
	}
}

func commandEvent(chatID int64, name, args string) models.Event {
	return models.Event{
		Kind:    models.EventKindCommand,
		ChatID:  chatID,
		Command: &models.CommandPayload{Name: name, Args: args},
	}
}

func callbackEvent(chatID int64, action, sessionID string) models.Event {
	return models.Event{
		Kind:     models.EventKindCallback,
		ChatID:   chatID,
		Callback: &models.CallbackPayload{ID: "cb-" + action, Action: action, SessionID: sessionID},
	}
}

func buttonData(opts *models.NotifyOptions) []string {
	var data []string
	if opts == nil {
		return data
	}
	for _, row := range opts.Buttons {
		for _, b := range row {
			data = append(data, b.Data)
		}
	}
	return data
}

func TestHandle_VoiceStartsSessionAndStoresClip(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.orch.Handle(ctx, voiceEvent(5, "file-a", 100)))
	require.NoError(t, h.orch.Handle(ctx, voiceEvent(5, "file-b", 100)))

	active, err := h.sessions.GetActiveSession(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, models.SessionStateCollecting, active.State)
	require.Len(t, active.AudioEntries, 2)

	for i, entry := range active.AudioEntries {
		assert.Equal(t, i+1, entry.Sequence)
		assert.Equal(t, models.AudioFilename(i+1), entry.LocalFilename)
		assert.Equal(t, models.TranscriptionPending, entry.TranscriptionStatus)
		require.NotNil(t, entry.DurationSeconds)
		assert.Equal(t, 5.0, *entry.DurationSeconds)

		data, err := os.ReadFile(h.storage.AudioPath(active.ID, entry.LocalFilename))
		require.NoError(t, err)
		assert.Equal(t, "ogg:"+entry.TelegramFileID, string(data))
	}

	texts := h.messenger.texts()
	assert.True(t, strings.HasPrefix(texts[0], "Started session"))
	assert.Contains(t, h.messenger.last().text, "Added clip 2 to "+active.DisplayName()+" (5s)")
}

func TestHandle_VoiceTooLarge(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.orch.Handle(ctx, voiceEvent(5, "big", 2<<20)))

	assert.Contains(t, h.messenger.last().text, "too large")
	active, err := h.sessions.GetActiveSession(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestHandle_VoiceFetchFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fetcher.err = errors.New("connection reset")

	require.NoError(t, h.orch.Handle(ctx, voiceEvent(5, "file-a", 100)))

	assert.Equal(t, humanize(apperrors.ExternalServiceError("telegram", nil), "cid00001"), h.messenger.last().text)

	active, err := h.sessions.GetActiveSession(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Empty(t, active.AudioEntries)
	require.Len(t, active.Errors, 1)
	assert.Equal(t, "download", active.Errors[0].Operation)
	assert.True(t, active.Errors[0].Recoverable)
	assert.Contains(t, active.Errors[0].Message, "ref cid00001")
}

func TestHandle_DoneTranscribesAndProcesses(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.backend.fail = map[string]bool{models.AudioFilename(2): true}

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, h.orch.Handle(ctx, voiceEvent(5, id, 100)))
	}
	active, err := h.sessions.GetActiveSession(ctx, 5)
	require.NoError(t, err)
	sessionID := active.ID

	require.NoError(t, h.orch.Handle(ctx, commandEvent(5, "/done", "")))

	session, err := h.sessions.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateTranscribed, session.State)
	ok, failed, pending := session.TranscriptionCounts()
	assert.Equal(t, []int{2, 1, 0}, []int{ok, failed, pending})

	summary := h.messenger.last()
	assert.Equal(t, "Transcription of "+session.DisplayName()+" finished: 2 ok, 1 failed.", summary.text)
	assert.Equal(t, []string{models.CallbackData(actionProcess, sessionID)}, buttonData(summary.opts))

	require.NoError(t, h.orch.Handle(ctx, callbackEvent(5, actionProcess, sessionID)))

	session, err = h.sessions.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateProcessed, session.State)
	assert.Equal(t, "local", session.Provider)
	assert.Contains(t, h.runner.args, "--provider")

	require.Len(t, h.messenger.files, 1)
	assert.Equal(t, "summary.md", filepath.Base(h.messenger.files[0]))
	assert.Contains(t, h.messenger.acks, "cb-"+actionProcess)
}

func TestHandle_CommandsWithoutSession(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		command string
		args    string
		want    string
	}{
		{name: "done", command: "/done", want: msgNoActiveSession},
		{name: "status", command: "/status", want: msgNoActiveSession},
		{name: "list", command: "/list", want: msgNoSessions},
		{name: "cancel", command: "/cancel", want: msgNothingToCancel},
		{name: "rename without args", command: "/rename", want: msgRenameUsage},
		{name: "help with bot suffix", command: "/help@voxlog_bot", want: msgHelp},
		{name: "unknown", command: "/dance", want: "Unknown command /dance. Send /help for the list."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			require.NoError(t, h.orch.Handle(ctx, commandEvent(9, tt.command, tt.args)))
			assert.Equal(t, tt.want, h.messenger.last().text)
		})
	}
}

func TestHandle_DoneWithoutAudio(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.orch.Handle(ctx, commandEvent(5, "/start", "")))
	require.NoError(t, h.orch.Handle(ctx, commandEvent(5, "/done", "")))

	assert.Equal(t, msgNoAudio, h.messenger.last().text)
}

func TestHandle_StartFinalizesPreviousSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.orch.Handle(ctx, voiceEvent(5, "a", 100)))
	first, err := h.sessions.GetActiveSession(ctx, 5)
	require.NoError(t, err)

	h.clock.Advance(time.Minute)
	require.NoError(t, h.orch.Handle(ctx, commandEvent(5, "/start", "")))

	previous, err := h.sessions.GetSession(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateTranscribed, previous.State)

	active, err := h.sessions.GetActiveSession(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.NotEqual(t, first.ID, active.ID)
	assert.Equal(t, models.SessionStateCollecting, active.State)
}

func TestHandle_RenameAndStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.orch.Handle(ctx, voiceEvent(5, "a", 100)))
	require.NoError(t, h.orch.Handle(ctx, commandEvent(5, "/rename", "Morning Notes")))
	assert.Equal(t, "Session renamed to morning-notes.", h.messenger.last().text)

	require.NoError(t, h.orch.Handle(ctx, commandEvent(5, "/status", "")))
	status := h.messenger.last().text
	assert.True(t, strings.HasPrefix(status, "morning-notes ("))
	assert.Contains(t, status, "State: collecting")
	assert.Contains(t, status, "Clips: 1 (5s)")
}

func TestHandle_CancelDuringTranscription(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	for _, id := range []string{"a", "b"} {
		require.NoError(t, h.orch.Handle(ctx, voiceEvent(5, id, 100)))
	}
	active, err := h.sessions.GetActiveSession(ctx, 5)
	require.NoError(t, err)

	var consumed bool
	h.backend.onCall = func(path string) {
		if filepath.Base(path) == models.AudioFilename(1) {
			assert.True(t, h.orch.IsRunning(active.ID))
			consumed = h.orch.HandleImmediate(ctx, commandEvent(5, "/cancel", ""))
		}
	}

	require.NoError(t, h.orch.Handle(ctx, commandEvent(5, "/done", "")))
	assert.True(t, consumed)
	assert.False(t, h.orch.IsRunning(active.ID))
	assert.Equal(t, "Transcription cancelled after 1 of 2 clip(s). Send /transcribe to continue.", h.messenger.last().text)

	session, err := h.sessions.GetSession(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateTranscribing, session.State)

	// Resuming skips the finished clip
	h.backend.onCall = nil
	require.NoError(t, h.orch.Handle(ctx, commandEvent(5, "/transcribe", "")))
	session, err = h.sessions.GetSession(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateTranscribed, session.State)
}

func TestHandleImmediate_NothingRunning(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.False(t, h.orch.HandleImmediate(ctx, commandEvent(5, "/cancel", "")))
	assert.False(t, h.orch.HandleImmediate(ctx, callbackEvent(5, actionCancel, "2026-08-03_07-30-00")))
	assert.False(t, h.orch.HandleImmediate(ctx, commandEvent(5, "/status", "")))
	assert.Empty(t, h.messenger.texts())
}

func TestRecoverOrphans(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	session, err := h.sessions.CreateSession(ctx, 5)
	require.NoError(t, err)
	_, err = h.sessions.AddAudio(ctx, session.ID, models.AudioEntry{FileSizeBytes: 10})
	require.NoError(t, err)
	_, err = h.sessions.FinalizeSession(ctx, session.ID)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(h.storage.AudioPath(session.ID, models.AudioFilename(1)), []byte("ogg"), 0644))

	h.clock.Advance(2 * time.Hour)
	orphans, err := h.orch.RecoverOrphans(ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 1)

	prompt := h.messenger.last()
	assert.Equal(t, int64(5), prompt.chatID)
	assert.Contains(t, prompt.text, "interrupted while transcribing")
	assert.Equal(t, []string{
		models.CallbackData(actionResume, session.ID),
		models.CallbackData(actionFinalize, session.ID),
		models.CallbackData(actionDiscard, session.ID),
	}, buttonData(prompt.opts))

	require.NoError(t, h.orch.Handle(ctx, callbackEvent(5, actionFinalize, session.ID)))
	recovered, err := h.sessions.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateTranscribed, recovered.State)
}

func TestCallbacks_ResumeAndDiscard(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	session, err := h.sessions.CreateSession(ctx, 5)
	require.NoError(t, err)
	h.clock.Advance(2 * time.Hour)
	_, err = h.orch.RecoverOrphans(ctx)
	require.NoError(t, err)

	// A newer collecting session blocks resuming
	h.clock.Advance(time.Minute)
	other, err := h.sessions.CreateSession(ctx, 5)
	require.NoError(t, err)
	require.NoError(t, h.orch.Handle(ctx, callbackEvent(5, actionResume, session.ID)))
	assert.Equal(t, "Finish "+other.DisplayName()+" first (/done) before resuming another session.", h.messenger.last().text)

	require.NoError(t, h.orch.Handle(ctx, callbackEvent(5, actionDiscard, session.ID)))
	discarded, err := h.sessions.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateError, discarded.State)
	assert.Equal(t, "Discarded "+discarded.DisplayName()+".", h.messenger.last().text)

	// Stale button press
	require.NoError(t, h.orch.Handle(ctx, callbackEvent(5, actionDiscard, session.ID)))
	assert.Equal(t, humanized[apperrors.ErrCodeInvalidState]+" (ref cid00001)", h.messenger.last().text)
}

func TestCallbacks_ResumeBehindTranscribedSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	old, err := h.sessions.CreateSession(ctx, 5)
	require.NoError(t, err)
	_, err = h.sessions.AddAudio(ctx, old.ID, models.AudioEntry{FileSizeBytes: 10})
	require.NoError(t, err)
	h.clock.Advance(2 * time.Hour)
	_, err = h.orch.RecoverOrphans(ctx)
	require.NoError(t, err)

	newer, err := h.sessions.CreateSession(ctx, 5)
	require.NoError(t, err)
	_, err = h.sessions.AddAudio(ctx, newer.ID, models.AudioEntry{FileSizeBytes: 10})
	require.NoError(t, err)
	_, err = h.sessions.FinalizeSession(ctx, newer.ID)
	require.NoError(t, err)
	_, err = h.sessions.TransitionState(ctx, newer.ID, models.SessionStateTranscribed)
	require.NoError(t, err)

	h.clock.Advance(time.Minute)
	require.NoError(t, h.orch.Handle(ctx, callbackEvent(5, actionResume, old.ID)))

	// The next voice note lands in the resumed session
	h.clock.Advance(time.Minute)
	require.NoError(t, h.orch.Handle(ctx, voiceEvent(5, "file-b", 100)))

	resumed, err := h.sessions.GetSession(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateCollecting, resumed.State)
	assert.Len(t, resumed.AudioEntries, 2)

	all, err := h.sessions.ListSessions(ctx, 0)
	require.NoError(t, err)
	collecting := 0
	for _, s := range all {
		if s.State == models.SessionStateCollecting {
			collecting++
		}
	}
	assert.Equal(t, 1, collecting)
}

func TestCallbacks_OtherChatAndUnknownAction(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	session, err := h.sessions.CreateSession(ctx, 5)
	require.NoError(t, err)

	require.NoError(t, h.orch.Handle(ctx, callbackEvent(6, actionOutputs, session.ID)))
	assert.Equal(t, humanized[apperrors.ErrCodeNotFound], h.messenger.last().text)

	sent := len(h.messenger.texts())
	require.NoError(t, h.orch.Handle(ctx, callbackEvent(5, "bogus", session.ID)))
	assert.Len(t, h.messenger.texts(), sent)
	assert.Contains(t, h.messenger.acks, "cb-bogus")
}

func TestNormalizeCommand(t *testing.T) {
	tests := map[string]string{
		"/start":        "start",
		"DONE":          "done",
		" /help@my_bot": "help",
		"list":          "list",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeCommand(in), in)
	}
}

func TestHumanize(t *testing.T) {
	assert.Equal(t, humanized[apperrors.ErrCodeStorage]+" (ref abc)", humanize(apperrors.StorageError("write", nil), "abc"))
	assert.Equal(t, genericFailure+" (ref abc)", humanize(errors.New("boom"), "abc"))
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "45s", formatDuration(45*time.Second))
	assert.Equal(t, "2m05s", formatDuration(125*time.Second))
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "2.0 MB", formatBytes(2<<20))
}
