package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/killallgit/voxlog/internal/models"
	"github.com/killallgit/voxlog/internal/services/processor"
	"github.com/killallgit/voxlog/internal/services/sessions"
	"github.com/killallgit/voxlog/internal/services/transcription"
)

// Config holds orchestrator settings
type Config struct {
	TempDir            string
	MaxAudioSize       int64
	StalenessThreshold time.Duration
}

// Dependencies are the collaborators the orchestrator drives
type Dependencies struct {
	Sessions    sessions.Service
	Layout      sessions.Layout
	Transcriber transcription.Service
	Processor   processor.Service
	Messenger   Messenger
	Fetcher     AudioFetcher
	Prober      DurationProber
}

type handlerFunc func(ctx context.Context, event models.Event) error

type commandFunc func(ctx context.Context, chatID int64, args string) error

type callbackFunc func(ctx context.Context, chatID int64, sessionID string) error

type run struct {
	chatID int64
	cancel context.CancelFunc
}

// Orchestrator turns inbound events into session workflows and outbound notifications
type Orchestrator struct {
	sessions    sessions.Service
	layout      sessions.Layout
	transcriber transcription.Service
	processor   processor.Service
	messenger   Messenger
	fetcher     AudioFetcher
	prober      DurationProber
	cfg         Config

	handlers  map[models.EventKind]handlerFunc
	commands  map[string]commandFunc
	callbacks map[string]callbackFunc

	mu      sync.Mutex
	running map[string]run

	newCorrelationID func() string
}

// New builds an orchestrator with its fixed dispatch tables
func New(deps Dependencies, cfg Config) *Orchestrator {
	o := &Orchestrator{
		sessions:    deps.Sessions,
		layout:      deps.Layout,
		transcriber: deps.Transcriber,
		processor:   deps.Processor,
		messenger:   deps.Messenger,
		fetcher:     deps.Fetcher,
		prober:      deps.Prober,
		cfg:         cfg,
		running:     make(map[string]run),
		newCorrelationID: func() string {
			return uuid.NewString()[:8]
		},
	}

	o.handlers = map[models.EventKind]handlerFunc{
		models.EventKindCommand:  o.handleCommand,
		models.EventKindVoice:    o.handleVoice,
		models.EventKindCallback: o.handleCallback,
	}

	o.commands = map[string]commandFunc{
		"start":      o.cmdStart,
		"done":       o.cmdDone,
		"transcribe": o.cmdTranscribe,
		"process":    o.cmdProcess,
		"status":     o.cmdStatus,
		"list":       o.cmdList,
		"rename":     o.cmdRename,
		"cancel":     o.cmdCancel,
		"help":       o.cmdHelp,
	}

	o.callbacks = map[string]callbackFunc{
		actionProcess:  o.cbProcess,
		actionCancel:   o.cbCancel,
		actionResume:   o.cbResume,
		actionFinalize: o.cbFinalize,
		actionDiscard:  o.cbDiscard,
		actionOutputs:  o.cbOutputs,
	}

	return o
}

// Handle processes one inbound event to completion
func (o *Orchestrator) Handle(ctx context.Context, event models.Event) error {
	handler, ok := o.handlers[event.Kind]
	if !ok {
		return fmt.Errorf("unsupported event kind %q", event.Kind)
	}
	return handler(ctx, event)
}

// HandleImmediate serves events that must not wait behind a running workflow.
// It reports whether the event was consumed.
func (o *Orchestrator) HandleImmediate(ctx context.Context, event models.Event) bool {
	switch {
	case event.Kind == models.EventKindCommand && event.Command != nil && normalizeCommand(event.Command.Name) == "cancel":
		if o.CancelChat(event.ChatID) == 0 {
			return false
		}
		o.notify(ctx, event.ChatID, msgCancelling, nil)
		return true

	case event.Kind == models.EventKindCallback && event.Callback != nil && event.Callback.Action == actionCancel:
		if !o.Cancel(event.Callback.SessionID) {
			return false
		}
		o.ack(ctx, event.Callback.ID, "Cancelling…")
		o.notify(ctx, event.ChatID, msgCancelling, nil)
		return true
	}
	return false
}

// Cancel signals the running transcription for sessionID
func (o *Orchestrator) Cancel(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, ok := o.running[sessionID]
	if !ok {
		return false
	}
	r.cancel()
	log.Printf("[INFO] Cancellation requested for session %s", sessionID)
	return true
}

// CancelChat signals every running transcription of a chat and returns how many
func (o *Orchestrator) CancelChat(chatID int64) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := 0
	for id, r := range o.running {
		if r.chatID == chatID {
			r.cancel()
			log.Printf("[INFO] Cancellation requested for session %s", id)
			n++
		}
	}
	return n
}

// IsRunning reports whether a transcription is in progress for sessionID
func (o *Orchestrator) IsRunning(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.running[sessionID]
	return ok
}

func (o *Orchestrator) register(sessionID string, chatID int64, cancel context.CancelFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.running[sessionID] = run{chatID: chatID, cancel: cancel}
}

func (o *Orchestrator) unregister(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.running, sessionID)
}

func (o *Orchestrator) handleCommand(ctx context.Context, event models.Event) error {
	if event.Command == nil {
		return fmt.Errorf("command event without payload")
	}

	name := normalizeCommand(event.Command.Name)
	cmd, ok := o.commands[name]
	if !ok {
		return o.notify(ctx, event.ChatID, fmt.Sprintf(msgUnknownCommand, name), nil)
	}

	log.Printf("[DEBUG] Command /%s from chat %d", name, event.ChatID)
	return cmd(ctx, event.ChatID, strings.TrimSpace(event.Command.Args))
}

func (o *Orchestrator) handleCallback(ctx context.Context, event models.Event) error {
	cb := event.Callback
	if cb == nil {
		return fmt.Errorf("callback event without payload")
	}

	handler, ok := o.callbacks[cb.Action]
	if !ok {
		o.ack(ctx, cb.ID, "Unknown action")
		return nil
	}

	o.ack(ctx, cb.ID, "")
	log.Printf("[DEBUG] Callback %s for session %s from chat %d", cb.Action, cb.SessionID, event.ChatID)
	return handler(ctx, event.ChatID, cb.SessionID)
}

// notify sends a message; delivery failures are logged and returned
func (o *Orchestrator) notify(ctx context.Context, chatID int64, text string, opts *models.NotifyOptions) error {
	if err := o.messenger.SendNotification(ctx, chatID, text, opts); err != nil {
		log.Printf("[WARN] Failed to notify chat %d: %v", chatID, err)
		return err
	}
	return nil
}

func (o *Orchestrator) ack(ctx context.Context, callbackID, text string) {
	if callbackID == "" {
		return
	}
	if err := o.messenger.AcknowledgeCallback(ctx, callbackID, text); err != nil {
		log.Printf("[DEBUG] Failed to acknowledge callback %s: %v", callbackID, err)
	}
}

func normalizeCommand(name string) string {
	name = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "/")
	// Group chats address commands as /cmd@botname
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return name
}
