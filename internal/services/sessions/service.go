package sessions

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/killallgit/voxlog/internal/models"
	apperrors "github.com/killallgit/voxlog/pkg/errors"
)

type manager struct {
	repo  Repository
	names *NameGenerator
	now   func() time.Time

	createMu sync.Mutex
	locks    sync.Map
}

// Option configures the session manager
type Option func(*manager)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(m *manager) {
		m.now = now
	}
}

// NewService creates the session manager on top of repo
func NewService(repo Repository, names *NameGenerator, opts ...Option) Service {
	if names == nil {
		names = NewNameGenerator(nil)
	}
	m := &manager{
		repo:  repo,
		names: names,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// lock serializes mutations of one session id
func (m *manager) lock(id string) func() {
	mu, _ := m.locks.LoadOrStore(id, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	return mu.(*sync.Mutex).Unlock
}

func (m *manager) load(ctx context.Context, id string) (*models.Session, error) {
	session, err := m.repo.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apperrors.NotFound("session", id)
	}
	return session, nil
}

// mutate applies fn to a fresh copy of the record and persists it in one write.
// When fn fails nothing is written.
func (m *manager) mutate(ctx context.Context, id string, fn func(s *models.Session) error) (*models.Session, error) {
	unlock := m.lock(id)
	defer unlock()

	session, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := fn(session); err != nil {
		return nil, err
	}

	session.Touch(m.now())
	if err := m.repo.Save(ctx, session); err != nil {
		return nil, err
	}

	return session.Clone(), nil
}

// moveTo applies one edge of the state graph
func moveTo(s *models.Session, next models.SessionState) error {
	if !models.CanTransition(s.State, next) {
		return apperrors.InvalidState(s.ID, string(s.State), string(next))
	}
	if next == models.SessionStateInterrupted {
		s.InterruptedFrom = s.State
	} else if s.State == models.SessionStateInterrupted {
		s.InterruptedFrom = ""
	}
	s.State = next
	return nil
}

func (m *manager) CreateSession(ctx context.Context, chatID int64) (*models.Session, error) {
	m.createMu.Lock()
	defer m.createMu.Unlock()

	existing, err := m.chatSessions(ctx, chatID)
	if err != nil {
		return nil, err
	}

	var (
		previous *models.Session
		closed   bool
	)
	for _, s := range existing {
		if !s.State.IsActive() {
			continue
		}
		if previous == nil {
			previous = s
		}
		if s.State != models.SessionStateCollecting {
			continue
		}
		if err := m.closeCollecting(ctx, s); err != nil {
			return nil, apperrors.Conflict("session", fmt.Sprintf("could not close active session %s", s.ID), err)
		}
		closed = true
	}
	if previous != nil && !closed {
		m.noteSuperseded(ctx, previous)
	}

	now := m.now()
	id, err := m.uniqueID(ctx, now)
	if err != nil {
		return nil, err
	}

	session := models.NewSession(id, chatID, now)
	session.IntelligibleName = m.names.Generate()
	session.Touch(now)

	if err := m.repo.Save(ctx, session); err != nil {
		m.names.Release(session.IntelligibleName)
		return nil, err
	}

	log.Printf("[INFO] Created session %s (%s) for chat %d", session.ID, session.IntelligibleName, chatID)
	return session.Clone(), nil
}

// chatSessions returns every session of chatID, newest first
func (m *manager) chatSessions(ctx context.Context, chatID int64) ([]*models.Session, error) {
	all, err := m.repo.List(ctx, 0)
	if err != nil {
		return nil, err
	}
	var result []*models.Session
	for _, s := range all {
		if s.ChatID == chatID {
			result = append(result, s)
		}
	}
	return result, nil
}

// noteSuperseded records that an active session past COLLECTING could not be
// auto-finalized. Failures are logged only.
func (m *manager) noteSuperseded(ctx context.Context, previous *models.Session) {
	log.Printf("[WARN] Session %s is %s, not auto-finalizing it", previous.ID, previous.State)
	_, err := m.AddError(ctx, previous.ID, models.ErrorEntry{
		Operation:   "auto_finalize",
		Target:      previous.ID,
		Message:     fmt.Sprintf("left %s when a new session was started", previous.State),
		Recoverable: true,
	})
	if err != nil {
		log.Printf("[WARN] Could not record auto-finalize note on session %s: %v", previous.ID, err)
	}
}

// closeCollecting finalizes a collecting session before a new one starts. A session
// that cannot be finalized (no audio) is recorded as abandoned instead. Only storage
// failures are returned.
func (m *manager) closeCollecting(ctx context.Context, previous *models.Session) error {
	_, err := m.FinalizeSession(ctx, previous.ID)
	if err == nil {
		log.Printf("[INFO] Auto-finalized session %s", previous.ID)
		return nil
	}
	if !apperrors.Is(err, apperrors.ErrCodeInvalidState) {
		return err
	}

	log.Printf("[WARN] Auto-finalize of session %s failed: %v", previous.ID, err)
	_, err = m.FailSession(ctx, previous.ID, models.ErrorEntry{
		Operation:   "auto_finalize",
		Target:      previous.ID,
		Message:     fmt.Sprintf("superseded by a new session before finalizing: %v", err),
		Recoverable: true,
	})
	return err
}

func (m *manager) uniqueID(ctx context.Context, now time.Time) (string, error) {
	base := models.SessionIDFor(now)
	id := base
	for n := 2; ; n++ {
		exists, err := m.repo.Exists(ctx, id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
		id = fmt.Sprintf("%s_%d", base, n)
	}
}

// GetActiveSession returns the chat's COLLECTING session, or else its newest active one
func (m *manager) GetActiveSession(ctx context.Context, chatID int64) (*models.Session, error) {
	sessions, err := m.chatSessions(ctx, chatID)
	if err != nil {
		return nil, err
	}

	var newest *models.Session
	for _, session := range sessions {
		if session.State == models.SessionStateCollecting {
			return session, nil
		}
		if newest == nil && session.State.IsActive() {
			newest = session
		}
	}
	return newest, nil
}

func (m *manager) GetSession(ctx context.Context, id string) (*models.Session, error) {
	return m.load(ctx, id)
}

func (m *manager) ListSessions(ctx context.Context, limit int) ([]*models.Session, error) {
	return m.repo.List(ctx, limit)
}

func (m *manager) AddAudio(ctx context.Context, id string, entry models.AudioEntry) (*models.Session, error) {
	return m.mutate(ctx, id, func(s *models.Session) error {
		if s.State != models.SessionStateCollecting {
			return apperrors.InvalidState(s.ID, string(s.State), string(models.SessionStateCollecting)).
				WithDetail("operation", "add_audio")
		}

		entry.Sequence = s.NextSequence()
		entry.LocalFilename = models.AudioFilename(entry.Sequence)
		entry.TranscriptionStatus = models.TranscriptionPending
		entry.TranscriptFilename = ""
		if entry.ReceivedAt.IsZero() {
			entry.ReceivedAt = m.now()
		}

		s.AudioEntries = append(s.AudioEntries, entry)
		return nil
	})
}

func (m *manager) FinalizeSession(ctx context.Context, id string) (*models.Session, error) {
	session, err := m.mutate(ctx, id, func(s *models.Session) error {
		if s.State == models.SessionStateInterrupted {
			if err := moveTo(s, models.SessionStateCollecting); err != nil {
				return err
			}
		}
		if s.State != models.SessionStateCollecting {
			return apperrors.InvalidState(s.ID, string(s.State), string(models.SessionStateTranscribing))
		}
		if len(s.AudioEntries) == 0 {
			return apperrors.InvalidState(s.ID, string(s.State), string(models.SessionStateTranscribing)).
				WithDetail("reason", "no audio")
		}
		return moveTo(s, models.SessionStateTranscribing)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[INFO] Finalized session %s with %d clip(s)", session.ID, len(session.AudioEntries))
	return session, nil
}

func (m *manager) TransitionState(ctx context.Context, id string, newState models.SessionState) (*models.Session, error) {
	if !newState.IsValid() {
		return nil, apperrors.ValidationError("state", fmt.Sprintf("unknown state %q", newState))
	}

	return m.mutate(ctx, id, func(s *models.Session) error {
		// Entering these states has preconditions owned by dedicated operations
		switch newState {
		case models.SessionStateTranscribing, models.SessionStateCollecting:
			return apperrors.InvalidState(s.ID, string(s.State), string(newState)).
				WithDetail("reason", "use finalize or resume")
		}
		return moveTo(s, newState)
	})
}

func (m *manager) UpdateTranscriptionStatus(ctx context.Context, id string, sequence int, status models.TranscriptionStatus, transcriptFilename string) (*models.Session, error) {
	switch status {
	case models.TranscriptionPending, models.TranscriptionSuccess, models.TranscriptionFailed:
	default:
		return nil, apperrors.ValidationError("status", fmt.Sprintf("unknown transcription status %q", status))
	}

	return m.mutate(ctx, id, func(s *models.Session) error {
		entry, ok := s.FindAudio(sequence)
		if !ok {
			return apperrors.NotFound("audio entry", sequence).WithDetail("session_id", s.ID)
		}

		entry.TranscriptionStatus = status
		if status == models.TranscriptionSuccess {
			if transcriptFilename == "" {
				transcriptFilename = models.TranscriptFilename(sequence)
			}
			entry.TranscriptFilename = transcriptFilename
		} else {
			entry.TranscriptFilename = ""
		}
		return nil
	})
}

func (m *manager) AddError(ctx context.Context, id string, entry models.ErrorEntry) (*models.Session, error) {
	return m.mutate(ctx, id, func(s *models.Session) error {
		m.appendError(s, entry)
		return nil
	})
}

func (m *manager) appendError(s *models.Session, entry models.ErrorEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = m.now()
	}
	s.Errors = append(s.Errors, entry)
}

// ResumeSession moves an INTERRUPTED session back to COLLECTING. It is refused while
// another session of the same chat is collecting.
func (m *manager) ResumeSession(ctx context.Context, id string) (*models.Session, error) {
	m.createMu.Lock()
	defer m.createMu.Unlock()

	target, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	others, err := m.chatSessions(ctx, target.ChatID)
	if err != nil {
		return nil, err
	}
	for _, other := range others {
		if other.ID != id && other.State == models.SessionStateCollecting {
			return nil, apperrors.Conflict("session", fmt.Sprintf("session %s is still collecting", other.ID), nil).
				WithDetail("collecting_session_id", other.ID)
		}
	}

	session, err := m.mutate(ctx, id, func(s *models.Session) error {
		if s.State != models.SessionStateInterrupted {
			return apperrors.InvalidState(s.ID, string(s.State), string(models.SessionStateCollecting))
		}
		return moveTo(s, models.SessionStateCollecting)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[INFO] Resumed session %s", id)
	return session, nil
}

func (m *manager) DiscardSession(ctx context.Context, id string) (*models.Session, error) {
	return m.mutate(ctx, id, func(s *models.Session) error {
		if s.State != models.SessionStateInterrupted {
			return apperrors.InvalidState(s.ID, string(s.State), string(models.SessionStateError)).
				WithDetail("reason", "only interrupted sessions can be discarded")
		}
		m.appendError(s, models.ErrorEntry{
			Operation:   "discard",
			Target:      s.ID,
			Message:     "discarded by user after interruption",
			Recoverable: false,
		})
		return moveTo(s, models.SessionStateError)
	})
}

// FailSession records entry and moves the session to ERROR when the graph allows it.
// From states without an ERROR edge only the entry is recorded.
func (m *manager) FailSession(ctx context.Context, id string, entry models.ErrorEntry) (*models.Session, error) {
	return m.mutate(ctx, id, func(s *models.Session) error {
		m.appendError(s, entry)
		if models.CanTransition(s.State, models.SessionStateError) {
			return moveTo(s, models.SessionStateError)
		}
		return nil
	})
}

func (m *manager) StartProcessing(ctx context.Context, id string, provider string) (*models.Session, error) {
	return m.mutate(ctx, id, func(s *models.Session) error {
		if err := moveTo(s, models.SessionStateProcessing); err != nil {
			return err
		}
		s.Provider = provider
		return nil
	})
}

func (m *manager) CompleteProcessing(ctx context.Context, id string, outputDir string) (*models.Session, error) {
	return m.mutate(ctx, id, func(s *models.Session) error {
		if err := moveTo(s, models.SessionStateProcessed); err != nil {
			return err
		}
		s.ProcessingOutput = outputDir
		return nil
	})
}

func (m *manager) RenameSession(ctx context.Context, id string, name string) (*models.Session, error) {
	current, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if normalizeName(name) == current.IntelligibleName && current.IntelligibleName != "" {
		return current, nil
	}

	reserved, err := m.names.Reserve(name)
	if err != nil {
		return nil, err
	}

	var previous string
	session, err := m.mutate(ctx, id, func(s *models.Session) error {
		previous = s.IntelligibleName
		s.IntelligibleName = reserved
		return nil
	})
	if err != nil {
		m.names.Release(reserved)
		return nil, err
	}

	if previous != "" && previous != reserved {
		m.names.Release(previous)
	}
	return session, nil
}

// DetectOrphanedSessions moves in-flight sessions whose last checkpoint is older than
// threshold to INTERRUPTED and returns them
func (m *manager) DetectOrphanedSessions(ctx context.Context, threshold time.Duration) ([]*models.Session, error) {
	all, err := m.repo.List(ctx, 0)
	if err != nil {
		return nil, err
	}

	now := m.now()
	var (
		orphans []*models.Session
		errs    []error
	)
	for _, candidate := range all {
		if !candidate.State.IsInFlight() {
			continue
		}
		idle := now.Sub(candidate.LastActivity())
		if idle <= threshold {
			continue
		}

		session, err := m.mutate(ctx, candidate.ID, func(s *models.Session) error {
			// Re-check under the lock; the session may have moved since listing
			if !s.State.IsInFlight() {
				return errSkip
			}
			from := s.State
			m.appendError(s, models.ErrorEntry{
				Operation:   "recovery",
				Target:      string(from),
				Message:     fmt.Sprintf("no checkpoint for %s while %s", idle.Round(time.Second), from),
				Recoverable: true,
			})
			return moveTo(s, models.SessionStateInterrupted)
		})
		if errors.Is(err, errSkip) {
			continue
		}
		if err != nil {
			log.Printf("[ERROR] Failed to mark session %s interrupted: %v", candidate.ID, err)
			errs = append(errs, err)
			continue
		}

		log.Printf("[WARN] Session %s interrupted while %s (idle %s)", session.ID, session.InterruptedFrom, idle.Round(time.Second))
		orphans = append(orphans, session)
	}

	return orphans, errors.Join(errs...)
}

var errSkip = errors.New("skip")
