package models

import (
	"fmt"
	"time"
)

// SessionState represents where a session is in its lifecycle
type SessionState string

const (
	SessionStateCollecting   SessionState = "COLLECTING"
	SessionStateTranscribing SessionState = "TRANSCRIBING"
	SessionStateTranscribed  SessionState = "TRANSCRIBED"
	SessionStateProcessing   SessionState = "PROCESSING"
	SessionStateProcessed    SessionState = "PROCESSED"
	SessionStateInterrupted  SessionState = "INTERRUPTED"
	SessionStateError        SessionState = "ERROR"
)

// TranscriptionStatus is the per-clip transcription outcome
type TranscriptionStatus string

const (
	TranscriptionPending TranscriptionStatus = "PENDING"
	TranscriptionSuccess TranscriptionStatus = "SUCCESS"
	TranscriptionFailed  TranscriptionStatus = "FAILED"
)

// SessionIDLayout is the time layout session ids are formatted with. It sorts lexically.
const SessionIDLayout = "2006-01-02_15-04-05"

// allowedTransitions is the session state graph. Anything not listed is illegal.
var allowedTransitions = map[SessionState][]SessionState{
	SessionStateCollecting: {
		SessionStateTranscribing,
		SessionStateInterrupted,
		SessionStateError,
	},
	SessionStateTranscribing: {
		SessionStateTranscribed,
		SessionStateInterrupted,
		SessionStateError,
	},
	SessionStateTranscribed: {
		SessionStateProcessing,
	},
	SessionStateProcessing: {
		SessionStateProcessed,
		SessionStateError,
		SessionStateInterrupted,
	},
	SessionStateInterrupted: {
		SessionStateCollecting,
		SessionStateError,
	},
}

// CanTransition reports whether from -> to is an edge of the session state graph
func CanTransition(from, to SessionState) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsValid reports whether s is one of the known states
func (s SessionState) IsValid() bool {
	switch s {
	case SessionStateCollecting, SessionStateTranscribing, SessionStateTranscribed,
		SessionStateProcessing, SessionStateProcessed, SessionStateInterrupted, SessionStateError:
		return true
	}
	return false
}

// IsActive reports whether a session in this state still has work ahead of it
func (s SessionState) IsActive() bool {
	switch s {
	case SessionStateCollecting, SessionStateTranscribing, SessionStateTranscribed, SessionStateProcessing:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func (s SessionState) IsTerminal() bool {
	return s == SessionStateProcessed || s == SessionStateError
}

// IsInFlight reports whether a crash in this state leaves work half done
func (s SessionState) IsInFlight() bool {
	return s == SessionStateCollecting || s == SessionStateTranscribing || s == SessionStateProcessing
}

// Session is one voice-capture-to-transcript unit of work, scoped to a chat
type Session struct {
	ID               string       `json:"id"`
	State            SessionState `json:"state"`
	ChatID           int64        `json:"chat_id"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
	IntelligibleName string       `json:"intelligible_name,omitempty"`
	InterruptedFrom  SessionState `json:"interrupted_from,omitempty"`
	AudioEntries     []AudioEntry `json:"audio_entries"`
	Errors           []ErrorEntry `json:"errors"`
	CheckpointData   *Checkpoint  `json:"checkpoint_data,omitempty"`
	Provider         string       `json:"provider,omitempty"`
	ProcessingOutput string       `json:"processing_output,omitempty"`
}

// AudioEntry is one captured voice clip
type AudioEntry struct {
	Sequence            int                 `json:"sequence"`
	ReceivedAt          time.Time           `json:"received_at"`
	LocalFilename       string              `json:"local_filename"`
	FileSizeBytes       int64               `json:"file_size_bytes"`
	DurationSeconds     *float64            `json:"duration_seconds,omitempty"`
	TelegramFileID      string              `json:"telegram_file_id,omitempty"`
	TranscriptionStatus TranscriptionStatus `json:"transcription_status"`
	TranscriptFilename  string              `json:"transcript_filename,omitempty"`
}

// ErrorEntry is an append-only diagnostic record
type ErrorEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	Operation   string    `json:"operation"`
	Target      string    `json:"target,omitempty"`
	Message     string    `json:"message"`
	Recoverable bool      `json:"recoverable"`
}

// Checkpoint is refreshed on every mutation and only read to detect staleness after a restart
type Checkpoint struct {
	LastCheckpointAt  time.Time    `json:"last_checkpoint_at"`
	LastAudioSequence int          `json:"last_audio_sequence"`
	ProcessingState   SessionState `json:"processing_state"`
}

// NewSession builds an empty collecting session
func NewSession(id string, chatID int64, now time.Time) *Session {
	return &Session{
		ID:           id,
		State:        SessionStateCollecting,
		ChatID:       chatID,
		CreatedAt:    now,
		UpdatedAt:    now,
		AudioEntries: []AudioEntry{},
		Errors:       []ErrorEntry{},
	}
}

// SessionIDFor formats a session id from its creation time
func SessionIDFor(t time.Time) string {
	return t.UTC().Format(SessionIDLayout)
}

// AudioFilename is the on-disk name of the clip with the given sequence
func AudioFilename(sequence int) string {
	return fmt.Sprintf("%03d.ogg", sequence)
}

// TranscriptFilename is the on-disk name of the transcript for the given sequence
func TranscriptFilename(sequence int) string {
	return fmt.Sprintf("%03d.txt", sequence)
}

// DisplayName returns the intelligible name, or the id when none is set
func (s *Session) DisplayName() string {
	if s.IntelligibleName != "" {
		return s.IntelligibleName
	}
	return s.ID
}

// NextSequence is the sequence the next appended clip will get
func (s *Session) NextSequence() int {
	return len(s.AudioEntries) + 1
}

// FindAudio returns the entry with the given sequence
func (s *Session) FindAudio(sequence int) (*AudioEntry, bool) {
	for i := range s.AudioEntries {
		if s.AudioEntries[i].Sequence == sequence {
			return &s.AudioEntries[i], true
		}
	}
	return nil, false
}

// TranscriptionCounts tallies per-clip outcomes
func (s *Session) TranscriptionCounts() (succeeded, failed, pending int) {
	for _, entry := range s.AudioEntries {
		switch entry.TranscriptionStatus {
		case TranscriptionSuccess:
			succeeded++
		case TranscriptionFailed:
			failed++
		default:
			pending++
		}
	}
	return succeeded, failed, pending
}

// TotalDuration sums the known clip durations
func (s *Session) TotalDuration() time.Duration {
	var total float64
	for _, entry := range s.AudioEntries {
		if entry.DurationSeconds != nil {
			total += *entry.DurationSeconds
		}
	}
	return time.Duration(total * float64(time.Second))
}

// Touch refreshes the checkpoint and updated_at; called as part of every persisted mutation
func (s *Session) Touch(now time.Time) {
	s.UpdatedAt = now
	s.CheckpointData = &Checkpoint{
		LastCheckpointAt:  now,
		LastAudioSequence: len(s.AudioEntries),
		ProcessingState:   s.State,
	}
}

// LastActivity is the time used for staleness checks
func (s *Session) LastActivity() time.Time {
	if s.CheckpointData != nil && !s.CheckpointData.LastCheckpointAt.IsZero() {
		return s.CheckpointData.LastCheckpointAt
	}
	return s.CreatedAt
}

// Clone returns a deep copy so callers never share slices with the store
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.AudioEntries = make([]AudioEntry, len(s.AudioEntries))
	for i, entry := range s.AudioEntries {
		if entry.DurationSeconds != nil {
			d := *entry.DurationSeconds
			entry.DurationSeconds = &d
		}
		c.AudioEntries[i] = entry
	}
	c.Errors = append([]ErrorEntry{}, s.Errors...)
	if s.CheckpointData != nil {
		cp := *s.CheckpointData
		c.CheckpointData = &cp
	}
	return &c
}
