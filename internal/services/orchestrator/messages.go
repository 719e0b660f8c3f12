package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/killallgit/voxlog/internal/models"
	apperrors "github.com/killallgit/voxlog/pkg/errors"
)

const (
	actionProcess  = "process"
	actionCancel   = "cancel"
	actionResume   = "resume"
	actionFinalize = "finalize"
	actionDiscard  = "discard"
	actionOutputs  = "outputs"
)

const (
	msgHelp = "Send voice messages to record a session.\n\n" +
		"/start - start a new session\n" +
		"/done - finish recording and transcribe\n" +
		"/transcribe - continue an unfinished transcription\n" +
		"/process [provider] - send transcripts to the pipeline\n" +
		"/status - show the current session\n" +
		"/list - show recent sessions\n" +
		"/rename <name> - rename the current session\n" +
		"/cancel - stop a running transcription\n" +
		"/help - show this message"

	msgUnknownCommand    = "Unknown command /%s. Send /help for the list."
	msgNoActiveSession   = "No active session. Send a voice message or /start to begin."
	msgNoAudio           = "This session has no audio yet. Send a voice message first."
	msgSessionStarted    = "Started session %s. Send voice messages, then /done."
	msgAudioAdded        = "Added clip %d to %s (%s)."
	msgAudioTooLarge     = "That file is too large (%s, limit %s)."
	msgTranscribing      = "Transcribing %d clip(s) from %s…"
	msgProgress          = "Transcribed %d/%d"
	msgCancelling        = "Cancelling transcription…"
	msgCancelled         = "Transcription cancelled after %d of %d clip(s). Send /transcribe to continue."
	msgNothingToCancel   = "Nothing is running."
	msgNotReadyToProcess = "Session %s is %s. Only transcribed sessions can be processed."
	msgProcessing        = "Processing %s with %s…"
	msgProcessed         = "Processing finished: %d file(s)."
	msgNoOutputs         = "No output files for %s."
	msgRenamed           = "Session renamed to %s."
	msgRenameUsage       = "Usage: /rename <name>"
	msgResumed           = "Resumed %s. Send more voice messages, then /done."
	msgDiscarded         = "Discarded %s."
	msgBusy              = "Session %s is still %s. Wait for it to finish or /cancel."
	msgFinishCurrent     = "Finish %s first (/done) before resuming another session."
	msgNoSessions        = "No sessions yet."
)

// humanized is the closed set of user-facing failure texts
var humanized = map[apperrors.ErrorCode]string{
	apperrors.ErrCodeInvalidState:    "That action isn't available for this session right now.",
	apperrors.ErrCodeNotFound:        "I couldn't find that session.",
	apperrors.ErrCodeStorage:         "I couldn't save the session. Please try again in a moment.",
	apperrors.ErrCodeProcessing:      "The processing pipeline failed. Your transcripts are safe.",
	apperrors.ErrCodeTranscription:   "Transcription isn't available right now. Your audio is saved; send /transcribe later.",
	apperrors.ErrCodeExternalService: "I couldn't fetch that file from the chat service. Please send it again.",
	apperrors.ErrCodeValidation:      "That input isn't valid.",
	apperrors.ErrCodeConflict:        "That conflicts with another session.",
	apperrors.ErrCodeConfigInvalid:   "The assistant is misconfigured.",
}

const genericFailure = "Something went wrong."

// humanize maps err to a user-facing message tagged with the correlation id
func humanize(err error, correlationID string) string {
	msg, ok := humanized[apperrors.GetCode(err)]
	if !ok {
		msg = genericFailure
	}
	return fmt.Sprintf("%s (ref %s)", msg, correlationID)
}

var stateLabels = map[models.SessionState]string{
	models.SessionStateCollecting:   "collecting",
	models.SessionStateTranscribing: "transcribing",
	models.SessionStateTranscribed:  "transcribed",
	models.SessionStateProcessing:   "processing",
	models.SessionStateProcessed:    "processed",
	models.SessionStateInterrupted:  "interrupted",
	models.SessionStateError:        "failed",
}

func stateLabel(state models.SessionState) string {
	if label, ok := stateLabels[state]; ok {
		return label
	}
	return strings.ToLower(string(state))
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// statusText renders the /status view of a session
func statusText(s *models.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", s.DisplayName(), s.ID)
	fmt.Fprintf(&b, "State: %s\n", stateLabel(s.State))
	fmt.Fprintf(&b, "Clips: %d", len(s.AudioEntries))
	if total := s.TotalDuration(); total > 0 {
		fmt.Fprintf(&b, " (%s)", formatDuration(total))
	}
	b.WriteString("\n")

	if s.State != models.SessionStateCollecting && len(s.AudioEntries) > 0 {
		ok, failed, pending := s.TranscriptionCounts()
		fmt.Fprintf(&b, "Transcribed: %d ok, %d failed, %d pending\n", ok, failed, pending)
	}
	if n := len(s.Errors); n > 0 {
		fmt.Fprintf(&b, "Errors: %d (last: %s)\n", n, s.Errors[n-1].Operation)
	}
	return strings.TrimRight(b.String(), "\n")
}

// listText renders the /list view
func listText(list []*models.Session) string {
	if len(list) == 0 {
		return msgNoSessions
	}

	var b strings.Builder
	b.WriteString("Recent sessions:\n")
	for _, s := range list {
		fmt.Fprintf(&b, "• %s - %s, %d clip(s)\n", s.DisplayName(), stateLabel(s.State), len(s.AudioEntries))
	}
	return strings.TrimRight(b.String(), "\n")
}

func summaryText(s *models.Session, succeeded, failed int) string {
	text := fmt.Sprintf("Transcription of %s finished: %d ok", s.DisplayName(), succeeded)
	if failed > 0 {
		text += fmt.Sprintf(", %d failed", failed)
	}
	return text + "."
}

// recoveryText explains what was interrupted
func recoveryText(s *models.Session) string {
	from := stateLabel(s.InterruptedFrom)
	if from == "" {
		from = "working"
	}
	return fmt.Sprintf("Session %s was interrupted while %s (%d clip(s)). What should I do?",
		s.DisplayName(), from, len(s.AudioEntries))
}

func recoveryButtons(s *models.Session) [][]models.Button {
	row := []models.Button{{Text: "Resume recording", Data: models.CallbackData(actionResume, s.ID)}}
	if len(s.AudioEntries) > 0 {
		label := "Transcribe now"
		if s.InterruptedFrom == models.SessionStateTranscribing || s.InterruptedFrom == models.SessionStateProcessing {
			label = "Retry transcription"
		}
		row = append(row, models.Button{Text: label, Data: models.CallbackData(actionFinalize, s.ID)})
	}
	return [][]models.Button{
		row,
		{{Text: "Discard", Data: models.CallbackData(actionDiscard, s.ID)}},
	}
}
