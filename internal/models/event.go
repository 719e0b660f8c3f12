package models

import (
	"strings"
	"time"
)

// EventKind is the closed set of inbound event kinds
type EventKind string

const (
	EventKindCommand  EventKind = "command"
	EventKindVoice    EventKind = "voice"
	EventKindCallback EventKind = "callback"
)

// Event is a normalized inbound message from the chat transport
type Event struct {
	Kind       EventKind
	ChatID     int64
	ReceivedAt time.Time

	Command  *CommandPayload
	Voice    *VoicePayload
	Callback *CallbackPayload
}

// CommandPayload is a slash command with its arguments
type CommandPayload struct {
	Name string
	Args string
}

// VoicePayload references a voice clip held by the transport
type VoicePayload struct {
	FileID          string
	DurationSeconds int
	FileSize        int64
	MimeType        string
}

// CallbackPayload is an inline button press, data formatted as "action:sessionID"
type CallbackPayload struct {
	ID        string
	Action    string
	SessionID string
	MessageID int
}

// Button is an inline keyboard button the orchestrator asks the transport to render
type Button struct {
	Text string
	Data string
}

// NotifyOptions tune how a notification is rendered by the transport
type NotifyOptions struct {
	Buttons  [][]Button
	Markdown bool
	Silent   bool
}

// CallbackData encodes an inline button payload
func CallbackData(action, sessionID string) string {
	return action + ":" + sessionID
}

// ParseCallbackData splits "action:sessionID"; the session part may be empty
func ParseCallbackData(data string) (action, sessionID string, ok bool) {
	action, sessionID, found := strings.Cut(data, ":")
	if !found || action == "" {
		return "", "", false
	}
	return action, sessionID, true
}
