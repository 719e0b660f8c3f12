package telegram

import (
	"log"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/killallgit/voxlog/internal/models"
)

// ToEvent converts an update into an inbound event. Updates from other chats and message
// types the daemon does not handle are rejected.
func ToEvent(update tgbotapi.Update, allowedChatID int64) (models.Event, bool) {
	switch {
	case update.CallbackQuery != nil:
		return callbackEvent(update.CallbackQuery, allowedChatID)
	case update.Message != nil:
		return messageEvent(update.Message, allowedChatID)
	}
	return models.Event{}, false
}

func messageEvent(msg *tgbotapi.Message, allowedChatID int64) (models.Event, bool) {
	if msg.Chat == nil || !allowed(msg.Chat.ID, allowedChatID) {
		return models.Event{}, false
	}

	event := models.Event{
		ChatID:     msg.Chat.ID,
		ReceivedAt: messageTime(msg),
	}

	switch {
	case msg.IsCommand():
		event.Kind = models.EventKindCommand
		event.Command = &models.CommandPayload{
			Name: msg.Command(),
			Args: msg.CommandArguments(),
		}
	case msg.Voice != nil:
		event.Kind = models.EventKindVoice
		event.Voice = &models.VoicePayload{
			FileID:          msg.Voice.FileID,
			DurationSeconds: msg.Voice.Duration,
			FileSize:        int64(msg.Voice.FileSize),
			MimeType:        msg.Voice.MimeType,
		}
	case msg.Audio != nil:
		event.Kind = models.EventKindVoice
		event.Voice = &models.VoicePayload{
			FileID:          msg.Audio.FileID,
			DurationSeconds: msg.Audio.Duration,
			FileSize:        int64(msg.Audio.FileSize),
			MimeType:        msg.Audio.MimeType,
		}
	default:
		return models.Event{}, false
	}
	return event, true
}

func callbackEvent(query *tgbotapi.CallbackQuery, allowedChatID int64) (models.Event, bool) {
	if query.Message == nil || query.Message.Chat == nil || !allowed(query.Message.Chat.ID, allowedChatID) {
		return models.Event{}, false
	}

	action, sessionID, ok := models.ParseCallbackData(query.Data)
	if !ok {
		// Unknown payloads still reach the orchestrator so the button is acknowledged
		action, sessionID = query.Data, ""
	}

	return models.Event{
		Kind:       models.EventKindCallback,
		ChatID:     query.Message.Chat.ID,
		ReceivedAt: time.Now().UTC(),
		Callback: &models.CallbackPayload{
			ID:        query.ID,
			Action:    action,
			SessionID: sessionID,
			MessageID: query.Message.MessageID,
		},
	}, true
}

func allowed(chatID, allowedChatID int64) bool {
	if allowedChatID != 0 && chatID != allowedChatID {
		log.Printf("[DEBUG] Ignoring update from chat %d", chatID)
		return false
	}
	return true
}

func messageTime(msg *tgbotapi.Message) time.Time {
	if msg.Date == 0 {
		return time.Now().UTC()
	}
	return time.Unix(int64(msg.Date), 0).UTC()
}
