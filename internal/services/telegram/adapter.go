package telegram

import (
	"context"
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/killallgit/voxlog/internal/models"
	"github.com/killallgit/voxlog/pkg/download"
	apperrors "github.com/killallgit/voxlog/pkg/errors"
	"golang.org/x/time/rate"
)

// maxMessageLength is Telegram's limit for one text message
const maxMessageLength = 4096

// Bot is the subset of the bot API the adapter uses
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Config holds adapter settings
type Config struct {
	AllowedChatID int64
	PollTimeout   int
	SendRate      float64
	SendBurst     int
}

// SubmitFunc receives converted inbound events
type SubmitFunc func(ctx context.Context, event models.Event) error

// Adapter connects the bot API to the orchestrator in both directions
type Adapter struct {
	bot        Bot
	cfg        Config
	limiter    *rate.Limiter
	downloader *download.Downloader
}

// Connect logs in with token and returns an adapter for the bot
func Connect(token string, debug bool, cfg Config, downloader *download.Downloader) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, apperrors.ExternalServiceError("telegram", err)
	}
	bot.Debug = debug
	log.Printf("[INFO] Authorized on Telegram as @%s", bot.Self.UserName)
	return NewAdapter(bot, cfg, downloader), nil
}

// NewAdapter wraps an existing bot
func NewAdapter(bot Bot, cfg Config, downloader *download.Downloader) *Adapter {
	if cfg.SendRate <= 0 {
		cfg.SendRate = 1
	}
	if cfg.SendBurst <= 0 {
		cfg.SendBurst = 1
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 60
	}
	if downloader == nil {
		downloader = download.NewDownloader(download.DefaultOptions())
	}
	return &Adapter{
		bot:        bot,
		cfg:        cfg,
		limiter:    rate.NewLimiter(rate.Limit(cfg.SendRate), cfg.SendBurst),
		downloader: downloader,
	}
}

// Run long-polls for updates and submits accepted events until ctx is done
func (a *Adapter) Run(ctx context.Context, submit SubmitFunc) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = a.cfg.PollTimeout
	updates := a.bot.GetUpdatesChan(u)
	defer a.bot.StopReceivingUpdates()

	log.Printf("[INFO] Listening for updates from chat %d", a.cfg.AllowedChatID)
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			event, ok := ToEvent(update, a.cfg.AllowedChatID)
			if !ok {
				continue
			}
			if err := submit(ctx, event); err != nil {
				log.Printf("[WARN] Dropping %s event from chat %d: %v", event.Kind, event.ChatID, err)
			}
		}
	}
}

// SendNotification sends a text message, optionally with inline buttons
func (a *Adapter) SendNotification(ctx context.Context, chatID int64, text string, opts *models.NotifyOptions) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, truncate(text, maxMessageLength))
	if opts != nil {
		if opts.Markdown {
			msg.ParseMode = tgbotapi.ModeMarkdown
		}
		msg.DisableNotification = opts.Silent
		if len(opts.Buttons) > 0 {
			msg.ReplyMarkup = keyboard(opts.Buttons)
		}
	}

	if _, err := a.bot.Send(msg); err != nil {
		return apperrors.ExternalServiceError("telegram", err).WithDetail("chat_id", chatID)
	}
	return nil
}

// SendFile uploads a local file as a document
func (a *Adapter) SendFile(ctx context.Context, chatID int64, path string, caption string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	doc.Caption = caption
	if _, err := a.bot.Send(doc); err != nil {
		return apperrors.ExternalServiceError("telegram", err).WithDetail("path", path)
	}
	return nil
}

// AcknowledgeCallback stops the client's spinner on a pressed button
func (a *Adapter) AcknowledgeCallback(ctx context.Context, callbackID string, text string) error {
	if _, err := a.bot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return apperrors.ExternalServiceError("telegram", err)
	}
	return nil
}

// FetchAudio downloads a voice file held by Telegram into dest
func (a *Adapter) FetchAudio(ctx context.Context, fileID string, dest string) (int64, error) {
	url, err := a.bot.GetFileDirectURL(fileID)
	if err != nil {
		return 0, apperrors.ExternalServiceError("telegram", fmt.Errorf("resolving file %s: %w", fileID, err))
	}

	result, err := a.downloader.DownloadToFile(ctx, url, dest)
	if err != nil {
		return 0, apperrors.ExternalServiceError("telegram", fmt.Errorf("downloading file %s: %w", fileID, err))
	}
	return result.ContentLength, nil
}

func keyboard(rows [][]models.Button) tgbotapi.InlineKeyboardMarkup {
	markup := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		markup = append(markup, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(markup...)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
