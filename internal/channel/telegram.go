package channel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"healthbot/internal/domain"
)

const (
	telegramMaxMsgLen = 4000
	telegramWelcome   = "Hello! Ask me any health question, or ask me to set a reminder."
)

// Telegram implements domain.ChannelAdapter for a Telegram bot using long
// polling. The chat id is the sender id, so replies land in the same chat.
type Telegram struct {
	token     string
	endpoint  string
	allowFrom []int64 // empty = allow all
	client    *http.Client

	bot    *tgbotapi.BotAPI
	bus    domain.MessageBus
	logger *slog.Logger
}

type TelegramConfig struct {
	Token       string
	AllowFrom   []string // user ids as strings
	APIEndpoint string   // defaults to tgbotapi.APIEndpoint
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Telegram{
		token:     cfg.Token,
		endpoint:  cfg.APIEndpoint,
		allowFrom: allowed,
		client:    cfg.HTTPClient,
		logger:    cfg.Logger,
	}
}

func (t *Telegram) Name() domain.Channel { return domain.ChannelTelegram }

// connect authenticates the bot and registers the outbound handler.
func (t *Telegram) connect(bus domain.MessageBus) error {
	bot, err := tgbotapi.NewBotAPIWithClient(t.token, t.endpoint, t.client)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.bus = bus
	bus.OnOutbound(domain.ChannelTelegram, t.Send)
	t.logger.Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)
	return nil
}

// Start connects to Telegram and polls for updates until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	if err := t.connect(bus); err != nil {
		return err
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)
	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			t.bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update)
		}
	}
}

// Stop is a no-op: polling ends when Start's context is cancelled, and
// StopReceivingUpdates panics if called twice.
func (t *Telegram) Stop() error { return nil }

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	m := update.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return
	}
	chatID := m.Chat.ID

	if !t.isAllowed(m.From.ID) {
		t.logger.Warn("unauthorized telegram user", "user_id", m.From.ID, "username", m.From.UserName)
		return
	}
	if m.IsCommand() && m.Command() == "start" {
		if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, telegramWelcome)); err != nil {
			t.logger.Warn("telegram welcome failed", "error", err)
		}
		return
	}

	msg := domain.InboundMessage{
		Channel:    domain.ChannelTelegram,
		SenderID:   strconv.FormatInt(chatID, 10),
		MessageID:  strconv.Itoa(m.MessageID),
		ReceivedAt: time.Unix(int64(m.Date), 0),
	}

	switch {
	case m.Voice != nil || m.Audio != nil:
		msg.RawType = "voice"
		fileID := ""
		if m.Voice != nil {
			fileID = m.Voice.FileID
		} else {
			msg.RawType = "audio"
			fileID = m.Audio.FileID
		}
		msg.Type = domain.MessageAudio
		msg.MediaID = fileID
		audio, err := t.download(ctx, fileID)
		if err != nil {
			// The orchestrator answers an audio turn without audio as untranscribable.
			t.logger.Warn("telegram voice download failed", "sender", msg.SenderID, "stage", "media", "error", err)
		}
		msg.Audio = audio
	case len(m.Photo) > 0:
		msg.RawType = "image"
		msg.Type = domain.MessageImage
		msg.Text = domain.NormalizeText(msg.Type, msg.RawType, strings.TrimSpace(m.Caption))
	case strings.TrimSpace(m.Text) != "":
		msg.RawType = "text"
		msg.Type = domain.MessageText
		msg.Text = strings.TrimSpace(m.Text)
	default:
		return
	}

	t.logger.Info("telegram message received", "sender", msg.SenderID, "type", msg.Type, "text_len", len(msg.Text))
	if _, err := t.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		t.logger.Debug("telegram typing action failed", "error", err)
	}
	t.bus.Publish(msg)
}

// download fetches a voice note through the bot file API.
func (t *Telegram) download(ctx context.Context, fileID string) ([]byte, error) {
	link, err := t.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("file download status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 20<<20))
}

func (t *Telegram) isAllowed(userID int64) bool {
	return len(t.allowFrom) == 0 || slices.Contains(t.allowFrom, userID)
}

// Send delivers a reply. Audio replies are sent by URL with the text as
// caption; long text is split at Telegram's message limit.
func (t *Telegram) Send(_ context.Context, msg domain.OutboundMessage) error {
	if t.bot == nil {
		return fmt.Errorf("telegram bot not connected")
	}
	chatID, err := strconv.ParseInt(msg.To, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", msg.To, err)
	}

	if msg.Format == domain.FormatAudio && msg.AudioURL != "" {
		audio := tgbotapi.NewAudio(chatID, tgbotapi.FileURL(msg.AudioURL))
		if len(msg.Text) <= 1024 {
			audio.Caption = msg.Text
		}
		if _, err := t.bot.Send(audio); err != nil {
			return fmt.Errorf("send audio: %w", err)
		}
		return nil
	}

	for _, chunk := range splitMessage(msg.Text, telegramMaxMsgLen) {
		if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

// splitMessage cuts msg into chunks of at most maxLen bytes, preferring
// newline boundaries.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}
		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}
		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}
