package channel

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"healthbot/internal/config"
	"healthbot/internal/domain"
)

const (
	whatsappAPIBase = "https://graph.facebook.com/v17.0"
	eventReceived   = "EVENT_RECEIVED"
)

// WhatsApp implements domain.ChannelAdapter for the WhatsApp Business Cloud API.
type WhatsApp struct {
	cfg    config.WhatsAppConfig
	bus    domain.MessageBus
	logger *slog.Logger
	client *http.Client
}

type WhatsAppChannelConfig struct {
	Config     config.WhatsAppConfig
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewWhatsApp(cfg WhatsAppChannelConfig) *WhatsApp {
	if cfg.Config.APIBase == "" {
		cfg.Config.APIBase = whatsappAPIBase
	}
	if cfg.Config.WebhookPath == "" {
		cfg.Config.WebhookPath = "/webhook"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WhatsApp{
		cfg:    cfg.Config,
		logger: cfg.Logger,
		client: cfg.HTTPClient,
	}
}

func (w *WhatsApp) Name() domain.Channel { return domain.ChannelWhatsApp }

// Start registers the outbound handler. Inbound traffic arrives through the
// routes added by Register.
func (w *WhatsApp) Start(_ context.Context, bus domain.MessageBus) error {
	w.bus = bus
	bus.OnOutbound(domain.ChannelWhatsApp, w.Send)
	w.logger.Info("whatsapp channel ready", "webhook", w.cfg.WebhookPath)
	return nil
}

func (w *WhatsApp) Stop() error { return nil }

// Register mounts the webhook verification and event routes on mux.
func (w *WhatsApp) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET "+w.cfg.WebhookPath, w.handleVerification)
	mux.HandleFunc("POST "+w.cfg.WebhookPath, w.handleIncoming)
}

// --- Webhook handlers ---

func (w *WhatsApp) handleVerification(rw http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")

	if mode == "" || token == "" {
		rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(rw, "OK")
		return
	}
	if mode == "subscribe" && token == w.cfg.VerifyToken {
		w.logger.Info("whatsapp webhook verified")
		rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(rw, q.Get("hub.challenge"))
		return
	}

	w.logger.Warn("whatsapp webhook verification failed", "mode", mode)
	http.Error(rw, "Verification token mismatch", http.StatusForbidden)
}

func (w *WhatsApp) handleIncoming(rw http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			w.logger.Error("whatsapp webhook panicked", "stage", "webhook", "panic", rec, "stack", string(debug.Stack()))
			http.Error(rw, "Internal Server Error", http.StatusInternalServerError)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(rw, "Bad request", http.StatusBadRequest)
		return
	}

	if w.cfg.AppSecret != "" && !w.verifySignature(body, r.Header.Get("X-Hub-Signature-256")) {
		w.logger.Warn("whatsapp invalid signature")
		http.Error(rw, "Forbidden", http.StatusForbidden)
		return
	}

	if trimmed := bytes.TrimSpace(body); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		http.Error(rw, "No body", http.StatusBadRequest)
		return
	}

	var payload waPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		w.logger.Warn("whatsapp bad payload", "stage", "webhook", "error", err)
		http.Error(rw, "Bad request", http.StatusBadRequest)
		return
	}

	for _, msg := range payload.inbound(time.Now()) {
		w.logger.Info("whatsapp message received",
			"sender", msg.SenderID, "type", msg.Type, "text_len", len(msg.Text))
		w.bus.Publish(msg)
	}

	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(rw, eventReceived)
}

// verifySignature checks the X-Hub-Signature-256 header.
func (w *WhatsApp) verifySignature(body []byte, signature string) bool {
	expected, ok := strings.CutPrefix(signature, "sha256=")
	if !ok {
		return false
	}
	mac := hmac.New(sha256.New, []byte(w.cfg.AppSecret))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(computed))
}

// Send delivers a text or audio-link message via the Cloud API.
func (w *WhatsApp) Send(ctx context.Context, msg domain.OutboundMessage) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                msg.To,
	}
	if msg.Format == domain.FormatAudio && msg.AudioURL != "" {
		payload["type"] = "audio"
		payload["audio"] = map[string]string{"link": msg.AudioURL}
	} else {
		payload["type"] = "text"
		payload["text"] = map[string]string{"body": msg.Text}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/messages?access_token=%s",
		strings.TrimRight(w.cfg.APIBase, "/"), w.cfg.PhoneNumberID, url.QueryEscape(w.cfg.AccessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		reason := gjson.GetBytes(respBody, "error.message").String()
		if reason == "" {
			reason = string(respBody)
		}
		return fmt.Errorf("whatsapp API %d: %s", resp.StatusCode, reason)
	}
	return nil
}

// --- WhatsApp webhook payload types ---

type waPayload struct {
	Object string    `json:"object"`
	Entry  []waEntry `json:"entry"`
}

type waEntry struct {
	ID      string     `json:"id"`
	Changes []waChange `json:"changes"`
}

type waChange struct {
	Value waValue `json:"value"`
	Field string  `json:"field"`
}

type waValue struct {
	MessagingProduct string      `json:"messaging_product"`
	Messages         []waMessage `json:"messages"`
}

type waMessage struct {
	From      string   `json:"from"`
	ID        string   `json:"id"`
	Timestamp string   `json:"timestamp"`
	Type      string   `json:"type"`
	Text      *waText  `json:"text,omitempty"`
	Image     *waMedia `json:"image,omitempty"`
	Audio     *waMedia `json:"audio,omitempty"`
	Voice     *waMedia `json:"voice,omitempty"`
}

type waText struct {
	Body string `json:"body"`
}

type waMedia struct {
	ID      string `json:"id"`
	Caption string `json:"caption,omitempty"`
}

// inbound flattens every message in the payload into normalized inbound
// messages. Status-only notifications yield nothing.
func (p waPayload) inbound(now time.Time) []domain.InboundMessage {
	var out []domain.InboundMessage
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			for _, m := range change.Value.Messages {
				out = append(out, m.normalize(now))
			}
		}
	}
	return out
}

func (m waMessage) normalize(now time.Time) domain.InboundMessage {
	kind := domain.ClassifyType(m.Type)
	var body, mediaID string
	switch {
	case m.Text != nil:
		body = m.Text.Body
	case m.Image != nil:
		body = m.Image.Caption
	case m.Audio != nil:
		mediaID = m.Audio.ID
	case m.Voice != nil:
		mediaID = m.Voice.ID
	}

	received := now
	if sec, err := strconv.ParseInt(m.Timestamp, 10, 64); err == nil && sec > 0 {
		received = time.Unix(sec, 0)
	}
	return domain.InboundMessage{
		Channel:    domain.ChannelWhatsApp,
		SenderID:   m.From,
		MessageID:  m.ID,
		Type:       kind,
		RawType:    m.Type,
		Text:       domain.NormalizeText(kind, m.Type, body),
		MediaID:    mediaID,
		ReceivedAt: received,
	}
}
