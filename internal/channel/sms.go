package channel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"healthbot/internal/config"
	"healthbot/internal/domain"
)

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// SMS implements domain.ChannelAdapter over the Twilio Messages API.
// Replies are sent asynchronously through the REST API, so the inbound
// webhook always answers with an empty TwiML document.
type SMS struct {
	cfg    config.SMSConfig
	bus    domain.MessageBus
	client *http.Client
	logger *slog.Logger
}

type SMSChannelConfig struct {
	Config     config.SMSConfig
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewSMS(cfg SMSChannelConfig) *SMS {
	if cfg.Config.APIBase == "" {
		cfg.Config.APIBase = "https://api.twilio.com"
	}
	if cfg.Config.WebhookPath == "" {
		cfg.Config.WebhookPath = "/sms"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SMS{cfg: cfg.Config, client: cfg.HTTPClient, logger: cfg.Logger}
}

func (s *SMS) Name() domain.Channel { return domain.ChannelSMS }

func (s *SMS) Start(_ context.Context, bus domain.MessageBus) error {
	s.bus = bus
	bus.OnOutbound(domain.ChannelSMS, s.Send)
	s.logger.Info("sms channel ready", "webhook", s.cfg.WebhookPath)
	return nil
}

func (s *SMS) Stop() error { return nil }

func (s *SMS) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST "+s.cfg.WebhookPath, s.handleIncoming)
}

func (s *SMS) handleIncoming(rw http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(rw, r.Body, maxFormSize)
	if err := r.ParseForm(); err != nil {
		http.Error(rw, "Bad request", http.StatusBadRequest)
		return
	}
	from := strings.TrimSpace(r.PostForm.Get("From"))
	if from == "" {
		http.Error(rw, "Bad request", http.StatusBadRequest)
		return
	}
	body := r.PostForm.Get("Body")

	s.logger.Info("sms message received", "sender", from, "text_len", len(body))
	s.bus.Publish(domain.InboundMessage{
		Channel:    domain.ChannelSMS,
		SenderID:   from,
		MessageID:  r.PostForm.Get("MessageSid"),
		Type:       domain.MessageText,
		RawType:    "text",
		Text:       body,
		ReceivedAt: time.Now(),
	})

	rw.Header().Set("Content-Type", "text/xml; charset=utf-8")
	fmt.Fprint(rw, emptyTwiML)
}

// Send posts the reply through the Messages API. SMS cannot carry audio, so
// an audio reply becomes its text followed by the link.
func (s *SMS) Send(ctx context.Context, msg domain.OutboundMessage) error {
	text := msg.Text
	if msg.Format == domain.FormatAudio && msg.AudioURL != "" {
		text = strings.TrimSpace(text + "\n" + msg.AudioURL)
	}

	form := url.Values{}
	form.Set("To", msg.To)
	form.Set("From", s.cfg.FromNumber)
	form.Set("Body", text)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(s.cfg.APIBase, "/"), url.PathEscape(s.cfg.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return fmt.Errorf("twilio API %d: %s", resp.StatusCode, gjson.GetBytes(respBody, "message").String())
	}
	return nil
}
