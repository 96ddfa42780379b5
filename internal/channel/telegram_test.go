package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"healthbot/internal/bus"
	"healthbot/internal/domain"
)

// fakeTelegram answers the bot API methods the channel uses and records
// every call.
type fakeTelegram struct {
	mu    sync.Mutex
	calls []telegramCall
}

type telegramCall struct {
	method string
	form   url.Values
}

func (f *fakeTelegram) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	if strings.HasPrefix(r.URL.Path, "/file/") {
		rw.Header().Set("Content-Type", "audio/ogg")
		rw.Write([]byte("OggS-voice"))
		return
	}
	r.ParseMultipartForm(1 << 20)
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	f.mu.Lock()
	f.calls = append(f.calls, telegramCall{method: method, form: r.Form})
	f.mu.Unlock()

	switch method {
	case "getMe":
		rw.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"hb","username":"healthbot"}}`))
	case "getFile":
		rw.Write([]byte(`{"ok":true,"result":{"file_id":"voice-1","file_path":"voice/file_1.oga"}}`))
	case "sendChatAction":
		rw.Write([]byte(`{"ok":true,"result":true}`))
	default:
		rw.Write([]byte(`{"ok":true,"result":{"message_id":10,"date":0,"chat":{"id":42,"type":"private"}}}`))
	}
}

func (f *fakeTelegram) sent(method string) []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []url.Values
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c.form)
		}
	}
	return out
}

// rewriteTransport sends every request to the test server regardless of host.
type rewriteTransport struct{ target *url.URL }

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	r.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

func newTestTelegram(t *testing.T, allow ...string) (*Telegram, *fakeTelegram, *bus.InMemoryBus) {
	t.Helper()
	fake := &fakeTelegram{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	target, _ := url.Parse(srv.URL)

	tg := NewTelegram(TelegramConfig{
		Token:      "123:abc",
		AllowFrom:  allow,
		HTTPClient: &http.Client{Transport: rewriteTransport{target: target}},
		Logger:     testLogger(),
	})
	b := newBus(t)
	if err := tg.connect(b); err != nil {
		t.Fatal(err)
	}
	return tg, fake, b
}

func TestTelegramSend(t *testing.T) {
	tg, fake, b := newTestTelegram(t)
	ctx := context.Background()

	if err := b.SendOutbound(ctx, domain.OutboundMessage{Channel: domain.ChannelTelegram, To: "42", Format: domain.FormatText, Text: "hello"}); err != nil {
		t.Fatal(err)
	}
	if err := tg.Send(ctx, domain.OutboundMessage{To: "42", Format: domain.FormatAudio, Text: "hi", AudioURL: "https://bot.example.com/audio/a.mp3"}); err != nil {
		t.Fatal(err)
	}

	msgs := fake.sent("sendMessage")
	if len(msgs) != 1 || msgs[0].Get("text") != "hello" || msgs[0].Get("chat_id") != "42" {
		t.Fatalf("unexpected sendMessage calls %v", msgs)
	}
	audio := fake.sent("sendAudio")
	if len(audio) != 1 || audio[0].Get("audio") != "https://bot.example.com/audio/a.mp3" || audio[0].Get("caption") != "hi" {
		t.Fatalf("unexpected sendAudio calls %v", audio)
	}

	if err := tg.Send(ctx, domain.OutboundMessage{To: "not-a-chat", Text: "x"}); err == nil {
		t.Fatal("expected invalid chat id error")
	}
}

func TestTelegramHandleUpdate_TextAndVoice(t *testing.T) {
	tg, _, b := newTestTelegram(t)
	ctx := context.Background()
	chat := &tgbotapi.Chat{ID: 42, Type: "private"}
	from := &tgbotapi.User{ID: 7}

	tg.handleUpdate(ctx, tgbotapi.Update{Message: &tgbotapi.Message{MessageID: 1, Date: 1741615200, Chat: chat, From: from, Text: "  What is malaria? "}})
	text := receive(t, b)
	if text.Channel != domain.ChannelTelegram || text.SenderID != "42" || text.Type != domain.MessageText || text.Text != "What is malaria?" {
		t.Fatalf("unexpected text message %+v", text)
	}

	tg.handleUpdate(ctx, tgbotapi.Update{Message: &tgbotapi.Message{MessageID: 2, Chat: chat, From: from, Voice: &tgbotapi.Voice{FileID: "voice-1"}}})
	voice := receive(t, b)
	if voice.Type != domain.MessageAudio || voice.RawType != "voice" || string(voice.Audio) != "OggS-voice" || voice.MediaID != "voice-1" {
		t.Fatalf("unexpected voice message %+v", voice)
	}
}

func TestTelegramHandleUpdate_AllowListAndStart(t *testing.T) {
	tg, fake, b := newTestTelegram(t, "7")
	ctx := context.Background()
	chat := &tgbotapi.Chat{ID: 42, Type: "private"}

	tg.handleUpdate(ctx, tgbotapi.Update{Message: &tgbotapi.Message{Chat: chat, From: &tgbotapi.User{ID: 8}, Text: "hello"}})
	select {
	case msg := <-b.Subscribe():
		t.Fatalf("unauthorized user must be ignored, got %+v", msg)
	default:
	}

	start := &tgbotapi.Message{
		Chat: chat, From: &tgbotapi.User{ID: 7}, Text: "/start",
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}},
	}
	tg.handleUpdate(ctx, tgbotapi.Update{Message: start})
	if msgs := fake.sent("sendMessage"); len(msgs) != 1 || msgs[0].Get("text") != telegramWelcome {
		t.Fatalf("expected welcome message, got %v", msgs)
	}
	select {
	case msg := <-b.Subscribe():
		t.Fatalf("/start must not reach the orchestrator, got %+v", msg)
	default:
	}
}
