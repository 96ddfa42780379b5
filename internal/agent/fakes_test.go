package agent

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"healthbot/internal/bus"
	"healthbot/internal/domain"
	"healthbot/internal/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// fakeTranslator detects a fixed language, maps known texts to English and
// marks translations out of English with a "[lang] " prefix.
type fakeTranslator struct {
	lang        string
	detectErr   error
	english     map[string]string
	onTranslate func(text, target string)
}

func (f *fakeTranslator) Detect(context.Context, string) (string, error) {
	if f.detectErr != nil {
		return "", f.detectErr
	}
	return f.lang, nil
}

func (f *fakeTranslator) Translate(_ context.Context, text, target string) (string, error) {
	if f.onTranslate != nil {
		f.onTranslate(text, target)
	}
	if target == domain.DefaultLanguage {
		if en, ok := f.english[text]; ok {
			return en, nil
		}
		return text, nil
	}
	return "[" + target + "] " + text, nil
}

type fakeClassifier struct {
	mu      sync.Mutex
	queries []domain.IntentRequest
	fn      func(q domain.IntentRequest) (domain.IntentResult, error)
}

func (f *fakeClassifier) DetectIntent(_ context.Context, q domain.IntentRequest) (domain.IntentResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	return f.fn(q)
}

func (f *fakeClassifier) lastTurnID(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		t.Fatal("classifier was not called")
	}
	return f.queries[len(f.queries)-1].TurnID
}

type fakeRetriever struct {
	passages []domain.RetrievedPassage
	err      error
}

func (f *fakeRetriever) Search(context.Context, string, int) ([]domain.RetrievedPassage, error) {
	return f.passages, f.err
}

type fakeGenerator struct {
	mu       sync.Mutex
	prompts  []string
	generate func(prompt string) (string, error)
	parsed   domain.ParsedReminder
	parseErr error
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.generate == nil {
		return "generated answer", nil
	}
	return f.generate(prompt)
}

func (f *fakeGenerator) ParseReminder(_ context.Context, text string, now time.Time) (domain.ParsedReminder, error) {
	if f.parseErr != nil {
		return domain.ParsedReminder{Task: text, At: now}, f.parseErr
	}
	return f.parsed, nil
}

type fakeMedia struct {
	downloads   int
	downloadErr error
	transcript  string
	synthURL    string
	synthErr    error
}

func (f *fakeMedia) DownloadMedia(context.Context, string) ([]byte, error) {
	f.downloads++
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return []byte("OggS"), nil
}

func (f *fakeMedia) Transcribe(context.Context, []byte) (string, error) {
	if f.transcript == "" {
		return domain.TranscriptUnavailable, nil
	}
	return f.transcript, nil
}

func (f *fakeMedia) Synthesize(context.Context, string, string) (string, error) {
	return f.synthURL, f.synthErr
}

// outbox records everything sent through the bus.
type outbox struct {
	mu     sync.Mutex
	sent   []domain.OutboundMessage
	err    error
	ch     chan domain.OutboundMessage
	onSend func(msg domain.OutboundMessage) // runs before the message is recorded
}

func (o *outbox) handler(_ context.Context, msg domain.OutboundMessage) error {
	if o.onSend != nil {
		o.onSend(msg)
	}
	o.mu.Lock()
	o.sent = append(o.sent, msg)
	err := o.err
	o.mu.Unlock()
	if o.ch != nil {
		o.ch <- msg
	}
	return err
}

func (o *outbox) messages() []domain.OutboundMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.OutboundMessage(nil), o.sent...)
}

func (o *outbox) texts() []string {
	var out []string
	for _, m := range o.messages() {
		out = append(out, m.Text)
	}
	return out
}

type harness struct {
	orch       *Orchestrator
	bus        *bus.InMemoryBus
	out        *outbox
	translator *fakeTranslator
	classifier *fakeClassifier
	retriever  *fakeRetriever
	generator  *fakeGenerator
	media      *fakeMedia
	reminders  *memory.InMemoryReminders
	now        time.Time
}

var errUpstream = errors.New("upstream unavailable")

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		bus:        bus.New(16, testLogger()),
		out:        &outbox{},
		translator: &fakeTranslator{lang: "en", english: map[string]string{}},
		classifier: &fakeClassifier{fn: func(q domain.IntentRequest) (domain.IntentResult, error) {
			return domain.IntentResult{Intent: domain.IntentFallback, IsFallback: true, QueryText: q.Text, SessionID: q.SessionID, TurnID: q.TurnID}, nil
		}},
		retriever: &fakeRetriever{},
		generator: &fakeGenerator{},
		media:     &fakeMedia{synthURL: "https://bot.example.com/audio/a.mp3"},
		reminders: memory.NewInMemoryReminders(),
		now:       time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC),
	}
	for _, ch := range []domain.Channel{domain.ChannelWhatsApp, domain.ChannelSMS, domain.ChannelTelegram} {
		h.bus.OnOutbound(ch, h.out.handler)
	}
	t.Cleanup(h.bus.Close)

	h.orch = NewOrchestrator(OrchestratorConfig{
		Translator: h.translator,
		Classifier: h.classifier,
		Retriever:  h.retriever,
		Generator:  h.generator,
		Reminders:  h.reminders,
		Media:      h.media,
		Bus:        h.bus,
		Logger:     testLogger(),
		Now:        func() time.Time { return h.now },
	})
	return h
}

func (h *harness) text(sender, body string) domain.InboundMessage {
	return domain.InboundMessage{
		Channel:    domain.ChannelWhatsApp,
		SenderID:   sender,
		MessageID:  "wamid.1",
		Type:       domain.MessageText,
		RawType:    "text",
		Text:       body,
		ReceivedAt: h.now,
	}
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
