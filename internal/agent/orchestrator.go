// Package agent is the conversation core: it takes normalized inbound
// messages through detect/translate, intent classification and the
// continuation callback, and delivers replies on the turn's channel.
package agent

import (
	"context"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"healthbot/internal/domain"
	"healthbot/internal/language"
	"healthbot/internal/metrics"
)

const (
	defaultConcurrency = 8
	defaultTopK        = 4
)

// Orchestrator routes every turn. It holds no per-turn state outside the
// TurnContext values it passes along and the TurnTracker.
type Orchestrator struct {
	translator  domain.Translator
	classifier  domain.IntentClassifier
	retriever   domain.Retriever
	generator   domain.Generator
	reminders   domain.ReminderStore
	media       domain.MediaBridge
	bus         domain.MessageBus
	turns       *TurnTracker
	phrases     Phrases
	metrics     *metrics.Metrics
	logger      *slog.Logger
	topK        int
	location    *time.Location
	concurrency int
	now         func() time.Time
	newID       func() string
}

// OrchestratorConfig holds all dependencies and tuning parameters.
// Translator, Retriever and Media may be nil: turns then stay in English,
// answers are generated without reference documents, and audio is neither
// transcribed nor synthesized.
type OrchestratorConfig struct {
	Translator  domain.Translator
	Classifier  domain.IntentClassifier
	Retriever   domain.Retriever
	Generator   domain.Generator
	Reminders   domain.ReminderStore
	Media       domain.MediaBridge
	Bus         domain.MessageBus
	Turns       *TurnTracker
	Phrases     *Phrases
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	TopK        int
	Location    *time.Location
	Concurrency int // max parallel inbound messages
	Now         func() time.Time
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Turns == nil {
		cfg.Turns = NewTurnTracker(0)
	}
	phrases := DefaultPhrases()
	if cfg.Phrases != nil {
		phrases = *cfg.Phrases
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{
		translator:  cfg.Translator,
		classifier:  cfg.Classifier,
		retriever:   cfg.Retriever,
		generator:   cfg.Generator,
		reminders:   cfg.Reminders,
		media:       cfg.Media,
		bus:         cfg.Bus,
		turns:       cfg.Turns,
		phrases:     phrases,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		topK:        cfg.TopK,
		location:    cfg.Location,
		concurrency: cfg.Concurrency,
		now:         cfg.Now,
		newID:       uuid.NewString,
	}
}

// Turns exposes the tracker so the notifier can sweep it.
func (o *Orchestrator) Turns() *TurnTracker { return o.turns }

// HandleInbound runs the synchronous half of a turn: normalize, detect and
// translate, classify, then send either the engine's fulfillment or a status
// phrase while the continuation callback prepares the answer.
func (o *Orchestrator) HandleInbound(ctx context.Context, msg domain.InboundMessage) {
	turn := domain.NewTurn(o.newID(), msg)
	logger := o.logger.With("sender", msg.SenderID, "turn", turn.ID, "channel", turn.Channel)

	o.metrics.TurnStarted()
	defer o.metrics.TurnFinished()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("turn panicked", "stage", "inbound", "panic", r, "stack", string(debug.Stack()))
			o.metrics.ObserveTurn("inbound", "panic")
			turn.Format = domain.FormatText
			o.deliver(ctx, turn, o.localizeRecovered(ctx, o.phrases.SomethingWrong, turn.Language), logger)
		}
	}()

	logger.Info("processing message", "type", msg.Type, "text_len", len(msg.Text))

	text := msg.Text
	if msg.Type == domain.MessageAudio {
		transcript, ok := o.transcribe(ctx, msg, logger)
		if !ok {
			o.metrics.ObserveTurn("transcribe", "empty")
			turn.Format = domain.FormatText
			o.deliver(ctx, turn, domain.TranscriptUnavailable, logger)
			return
		}
		text = transcript
	}

	lang, english := o.detectAndTranslate(ctx, text, logger)
	turn.Language = lang
	o.turns.Begin(turn)

	start := time.Now()
	res, err := o.classifier.DetectIntent(ctx, domain.IntentRequest{
		SessionID:    turn.SenderID,
		Text:         english,
		LanguageCode: domain.DefaultLanguage,
		TurnID:       turn.ID,
	})
	o.metrics.Since("dialogflow", start)
	degraded := err != nil
	if degraded {
		logger.Warn("classification failed, treating as fallback", "stage", "classify", "error", err)
		o.metrics.ObserveTurn("classify", "error")
		res = domain.IntentResult{
			Intent:     domain.IntentFallback,
			IsFallback: true,
			QueryText:  english,
			SessionID:  turn.SenderID,
			TurnID:     turn.ID,
		}
	}
	o.metrics.ObserveIntent(res.Intent.String())
	logger.Debug("intent classified", "intent", res.Intent, "label", res.Label, "immediate", res.Immediate())

	if state, _ := o.turns.State(turn.ID); state == domain.TurnResolved {
		// The continuation already answered during classification.
		o.metrics.ObserveTurn("inbound", "continued")
		return
	}

	if res.Immediate() {
		if o.turns.Resolve(turn.ID) {
			o.deliver(ctx, turn, res.FulfillmentText, logger)
		}
		o.metrics.ObserveTurn("inbound", "fulfilled")
		return
	}

	status := o.phrases.Thinking
	if res.Intent == domain.IntentReminders {
		status = o.phrases.SettingReminder
	}
	if !o.sendStatus(ctx, turn, o.localize(ctx, status, turn.Language), logger) {
		o.metrics.ObserveTurn("inbound", "continued")
		return
	}
	o.metrics.ObserveTurn("inbound", "pending")

	if degraded {
		// No callback will come for a failed classification; answer locally.
		if res.QueryText == "" {
			res.QueryText = english
		}
		o.HandleContinuation(ctx, res)
	}
}

// transcribe returns the transcript of a voice message. false means there is
// nothing usable to classify.
func (o *Orchestrator) transcribe(ctx context.Context, msg domain.InboundMessage, logger *slog.Logger) (string, bool) {
	if o.media == nil {
		logger.Warn("audio received but no media bridge configured", "stage", "transcribe")
		return "", false
	}
	audio := msg.Audio
	if len(audio) == 0 {
		start := time.Now()
		data, err := o.media.DownloadMedia(ctx, msg.MediaID)
		o.metrics.Since("media_download", start)
		if err != nil {
			logger.Warn("media download failed", "stage", "media", "media_id", msg.MediaID, "error", err)
			return "", false
		}
		audio = data
	}

	start := time.Now()
	transcript, err := o.media.Transcribe(ctx, audio)
	o.metrics.Since("transcribe", start)
	if err != nil {
		logger.Warn("transcription failed", "stage", "transcribe", "error", err)
		return "", false
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" || transcript == domain.TranscriptUnavailable {
		logger.Info("transcription empty", "stage", "transcribe", "error", domain.ErrTranscriptionEmpty)
		return "", false
	}
	return transcript, true
}

// detectAndTranslate returns the sender's language and the English text.
// Any failure keeps the original text and assumes English.
func (o *Orchestrator) detectAndTranslate(ctx context.Context, text string, logger *slog.Logger) (string, string) {
	if o.translator == nil || strings.TrimSpace(text) == "" {
		return domain.DefaultLanguage, text
	}

	start := time.Now()
	detected, err := o.translator.Detect(ctx, text)
	if err != nil {
		o.metrics.Since("translate", start)
		logger.Warn("language detection failed", "stage", "detect", "error", err)
		return domain.DefaultLanguage, text
	}
	lang := language.Normalize(detected)
	if lang == domain.DefaultLanguage {
		o.metrics.Since("translate", start)
		return lang, text
	}

	english, err := o.translator.Translate(ctx, text, domain.DefaultLanguage)
	o.metrics.Since("translate", start)
	if err != nil || strings.TrimSpace(english) == "" {
		logger.Warn("translation to English failed", "stage", "translate", "language", lang, "error", err)
		return domain.DefaultLanguage, text
	}
	return lang, english
}

// sendStatus delivers the status reply unless a continuation has resolved
// the turn first. Continuations that resolve it meanwhile wait for the status
// to go out before pushing their answer.
func (o *Orchestrator) sendStatus(ctx context.Context, turn domain.TurnContext, text string, logger *slog.Logger) bool {
	if !o.turns.BeginStatus(turn.ID) {
		return false
	}
	defer o.turns.StatusSent(turn.ID)
	o.deliver(ctx, turn, text, logger)
	return true
}

// localizeRecovered is localize for recover paths, where the translator may
// be what panicked.
func (o *Orchestrator) localizeRecovered(ctx context.Context, text, lang string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("reply translation panicked", "stage", "translate", "language", lang, "panic", r)
			out = text
		}
	}()
	return o.localize(ctx, text, lang)
}

// localize translates an English phrase into lang, returning it unchanged on
// failure.
func (o *Orchestrator) localize(ctx context.Context, text, lang string) string {
	if o.translator == nil || lang == "" || lang == domain.DefaultLanguage || text == "" {
		return text
	}
	out, err := o.translator.Translate(ctx, text, lang)
	if err != nil || strings.TrimSpace(out) == "" {
		o.logger.Warn("reply translation failed", "stage", "translate", "language", lang, "error", err)
		return text
	}
	return out
}

// deliver renders text in the turn's format and hands it to the turn's
// channel. Send failures are logged and not retried.
func (o *Orchestrator) deliver(ctx context.Context, turn domain.TurnContext, text string, logger *slog.Logger) {
	out := domain.OutboundMessage{
		Channel: turn.Channel,
		To:      turn.SenderID,
		Format:  domain.FormatText,
		Text:    text,
	}
	if turn.Format == domain.FormatAudio && o.media != nil {
		start := time.Now()
		link, err := o.media.Synthesize(ctx, text, turn.Language)
		o.metrics.Since("synthesize", start)
		if err != nil {
			logger.Warn("speech synthesis failed, sending text", "stage", "synthesize", "error", err)
		} else {
			out.Format = domain.FormatAudio
			out.AudioURL = link
		}
	}

	err := o.bus.SendOutbound(ctx, out)
	o.metrics.ObserveOutbound(string(out.Channel), string(out.Format), err)
	if err != nil {
		logger.Error("reply not delivered", "stage", "send", "error", err)
	}
}

func (o *Orchestrator) formatTime(t time.Time) string {
	return t.In(o.location).Format(o.phrases.TimeLayout)
}
