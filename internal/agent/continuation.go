package agent

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"healthbot/internal/domain"
	"healthbot/internal/knowledge"
)

// HandleContinuation fulfils an intent delivered by the engine's webhook and
// returns the reply for the webhook response. Query, fallback and reminder
// replies are also pushed to the sender on the turn's channel, once per turn.
// Reminder listings are only returned: the engine hands them back to
// HandleInbound as the classification's fulfillment.
func (o *Orchestrator) HandleContinuation(ctx context.Context, res domain.IntentResult) (reply string, err error) {
	turn, found := o.turns.Lookup(res.SessionID, res.TurnID)
	if !found {
		turn = o.defaultTurn(res)
	}
	logger := o.logger.With("sender", turn.SenderID, "turn", turn.ID, "intent", res.Intent)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("continuation panicked", "stage", "continuation", "panic", r, "stack", string(debug.Stack()))
			o.metrics.ObserveTurn("continuation", "panic")
			reply = o.localizeRecovered(ctx, o.phrases.SomethingWrong, turn.Language)
			err = fmt.Errorf("continuation panic: %v", r)
		}
	}()

	o.metrics.ObserveIntent(res.Intent.String())
	push := true
	switch res.Intent {
	case domain.IntentShowReminders:
		reply = o.listReminders(ctx, turn, logger)
		push = false
	case domain.IntentReminders:
		reply = o.setReminder(ctx, turn, res.QueryText, logger)
	case domain.IntentQuery, domain.IntentFallback:
		reply = o.answer(ctx, turn, res.QueryText, logger)
	case domain.IntentOther:
		if res.FulfillmentText != "" {
			reply = res.FulfillmentText
			push = false
		} else {
			reply = o.answer(ctx, turn, res.QueryText, logger)
		}
	default:
		panic(fmt.Sprintf("unhandled intent %d", res.Intent))
	}

	if push && (!found || o.turns.Resolve(turn.ID)) {
		if err := o.turns.AwaitStatus(ctx, turn.ID); err != nil {
			logger.Warn("status reply still pending", "stage", "continuation", "error", err)
		}
		o.deliver(ctx, turn, reply, logger)
		o.metrics.ObserveTurn("continuation", "pushed")
	} else {
		o.metrics.ObserveTurn("continuation", "returned")
	}
	return reply, nil
}

// defaultTurn stands in for a turn this process never saw, e.g. after a
// restart or when the engine is driven from its console.
func (o *Orchestrator) defaultTurn(res domain.IntentResult) domain.TurnContext {
	return domain.NewTurn(o.newID(), domain.InboundMessage{
		Channel:    domain.ChannelWhatsApp,
		SenderID:   res.SessionID,
		Type:       domain.MessageText,
		ReceivedAt: o.now(),
	})
}

func (o *Orchestrator) listReminders(ctx context.Context, turn domain.TurnContext, logger *slog.Logger) string {
	if o.reminders == nil {
		return o.localize(ctx, o.phrases.NoReminders, turn.Language)
	}
	list, err := o.reminders.List(ctx, turn.SenderID)
	if err != nil {
		logger.Error("listing reminders failed", "stage", "reminders", "error", err)
		return o.localize(ctx, o.phrases.SomethingWrong, turn.Language)
	}
	if len(list) == 0 {
		return o.localize(ctx, o.phrases.NoReminders, turn.Language)
	}

	lines := make([]string, len(list))
	for i, r := range list {
		lines[i] = Fill(o.phrases.ReminderItem,
			"index", strconv.Itoa(i+1),
			"task", r.Task,
			"time", o.formatTime(r.At),
		)
	}
	return o.localize(ctx, strings.Join(lines, "\n"), turn.Language)
}

func (o *Orchestrator) setReminder(ctx context.Context, turn domain.TurnContext, text string, logger *slog.Logger) string {
	if o.reminders == nil || o.generator == nil {
		logger.Error("reminder requested but store or generator missing", "stage", "reminders")
		return o.localize(ctx, o.phrases.SomethingWrong, turn.Language)
	}

	now := turn.ReceivedAt.In(o.location)
	start := time.Now()
	parsed, err := o.generator.ParseReminder(ctx, text, now)
	o.metrics.Since("generate", start)
	if err != nil {
		logger.Warn("reminder time not understood, using now", "stage", "reminder_parse", "error", err)
	}
	if parsed.At.IsZero() {
		parsed.At = now
	}
	if strings.TrimSpace(parsed.Task) == "" {
		parsed.Task = text
	}

	r := domain.Reminder{
		ID:        o.newID(),
		SenderID:  turn.SenderID,
		Channel:   turn.Channel,
		Language:  turn.Language,
		Task:      parsed.Task,
		At:        parsed.At,
		CreatedAt: o.now(),
	}
	if err := o.reminders.Add(ctx, r); err != nil {
		logger.Error("saving reminder failed", "stage", "reminders", "error", err)
		return o.localize(ctx, o.phrases.SomethingWrong, turn.Language)
	}
	logger.Info("reminder saved", "reminder", r.ID, "at", r.At)

	confirmation := Fill(o.phrases.ReminderSet, "task", r.Task, "time", o.formatTime(r.At))
	return o.localize(ctx, confirmation, turn.Language)
}

// answer runs retrieval-augmented generation for question. The prompt asks
// for the answer directly in the turn's language.
func (o *Orchestrator) answer(ctx context.Context, turn domain.TurnContext, question string, logger *slog.Logger) string {
	if o.generator == nil {
		return o.localize(ctx, o.phrases.GenerationFailed, turn.Language)
	}

	var passages []domain.RetrievedPassage
	if o.retriever != nil {
		start := time.Now()
		found, err := o.retriever.Search(ctx, question, o.topK)
		o.metrics.Since("retrieve", start)
		if err != nil {
			logger.Warn("retrieval failed, answering without documents", "stage", "retrieve", "error", err)
		} else {
			passages = found
		}
	}

	prompt := knowledge.BuildPrompt(question, passages, turn.Language, knowledge.FormatHints{
		Channel: turn.Channel,
		Audio:   turn.Format == domain.FormatAudio,
	})

	start := time.Now()
	text, err := o.generator.Generate(ctx, prompt)
	o.metrics.Since("generate", start)
	if err != nil {
		logger.Error("generation failed", "stage", "generate", "error", err)
		o.metrics.ObserveTurn("generate", "error")
		return o.localize(ctx, o.phrases.GenerationFailed, turn.Language)
	}
	logger.Info("answer generated", "passages", len(passages), "answer_len", len(text))
	return text
}
