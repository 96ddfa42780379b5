package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"healthbot/internal/domain"
	"healthbot/internal/metrics"
)

// NotifierConfig configures the due-reminder notifier.
type NotifierConfig struct {
	Store      domain.ReminderStore
	Bus        domain.MessageBus
	Translator domain.Translator // localizes notices for non-English reminders; may be nil
	Turns      *TurnTracker      // swept on every tick when set
	Phrases    *Phrases
	Schedule   string        // robfig/cron spec, default "@every 1m"
	Retention  time.Duration // reminders due longer ago than this are pruned; 0 keeps them
	Location   *time.Location
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Now        func() time.Time
}

// ReminderNotifier periodically pushes due reminders to their senders and
// applies the retention policy.
type ReminderNotifier struct {
	store      domain.ReminderStore
	bus        domain.MessageBus
	translator domain.Translator
	turns      *TurnTracker
	phrases    Phrases
	schedule   string
	retention  time.Duration
	location   *time.Location
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time

	mu sync.Mutex // one tick at a time
}

func NewReminderNotifier(cfg NotifierConfig) *ReminderNotifier {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1m"
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	phrases := DefaultPhrases()
	if cfg.Phrases != nil {
		phrases = *cfg.Phrases
	}
	return &ReminderNotifier{
		store:      cfg.Store,
		bus:        cfg.Bus,
		translator: cfg.Translator,
		turns:      cfg.Turns,
		phrases:    phrases,
		schedule:   cfg.Schedule,
		retention:  cfg.Retention,
		location:   cfg.Location,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}
}

// Start schedules Tick and blocks until ctx is cancelled.
func (n *ReminderNotifier) Start(ctx context.Context) error {
	c := cron.New(cron.WithLocation(n.location))
	if _, err := c.AddFunc(n.schedule, func() { n.Tick(ctx) }); err != nil {
		return fmt.Errorf("invalid reminder schedule %q: %w", n.schedule, err)
	}
	c.Start()
	n.logger.Info("reminder notifier started", "schedule", n.schedule, "retention", n.retention)

	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	n.logger.Info("reminder notifier stopped")
	return nil
}

// Tick sends every due reminder, sweeps stale turns and prunes reminders past
// retention. Each reminder is attempted once: a failed send is logged and the
// reminder is still marked notified.
func (n *ReminderNotifier) Tick(ctx context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	due, err := n.store.Due(ctx, now)
	if err != nil {
		n.logger.Error("loading due reminders failed", "stage", "notify", "error", err)
	}
	for _, r := range due {
		text := Fill(n.phrases.ReminderDue, "task", r.Task, "time", r.At.In(n.location).Format(n.phrases.TimeLayout))
		out := domain.OutboundMessage{
			Channel: r.Channel,
			To:      r.SenderID,
			Format:  domain.FormatText,
			Text:    n.localize(ctx, text, r.Language),
		}
		if out.Channel == "" {
			out.Channel = domain.ChannelWhatsApp
		}
		sendErr := n.bus.SendOutbound(ctx, out)
		n.metrics.ObserveOutbound(string(out.Channel), string(out.Format), sendErr)
		if sendErr != nil {
			n.logger.Warn("reminder not delivered", "stage", "notify", "sender", r.SenderID, "reminder", r.ID, "error", sendErr)
		}
		if err := n.store.MarkNotified(ctx, r.ID, now); err != nil {
			n.logger.Error("marking reminder notified failed", "stage", "notify", "reminder", r.ID, "error", err)
			continue
		}
		if sendErr == nil {
			n.metrics.ReminderSent()
		}
	}

	if n.turns != nil {
		if dropped := n.turns.Sweep(now); dropped > 0 {
			n.logger.Debug("stale turns swept", "count", dropped)
		}
	}

	if n.retention > 0 {
		pruned, err := n.store.Prune(ctx, now.Add(-n.retention))
		if err != nil {
			n.logger.Error("pruning reminders failed", "stage", "prune", "error", err)
			return
		}
		n.metrics.ReminderPruned(pruned)
		if pruned > 0 {
			n.logger.Info("old reminders pruned", "count", pruned)
		}
	}
}

func (n *ReminderNotifier) localize(ctx context.Context, text, lang string) string {
	if n.translator == nil || lang == "" || lang == domain.DefaultLanguage {
		return text
	}
	out, err := n.translator.Translate(ctx, text, lang)
	if err != nil || strings.TrimSpace(out) == "" {
		n.logger.Warn("reminder translation failed", "stage", "translate", "language", lang, "error", err)
		return text
	}
	return out
}
