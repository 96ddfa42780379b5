package agent

import (
	"context"
	"testing"
	"time"

	"healthbot/internal/bus"
	"healthbot/internal/domain"
	"healthbot/internal/memory"
)

type notifierHarness struct {
	notifier   *ReminderNotifier
	store      *memory.InMemoryReminders
	out        *outbox
	turns      *TurnTracker
	translator *fakeTranslator
	now        time.Time
}

func newNotifierHarness(t *testing.T) *notifierHarness {
	t.Helper()
	h := &notifierHarness{
		store:      memory.NewInMemoryReminders(),
		out:        &outbox{},
		turns:      NewTurnTracker(10 * time.Minute),
		translator: &fakeTranslator{lang: "en", english: map[string]string{}},
		now:        time.Date(2025, 3, 10, 21, 0, 30, 0, time.UTC),
	}
	b := bus.New(4, testLogger())
	b.OnOutbound(domain.ChannelWhatsApp, h.out.handler)
	b.OnOutbound(domain.ChannelTelegram, h.out.handler)
	t.Cleanup(b.Close)

	h.notifier = NewReminderNotifier(NotifierConfig{
		Store:      h.store,
		Bus:        b,
		Translator: h.translator,
		Turns:      h.turns,
		Retention:  30 * 24 * time.Hour,
		Logger:     testLogger(),
		Now:        func() time.Time { return h.now },
	})
	return h
}

func TestNotifierTick_SendsDueOnce(t *testing.T) {
	h := newNotifierHarness(t)
	ctx := context.Background()
	h.store.Add(ctx, domain.Reminder{ID: "due", SenderID: "alice", Channel: domain.ChannelTelegram, Task: "take medicine", At: h.now.Add(-30 * time.Second)})
	h.store.Add(ctx, domain.Reminder{ID: "later", SenderID: "alice", Task: "walk", At: h.now.Add(time.Hour)})

	h.notifier.Tick(ctx)
	h.notifier.Tick(ctx)

	msgs := h.out.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected one notification, got %+v", msgs)
	}
	if msgs[0].Text != "⏰ Reminder: take medicine" || msgs[0].To != "alice" || msgs[0].Channel != domain.ChannelTelegram {
		t.Fatalf("unexpected notification %+v", msgs[0])
	}
	list, _ := h.store.List(ctx, "alice")
	if !list[0].Notified() || list[1].Notified() {
		t.Fatalf("unexpected notified flags %+v", list)
	}
}

func TestNotifierTick_FailedSendNotRetried(t *testing.T) {
	h := newNotifierHarness(t)
	ctx := context.Background()
	h.store.Add(ctx, domain.Reminder{ID: "due", SenderID: "alice", Task: "walk", At: h.now.Add(-time.Minute)})
	h.out.err = errUpstream

	h.notifier.Tick(ctx)
	h.out.err = nil
	h.notifier.Tick(ctx)

	if n := len(h.out.messages()); n != 1 {
		t.Fatalf("expected a single attempt, got %d sends", n)
	}
	if due, _ := h.store.Due(ctx, h.now); len(due) != 0 {
		t.Fatalf("failed reminder must not stay due: %+v", due)
	}
}

func TestNotifierTick_LocalizesToReminderLanguage(t *testing.T) {
	h := newNotifierHarness(t)
	ctx := context.Background()
	h.store.Add(ctx, domain.Reminder{ID: "hi", SenderID: "alice", Language: "hi", Task: "take medicine", At: h.now.Add(-time.Minute)})
	h.store.Add(ctx, domain.Reminder{ID: "en", SenderID: "bob", Task: "walk", At: h.now})

	h.notifier.Tick(ctx)

	got := h.out.texts()
	if len(got) != 2 || got[0] != "[hi] ⏰ Reminder: take medicine" || got[1] != "⏰ Reminder: walk" {
		t.Fatalf("unexpected notifications %q", got)
	}
}

func TestNotifierTick_PrunesAndSweeps(t *testing.T) {
	h := newNotifierHarness(t)
	ctx := context.Background()
	h.store.Add(ctx, domain.Reminder{ID: "ancient", SenderID: "alice", Task: "old", At: h.now.Add(-40 * 24 * time.Hour), NotifiedAt: h.now.Add(-40 * 24 * time.Hour)})
	h.store.Add(ctx, domain.Reminder{ID: "recent", SenderID: "alice", Task: "new", At: h.now.Add(time.Hour)})
	h.turns.Begin(newTurn("stale", "alice", h.now.Add(-time.Hour)))

	h.notifier.Tick(ctx)

	list, _ := h.store.List(ctx, "alice")
	if len(list) != 1 || list[0].ID != "recent" {
		t.Fatalf("expected only the recent reminder, got %+v", list)
	}
	if h.turns.Len() != 0 {
		t.Fatal("stale turn should be swept")
	}
}

func TestNotifierStart_RejectsBadSchedule(t *testing.T) {
	n := NewReminderNotifier(NotifierConfig{Store: memory.NewInMemoryReminders(), Schedule: "every tuesday", Logger: testLogger()})
	if err := n.Start(context.Background()); err == nil {
		t.Fatal("expected schedule error")
	}
}
