package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"healthbot/internal/domain"
)

// InMemoryReminders implements domain.ReminderStore in process memory.
// Each sender has its own lock, so adds for different senders never contend
// while add/list for one sender are serialized.
type InMemoryReminders struct {
	mu      sync.RWMutex
	senders map[string]*senderReminders
}

type senderReminders struct {
	mu        sync.Mutex
	reminders []domain.Reminder
}

func NewInMemoryReminders() *InMemoryReminders {
	return &InMemoryReminders{senders: make(map[string]*senderReminders)}
}

func (m *InMemoryReminders) bucket(senderID string, create bool) *senderReminders {
	m.mu.RLock()
	b := m.senders[senderID]
	m.mu.RUnlock()
	if b != nil || !create {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b = m.senders[senderID]; b == nil {
		b = &senderReminders{}
		m.senders[senderID] = b
	}
	return b
}

func (m *InMemoryReminders) buckets() []*senderReminders {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*senderReminders, 0, len(m.senders))
	for _, b := range m.senders {
		out = append(out, b)
	}
	return out
}

func (m *InMemoryReminders) Add(_ context.Context, r domain.Reminder) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	b := m.bucket(r.SenderID, true)
	b.mu.Lock()
	b.reminders = append(b.reminders, r)
	b.mu.Unlock()
	return nil
}

// List returns a copy of the sender's reminders in insertion order.
func (m *InMemoryReminders) List(_ context.Context, senderID string) ([]domain.Reminder, error) {
	b := m.bucket(senderID, false)
	if b == nil {
		return []domain.Reminder{}, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.reminders), nil
}

func (m *InMemoryReminders) Due(_ context.Context, now time.Time) ([]domain.Reminder, error) {
	var due []domain.Reminder
	for _, b := range m.buckets() {
		b.mu.Lock()
		for _, r := range b.reminders {
			if !r.Notified() && !r.At.After(now) {
				due = append(due, r)
			}
		}
		b.mu.Unlock()
	}
	slices.SortStableFunc(due, func(a, b domain.Reminder) int { return a.At.Compare(b.At) })
	return due, nil
}

func (m *InMemoryReminders) MarkNotified(_ context.Context, id string, at time.Time) error {
	for _, b := range m.buckets() {
		b.mu.Lock()
		for i := range b.reminders {
			if b.reminders[i].ID == id {
				b.reminders[i].NotifiedAt = at
				b.mu.Unlock()
				return nil
			}
		}
		b.mu.Unlock()
	}
	return nil
}

func (m *InMemoryReminders) Prune(_ context.Context, before time.Time) (int, error) {
	removed := 0
	for _, b := range m.buckets() {
		b.mu.Lock()
		kept := b.reminders[:0]
		for _, r := range b.reminders {
			if r.At.Before(before) {
				removed++
				continue
			}
			kept = append(kept, r)
		}
		b.reminders = kept
		b.mu.Unlock()
	}
	return removed, nil
}

func (m *InMemoryReminders) Close() error { return nil }
