package agent

import (
	"context"
	"sync"
	"time"

	"healthbot/internal/domain"
)

// TurnTracker holds in-flight turns between the synchronous status reply and
// the continuation callback that delivers the answer.
type TurnTracker struct {
	mu     sync.Mutex
	turns  map[string]*trackedTurn
	latest map[string]string // sender id -> most recent turn id
	ttl    time.Duration
}

type trackedTurn struct {
	turn domain.TurnContext
	// statusSending is set while the status reply is on its way; status is
	// closed once it has been handed to the channel.
	statusSending bool
	status        chan struct{}
}

func NewTurnTracker(ttl time.Duration) *TurnTracker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &TurnTracker{
		turns:  make(map[string]*trackedTurn),
		latest: make(map[string]string),
		ttl:    ttl,
	}
}

// Begin registers turn as pending and makes it the sender's latest turn.
func (t *TurnTracker) Begin(turn domain.TurnContext) {
	turn.State = domain.TurnPending
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns[turn.ID] = &trackedTurn{turn: turn, status: make(chan struct{})}
	t.latest[turn.SenderID] = turn.ID
}

// Lookup finds the turn a continuation belongs to: by turn id when the
// callback carried one, otherwise the sender's latest turn if still pending.
func (t *TurnTracker) Lookup(senderID, turnID string) (domain.TurnContext, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if turnID != "" {
		if tt, ok := t.turns[turnID]; ok {
			return tt.turn, true
		}
	}
	id, ok := t.latest[senderID]
	if !ok {
		return domain.TurnContext{}, false
	}
	tt, ok := t.turns[id]
	if !ok || tt.turn.State != domain.TurnPending {
		return domain.TurnContext{}, false
	}
	return tt.turn, true
}

// Resolve moves a pending turn to resolved. It returns true for exactly one
// caller per turn; unknown turns return false.
func (t *TurnTracker) Resolve(turnID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	tt, ok := t.turns[turnID]
	if !ok || tt.turn.State == domain.TurnResolved {
		return false
	}
	tt.turn.State = domain.TurnResolved
	return true
}

// BeginStatus claims the status reply for a pending turn. It returns false
// when the turn is already resolved, in which case no status may be sent.
// A true result must be followed by StatusSent.
func (t *TurnTracker) BeginStatus(turnID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	tt, ok := t.turns[turnID]
	if !ok || tt.turn.State == domain.TurnResolved || tt.statusSending {
		return false
	}
	tt.statusSending = true
	return true
}

// StatusSent releases continuations waiting in AwaitStatus.
func (t *TurnTracker) StatusSent(turnID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tt, ok := t.turns[turnID]
	if !ok || !tt.statusSending {
		return
	}
	select {
	case <-tt.status:
	default:
		close(tt.status)
	}
}

// AwaitStatus blocks while the turn's status reply is being sent, so the
// answer never overtakes it. It returns at once when no status is in flight.
func (t *TurnTracker) AwaitStatus(ctx context.Context, turnID string) error {
	t.mu.Lock()
	tt, ok := t.turns[turnID]
	if !ok || !tt.statusSending {
		t.mu.Unlock()
		return nil
	}
	done := tt.status
	t.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *TurnTracker) State(turnID string) (domain.TurnState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tt, ok := t.turns[turnID]
	if !ok {
		return "", false
	}
	return tt.turn.State, true
}

// Sweep forgets turns received more than the TTL before now and returns how
// many were dropped.
func (t *TurnTracker) Sweep(now time.Time) int {
	cutoff := now.Add(-t.ttl)
	t.mu.Lock()
	defer t.mu.Unlock()
	dropped := 0
	for id, tt := range t.turns {
		if tt.turn.ReceivedAt.Before(cutoff) {
			delete(t.turns, id)
			if t.latest[tt.turn.SenderID] == id {
				delete(t.latest, tt.turn.SenderID)
			}
			dropped++
		}
	}
	return dropped
}

func (t *TurnTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.turns)
}
