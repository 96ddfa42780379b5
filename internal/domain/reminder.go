package domain

import "time"

// Reminder is a scheduled task owned by a sender.
type Reminder struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	Channel    Channel   `json:"channel"`
	Language   string    `json:"language,omitempty"` // reply language of the turn that set it
	Task       string    `json:"task"`
	At         time.Time `json:"at"`
	CreatedAt  time.Time `json:"created_at"`
	NotifiedAt time.Time `json:"notified_at,omitzero"`
}

// Notified reports whether the reminder has already been pushed to its sender.
func (r Reminder) Notified() bool { return !r.NotifiedAt.IsZero() }

// ParsedReminder is the structured form of a free-text reminder request.
type ParsedReminder struct {
	Task string
	At   time.Time
}
