package domain

import (
	"context"
	"time"
)

// Translator detects languages and translates text.
type Translator interface {
	Detect(ctx context.Context, text string) (string, error)
	Translate(ctx context.Context, text, target string) (string, error)
}

// IntentClassifier is the external intent-recognition engine.
type IntentClassifier interface {
	DetectIntent(ctx context.Context, q IntentRequest) (IntentResult, error)
}

// Retriever returns the top-k passages for a query, highest score first.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]RetrievedPassage, error)
}

// Generator is the external text generator.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	// ParseReminder always returns a usable reminder; a non-nil error reports
	// that the result was degraded to now.
	ParseReminder(ctx context.Context, text string, now time.Time) (ParsedReminder, error)
}

// MediaBridge moves audio between the messaging platform and speech services.
type MediaBridge interface {
	DownloadMedia(ctx context.Context, mediaID string) ([]byte, error)
	Transcribe(ctx context.Context, audio []byte) (string, error)
	Synthesize(ctx context.Context, text, language string) (string, error)
}

// ReminderStore keeps reminders per sender in insertion order.
type ReminderStore interface {
	Add(ctx context.Context, r Reminder) error
	List(ctx context.Context, senderID string) ([]Reminder, error)
	Due(ctx context.Context, now time.Time) ([]Reminder, error)
	MarkNotified(ctx context.Context, id string, at time.Time) error
	Prune(ctx context.Context, before time.Time) (int, error)
}
