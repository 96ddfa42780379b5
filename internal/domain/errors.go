package domain

import "errors"

// Failure classes. Components wrap these with %w so callers can pick the
// degraded behaviour with errors.Is.
var (
	ErrConfigMissing      = errors.New("configuration missing")
	ErrTranslation        = errors.New("translation failed")
	ErrClassification     = errors.New("intent classification failed")
	ErrGeneration         = errors.New("generation failed")
	ErrMediaFetch         = errors.New("media fetch failed")
	ErrTranscriptionEmpty = errors.New("transcription empty")
	ErrReminderParse      = errors.New("reminder parse failed")
	ErrSend               = errors.New("outbound send failed")
)
