package domain

// Intent is the closed set of intents the orchestrator knows how to fulfil.
type Intent int

const (
	// IntentOther is any engine intent answered by its canned fulfillment.
	IntentOther Intent = iota
	IntentFallback
	IntentQuery
	IntentReminders
	IntentShowReminders
)

// Engine display names.
const (
	LabelQuery         = "Query"
	LabelReminders     = "Reminders"
	LabelShowReminders = "ShowReminders"
)

func (i Intent) String() string {
	switch i {
	case IntentFallback:
		return "fallback"
	case IntentQuery:
		return "query"
	case IntentReminders:
		return "reminders"
	case IntentShowReminders:
		return "show_reminders"
	default:
		return "other"
	}
}

// ParseIntent maps an engine label onto Intent. The fallback flag wins over the label.
func ParseIntent(label string, isFallback bool) Intent {
	if isFallback {
		return IntentFallback
	}
	switch label {
	case LabelQuery:
		return IntentQuery
	case LabelReminders:
		return IntentReminders
	case LabelShowReminders:
		return IntentShowReminders
	case "", "Default Fallback Intent":
		return IntentFallback
	default:
		return IntentOther
	}
}

// IntentResult is the outcome of a classification call or a continuation callback.
type IntentResult struct {
	Intent          Intent
	Label           string
	IsFallback      bool
	FulfillmentText string
	QueryText       string
	SessionID       string
	TurnID          string
	Raw             []byte
}

// Immediate reports whether the engine resolved the turn on its own, in which
// case the fulfillment is the final reply and no continuation is awaited.
func (r IntentResult) Immediate() bool {
	return !r.IsFallback && r.FulfillmentText != ""
}

// IntentRequest is one classification request.
type IntentRequest struct {
	SessionID    string
	Text         string
	LanguageCode string
	TurnID       string
}
