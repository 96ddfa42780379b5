package domain

import "time"

// Channel identifies the messaging platform a turn arrived on and replies leave through.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSMS      Channel = "sms"
	ChannelTelegram Channel = "telegram"
)

// Format is the rendering of a reply.
type Format string

const (
	FormatText  Format = "text"
	FormatAudio Format = "audio"
)

// TurnState tracks the two-phase reply of a turn: a synchronous status reply
// followed by the answer delivered from the continuation callback.
type TurnState string

const (
	TurnPending  TurnState = "pending"
	TurnResolved TurnState = "resolved"
)

// DefaultLanguage is assumed whenever detection fails.
const DefaultLanguage = "en"

// TurnContext carries the per-turn conversation fields through the call chain.
// It is created for each inbound message and never shared between turns.
type TurnContext struct {
	ID         string
	SenderID   string
	Language   string
	Channel    Channel
	Format     Format
	ReceivedAt time.Time
	State      TurnState
}

// NewTurn builds the context for a fresh inbound message. Format is audio only
// when the message itself was a voice note.
func NewTurn(id string, msg InboundMessage) TurnContext {
	format := FormatText
	if msg.Type == MessageAudio {
		format = FormatAudio
	}
	channel := msg.Channel
	if channel == "" {
		channel = ChannelWhatsApp
	}
	received := msg.ReceivedAt
	if received.IsZero() {
		received = time.Now()
	}
	return TurnContext{
		ID:         id,
		SenderID:   msg.SenderID,
		Language:   DefaultLanguage,
		Channel:    channel,
		Format:     format,
		ReceivedAt: received,
		State:      TurnPending,
	}
}
