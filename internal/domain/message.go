package domain

import (
	"fmt"
	"time"
)

// MessageType is the normalized kind of an inbound platform message.
type MessageType string

const (
	MessageText        MessageType = "text"
	MessageImage       MessageType = "image"
	MessageAudio       MessageType = "audio"
	MessageUnsupported MessageType = "unsupported"
)

// Literals used when a message has no usable text of its own.
const (
	ImageReceivedText     = "Image received"
	TranscriptUnavailable = "Could not transcribe audio."
)

// ClassifyType maps a platform message type onto MessageType.
// WhatsApp and Telegram both call push-to-talk notes "voice".
func ClassifyType(raw string) MessageType {
	switch raw {
	case "text":
		return MessageText
	case "image":
		return MessageImage
	case "audio", "voice":
		return MessageAudio
	default:
		return MessageUnsupported
	}
}

// NormalizeText derives the text a message contributes to a turn.
// body is the text body for text messages and the caption for images.
// Audio messages return body unchanged; the transcript is filled in later.
func NormalizeText(t MessageType, rawType, body string) string {
	switch t {
	case MessageText, MessageAudio:
		return body
	case MessageImage:
		if body == "" {
			return ImageReceivedText
		}
		return body
	default:
		return fmt.Sprintf("Unsupported message type: %s", rawType)
	}
}

// InboundMessage is one message event delivered by a channel.
type InboundMessage struct {
	Channel    Channel
	SenderID   string
	MessageID  string
	Type       MessageType
	RawType    string
	Text       string
	MediaID    string // platform media handle, resolved through the media bridge
	Audio      []byte // pre-fetched audio for channels that download media themselves
	ReceivedAt time.Time
}

// OutboundMessage is one reply handed to a channel for delivery.
type OutboundMessage struct {
	Channel  Channel
	To       string
	Format   Format
	Text     string
	AudioURL string
}
