package domain

import "context"

// Channel adapters: WhatsApp, SMS, Telegram.
type ChannelAdapter interface {
	Name() Channel
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
	Send(ctx context.Context, msg OutboundMessage) error
}
