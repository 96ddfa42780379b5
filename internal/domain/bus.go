package domain

import "context"

// OutboundHandler delivers one reply on a specific channel.
type OutboundHandler func(ctx context.Context, msg OutboundMessage) error

// MessageBus routes messages between channels and the orchestrator.
type MessageBus interface {
	Publish(msg InboundMessage)
	Subscribe() <-chan InboundMessage
	SendOutbound(ctx context.Context, msg OutboundMessage) error
	OnOutbound(channel Channel, handler OutboundHandler)
	Close()
}
