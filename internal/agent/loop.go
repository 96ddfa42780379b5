package agent

import (
	"context"

	"healthbot/internal/domain"
)

// Run consumes inbound messages from the bus and processes them with bounded
// concurrency until ctx is cancelled or the bus is closed.
func (o *Orchestrator) Run(ctx context.Context) {
	o.logger.Info("orchestrator started", "concurrency", o.concurrency)

	sem := make(chan struct{}, o.concurrency)
	inbound := o.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("orchestrator stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				o.logger.Info("inbound channel closed, orchestrator stopping")
				return
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			go func(m domain.InboundMessage) {
				defer func() { <-sem }()
				o.HandleInbound(ctx, m)
			}(msg)
		}
	}
}
