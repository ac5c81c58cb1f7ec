package main

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/cadencehq/cadence/internal/steps"
)

// logTransport is the development transport: it records every send in the
// log instead of delivering it. Real providers plug in through the
// steps.MessageTransport interface.
type logTransport struct {
	logger *slog.Logger
}

func (t *logTransport) Send(ctx context.Context, msg steps.OutboundMessage) (*steps.SendReceipt, error) {
	t.logger.InfoContext(ctx, "outbound message",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.Int("body_bytes", len(msg.Body)),
	)
	return &steps.SendReceipt{MessageID: uuid.NewString()}, nil
}
