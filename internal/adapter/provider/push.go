package provider

import (
	"context"

	"github.com/hive-corporation/threatpulse/internal/core/ports"
	"github.com/hive-corporation/threatpulse/pkg/log"
)

// deliver decodes one push message and hands any pipeline data to handler.
func deliver(ctx context.Context, logger log.Logger, source string, raw []byte, handler func(ports.Batch)) {
	msgType, batch, err := DecodeEnvelope(raw)
	if err != nil {
		logger.Warnf(ctx, "provider.%s: dropping message: %v", source, err)
		return
	}
	if batch.Empty() {
		logger.Debugf(ctx, "provider.%s: %s message", source, msgType)
		return
	}
	handler(batch)
}
