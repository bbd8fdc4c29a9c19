package hub

import (
	"context"

	"go.uber.org/zap"

	"guildgate-backend/internal/events"
	"guildgate-backend/internal/observability"
)

// BusBroadcaster encodes typed events and publishes them to the bus. It is
// the single seam between typed gateway events and raw bus payloads, handed
// to every producer at construction.
type BusBroadcaster struct {
	sugar   *zap.SugaredLogger
	bus     Bus
	metrics *observability.Metrics
}

func NewBroadcaster(sugar *zap.SugaredLogger, bus Bus, metrics *observability.Metrics) *BusBroadcaster {
	return &BusBroadcaster{sugar: sugar, bus: bus, metrics: metrics}
}

func (b *BusBroadcaster) Broadcast(ctx context.Context, room string, eventType string, data any) error {
	frame, err := events.Encode(eventType, data)
	if err != nil {
		return err
	}
	if err := b.bus.Publish(ctx, room, frame); err != nil {
		return err
	}
	b.metrics.BroadcastsSent.WithLabelValues(eventType).Inc()
	return nil
}
