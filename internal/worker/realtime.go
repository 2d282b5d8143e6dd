package worker

import (
	"context"
	"fmt"
	"time"

	"siwatt-backend/internal/models"
)

// RealtimeProcessor keeps the single latest-sample row current and
// marks the device online. Both writes must succeed; a failure leaves
// the sample unprocessed in the buffer.
type RealtimeProcessor struct {
	store Store
}

func NewRealtimeProcessor(store Store) *RealtimeProcessor {
	return &RealtimeProcessor{store: store}
}

func (p *RealtimeProcessor) Handle(ctx context.Context, deviceID int64, s models.Sample, dt time.Time) error {
	if err := p.store.UpsertRealtime(ctx, deviceID, s, dt); err != nil {
		return fmt.Errorf("realtime upsert: %w", err)
	}
	if err := p.store.MarkDeviceOnline(ctx, deviceID, dt); err != nil {
		return fmt.Errorf("mark online: %w", err)
	}
	return nil
}
