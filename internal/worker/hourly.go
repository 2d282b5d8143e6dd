package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// HourlyProcessor writes the completed hour's rollup when the pipeline
// detects an hour rollover.
type HourlyProcessor struct {
	store Store
	log   zerolog.Logger
}

func NewHourlyProcessor(store Store, logger zerolog.Logger) *HourlyProcessor {
	return &HourlyProcessor{
		store: store,
		log:   logger.With().Str("component", "hourly").Logger(),
	}
}

// Handle computes and persists the rollup for the hour starting at
// hourRangeStart, stamped at insertDt with lastEnergy as the cumulative
// counter at rollover. Returns the consumption delta for balance
// accounting. A nil delta means the hour had nothing to aggregate,
// either no minute rows or no previous-hour reference; that is not an
// error.
func (p *HourlyProcessor) Handle(ctx context.Context, deviceID int64, hourRangeStart, insertDt time.Time, lastEnergy float64) (*float64, error) {
	aggregate, err := p.store.GetHourlyLegacy(ctx, deviceID, hourRangeStart)
	if err != nil {
		return nil, fmt.Errorf("hourly aggregate: %w", err)
	}
	if aggregate == nil {
		p.log.Warn().
			Int64("device_id", deviceID).
			Time("hour_start", hourRangeStart).
			Msg("no data to aggregate for hour")
		return nil, nil
	}

	if err := p.store.UpsertHourly(ctx, deviceID, insertDt, aggregate.Averages, lastEnergy, aggregate.EnergyDelta); err != nil {
		return nil, fmt.Errorf("hourly upsert: %w", err)
	}
	delta := aggregate.EnergyDelta
	return &delta, nil
}
