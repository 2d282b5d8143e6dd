package worker

import (
	"context"
	"math"
	"time"

	"siwatt-backend/internal/buffer"

	"github.com/rs/zerolog"
)

// Pipeline is the per-device state machine registered as the buffer's
// handler. It carries the device's minute aggregator and the last
// processed timestamp; neither survives a restart, which is safe
// because the monotonic guard skips anything already persisted.
type Pipeline struct {
	store       Store
	realtime    *RealtimeProcessor
	hourly      *HourlyProcessor
	minuteAgg   *MinuteAggregator
	lastDt      time.Time
	hasLastDt   bool
	balanceMode string
	log         zerolog.Logger
}

func NewPipeline(store Store, realtime *RealtimeProcessor, hourly *HourlyProcessor, balanceMode string, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:       store,
		realtime:    realtime,
		hourly:      hourly,
		minuteAgg:   NewMinuteAggregator(),
		balanceMode: balanceMode,
		log:         logger.With().Str("component", "pipeline").Logger(),
	}
}

// Handler adapts the pipeline to the buffer's handler contract.
func (p *Pipeline) Handler(ctx context.Context) buffer.Handler {
	return func(record buffer.Record) buffer.ProcessDecision {
		return p.HandleRecord(ctx, record)
	}
}

// HandleRecord runs one buffered record through realtime, minute and
// hourly stages. Success with a checkpoint is reported only after every
// required downstream write landed; the buffer retries anything else.
func (p *Pipeline) HandleRecord(ctx context.Context, record buffer.Record) buffer.ProcessDecision {
	dt, err := ParseDatetime(record.Payload.Datetime)
	if err != nil || record.DeviceID == 0 {
		p.log.Error().
			Str("device_code", record.DeviceCode).
			Str("datetime", record.Payload.Datetime).
			Err(err).
			Msg("record parse failed")
		return buffer.ProcessDecision{Success: false}
	}
	deviceID := record.DeviceID

	// Replayed or out-of-order samples are already persisted; skip them
	// so restarts never double-count.
	if p.hasLastDt && !dt.After(p.lastDt) {
		return buffer.ProcessDecision{Success: true}
	}

	if err := p.realtime.Handle(ctx, deviceID, record.Payload, dt); err != nil {
		p.log.Error().Int64("device_id", deviceID).Err(err).Msg("realtime update failed")
		return buffer.ProcessDecision{Success: false}
	}

	aggregate := p.minuteAgg.Add(record.Payload, dt)
	p.lastDt = dt
	p.hasLastDt = true

	if aggregate == nil {
		// Mid-minute sample: done, but hold the checkpoint so a crash
		// replays the partial minute into a fresh aggregator.
		return buffer.ProcessDecision{Success: true}
	}

	// The finalized minute's baseline is its own first sample unless an
	// older persisted minute exists, whose terminal counter captures the
	// gap between that minute's last sample and this minute's first.
	energyBefore := aggregate.EnergyFirst
	lastRow, err := p.store.GetLastMinutely(ctx, deviceID)
	if err != nil {
		p.log.Error().Int64("device_id", deviceID).Err(err).Msg("minutely baseline lookup failed")
	} else if lastRow != nil && lastRow.Datetime.Before(aggregate.MinuteStart) {
		energyBefore = lastRow.Energy
	}

	energyMinute := math.Round((aggregate.EnergyLast-energyBefore)*1000) / 1000

	if err := p.store.UpsertMinutely(ctx, deviceID, aggregate.MinuteStart, aggregate.Averages, aggregate.EnergyLast, energyMinute); err != nil {
		p.log.Error().Int64("device_id", deviceID).Err(err).Msg("minutely upsert failed")
		return buffer.ProcessDecision{Success: false}
	}

	if p.balanceMode == "minute" {
		if err := p.store.DecrementTokenBalance(ctx, deviceID, energyMinute); err != nil {
			p.log.Error().Int64("device_id", deviceID).Err(err).Msg("minute balance decrement failed")
			return buffer.ProcessDecision{Success: false}
		}
	}

	currentHour := FloorHour(dt)
	if !currentHour.Equal(aggregate.BucketHour) {
		hourDelta, err := p.hourly.Handle(ctx, deviceID, aggregate.BucketHour, currentHour, aggregate.EnergyLast)
		if err != nil {
			p.log.Error().Int64("device_id", deviceID).Err(err).Msg("hourly rollover failed")
			return buffer.ProcessDecision{Success: false}
		}
		if p.balanceMode == "hour" && hourDelta != nil {
			if err := p.store.DecrementTokenBalance(ctx, deviceID, *hourDelta); err != nil {
				p.log.Error().Int64("device_id", deviceID).Err(err).Msg("hour balance decrement failed")
				return buffer.ProcessDecision{Success: false}
			}
		}
	}

	return buffer.ProcessDecision{Success: true, Checkpoint: true, CheckpointOffset: -1}
}
