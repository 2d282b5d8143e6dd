// Package worker implements the telemetry ingestion core: topic
// parsing, device resolution, the per-device buffer-and-drain cycle,
// and the aggregation pipeline behind it.
package worker

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"siwatt-backend/internal/buffer"
	"siwatt-backend/internal/eventbus"
	"siwatt-backend/internal/models"

	"github.com/rs/zerolog"
)

// TopicMode selects how the subscription topic is parsed.
const (
	TopicModePrefixed = "prefixed" // /siwatt-mqtt/<username>/swm-raw/<device_code>
	TopicModeSimple   = "simple"   // <username>/swm-raw/<device_code>
)

var requiredFields = []string{"datetime", "voltage", "current", "power", "energy", "frequency", "pf"}

// Worker wires the subscriber callbacks into the per-device pipelines.
// Message handling runs one callback to completion at a time per the
// paho callback discipline; the pipeline map still takes a lock in
// case a future transport dispatches callbacks concurrently.
type Worker struct {
	store       Store
	buffer      *buffer.FileBuffer
	recovery    *RecoveryManager
	realtime    *RealtimeProcessor
	hourly      *HourlyProcessor
	bus         *eventbus.Bus
	topicMode   string
	balanceMode string
	log         zerolog.Logger

	mu        sync.Mutex
	pipelines map[string]*Pipeline
}

func New(store Store, buf *buffer.FileBuffer, bus *eventbus.Bus, topicMode, balanceMode string, logger zerolog.Logger) *Worker {
	log := logger.With().Str("component", "worker").Logger()
	return &Worker{
		store:       store,
		buffer:      buf,
		recovery:    NewRecoveryManager(buf, logger),
		realtime:    NewRealtimeProcessor(store),
		hourly:      NewHourlyProcessor(store, logger),
		bus:         bus,
		topicMode:   topicMode,
		balanceMode: balanceMode,
		log:         log,
		pipelines:   make(map[string]*Pipeline),
	}
}

// Recover drains buffers left over from a previous crash. Call before
// subscribing so replayed samples precede live traffic.
func (w *Worker) Recover(ctx context.Context) error {
	return w.recovery.ReplayAll(func(deviceCode string) buffer.Handler {
		return w.getPipeline(deviceCode).Handler(ctx)
	})
}

// ParseTopic extracts (username, deviceCode) from the topic, or
// ok=false when the shape does not match the configured mode.
func (w *Worker) ParseTopic(topic string) (username, deviceCode string, ok bool) {
	var parts []string
	for _, p := range strings.Split(topic, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}

	if w.topicMode == TopicModeSimple {
		if len(parts) != 3 || parts[1] != "swm-raw" {
			return "", "", false
		}
		return parts[0], parts[2], true
	}

	if len(parts) != 4 || parts[0] != "siwatt-mqtt" || parts[2] != "swm-raw" {
		return "", "", false
	}
	return parts[1], parts[3], true
}

// HandleMessage is the subscriber callback: validate, resolve the
// device, append to its buffer, then drain the buffer through the
// device's pipeline.
func (w *Worker) HandleMessage(ctx context.Context, topic string, payload []byte) {
	username, deviceCode, ok := w.ParseTopic(topic)
	if !ok {
		w.log.Warn().Str("topic", topic).Msg("invalid topic")
		return
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		w.log.Warn().Str("topic", topic).Err(err).Msg("invalid payload")
		return
	}

	var missing []string
	for _, f := range requiredFields {
		if _, present := fields[f]; !present {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		w.log.Warn().Str("topic", topic).Strs("missing", missing).Msg("payload missing fields")
		return
	}

	var sample models.Sample
	if err := json.Unmarshal(payload, &sample); err != nil {
		w.log.Warn().Str("topic", topic).Err(err).Msg("invalid payload")
		return
	}

	if sample.DeviceID != "" && sample.DeviceID != deviceCode {
		w.log.Warn().
			Str("topic", topic).
			Str("payload_device_id", sample.DeviceID).
			Str("device_code", deviceCode).
			Msg("device mismatch")
		return
	}

	device, err := w.store.GetDevice(ctx, username, deviceCode)
	if err != nil {
		w.log.Error().Str("topic", topic).Err(err).Msg("device lookup failed")
		return
	}
	if device == nil {
		w.log.Warn().Str("username", username).Str("device_code", deviceCode).Msg("device not found")
		return
	}

	record := buffer.Record{
		Username:   username,
		DeviceCode: deviceCode,
		DeviceID:   device.ID,
		Payload:    sample,
	}
	if err := w.buffer.Append(deviceCode, record); err != nil {
		w.log.Error().Str("device_code", deviceCode).Err(err).Msg("buffer append failed")
		return
	}

	pipeline := w.getPipeline(deviceCode)
	result, err := w.buffer.Process(deviceCode, pipeline.Handler(ctx))
	if err != nil {
		w.log.Error().Str("device_code", deviceCode).Err(err).Msg("buffer process failed")
		return
	}

	if result.Processed > 0 && w.bus != nil {
		if dt, err := ParseDatetime(sample.Datetime); err == nil {
			w.bus.Publish(eventbus.Event{
				Type:       eventbus.EventRealtime,
				DeviceID:   device.ID,
				DeviceCode: deviceCode,
				Timestamp:  dt,
				Sample:     sample,
			})
		}
	}

	w.log.Info().
		Str("device_code", deviceCode).
		Str("mqtt_datetime", sample.Datetime).
		Int("processed", result.Processed).
		Int("remaining", result.Remaining).
		Msg("buffer processed")
}

func (w *Worker) getPipeline(deviceCode string) *Pipeline {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p, ok := w.pipelines[deviceCode]; ok {
		return p
	}
	p := NewPipeline(w.store, w.realtime, w.hourly, w.balanceMode, w.log)
	w.pipelines[deviceCode] = p
	return p
}
