package worker

import (
	"siwatt-backend/internal/buffer"

	"github.com/rs/zerolog"
)

// RecoveryManager drains buffers left over from a previous run before
// live traffic resumes.
type RecoveryManager struct {
	buffer *buffer.FileBuffer
	log    zerolog.Logger
}

func NewRecoveryManager(buf *buffer.FileBuffer, logger zerolog.Logger) *RecoveryManager {
	return &RecoveryManager{
		buffer: buf,
		log:    logger.With().Str("component", "recovery").Logger(),
	}
}

// ReplayAll runs every buffered device through the handler the factory
// provides for it.
func (m *RecoveryManager) ReplayAll(handlerFactory func(deviceCode string) buffer.Handler) error {
	devices, err := m.buffer.ListDevices()
	if err != nil {
		return err
	}
	for _, deviceCode := range devices {
		result, err := m.buffer.Process(deviceCode, handlerFactory(deviceCode))
		if err != nil {
			m.log.Error().Str("device_code", deviceCode).Err(err).Msg("recovery pass failed")
			continue
		}
		m.log.Info().
			Str("device_code", deviceCode).
			Int("processed", result.Processed).
			Int("remaining", result.Remaining).
			Msg("recovery processed")
	}
	return nil
}
