package worker

import (
	"time"

	"siwatt-backend/internal/models"
)

// MinuteAggregate is a finalized one-minute bucket: field means over
// the minute's samples plus the first and last cumulative energy
// readings. BucketHour is the wall-clock hour the bucket belongs to,
// used by the pipeline's hour-rollover check.
type MinuteAggregate struct {
	MinuteStart time.Time
	Averages    models.Averages
	EnergyFirst float64
	EnergyLast  float64
	BucketHour  time.Time
}

// MinuteAggregator accumulates samples into the current wall-clock
// minute. Add returns the finalized previous bucket exactly when a
// sample crosses into a new minute, nil otherwise.
type MinuteAggregator struct {
	minuteStart time.Time
	count       int
	sumVoltage  float64
	sumCurrent  float64
	sumPower    float64
	sumFreq     float64
	sumPF       float64
	energyFirst float64
	energyLast  float64
	open        bool
}

func NewMinuteAggregator() *MinuteAggregator {
	return &MinuteAggregator{}
}

func (a *MinuteAggregator) Add(s models.Sample, dt time.Time) *MinuteAggregate {
	minuteStart := FloorMinute(dt)

	if !a.open {
		a.startBucket(minuteStart, s)
		return nil
	}

	if minuteStart.Equal(a.minuteStart) {
		a.accumulate(s)
		return nil
	}

	aggregate := a.finalize()
	a.startBucket(minuteStart, s)
	return aggregate
}

func (a *MinuteAggregator) startBucket(minuteStart time.Time, s models.Sample) {
	a.minuteStart = minuteStart
	a.count = 0
	a.sumVoltage, a.sumCurrent, a.sumPower, a.sumFreq, a.sumPF = 0, 0, 0, 0, 0
	a.energyFirst = s.Energy
	a.energyLast = s.Energy
	a.open = true
	a.accumulate(s)
}

func (a *MinuteAggregator) accumulate(s models.Sample) {
	a.count++
	a.sumVoltage += s.Voltage
	a.sumCurrent += s.Current
	a.sumPower += s.Power
	a.sumFreq += s.Frequency
	a.sumPF += s.PF
	a.energyLast = s.Energy
}

func (a *MinuteAggregator) finalize() *MinuteAggregate {
	if a.count == 0 {
		return nil
	}
	n := float64(a.count)
	return &MinuteAggregate{
		MinuteStart: a.minuteStart,
		Averages: models.Averages{
			Voltage:   a.sumVoltage / n,
			Current:   a.sumCurrent / n,
			Power:     a.sumPower / n,
			Frequency: a.sumFreq / n,
			PF:        a.sumPF / n,
		},
		EnergyFirst: a.energyFirst,
		EnergyLast:  a.energyLast,
		BucketHour:  FloorHour(a.minuteStart),
	}
}
