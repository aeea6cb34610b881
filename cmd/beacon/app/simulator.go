package app

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/roman-kulish/hiking-logger/internal/packet"
)

// Limits of the BMP280 the beacon carries
const (
	minTemperature = -4000 // hundredths of a degree
	maxTemperature = 8500
	minPressure    = 30000 // Pa
	maxPressure    = 110000
)

// Simulator produces the readings and timing of a drifting sensor unit
type Simulator struct {
	rnd *rand.Rand

	interval time.Duration
	jitter   time.Duration
	drop     float64

	temperature     int32
	pressure        uint32
	temperatureStep int32
	pressureStep    uint32
}

func NewSimulator(cfg BeaconConfig) *Simulator {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	return &Simulator{
		rnd:             rand.New(rand.NewPCG(seed, seed>>1^0x9E3779B97F4A7C15)),
		interval:        cfg.Interval.Std(),
		jitter:          cfg.Jitter.Std(),
		drop:            cfg.DropProbability,
		temperature:     int32(math.Round(cfg.Temperature * 100)),
		pressure:        cfg.Pressure,
		temperatureStep: max(int32(math.Round(cfg.TemperatureStep*100)), 1),
		pressureStep:    max(cfg.PressureStep, 1),
	}
}

// Next advances the walk by one broadcast. It returns the reading, the delay
// until the following broadcast and whether this one should be sent at all.
func (s *Simulator) Next() (packet.Beacon, time.Duration, bool) {
	s.temperature = clamp(s.temperature+s.rnd.Int32N(2*s.temperatureStep+1)-s.temperatureStep,
		minTemperature, maxTemperature)

	step := int64(s.pressureStep)
	p := int64(s.pressure) + s.rnd.Int64N(2*step+1) - step
	s.pressure = uint32(clamp(p, minPressure, maxPressure))

	wait := s.interval
	if s.jitter > 0 {
		wait += time.Duration(s.rnd.Int64N(int64(2*s.jitter)+1)) - s.jitter
	}

	send := s.drop == 0 || s.rnd.Float64() >= s.drop

	return packet.Beacon{Temperature: s.temperature, Pressure: s.pressure}, wait, send
}

func clamp[T int32 | int64](v, lo, hi T) T {
	return min(max(v, lo), hi)
}
