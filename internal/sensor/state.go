// Package sensor holds the latest temperature and pressure reported by the
// beacon together with the altitude reference points of the current hike.
package sensor

import (
	"time"

	"github.com/roman-kulish/hiking-logger/internal/clock"
)

const feetToMeters = 0.3048

// Option configures a State
type Option func(s *State)

// WithMetricInput makes elevations passed to the altitude setters meters
// instead of feet.
func WithMetricInput() Option {
	return func(s *State) {
		s.metric = true
	}
}

// State is the shared sensor reading. Temperature is in hundredths of a
// degree Celsius, pressure in pascals. It is owned by the control loop and is
// not safe for concurrent use.
type State struct {
	clock clock.Clock

	temperature        int32
	pressure           uint32
	temperatureChanged bool
	pressureChanged    bool
	valid              bool
	pressureChangedAt  time.Time
	metric             bool

	seaLevel         float64 // hPa
	startingAltitude float64 // meters
	endingAltitude   float64 // meters

	milestonePressure  uint32
	milestonePercent   uint8
	milestoneIncrement uint8
}

func New(c clock.Clock, options ...Option) *State {
	s := &State{
		clock:            c,
		milestonePercent: 100,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Set stores a new reading and returns how long the pressure has been
// unchanged, zero when this reading changed it.
func (s *State) Set(temperature int32, pressure uint32) time.Duration {
	if !s.temperatureChanged {
		s.temperatureChanged = s.temperature != temperature
	}
	s.temperature = temperature

	changed := s.pressure != pressure
	if changed {
		s.pressureChanged = true
	}
	s.pressure = pressure
	s.valid = pressure != 0

	now := s.clock.Now()
	if changed {
		s.pressureChangedAt = now
		return 0
	}
	return now.Sub(s.pressureChangedAt).Truncate(time.Second)
}

// MakeInvalid marks the reading stale after the beacon was lost. The next Set
// with a non zero pressure makes it valid again.
func (s *State) MakeInvalid() {
	s.valid = false
}

func (s *State) IsValid() bool {
	return s.valid
}

// SetChanged forces both change flags, typically to redraw after a mode
// switch.
func (s *State) SetChanged() {
	s.temperatureChanged = true
	s.pressureChanged = true
}

func (s *State) TemperatureChanged() bool {
	return s.temperatureChanged
}

func (s *State) PressureChanged() bool {
	return s.pressureChanged
}

// Temperature returns the temperature and clears its change flag
func (s *State) Temperature() int32 {
	s.temperatureChanged = false
	return s.temperature
}

// Pressure returns the pressure and clears its change flag
func (s *State) Pressure() uint32 {
	s.pressureChanged = false
	return s.pressure
}

func (s *State) PeekTemperature() int32 {
	return s.temperature
}

func (s *State) PeekPressure() uint32 {
	return s.pressure
}

func (s *State) PressureChangedAt() time.Time {
	return s.pressureChangedAt
}

func (s *State) toMeters(elevation float64) float64 {
	if s.metric {
		return elevation
	}
	return elevation * feetToMeters
}

// SetStartingAltitude sets the altitude of the start waypoint and derives the
// sea level pressure from the current reading.
func (s *State) SetStartingAltitude(elevation float64) {
	s.startingAltitude = s.toMeters(elevation)
	s.seaLevel = SeaLevelForAltitude(s.startingAltitude, float64(s.pressure)/100)
}

func (s *State) SetEndingAltitude(elevation float64) {
	s.endingAltitude = s.toMeters(elevation)
}

// StartingAltitude returns the start altitude in meters
func (s *State) StartingAltitude() float64 {
	return s.startingAltitude
}

// EndingAltitude returns the end altitude in meters
func (s *State) EndingAltitude() float64 {
	return s.endingAltitude
}

func (s *State) Ascending() bool {
	return s.endingAltitude > s.startingAltitude
}

// CurrentAltitude returns the altitude in meters for the current pressure
// relative to the sea level pressure fixed by SetStartingAltitude.
func (s *State) CurrentAltitude() float64 {
	return Altitude(s.seaLevel, float64(s.pressure)/100)
}

// AltitudePercent returns how far altitude lies between the start and end
// altitudes, 0 at the start and 1 at the end.
func (s *State) AltitudePercent(altitude float64) float64 {
	if altitude == 0 {
		return 0
	}
	gain := s.endingAltitude - s.startingAltitude
	if gain == 0 {
		return 0
	}
	return (altitude - s.startingAltitude) / gain
}

// ResetMilestone arms milestone tracking every incrementPercent of the
// elevation gain. Call it after both altitudes are set. A value of 100 or more
// disarms tracking.
func (s *State) ResetMilestone(incrementPercent uint8) {
	s.milestonePercent = incrementPercent
	s.milestoneIncrement = incrementPercent
	s.setMilestonePressure()
}

// PassedMilestone returns the milestone percent just passed, or 0, and arms
// the next milestone.
func (s *State) PassedMilestone() uint8 {
	if s.milestonePercent >= 100 {
		return 0
	}

	var passed bool
	if s.Ascending() {
		passed = s.pressure < s.milestonePressure
	} else {
		passed = s.pressure > s.milestonePressure
	}
	if !passed {
		return 0
	}

	percent := s.milestonePercent
	s.milestonePercent += s.milestoneIncrement
	s.setMilestonePressure()
	return percent
}

func (s *State) PassedAllMilestones() bool {
	return s.milestonePercent >= 100
}

func (s *State) setMilestonePressure() {
	if s.milestonePercent >= 100 {
		return
	}
	gain := s.endingAltitude - s.startingAltitude
	altitude := s.startingAltitude + gain*float64(s.milestonePercent)/100
	s.milestonePressure = uint32(PressureForAltitude(altitude, s.seaLevel) * 100)
}
