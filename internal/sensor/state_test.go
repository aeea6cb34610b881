package sensor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/hiking-logger/internal/clock"
)

func TestState_Set(t *testing.T) {
	c := clock.NewFake(time.Unix(1000, 0))
	s := New(c)
	require.False(t, s.IsValid())

	assert.Zero(t, s.Set(2150, 101325))
	assert.True(t, s.IsValid())
	assert.True(t, s.TemperatureChanged())
	assert.True(t, s.PressureChanged())

	assert.Equal(t, int32(2150), s.Temperature())
	assert.Equal(t, uint32(101325), s.Pressure())
	assert.False(t, s.TemperatureChanged())
	assert.False(t, s.PressureChanged())

	c.Advance(4500 * time.Millisecond)
	assert.Equal(t, 4*time.Second, s.Set(2150, 101325), "pressure unchanged since the first reading")
	assert.False(t, s.PressureChanged())

	s.MakeInvalid()
	assert.False(t, s.IsValid())
	s.Set(2150, 101320)
	assert.True(t, s.IsValid())

	s.Set(0, 0)
	assert.False(t, s.IsValid())
}

func TestState_Altitude(t *testing.T) {
	s := New(clock.NewFake(time.Unix(0, 0)), WithMetricInput())
	s.Set(1500, 90000)
	s.SetStartingAltitude(1000)
	s.SetEndingAltitude(2000)

	assert.True(t, s.Ascending())
	assert.InDelta(t, 1000, s.CurrentAltitude(), 0.5)
	assert.InDelta(t, 0.5, s.AltitudePercent(1500), 1e-9)
	assert.Zero(t, s.AltitudePercent(0))
}

func TestState_FeetInput(t *testing.T) {
	s := New(clock.NewFake(time.Unix(0, 0)))
	s.SetEndingAltitude(1000)
	assert.InDelta(t, 304.8, s.EndingAltitude(), 1e-9)
}

func TestState_Milestones(t *testing.T) {
	s := New(clock.NewFake(time.Unix(0, 0)), WithMetricInput())
	assert.True(t, s.PassedAllMilestones(), "disarmed until reset")

	s.Set(2000, 101325)
	s.SetStartingAltitude(0)
	s.SetEndingAltitude(1000)
	s.ResetMilestone(25)
	require.False(t, s.PassedAllMilestones())

	assert.Zero(t, s.PassedMilestone())

	// roughly 300 m
	s.Set(2000, 97800)
	assert.Equal(t, uint8(25), s.PassedMilestone())
	assert.Zero(t, s.PassedMilestone())

	// roughly 970 m
	s.Set(2000, 90200)
	assert.Equal(t, uint8(50), s.PassedMilestone())
	assert.Equal(t, uint8(75), s.PassedMilestone())
	assert.Zero(t, s.PassedMilestone())
	assert.True(t, s.PassedAllMilestones())
}

func TestState_DescendingMilestones(t *testing.T) {
	s := New(clock.NewFake(time.Unix(0, 0)), WithMetricInput())
	s.Set(2000, 90000)
	s.SetStartingAltitude(1000)
	s.SetEndingAltitude(0)
	s.ResetMilestone(50)

	assert.False(t, s.Ascending())
	s.Set(2000, 96000)
	assert.Equal(t, uint8(50), s.PassedMilestone())
	assert.True(t, s.PassedAllMilestones())
}

func TestBarometric_RoundTrip(t *testing.T) {
	sea := SeaLevelForAltitude(1234, 870)
	assert.InDelta(t, 870, PressureForAltitude(1234, sea), 1e-6)
	assert.Zero(t, Altitude(0, 870))
}
