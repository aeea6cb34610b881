package remote

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roman-kulish/hiking-logger/internal/clock"
	"github.com/roman-kulish/hiking-logger/internal/hikelog"
	"github.com/roman-kulish/hiking-logger/internal/locations"
	"github.com/roman-kulish/hiking-logger/internal/sensor"
)

func newMirror() (*HikeLog, *clock.Fake, *sensor.State) {
	c := clock.NewFake(time.Unix(1000, 0))
	s := sensor.New(c)
	s.Set(2000, 101325)
	return NewHikeLog(s, clock.NewWall(c)), c, s
}

func link(name string, elevation uint16) locations.Link {
	return locations.Link{Location: locations.Location{Name: name, Elevation: elevation}}
}

func TestHikeLog_State(t *testing.T) {
	h, c, _ := newMirror()
	assert.Equal(t, hikelog.CantRun, h.GetLogState())

	h.Sync(0, 0, 1, 2, false)
	assert.Equal(t, hikelog.NotRunning, h.GetLogState())
	assert.Zero(t, h.ElapsedTime())

	h.Sync(990, 0, 1, 2, false)
	assert.Equal(t, hikelog.Running, h.GetLogState())
	assert.Equal(t, uint32(10), h.ElapsedTime())

	c.Advance(5 * time.Second)
	assert.Equal(t, uint32(15), h.ElapsedTime())

	h.Sync(990, 1001, 1, 2, true)
	assert.Equal(t, hikelog.Stopped, h.GetLogState())
	assert.Equal(t, uint32(11), h.ElapsedTime())
	assert.True(t, h.IsFull())
}

func TestHikeLog_SyncInvalidatesChangedLocations(t *testing.T) {
	h, _, _ := newMirror()

	h.Sync(0, 0, 1, 2, false)
	assert.True(t, h.StartingLocNeedsUpdate())
	assert.True(t, h.EndingLocNeedsUpdate())

	h.UpdateLoc(1, link("LONE PINE", 3727))
	h.UpdateLoc(2, link("MT WHITNEY", 14505))
	assert.False(t, h.StartingLocNeedsUpdate())
	assert.False(t, h.EndingLocNeedsUpdate())

	h.Sync(0, 0, 2, 1, false)
	assert.False(t, h.StartingLocNeedsUpdate(), "swap keeps both locations")
	assert.Equal(t, "MT WHITNEY", h.LocLink(true).Name)
	assert.Equal(t, "LONE PINE", h.LocLink(false).Name)

	h.Sync(0, 0, 1, 3, false)
	assert.Equal(t, uint16(1), h.LocIndex(true), "start moved to the old end")
	assert.Equal(t, "LONE PINE", h.LocLink(true).Name)
	assert.Equal(t, uint16(3), h.LocIndex(false))
	assert.True(t, h.EndingLocNeedsUpdate())

	h.Sync(0, 0, 4, 3, false)
	assert.True(t, h.StartingLocNeedsUpdate())
}

func TestHikeLog_UpdateLocSetsAltitudes(t *testing.T) {
	h, _, s := newMirror()

	h.Sync(0, 0, 1, 1, false)
	h.UpdateLoc(1, link("BADWATER", 1000))

	assert.Equal(t, "BADWATER", h.LocLink(true).Name)
	assert.Equal(t, "BADWATER", h.LocLink(false).Name)
	assert.InDelta(t, 304.8, s.StartingAltitude(), 0.01)
	assert.InDelta(t, 304.8, s.EndingAltitude(), 0.01)
}
