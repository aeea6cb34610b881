package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/hiking-logger/internal/beacon"
	"github.com/roman-kulish/hiking-logger/internal/bytestream"
	"github.com/roman-kulish/hiking-logger/internal/clock"
	"github.com/roman-kulish/hiking-logger/internal/gateway"
	"github.com/roman-kulish/hiking-logger/internal/hikelog"
	"github.com/roman-kulish/hiking-logger/internal/locations"
	"github.com/roman-kulish/hiking-logger/internal/packet"
	"github.com/roman-kulish/hiking-logger/internal/radio"
	"github.com/roman-kulish/hiking-logger/internal/radio/radiotest"
)

type milestones []uint8

func (m *milestones) Milestone(percent uint8) {
	*m = append(*m, percent)
}

type archiver struct {
	calls int
	err   error
}

func (a *archiver) Archive(_ context.Context, _ *hikelog.Log) error {
	a.calls++
	return a.err
}

func beaconFrame() radio.Frame {
	return radio.Frame{
		From:    9,
		To:      radio.Broadcast,
		Payload: packet.Marshal(packet.Beacon{Temperature: 2000, Pressure: 101325}),
	}
}

// injectBeacons schedules two beacons 4500ms apart on m
func injectBeacons(c clock.Clock, m *radiotest.Mock) {
	m.Inject(c.Now().Add(100*time.Millisecond), beaconFrame())
	m.Inject(c.Now().Add(4600*time.Millisecond), beaconFrame())
}

// newGateway returns a gateway with a hike from Lone Pine to Mt Whitney set
// up but not started.
func newGateway(t *testing.T, c clock.Clock, r radio.Radio, options ...Option) *Gateway {
	t.Helper()

	g, err := NewGateway(r, c, Stores{
		Log:       bytestream.NewMemory(4096),
		Settings:  bytestream.NewErased(hikelog.NVRAMSize),
		Locations: bytestream.NewMemory(8 * locations.LinkSize),
	}, options...)
	require.NoError(t, err)

	start, err := g.Locations.Add(locations.Location{Name: "LONE PINE", Elevation: 3727})
	require.NoError(t, err)
	end, err := g.Locations.Add(locations.Location{Name: "MT WHITNEY", Elevation: 14505})
	require.NoError(t, err)

	_, err = g.Log.SetStartingLocIndex(start)
	require.NoError(t, err)
	_, err = g.Log.SetEndingLocIndex(end)
	require.NoError(t, err)

	return g
}

func sessions(t *testing.T, l *hikelog.Log) int {
	t.Helper()

	var n int
	require.NoError(t, l.Walk(func(hikelog.Session) error {
		n++
		return nil
	}))
	return n
}

func TestGateway_ResyncFlag(t *testing.T) {
	ctx := context.Background()
	c := clock.NewFake(time.Unix(1000, 0))
	m := radiotest.NewMock(c, gateway.Address)
	g := newGateway(t, c, m)

	require.NoError(t, g.Tick(ctx))
	assert.Equal(t, beacon.SyncError, g.Engine.SyncState())

	require.NoError(t, g.Tick(ctx))
	assert.Equal(t, beacon.SyncError, g.Engine.SyncState(), "no retry until asked")

	injectBeacons(c, m)
	g.Resync.Set()
	require.NoError(t, g.Tick(ctx))
	assert.Equal(t, beacon.SyncSuccess, g.Engine.SyncState())
	assert.Equal(t, 4490*time.Millisecond, g.Tracker.Period())
}

func TestGateway_MilestoneNotification(t *testing.T) {
	ctx := context.Background()
	c := clock.NewFake(time.Unix(1000, 0))
	m := radiotest.NewMock(c, gateway.Address)

	var passed milestones
	g := newGateway(t, c, m, WithNotifier(&passed))

	injectBeacons(c, m)
	require.NoError(t, g.Tick(ctx))
	require.Equal(t, beacon.SyncSuccess, g.Engine.SyncState())

	require.NoError(t, g.Log.StartLog(0))
	require.NoError(t, g.Tick(ctx))
	assert.Empty(t, passed)

	// well above the summit
	g.Sensor.Set(2000, 50000)
	require.NoError(t, g.Tick(ctx))
	require.NoError(t, g.Tick(ctx))
	assert.Equal(t, milestones{25, 50}, passed)
}

func TestGateway_ArchiveWhenIdle(t *testing.T) {
	ctx := context.Background()
	c := clock.NewFake(time.Unix(1000, 0))
	m := radiotest.NewMock(c, gateway.Address)

	var arch archiver
	g := newGateway(t, c, m, WithArchiver(&arch), WithResetAfterArchive())

	injectBeacons(c, m)
	require.NoError(t, g.Tick(ctx))
	require.NoError(t, g.Log.StartLog(0))
	require.NoError(t, g.Tick(ctx))

	g.CardInserted.Set()
	require.NoError(t, g.Tick(ctx))
	assert.Zero(t, arch.calls, "not archived during a session")

	c.Advance(time.Minute)
	_, err := g.Log.EndLog()
	require.NoError(t, err)
	require.Equal(t, 1, sessions(t, g.Log))

	g.CardInserted.Set()
	require.NoError(t, g.Tick(ctx))
	assert.Equal(t, 1, arch.calls)

	g.CardRemoved.Set()
	require.NoError(t, g.Tick(ctx))
	assert.Zero(t, sessions(t, g.Log), "log reset once the card is out")
}

func TestGateway_FailedArchiveKeepsLog(t *testing.T) {
	ctx := context.Background()
	c := clock.NewFake(time.Unix(1000, 0))
	m := radiotest.NewMock(c, gateway.Address)

	arch := archiver{err: errors.New("card full")}
	g := newGateway(t, c, m, WithArchiver(&arch), WithResetAfterArchive())

	injectBeacons(c, m)
	require.NoError(t, g.Tick(ctx))
	require.NoError(t, g.Log.StartLog(0))
	require.NoError(t, g.Tick(ctx))
	_, err := g.Log.EndLog()
	require.NoError(t, err)

	g.CardInserted.Set()
	require.NoError(t, g.Tick(ctx))
	g.CardRemoved.Set()
	require.NoError(t, g.Tick(ctx))

	assert.Equal(t, 1, arch.calls)
	assert.Equal(t, 1, sessions(t, g.Log))
}

func TestGateway_TickCancelled(t *testing.T) {
	c := clock.NewFake(time.Unix(1000, 0))
	g := newGateway(t, c, radiotest.NewMock(c, gateway.Address))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, g.Tick(ctx), context.Canceled)
	assert.NoError(t, g.Run(ctx, time.Millisecond))
}
