package device

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/hiking-logger/internal/beacon"
	"github.com/roman-kulish/hiking-logger/internal/clock"
	"github.com/roman-kulish/hiking-logger/internal/gateway"
	"github.com/roman-kulish/hiking-logger/internal/hikelog"
	"github.com/roman-kulish/hiking-logger/internal/radio"
	"github.com/roman-kulish/hiking-logger/internal/radio/radiotest"
	"github.com/roman-kulish/hiking-logger/internal/remote"
)

// air runs a gateway, a remote and a beacon on a shared medium. Each device
// has its own clock; the clocks advance together one millisecond at a time.
type air struct {
	gatewayClock *clock.Fake
	remoteClock  *clock.Fake
	beacon       *radiotest.Node
	nextBeacon   time.Time

	gateway *Gateway
	remote  *Remote
}

func acquire(t *testing.T, c *clock.Fake, tr *beacon.Tracker, addr uint8) {
	t.Helper()

	m := radiotest.NewMock(c, addr)
	injectBeacons(c, m)
	require.NoError(t, tr.Acquire(context.Background(), m, nil))
	require.Equal(t, beacon.SyncSuccess, tr.State())
}

func newAir(t *testing.T) *air {
	t.Helper()

	start := time.Unix(1000, 0)
	a := air{
		gatewayClock: clock.NewFake(start),
		remoteClock:  clock.NewFake(start),
	}

	medium := radiotest.NewAir()
	a.beacon = medium.Join(9)
	a.gateway = newGateway(t, a.gatewayClock, medium.Join(gateway.Address))
	a.remote = NewRemote(medium.Join(remote.Address), a.remoteClock)

	// both clocks end at start+4600ms with the next beacon 4500ms later
	acquire(t, a.gatewayClock, a.gateway.Tracker, gateway.Address)
	acquire(t, a.remoteClock, a.remote.Tracker, remote.Address)
	a.nextBeacon = a.gatewayClock.Now().Add(4500 * time.Millisecond)

	return &a
}

func (a *air) step(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	a.gatewayClock.Advance(time.Millisecond)
	a.remoteClock.Advance(time.Millisecond)

	if !a.gatewayClock.Now().Before(a.nextBeacon) {
		b := beaconFrame()
		require.NoError(t, a.beacon.Send(ctx, radio.Broadcast, b.Payload, false))
		a.nextBeacon = a.nextBeacon.Add(4500 * time.Millisecond)
	}

	require.NoError(t, a.gateway.Tick(ctx))
	require.NoError(t, a.remote.Tick(ctx))
}

// runUntil steps until cond holds or the limit passes
func (a *air) runUntil(t *testing.T, limit time.Duration, cond func() bool) {
	t.Helper()

	for i := time.Duration(0); i < limit; i += time.Millisecond {
		a.step(t)
		if cond() {
			return
		}
	}
	t.Fatalf("condition not met within %s", limit)
}

func TestAir_RemoteStartsAndStopsSession(t *testing.T) {
	a := newAir(t)

	// the remote asks for the log state after the next beacon, then fetches
	// both locations
	a.runUntil(t, 10*time.Second, func() bool {
		return a.remote.Log.GetLogState() == hikelog.NotRunning &&
			a.remote.Log.LocLink(true).Name != "" &&
			a.remote.Log.LocLink(false).Name != ""
	})
	require.Equal(t, "LONE PINE", a.remote.Log.LocLink(true).Name)
	require.Equal(t, "MT WHITNEY", a.remote.Log.LocLink(false).Name)
	require.Equal(t, a.gateway.Log.StartingLocIndex(), a.remote.Log.LocIndex(true))

	a.remote.Press(ButtonRight)
	a.runUntil(t, 10*time.Second, func() bool {
		return a.remote.Log.GetLogState() == hikelog.Running
	})
	require.Equal(t, hikelog.Running, a.gateway.Log.GetLogState())
	require.Equal(t, a.gateway.Log.StartTime(), a.remote.Log.StartTime())

	a.remote.Press(ButtonRight)
	a.runUntil(t, 10*time.Second, func() bool {
		return a.remote.Log.GetLogState() == hikelog.Stopped
	})
	require.Equal(t, hikelog.Stopped, a.gateway.Log.GetLogState())

	a.remote.Press(ButtonLeft)
	a.runUntil(t, 10*time.Second, func() bool {
		return a.remote.Log.GetLogState() == hikelog.NotRunning
	})
	require.False(t, a.gateway.Log.Active())
	require.Zero(t, a.remote.Engine.PacketTimeouts())
}
