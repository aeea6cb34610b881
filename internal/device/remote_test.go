package device

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/hiking-logger/internal/beacon"
	"github.com/roman-kulish/hiking-logger/internal/clock"
	"github.com/roman-kulish/hiking-logger/internal/packet"
	"github.com/roman-kulish/hiking-logger/internal/radio/radiotest"
	"github.com/roman-kulish/hiking-logger/internal/remote"
)

func TestParseButton(t *testing.T) {
	tests := []struct {
		in   string
		want Button
	}{
		{"left", ButtonLeft},
		{"Right", ButtonRight},
		{" start ", ButtonRight},
		{"stop", ButtonRight},
		{"swap", ButtonLeft},
		{"end", ButtonLeft},
		{"loc", ButtonLocations},
		{"end-next", ButtonEndNext},
		{"start-prev", ButtonStartPrev},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseButton(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseButton("middle")
	assert.Error(t, err)
	assert.Equal(t, "button(42)", Button(42).String())
}

func TestRemote_PressSendsRequest(t *testing.T) {
	ctx := context.Background()
	c := clock.NewFake(time.Unix(1000, 0))
	m := radiotest.NewMock(c, remote.Address)
	rm := NewRemote(m, c)

	injectBeacons(c, m)
	require.NoError(t, rm.Tick(ctx))
	require.Equal(t, beacon.SyncSuccess, rm.Engine.SyncState())

	m.ResetSent()
	rm.Press(ButtonSync)
	require.NoError(t, rm.Tick(ctx))

	sent := m.Sent()
	require.Len(t, sent, 1)
	p, err := packet.Decode(sent[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, packet.Request{Kind: packet.IDSyncBeacon}, p)
}

func TestRemote_IgnoredPress(t *testing.T) {
	c := clock.NewFake(time.Unix(1000, 0))
	m := radiotest.NewMock(c, remote.Address)
	rm := NewRemote(m, c)

	injectBeacons(c, m)
	require.NoError(t, rm.Tick(context.Background()))

	rm.Press(ButtonRight)
	rm.Press(ButtonStartNext)
	require.NoError(t, rm.Tick(context.Background()))
	assert.Zero(t, rm.Engine.PacketsInQueue(), "nothing to start or step before the first sync reply")
}

func TestRemote_DisplayTimeout(t *testing.T) {
	c := clock.NewFake(time.Unix(1000, 0))
	rm := NewRemote(radiotest.NewMock(c, remote.Address), c, WithDisplayTimeout(time.Minute))

	assert.True(t, rm.DisplayOn())

	c.Advance(2 * time.Minute)
	assert.False(t, rm.DisplayOn())

	rm.Press(ButtonLocations)
	require.NoError(t, rm.Tick(context.Background()))
	assert.True(t, rm.DisplayOn(), "a press turns the display back on")
}

func TestRemote_StatusLoggedByTick(t *testing.T) {
	ctx := context.Background()
	c := clock.NewFake(time.Unix(1000, 0))
	m := radiotest.NewMock(c, remote.Address)

	var buf bytes.Buffer
	rm := NewRemote(m, c, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	injectBeacons(c, m)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			rm.RequestStatus()
		}
	}()
	for i := 0; i < 5; i++ {
		rm.Press(ButtonSync)
		require.NoError(t, rm.Tick(ctx))
	}
	wg.Wait()

	buf.Reset()
	rm.RequestStatus()
	rm.RequestStatus()
	require.NoError(t, rm.Tick(ctx))
	assert.Equal(t, 1, strings.Count(buf.String(), "msg=status"), "requests between ticks coalesce")
	assert.Contains(t, buf.String(), "queued=")

	buf.Reset()
	require.NoError(t, rm.Tick(ctx))
	assert.NotContains(t, buf.String(), "msg=status")
}
