package mqttradio

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/hiking-logger/internal/radio"
)

func freeAddress(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func dialPair(t *testing.T) (*Radio, *Radio) {
	t.Helper()

	address := freeAddress(t)
	broker, err := StartBroker(address)
	require.NoError(t, err)
	t.Cleanup(func() { _ = broker.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	gateway, err := Dial(ctx, Config{Broker: address, Network: "test", Address: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = gateway.Close() })

	remote, err := Dial(ctx, Config{Broker: address, Network: "test", Address: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = remote.Close() })

	return gateway, remote
}

func TestRadio_SendReceive(t *testing.T) {
	ctx := context.Background()
	gateway, remote := dialPair(t)

	_, ok := gateway.Receive()
	require.False(t, ok)
	require.Equal(t, radio.ModeRX, gateway.Mode())

	require.NoError(t, remote.Send(ctx, 1, []byte{0x04, 0x00}, true))
	require.Eventually(t, gateway.HasData, 2*time.Second, 5*time.Millisecond)

	f, ok := gateway.Receive()
	require.True(t, ok)
	assert.Equal(t, uint8(2), f.From)
	assert.Equal(t, uint8(1), f.To)
	assert.True(t, f.AckRequested)
	assert.Equal(t, []byte{0x04, 0x00}, f.Payload)
	assert.Equal(t, radio.ModeStandby, gateway.Mode())

	_, _ = remote.Receive()
	require.NoError(t, gateway.SendAck(ctx, f, []byte{0x05}))
	require.Eventually(t, remote.HasData, 2*time.Second, 5*time.Millisecond)

	reply, ok := remote.Receive()
	require.True(t, ok)
	assert.True(t, reply.IsAck)
	assert.Equal(t, uint8(1), reply.From)
}

func TestRadio_IgnoresWhenNotListening(t *testing.T) {
	ctx := context.Background()
	gateway, remote := dialPair(t)

	gateway.Sleep()
	require.NoError(t, remote.Send(ctx, 1, []byte{1}, false))
	time.Sleep(100 * time.Millisecond)

	_, ok := gateway.Receive()
	assert.False(t, ok, "frames sent while asleep are lost")

	require.NoError(t, remote.Send(ctx, 3, []byte{2}, false))
	time.Sleep(100 * time.Millisecond)
	assert.False(t, gateway.HasData(), "frame addressed to another node")

	require.NoError(t, remote.Send(ctx, radio.Broadcast, []byte{3}, false))
	require.Eventually(t, gateway.HasData, 2*time.Second, 5*time.Millisecond)
}

func TestEnvelope(t *testing.T) {
	f := radio.Frame{From: 1, To: 255, AckRequested: true, IsAck: true, Payload: []byte{9, 8}}

	b := encodeEnvelope(f)
	assert.Equal(t, []byte{1, 255, 3, 9, 8}, b)

	got, err := decodeEnvelope(b)
	require.NoError(t, err)
	assert.Equal(t, f, got)

	_, err = decodeEnvelope([]byte{1, 2})
	assert.ErrorIs(t, err, ErrBadEnvelope)
}
