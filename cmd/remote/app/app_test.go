package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/hiking-logger/internal/beacon"
	"github.com/roman-kulish/hiking-logger/internal/clock"
	"github.com/roman-kulish/hiking-logger/internal/device"
	"github.com/roman-kulish/hiking-logger/internal/radio/radiotest"
	"github.com/roman-kulish/hiking-logger/internal/remote"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "remote.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	c, err := LoadConfig(writeConfig(t, `
radio:
  broker: localhost:1883
  network: sierra
remote:
  displayTimeout: PT1M
  beaconPolicy: resync
`))
	require.NoError(t, err)

	assert.Equal(t, time.Minute, c.Remote.DisplayTimeout.Std())
	assert.Equal(t, time.Millisecond, c.Remote.Tick.Std())
	assert.Equal(t, slog.LevelInfo, c.Settings.LogLevel)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"no broker":        "radio:\n  network: n\n",
		"bad policy":       "radio:\n  broker: b:1\n  network: n\nremote:\n  beaconPolicy: maybe\n",
		"negative timeout": "radio:\n  broker: b:1\n  network: n\nremote:\n  displayTimeout: -1s\n",
		"unknown field":    "radio:\n  broker: b:1\n  network: n\nremote:\n  colour: red\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func newRemote(t *testing.T, config *Config, logger *slog.Logger) (*device.Remote, *radiotest.Mock) {
	t.Helper()
	fake := clock.NewFake(time.Unix(1000, 0))
	mock := radiotest.NewMock(fake, remote.Address)
	return device.NewRemote(mock, fake, deviceOptions(config, logger)...), mock
}

func TestDeviceOptions(t *testing.T) {
	config := &Config{Remote: RemoteConfig{BeaconPolicy: "resync", DisplayTimeout: 0}}
	rm, _ := newRemote(t, config, slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.Equal(t, beacon.PolicyResync, rm.Tracker.Policy())
	assert.True(t, rm.DisplayOn())
}

func TestHandleCommand(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	rm, _ := newRemote(t, &Config{}, logger)

	handleCommand("  ", rm, logger)
	assert.Empty(t, buf.String())

	handleCommand("jump", rm, logger)
	assert.Contains(t, buf.String(), "unknown command")

	buf.Reset()
	handleCommand("STATUS", rm, logger)
	assert.NotContains(t, buf.String(), "msg=status", "logged by the loop")

	require.NoError(t, rm.Tick(context.Background()))
	assert.Contains(t, buf.String(), "msg=status")
	assert.Contains(t, buf.String(), "state=")
}

func TestReadCommands_EndOfInput(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rm, _ := newRemote(t, &Config{}, logger)

	done := make(chan struct{})
	go func() {
		defer close(done)
		readCommands(context.Background(), strings.NewReader("sync\nstatus\n"), rm, logger)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reader did not stop at end of input")
	}
}

func TestReadCommands_Cancelled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rm, _ := newRemote(t, &Config{}, logger)

	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		readCommands(ctx, pr, rm, logger)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reader did not stop on cancel")
	}
}
