package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDuration_UnmarshalText(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "4s", want: 4 * time.Second},
		{in: "250ms", want: 250 * time.Millisecond},
		{in: "PT4S", want: 4 * time.Second},
		{in: "pt1m30s", want: 90 * time.Second},
		{in: "", want: 0},
		{in: "soon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalText([]byte(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Std())
		})
	}
}

func TestDuration_YAML(t *testing.T) {
	var v struct {
		Interval Duration `yaml:"interval"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("interval: PT10S\n"), &v))
	assert.Equal(t, 10*time.Second, v.Interval.Std())

	out, err := yaml.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, "interval: 10s\n", string(out))
}

func TestLoadYAML(t *testing.T) {
	type file struct {
		Settings Settings `yaml:"settings"`
		Radio    Radio    `yaml:"radio"`
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
settings:
  logLevel: debug
radio:
  broker: localhost:1883
  network: sierra
`), 0o600))

	var cfg file
	require.NoError(t, LoadYAML(path, &cfg))
	assert.Equal(t, slog.LevelDebug, cfg.Settings.LogLevel)
	assert.Equal(t, "sierra", cfg.Radio.Network)
	assert.NoError(t, cfg.Radio.Validate())

	require.NoError(t, os.WriteFile(path, []byte("radio:\n  bogus: 1\n"), 0o600))
	assert.Error(t, LoadYAML(path, &cfg), "unknown keys are rejected")

	assert.Error(t, LoadYAML(filepath.Join(t.TempDir(), "missing.yaml"), &cfg))
}

func TestRadio_Validate(t *testing.T) {
	var cerr *Error

	err := Radio{Network: "x"}.Validate()
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "radio.broker", cerr.Field)

	err = Radio{Broker: "b", Network: "x", QoS: 3}.Validate()
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "radio.qos: must be 0, 1 or 2", err.Error())
}
