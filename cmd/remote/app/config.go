package app

import (
	"time"

	"github.com/roman-kulish/hiking-logger/internal/beacon"
	"github.com/roman-kulish/hiking-logger/internal/config"
)

const defaultTick = time.Millisecond

// Config represents the remote configuration
type Config struct {
	Settings config.Settings `yaml:"settings"`
	Radio    config.Radio    `yaml:"radio"`
	Remote   RemoteConfig    `yaml:"remote"`
}

type RemoteConfig struct {
	Tick           config.Duration `yaml:"tick"`
	DisplayTimeout config.Duration `yaml:"displayTimeout"`
	MetricInput    bool            `yaml:"metricInput"`
	BeaconPolicy   string          `yaml:"beaconPolicy"`
}

func LoadConfig(path string) (*Config, error) {
	var c Config
	if err := config.LoadYAML(path, &c); err != nil {
		return nil, err
	}

	if c.Remote.Tick == 0 {
		c.Remote.Tick = config.Duration(defaultTick)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if err := c.Radio.Validate(); err != nil {
		return err
	}
	if _, err := beacon.ParsePolicy(c.Remote.BeaconPolicy); err != nil {
		return config.NewError("remote.beaconPolicy", err.Error())
	}
	if c.Remote.DisplayTimeout < 0 {
		return config.NewError("remote.displayTimeout", "must not be negative")
	}
	return nil
}
