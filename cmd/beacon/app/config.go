package app

import (
	"time"

	"github.com/roman-kulish/hiking-logger/internal/config"
)

const (
	// DefaultAddress is the node address the sensor unit broadcasts from
	DefaultAddress uint8 = 9

	defaultInterval        = 4500 * time.Millisecond
	defaultJitter          = 400 * time.Millisecond
	defaultTemperature     = 15.0
	defaultPressure        = 101325
	defaultTemperatureStep = 0.05
	defaultPressureStep    = 15
)

// Config represents the beacon simulator configuration
type Config struct {
	Settings config.Settings `yaml:"settings"`
	Radio    config.Radio    `yaml:"radio"`
	Beacon   BeaconConfig    `yaml:"beacon"`
}

type BeaconConfig struct {
	Address         uint8           `yaml:"address"`
	Interval        config.Duration `yaml:"interval"`
	Jitter          config.Duration `yaml:"jitter"`
	DropProbability float64         `yaml:"dropProbability"`
	Seed            uint64          `yaml:"seed"`

	// Temperature is in degrees Celsius, pressure in Pa
	Temperature     float64 `yaml:"temperature"`
	Pressure        uint32  `yaml:"pressure"`
	TemperatureStep float64 `yaml:"temperatureStep"`
	PressureStep    uint32  `yaml:"pressureStep"`
}

func LoadConfig(path string) (*Config, error) {
	var c Config
	if err := config.LoadYAML(path, &c); err != nil {
		return nil, err
	}

	c.Beacon.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *BeaconConfig) applyDefaults() {
	if c.Address == 0 {
		c.Address = DefaultAddress
	}
	if c.Interval == 0 {
		c.Interval = config.Duration(defaultInterval)
	}
	if c.Jitter == 0 {
		c.Jitter = config.Duration(defaultJitter)
	}
	if c.Temperature == 0 {
		c.Temperature = defaultTemperature
	}
	if c.Pressure == 0 {
		c.Pressure = defaultPressure
	}
	if c.TemperatureStep == 0 {
		c.TemperatureStep = defaultTemperatureStep
	}
	if c.PressureStep == 0 {
		c.PressureStep = defaultPressureStep
	}
}

func (c *Config) Validate() error {
	if err := c.Radio.Validate(); err != nil {
		return err
	}

	b := &c.Beacon
	switch {
	case b.Interval < config.Duration(time.Second):
		return config.NewError("beacon.interval", "must be at least 1s")
	case b.Jitter < 0 || b.Jitter >= b.Interval:
		return config.NewError("beacon.jitter", "must be between 0 and the interval")
	case b.DropProbability < 0 || b.DropProbability >= 1:
		return config.NewError("beacon.dropProbability", "must be in [0, 1)")
	case b.Temperature < minTemperature/100 || b.Temperature > maxTemperature/100:
		return config.NewError("beacon.temperature", "is out of range")
	case b.Pressure < minPressure || b.Pressure > maxPressure:
		return config.NewError("beacon.pressure", "is out of range")
	}
	return nil
}
