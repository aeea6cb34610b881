package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/roman-kulish/hiking-logger/internal/beacon"
	"github.com/roman-kulish/hiking-logger/internal/config"
	"github.com/roman-kulish/hiking-logger/internal/locations"
)

const (
	defaultLogSize       = 256 << 10
	defaultLocationSlots = 200
	defaultTick          = time.Millisecond
	dataDir              = "data"
)

// Config represents the gateway configuration
type Config struct {
	Settings  config.Settings  `yaml:"settings"`
	Radio     config.Radio     `yaml:"radio"`
	Broker    BrokerConfig     `yaml:"broker"`
	Storage   StorageConfig    `yaml:"storage"`
	Logging   LoggingConfig    `yaml:"logging"`
	Archive   ArchiveConfig    `yaml:"archive"`
	Locations []LocationConfig `yaml:"locations"`
	Hike      HikeConfig       `yaml:"hike"`
}

// BrokerConfig runs an embedded MQTT broker for the air
type BrokerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// StorageConfig sizes the files standing in for the device's memories
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory"`
	LogSize       int64  `yaml:"logSize"`
	LocationSlots int    `yaml:"locationSlots"`
}

type LoggingConfig struct {
	Interval     config.Duration `yaml:"interval"`
	Tick         config.Duration `yaml:"tick"`
	MetricInput  bool            `yaml:"metricInput"`
	DisplayOn    bool            `yaml:"displayOn"`
	BeaconPolicy string          `yaml:"beaconPolicy"`
}

// ArchiveConfig describes the removable card and the session catalogue
type ArchiveConfig struct {
	CardDirectory     string `yaml:"cardDirectory"`
	Catalogue         string `yaml:"catalogue"`
	ResetAfterArchive bool   `yaml:"resetAfterArchive"`
}

type LocationConfig struct {
	Name      string `yaml:"name"`
	Elevation uint16 `yaml:"elevation"`
}

// HikeConfig names the default start and end locations of a fresh device
type HikeConfig struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

func LoadConfig(path string) (*Config, error) {
	var c Config
	if err := config.LoadYAML(path, &c); err != nil {
		return nil, err
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Storage.DataDirectory == "" {
		c.Storage.DataDirectory = dataDir
	}
	if c.Storage.LogSize == 0 {
		c.Storage.LogSize = defaultLogSize
	}
	if c.Storage.LocationSlots == 0 {
		c.Storage.LocationSlots = defaultLocationSlots
	}
	if c.Logging.Tick == 0 {
		c.Logging.Tick = config.Duration(defaultTick)
	}
}

func (c *Config) Validate() error {
	if !c.Broker.Enabled || c.Radio.Broker != "" {
		if err := c.Radio.Validate(); err != nil {
			return err
		}
	} else if c.Radio.Network == "" {
		return config.NewError("radio.network", "is required")
	}
	if c.Broker.Enabled && c.Broker.Address == "" {
		return config.NewError("broker.address", "is required when the broker is enabled")
	}
	if _, err := beacon.ParsePolicy(c.Logging.BeaconPolicy); err != nil {
		return config.NewError("logging.beaconPolicy", err.Error())
	}
	if c.Logging.Interval != 0 && c.Logging.Interval.Std() < time.Second {
		return config.NewError("logging.interval", "must be at least one second")
	}
	if len(c.Locations) > c.Storage.LocationSlots {
		return config.NewError("locations", fmt.Sprintf("%d locations do not fit in %d slots", len(c.Locations), c.Storage.LocationSlots))
	}
	for i, loc := range c.Locations {
		if strings.TrimSpace(loc.Name) == "" {
			return config.NewError(fmt.Sprintf("locations[%d].name", i), "is required")
		}
		if len(loc.Name) > locations.NameSize {
			return config.NewError(fmt.Sprintf("locations[%d].name", i), fmt.Sprintf("longer than %d characters", locations.NameSize))
		}
	}
	return nil
}

// RadioBroker is the broker the radio dials, the embedded one unless a
// broker is configured explicitly.
func (c *Config) RadioBroker() string {
	if c.Radio.Broker != "" {
		return c.Radio.Broker
	}
	addr := c.Broker.Address
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return addr
}

func (c *Config) seedLocations() []locations.Location {
	locs := make([]locations.Location, 0, len(c.Locations))
	for _, l := range c.Locations {
		locs = append(locs, locations.Location{Name: l.Name, Elevation: l.Elevation})
	}
	return locs
}
