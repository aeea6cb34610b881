package device

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roman-kulish/hiking-logger/internal/beacon"
	"github.com/roman-kulish/hiking-logger/internal/bytestream"
	"github.com/roman-kulish/hiking-logger/internal/clock"
	"github.com/roman-kulish/hiking-logger/internal/gateway"
	"github.com/roman-kulish/hiking-logger/internal/hikelog"
	"github.com/roman-kulish/hiking-logger/internal/locations"
	"github.com/roman-kulish/hiking-logger/internal/radio"
	"github.com/roman-kulish/hiking-logger/internal/sensor"
)

// Stores are the gateway's persistent media
type Stores struct {
	Log       bytestream.Stream
	Settings  bytestream.Stream
	Locations bytestream.Stream
}

// Gateway owns everything the logging unit runs on. The flags may be set
// from any goroutine; everything else belongs to the loop.
type Gateway struct {
	Sensor    *sensor.State
	Locations *locations.Index
	Log       *hikelog.Log
	Tracker   *beacon.Tracker
	Engine    *gateway.Engine

	CardInserted *Flag
	CardRemoved  *Flag
	Resync       *Flag

	settings settings
	archived bool
	logger   *slog.Logger
}

func NewGateway(r radio.Radio, c clock.Clock, stores Stores, options ...Option) (*Gateway, error) {
	s := newSettings(options)

	g := Gateway{
		CardInserted: NewFlag(),
		CardRemoved:  NewFlag(),
		Resync:       NewFlag(),
		settings:     s,
		logger:       s.logger.With(slog.String("component", "device")),
	}

	var sensorOptions []sensor.Option
	if s.metric {
		sensorOptions = append(sensorOptions, sensor.WithMetricInput())
	}
	g.Sensor = sensor.New(c, sensorOptions...)

	var err error
	if g.Locations, err = locations.New(stores.Locations, locations.WithLogger(s.logger)); err != nil {
		return nil, fmt.Errorf("opening locations: %w", err)
	}

	if g.Log, err = hikelog.New(stores.Log, stores.Settings, g.Sensor, g.Locations, c,
		hikelog.WithLogger(s.logger),
		hikelog.WithInterval(s.interval),
	); err != nil {
		return nil, fmt.Errorf("opening hike log: %w", err)
	}

	g.Tracker = beacon.NewTracker(c, g.Sensor,
		beacon.WithPolicy(s.policy),
		beacon.WithLogger(s.logger))

	g.Engine = gateway.New(r, c, g.Tracker, g.Log, g.Locations, gateway.WithLogger(s.logger))

	return &g, nil
}

// Tick runs one pass of the control loop: radio, milestone notification,
// sampling and then archival. Only a cancelled context is returned as an
// error; other failures are logged and retried on later ticks.
func (g *Gateway) Tick(ctx context.Context) error {
	if g.Resync.Take() {
		g.Engine.RetrySync()
	}

	if err := g.Engine.CheckRadio(ctx, !g.settings.displayOn); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.logger.Error("radio", slog.Any("error", err))
	}

	if percent := g.Sensor.PassedMilestone(); percent != 0 && g.settings.notifier != nil {
		g.settings.notifier.Milestone(percent)
	}

	if err := g.Log.LogEntryIfTime(); err != nil {
		g.logger.Error("logging entry", slog.Any("error", err))
	}

	g.checkCard(ctx)
	return nil
}

func (g *Gateway) checkCard(ctx context.Context) {
	if g.CardInserted.Take() {
		switch {
		case g.settings.archiver == nil:
			g.logger.Warn("card inserted but no archiver configured")

		case g.Log.Active():
			g.logger.Warn("card inserted during a session, end the session to archive")

		default:
			if err := g.settings.archiver.Archive(ctx, g.Log); err != nil {
				g.logger.Error("archiving log", slog.Any("error", err))
			} else {
				g.archived = true
			}
		}
	}

	if g.CardRemoved.Take() {
		if g.archived && g.settings.resetAfterArchive && !g.Log.Active() {
			if err := g.Log.InitializeLog(); err != nil {
				g.logger.Error("resetting log", slog.Any("error", err))
			} else {
				g.logger.Info("log reset after archive")
			}
		}
		g.archived = false
	}
}

// Run ticks every interval until ctx is cancelled
func (g *Gateway) Run(ctx context.Context, interval time.Duration) error {
	return run(ctx, interval, g.Tick)
}
