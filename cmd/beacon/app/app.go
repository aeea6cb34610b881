package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/hiking-logger/internal/clock"
	"github.com/roman-kulish/hiking-logger/internal/packet"
	"github.com/roman-kulish/hiking-logger/internal/radio"
	"github.com/roman-kulish/hiking-logger/internal/radio/mqttradio"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	r, err := mqttradio.Dial(ctx, mqttradio.Config{
		Broker:      config.Radio.Broker,
		Network:     config.Radio.Network,
		TopicPrefix: config.Radio.TopicPrefix,
		ClientID:    config.Radio.ClientID,
		Address:     config.Beacon.Address,
		QoS:         config.Radio.QoS,
	}, mqttradio.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to connect radio: %w", err)
	}
	defer r.Close()

	logger.Info("beacon started",
		slog.Int("address", int(config.Beacon.Address)),
		slog.String("interval", config.Beacon.Interval.String()),
		slog.String("jitter", config.Beacon.Jitter.String()))

	err = broadcast(ctx, r, clock.System{}, NewSimulator(config.Beacon), logger)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// broadcast sends a BMP2 packet for every step of the simulator until ctx is
// done. The radio sleeps between broadcasts.
func broadcast(ctx context.Context, r radio.Radio, c clock.Clock, sim *Simulator, logger *slog.Logger) error {
	var sent, dropped uint64

	for {
		b, wait, send := sim.Next()

		if send {
			if err := r.Send(ctx, radio.Broadcast, packet.Marshal(b), false); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Error("broadcast failed", slog.Any("error", err))
			} else {
				sent++
			}
		} else {
			dropped++
		}

		logger.Debug("beacon",
			slog.Bool("sent", send),
			slog.Float64("temperature", float64(b.Temperature)/100),
			slog.String("pressure", humanize.Comma(int64(b.Pressure))+" Pa"),
			slog.String("next", wait.String()))

		if (sent+dropped)%100 == 0 {
			logger.Info("beacon stats", slog.String("sent", humanize.Comma(int64(sent))),
				slog.String("dropped", humanize.Comma(int64(dropped))))
		}

		r.Sleep()
		if err := c.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}
