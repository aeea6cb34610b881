package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/roman-kulish/hiking-logger/internal/beacon"
	"github.com/roman-kulish/hiking-logger/internal/clock"
	"github.com/roman-kulish/hiking-logger/internal/device"
	"github.com/roman-kulish/hiking-logger/internal/radio/mqttradio"
	"github.com/roman-kulish/hiking-logger/internal/remote"
)

func Run(ctx context.Context, config *Config, in io.Reader, logger *slog.Logger) error {
	r, err := mqttradio.Dial(ctx, mqttradio.Config{
		Broker:      config.Radio.Broker,
		Network:     config.Radio.Network,
		TopicPrefix: config.Radio.TopicPrefix,
		ClientID:    config.Radio.ClientID,
		Address:     remote.Address,
		QoS:         config.Radio.QoS,
	}, mqttradio.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to connect radio: %w", err)
	}
	defer r.Close()

	rm := device.NewRemote(r, clock.System{}, deviceOptions(config, logger)...)

	logger.Info("remote ready, commands: start, stop, end, swap, sync, loc, start-next, start-prev, end-next, end-prev, status")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		readCommands(ctx, in, rm, logger)
	}()

	err = rm.Run(ctx, config.Remote.Tick.Std())

	// a radio failure leaves the reader blocked on input
	if err == nil {
		wg.Wait()
	}
	return err
}

func deviceOptions(config *Config, logger *slog.Logger) []device.Option {
	policy, _ := beacon.ParsePolicy(config.Remote.BeaconPolicy)

	options := []device.Option{
		device.WithLogger(logger),
		device.WithBeaconPolicy(policy),
	}
	if config.Remote.DisplayTimeout > 0 {
		options = append(options, device.WithDisplayTimeout(config.Remote.DisplayTimeout.Std()))
	}
	if config.Remote.MetricInput {
		options = append(options, device.WithMetricInput())
	}
	return options
}

// readCommands turns lines of input into button presses until ctx is done or
// the input ends.
func readCommands(ctx context.Context, in io.Reader, rm *device.Remote, logger *slog.Logger) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case line, ok := <-lines:
			if !ok {
				return
			}
			handleCommand(line, rm, logger)
		}
	}
}

func handleCommand(line string, rm *device.Remote, logger *slog.Logger) {
	cmd := strings.TrimSpace(line)
	if cmd == "" {
		return
	}

	if strings.EqualFold(cmd, "status") {
		rm.RequestStatus()
		return
	}

	b, err := device.ParseButton(cmd)
	if err != nil {
		logger.Warn("unknown command", slog.String("command", cmd))
		return
	}
	rm.Press(b)
}
