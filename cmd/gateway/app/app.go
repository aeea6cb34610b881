package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/hiking-logger/internal/archive"
	"github.com/roman-kulish/hiking-logger/internal/beacon"
	"github.com/roman-kulish/hiking-logger/internal/bytestream"
	"github.com/roman-kulish/hiking-logger/internal/clock"
	"github.com/roman-kulish/hiking-logger/internal/device"
	"github.com/roman-kulish/hiking-logger/internal/gateway"
	"github.com/roman-kulish/hiking-logger/internal/hikelog"
	"github.com/roman-kulish/hiking-logger/internal/locations"
	"github.com/roman-kulish/hiking-logger/internal/radio/mqttradio"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	stores, closeStores, err := openStores(&config.Storage)
	if err != nil {
		return fmt.Errorf("failed to open stores: %w", err)
	}
	defer closeStores(logger)

	if config.Broker.Enabled {
		server, err := mqttradio.StartBroker(config.Broker.Address)
		if err != nil {
			return fmt.Errorf("failed to start broker: %w", err)
		}
		defer server.Close()

		logger.Info("broker started", slog.String("address", config.Broker.Address))
	}

	r, err := mqttradio.Dial(ctx, mqttradio.Config{
		Broker:      config.RadioBroker(),
		Network:     config.Radio.Network,
		TopicPrefix: config.Radio.TopicPrefix,
		ClientID:    config.Radio.ClientID,
		Address:     gateway.Address,
		QoS:         config.Radio.QoS,
	}, mqttradio.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to connect radio: %w", err)
	}
	defer r.Close()

	archiver, closeArchiver, err := createArchiver(&config.Archive, logger)
	if err != nil {
		return fmt.Errorf("failed to create archiver: %w", err)
	}
	defer closeArchiver()

	g, err := device.NewGateway(r, clock.System{}, stores, deviceOptions(config, archiver, logger)...)
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}

	if err = seed(g, config, logger); err != nil {
		return fmt.Errorf("failed to seed locations: %w", err)
	}

	logger.Info("gateway ready",
		slog.String("state", g.Log.GetLogState().String()),
		slog.String("log", humanize.IBytes(uint64(config.Storage.LogSize))),
		slog.String("headroom", g.Log.SecondsTillFull().String()),
		slog.Int("locations", g.Locations.Count()),
		slog.Int("capacity", g.Locations.Capacity()))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		watchSignals(ctx, g, logger)
	}()

	err = g.Run(ctx, config.Logging.Tick.Std())
	wg.Wait()

	return err
}

func deviceOptions(config *Config, archiver device.Archiver, logger *slog.Logger) []device.Option {
	policy, _ := beacon.ParsePolicy(config.Logging.BeaconPolicy)

	options := []device.Option{
		device.WithLogger(logger),
		device.WithBeaconPolicy(policy),
		device.WithLogInterval(config.Logging.Interval.Std()),
		device.WithNotifier(device.LogNotifier{Logger: logger}),
	}
	if config.Logging.MetricInput {
		options = append(options, device.WithMetricInput())
	}
	if config.Logging.DisplayOn {
		options = append(options, device.WithDisplayOn())
	}
	if archiver != nil {
		options = append(options, device.WithArchiver(archiver))
	}
	if config.Archive.ResetAfterArchive {
		options = append(options, device.WithResetAfterArchive())
	}
	return options
}

// watchSignals maps signals to device events: USR1 inserts the card, USR2
// removes it and HUP retries a failed beacon sync.
func watchSignals(ctx context.Context, g *device.Gateway, logger *slog.Logger) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGHUP)
	defer signal.Stop(signals)

	for {
		select {
		case <-ctx.Done():
			return

		case sig := <-signals:
			logger.Debug("signal received", slog.String("signal", sig.String()))

			switch sig {
			case syscall.SIGUSR1:
				g.CardInserted.Set()
			case syscall.SIGUSR2:
				g.CardRemoved.Set()
			case syscall.SIGHUP:
				g.Resync.Set()
			}
		}
	}
}

func openStores(config *StorageConfig) (device.Stores, func(*slog.Logger), error) {
	if err := os.MkdirAll(config.DataDirectory, 0o755); err != nil {
		return device.Stores{}, nil, fmt.Errorf("creating data directory '%s': %w", config.DataDirectory, err)
	}

	var opened []*bytestream.Mapped
	closeAll := func(logger *slog.Logger) {
		for _, m := range opened {
			if err := m.Close(); err != nil {
				logger.Error("closing store", slog.Any("error", err))
			}
		}
	}

	open := func(name string, size int64, fill byte) (*bytestream.Mapped, error) {
		m, err := bytestream.OpenMapped(filepath.Join(config.DataDirectory, name), size, fill)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", name, err)
		}
		opened = append(opened, m)
		return m, nil
	}

	var stores device.Stores
	var err error

	// erased flash and EEPROM read as 0xFF
	if stores.Log, err = open("log.bin", config.LogSize, 0xFF); err == nil {
		if stores.Settings, err = open("nvram.bin", hikelog.NVRAMSize, 0xFF); err == nil {
			stores.Locations, err = open("locations.bin", int64(config.LocationSlots+1)*locations.LinkSize, 0)
		}
	}
	if err != nil {
		closeAll(slog.Default())
		return device.Stores{}, nil, err
	}

	return stores, closeAll, nil
}

func createArchiver(config *ArchiveConfig, logger *slog.Logger) (device.Archiver, func(), error) {
	if config.CardDirectory == "" {
		return nil, func() {}, nil
	}

	vol, err := archive.NewDirVolume(config.CardDirectory)
	if err != nil {
		return nil, nil, err
	}

	options := []func(*archive.Exporter){archive.WithExporterLogger(logger)}
	closeFn := func() {}

	if config.Catalogue != "" {
		store := archive.NewSqliteStore(config.Catalogue, archive.WithLogger(logger))
		options = append(options, archive.WithCatalogue(store))
		closeFn = func() {
			if err := store.Close(); err != nil {
				logger.Error("closing catalogue", slog.Any("error", err))
			}
		}
	}

	return archive.NewExporter(vol, options...), closeFn, nil
}

// seed imports the configured locations into an empty index and selects the
// configured hike on a device that has no session.
func seed(g *device.Gateway, config *Config, logger *slog.Logger) error {
	if g.Locations.Count() == 0 && len(config.Locations) > 0 {
		n, err := g.Locations.Import(config.seedLocations())
		if err != nil {
			return err
		}
		logger.Info("locations imported", slog.Int("count", n))
	}

	if g.Log.Active() || (config.Hike.Start == "" && config.Hike.End == "") {
		return nil
	}

	start, end, err := findLocations(g.Locations, config.Hike.Start, config.Hike.End)
	if err != nil {
		return err
	}
	if start != 0 {
		if _, err = g.Log.SetStartingLocIndex(start); err != nil {
			return err
		}
	}
	if end != 0 {
		if _, err = g.Log.SetEndingLocIndex(end); err != nil {
			return err
		}
	}
	return nil
}

var errStopWalk = errors.New("stop")

func findLocations(x *locations.Index, startName, endName string) (start, end uint16, err error) {
	startName = strings.ToUpper(strings.TrimSpace(startName))
	endName = strings.ToUpper(strings.TrimSpace(endName))

	err = x.Walk(func(idx uint16, link locations.Link) error {
		if link.Name == startName && start == 0 {
			start = idx
		}
		if link.Name == endName && end == 0 {
			end = idx
		}
		if (start != 0 || startName == "") && (end != 0 || endName == "") {
			return errStopWalk
		}
		return nil
	})
	if errors.Is(err, errStopWalk) {
		err = nil
	}
	if err != nil {
		return 0, 0, err
	}

	if startName != "" && start == 0 {
		return 0, 0, fmt.Errorf("start location %q not found", startName)
	}
	if endName != "" && end == 0 {
		return 0, 0, fmt.Errorf("end location %q not found", endName)
	}
	return start, end, nil
}
