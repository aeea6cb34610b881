package device

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/roman-kulish/hiking-logger/internal/beacon"
	"github.com/roman-kulish/hiking-logger/internal/hikelog"
)

// DefaultDisplayTimeout is how long the remote's display stays on after a
// button press.
const DefaultDisplayTimeout = 30 * time.Second

// Archiver copies the log to removable storage
type Archiver interface {
	Archive(ctx context.Context, log *hikelog.Log) error
}

type settings struct {
	logger            *slog.Logger
	policy            beacon.Policy
	interval          time.Duration
	metric            bool
	notifier          Notifier
	archiver          Archiver
	displayOn         bool
	displayTimeout    time.Duration
	resetAfterArchive bool
}

// Option configures a Gateway or a Remote
type Option func(s *settings)

func newSettings(options []Option) settings {
	s := settings{
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		displayTimeout: DefaultDisplayTimeout,
	}
	for _, option := range options {
		option(&s)
	}
	return s
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithBeaconPolicy selects what an out of band beacon interval does
func WithBeaconPolicy(p beacon.Policy) Option {
	return func(s *settings) {
		s.policy = p
	}
}

// WithLogInterval sets the gateway's sampling interval
func WithLogInterval(d time.Duration) Option {
	return func(s *settings) {
		s.interval = d
	}
}

// WithMetricInput makes location elevations meters instead of feet
func WithMetricInput() Option {
	return func(s *settings) {
		s.metric = true
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *settings) {
		s.notifier = n
	}
}

func WithArchiver(a Archiver) Option {
	return func(s *settings) {
		s.archiver = a
	}
}

// WithDisplayOn keeps the gateway's display on, which keeps its receiver
// listening for the remote between beacons.
func WithDisplayOn() Option {
	return func(s *settings) {
		s.displayOn = true
	}
}

func WithDisplayTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.displayTimeout = d
	}
}

// WithResetAfterArchive clears the log when the card is removed after a
// successful archive.
func WithResetAfterArchive() Option {
	return func(s *settings) {
		s.resetAfterArchive = true
	}
}
