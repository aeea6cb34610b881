// Package beacon tracks the sensor unit's periodic broadcast. The tracker
// learns the interval between beacons so that the receiver only needs to be
// powered shortly before each one arrives.
package beacon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roman-kulish/hiking-logger/internal/clock"
	"github.com/roman-kulish/hiking-logger/internal/packet"
	"github.com/roman-kulish/hiking-logger/internal/radio"
	"github.com/roman-kulish/hiking-logger/internal/sensor"
)

const (
	// AcquisitionGuard is how early the receiver is turned on before the
	// expected beacon.
	AcquisitionGuard = 10 * time.Millisecond

	// SyncTimeout bounds each wait of the acquisition procedure
	SyncTimeout = 8100 * time.Millisecond

	// ResyncAfter is how long past the expected beacon the tracker waits
	// before starting over.
	ResyncAfter = 15 * time.Second

	pollInterval = time.Millisecond
)

// Drift bands. A measured interval inside the normal band is averaged in, one
// inside the missed band spans two beacons.
const (
	normalMin = 4000 * time.Millisecond
	normalMax = 5000 * time.Millisecond
	missedMin = 8000 * time.Millisecond
	missedMax = 10000 * time.Millisecond
)

// Policy decides what happens to an interval outside both drift bands
type Policy uint8

const (
	// PolicyIgnore keeps the current estimate
	PolicyIgnore Policy = iota
	// PolicyResync drops the estimate and re-enters acquisition
	PolicyResync
)

func (p Policy) String() string {
	switch p {
	case PolicyIgnore:
		return "ignore"
	case PolicyResync:
		return "resync"
	}
	return fmt.Sprintf("policy(%d)", uint8(p))
}

// ParsePolicy accepts the names returned by Policy.String
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "ignore":
		return PolicyIgnore, nil
	case "resync":
		return PolicyResync, nil
	}
	return 0, fmt.Errorf("unknown beacon policy %q", s)
}

// SyncState is the outcome of the last acquisition
type SyncState uint8

const (
	SyncError SyncState = iota
	Syncing
	SyncSuccess
)

func (s SyncState) String() string {
	switch s {
	case SyncError:
		return "error"
	case Syncing:
		return "syncing"
	case SyncSuccess:
		return "success"
	}
	return fmt.Sprintf("sync(%d)", uint8(s))
}

func WithPolicy(p Policy) func(t *Tracker) {
	return func(t *Tracker) {
		t.policy = p
	}
}

func WithLogger(logger *slog.Logger) func(t *Tracker) {
	return func(t *Tracker) {
		t.logger = logger.With(slog.String("component", "beacon"))
	}
}

// Tracker keeps the estimated beacon period. The period is armed to pass
// AcquisitionGuard before the next beacon is due. A zero period means the
// tracker is not synchronised.
type Tracker struct {
	clock  clock.Clock
	sensor *sensor.State
	period *clock.Period
	policy Policy
	state  SyncState
	logger *slog.Logger
}

// NewTracker returns a tracker that still has to acquire the beacon. Every
// beacon heard updates s.
func NewTracker(c clock.Clock, s *sensor.State, options ...func(t *Tracker)) *Tracker {
	t := Tracker{
		clock:  c,
		sensor: s,
		period: clock.NewPeriod(c, 0),
		state:  Syncing,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&t)
	}

	return &t
}

func (t *Tracker) State() SyncState {
	return t.state
}

func (t *Tracker) Policy() Policy {
	return t.policy
}

// Period is the current estimate, zero when not synchronised
func (t *Tracker) Period() time.Duration {
	return t.period.Get()
}

func (t *Tracker) Synced() bool {
	return t.period.Get() != 0
}

// RequestSync asks for acquisition to run again on the next tick
func (t *Tracker) RequestSync() {
	t.state = Syncing
}

// Due reports whether the next beacon is imminent
func (t *Tracker) Due() bool {
	return t.period.Passed()
}

// Lost reports whether the beacon is overdue by more than ResyncAfter
func (t *Tracker) Lost() bool {
	return t.period.Passed() && t.period.Elapsed() > ResyncAfter
}

// Handle applies a beacon heard while tracking: it updates the sensor state,
// corrects the period for drift and re-arms the next window.
func (t *Tracker) Handle(b packet.Beacon) {
	measured := t.period.Elapsed() - AcquisitionGuard
	t.period.Start(-AcquisitionGuard)

	switch {
	case measured > normalMin && measured < normalMax:
		t.period.Set((t.period.Get() + measured) / 2)

	case measured > missedMin && measured < missedMax:
		t.period.Set(measured / 2)

	default:
		t.logger.Warn("beacon interval out of band",
			slog.Duration("measured", measured),
			slog.Duration("period", t.period.Get()),
			slog.String("policy", t.policy.String()))

		if t.policy == PolicyResync {
			t.state = Syncing
		}
	}

	t.sensor.Set(b.Temperature, b.Pressure)
}

// Acquire synchronises with the beacon. It waits up to SyncTimeout for a
// beacon and then up to SyncTimeout for the next one, taking the time between
// them as the period. Frames other than beacons heard while waiting for the
// first beacon are passed to onOther when it is not nil.
//
// On failure the sensor readings are invalidated and the state becomes
// SyncError. The returned error is only set when ctx is done.
func (t *Tracker) Acquire(ctx context.Context, r radio.Radio, onOther func(radio.Frame)) error {
	t.state = Syncing
	t.period.Set(0)

	timeout := clock.NewPeriod(t.clock, SyncTimeout)

	for !timeout.Passed() && !t.Synced() {
		if f, ok := r.Receive(); ok {
			if _, isBeacon := Decode(f); isBeacon {
				timeout.Start(0)
				if err := t.measure(ctx, r, timeout); err != nil {
					return err
				}
				continue
			}
			if onOther != nil {
				onOther(f)
			}
		}

		if err := t.clock.Sleep(ctx, pollInterval); err != nil {
			return err
		}
	}

	if !t.Synced() {
		t.sensor.MakeInvalid()
		t.state = SyncError
		t.logger.Warn("beacon sync failed", slog.Duration("timeout", SyncTimeout))
		return nil
	}

	t.state = SyncSuccess
	t.logger.Info("beacon synced", slog.Duration("period", t.period.Get()))
	return nil
}

// measure waits for the second beacon of the acquisition
func (t *Tracker) measure(ctx context.Context, r radio.Radio, timeout *clock.Period) error {
	for !timeout.Passed() {
		if f, ok := r.Receive(); ok {
			if b, isBeacon := Decode(f); isBeacon {
				t.period.Set(timeout.Elapsed() - AcquisitionGuard)
				t.period.Start(-AcquisitionGuard)
				t.sensor.Set(b.Temperature, b.Pressure)
				return nil
			}
		}

		if err := t.clock.Sleep(ctx, pollInterval); err != nil {
			return err
		}
	}
	return nil
}

// Decode returns the beacon carried by f, if any
func Decode(f radio.Frame) (packet.Beacon, bool) {
	if id, err := packet.PeekID(f.Payload); err != nil || id != packet.IDBeacon {
		return packet.Beacon{}, false
	}

	p, err := packet.Decode(f.Payload)
	if err != nil {
		return packet.Beacon{}, false
	}
	b, ok := p.(packet.Beacon)
	return b, ok
}
