// Package gateway is the radio side of the logging unit. It tracks the sensor
// beacon and answers the remote's requests by driving the hike log.
//
// Right after each beacon the receiver stays on for a short window so that
// the remote can make requests. A request that asks for an ack extends the
// window up to the next beacon. Once the window closes the radio sleeps until
// the next beacon is due.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roman-kulish/hiking-logger/internal/beacon"
	"github.com/roman-kulish/hiking-logger/internal/clock"
	"github.com/roman-kulish/hiking-logger/internal/hikelog"
	"github.com/roman-kulish/hiking-logger/internal/locations"
	"github.com/roman-kulish/hiking-logger/internal/packet"
	"github.com/roman-kulish/hiking-logger/internal/radio"
)

const (
	// Address is the gateway's node address
	Address uint8 = 1

	// QuietWindow is how long the receiver listens after a beacon while the
	// display is off.
	QuietWindow = 100 * time.Millisecond

	// ActiveWindow keeps the receiver on until the next beacon at least
	ActiveWindow = 0x4000 * time.Millisecond
)

// Locations is the part of the location index the gateway reads
type Locations interface {
	Resolve(idx uint16) (locations.Link, bool, error)
	NextIndex(wrap bool) (uint16, error)
	PreviousIndex(wrap bool) (uint16, error)
}

func WithLogger(logger *slog.Logger) func(e *Engine) {
	return func(e *Engine) {
		e.logger = logger.With(slog.String("component", "gateway"))
	}
}

// Engine handles the gateway's radio. It is driven by the device loop and is
// not safe for concurrent use.
type Engine struct {
	radio   radio.Radio
	clock   clock.Clock
	tracker *beacon.Tracker
	log     *hikelog.Log
	locs    Locations
	window  *clock.Period

	requests uint32
	logger   *slog.Logger
}

func New(r radio.Radio, c clock.Clock, tr *beacon.Tracker, log *hikelog.Log, locs Locations, options ...func(e *Engine)) *Engine {
	e := Engine{
		radio:   r,
		clock:   c,
		tracker: tr,
		log:     log,
		locs:    locs,
		window:  clock.NewPeriod(c, QuietWindow),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&e)
	}

	return &e
}

func (e *Engine) SyncState() beacon.SyncState {
	return e.tracker.State()
}

// Requests is the number of remote requests handled
func (e *Engine) Requests() uint32 {
	return e.requests
}

// RetrySync restarts beacon acquisition on the next CheckRadio
func (e *Engine) RetrySync() {
	if e.tracker.State() == beacon.SyncError {
		e.tracker.RequestSync()
	}
}

// CheckRadio runs one step of the radio schedule without blocking, except
// while the beacon is being acquired.
func (e *Engine) CheckRadio(ctx context.Context, displayOff bool) error {
	if e.tracker.State() == beacon.Syncing {
		if err := e.SyncWithBeacon(ctx); err != nil {
			return err
		}
		e.openWindow(displayOff)
		_, _ = e.radio.Receive()
		return nil
	}

	switch {
	case e.tracker.Due():
		f, ok := e.radio.Receive()
		if !ok {
			if e.tracker.Lost() {
				e.logger.Warn("beacon lost, resyncing")
				e.tracker.RequestSync()
			}
			return nil
		}

		b, isBeacon := beacon.Decode(f)
		if !isBeacon {
			return e.handleRequest(ctx, f)
		}

		e.tracker.Handle(b)
		if e.window.Passed() {
			e.openWindow(displayOff)
		}
		// Receive cannot report a frame right after one was read, it only
		// turns the receiver back on.
		_, _ = e.radio.Receive()

	case !e.window.Passed() || (e.radio.Mode() == radio.ModeRX && e.radio.HasData()):
		if f, ok := e.radio.Receive(); ok {
			return e.handleRequest(ctx, f)
		}

	case e.radio.Mode() != radio.ModeSleep:
		e.radio.Sleep()
	}

	return nil
}

func (e *Engine) openWindow(displayOff bool) {
	if displayOff {
		e.window.Set(QuietWindow)
	} else {
		e.window.Set(ActiveWindow)
	}
	e.window.Start(0)
}

// SyncWithBeacon acquires the beacon. Frames from the remote are ignored
// while acquiring.
func (e *Engine) SyncWithBeacon(ctx context.Context) error {
	if err := e.tracker.Acquire(ctx, e.radio, nil); err != nil {
		return err
	}

	if e.tracker.State() == beacon.SyncSuccess && !e.log.Active() {
		if err := e.log.UpdateStartingAltitude(); err != nil {
			e.logger.Warn("updating starting altitude", slog.Any("error", err))
		}
	}
	return nil
}

// handleRequest applies a remote request and answers it with either the
// requested location or a snapshot of the log state.
func (e *Engine) handleRequest(ctx context.Context, f radio.Frame) error {
	e.requests++

	var reply packet.Packet

	p, err := packet.Decode(f.Payload)
	if err != nil {
		e.logger.Warn("undecodable request", slog.Int("from", int(f.From)), slog.Any("error", err))
	} else {
		e.logger.Debug("request", slog.Int("from", int(f.From)), slog.String("id", p.ID().String()))

		var handled bool
		if reply, handled, err = e.apply(p); err != nil {
			e.logger.Error("handling request",
				slog.String("id", p.ID().String()),
				slog.Any("error", err))
		}
		if !handled {
			return nil
		}
	}

	if reply == nil {
		reply = e.syncSnapshot()
	}

	if !f.AckRequested {
		return nil
	}

	if err = e.radio.SendAck(ctx, f, packet.Marshal(reply)); err != nil {
		return fmt.Errorf("acknowledging %s: %w", packetName(p), err)
	}
	_, _ = e.radio.Receive()

	e.window.Set(ActiveWindow)
	e.window.Start(0)
	return nil
}

// apply mutates the log for p. It returns the reply, if the request has a
// specific one, and whether the frame was a request at all.
func (e *Engine) apply(p packet.Packet) (packet.Packet, bool, error) {
	switch p := p.(type) {
	case packet.Beacon:
		e.tracker.Handle(p)
		return nil, false, nil

	case packet.LocIndex:
		switch p.Kind {
		case packet.IDGetLocation:
			return e.locationReply(p.Index)

		case packet.IDSetStartLocation:
			ok, err := e.log.SetStartingLocIndex(p.Index)
			if err != nil || !ok {
				return nil, true, err
			}
			if err = e.log.UpdateStartingAltitude(); err != nil {
				return nil, true, err
			}
			return e.locationReply(p.Index)

		case packet.IDSetEndLocation:
			ok, err := e.log.SetEndingLocIndex(p.Index)
			if err != nil || !ok {
				return nil, true, err
			}
			return e.locationReply(p.Index)
		}

	case packet.Time:
		state := e.log.GetLogState()
		switch {
		case p.Kind == packet.IDStartLog && (state == hikelog.NotRunning || state == hikelog.Stopped):
			if err := e.log.StartLog(p.Time); err != nil && !errors.Is(err, hikelog.ErrSensorInvalid) {
				return nil, true, err
			}
		case p.Kind == packet.IDStopLog && state == hikelog.Running:
			e.log.StopLog(p.Time)
		}

	case packet.Request:
		state := e.log.GetLogState()
		switch {
		case p.Kind == packet.IDEndLog && state == hikelog.Stopped:
			if _, err := e.log.EndLog(); err != nil {
				return nil, true, err
			}
		case p.Kind == packet.IDSwapLocIndexes && state == hikelog.NotRunning:
			if err := e.log.SwapLocIndexes(); err != nil {
				return nil, true, err
			}
		case p.Kind == packet.IDSyncBeacon && e.tracker.State() != beacon.Syncing && !e.tracker.Synced():
			e.tracker.RequestSync()
		}
	}

	return nil, true, nil
}

// locationReply describes the live location idx with its wrapped neighbours
func (e *Engine) locationReply(idx uint16) (packet.Packet, bool, error) {
	link, ok, err := e.locs.Resolve(idx)
	if err != nil || !ok {
		return nil, true, err
	}
	if link.Next, err = e.locs.NextIndex(true); err != nil {
		return nil, true, err
	}
	if link.Prev, err = e.locs.PreviousIndex(true); err != nil {
		return nil, true, err
	}
	return packet.Location{Index: idx, Link: link}, true, nil
}

func (e *Engine) syncSnapshot() packet.Sync {
	return packet.Sync{
		Time:          clock.Unix(e.clock),
		StartTime:     e.log.StartTime(),
		EndTime:       e.log.EndTime(),
		StartLocIndex: e.log.StartingLocIndex(),
		EndLocIndex:   e.log.EndingLocIndex(),
		LogIsFull:     e.log.IsFull(),
	}
}

func packetName(p packet.Packet) string {
	if p == nil {
		return "request"
	}
	return p.ID().String()
}
