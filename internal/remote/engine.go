// Package remote is the radio side of the handheld remote. Button presses are
// queued as requests and sent to the gateway between beacons, one at a time,
// each retried once before it is dropped.
package remote

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roman-kulish/hiking-logger/internal/beacon"
	"github.com/roman-kulish/hiking-logger/internal/clock"
	"github.com/roman-kulish/hiking-logger/internal/hikelog"
	"github.com/roman-kulish/hiking-logger/internal/packet"
	"github.com/roman-kulish/hiking-logger/internal/radio"
)

const (
	// Address is the remote's node address
	Address uint8 = 2

	// GatewayAddress is where requests are sent
	GatewayAddress uint8 = 1

	// PacketTimeout is how long to wait for a reply before resending. The
	// gateway may be busy redrawing its display for well over 150ms.
	PacketTimeout = 250 * time.Millisecond

	sendAttempts = 2

	// deepSleepDelta is the clock correction that means the remote was in
	// deep sleep with its clock stopped.
	deepSleepDelta = 60
)

func WithLogger(logger *slog.Logger) func(e *Engine) {
	return func(e *Engine) {
		e.logger = logger.With(slog.String("component", "remote"))
	}
}

// Engine handles the remote's radio. It is driven by the device loop and is
// not safe for concurrent use.
type Engine struct {
	radio   radio.Radio
	tracker *beacon.Tracker
	log     *HikeLog
	wall    *clock.Wall

	queue         Queue
	packetTimeout *clock.Period
	waiting       uint8
	timeouts      uint16

	// startStopTime is the time of the first unanswered start or stop press
	startStopTime uint32
	lastState     hikelog.State

	logger *slog.Logger
}

func New(r radio.Radio, c clock.Clock, wall *clock.Wall, tr *beacon.Tracker, log *HikeLog, options ...func(e *Engine)) *Engine {
	e := Engine{
		radio:         r,
		tracker:       tr,
		log:           log,
		wall:          wall,
		packetTimeout: clock.NewPeriod(c, PacketTimeout),
		lastState:     log.GetLogState(),
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&e)
	}

	return &e
}

func (e *Engine) SyncState() beacon.SyncState {
	return e.tracker.State()
}

// Busy reports whether the beacon is expected soon or being acquired
func (e *Engine) Busy() bool {
	return e.tracker.Due() || e.tracker.State() == beacon.Syncing
}

func (e *Engine) PacketsInQueue() int {
	return e.queue.Len()
}

// PacketTimeouts counts requests dropped without a reply
func (e *Engine) PacketTimeouts() uint16 {
	return e.timeouts
}

// WaitingForPacket is the number of attempts left for the request in flight
func (e *Engine) WaitingForPacket() uint8 {
	return e.waiting
}

// CheckRadio runs one step of the radio schedule without blocking, except
// while the beacon is being acquired.
func (e *Engine) CheckRadio(ctx context.Context, displayOff bool) error {
	if e.tracker.State() == beacon.Syncing {
		return e.SyncWithBeacon(ctx)
	}

	if e.tracker.Due() {
		f, ok := e.radio.Receive()
		if !ok {
			if e.tracker.Lost() {
				e.logger.Warn("beacon lost, resyncing")
				return e.SyncWithBeacon(ctx)
			}
			return nil
		}

		b, isBeacon := beacon.Decode(f)
		if !isBeacon {
			e.handleReply(f)
			return nil
		}

		e.tracker.Handle(b)
		if !displayOff && e.waiting == 0 {
			e.push(packet.Request{Kind: packet.IDGetSync})
			_, err := e.sendIfNotBusy(ctx)
			return err
		}
		return nil
	}

	if e.waiting > 0 {
		if f, ok := e.radio.Receive(); ok {
			e.handleReply(f)
		}
	}

	busy, err := e.sendIfNotBusy(ctx)
	if err != nil {
		return err
	}
	if !busy {
		e.radio.Sleep()
	}
	return nil
}

// SyncWithBeacon acquires the beacon. Replies heard meanwhile are handled.
func (e *Engine) SyncWithBeacon(ctx context.Context) error {
	if err := e.tracker.Acquire(ctx, e.radio, e.handleReply); err != nil {
		return err
	}

	if e.tracker.State() == beacon.SyncSuccess && !e.log.Active() {
		e.log.UpdateStartingAltitude()
	}
	return nil
}

// sendIfNotBusy sends or resends the request at the head of the queue when
// no beacon is due and the previous attempt timed out. It reports whether a
// reply is still awaited.
func (e *Engine) sendIfNotBusy(ctx context.Context) (bool, error) {
	if e.tracker.Due() || !e.packetTimeout.Passed() {
		return e.waiting != 0, nil
	}

	if e.waiting > 0 {
		e.waiting--
		if e.waiting == 0 && e.queue.Pop() {
			e.timeouts++
			e.logger.Warn("request dropped", slog.Int("timeouts", int(e.timeouts)))
		}
	}

	if e.waiting == 0 && e.queue.Len() > 0 {
		e.waiting = sendAttempts
	}

	if e.waiting > 0 {
		head, _ := e.queue.Head()
		if err := e.radio.Send(ctx, GatewayAddress, head, true); err != nil {
			return true, fmt.Errorf("sending request: %w", err)
		}
		e.packetTimeout.Start(0)

		// the gateway may answer before the next CheckRadio
		_, _ = e.radio.Receive()
	}

	return e.waiting != 0, nil
}

// handleReply treats any frame from the gateway as the answer to the request
// in flight.
func (e *Engine) handleReply(f radio.Frame) {
	if _, isBeacon := beacon.Decode(f); isBeacon {
		return
	}

	e.waiting = 0
	e.queue.Pop()

	p, err := packet.Decode(f.Payload)
	if err != nil {
		e.logger.Warn("undecodable reply", slog.Any("error", err))
		return
	}

	switch p := p.(type) {
	case packet.Sync:
		e.applySync(p)
	case packet.Location:
		e.log.UpdateLoc(p.Index, p.Link)
	}
}

func (e *Engine) applySync(p packet.Sync) {
	e.log.Sync(p.StartTime, p.EndTime, p.StartLocIndex, p.EndLocIndex, p.LogIsFull)

	// A small negative delta only means the gateway's second has not ticked
	// yet.
	if delta := e.wall.Set(p.Time); delta > deepSleepDelta {
		e.logger.Info("clock corrected", slog.Int64("delta", delta))
	}

	if state := e.log.GetLogState(); state != e.lastState {
		e.lastState = state
		e.startStopTime = 0
	}

	if e.log.StartingLocNeedsUpdate() && p.StartLocIndex != 0 {
		e.push(packet.LocIndex{Kind: packet.IDGetLocation, Index: p.StartLocIndex})
	}
	if e.log.EndingLocNeedsUpdate() && p.EndLocIndex != 0 && p.EndLocIndex != p.StartLocIndex {
		e.push(packet.LocIndex{Kind: packet.IDGetLocation, Index: p.EndLocIndex})
	}
}

func (e *Engine) push(p packet.Packet) bool {
	if !e.queue.Push(p) {
		e.logger.Debug("queue full, request discarded", slog.String("id", p.ID().String()))
		return false
	}
	return true
}

// LeftButton ends a stopped session or swaps the locations of a session that
// has not started. After a failed beacon sync it retries the sync instead.
func (e *Engine) LeftButton() bool {
	if e.tracker.State() == beacon.SyncError {
		e.tracker.RequestSync()
		return true
	}

	switch e.log.GetLogState() {
	case hikelog.Stopped:
		return e.push(packet.Request{Kind: packet.IDEndLog})
	case hikelog.NotRunning:
		return e.push(packet.Request{Kind: packet.IDSwapLocIndexes})
	}
	return false
}

// RightButton starts, resumes or stops the session. A press that is not
// answered keeps its time, so pressing again resends the original moment.
func (e *Engine) RightButton() bool {
	state := e.log.GetLogState()
	if state == hikelog.CantRun {
		return false
	}

	if e.startStopTime == 0 {
		e.startStopTime = e.wall.Unix()
	}

	kind := packet.IDStartLog
	if state == hikelog.Running {
		kind = packet.IDStopLog
	}
	return e.push(packet.Time{Kind: kind, Time: e.startStopTime})
}

// RequestBeaconSync asks the gateway to resync with the beacon
func (e *Engine) RequestBeaconSync() bool {
	return e.push(packet.Request{Kind: packet.IDSyncBeacon})
}

func (e *Engine) RequestLocation(idx uint16) bool {
	return e.push(packet.LocIndex{Kind: packet.IDGetLocation, Index: idx})
}

func (e *Engine) SetStartLocation(idx uint16) bool {
	return e.push(packet.LocIndex{Kind: packet.IDSetStartLocation, Index: idx})
}

func (e *Engine) SetEndLocation(idx uint16) bool {
	return e.push(packet.LocIndex{Kind: packet.IDSetEndLocation, Index: idx})
}

// StepLocation selects the neighbour of the start or end location, as last
// reported by the gateway.
func (e *Engine) StepLocation(start, forward bool) bool {
	link := e.log.LocLink(start)
	if link.Name == "" {
		return false
	}

	idx := link.Prev
	if forward {
		idx = link.Next
	}
	if idx == 0 {
		return false
	}

	if start {
		return e.SetStartLocation(idx)
	}
	return e.SetEndLocation(idx)
}
