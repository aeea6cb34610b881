package device

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roman-kulish/hiking-logger/internal/beacon"
	"github.com/roman-kulish/hiking-logger/internal/clock"
	"github.com/roman-kulish/hiking-logger/internal/radio"
	"github.com/roman-kulish/hiking-logger/internal/remote"
	"github.com/roman-kulish/hiking-logger/internal/sensor"
)

// Button is one of the remote's inputs
type Button uint8

const (
	ButtonLeft Button = iota
	ButtonRight
	ButtonSync
	ButtonLocations
	ButtonStartPrev
	ButtonStartNext
	ButtonEndPrev
	ButtonEndNext

	buttonCount
)

var buttonNames = [buttonCount]string{
	ButtonLeft:      "left",
	ButtonRight:     "right",
	ButtonSync:      "sync",
	ButtonLocations: "locations",
	ButtonStartPrev: "start-prev",
	ButtonStartNext: "start-next",
	ButtonEndPrev:   "end-prev",
	ButtonEndNext:   "end-next",
}

var buttonAliases = map[string]Button{
	"start": ButtonRight,
	"stop":  ButtonRight,
	"end":   ButtonLeft,
	"swap":  ButtonLeft,
	"loc":   ButtonLocations,
}

func (b Button) String() string {
	if b < buttonCount {
		return buttonNames[b]
	}
	return fmt.Sprintf("button(%d)", uint8(b))
}

// ParseButton accepts a button name or one of its aliases, in any case
func ParseButton(s string) (Button, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for b, name := range buttonNames {
		if s == name {
			return Button(b), nil
		}
	}
	if b, ok := buttonAliases[s]; ok {
		return b, nil
	}
	return 0, fmt.Errorf("unknown button %q", s)
}

// Remote owns everything the handheld remote runs on. Press and RequestStatus
// may be called from any goroutine; everything else belongs to the loop.
type Remote struct {
	Sensor  *sensor.State
	Wall    *clock.Wall
	Log     *remote.HikeLog
	Tracker *beacon.Tracker
	Engine  *remote.Engine

	buttons [buttonCount]*Flag
	status  *Flag
	display *clock.Period
	logger  *slog.Logger
}

func NewRemote(r radio.Radio, c clock.Clock, options ...Option) *Remote {
	s := newSettings(options)

	rm := Remote{
		status:  NewFlag(),
		display: clock.NewPeriod(c, s.displayTimeout),
		logger:  s.logger.With(slog.String("component", "device")),
	}
	for i := range rm.buttons {
		rm.buttons[i] = NewFlag()
	}

	var sensorOptions []sensor.Option
	if s.metric {
		sensorOptions = append(sensorOptions, sensor.WithMetricInput())
	}
	rm.Sensor = sensor.New(c, sensorOptions...)
	rm.Wall = clock.NewWall(c)
	rm.Log = remote.NewHikeLog(rm.Sensor, rm.Wall)
	rm.Tracker = beacon.NewTracker(c, rm.Sensor,
		beacon.WithPolicy(s.policy),
		beacon.WithLogger(s.logger))
	rm.Engine = remote.New(r, c, rm.Wall, rm.Tracker, rm.Log, remote.WithLogger(s.logger))

	return &rm
}

// Press records a button press for the next tick
func (rm *Remote) Press(b Button) {
	if b < buttonCount {
		rm.buttons[b].Set()
	}
}

// RequestStatus asks the loop to log a status line on its next tick
func (rm *Remote) RequestStatus() {
	rm.status.Set()
}

// DisplayOn reports whether a button was pressed within the display timeout
func (rm *Remote) DisplayOn() bool {
	return !rm.display.Passed()
}

// Tick handles pending presses and then runs one step of the radio. Only a
// cancelled context is returned as an error.
func (rm *Remote) Tick(ctx context.Context) error {
	for b, f := range rm.buttons {
		if f.Take() {
			rm.display.Start(0)
			rm.press(Button(b))
		}
	}

	if err := rm.Engine.CheckRadio(ctx, !rm.DisplayOn()); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rm.logger.Error("radio", slog.Any("error", err))
	}

	if rm.status.Take() {
		rm.logStatus()
	}
	return nil
}

func (rm *Remote) logStatus() {
	start, end := rm.Log.LocLink(true), rm.Log.LocLink(false)

	rm.logger.Info("status",
		slog.String("sync", rm.Engine.SyncState().String()),
		slog.String("state", rm.Log.GetLogState().String()),
		slog.String("start", start.Name),
		slog.String("end", end.Name),
		slog.String("elapsed", (time.Duration(rm.Log.ElapsedTime())*time.Second).String()),
		slog.Int("queued", rm.Engine.PacketsInQueue()),
		slog.Int("timeouts", int(rm.Engine.PacketTimeouts())))
}

func (rm *Remote) press(b Button) {
	var queued bool
	switch b {
	case ButtonLeft:
		queued = rm.Engine.LeftButton()
	case ButtonRight:
		queued = rm.Engine.RightButton()
	case ButtonSync:
		queued = rm.Engine.RequestBeaconSync()
	case ButtonLocations:
		queued = rm.Engine.RequestLocation(rm.Log.LocIndex(true))
		if rm.Log.LocIndex(false) != 0 {
			queued = rm.Engine.RequestLocation(rm.Log.LocIndex(false)) && queued
		}
	case ButtonStartPrev:
		queued = rm.Engine.StepLocation(true, false)
	case ButtonStartNext:
		queued = rm.Engine.StepLocation(true, true)
	case ButtonEndPrev:
		queued = rm.Engine.StepLocation(false, false)
	case ButtonEndNext:
		queued = rm.Engine.StepLocation(false, true)
	}

	if !queued {
		rm.logger.Debug("button ignored",
			slog.String("button", b.String()),
			slog.String("state", rm.Log.GetLogState().String()))
	}
}

// Run ticks every interval until ctx is cancelled
func (rm *Remote) Run(ctx context.Context, interval time.Duration) error {
	return run(ctx, interval, rm.Tick)
}
