package clock

import (
	"context"
	"sync"
	"time"
)

// Clock is the time source shared by the control loops
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// System is the wall clock of the host
type System struct{}

func (System) Now() time.Time {
	return time.Now()
}

func (System) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Fake is a manually driven clock. Sleep advances it instead of blocking,
// which makes the bounded polling loops deterministic in tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.Advance(d)
	return nil
}

func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *Fake) Set(now time.Time) {
	f.mu.Lock()
	f.now = now
	f.mu.Unlock()
}

// Unix returns the clock time as 32 bit Unix seconds, the resolution used by
// every stored and transmitted timestamp.
func Unix(c Clock) uint32 {
	return uint32(c.Now().Unix())
}

// Wall is a Unix seconds clock that can be corrected from an external time
// source without touching the underlying Clock.
type Wall struct {
	clock  Clock
	offset time.Duration
}

func NewWall(c Clock) *Wall {
	return &Wall{clock: c}
}

// Set corrects the wall clock and returns the applied delta in seconds.
func (w *Wall) Set(unix uint32) int64 {
	delta := int64(unix) - int64(w.Unix())
	w.offset += time.Duration(delta) * time.Second
	return delta
}

func (w *Wall) Unix() uint32 {
	return uint32(w.clock.Now().Add(w.offset).Unix())
}
