package clock

import "time"

// Period is a restartable millisecond timer. A zero duration never passes,
// which is how the beacon tracker encodes "not synchronised".
type Period struct {
	clock    Clock
	start    time.Time
	duration time.Duration
}

func NewPeriod(c Clock, d time.Duration) *Period {
	return &Period{clock: c, start: c.Now(), duration: d}
}

func (p *Period) Set(d time.Duration) {
	p.duration = d
}

func (p *Period) Get() time.Duration {
	return p.duration
}

// Start restarts the period at now+offset. A negative offset makes the period
// pass early by that amount.
func (p *Period) Start(offset time.Duration) {
	p.start = p.clock.Now().Add(offset)
}

func (p *Period) Elapsed() time.Duration {
	return p.clock.Now().Sub(p.start)
}

func (p *Period) Passed() bool {
	return p.duration != 0 && p.Elapsed() >= p.duration
}
