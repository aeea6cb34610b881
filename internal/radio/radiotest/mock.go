package radiotest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/roman-kulish/hiking-logger/internal/clock"
	"github.com/roman-kulish/hiking-logger/internal/radio"
)

type scheduled struct {
	at    time.Time
	frame radio.Frame
}

// Mock is a scripted radio. Frames are queued with a delivery time and handed
// out by Receive once the clock reaches it, whatever the mode. Sent frames are
// recorded and OnSend, when set, may queue replies.
type Mock struct {
	clock clock.Clock
	addr  uint8

	mu      sync.Mutex
	mode    radio.Mode
	pending []scheduled
	sent    []radio.Frame

	OnSend func(m *Mock, f radio.Frame)
}

var _ radio.Radio = (*Mock)(nil)

func NewMock(c clock.Clock, addr uint8) *Mock {
	return &Mock{clock: c, addr: addr, mode: radio.ModeStandby}
}

// Inject queues f for delivery at the given time
func (m *Mock) Inject(at time.Time, f radio.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending = append(m.pending, scheduled{at: at, frame: f})
	sort.SliceStable(m.pending, func(i, j int) bool {
		return m.pending[i].at.Before(m.pending[j].at)
	})
}

// Deliver queues f for immediate delivery
func (m *Mock) Deliver(f radio.Frame) {
	m.Inject(m.clock.Now(), f)
}

func (m *Mock) Address() uint8 {
	return m.addr
}

func (m *Mock) Mode() radio.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

func (m *Mock) Receive() (radio.Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.pending) == 0 || m.pending[0].at.After(m.clock.Now()) {
		m.mode = radio.ModeRX
		return radio.Frame{}, false
	}

	f := m.pending[0].frame
	m.pending = m.pending[1:]
	m.mode = radio.ModeStandby
	return f, true
}

func (m *Mock) HasData() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending) > 0 && !m.pending[0].at.After(m.clock.Now())
}

func (m *Mock) Send(ctx context.Context, to uint8, payload []byte, requestAck bool) error {
	return m.send(ctx, radio.Frame{From: m.addr, To: to, Payload: payload, AckRequested: requestAck})
}

func (m *Mock) SendAck(ctx context.Context, f radio.Frame, payload []byte) error {
	return m.send(ctx, radio.Frame{From: m.addr, To: f.From, Payload: payload, IsAck: true})
}

func (m *Mock) send(ctx context.Context, f radio.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := radio.CheckPayload(f.Payload); err != nil {
		return err
	}
	f.Payload = append([]byte(nil), f.Payload...)

	m.mu.Lock()
	m.sent = append(m.sent, f)
	m.mode = radio.ModeStandby
	onSend := m.OnSend
	m.mu.Unlock()

	if onSend != nil {
		onSend(m, f)
	}
	return nil
}

func (m *Mock) Sleep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = radio.ModeSleep
}

// Sent returns every frame transmitted so far
func (m *Mock) Sent() []radio.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]radio.Frame(nil), m.sent...)
}

// ResetSent forgets the recorded frames
func (m *Mock) ResetSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}
