// Package radiotest provides in-memory radios for tests and simulations.
package radiotest

import (
	"context"
	"sync"

	"github.com/roman-kulish/hiking-logger/internal/radio"
)

// Air is a shared medium. A frame sent by one node is heard by every other
// addressed node that is in receive mode at that moment.
type Air struct {
	mu    sync.Mutex
	nodes []*Node
}

func NewAir() *Air {
	return &Air{}
}

// Join adds a node with the given address. It starts in standby.
func (a *Air) Join(addr uint8) *Node {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := &Node{air: a, addr: addr, mode: radio.ModeStandby}
	a.nodes = append(a.nodes, n)
	return n
}

func (a *Air) transmit(f radio.Frame) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, n := range a.nodes {
		n.hear(f)
	}
}

// Node is a radio attached to an Air
type Node struct {
	air  *Air
	addr uint8

	mu    sync.Mutex
	mode  radio.Mode
	inbox []radio.Frame
	sent  []radio.Frame
}

var _ radio.Radio = (*Node)(nil)

func (n *Node) hear(f radio.Frame) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.mode != radio.ModeRX || !radio.Accepts(n.addr, f) {
		return
	}
	f.Payload = append([]byte(nil), f.Payload...)
	n.inbox = append(n.inbox, f)
}

func (n *Node) Address() uint8 {
	return n.addr
}

func (n *Node) Mode() radio.Mode {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.mode
}

func (n *Node) Receive() (radio.Frame, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.mode != radio.ModeRX {
		n.mode = radio.ModeRX
		n.inbox = n.inbox[:0]
		return radio.Frame{}, false
	}
	if len(n.inbox) == 0 {
		return radio.Frame{}, false
	}

	f := n.inbox[0]
	n.inbox = n.inbox[1:]
	n.mode = radio.ModeStandby
	return f, true
}

func (n *Node) HasData() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.mode == radio.ModeRX && len(n.inbox) > 0
}

func (n *Node) Send(ctx context.Context, to uint8, payload []byte, requestAck bool) error {
	return n.send(ctx, radio.Frame{From: n.addr, To: to, Payload: payload, AckRequested: requestAck})
}

func (n *Node) SendAck(ctx context.Context, f radio.Frame, payload []byte) error {
	return n.send(ctx, radio.Frame{From: n.addr, To: f.From, Payload: payload, IsAck: true})
}

func (n *Node) send(ctx context.Context, f radio.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := radio.CheckPayload(f.Payload); err != nil {
		return err
	}

	n.mu.Lock()
	n.mode = radio.ModeTX
	n.sent = append(n.sent, f)
	n.mu.Unlock()

	n.air.transmit(f)

	n.mu.Lock()
	n.mode = radio.ModeStandby
	n.mu.Unlock()
	return nil
}

func (n *Node) Sleep() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mode = radio.ModeSleep
}

// Sent returns every frame transmitted by the node
func (n *Node) Sent() []radio.Frame {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]radio.Frame(nil), n.sent...)
}
