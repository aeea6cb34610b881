// Package radio describes the half duplex packet radio shared by the beacon,
// the gateway and the remote.
package radio

import (
	"context"
	"errors"
	"fmt"
)

const (
	// Broadcast addresses every node
	Broadcast uint8 = 255

	// MaxPayload is the largest payload a frame can carry
	MaxPayload = 61
)

var ErrPayloadTooLarge = errors.New("payload too large")

// Mode is the operating mode of the transceiver
type Mode uint8

const (
	ModeSleep Mode = iota
	ModeStandby
	ModeRX
	ModeTX
)

func (m Mode) String() string {
	switch m {
	case ModeSleep:
		return "sleep"
	case ModeStandby:
		return "standby"
	case ModeRX:
		return "rx"
	case ModeTX:
		return "tx"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// Frame is one transmission on the air
type Frame struct {
	From         uint8
	To           uint8
	Payload      []byte
	AckRequested bool
	IsAck        bool
}

// Radio is a packet transceiver. Only frames that arrive while it is in
// receive mode are heard.
type Radio interface {
	Address() uint8
	Mode() Mode

	// Receive polls for a frame without blocking. A radio that is not
	// receiving is switched to receive mode and reports nothing. When a frame
	// is returned the radio drops to standby.
	Receive() (Frame, bool)

	// HasData reports whether a frame is waiting to be read by Receive
	HasData() bool

	// Send transmits payload to the node at address to and leaves the radio
	// in standby.
	Send(ctx context.Context, to uint8, payload []byte, requestAck bool) error

	// SendAck answers f with payload
	SendAck(ctx context.Context, f Frame, payload []byte) error

	Sleep()
}

// CheckPayload validates the size of an outgoing payload
func CheckPayload(payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	return nil
}

// Accepts reports whether a node at address addr should hear f
func Accepts(addr uint8, f Frame) bool {
	return f.From != addr && (f.To == addr || f.To == Broadcast)
}
