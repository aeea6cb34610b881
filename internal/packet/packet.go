// Package packet defines the radio messages exchanged by the beacon, the
// gateway and the remote. Every packet starts with a 4 byte message id; all
// fields are little endian.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/roman-kulish/hiking-logger/internal/locations"
)

var (
	ErrShortPacket = errors.New("packet too short")
	ErrUnknownID   = errors.New("unknown message id")
)

// ID is a four character message tag read as a little endian u32, so 'BMP2'
// is stored as the bytes "2PMB".
type ID uint32

const (
	IDBeacon           ID = 0x424D5032 // BMP2
	IDSyncBeacon       ID = 0x424D5053 // BMPS
	IDGetSync          ID = 0x4753594E // GSYN
	IDSync             ID = 0x53594E43 // SYNC
	IDGetLocation      ID = 0x474C4F43 // GLOC
	IDHikeLocation     ID = 0x484C4F43 // HLOC
	IDSetStartLocation ID = 0x53455453 // SETS
	IDSetEndLocation   ID = 0x53455445 // SETE
	IDStartLog         ID = 0x53545254 // STRT
	IDStopLog          ID = 0x53544F50 // STOP
	IDEndLog           ID = 0x454E444C // ENDL
	IDSwapLocIndexes   ID = 0x53574150 // SWAP
)

func (id ID) String() string {
	b := binary.BigEndian.AppendUint32(nil, uint32(id))
	for _, c := range b {
		if c < 0x20 || c > 0x7E {
			return fmt.Sprintf("0x%08X", uint32(id))
		}
	}
	return string(b)
}

const (
	BeaconSize   = 12
	RequestSize  = 4
	LocIndexSize = 6
	TimeSize     = 8
	SyncSize     = 21
	LocationSize = 6 + locations.LinkSize

	// MaxSize is the size of the largest packet
	MaxSize = LocationSize
)

// Packet is a message that can be put on the air
type Packet interface {
	ID() ID
	AppendBinary(dst []byte) []byte
}

// Marshal returns the wire form of p
func Marshal(p Packet) []byte {
	return p.AppendBinary(make([]byte, 0, MaxSize))
}

// PeekID returns the message id of b without decoding the payload
func PeekID(b []byte) (ID, error) {
	if len(b) < 4 {
		return 0, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(b))
	}
	return ID(binary.LittleEndian.Uint32(b)), nil
}

// Decode parses b. Trailing bytes, such as queue slot padding, are ignored.
func Decode(b []byte) (Packet, error) {
	id, err := PeekID(b)
	if err != nil {
		return nil, err
	}

	need := map[ID]int{
		IDBeacon:           BeaconSize,
		IDSyncBeacon:       RequestSize,
		IDGetSync:          RequestSize,
		IDEndLog:           RequestSize,
		IDSwapLocIndexes:   RequestSize,
		IDSync:             SyncSize,
		IDGetLocation:      LocIndexSize,
		IDSetStartLocation: LocIndexSize,
		IDSetEndLocation:   LocIndexSize,
		IDHikeLocation:     LocationSize,
		IDStartLog:         TimeSize,
		IDStopLog:          TimeSize,
	}[id]
	if need == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownID, id)
	}
	if len(b) < need {
		return nil, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrShortPacket, id, need, len(b))
	}

	le := binary.LittleEndian
	switch id {
	case IDBeacon:
		return Beacon{
			Temperature: int32(le.Uint32(b[4:])),
			Pressure:    le.Uint32(b[8:]),
		}, nil
	case IDSync:
		return Sync{
			Time:          le.Uint32(b[4:]),
			StartTime:     le.Uint32(b[8:]),
			EndTime:       le.Uint32(b[12:]),
			StartLocIndex: le.Uint16(b[16:]),
			EndLocIndex:   le.Uint16(b[18:]),
			LogIsFull:     b[20] != 0,
		}, nil
	case IDGetLocation, IDSetStartLocation, IDSetEndLocation:
		return LocIndex{Kind: id, Index: le.Uint16(b[4:])}, nil
	case IDHikeLocation:
		link, err := locations.DecodeLink(b[6:])
		if err != nil {
			return nil, err
		}
		return Location{Index: le.Uint16(b[4:]), Link: link}, nil
	case IDStartLog, IDStopLog:
		return Time{Kind: id, Time: le.Uint32(b[4:])}, nil
	}
	return Request{Kind: id}, nil
}

// Beacon is broadcast by the sensor unit
type Beacon struct {
	Temperature int32  // hundredths of a degree Celsius
	Pressure    uint32 // Pa
}

func (Beacon) ID() ID { return IDBeacon }

func (p Beacon) AppendBinary(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(IDBeacon))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(p.Temperature))
	return binary.LittleEndian.AppendUint32(dst, p.Pressure)
}

// Request is a message without a payload: BMPS, GSYN, ENDL or SWAP
type Request struct {
	Kind ID
}

func (p Request) ID() ID { return p.Kind }

func (p Request) AppendBinary(dst []byte) []byte {
	return binary.LittleEndian.AppendUint32(dst, uint32(p.Kind))
}

// LocIndex carries a physical location index: GLOC, SETS or SETE
type LocIndex struct {
	Kind  ID
	Index uint16
}

func (p LocIndex) ID() ID { return p.Kind }

func (p LocIndex) AppendBinary(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(p.Kind))
	return binary.LittleEndian.AppendUint16(dst, p.Index)
}

// Time carries the moment a button was pressed: STRT or STOP
type Time struct {
	Kind ID
	Time uint32
}

func (p Time) ID() ID { return p.Kind }

func (p Time) AppendBinary(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(p.Kind))
	return binary.LittleEndian.AppendUint32(dst, p.Time)
}

// Sync is the gateway's log state snapshot
type Sync struct {
	Time          uint32
	StartTime     uint32
	EndTime       uint32
	StartLocIndex uint16
	EndLocIndex   uint16
	LogIsFull     bool
}

func (Sync) ID() ID { return IDSync }

func (p Sync) AppendBinary(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(IDSync))
	dst = binary.LittleEndian.AppendUint32(dst, p.Time)
	dst = binary.LittleEndian.AppendUint32(dst, p.StartTime)
	dst = binary.LittleEndian.AppendUint32(dst, p.EndTime)
	dst = binary.LittleEndian.AppendUint16(dst, p.StartLocIndex)
	dst = binary.LittleEndian.AppendUint16(dst, p.EndLocIndex)
	if p.LogIsFull {
		return append(dst, 1)
	}
	return append(dst, 0)
}

// Location answers GLOC, SETS and SETE with the location and its neighbours
type Location struct {
	Index uint16
	Link  locations.Link
}

func (Location) ID() ID { return IDHikeLocation }

func (p Location) AppendBinary(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(IDHikeLocation))
	dst = binary.LittleEndian.AppendUint16(dst, p.Index)
	return p.Link.AppendBinary(dst)
}
