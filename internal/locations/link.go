package locations

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	// NameSize is the fixed width of a stored location name
	NameSize = 20

	// LocationSize is the encoded size of a Location: elevation + name
	LocationSize = 2 + NameSize

	// LinkSize is the size of one slot in the location stream
	LinkSize = 4 + LocationSize
)

// Location is a named waypoint. Elevation is in feet.
type Location struct {
	Elevation uint16
	Name      string
}

// Link is a Location together with its position in the sorted list. Prev and
// Next are physical slot indexes, 0 meaning none.
type Link struct {
	Prev uint16
	Next uint16
	Location
}

// AppendLocation appends the 22 byte encoding of loc to dst. Names longer
// than NameSize are truncated, shorter ones are NUL padded.
func AppendLocation(dst []byte, loc Location) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, loc.Elevation)

	var name [NameSize]byte
	copy(name[:], loc.Name)
	return append(dst, name[:]...)
}

func DecodeLocation(b []byte) (Location, error) {
	if len(b) < LocationSize {
		return Location{}, fmt.Errorf("decoding location: need %d bytes, got %d", LocationSize, len(b))
	}

	name := b[2:LocationSize]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}

	return Location{
		Elevation: binary.LittleEndian.Uint16(b),
		Name:      string(name),
	}, nil
}

func (l Link) AppendBinary(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, l.Prev)
	dst = binary.LittleEndian.AppendUint16(dst, l.Next)
	return AppendLocation(dst, l.Location)
}

func (l Link) MarshalBinary() ([]byte, error) {
	return l.AppendBinary(make([]byte, 0, LinkSize)), nil
}

func DecodeLink(b []byte) (Link, error) {
	if len(b) < LinkSize {
		return Link{}, fmt.Errorf("decoding link: need %d bytes, got %d", LinkSize, len(b))
	}

	loc, err := DecodeLocation(b[4:])
	if err != nil {
		return Link{}, err
	}

	return Link{
		Prev:     binary.LittleEndian.Uint16(b),
		Next:     binary.LittleEndian.Uint16(b[2:]),
		Location: loc,
	}, nil
}

// root shares slot 0 with the link layout: tail, head, freeHead, unused[20]
type root struct {
	tail     uint16
	head     uint16
	freeHead uint16
}

func (r root) appendBinary(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, r.tail)
	dst = binary.LittleEndian.AppendUint16(dst, r.head)
	dst = binary.LittleEndian.AppendUint16(dst, r.freeHead)
	return append(dst, make([]byte, LinkSize-6)...)
}

func decodeRoot(b []byte) root {
	return root{
		tail:     binary.LittleEndian.Uint16(b),
		head:     binary.LittleEndian.Uint16(b[2:]),
		freeHead: binary.LittleEndian.Uint16(b[4:]),
	}
}
