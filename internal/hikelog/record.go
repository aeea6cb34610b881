package hikelog

import (
	"encoding/binary"
	"fmt"

	"github.com/roman-kulish/hiking-logger/internal/locations"
)

const (
	// HeaderSize is the encoded size of a Header
	HeaderSize = 12 + 2*locations.LocationSize

	// EntrySize is the encoded size of an Entry
	EntrySize = 6

	// TerminatorSize is the two zero words written after every entry
	TerminatorSize = 8

	// SummarySize is the encoded size of a Summary
	SummarySize = 16
)

// Header opens a session in the log stream. StartTime 0 marks the end of the
// log. EndTime stays 0 until the session is ended.
type Header struct {
	StartTime uint32
	EndTime   uint32
	Interval  uint32
	Start     locations.Location
	End       locations.Location
}

func (h Header) AppendBinary(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, h.StartTime)
	dst = binary.LittleEndian.AppendUint32(dst, h.EndTime)
	dst = binary.LittleEndian.AppendUint32(dst, h.Interval)
	dst = locations.AppendLocation(dst, h.Start)
	return locations.AppendLocation(dst, h.End)
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("decoding header: need %d bytes, got %d", HeaderSize, len(b))
	}

	start, err := locations.DecodeLocation(b[12:])
	if err != nil {
		return Header{}, err
	}
	end, err := locations.DecodeLocation(b[12+locations.LocationSize:])
	if err != nil {
		return Header{}, err
	}

	return Header{
		StartTime: binary.LittleEndian.Uint32(b),
		EndTime:   binary.LittleEndian.Uint32(b[4:]),
		Interval:  binary.LittleEndian.Uint32(b[8:]),
		Start:     start,
		End:       end,
	}, nil
}

// Entry is one sample. A pressure of 0 is never a sample, it terminates the
// session.
type Entry struct {
	Pressure    uint32 // Pa
	Temperature int16  // hundredths of a degree Celsius
}

func (e Entry) AppendBinary(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, e.Pressure)
	return binary.LittleEndian.AppendUint16(dst, uint16(e.Temperature))
}

func DecodeEntry(b []byte) Entry {
	return Entry{
		Pressure:    binary.LittleEndian.Uint32(b),
		Temperature: int16(binary.LittleEndian.Uint16(b[4:])),
	}
}

// Summary is the archived record of a completed hike. Locations are referred
// to by physical index.
type Summary struct {
	StartLocIndex uint16
	EndLocIndex   uint16
	StartTime     uint32
	EndTime       uint32
	StartTemp     int16
	EndTemp       int16
}

func (s Summary) AppendBinary(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, s.StartLocIndex)
	dst = binary.LittleEndian.AppendUint16(dst, s.EndLocIndex)
	dst = binary.LittleEndian.AppendUint32(dst, s.StartTime)
	dst = binary.LittleEndian.AppendUint32(dst, s.EndTime)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(s.StartTemp))
	return binary.LittleEndian.AppendUint16(dst, uint16(s.EndTemp))
}

func (s Summary) MarshalBinary() ([]byte, error) {
	return s.AppendBinary(make([]byte, 0, SummarySize)), nil
}

func DecodeSummary(b []byte) (Summary, error) {
	if len(b) < SummarySize {
		return Summary{}, fmt.Errorf("decoding summary: need %d bytes, got %d", SummarySize, len(b))
	}
	return Summary{
		StartLocIndex: binary.LittleEndian.Uint16(b),
		EndLocIndex:   binary.LittleEndian.Uint16(b[2:]),
		StartTime:     binary.LittleEndian.Uint32(b[4:]),
		EndTime:       binary.LittleEndian.Uint32(b[8:]),
		StartTemp:     int16(binary.LittleEndian.Uint16(b[12:])),
		EndTemp:       int16(binary.LittleEndian.Uint16(b[14:])),
	}, nil
}

// Duration returns the active hiking time of the summary in seconds
func (s Summary) Duration() uint32 {
	if s.EndTime < s.StartTime {
		return 0
	}
	return s.EndTime - s.StartTime
}
