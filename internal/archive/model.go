package archive

import (
	"time"

	"github.com/roman-kulish/hiking-logger/internal/locations"
)

// Session is a catalogued hike
type Session struct {
	ID        int64
	StartTime time.Time
	EndTime   time.Time // zero when the session was never ended
	Interval  time.Duration
	Start     locations.Location
	End       locations.Location
	Samples   int
}

// Duration is the time between start and end, zero for an open session
func (s Session) Duration() time.Duration {
	if s.EndTime.IsZero() || s.EndTime.Before(s.StartTime) {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// Sample is one logged reading. Timestamps are derived from the session start
// and the sampling interval.
type Sample struct {
	Timestamp   time.Time
	Pressure    uint32 // Pa
	Temperature int16  // hundredths of a degree Celsius
}

func (s Sample) Celsius() float64 {
	return float64(s.Temperature) / 100
}

type sampleData struct {
	SessionID   int64
	Seq         int
	Timestamp   int64
	Pressure    uint32
	Temperature int16
}
