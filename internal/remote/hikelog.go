package remote

import (
	"github.com/roman-kulish/hiking-logger/internal/clock"
	"github.com/roman-kulish/hiking-logger/internal/hikelog"
	"github.com/roman-kulish/hiking-logger/internal/locations"
	"github.com/roman-kulish/hiking-logger/internal/sensor"
)

// HikeLog mirrors the gateway's log state from sync and location replies. A
// location whose name is empty has not been fetched yet.
type HikeLog struct {
	sensor *sensor.State
	wall   *clock.Wall

	startTime uint32
	endTime   uint32
	startIdx  uint16
	endIdx    uint16
	startLoc  locations.Link
	endLoc    locations.Link
	full      bool
}

func NewHikeLog(s *sensor.State, wall *clock.Wall) *HikeLog {
	return &HikeLog{sensor: s, wall: wall}
}

func (h *HikeLog) Active() bool {
	return h.startTime != 0
}

func (h *HikeLog) GetLogState() hikelog.State {
	switch {
	case h.startTime != 0 && h.endTime == 0:
		return hikelog.Running
	case h.startTime != 0:
		return hikelog.Stopped
	case h.startIdx != h.endIdx:
		return hikelog.NotRunning
	}
	return hikelog.CantRun
}

func (h *HikeLog) StartTime() uint32 {
	return h.startTime
}

func (h *HikeLog) EndTime() uint32 {
	return h.endTime
}

func (h *HikeLog) IsFull() bool {
	return h.full
}

// ElapsedTime is the session length so far in seconds, 0 without a session
func (h *HikeLog) ElapsedTime() uint32 {
	switch {
	case h.endTime != 0:
		return h.endTime - h.startTime
	case h.startTime != 0:
		return h.wall.Unix() - h.startTime
	}
	return 0
}

func (h *HikeLog) LocIndex(start bool) uint16 {
	if start {
		return h.startIdx
	}
	return h.endIdx
}

func (h *HikeLog) LocLink(start bool) locations.Link {
	if start {
		return h.startLoc
	}
	return h.endLoc
}

func (h *HikeLog) SwapLocIndexes() {
	h.startIdx, h.endIdx = h.endIdx, h.startIdx
	h.startLoc, h.endLoc = h.endLoc, h.startLoc
}

// Sync applies a snapshot from the gateway. A location index that changed
// invalidates its cached location, except when the change is a swap or the
// new start location is the current end location.
func (h *HikeLog) Sync(startTime, endTime uint32, startIdx, endIdx uint16, full bool) {
	if startIdx != h.startIdx {
		switch {
		case startIdx == h.endIdx && endIdx == h.startIdx:
			h.SwapLocIndexes()
		case startIdx == h.endIdx:
			h.startIdx = startIdx
			h.startLoc = h.endLoc
		default:
			h.startIdx = startIdx
			h.startLoc = locations.Link{}
		}
	}
	if endIdx != h.endIdx {
		h.endIdx = endIdx
		h.endLoc = locations.Link{}
	}

	if h.startTime == 0 && startTime != 0 {
		h.UpdateStartingAltitude()
	}

	h.startTime = startTime
	h.endTime = endTime
	h.full = full
}

func (h *HikeLog) StartingLocNeedsUpdate() bool {
	return h.startLoc.Name == ""
}

func (h *HikeLog) EndingLocNeedsUpdate() bool {
	return h.endLoc.Name == ""
}

// UpdateLoc stores a fetched location. Start and end may be the same index,
// in which case both are updated.
func (h *HikeLog) UpdateLoc(idx uint16, link locations.Link) {
	if h.startIdx == idx {
		h.startLoc = link
		h.sensor.SetStartingAltitude(float64(link.Elevation))
	}
	if h.endIdx == idx {
		h.endLoc = link
		h.sensor.SetEndingAltitude(float64(link.Elevation))
	}
}

func (h *HikeLog) UpdateStartingAltitude() {
	if !h.StartingLocNeedsUpdate() {
		h.sensor.SetStartingAltitude(float64(h.startLoc.Elevation))
	}
	if !h.EndingLocNeedsUpdate() {
		h.sensor.SetEndingAltitude(float64(h.endLoc.Elevation))
	}
}
