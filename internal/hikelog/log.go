// Package hikelog records hikes into a byte stream and archives completed
// hikes in a summary ring kept in the non-volatile settings stream.
//
// The log stream holds sessions back to back:
//
//	<header><entry>...<entry><0 u32><header><entry>...<entry><0 u32><0 u32>
//
// Every write of an entry is followed by two zero words. The cursor rests on
// the first of them while a session is active, so the next entry overwrites
// it, and on the second once the session has ended, so the next header
// overwrites it. A log interrupted at any point can therefore be recovered by
// scanning for them.
package hikelog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roman-kulish/hiking-logger/internal/bytestream"
	"github.com/roman-kulish/hiking-logger/internal/clock"
	"github.com/roman-kulish/hiking-logger/internal/locations"
	"github.com/roman-kulish/hiking-logger/internal/sensor"
)

const (
	// DefaultInterval is the time between two samples
	DefaultInterval = 4 * time.Second

	// coldStartWindow is how long after the start of an ascent the lowest
	// temperature seen replaces the starting temperature
	coldStartWindow = 23 * 60

	milestoneIncrement = 25
)

var (
	ErrSensorInvalid   = errors.New("sensor reading is not valid")
	ErrInvalidLocation = errors.New("location index is not valid")
	ErrLogFull         = errors.New("log is full")
	ErrNotActive       = errors.New("no active log")
)

// State is the log state derived from the session times and location indexes
type State uint8

const (
	CantRun State = iota
	NotRunning
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case CantRun:
		return "cant-run"
	case NotRunning:
		return "not-running"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Locations is the part of the location index the log needs
type Locations interface {
	IsValidIndex(idx uint16) (bool, error)
	Resolve(idx uint16) (locations.Link, bool, error)
}

// WithLogger sets the logger for the log
func WithLogger(logger *slog.Logger) func(l *Log) {
	return func(l *Log) {
		l.logger = logger.With(slog.String("component", "hikelog"))
	}
}

// WithInterval overrides DefaultInterval. The stored interval has a
// resolution of one second.
func WithInterval(d time.Duration) func(l *Log) {
	return func(l *Log) {
		if s := uint32(d / time.Second); s > 0 {
			l.interval = s
		}
	}
}

// Log is the hike log. It is driven by a single control loop and is not safe
// for concurrent use.
type Log struct {
	stream bytestream.Stream
	nv     nvram
	ring   *Ring

	sensor *sensor.State
	locs   Locations
	clock  clock.Clock

	hike         Summary
	interval     uint32
	nextLogTime  uint32
	startDataPos int64
	fullDataPos  int64

	logger *slog.Logger
}

// New opens the log in stream with its settings in settings, a stream of at
// least NVRAMSize bytes. A fresh settings stream, all 0xFF, initializes both.
// Otherwise the log stream is scanned for its end.
func New(
	stream bytestream.Stream,
	settings bytestream.Stream,
	s *sensor.State,
	locs Locations,
	c clock.Clock,
	options ...func(l *Log),
) (*Log, error) {
	l := Log{
		stream:   stream,
		nv:       nvram{stream: settings},
		sensor:   s,
		locs:     locs,
		clock:    c,
		interval: uint32(DefaultInterval / time.Second),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	l.ring = &Ring{nv: l.nv}

	for _, option := range options {
		option(&l)
	}

	if settings.Len() < NVRAMSize {
		return nil, fmt.Errorf("settings stream of %d bytes, need %d", settings.Len(), NVRAMSize)
	}
	if stream.Len() < 2*HeaderSize+EntrySize+TerminatorSize {
		return nil, fmt.Errorf("log stream of %d bytes is too small", stream.Len())
	}

	if err := l.initialize(); err != nil {
		return nil, fmt.Errorf("initializing log: %w", err)
	}

	return &l, nil
}

func (l *Log) initialize() error {
	l.hike = Summary{}
	l.fullDataPos = l.stream.Len() - (HeaderSize + EntrySize + TerminatorSize)

	initialized, err := l.nv.initialized()
	if err != nil {
		return err
	}

	if !initialized {
		l.logger.Info("first boot, formatting log")

		l.hike.StartLocIndex, l.hike.EndLocIndex = 1, 1
		if err = l.SaveLocIndexes(); err != nil {
			return err
		}
		if err = l.InitializeLog(); err != nil {
			return err
		}
		if err = l.ring.Reset(); err != nil {
			return err
		}
		return l.nv.markInitialized()
	}

	if l.hike.StartLocIndex, err = l.loadLocIndex(startLocAddr); err != nil {
		return err
	}
	if l.hike.EndLocIndex, err = l.loadLocIndex(endLocAddr); err != nil {
		return err
	}

	var sessions int
	if err = l.scan(func(Session) error {
		sessions++
		return nil
	}); err != nil {
		return err
	}

	l.logger.Info("log recovered",
		slog.Int("sessions", sessions),
		slog.Int64("position", l.stream.Pos()))

	return nil
}

func (l *Log) loadLocIndex(addr int64) (uint16, error) {
	idx, err := l.nv.uint16(addr)
	if err != nil {
		return 0, err
	}
	if idx == 0 || idx == 0xFFFF {
		idx = 1
	}
	return idx, nil
}

// InitializeLog discards every session by writing the end marker at the
// start of the stream.
func (l *Log) InitializeLog() error {
	l.hike.StartTime, l.hike.EndTime = 0, 0

	if _, err := l.stream.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := l.stream.Write(make([]byte, TerminatorSize)); err != nil {
		return fmt.Errorf("writing end marker: %w", err)
	}
	_, err := l.stream.Seek(0, io.SeekStart)
	return err
}

// Ring returns the summary archive
func (l *Log) Ring() *Ring {
	return l.ring
}

func (l *Log) Active() bool {
	return l.hike.StartTime != 0
}

func (l *Log) StartTime() uint32 {
	return l.hike.StartTime
}

func (l *Log) EndTime() uint32 {
	return l.hike.EndTime
}

// Hike returns the working summary of the current session
func (l *Log) Hike() Summary {
	return l.hike
}

func (l *Log) GetLogState() State {
	switch {
	case l.hike.StartTime != 0 && l.hike.EndTime == 0:
		return Running
	case l.hike.StartTime != 0:
		return Stopped
	case l.hike.StartLocIndex != l.hike.EndLocIndex:
		return NotRunning
	}
	return CantRun
}

// IsFull reports whether there is no room left for another entry, or for a
// new session when none is active.
func (l *Log) IsFull() bool {
	pos := l.stream.Pos()
	if l.hike.StartTime == 0 {
		pos += HeaderSize + EntrySize
	}
	return pos >= l.fullDataPos
}

// SecondsTillFull estimates the logging headroom left in the stream
func (l *Log) SecondsTillFull() time.Duration {
	entries := max(l.fullDataPos-l.stream.Pos(), 0) / EntrySize
	return time.Duration(entries) * time.Duration(l.interval) * time.Second
}

// ElapsedTime returns the active time of the current session in seconds
func (l *Log) ElapsedTime() uint32 {
	switch {
	case l.hike.EndTime != 0:
		return l.hike.EndTime - l.hike.StartTime
	case l.hike.StartTime != 0:
		return clock.Unix(l.clock) - l.hike.StartTime
	}
	return 0
}

// StartLog starts a session, or resumes a stopped one. A startTime of 0 means
// now. Starting a running session does nothing.
//
// A new session gets its header and end marker written; the first sample is
// due at startTime and is written by the next LogEntryIfTime.
func (l *Log) StartLog(startTime uint32) error {
	if !l.sensor.IsValid() {
		return ErrSensorInvalid
	}
	if startTime == 0 {
		startTime = clock.Unix(l.clock)
	}

	switch {
	case l.hike.StartTime == 0:
		return l.start(startTime)
	case l.hike.EndTime != 0:
		return l.resume(startTime)
	}
	return nil
}

func (l *Log) start(startTime uint32) error {
	if l.IsFull() {
		return ErrLogFull
	}

	start, err := l.resolve(l.hike.StartLocIndex)
	if err != nil {
		return fmt.Errorf("starting location: %w", err)
	}
	end, err := l.resolve(l.hike.EndLocIndex)
	if err != nil {
		return fmt.Errorf("ending location: %w", err)
	}

	l.sensor.SetStartingAltitude(float64(start.Elevation))
	l.sensor.SetEndingAltitude(float64(end.Elevation))

	header := Header{
		StartTime: startTime,
		Interval:  l.interval,
		Start:     start,
		End:       end,
	}
	buf := header.AppendBinary(make([]byte, 0, HeaderSize+TerminatorSize))
	buf = append(buf, make([]byte, TerminatorSize)...)

	// the start time word goes in last, so a torn header still reads as the
	// end of the log
	l.startDataPos = l.stream.Pos()
	if err = l.writeAt(l.startDataPos+4, buf[4:]); err != nil {
		_, _ = l.stream.Seek(l.startDataPos, io.SeekStart)
		return fmt.Errorf("writing header: %w", err)
	}
	if err = l.writeAt(l.startDataPos, buf[:4]); err != nil {
		_, _ = l.stream.Seek(l.startDataPos, io.SeekStart)
		return fmt.Errorf("writing start time: %w", err)
	}
	if _, err = l.stream.Seek(l.startDataPos+HeaderSize, io.SeekStart); err != nil {
		return err
	}

	l.hike.StartTime = startTime
	l.hike.EndTime = 0
	l.nextLogTime = startTime

	if err = l.SaveLocIndexes(); err != nil {
		return err
	}

	temp := int16(l.sensor.PeekTemperature())
	l.hike.StartTemp, l.hike.EndTemp = temp, temp
	l.sensor.ResetMilestone(milestoneIncrement)

	l.logger.Info("log started",
		slog.Uint64("start", uint64(startTime)),
		slog.String("from", start.Name),
		slog.String("to", end.Name),
		slog.Int64("offset", l.startDataPos))

	return nil
}

// resume moves the start time forward by the length of the pause so the
// elapsed time only counts hiking.
func (l *Log) resume(now uint32) error {
	l.hike.StartTime = now - (l.hike.EndTime - l.hike.StartTime)
	l.hike.EndTime = 0

	l.logger.Info("log resumed", slog.Uint64("start", uint64(l.hike.StartTime)))

	return l.LogEntry()
}

func (l *Log) resolve(idx uint16) (locations.Location, error) {
	link, ok, err := l.locs.Resolve(idx)
	if err != nil {
		return locations.Location{}, err
	}
	if !ok {
		return locations.Location{}, fmt.Errorf("index %d: %w", idx, ErrInvalidLocation)
	}
	return link.Location, nil
}

// LogEntry writes the current reading as the next sample. Once the stream is
// full the last sample is overwritten instead.
func (l *Log) LogEntry() error {
	if l.hike.StartTime == 0 {
		return ErrNotActive
	}
	if !l.sensor.IsValid() {
		return ErrSensorInvalid
	}

	now := clock.Unix(l.clock)
	entry := Entry{
		Pressure:    l.sensor.PeekPressure(),
		Temperature: int16(l.sensor.PeekTemperature()),
	}

	// a pack stored in a warm vehicle reads high for a while
	if l.sensor.Ascending() &&
		int64(now)-int64(l.hike.StartTime) < coldStartWindow &&
		l.hike.StartTemp > entry.Temperature {
		l.hike.StartTemp = entry.Temperature
	}

	if l.IsFull() && l.stream.Pos()-EntrySize >= l.startDataPos+HeaderSize {
		if _, err := l.stream.Seek(-EntrySize, io.SeekCurrent); err != nil {
			return err
		}
	}

	// the new end marker lands before the entry that overwrites the old one
	pos := l.stream.Pos()
	if err := l.writeAt(pos+EntrySize, make([]byte, TerminatorSize)); err != nil {
		_, _ = l.stream.Seek(pos, io.SeekStart)
		return fmt.Errorf("writing end marker: %w", err)
	}
	if err := l.writeAt(pos, entry.AppendBinary(make([]byte, 0, EntrySize))); err != nil {
		_, _ = l.stream.Seek(pos, io.SeekStart)
		return fmt.Errorf("writing entry: %w", err)
	}

	l.nextLogTime = now + l.interval
	return nil
}

func (l *Log) writeAt(pos int64, p []byte) error {
	if _, err := l.stream.Seek(pos, io.SeekStart); err != nil {
		return err
	}
	_, err := l.stream.Write(p)
	return err
}

// LogEntryIfTime writes a sample when a session is running, the sensor is
// valid and the sample is due.
func (l *Log) LogEntryIfTime() error {
	if !l.sensor.IsValid() ||
		l.hike.StartTime == 0 ||
		l.hike.EndTime != 0 ||
		l.nextLogTime > clock.Unix(l.clock) {
		return nil
	}
	return l.LogEntry()
}

// StopLog pauses the running session at endTime, 0 meaning now
func (l *Log) StopLog(endTime uint32) {
	if l.hike.StartTime == 0 || l.hike.EndTime != 0 {
		return
	}
	if endTime == 0 {
		endTime = clock.Unix(l.clock)
	}
	l.hike.EndTime = endTime
	l.hike.EndTemp = int16(l.sensor.PeekTemperature())

	l.logger.Info("log stopped",
		slog.Uint64("end", uint64(endTime)),
		slog.Uint64("elapsed", uint64(l.ElapsedTime())))
}

// EndLog closes the session. Its start and end times are written back into
// the header and, when every altitude milestone was passed, its summary is
// appended to the ring. A running session is stopped first. It reports
// whether the summary was archived.
func (l *Log) EndLog() (bool, error) {
	if l.hike.StartTime == 0 {
		return false, nil
	}
	l.StopLog(0)

	// disarms milestone notifications
	defer l.sensor.ResetMilestone(100)

	savedPos := l.stream.Pos()

	var archived bool
	if l.sensor.PassedAllMilestones() {
		if err := l.ring.Append(l.hike); err != nil {
			return false, fmt.Errorf("archiving summary: %w", err)
		}
		archived = true
	}

	if _, err := l.stream.Seek(l.startDataPos, io.SeekStart); err != nil {
		return archived, err
	}

	times := binary.LittleEndian.AppendUint32(make([]byte, 0, 8), l.hike.StartTime)
	times = binary.LittleEndian.AppendUint32(times, l.hike.EndTime)
	if _, err := l.stream.Write(times); err != nil {
		_, _ = l.stream.Seek(savedPos, io.SeekStart)
		return archived, fmt.Errorf("writing session times: %w", err)
	}

	// the second end marker word becomes the next header
	if _, err := l.stream.Seek(savedPos+4, io.SeekStart); err != nil {
		return archived, err
	}

	l.logger.Info("log ended",
		slog.Uint64("start", uint64(l.hike.StartTime)),
		slog.Uint64("end", uint64(l.hike.EndTime)),
		slog.Bool("archived", archived))

	l.hike.StartTime, l.hike.EndTime = 0, 0
	return archived, nil
}

func (l *Log) StartingLocIndex() uint16 {
	return l.hike.StartLocIndex
}

func (l *Log) EndingLocIndex() uint16 {
	return l.hike.EndLocIndex
}

// SetStartingLocIndex selects the start location. It is refused while a
// session is active or when idx is not a live location.
func (l *Log) SetStartingLocIndex(idx uint16) (bool, error) {
	return l.setLocIndex(&l.hike.StartLocIndex, idx)
}

// SetEndingLocIndex selects the end location, see SetStartingLocIndex
func (l *Log) SetEndingLocIndex(idx uint16) (bool, error) {
	return l.setLocIndex(&l.hike.EndLocIndex, idx)
}

func (l *Log) setLocIndex(dst *uint16, idx uint16) (bool, error) {
	if l.Active() {
		return false, nil
	}
	ok, err := l.locs.IsValidIndex(idx)
	if err != nil || !ok {
		return false, err
	}
	*dst = idx
	return true, l.SaveLocIndexes()
}

func (l *Log) SwapLocIndexes() error {
	l.hike.StartLocIndex, l.hike.EndLocIndex = l.hike.EndLocIndex, l.hike.StartLocIndex
	return l.SaveLocIndexes()
}

// SaveLocIndexes persists the location indexes, skipping unchanged ones
func (l *Log) SaveLocIndexes() error {
	if err := l.nv.updateUint16(startLocAddr, l.hike.StartLocIndex); err != nil {
		return err
	}
	return l.nv.updateUint16(endLocAddr, l.hike.EndLocIndex)
}

// UpdateStartingAltitude sets the sensor's starting altitude from the start
// location, which also fixes the sea level pressure.
func (l *Log) UpdateStartingAltitude() error {
	loc, err := l.resolve(l.hike.StartLocIndex)
	if err != nil {
		return err
	}
	l.sensor.SetStartingAltitude(float64(loc.Elevation))
	return nil
}

// SummaryLocations resolves the locations a summary refers to. The ok flag
// of a location whose slot has since been freed is false.
func (l *Log) SummaryLocations(s Summary) (start, end locations.Location, startOK, endOK bool, err error) {
	link, startOK, err := l.locs.Resolve(s.StartLocIndex)
	if err != nil {
		return start, end, false, false, err
	}
	start = link.Location

	link, endOK, err = l.locs.Resolve(s.EndLocIndex)
	if err != nil {
		return start, end, startOK, false, err
	}
	end = link.Location
	return start, end, startOK, endOK, nil
}
