package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/hiking-logger/internal/bytestream"
	"github.com/roman-kulish/hiking-logger/internal/clock"
	"github.com/roman-kulish/hiking-logger/internal/hikelog"
	"github.com/roman-kulish/hiking-logger/internal/locations"
	"github.com/roman-kulish/hiking-logger/internal/sensor"
)

type logFixture struct {
	clock  *clock.Fake
	sensor *sensor.State
	log    *hikelog.Log
}

func newLog(t *testing.T) *logFixture {
	t.Helper()

	f := logFixture{clock: clock.NewFake(time.Unix(1000, 0))}
	f.sensor = sensor.New(f.clock)
	f.sensor.Set(2000, 101325)

	locs, err := locations.New(bytestream.NewMemory(8 * locations.LinkSize))
	require.NoError(t, err)
	low, err := locs.Add(locations.Location{Name: "LONE PINE", Elevation: 0})
	require.NoError(t, err)
	high, err := locs.Add(locations.Location{Name: "MT WHITNEY", Elevation: 3281})
	require.NoError(t, err)

	f.log, err = hikelog.New(bytestream.NewMemory(4096), bytestream.NewErased(hikelog.NVRAMSize), f.sensor, locs, f.clock)
	require.NoError(t, err)

	_, err = f.log.SetStartingLocIndex(low)
	require.NoError(t, err)
	_, err = f.log.SetEndingLocIndex(high)
	require.NoError(t, err)

	return &f
}

// hike records a complete session with n samples climbing to the summit
func (f *logFixture) hike(t *testing.T, start int64, n int) {
	t.Helper()

	f.clock.Set(time.Unix(start, 0))
	f.sensor.Set(2000, 101325)
	require.NoError(t, f.log.StartLog(uint32(start)))

	for i := 0; i < n; i++ {
		f.clock.Set(time.Unix(start+int64(4*i), 0))
		f.sensor.Set(int32(2000-i), uint32(101325-12325*(i+1)/n))
		for f.sensor.PassedMilestone() != 0 {
		}
		require.NoError(t, f.log.LogEntry())
	}

	f.log.StopLog(uint32(start + int64(4*n)))
	_, err := f.log.EndLog()
	require.NoError(t, err)
}

func TestSqliteStore_StoreSession(t *testing.T) {
	ctx := context.Background()
	f := newLog(t)
	f.hike(t, 1000, 400)

	var sessions []hikelog.Session
	require.NoError(t, f.log.Walk(func(s hikelog.Session) error {
		sessions = append(sessions, s)
		return nil
	}))
	require.Len(t, sessions, 1)

	store := NewSqliteStore(filepath.Join(t.TempDir(), "hikes.sqlite"), WithBatchSize(64))
	defer store.Close()

	id, err := store.StoreSession(ctx, sessions[0])
	require.NoError(t, err)

	again, err := store.StoreSession(ctx, sessions[0])
	require.NoError(t, err)
	assert.Equal(t, id, again, "same start time replaces the session")

	all, err := store.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	s := all[0]
	assert.Equal(t, time.Unix(1000, 0).UTC(), s.StartTime)
	assert.Equal(t, 1600*time.Second, s.Duration())
	assert.Equal(t, 4*time.Second, s.Interval)
	assert.Equal(t, "LONE PINE", s.Start.Name)
	assert.Equal(t, "MT WHITNEY", s.End.Name)
	assert.Equal(t, uint16(3281), s.End.Elevation)
	assert.Equal(t, 400, s.Samples)

	one, err := store.Session(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, s, one)

	samples, err := store.Samples(ctx, id)
	require.NoError(t, err)
	require.Len(t, samples, 400)
	assert.Equal(t, sessions[0].Entries[0].Pressure, samples[0].Pressure)
	assert.InDelta(t, 20.0, samples[0].Celsius(), 0.001)
	assert.Equal(t, time.Unix(1004, 0).UTC(), samples[1].Timestamp)
	assert.Equal(t, sessions[0].Entries[399].Pressure, samples[399].Pressure)
}

func TestSqliteStore_Summaries(t *testing.T) {
	ctx := context.Background()
	store := NewSqliteStore(filepath.Join(t.TempDir(), "hikes.sqlite"))
	defer store.Close()

	in := []hikelog.Summary{
		{StartLocIndex: 1, EndLocIndex: 2, StartTime: 2000, EndTime: 2600, StartTemp: 1500, EndTemp: -250},
		{StartLocIndex: 2, EndLocIndex: 1, StartTime: 1000, EndTime: 1300, StartTemp: 2000, EndTemp: 1800},
	}
	require.NoError(t, store.StoreSummaries(ctx, in))

	in[0].EndTime = 2700
	require.NoError(t, store.StoreSummaries(ctx, in[:1]))

	out, err := store.Summaries(ctx)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, in[1], out[0])
	assert.Equal(t, in[0], out[1])
}

func TestSqliteStore_CloseTwice(t *testing.T) {
	store := NewSqliteStore(filepath.Join(t.TempDir(), "hikes.sqlite"))
	require.NoError(t, store.StoreSummaries(context.Background(), []hikelog.Summary{{StartTime: 1}}))
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func TestDirVolume(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "card")
	vol, err := NewDirVolume(dir)
	require.NoError(t, err)

	w, err := vol.Create("HikeSum.bin")
	require.NoError(t, err)
	_, err = w.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	b, err := os.ReadFile(filepath.Join(dir, "HikeSum.bin"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(b))

	_, err = vol.Create("../escape.log")
	assert.Error(t, err)
	_, err = vol.Open("missing.log")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExporter_Archive(t *testing.T) {
	ctx := context.Background()
	f := newLog(t)
	f.hike(t, 1000, 3)
	f.hike(t, 5000, 5)

	vol, err := NewDirVolume(t.TempDir())
	require.NoError(t, err)
	store := NewSqliteStore(filepath.Join(t.TempDir(), "hikes.sqlite"))
	defer store.Close()

	e := NewExporter(vol, WithCatalogue(store))
	require.NoError(t, e.Archive(ctx, f.log))
	require.NoError(t, e.Archive(ctx, f.log), "archiving twice is harmless")

	for _, name := range []string{"000003E8.log", "00001388.log", hikelog.SummariesFile} {
		assert.FileExists(t, filepath.Join(vol.Dir(), name))
	}

	rd, err := vol.Open("00001388.log")
	require.NoError(t, err)
	defer rd.Close()
	s, err := hikelog.ReadSession(rd)
	require.NoError(t, err)
	assert.Len(t, s.Entries, 5)

	sessions, err := store.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, 3, sessions[0].Samples)
	assert.Equal(t, 5, sessions[1].Samples)

	summaries, err := store.Summaries(ctx)
	require.NoError(t, err)
	assert.Len(t, summaries, 2)
}

func TestExporter_WithoutCatalogue(t *testing.T) {
	f := newLog(t)
	f.hike(t, 1000, 2)

	vol, err := NewDirVolume(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, NewExporter(vol).Archive(context.Background(), f.log))
	assert.FileExists(t, filepath.Join(vol.Dir(), "000003E8.log"))
}
