package hikelog

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memFile struct {
	*bytes.Buffer
}

func (memFile) Close() error {
	return nil
}

type memVolume map[string]*bytes.Buffer

func (v memVolume) Create(name string) (io.WriteCloser, error) {
	b := new(bytes.Buffer)
	v[name] = b
	return memFile{b}, nil
}

func (v memVolume) Open(name string) (io.ReadCloser, error) {
	b, ok := v[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(b.Bytes())), nil
}

func TestLog_SaveLog(t *testing.T) {
	f := newFixture(t, 1024)
	f.hike(t, 1000)
	f.hike(t, 0x5D960E10)

	vol := memVolume{}
	pos := f.data.Pos()

	sessions, err := f.log.SaveLog(vol)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, pos, f.data.Pos())

	require.Contains(t, vol, "000003E8.log")
	require.Contains(t, vol, "5D960E10.log")

	rd, err := vol.Open("5D960E10.log")
	require.NoError(t, err)
	s, err := ReadSession(rd)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x5D960E10), s.Header.StartTime)
	assert.Equal(t, uint32(0x5D960E10+12), s.Header.EndTime)
	assert.Equal(t, sessions[1].Entries, s.Entries)

	_, err = ReadSession(bytes.NewReader([]byte("NOPE and some more bytes that are not a header")))
	assert.Error(t, err)
}

func TestLog_SummariesRoundTrip(t *testing.T) {
	f := newFixture(t, 1024)
	vol := memVolume{}

	assert.ErrorIs(t, f.log.SaveSummaries(vol), ErrNoSummaries)
	assert.NotContains(t, vol, SummariesFile)

	f.hike(t, 1000)
	require.NoError(t, f.log.SaveSummaries(vol))
	assert.Equal(t, 4+ringBytes, vol[SummariesFile].Len())

	require.NoError(t, f.log.Ring().Reset())
	require.NoError(t, f.log.LoadSummaries(vol))

	summaries, err := f.log.Ring().Summaries()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, uint32(1012), summaries[0].EndTime)

	assert.ErrorIs(t, f.log.LoadSummaries(memVolume{}), os.ErrNotExist)
}
