package hikelog

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/hiking-logger/internal/bytestream"
)

func newRing(t *testing.T) *Ring {
	t.Helper()
	r := &Ring{nv: nvram{stream: bytestream.NewErased(NVRAMSize)}}
	require.NoError(t, r.Reset())
	return r
}

func TestRing_Wraparound(t *testing.T) {
	for _, k := range []int{1, 7, MaxSummaries, 2*MaxSummaries + 3} {
		t.Run(fmt.Sprintf("capacity+%d", k), func(t *testing.T) {
			r := newRing(t)

			total := MaxSummaries + k
			for i := 1; i <= total; i++ {
				require.NoError(t, r.Append(Summary{StartTime: uint32(i), EndTime: uint32(i + 60)}))
			}

			summaries, err := r.Summaries()
			require.NoError(t, err)
			require.Len(t, summaries, MaxSummaries)
			assert.Equal(t, uint32(k+1), summaries[0].StartTime, "oldest survivor first")
			assert.Equal(t, uint32(total), summaries[MaxSummaries-1].StartTime)

			h, err := r.header()
			require.NoError(t, err)
			oldest, ok, err := r.Get(h.head)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, uint32(k+1), oldest.StartTime, "head is the oldest summary")

			newest, _, err := r.Get(h.tail)
			require.NoError(t, err)
			assert.Equal(t, uint32(total), newest.StartTime)
		})
	}
}

func TestRing_BeforeFirstWrap(t *testing.T) {
	r := newRing(t)

	empty, err := r.Empty()
	require.NoError(t, err)
	assert.True(t, empty)

	_, ok, err := r.Get(0)
	require.NoError(t, err)
	assert.False(t, ok)

	for i := 1; i <= 3; i++ {
		require.NoError(t, r.Append(Summary{StartTime: uint32(i)}))
	}

	last, err := r.LastRef()
	require.NoError(t, err)
	assert.Equal(t, uint16(3*SummarySize), last)

	next, err := r.NextRef(last)
	require.NoError(t, err)
	assert.Equal(t, uint16(SummarySize), next, "cycles to the first used slot")

	prev, err := r.PrevRef(SummarySize)
	require.NoError(t, err)
	assert.Equal(t, last, prev, "cycles to the tail")

	prev, err = r.PrevRef(last)
	require.NoError(t, err)
	assert.Equal(t, uint16(2*SummarySize), prev)

	summaries, err := r.Summaries()
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, uint32(1), summaries[0].StartTime)
}

func TestRing_DumpRestore(t *testing.T) {
	r := newRing(t)

	var buf bytes.Buffer
	assert.ErrorIs(t, r.Dump(&buf), ErrNoSummaries)
	assert.Zero(t, buf.Len())

	want := []Summary{
		{StartLocIndex: 1, EndLocIndex: 2, StartTime: 1000, EndTime: 5000, StartTemp: -150, EndTemp: 800},
		{StartLocIndex: 2, EndLocIndex: 1, StartTime: 9000, EndTime: 12000, StartTemp: 2000, EndTemp: 2100},
	}
	for _, s := range want {
		require.NoError(t, r.Append(s))
	}

	require.NoError(t, r.Dump(&buf))
	assert.Equal(t, 4+ringBytes, buf.Len())

	restored := newRing(t)
	require.NoError(t, restored.Restore(&buf))

	got, err := restored.Summaries()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	err = restored.Restore(bytes.NewReader(make([]byte, 10)))
	assert.Error(t, err)
}

func TestSummary_Layout(t *testing.T) {
	b, err := Summary{StartLocIndex: 1, EndLocIndex: 2, StartTime: 3, EndTime: 4, StartTemp: -1, EndTemp: 5}.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{
		1, 0, 2, 0,
		3, 0, 0, 0,
		4, 0, 0, 0,
		0xFF, 0xFF, 5, 0,
	}, b)
}
