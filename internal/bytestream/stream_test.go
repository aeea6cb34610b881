package bytestream

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_ShortWriteAtEnd(t *testing.T) {
	m := NewMemory(8)
	_, err := m.Seek(-3, io.SeekEnd)
	require.NoError(t, err)

	n, err := m.Write([]byte{1, 2, 3, 4})
	assert.Equal(t, 3, n)
	assert.ErrorIs(t, err, ErrFull)
	assert.Equal(t, int64(8), m.Pos())
	assert.Equal(t, m.Len(), m.Pos())

	_, err = m.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestMemory_SeekRange(t *testing.T) {
	m := NewMemory(4)

	_, err := m.Seek(-1, io.SeekStart)
	assert.ErrorIs(t, err, ErrSeekRange)

	_, err = m.Seek(5, io.SeekStart)
	assert.ErrorIs(t, err, ErrSeekRange)

	pos, err := m.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(4), pos)
}

func TestNewErased(t *testing.T) {
	m := NewErased(3)
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF}, m.Bytes())
}

func TestFaulty_CutsWriteShort(t *testing.T) {
	m := NewMemory(8)
	f := NewFaulty(m, 5)

	n, err := f.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = f.Write([]byte{4, 5, 6})
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, ErrPowerLoss)
	assert.True(t, f.Exhausted())

	n, err = f.Write([]byte{7})
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, ErrPowerLoss)

	assert.Equal(t, []byte{1, 2, 3, 4, 5, 0, 0, 0}, m.Bytes())
}

func TestMapped_PersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nvram.bin")

	m, err := OpenMapped(path, 16, 0xFF)
	require.NoError(t, err)
	assert.Equal(t, int64(16), m.Len())

	_, err = m.Seek(4, io.SeekStart)
	require.NoError(t, err)
	_, err = m.Write([]byte{0xAB, 0xCD})
	require.NoError(t, err)
	require.NoError(t, m.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xAB, 0xCD, 0xFF}, raw[:7])

	m, err = OpenMapped(path, 16, 0xFF)
	require.NoError(t, err)
	defer m.Close()

	buf := make([]byte, 2)
	_, err = m.Seek(4, io.SeekStart)
	require.NoError(t, err)
	_, err = io.ReadFull(m, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAB, 0xCD}, buf)
}
