// Package bytestream provides the fixed-capacity, seekable byte stores that
// hold the hike log, the non-volatile settings block and the location index.
package bytestream

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrFull is returned when a write reaches the end of the stream
	ErrFull = errors.New("stream is full")

	// ErrSeekRange is returned when a seek would move outside of the stream
	ErrSeekRange = errors.New("seek out of range")
)

// Stream is a byte addressable store with a single cursor. Its length never
// changes after creation.
type Stream interface {
	io.Reader
	io.Writer
	io.Seeker

	Pos() int64
	Len() int64
}

// Memory is a Stream over a byte slice
type Memory struct {
	buf []byte
	pos int64
}

// NewMemory returns a zero filled stream of the given size
func NewMemory(size int) *Memory {
	return &Memory{buf: make([]byte, size)}
}

// NewErased returns a stream filled with 0xFF, the content of never
// written EEPROM.
func NewErased(size int) *Memory {
	m := NewMemory(size)
	m.Fill(0xFF)
	return m
}

// FromBytes wraps b without copying it
func FromBytes(b []byte) *Memory {
	return &Memory{buf: b}
}

func (m *Memory) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *Memory) Write(p []byte) (int, error) {
	if m.pos >= int64(len(m.buf)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, ErrFull
	}
	n := copy(m.buf[m.pos:], p)
	m.pos += int64(n)
	if n < len(p) {
		return n, ErrFull
	}
	return n, nil
}

func (m *Memory) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = m.pos + offset
	case io.SeekEnd:
		abs = int64(len(m.buf)) + offset
	default:
		return m.pos, fmt.Errorf("seek: invalid whence %d", whence)
	}

	if abs < 0 || abs > int64(len(m.buf)) {
		return m.pos, fmt.Errorf("seek to %d of %d: %w", abs, len(m.buf), ErrSeekRange)
	}
	m.pos = abs
	return abs, nil
}

func (m *Memory) Pos() int64 {
	return m.pos
}

func (m *Memory) Len() int64 {
	return int64(len(m.buf))
}

// Bytes exposes the backing slice
func (m *Memory) Bytes() []byte {
	return m.buf
}

// Fill overwrites the whole stream with b and leaves the cursor untouched
func (m *Memory) Fill(b byte) {
	for i := range m.buf {
		m.buf[i] = b
	}
}
