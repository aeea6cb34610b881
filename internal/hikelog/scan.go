package hikelog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// ErrNoEndMarker is returned when the log stream ends before its end marker
var ErrNoEndMarker = errors.New("log end marker not found")

const entriesPerPass = 10

// Session is one hike as stored in the log stream
type Session struct {
	Offset  int64
	Header  Header
	Entries []Entry
}

// Walk calls fn for every session in the log stream, oldest first. The
// cursor is restored afterwards.
func (l *Log) Walk(fn func(s Session) error) error {
	pos := l.stream.Pos()

	err := l.scan(fn)
	if _, serr := l.stream.Seek(pos, io.SeekStart); serr != nil && err == nil {
		err = serr
	}
	return err
}

// scan reads the stream from the start, session by session, and leaves the
// cursor on the end-of-log header. A session ends at its first entry with a
// pressure of 0; the next header starts one word into that entry. A session
// that runs off the end of the stream was torn by a power cut and is dropped.
func (l *Log) scan(fn func(s Session) error) error {
	if _, err := l.stream.Seek(0, io.SeekStart); err != nil {
		return err
	}

	header := make([]byte, HeaderSize)
	batch := make([]byte, entriesPerPass*EntrySize)

	for {
		start := l.stream.Pos()
		n, err := io.ReadFull(l.stream, header)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return fmt.Errorf("reading header at %d: %w", start, err)
		}
		if n < 4 {
			return fmt.Errorf("header at %d: %w", start, ErrNoEndMarker)
		}

		if binary.LittleEndian.Uint32(header) == 0 {
			_, err = l.stream.Seek(start, io.SeekStart)
			return err
		}
		if n < HeaderSize {
			return l.truncate(start)
		}

		h, err := DecodeHeader(header)
		if err != nil {
			return err
		}
		s := Session{Offset: start, Header: h}

		for done := false; !done; {
			batchStart := l.stream.Pos()
			n, err = io.ReadFull(l.stream, batch)
			if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
				return fmt.Errorf("reading entries at %d: %w", batchStart, err)
			}

			count := n / EntrySize
			if count == 0 {
				return l.truncate(start)
			}

			for i := 0; i < count; i++ {
				e := DecodeEntry(batch[i*EntrySize:])
				if e.Pressure != 0 {
					s.Entries = append(s.Entries, e)
					continue
				}

				done = true
				if _, err = l.stream.Seek(batchStart+int64(i*EntrySize)+4, io.SeekStart); err != nil {
					return err
				}
				break
			}
		}

		if fn != nil {
			if err = fn(s); err != nil {
				return err
			}
		}
	}
}

// truncate writes the end marker over the torn session at off
func (l *Log) truncate(off int64) error {
	if off+TerminatorSize > l.stream.Len() {
		return fmt.Errorf("session at %d: %w", off, ErrNoEndMarker)
	}
	if err := l.writeAt(off, make([]byte, TerminatorSize)); err != nil {
		return fmt.Errorf("writing end marker at %d: %w", off, err)
	}

	l.logger.Warn("torn session dropped", slog.Int64("offset", off))

	_, err := l.stream.Seek(off, io.SeekStart)
	return err
}
