package hikelog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// LogFileMarker opens every exported session file, "HLOG"
	LogFileMarker uint32 = 0x484C4F47

	// SummariesFile is the name of the exported summary ring
	SummariesFile = "HikeSum.bin"
)

// Volume is removable storage the log is exported to
type Volume interface {
	Create(name string) (io.WriteCloser, error)
	Open(name string) (io.ReadCloser, error)
}

// SessionFileName returns the export file name of the session started at
// startTime: 8 upper case hex digits and a .log extension.
func SessionFileName(startTime uint32) string {
	return fmt.Sprintf("%08X.log", startTime)
}

// SaveLog exports every session to its own file on vol and returns the
// sessions written. Existing files are replaced.
func (l *Log) SaveLog(vol Volume) ([]Session, error) {
	var sessions []Session

	err := l.Walk(func(s Session) error {
		if err := writeSession(vol, s); err != nil {
			return err
		}
		sessions = append(sessions, s)
		return nil
	})
	if err != nil {
		return sessions, fmt.Errorf("saving log: %w", err)
	}

	return sessions, nil
}

func writeSession(vol Volume, s Session) (err error) {
	name := SessionFileName(s.Header.StartTime)

	f, err := vol.Create(name)
	if err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	buf := make([]byte, 0, 4+HeaderSize+len(s.Entries)*EntrySize)
	buf = binary.LittleEndian.AppendUint32(buf, LogFileMarker)
	buf = s.Header.AppendBinary(buf)
	for _, e := range s.Entries {
		buf = e.AppendBinary(buf)
	}

	if _, err = f.Write(buf); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// ReadSession parses a file written by SaveLog
func ReadSession(r io.Reader) (Session, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return Session{}, err
	}
	if len(b) < 4+HeaderSize {
		return Session{}, fmt.Errorf("session file of %d bytes is too short", len(b))
	}
	if marker := binary.LittleEndian.Uint32(b); marker != LogFileMarker {
		return Session{}, fmt.Errorf("bad session file marker %08X", marker)
	}

	h, err := DecodeHeader(b[4:])
	if err != nil {
		return Session{}, err
	}

	s := Session{Header: h}
	for rest := b[4+HeaderSize:]; len(rest) >= EntrySize; rest = rest[EntrySize:] {
		s.Entries = append(s.Entries, DecodeEntry(rest))
	}
	return s, nil
}

// SaveSummaries exports the summary ring to SummariesFile. It returns
// ErrNoSummaries, without creating the file, when the ring is empty.
func (l *Log) SaveSummaries(vol Volume) (err error) {
	empty, err := l.ring.Empty()
	if err != nil {
		return err
	}
	if empty {
		return ErrNoSummaries
	}

	f, err := vol.Create(SummariesFile)
	if err != nil {
		return fmt.Errorf("creating %s: %w", SummariesFile, err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	return l.ring.Dump(f)
}

// LoadSummaries replaces the summary ring with SummariesFile from vol
func (l *Log) LoadSummaries(vol Volume) (err error) {
	f, err := vol.Open(SummariesFile)
	if err != nil {
		return fmt.Errorf("opening %s: %w", SummariesFile, err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	return l.ring.Restore(f)
}
