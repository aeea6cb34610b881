package bytestream

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Mapped is a Stream backed by a memory mapped file. It stands in for the
// flash and EEPROM parts of the device: the content survives restarts and
// every write lands in the page cache immediately.
type Mapped struct {
	*Memory

	file *os.File
	data []byte
}

// OpenMapped maps the file at path, creating or growing it to size. Bytes
// that did not exist before are set to fill.
func OpenMapped(path string, size int64, fill byte) (*Mapped, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid stream size %d", size)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("getting file info: %w", err)
	}

	existing := fi.Size()
	if existing != size {
		if err = f.Truncate(size); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("resizing file: %w", err)
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mapping file: %w", err)
	}

	if fill != 0 {
		for i := existing; i < size; i++ {
			data[i] = fill
		}
	}

	return &Mapped{Memory: FromBytes(data), file: f, data: data}, nil
}

// Sync flushes the mapped pages to the file
func (m *Mapped) Sync() error {
	if m.data == nil {
		return nil
	}
	return unix.Msync(m.data, unix.MS_SYNC)
}

func (m *Mapped) Close() error {
	var syncErr, unmapErr error
	if m.data != nil {
		syncErr = m.Sync()
		unmapErr = unix.Munmap(m.data)
		m.data = nil
		m.Memory = FromBytes(nil)
	}
	return errors.Join(syncErr, unmapErr, m.file.Close())
}
