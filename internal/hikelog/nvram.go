package hikelog

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/roman-kulish/hiking-logger/internal/bytestream"
)

// Non-volatile settings layout
//
//	[4]  uint16  starting location index
//	[6]  uint16  ending location index
//	[8]  uint8   log initialized, 0xFF until the first boot
//	[32] uint16  summary ring head
//	[34] uint16  summary ring tail
//	[38] Summary summaries[MaxSummaries]
const (
	// NVRAMSize is the size of the settings stream expected by New
	NVRAMSize = 2048

	// MaxSummaries is the capacity of the summary ring
	MaxSummaries = 125

	startLocAddr    = 4
	endLocAddr      = 6
	initializedAddr = 8
	ringHeaderAddr  = 32
	ringStorageAddr = 38

	ringBytes = MaxSummaries * SummarySize
)

// nvram is byte addressed access to the settings stream
type nvram struct {
	stream bytestream.Stream
}

func (n nvram) read(addr int64, b []byte) error {
	if _, err := n.stream.Seek(addr, io.SeekStart); err != nil {
		return err
	}
	if _, err := io.ReadFull(n.stream, b); err != nil {
		return fmt.Errorf("reading settings at %d: %w", addr, err)
	}
	return nil
}

func (n nvram) write(addr int64, b []byte) error {
	if _, err := n.stream.Seek(addr, io.SeekStart); err != nil {
		return err
	}
	if _, err := n.stream.Write(b); err != nil {
		return fmt.Errorf("writing settings at %d: %w", addr, err)
	}
	return nil
}

func (n nvram) uint16(addr int64) (uint16, error) {
	var b [2]byte
	if err := n.read(addr, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func (n nvram) putUint16(addr int64, v uint16) error {
	return n.write(addr, binary.LittleEndian.AppendUint16(nil, v))
}

// updateUint16 writes v only when it differs from the stored value
func (n nvram) updateUint16(addr int64, v uint16) error {
	stored, err := n.uint16(addr)
	if err != nil {
		return err
	}
	if stored == v {
		return nil
	}
	return n.putUint16(addr, v)
}

func (n nvram) initialized() (bool, error) {
	var b [1]byte
	if err := n.read(initializedAddr, b[:]); err != nil {
		return false, err
	}
	return b[0] != 0xFF, nil
}

func (n nvram) markInitialized() error {
	return n.write(initializedAddr, []byte{0})
}
