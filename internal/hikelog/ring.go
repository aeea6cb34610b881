package hikelog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrNoSummaries is returned when the summary ring holds nothing to export
var ErrNoSummaries = errors.New("no hike summaries")

// Ring is the fixed capacity summary archive in the settings stream. A ref
// is the byte offset of a slot within the ring storage. Tail is the ref of
// the newest summary. Until the ring wraps for the first time the slot at ref
// 0 is unused and head stays 0.
type Ring struct {
	nv nvram
}

type ringHeader struct {
	head uint16
	tail uint16
}

func (r *Ring) header() (ringHeader, error) {
	var b [4]byte
	if err := r.nv.read(ringHeaderAddr, b[:]); err != nil {
		return ringHeader{}, err
	}
	return ringHeader{
		head: binary.LittleEndian.Uint16(b[:]),
		tail: binary.LittleEndian.Uint16(b[2:]),
	}, nil
}

func (r *Ring) putHeader(h ringHeader) error {
	b := binary.LittleEndian.AppendUint16(make([]byte, 0, 4), h.head)
	b = binary.LittleEndian.AppendUint16(b, h.tail)
	return r.nv.write(ringHeaderAddr, b)
}

// wrapped reports whether every slot may hold a summary
func (h ringHeader) wrapped() bool {
	return h.head != 0 || h.tail == ringBytes-SummarySize
}

// Reset empties the ring and clears its storage
func (r *Ring) Reset() error {
	if err := r.putHeader(ringHeader{}); err != nil {
		return err
	}
	return r.nv.write(ringStorageAddr, make([]byte, ringBytes))
}

func (r *Ring) Empty() (bool, error) {
	h, err := r.header()
	if err != nil {
		return false, err
	}
	return h.head == h.tail, nil
}

// Append stores s after the newest summary, evicting the oldest one when the
// ring is full.
func (r *Ring) Append(s Summary) error {
	h, err := r.header()
	if err != nil {
		return err
	}

	h.tail = (h.tail + SummarySize) % ringBytes
	if h.tail == h.head {
		h.head = (h.head + SummarySize) % ringBytes
	}

	if err = r.putHeader(h); err != nil {
		return err
	}
	return r.nv.write(ringStorageAddr+int64(h.tail), s.AppendBinary(make([]byte, 0, SummarySize)))
}

// LastRef returns the ref of the newest summary
func (r *Ring) LastRef() (uint16, error) {
	h, err := r.header()
	return h.tail, err
}

// Get reads the summary at ref. ok is false when the ring is empty.
func (r *Ring) Get(ref uint16) (s Summary, ok bool, err error) {
	h, err := r.header()
	if err != nil {
		return Summary{}, false, err
	}

	var b [SummarySize]byte
	if err = r.nv.read(ringStorageAddr+int64(ref%ringBytes), b[:]); err != nil {
		return Summary{}, false, err
	}
	s, err = DecodeSummary(b[:])
	return s, h.head != h.tail, err
}

// NextRef returns the ref after ref. Before the first wrap it cycles back to
// the first used slot after passing the tail.
func (r *Ring) NextRef(ref uint16) (uint16, error) {
	h, err := r.header()
	if err != nil {
		return 0, err
	}

	next := (ref + SummarySize) % ringBytes
	if !h.wrapped() && next > h.tail {
		next = SummarySize
	}
	return next, nil
}

// PrevRef returns the ref before ref. Before the first wrap it cycles to the
// tail when moving back from the first used slot.
func (r *Ring) PrevRef(ref uint16) (uint16, error) {
	h, err := r.header()
	if err != nil {
		return 0, err
	}

	prev := (ref + ringBytes - SummarySize) % ringBytes
	if !h.wrapped() && (prev > h.tail || prev == 0) {
		prev = h.tail
	}
	return prev, nil
}

// Summaries returns the stored summaries, oldest first. Slots that were never
// written are skipped.
func (r *Ring) Summaries() ([]Summary, error) {
	h, err := r.header()
	if err != nil {
		return nil, err
	}
	if h.head == h.tail {
		return nil, nil
	}

	storage := make([]byte, ringBytes)
	if err = r.nv.read(ringStorageAddr, storage); err != nil {
		return nil, err
	}

	first, count := uint16(SummarySize), int(h.tail/SummarySize)
	if h.wrapped() {
		first, count = h.head, MaxSummaries
	}

	summaries := make([]Summary, 0, count)
	for i, ref := 0, first; i < count; i, ref = i+1, (ref+SummarySize)%ringBytes {
		s, err := DecodeSummary(storage[ref:])
		if err != nil {
			return nil, err
		}
		if s.StartTime == 0 {
			continue
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// Dump writes the ring header followed by every slot
func (r *Ring) Dump(w io.Writer) error {
	h, err := r.header()
	if err != nil {
		return err
	}
	if h.head == h.tail {
		return ErrNoSummaries
	}

	buf := make([]byte, 4+ringBytes)
	if err = r.nv.read(ringHeaderAddr, buf[:4]); err != nil {
		return err
	}
	if err = r.nv.read(ringStorageAddr, buf[4:]); err != nil {
		return err
	}

	if _, err = w.Write(buf); err != nil {
		return fmt.Errorf("writing summaries: %w", err)
	}
	return nil
}

// Restore replaces the ring with an image written by Dump
func (r *Ring) Restore(rd io.Reader) error {
	buf := make([]byte, 4+ringBytes)
	if _, err := io.ReadFull(rd, buf); err != nil {
		return fmt.Errorf("reading summaries: %w", err)
	}

	head := binary.LittleEndian.Uint16(buf)
	tail := binary.LittleEndian.Uint16(buf[2:])
	if head%SummarySize != 0 || tail%SummarySize != 0 || head >= ringBytes || tail >= ringBytes {
		return fmt.Errorf("restoring summaries: bad ring header %d/%d", head, tail)
	}

	if err := r.nv.write(ringStorageAddr, buf[4:]); err != nil {
		return err
	}
	return r.nv.write(ringHeaderAddr, buf[:4])
}
