// Package locations keeps the named waypoints of the logger in a byte stream
// as a doubly linked list sorted by name. Slot 0 of the stream is the list
// root; every other slot holds one Link. A slot's physical index never changes
// while the location is live, so other records refer to locations by it.
package locations

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roman-kulish/hiking-logger/internal/bytestream"
)

var (
	// ErrCorrupt is returned when the links do not form a bounded list
	ErrCorrupt = errors.New("location list is corrupt")

	// ErrIndexRange is returned for a physical index outside of the stream
	ErrIndexRange = errors.New("location index out of range")
)

// WithLogger sets the logger for the index
func WithLogger(logger *slog.Logger) func(x *Index) {
	return func(x *Index) {
		x.logger = logger.With(slog.String("component", "locations"))
	}
}

// Index is the sorted location list. It keeps a cursor, the current
// location, which navigation moves and Add and RemoveCurrent update.
type Index struct {
	stream bytestream.Stream

	current      Link
	currentIndex uint16
	count        int

	logger *slog.Logger
}

// New opens the list stored in s, counting its locations by walking back
// from the tail. The head becomes the current location.
func New(s bytestream.Stream, options ...func(x *Index)) (*Index, error) {
	x := Index{
		stream: s,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&x)
	}

	if x.Capacity() < 1 {
		return nil, fmt.Errorf("stream of %d bytes cannot hold a location", s.Len())
	}

	if err := x.initialize(); err != nil {
		return nil, fmt.Errorf("initializing locations: %w", err)
	}

	return &x, nil
}

func (x *Index) initialize() error {
	x.count = 0
	x.currentIndex = 0
	x.current = Link{}

	r, err := x.readRoot()
	if err != nil {
		return err
	}
	if r.tail == 0 {
		return nil
	}

	link, err := x.read(r.tail)
	if err != nil {
		return err
	}

	count := 1
	for link.Prev != 0 {
		if count++; count > x.Capacity() {
			return ErrCorrupt
		}
		if link, err = x.read(link.Prev); err != nil {
			return err
		}
	}

	x.count = count
	return x.load(r.head)
}

// Format writes an empty root, discarding every location.
func (x *Index) Format() error {
	if err := x.writeRoot(root{}); err != nil {
		return fmt.Errorf("formatting locations: %w", err)
	}
	x.count = 0
	x.currentIndex = 0
	x.current = Link{}
	return nil
}

// Capacity is the number of location slots the stream can hold
func (x *Index) Capacity() int {
	return int(x.stream.Len()/LinkSize) - 1
}

func (x *Index) Count() int {
	return x.count
}

func (x *Index) Current() Link {
	return x.current
}

// CurrentIndex is the physical index of the current location, 0 when the
// list is empty.
func (x *Index) CurrentIndex() uint16 {
	return x.currentIndex
}

// GoToLocation makes the location at physical index idx current. It does not
// check that the slot is live; use IsValidIndex or Resolve for references that
// come from outside of the list.
func (x *Index) GoToLocation(idx uint16) error {
	if idx == x.currentIndex {
		return nil
	}
	return x.load(idx)
}

// Resolve validates idx and makes it current
func (x *Index) Resolve(idx uint16) (Link, bool, error) {
	ok, err := x.IsValidIndex(idx)
	if err != nil || !ok {
		return Link{}, false, err
	}
	if err = x.GoToLocation(idx); err != nil {
		return Link{}, false, err
	}
	return x.current, true, nil
}

// NextIndex returns the physical index following the current location without
// loading it. At the tail it returns the head when wrap is set, otherwise 0.
func (x *Index) NextIndex(wrap bool) (uint16, error) {
	if x.currentIndex == 0 {
		return 0, nil
	}
	if x.current.Next != 0 {
		return x.current.Next, nil
	}
	if !wrap {
		return 0, nil
	}

	r, err := x.readRoot()
	if err != nil {
		return 0, err
	}
	return r.head, nil
}

// PreviousIndex mirrors NextIndex, wrapping to the tail.
func (x *Index) PreviousIndex(wrap bool) (uint16, error) {
	if x.currentIndex == 0 {
		return 0, nil
	}
	if x.current.Prev != 0 {
		return x.current.Prev, nil
	}
	if !wrap {
		return 0, nil
	}

	r, err := x.readRoot()
	if err != nil {
		return 0, err
	}
	return r.tail, nil
}

func (x *Index) Next(wrap bool) (bool, error) {
	idx, err := x.NextIndex(wrap)
	if err != nil || idx == 0 {
		return false, err
	}
	return true, x.GoToLocation(idx)
}

func (x *Index) Previous(wrap bool) (bool, error) {
	idx, err := x.PreviousIndex(wrap)
	if err != nil || idx == 0 {
		return false, err
	}
	return true, x.GoToLocation(idx)
}

// GoToNthLocation makes the location at logical position n current. It
// returns false when the list has fewer than n+1 locations; the cursor is
// then left on the tail.
func (x *Index) GoToNthLocation(n int) (bool, error) {
	r, err := x.readRoot()
	if err != nil || r.head == 0 {
		return false, err
	}
	if err = x.GoToLocation(r.head); err != nil {
		return false, err
	}

	for i := 0; i < n; i++ {
		if x.current.Next == 0 {
			return false, nil
		}
		if err = x.GoToLocation(x.current.Next); err != nil {
			return false, err
		}
	}
	return true, nil
}

// GoToRelativeLocation walks delta logical positions from the current
// location without wrapping.
func (x *Index) GoToRelativeLocation(delta int) (bool, error) {
	ok := true
	var err error
	for ; delta > 0 && ok; delta-- {
		if ok, err = x.Next(false); err != nil {
			return false, err
		}
	}
	for ; delta < 0 && ok; delta++ {
		if ok, err = x.Previous(false); err != nil {
			return false, err
		}
	}
	return ok, nil
}

// LogicalIndex is the sorted position of the current location, -1 when the
// list is empty.
func (x *Index) LogicalIndex() (int, error) {
	if x.currentIndex == 0 {
		return -1, nil
	}

	r, err := x.readRoot()
	if err != nil {
		return -1, err
	}

	idx := r.head
	for pos := 0; pos < x.count; pos++ {
		if idx == x.currentIndex {
			return pos, nil
		}
		link, err := x.read(idx)
		if err != nil {
			return -1, err
		}
		idx = link.Next
	}
	return -1, ErrCorrupt
}

// IsValidIndex reports whether idx is a live location, i.e. reachable from the
// head. Physical indexes are reused after removal, so any index stored
// outside of the list has to be checked before it is dereferenced.
func (x *Index) IsValidIndex(idx uint16) (bool, error) {
	if idx == 0 || int(idx) > x.Capacity() {
		return false, nil
	}

	r, err := x.readRoot()
	if err != nil {
		return false, err
	}

	next := r.head
	for steps := 0; next != 0 && steps <= x.count; steps++ {
		if next == idx {
			return true, nil
		}
		link, err := x.read(next)
		if err != nil {
			return false, err
		}
		next = link.Next
	}
	return false, nil
}

// Add inserts loc in name order, ignoring a leading "MT " in comparisons, and
// makes it current. A slot from the free list is reused before the list grows.
// It returns the physical index of the new location, or 0 when the stream has
// no room left.
func (x *Index) Add(loc Location) (uint16, error) {
	if len(loc.Name) > NameSize {
		loc.Name = loc.Name[:NameSize]
	}

	left := 0
	pos, err := x.LogicalIndex()
	if err != nil {
		return 0, err
	}

	if pos >= 0 {
		name := skipMTPrefix(loc.Name)
		right := x.count - 1
		for left <= right {
			mid := (left + right) / 2
			if _, err = x.GoToRelativeLocation(mid - pos); err != nil {
				return 0, err
			}
			pos = mid

			cmp := strings.Compare(skipMTPrefix(x.current.Name), name)
			if cmp == 0 {
				left = mid
				break
			} else if cmp > 0 {
				right = mid - 1
			} else {
				left = mid + 1
			}
		}
	}

	r, err := x.readRoot()
	if err != nil {
		return 0, err
	}

	newIndex := r.freeHead
	if newIndex != 0 {
		free, err := x.read(newIndex)
		if err != nil {
			return 0, err
		}
		r.freeHead = free.Next
	} else if x.Capacity() > x.count {
		newIndex = uint16(x.count + 1)
	} else {
		x.logger.Warn("location store is full", slog.String("name", loc.Name), slog.Int("capacity", x.Capacity()))
		return 0, nil
	}

	// the root is written after every link, so a failed write leaves it and
	// count as they were
	link := Link{Location: loc}
	var neighbours []uint16
	var updated []Link

	if x.currentIndex != 0 {
		left--
		if left >= 0 {
			// insert after the location at logical position left
			if _, err = x.GoToRelativeLocation(left - pos); err != nil {
				return 0, err
			}
			link.Prev = x.currentIndex
			link.Next = x.current.Next

			prev := x.current
			prev.Next = newIndex
			neighbours, updated = append(neighbours, x.currentIndex), append(updated, prev)

			if link.Next != 0 {
				next, err := x.read(link.Next)
				if err != nil {
					return 0, err
				}
				next.Prev = newIndex
				neighbours, updated = append(neighbours, link.Next), append(updated, next)
			} else {
				r.tail = newIndex
			}
		} else {
			// new head
			head, err := x.read(r.head)
			if err != nil {
				return 0, err
			}
			head.Prev = newIndex
			neighbours, updated = append(neighbours, r.head), append(updated, head)

			link.Next = r.head
			r.head = newIndex
		}
	} else {
		r.head = newIndex
		r.tail = newIndex
	}

	if err = x.write(newIndex, link); err != nil {
		return 0, err
	}
	for i, idx := range neighbours {
		if err = x.write(idx, updated[i]); err != nil {
			return 0, err
		}
	}
	if err = x.writeRoot(r); err != nil {
		return 0, err
	}
	x.count++

	if err = x.GoToLocation(newIndex); err != nil {
		return 0, err
	}

	x.logger.Debug("location added", slog.String("name", loc.Name), slog.Int("index", int(newIndex)))
	return newIndex, nil
}

// RemoveCurrent unlinks the current location and pushes its slot onto the
// free list. The following location becomes current, or the preceding one
// when the tail was removed.
func (x *Index) RemoveCurrent() (bool, error) {
	if x.currentIndex == 0 {
		return false, nil
	}

	removed := x.currentIndex
	prev, next := x.current.Prev, x.current.Next

	r, err := x.readRoot()
	if err != nil {
		return false, err
	}

	freed := x.current
	freed.Next = r.freeHead
	freed.Prev = 0
	if err = x.write(removed, freed); err != nil {
		return false, err
	}
	r.freeHead = removed

	if prev != 0 {
		link, err := x.read(prev)
		if err != nil {
			return false, err
		}
		link.Next = next
		if err = x.write(prev, link); err != nil {
			return false, err
		}
	} else {
		r.head = next
	}

	current := prev
	if next != 0 {
		link, err := x.read(next)
		if err != nil {
			return false, err
		}
		link.Prev = prev
		if err = x.write(next, link); err != nil {
			return false, err
		}
		current = next
	} else {
		r.tail = prev
	}

	if err = x.writeRoot(r); err != nil {
		return false, err
	}
	x.count--

	x.currentIndex = 0
	x.current = Link{}
	if current != 0 {
		if err = x.load(current); err != nil {
			return false, err
		}
	}

	x.logger.Debug("location removed", slog.String("name", freed.Name), slog.Int("index", int(removed)))
	return true, nil
}

// Walk calls fn for every location from head to tail. The current location
// is not changed.
func (x *Index) Walk(fn func(idx uint16, link Link) error) error {
	r, err := x.readRoot()
	if err != nil {
		return err
	}

	idx := r.head
	for steps := 0; idx != 0; steps++ {
		if steps >= x.count {
			return ErrCorrupt
		}
		link, err := x.read(idx)
		if err != nil {
			return err
		}
		if err = fn(idx, link); err != nil {
			return err
		}
		idx = link.Next
	}
	return nil
}

// Import adds every location, upper-casing names the way the device stores
// them. It stops early when the store is full and returns how many were
// added.
func (x *Index) Import(locs []Location) (int, error) {
	for i, loc := range locs {
		loc.Name = strings.ToUpper(strings.TrimSpace(loc.Name))
		idx, err := x.Add(loc)
		if err != nil {
			return i, fmt.Errorf("adding location %q: %w", loc.Name, err)
		}
		if idx == 0 {
			return i, nil
		}
	}
	return len(locs), nil
}

func skipMTPrefix(name string) string {
	return strings.TrimPrefix(name, "MT ")
}

func (x *Index) load(idx uint16) error {
	link, err := x.read(idx)
	if err != nil {
		return err
	}
	x.current = link
	x.currentIndex = idx
	return nil
}

func (x *Index) seek(idx uint16) error {
	if int(idx) > x.Capacity() {
		return fmt.Errorf("slot %d of %d: %w", idx, x.Capacity(), ErrIndexRange)
	}
	if _, err := x.stream.Seek(int64(idx)*LinkSize, io.SeekStart); err != nil {
		return fmt.Errorf("seeking slot %d: %w", idx, err)
	}
	return nil
}

func (x *Index) readSlot(idx uint16) ([]byte, error) {
	if err := x.seek(idx); err != nil {
		return nil, err
	}
	buf := make([]byte, LinkSize)
	if _, err := io.ReadFull(x.stream, buf); err != nil {
		return nil, fmt.Errorf("reading slot %d: %w", idx, err)
	}
	return buf, nil
}

func (x *Index) writeSlot(idx uint16, buf []byte) error {
	if err := x.seek(idx); err != nil {
		return err
	}
	if _, err := x.stream.Write(buf); err != nil {
		return fmt.Errorf("writing slot %d: %w", idx, err)
	}
	return nil
}

func (x *Index) read(idx uint16) (Link, error) {
	if idx == 0 {
		return Link{}, fmt.Errorf("slot 0 is the root: %w", ErrIndexRange)
	}
	buf, err := x.readSlot(idx)
	if err != nil {
		return Link{}, err
	}
	return DecodeLink(buf)
}

// write stores link at idx and keeps the cached current location in step.
func (x *Index) write(idx uint16, link Link) error {
	if err := x.writeSlot(idx, link.AppendBinary(make([]byte, 0, LinkSize))); err != nil {
		return err
	}
	if idx == x.currentIndex {
		x.current = link
	}
	return nil
}

func (x *Index) readRoot() (root, error) {
	buf, err := x.readSlot(0)
	if err != nil {
		return root{}, err
	}
	return decodeRoot(buf), nil
}

func (x *Index) writeRoot(r root) error {
	return x.writeSlot(0, r.appendBinary(make([]byte, 0, LinkSize)))
}
