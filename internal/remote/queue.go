package remote

import (
	"github.com/roman-kulish/hiking-logger/internal/packet"
)

const (
	// QueueSlots is the number of requests that can wait to be sent
	QueueSlots = 4

	// SlotSize is the room for one request. Every request fits in it.
	SlotSize = 8
)

// Queue is the fixed size FIFO of outgoing requests. Requests pushed while it
// is full are dropped.
type Queue struct {
	slots [QueueSlots][SlotSize]byte
	head  int
	n     int
}

// Push appends p and reports whether there was room for it
func (q *Queue) Push(p packet.Packet) bool {
	if q.n == QueueSlots {
		return false
	}

	b := packet.Marshal(p)
	if len(b) > SlotSize {
		return false
	}

	slot := &q.slots[(q.head+q.n)%QueueSlots]
	*slot = [SlotSize]byte{}
	copy(slot[:], b)
	q.n++
	return true
}

// Head returns the slot of the oldest request. Unused trailing bytes are zero.
func (q *Queue) Head() ([]byte, bool) {
	if q.n == 0 {
		return nil, false
	}
	slot := q.slots[q.head]
	return slot[:], true
}

// Pop removes the oldest request
func (q *Queue) Pop() bool {
	if q.n == 0 {
		return false
	}
	q.head = (q.head + 1) % QueueSlots
	q.n--
	return true
}

func (q *Queue) Len() int {
	return q.n
}
