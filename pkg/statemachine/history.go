package statemachine

import (
	"time"
)

// DefaultHistoryCapacity bounds the transition history ring buffer.
const DefaultHistoryCapacity = 100

// TransitionRecord is an append-only audit entry describing one attempted
// state change. Failed attempts record the state the machine stayed in as
// From and the state it would have reached as To.
type TransitionRecord struct {
	From      string
	To        string
	Event     string
	Timestamp time.Time
	Success   bool
	Err       error // nil for successful transitions
}

// Stats aggregates the bounded history into counts and distributions.
// Distributions only cover records still retained in the ring buffer.
type Stats struct {
	Total       int
	Succeeded   int
	Failed      int
	SuccessRate float64        // 0..1, zero when Total is zero
	ByState     map[string]int // successful arrivals per target state
	ByEvent     map[string]int // attempts per event
}

// historyRing is a fixed-capacity FIFO buffer of transition records.
// Oldest entries are evicted first once the capacity is reached.
// Not safe for concurrent use; callers synchronize access.
type historyRing struct {
	records  []TransitionRecord
	capacity int
	start    int // index of oldest record
	size     int
}

func newHistoryRing(capacity int) *historyRing {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &historyRing{
		records:  make([]TransitionRecord, capacity),
		capacity: capacity,
	}
}

func (h *historyRing) append(rec TransitionRecord) {
	if h.size < h.capacity {
		h.records[(h.start+h.size)%h.capacity] = rec
		h.size++
		return
	}
	// Full: overwrite the oldest slot and advance the start.
	h.records[h.start] = rec
	h.start = (h.start + 1) % h.capacity
}

// snapshot returns retained records ordered oldest first.
func (h *historyRing) snapshot() []TransitionRecord {
	out := make([]TransitionRecord, h.size)
	for i := range h.size {
		out[i] = h.records[(h.start+i)%h.capacity]
	}
	return out
}

func (h *historyRing) stats() Stats {
	s := Stats{
		ByState: make(map[string]int),
		ByEvent: make(map[string]int),
	}
	for i := range h.size {
		rec := h.records[(h.start+i)%h.capacity]
		s.Total++
		if rec.Success {
			s.Succeeded++
			s.ByState[rec.To]++
		} else {
			s.Failed++
		}
		s.ByEvent[rec.Event]++
	}
	if s.Total > 0 {
		s.SuccessRate = float64(s.Succeeded) / float64(s.Total)
	}
	return s
}
