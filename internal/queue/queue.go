package queue

import (
	"slices"
	"sync"
	"time"

	"github.com/nixlim/zbx-alerting/internal/problem"
)

// Item is one admitted problem waiting to be rendered.
type Item struct {
	Problem    problem.Problem
	AdmittedAt time.Time
	Cycle      uint64
}

// Select returns at most max problems, highest severity first, ties broken
// by ascending event id. The input is not modified.
func Select(problems []problem.Problem, max int) []problem.Problem {
	if max <= 0 || len(problems) == 0 {
		return nil
	}
	sorted := slices.Clone(problems)
	slices.SortStableFunc(sorted, func(a, b problem.Problem) int {
		if a.Severity != b.Severity {
			if a.Severity > b.Severity {
				return -1
			}
			return 1
		}
		return problem.CompareEventID(a.EventID, b.EventID)
	})
	if len(sorted) > max {
		sorted = sorted[:max]
	}
	return sorted
}

// Queue is a fixed-capacity FIFO between the poll loop and the renderer.
// When full, the oldest unrendered item is evicted to make room.
// All methods are safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	items  []Item
	cap    int
	head   int // index of the oldest element
	count  int
	ready  chan struct{}
	closed bool
}

// New creates a queue holding at most capacity items (minimum 1).
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		items: make([]Item, capacity),
		cap:   capacity,
		ready: make(chan struct{}, 1),
	}
}

// Push appends it. An item already queued for the same event is replaced
// in place. If the queue was full the evicted oldest item is returned with
// evicted=true.
func (q *Queue) Push(it Item) (old Item, evicted bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if i := q.indexLocked(it.Problem.EventID); i >= 0 {
		q.items[i] = it
	} else if q.count == q.cap {
		old = q.items[q.head]
		evicted = true
		q.items[q.head] = it
		q.head = (q.head + 1) % q.cap
	} else {
		q.items[(q.head+q.count)%q.cap] = it
		q.count++
	}

	if !q.closed {
		select {
		case q.ready <- struct{}{}:
		default:
		}
	}
	return old, evicted
}

// Contains reports whether an item for eventID is waiting to be rendered.
func (q *Queue) Contains(eventID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.indexLocked(eventID) >= 0
}

// Replace overwrites the queued item for the same event. It reports false,
// and queues nothing, when no such item is waiting.
func (q *Queue) Replace(it Item) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexLocked(it.Problem.EventID)
	if i < 0 {
		return false
	}
	q.items[i] = it
	return true
}

// indexLocked returns the slot holding eventID, or -1.
func (q *Queue) indexLocked(eventID string) int {
	for i := 0; i < q.count; i++ {
		idx := (q.head + i) % q.cap
		if q.items[idx].Problem.EventID == eventID {
			return idx
		}
	}
	return -1
}

// Drain removes and returns every queued item, oldest first.
func (q *Queue) Drain() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil
	}
	out := make([]Item, q.count)
	for i := 0; i < q.count; i++ {
		idx := (q.head + i) % q.cap
		out[i] = q.items[idx]
		q.items[idx] = Item{}
	}
	q.head = 0
	q.count = 0
	return out
}

// Ready receives a value after one or more pushes. It is closed by Close,
// so consumers can range over it and Drain on each wake-up.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

func (q *Queue) Cap() int {
	return q.cap
}

// Close stops wake-ups. Items still queued remain drainable.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ready)
}
