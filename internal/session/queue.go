package session

import (
	"sync"

	"github.com/roach88/thebeat/internal/transport"
	"github.com/roach88/thebeat/internal/volume"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventPollResult carries the outcome of a background fetch.
	EventPollResult EventType = iota + 1
	// EventStart enters the polling state.
	EventStart
	// EventStop leaves the polling state.
	EventStop
	// EventSetVolume applies a local volume edit.
	EventSetVolume
	// EventSetOffsets replaces the per-cue offset table.
	EventSetOffsets
)

func (t EventType) String() string {
	switch t {
	case EventPollResult:
		return "poll_result"
	case EventStart:
		return "start"
	case EventStop:
		return "stop"
	case EventSetVolume:
		return "set_volume"
	case EventSetOffsets:
		return "set_offsets"
	default:
		return "unknown"
	}
}

// PollResult is the outcome of one fetch, tagged with the reconciler
// generation that was current when the fetch was issued. Request orders
// fetches within a generation; zero means unordered.
type PollResult struct {
	Generation uint64
	Request    uint64
	Snapshot   *transport.Snapshot
	Err        error
}

// Event is a unit of work for the Run loop.
type Event struct {
	Type    EventType
	Poll    *PollResult
	LevelDB float64
	Offsets volume.Offsets
}

// eventQueue is a thread-safe unbounded FIFO queue for events.
//
// Producers are the fetch goroutine, the CLI input reader and the offset
// watcher; the only consumer is the Run loop. A buffered signal channel
// lets the loop wait on the queue inside a select.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Non-blocking: the buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front event without blocking.
// Returns (Event{}, false) if the queue is empty.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]
	q.events[0] = Event{} // release snapshot pointers

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// The channel is closed when the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Closed reports whether Close has been called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close signals that no more events will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
