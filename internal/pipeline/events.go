package pipeline

import (
	"log"
	"sync/atomic"
	"time"
)

// EventType represents the type of pipeline event.
type EventType string

const (
	// EventRunStarted indicates a request was accepted and a run began.
	EventRunStarted EventType = "run_started"
	// EventStepStarted indicates a step has started.
	EventStepStarted EventType = "step_started"
	// EventStepCompleted indicates a step finished successfully.
	EventStepCompleted EventType = "step_completed"
	// EventStepFailed indicates a step failed.
	EventStepFailed EventType = "step_failed"
	// EventRunCompleted indicates the run finished, including notification.
	EventRunCompleted EventType = "run_completed"
)

// Event is emitted as a run moves through its steps.
type Event struct {
	Type      EventType
	RunID     string
	Step      Step
	Message   string
	Err       error
	Timestamp time.Time
}

// EventEmitter delivers events to a single subscriber.
type EventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

// NewEventEmitter creates a new EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	return &EventEmitter{
		events: make(chan Event, bufferSize),
	}
}

// Emit sends an event to the events channel.
// If the channel is full, it tries with a timeout before dropping the event.
func (e *EventEmitter) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
		return
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			log.Printf("[pipeline] WARNING: event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the events channel. No Emit may follow.
func (e *EventEmitter) Close() {
	close(e.events)
}
