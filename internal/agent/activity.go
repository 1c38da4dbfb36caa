package agent

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const activityMax = 200

// Event is one entry in the live activity feed.
type Event struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Activity is a bounded event feed with fan-out to live subscribers.
// Slow subscribers drop events rather than block the workflow.
type Activity struct {
	mu          sync.Mutex
	events      []Event
	subscribers map[chan Event]struct{}
	now         func() time.Time
}

// NewActivity creates an empty feed.
func NewActivity() *Activity {
	return &Activity{
		subscribers: make(map[chan Event]struct{}),
		now:         time.Now,
	}
}

// Record appends an event and fans it out to subscribers.
func (a *Activity) Record(eventType, message string, details map[string]string) Event {
	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Message:   message,
		Details:   details,
		Timestamp: a.now(),
	}

	a.mu.Lock()
	a.events = append(a.events, event)
	if len(a.events) > activityMax {
		a.events = a.events[len(a.events)-activityMax:]
	}
	for ch := range a.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
	a.mu.Unlock()
	return event
}

// Recent returns up to limit events, newest first.
func (a *Activity) Recent(limit int) []Event {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.events)
	if limit <= 0 || limit > n {
		limit = n
	}
	recent := make([]Event, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		recent = append(recent, a.events[i])
	}
	return recent
}

// Subscribe registers a live feed channel. The caller must call
// Unsubscribe when done.
func (a *Activity) Subscribe() chan Event {
	ch := make(chan Event, 32)
	a.mu.Lock()
	a.subscribers[ch] = struct{}{}
	a.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (a *Activity) Unsubscribe(ch chan Event) {
	a.mu.Lock()
	if _, ok := a.subscribers[ch]; ok {
		delete(a.subscribers, ch)
		close(ch)
	}
	a.mu.Unlock()
}
