package alerting

import (
	"sync"
	"time"

	"github.com/alertwarden/alertwarden/internal/datastore/entities"
)

// Change event types published on the feed.
const (
	ChangeRuleCreated       = "rule.created"
	ChangeRuleUpdated       = "rule.updated"
	ChangeRuleDeleted       = "rule.deleted"
	ChangeAlertOpened       = "alert.opened"
	ChangeAlertAcknowledged = "alert.acknowledged"
	ChangeAlertResolved     = "alert.resolved"
)

// ChangeEvent is a state change broadcast to feed subscribers so concurrent
// management clients observe mutations without polling.
type ChangeEvent struct {
	Type      string           `json:"type"`
	TeamID    string           `json:"team_id"`
	RuleID    uint             `json:"rule_id,omitempty"`
	AlertID   uint             `json:"alert_id,omitempty"`
	Alert     *entities.Alert  `json:"alert,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// ChangeHandler processes feed events.
type ChangeHandler func(event *ChangeEvent)

const (
	// feedBufferSize is the capacity of the async event channel. Events
	// are dropped if the buffer is full to avoid blocking publishers.
	feedBufferSize = 1000
)

// ChangeFeed is an async pub/sub for state change events. Publish is
// non-blocking: events are sent to a buffered channel and fanned out by a
// worker goroutine, so the evaluation engine and lifecycle manager are
// never blocked by slow subscribers.
type ChangeFeed struct {
	handlers map[int]ChangeHandler
	nextID   int
	mu       sync.RWMutex
	eventCh  chan *ChangeEvent
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewChangeFeed creates a change feed and starts its worker.
func NewChangeFeed() *ChangeFeed {
	f := &ChangeFeed{
		handlers: make(map[int]ChangeHandler),
		eventCh:  make(chan *ChangeEvent, feedBufferSize),
		stopCh:   make(chan struct{}),
	}
	go f.processLoop()
	return f
}

// Subscribe registers a handler for change events and returns a subscription
// id for Unsubscribe.
func (f *ChangeFeed) Subscribe(handler ChangeHandler) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.handlers[f.nextID] = handler
	return f.nextID
}

// Unsubscribe removes a handler. Unknown ids are ignored.
func (f *ChangeFeed) Unsubscribe(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, id)
}

// Publish enqueues an event for async fan-out. Non-blocking: if the buffer
// is full the event is dropped to protect publishers on hot paths.
// Events are silently dropped after Stop() has been called.
func (f *ChangeFeed) Publish(event *ChangeEvent) {
	select {
	case <-f.stopCh:
		return
	default:
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case f.eventCh <- event:
	default:
		// Buffer full, drop event to avoid blocking publishers
	}
}

// Stop shuts down the worker goroutine. Safe to call multiple times.
func (f *ChangeFeed) Stop() {
	f.stopOnce.Do(func() {
		close(f.stopCh)
	})
}

// processLoop drains the event channel and dispatches to handlers.
func (f *ChangeFeed) processLoop() {
	for {
		select {
		case event := <-f.eventCh:
			f.dispatch(event)
		case <-f.stopCh:
			// Drain remaining events before exiting
			for {
				select {
				case event := <-f.eventCh:
					f.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

func (f *ChangeFeed) dispatch(event *ChangeEvent) {
	f.mu.RLock()
	handlers := make([]ChangeHandler, 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.RUnlock()

	for _, handler := range handlers {
		f.safeCall(handler, event)
	}
}

// safeCall invokes a handler with panic recovery so a panicking subscriber
// cannot kill the feed goroutine.
func (f *ChangeFeed) safeCall(handler ChangeHandler, event *ChangeEvent) {
	defer func() {
		recover() //nolint:errcheck // intentionally swallowed to keep the feed alive
	}()
	handler(event)
}
