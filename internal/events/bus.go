// Package events is the in-process lifecycle event bus. Every task state
// transition, bid acceptance, and settlement outcome is published here so the
// query API can stream them to operators without the protocol core knowing
// who is watching.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Event types emitted by the protocol core.
const (
	TypeTaskPosted     = "task.posted"
	TypeTaskState      = "task.state"
	TypeBidAccepted    = "auction.bid_accepted"
	TypeBidRejected    = "auction.bid_rejected"
	TypeTrustUpdated   = "trust.updated"
	TypeSettlementDone = "settlement.finalized"
)

// Event is the CloudEvents 1.0 envelope used for all lifecycle events.
type Event struct {
	SpecVersion string                 `json:"specversion"`
	Type        string                 `json:"type"`
	Source      string                 `json:"source"`
	ID          string                 `json:"id"`
	Time        time.Time              `json:"time"`
	Subject     string                 `json:"subject,omitempty"`
	Data        map[string]interface{} `json:"data"`
}

// New creates a CloudEvents 1.0 compliant event.
func New(eventType, source, subject string, data map[string]interface{}) *Event {
	return &Event{
		SpecVersion: "1.0",
		Type:        eventType,
		Source:      source,
		ID:          fmt.Sprintf("ce-%d", time.Now().UnixNano()),
		Time:        time.Now(),
		Subject:     subject,
		Data:        data,
	}
}

// JSON serializes the event.
func (e *Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// SSEFormat returns the event in Server-Sent Events format.
func (e *Event) SSEFormat() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\nid: %s\n\n", e.Type, data, e.ID)), nil
}

// Bus is an in-process pub/sub event bus. Subscribers receive events in real
// time; slow subscribers drop rather than block the protocol.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan *Event // eventType -> channels
	allSubs     []chan *Event
	bufferSize  int
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string][]chan *Event),
		allSubs:     make([]chan *Event, 0),
		bufferSize:  100,
	}
}

// Subscribe creates a channel that receives events of specific types.
// Pass no eventTypes to receive ALL events.
func (b *Bus) Subscribe(eventTypes ...string) chan *Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *Event, b.bufferSize)
	if len(eventTypes) == 0 {
		b.allSubs = append(b.allSubs, ch)
	} else {
		for _, et := range eventTypes {
			b.subscribers[et] = append(b.subscribers[et], ch)
		}
	}
	return ch
}

// Unsubscribe removes a subscription channel and closes it.
func (b *Bus) Unsubscribe(ch chan *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for et, subs := range b.subscribers {
		filtered := make([]chan *Event, 0)
		for _, s := range subs {
			if s != ch {
				filtered = append(filtered, s)
			}
		}
		b.subscribers[et] = filtered
	}

	filtered := make([]chan *Event, 0)
	for _, s := range b.allSubs {
		if s != ch {
			filtered = append(filtered, s)
		}
	}
	b.allSubs = filtered

	close(ch)
}

// Publish sends an event to all matching subscribers.
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[event.Type] {
		select {
		case ch <- event:
		default:
			// Channel full, skip
		}
	}
	for _, ch := range b.allSubs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Emit creates and publishes an event in one call.
func (b *Bus) Emit(eventType, source, subject string, data map[string]interface{}) {
	b.Publish(New(eventType, source, subject, data))
}

// EmitTaskState publishes a task state transition keyed by task ID.
func (b *Bus) EmitTaskState(taskID, from, to string) {
	b.Emit(TypeTaskState, "auction", taskID, map[string]interface{}{
		"task_id": taskID,
		"from":    from,
		"to":      to,
	})
}

// SubscriberCount returns the total number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := len(b.allSubs)
	for _, subs := range b.subscribers {
		count += len(subs)
	}
	return count
}
