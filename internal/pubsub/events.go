// Package pubsub provides a generic publish/subscribe event system.
//
// The record layer publishes change notifications on a Broker so that
// observers outside the write path (a CLI watcher, a Bubble Tea program,
// a test) can follow mutations without registering redraw hooks.
package pubsub

import (
	"context"
	"time"
)

// EventType represents the type of event being published.
type EventType string

const (
	CreatedEvent  EventType = "created"  // a record or document came into existence
	UpdatedEvent  EventType = "updated"  // a field value changed
	DeletedEvent  EventType = "deleted"  // a record was destroyed in the store
	AddedEvent    EventType = "added"    // a record joined a collection
	RemovedEvent  EventType = "removed"  // a record left a collection
	DisposedEvent EventType = "disposed" // a record or collection was disposed
)

// Event represents a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Filter selects which events a subscription receives.
type Filter[T any] func(Event[T]) bool

// OfType returns a filter matching any of the given event types.
func OfType[T any](types ...EventType) Filter[T] {
	return func(e Event[T]) bool {
		for _, t := range types {
			if e.Type == t {
				return true
			}
		}
		return false
	}
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
