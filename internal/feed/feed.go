// Package feed implements notify-then-pull change feeds: a notification on a
// subscribed resource triggers a full re-fetch and re-parse of that resource.
package feed

import (
	"context"
	"errors"

	"github.com/penwyp/podscope/internal/core/model"
)

var (
	// ErrNotFound is returned by a Fetcher when the resource does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrChannelClosed marks a subscription whose notification channel failed.
	ErrChannelClosed = errors.New("notification channel closed")
	// ErrUnsubscribed is returned when operating on a cancelled subscription.
	ErrUnsubscribed = errors.New("subscription cancelled")
)

// Fetcher returns the current raw blob of a resource.
type Fetcher interface {
	Fetch(ctx context.Context, resource string) (string, error)
}

// Writer replaces the content of a resource.
type Writer interface {
	Write(ctx context.Context, resource, content string) error
}

// EventSource delivers opaque change notifications. Events is closed when the
// source ends; Err then reports why (nil after Close).
type EventSource interface {
	Events() <-chan struct{}
	Err() error
	Close() error
}

// ChannelProvider negotiates and opens notification channels for a resource.
type ChannelProvider interface {
	Provision(ctx context.Context, resource string) (endpoint string, err error)
	Open(ctx context.Context, endpoint string) (EventSource, error)
}

// ParseFunc converts a fetched blob into normalized points.
type ParseFunc func(resource, blob string) []model.Point

// ChangeFunc receives the freshly parsed points of a resource. It runs on the
// subscription's pull goroutine and must not unsubscribe that same subscription.
type ChangeFunc func(resource string, points []model.Point)

// Observer receives feed activity, typically for metrics.
type Observer interface {
	ObserveNotification(resource string)
	ObservePull(resource string, err error)
	ObserveSubscriptionEnd(resource string, err error)
}
