package feed

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/penwyp/podscope/internal/core/model"
	"github.com/penwyp/podscope/internal/util"
)

// Adapter subscribes to resources and turns their notifications into parsed
// point batches.
type Adapter struct {
	fetcher  Fetcher
	channels ChannelProvider
	parse    ParseFunc
	observer Observer

	mu   sync.Mutex
	subs map[string]*Subscription
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithObserver reports feed activity to o.
func WithObserver(o Observer) Option {
	return func(a *Adapter) { a.observer = o }
}

// NewAdapter creates an Adapter.
func NewAdapter(fetcher Fetcher, channels ChannelProvider, parse ParseFunc, opts ...Option) *Adapter {
	a := &Adapter{
		fetcher:  fetcher,
		channels: channels,
		parse:    parse,
		subs:     make(map[string]*Subscription),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Load fetches and parses resource once. Unlike notification pulls, errors
// are returned to the caller.
func (a *Adapter) Load(ctx context.Context, resource string) ([]model.Point, error) {
	blob, err := a.fetcher.Fetch(ctx, resource)
	a.observePull(resource, err)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", resource, err)
	}
	return a.parse(resource, blob), nil
}

// Subscribe provisions a notification channel for resource and starts pulling
// on every notification. Provisioning and connection errors are returned.
func (a *Adapter) Subscribe(ctx context.Context, resource string, onChange ChangeFunc) (*Subscription, error) {
	endpoint, err := a.channels.Provision(ctx, resource)
	if err != nil {
		return nil, fmt.Errorf("provision channel for %s: %w", resource, err)
	}
	source, err := a.channels.Open(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("open channel for %s: %w", resource, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		id:       uuid.NewString(),
		resource: resource,
		source:   source,
		onChange: onChange,
		adapter:  a,
		ctx:      subCtx,
		cancel:   cancel,
		dirty:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	a.mu.Lock()
	a.subs[sub.id] = sub
	a.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sub.receive()
	}()
	go func() {
		defer wg.Done()
		sub.pullLoop()
	}()
	go func() {
		wg.Wait()
		a.forget(sub)
		close(sub.done)
	}()

	util.LogInfo("Subscribed to resource", util.F("resource", resource), util.F("subscription", sub.id))
	return sub, nil
}

// Unsubscribe cancels sub and releases its channel. It is safe to call more
// than once and while a pull is in flight; no callback runs after it returns.
func (a *Adapter) Unsubscribe(sub *Subscription) error {
	if sub == nil {
		return nil
	}
	return sub.close(nil)
}

// Subscriptions returns the active subscriptions.
func (a *Adapter) Subscriptions() []*Subscription {
	a.mu.Lock()
	defer a.mu.Unlock()
	subs := make([]*Subscription, 0, len(a.subs))
	for _, s := range a.subs {
		subs = append(subs, s)
	}
	return subs
}

// Close cancels every subscription.
func (a *Adapter) Close() {
	for _, sub := range a.Subscriptions() {
		_ = sub.close(nil)
	}
}

func (a *Adapter) forget(sub *Subscription) {
	a.mu.Lock()
	delete(a.subs, sub.id)
	a.mu.Unlock()
}

func (a *Adapter) observePull(resource string, err error) {
	if a.observer != nil {
		a.observer.ObservePull(resource, err)
	}
}
