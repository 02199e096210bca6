package feed

import (
	"context"
	"fmt"
	"sync"

	"github.com/penwyp/podscope/internal/util"
)

// SubscriptionState is the lifecycle state of a subscription.
type SubscriptionState int

const (
	StateActive SubscriptionState = iota
	StateCancelled
	StateFailed
)

func (s SubscriptionState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Subscription is one resource's notification channel plus its pull loop.
// Pulls are serialized; notifications arriving during a pull coalesce into a
// single follow-up pull.
type Subscription struct {
	id       string
	resource string
	source   EventSource
	onChange ChangeFunc
	adapter  *Adapter

	ctx    context.Context
	cancel context.CancelFunc
	dirty  chan struct{}
	done   chan struct{}

	// mu orders callbacks against close: once closed is set no callback starts.
	mu     sync.Mutex
	closed bool
	state  SubscriptionState
	err    error
}

// ID returns the subscription id.
func (s *Subscription) ID() string { return s.id }

// Resource returns the subscribed resource.
func (s *Subscription) Resource() string { return s.resource }

// Done is closed once both loops have exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// State returns the current lifecycle state.
func (s *Subscription) State() SubscriptionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the terminal error of a failed subscription, ErrUnsubscribed for
// a cancelled one, and nil while active.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Trigger schedules a pull as if a notification had arrived.
func (s *Subscription) Trigger() error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrUnsubscribed
	}
	s.markDirty()
	return nil
}

func (s *Subscription) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// receive forwards channel notifications into the dirty slot until the source
// ends. A source ending on its own is a terminal channel error.
func (s *Subscription) receive() {
	events := s.source.Events()
	for {
		select {
		case <-s.ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				cause := s.source.Err()
				if cause == nil {
					cause = ErrChannelClosed
				} else {
					cause = fmt.Errorf("%w: %v", ErrChannelClosed, cause)
				}
				_ = s.close(cause)
				return
			}
			if s.adapter.observer != nil {
				s.adapter.observer.ObserveNotification(s.resource)
			}
			s.markDirty()
		}
	}
}

func (s *Subscription) pullLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.dirty:
			s.pull()
		}
	}
}

// pull fetches and parses the resource; failures are logged and the
// subscription stays active.
func (s *Subscription) pull() {
	blob, err := s.adapter.fetcher.Fetch(s.ctx, s.resource)
	if s.ctx.Err() != nil {
		return
	}
	s.adapter.observePull(s.resource, err)
	if err != nil {
		util.LogError("Error fetching data", util.F("resource", s.resource), util.F("error", err))
		return
	}

	points := s.adapter.parse(s.resource, blob)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.onChange(s.resource, points)
}

// close tears the subscription down once. cause nil means a caller cancelled it.
func (s *Subscription) close(cause error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if cause == nil {
		s.state = StateCancelled
		s.err = ErrUnsubscribed
	} else {
		s.state = StateFailed
		s.err = cause
	}
	s.mu.Unlock()

	s.cancel()
	closeErr := s.source.Close()

	if cause != nil {
		util.LogError("Subscription closed by channel error", util.F("resource", s.resource), util.F("error", cause))
	} else {
		util.LogInfo("Unsubscribed from resource", util.F("resource", s.resource))
	}
	if s.adapter.observer != nil {
		s.adapter.observer.ObserveSubscriptionEnd(s.resource, cause)
	}
	return closeErr
}
