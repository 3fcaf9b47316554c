package changefeed

import (
	"context"
	"sync"
)

const defaultBuffer = 64

// Hub is an in-process Source and Publisher. It backs the embedded storage
// modes and tests; production deployments use the redis transport.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*subscription]struct{}
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subs:   make(map[*subscription]struct{}),
		buffer: buffer,
	}
}

func (h *Hub) Subscribe(ctx context.Context, filter Filter) (Subscription, error) {
	s := newSubscription(filter, h.buffer, h.remove)

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	s.cancelOn(ctx)
	return s, nil
}

// Publish delivers e to every matching subscription, blocking while a
// subscriber's buffer is full.
func (h *Hub) Publish(ctx context.Context, e Event) error {
	h.mu.RLock()
	targets := make([]*subscription, 0, len(h.subs))
	for s := range h.subs {
		if s.filter.Match(e) {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if err := s.deliver(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// Subscribers reports the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) remove(s *subscription) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

// subscription is shared by the hub and the redis transport.
type subscription struct {
	filter  Filter
	events  chan Event
	done    chan struct{}
	once    sync.Once
	onClose func(*subscription)
}

func newSubscription(filter Filter, buffer int, onClose func(*subscription)) *subscription {
	return &subscription{
		filter:  filter,
		events:  make(chan Event, buffer),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

func (s *subscription) Events() <-chan Event  { return s.events }
func (s *subscription) Done() <-chan struct{} { return s.done }

func (s *subscription) Cancel() {
	s.once.Do(func() {
		close(s.done)
		if s.onClose != nil {
			s.onClose(s)
		}
	})
}

func (s *subscription) cancelOn(ctx context.Context) {
	if ctx == nil || ctx.Done() == nil {
		return
	}
	go func() {
		select {
		case <-ctx.Done():
			s.Cancel()
		case <-s.done:
		}
	}()
}

func (s *subscription) deliver(ctx context.Context, e Event) error {
	select {
	case <-s.done:
		return nil
	default:
	}
	select {
	case s.events <- e:
		return nil
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewSubscription builds a subscription for transports outside this package.
// onClose runs once, on the first Cancel.
func NewSubscription(filter Filter, buffer int, onClose func()) (Subscription, func(context.Context, Event) error) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	s := newSubscription(filter, buffer, func(*subscription) {
		if onClose != nil {
			onClose()
		}
	})
	return s, s.deliver
}
