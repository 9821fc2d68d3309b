// Package changefeed carries "something changed" notifications from the
// compliance workflows to dashboards that want to re-fetch. Notifications are
// hints only: they may be dropped and carry no state a consumer could rely on.
package changefeed

import (
	"context"
	"sync"
	"time"
)

// Topics published by the workflows.
const (
	TopicRetentionFlags    = "retention_flags"
	TopicRetentionPolicies = "retention_policies"
	TopicDeletionRequests  = "deletion_requests"
)

// Change describes one mutation.
type Change struct {
	Topic    string    `json:"topic"`
	Kind     string    `json:"kind"`
	EntityID string    `json:"entity_id,omitempty"`
	At       time.Time `json:"at"`
}

// Notifier is what workflows depend on. Notify must not block.
type Notifier interface {
	Notify(ctx context.Context, c Change)
}

// Nop discards every change.
type Nop struct{}

func (Nop) Notify(context.Context, Change) {}

// SubscriberGauge tracks open subscriptions.
type SubscriberGauge interface {
	AddChangeSubscriber(delta float64)
}

// Broker fans changes out to in-process subscribers. Slow subscribers lose
// changes rather than stall the publisher.
type Broker struct {
	mu     sync.Mutex
	subs   map[chan Change]struct{}
	buffer int
	gauge  SubscriberGauge
}

type BrokerOption func(*Broker)

// WithSubscriberBuffer sets the per-subscriber channel size.
func WithSubscriberBuffer(n int) BrokerOption {
	return func(b *Broker) {
		if n > 0 {
			b.buffer = n
		}
	}
}

func WithSubscriberGauge(g SubscriberGauge) BrokerOption {
	return func(b *Broker) {
		b.gauge = g
	}
}

func NewBroker(opts ...BrokerOption) *Broker {
	b := &Broker{subs: make(map[chan Change]struct{}), buffer: 16}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a subscriber. The returned cancel func, or ctx ending,
// removes it and closes the channel; calling cancel more than once is safe.
func (b *Broker) Subscribe(ctx context.Context) (<-chan Change, func()) {
	ch := make(chan Change, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	b.addGauge(1)

	var once sync.Once
	stop := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			close(stop)
			b.mu.Lock()
			delete(b.subs, ch)
			close(ch)
			b.mu.Unlock()
			b.addGauge(-1)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-stop:
		}
	}()
	return ch, cancel
}

// Notify delivers c to every subscriber with room in its buffer.
func (b *Broker) Notify(_ context.Context, c Change) {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

// Subscribers returns the number of open subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broker) addGauge(delta float64) {
	if b.gauge != nil {
		b.gauge.AddChangeSubscriber(delta)
	}
}
