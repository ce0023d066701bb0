package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"quantcore/internal/event"
	"quantcore/internal/metrics"
)

// ErrFlagTimeout is returned by AwaitFlag when the other side of a
// handshake stops clearing or raising its flag within the bound.
var ErrFlagTimeout = errors.New("flag wait timed out")

// Bus is the in-process event fabric: typed pub/sub with per-subscriber
// FIFO queues, plus named boolean flags used as lockstep rendezvous.
// Publish never blocks and never drops; each subscription buffers
// unboundedly and drains on its own goroutine.
type Bus struct {
	Metrics *metrics.Metrics // optional

	mu     sync.RWMutex
	subs   map[event.Kind][]*Subscription
	closed bool

	flagMu sync.Mutex
	flags  map[event.Flag]*gate

	logger *zap.Logger
}

func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subs:   make(map[event.Kind][]*Subscription),
		flags:  make(map[event.Flag]*gate),
		logger: logger,
	}
}

// Subscription is one consumer's view of the bus. Events arrive on C in
// publish order for the subscribed kinds.
type Subscription struct {
	name  string
	kinds []event.Kind
	bus   *Bus

	mu    sync.Mutex
	queue []event.Event
	wake  chan struct{}

	out  chan event.Event
	done chan struct{}
	once sync.Once
}

// Subscribe registers a consumer for the given kinds and starts its pump.
func (b *Bus) Subscribe(name string, kinds ...event.Kind) *Subscription {
	s := &Subscription{
		name:  name,
		kinds: kinds,
		bus:   b,
		wake:  make(chan struct{}, 1),
		out:   make(chan event.Event),
		done:  make(chan struct{}),
	}

	b.mu.Lock()
	for _, k := range kinds {
		b.subs[k] = append(b.subs[k], s)
	}
	b.mu.Unlock()

	go s.pump()

	b.logger.Debug("bus subscriber registered", zap.String("name", name), zap.Int("kinds", len(kinds)))
	return s
}

func (s *Subscription) C() <-chan event.Event { return s.out }

// Close detaches the subscription and stops its pump. Queued events are
// discarded.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.done)
	})
}

func (s *Subscription) enqueue(ev event.Event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
			case <-s.done:
				return
			}
			s.mu.Lock()
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		if len(s.queue) == 0 {
			s.queue = nil
		}
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range s.kinds {
		list := b.subs[k]
		for i, cur := range list {
			if cur == s {
				b.subs[k] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
}

// Publish fans ev out to every subscription of its kind. With no
// subscribers it is a no-op.
func (b *Bus) Publish(ev event.Event) {
	if b.Metrics != nil {
		b.Metrics.EventsPublished.WithLabelValues(ev.Kind().String()).Inc()
	}

	b.mu.RLock()
	for _, s := range b.subs[ev.Kind()] {
		s.enqueue(ev)
	}
	b.mu.RUnlock()
}

// Close shuts down every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	seen := make(map[*Subscription]struct{})
	var all []*Subscription
	for _, list := range b.subs {
		for _, s := range list {
			if _, ok := seen[s]; !ok {
				seen[s] = struct{}{}
				all = append(all, s)
			}
		}
	}
	b.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
}

// gate is one flag's state plus a channel closed on every transition, so
// waiters block on the channel instead of polling.
type gate struct {
	mu  sync.Mutex
	val bool
	ch  chan struct{}
}

func (b *Bus) gate(f event.Flag) *gate {
	b.flagMu.Lock()
	defer b.flagMu.Unlock()
	g, ok := b.flags[f]
	if !ok {
		g = &gate{ch: make(chan struct{})}
		b.flags[f] = g
	}
	return g
}

// SetFlag sets a flag. Setting the current value is a no-op and wakes
// nobody.
func (b *Bus) SetFlag(f event.Flag, v bool) {
	g := b.gate(f)
	g.mu.Lock()
	if g.val != v {
		g.val = v
		close(g.ch)
		g.ch = make(chan struct{})
	}
	g.mu.Unlock()
	b.logger.Debug("flag set", zap.Stringer("flag", f), zap.Bool("value", v))
}

// Flag reads a flag's current value; unset flags are false.
func (b *Bus) Flag(f event.Flag) bool {
	g := b.gate(f)
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.val
}

// AwaitFlag blocks until the flag holds want. A non-positive timeout waits
// on ctx alone; otherwise exceeding it returns ErrFlagTimeout.
func (b *Bus) AwaitFlag(ctx context.Context, f event.Flag, want bool, timeout time.Duration) error {
	start := time.Now()

	var timeoutC <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timeoutC = t.C
	}

	g := b.gate(f)
	for {
		g.mu.Lock()
		if g.val == want {
			g.mu.Unlock()
			if b.Metrics != nil {
				b.Metrics.FlagWaitDur.Observe(time.Since(start).Seconds())
			}
			return nil
		}
		ch := g.ch
		g.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return fmt.Errorf("waiting for flag %s=%t: %w", f, want, ctx.Err())
		case <-timeoutC:
			return fmt.Errorf("waiting for flag %s=%t: %w", f, want, ErrFlagTimeout)
		}
	}
}
