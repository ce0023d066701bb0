package clock

import "time"

// Clock abstracts wall time so components that tick (bar aggregation,
// heartbeats) can be driven manually in tests.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// System is the real clock.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

func (System) NewTicker(d time.Duration) Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (s *systemTicker) C() <-chan time.Time { return s.t.C }
func (s *systemTicker) Stop()               { s.t.Stop() }

// Manual is a hand-driven clock for tests.
type Manual struct {
	now  time.Time
	tick chan time.Time
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start.UTC(), tick: make(chan time.Time, 1)}
}

func (m *Manual) Now() time.Time { return m.now }

// Advance moves the clock and fires any ticker waiting on it.
func (m *Manual) Advance(d time.Duration) {
	m.now = m.now.Add(d)
	select {
	case m.tick <- m.now:
	default:
	}
}

func (m *Manual) NewTicker(time.Duration) Ticker {
	return manualTicker{ch: m.tick}
}

type manualTicker struct {
	ch chan time.Time
}

func (m manualTicker) C() <-chan time.Time { return m.ch }
func (m manualTicker) Stop()               {}
