package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"quantcore/internal/clock"
	"quantcore/internal/market"
)

func TestHandleMessageRoutesBarsToBook(t *testing.T) {
	bk := liveBook(t)
	s := &Stream{Universe: testUniverse(t), Book: bk, Clock: clock.System{}, Logger: zap.NewNop()}

	ts := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	s.handleMessage(context.Background(), wireMessage{
		Type: "bar", Ticker: "HE.c.0", Timestamp: ts,
		Open: d(95), High: d(96), Low: d(94), Close: d(95), Volume: 10,
	})

	rec, err := bk.Retrieve(1)
	if err != nil {
		t.Fatalf("bar not applied: %v", err)
	}
	if rec.Kind != market.KindBar || !rec.Close.Equal(d(95)) {
		t.Fatalf("record = %+v, want the bar at 95", rec)
	}
}

func TestHandleMessageQuotesGoToAggregatorWhenConfigured(t *testing.T) {
	bk := liveBook(t)
	start := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	clk := clock.NewManual(start)
	s := &Stream{Universe: testUniverse(t), Book: bk, Clock: clk, Logger: zap.NewNop()}
	s.agg = newAggregator(bk, clk, zap.NewNop())

	s.handleMessage(context.Background(), wireMessage{
		Type: "quote", Ticker: "HE.c.0", Timestamp: start,
		Bid: d(94), Ask: d(96), BidSize: d(1), AskSize: d(1),
	})

	if _, err := bk.Retrieve(1); err == nil {
		t.Fatalf("quote must accumulate, not hit the book directly")
	}

	clk.Advance(time.Minute)
	s.agg.flush(context.Background())
	rec, err := bk.Retrieve(1)
	if err != nil || !rec.Close.Equal(d(95)) {
		t.Fatalf("flushed bar = %+v (%v), want close at the 95 midpoint", rec, err)
	}
}

func TestHandleMessageQuotesGoStraightToBookWithoutAggregator(t *testing.T) {
	bk := liveBook(t)
	s := &Stream{Universe: testUniverse(t), Book: bk, Clock: clock.System{}, Logger: zap.NewNop()}

	ts := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	s.handleMessage(context.Background(), wireMessage{
		Type: "quote", Ticker: "HE.c.0", Timestamp: ts,
		Bid: d(94), Ask: d(96), BidSize: d(1), AskSize: d(1),
	})

	rec, err := bk.Retrieve(1)
	if err != nil {
		t.Fatalf("quote not applied: %v", err)
	}
	if rec.Kind != market.KindQuote || !rec.Price().Equal(d(95)) {
		t.Fatalf("record = %+v, want the quote mid 95", rec)
	}
}

func TestHandleMessageDropsUnroutableFrames(t *testing.T) {
	bk := liveBook(t)
	s := &Stream{Universe: testUniverse(t), Book: bk, Clock: clock.System{}, Logger: zap.NewNop()}
	ts := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	// Unknown ticker, control frame, malformed bar.
	s.handleMessage(context.Background(), wireMessage{
		Type: "bar", Ticker: "NG.c.0", Timestamp: ts,
		Open: d(95), High: d(96), Low: d(94), Close: d(95),
	})
	s.handleMessage(context.Background(), wireMessage{Type: "subscribed", Ticker: "HE.c.0"})
	s.handleMessage(context.Background(), wireMessage{
		Type: "bar", Ticker: "HE.c.0", Timestamp: ts,
	})

	if _, err := bk.Retrieve(1); err == nil {
		t.Fatalf("unroutable frames must not reach the book")
	}
	if _, err := bk.Retrieve(2); err == nil {
		t.Fatalf("unroutable frames must not reach the book")
	}
}

func TestHandleMessageStampsClockTimeWhenMissing(t *testing.T) {
	bk := liveBook(t)
	now := time.Date(2024, 1, 2, 10, 30, 0, 0, time.UTC)
	s := &Stream{Universe: testUniverse(t), Book: bk, Clock: clock.NewManual(now), Logger: zap.NewNop()}

	s.handleMessage(context.Background(), wireMessage{
		Type: "bar", Ticker: "HE.c.0",
		Open: d(95), High: d(96), Low: d(94), Close: d(95), Volume: 1,
	})

	rec, err := bk.Retrieve(1)
	if err != nil {
		t.Fatalf("bar not applied: %v", err)
	}
	if !rec.Timestamp.Equal(now) {
		t.Fatalf("timestamp = %v, want the clock time %v", rec.Timestamp, now)
	}
}

func TestIsPingPayload(t *testing.T) {
	cases := []struct {
		msg  wireMessage
		raw  string
		want bool
	}{
		{wireMessage{Type: "ping"}, `{"type":"ping"}`, true},
		{wireMessage{Type: "PING"}, `{"type":"PING"}`, true},
		{wireMessage{}, "ping", true},
		{wireMessage{}, "  ping\n", true},
		{wireMessage{Type: "bar"}, `{"type":"bar"}`, false},
		{wireMessage{}, "pong", false},
	}
	for _, c := range cases {
		if got := isPingPayload(c.msg, []byte(c.raw)); got != c.want {
			t.Fatalf("isPingPayload(%q) = %t, want %t", c.raw, got, c.want)
		}
	}
}

func TestNextBackoffDoublesToCap(t *testing.T) {
	b := time.Second
	max := 10 * time.Second
	var got []time.Duration
	for i := 0; i < 5; i++ {
		b = nextBackoff(b, max)
		got = append(got, b)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("backoff step %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestStreamSubscribesAppliesAndAnswersPings(t *testing.T) {
	subCh := make(chan subscribeRequest, 1)
	pongCh := make(chan []byte, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		ctx := r.Context()

		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var req subscribeRequest
		_ = json.Unmarshal(data, &req)
		subCh <- req

		bar := `{"type":"bar","ticker":"HE.c.0","timestamp":"2024-01-02T10:00:00Z","open":95,"high":96,"low":94,"close":95,"volume":10}`
		if err := conn.Write(ctx, websocket.MessageText, []byte(bar)); err != nil {
			return
		}
		if err := conn.Write(ctx, websocket.MessageText, []byte("ping")); err != nil {
			return
		}
		if _, data, err = conn.Read(ctx); err == nil {
			pongCh <- data
		}
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	bk := liveBook(t)
	stream := NewStream(testUniverse(t), bk, nil, nil, zap.NewNop(), Options{
		URL:        "ws" + strings.TrimPrefix(srv.URL, "http"),
		BackoffMin: 10 * time.Millisecond,
		BackoffMax: 50 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- stream.Run(ctx) }()

	select {
	case req := <-subCh:
		if req.Type != "subscribe" {
			t.Fatalf("first frame type = %q, want subscribe", req.Type)
		}
		want := []string{"AAPL", "HE.c.0"}
		if len(req.Tickers) != len(want) || req.Tickers[0] != want[0] || req.Tickers[1] != want[1] {
			t.Fatalf("subscribed tickers = %v, want %v", req.Tickers, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no subscribe frame")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if rec, err := bk.Retrieve(1); err == nil {
			if !rec.Close.Equal(d(95)) {
				t.Fatalf("applied bar = %+v, want close 95", rec)
			}
			break
		}
		if !time.Now().Before(deadline) {
			t.Fatalf("bar never reached the book")
		}
		time.Sleep(2 * time.Millisecond)
	}

	select {
	case pong := <-pongCh:
		var msg wireMessage
		if err := json.Unmarshal(pong, &msg); err != nil || msg.Type != "pong" {
			t.Fatalf("pong frame = %s", pong)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no pong answer")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("stream did not stop on cancel")
	}
}
