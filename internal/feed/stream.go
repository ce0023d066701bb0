package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"quantcore/internal/book"
	"quantcore/internal/clock"
	"quantcore/internal/instrument"
	"quantcore/internal/market"
	"quantcore/internal/metrics"
)

// subscribeRequest asks the market-data server for the universe's data
// tickers.
type subscribeRequest struct {
	Type    string   `json:"type"`
	Tickers []string `json:"tickers"`
}

// wireMessage is one inbound feed frame. Bars populate OHLCV, quotes
// populate bid/ask; anything else is control traffic.
type wireMessage struct {
	Type      string    `json:"type"`
	Ticker    string    `json:"ticker"`
	Timestamp time.Time `json:"timestamp"`

	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`

	Bid     decimal.Decimal `json:"bid"`
	Ask     decimal.Decimal `json:"ask"`
	BidSize decimal.Decimal `json:"bid_size"`
	AskSize decimal.Decimal `json:"ask_size"`
}

type wsClient struct {
	url  string
	conn *websocket.Conn
}

func (c *wsClient) connect(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return err
	}
	// Snapshot frames after a resubscribe can be large; raise the default.
	conn.SetReadLimit(2 << 20) // 2MB
	c.conn = conn
	return nil
}

func (c *wsClient) close(status websocket.StatusCode, reason string) error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close(status, reason)
}

func (c *wsClient) subscribe(ctx context.Context, tickers []string) error {
	if c == nil || c.conn == nil {
		return fmt.Errorf("ws not connected")
	}
	payload, err := json.Marshal(subscribeRequest{Type: "subscribe", Tickers: tickers})
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, payload)
}

func (c *wsClient) read(ctx context.Context) (wireMessage, []byte, error) {
	if c == nil || c.conn == nil {
		return wireMessage{}, nil, fmt.Errorf("ws not connected")
	}
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return wireMessage{}, nil, err
	}
	var msg wireMessage
	_ = json.Unmarshal(data, &msg)
	return msg, data, nil
}

func (c *wsClient) respondPong(ctx context.Context) error {
	if c == nil || c.conn == nil {
		return fmt.Errorf("ws not connected")
	}
	return c.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"pong"}`))
}

type Options struct {
	URL               string
	HeartbeatInterval time.Duration
	PingTimeout       time.Duration
	BackoffMin        time.Duration
	BackoffMax        time.Duration
	BarInterval       time.Duration
}

// Stream is the live market-data gateway: it keeps a websocket session to
// the data server, decodes ticks and bars into records and applies them to
// the book. Connection loss reconnects with jittered exponential backoff.
type Stream struct {
	Universe *instrument.Universe
	Book     *book.Book
	Clock    clock.Clock
	Logger   *zap.Logger
	Metrics  *metrics.Metrics

	opts      Options
	agg       *aggregator
	seenFirst bool
}

func NewStream(u *instrument.Universe, b *book.Book, clk clock.Clock, m *metrics.Metrics, logger *zap.Logger, opts Options) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.System{}
	}
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = 25 * time.Second
	}
	if opts.PingTimeout == 0 {
		opts.PingTimeout = 5 * time.Second
	}
	if opts.BackoffMin == 0 {
		opts.BackoffMin = 1 * time.Second
	}
	if opts.BackoffMax == 0 {
		opts.BackoffMax = 30 * time.Second
	}
	s := &Stream{
		Universe: u,
		Book:     b,
		Clock:    clk,
		Logger:   logger,
		Metrics:  m,
		opts:     opts,
	}
	if opts.BarInterval > 0 {
		s.agg = newAggregator(b, clk, logger)
	}
	return s
}

// Run dials, subscribes and consumes until ctx ends. Any session error
// tears the connection down and reconnects after a backoff.
func (s *Stream) Run(ctx context.Context) error {
	if s == nil || s.Universe == nil || s.Book == nil {
		return nil
	}
	if s.opts.URL == "" {
		return fmt.Errorf("feed url not configured")
	}

	if s.agg != nil {
		go s.agg.run(ctx, s.opts.BarInterval)
	}

	tickers := s.Universe.DataTickers()
	backoff := s.opts.BackoffMin
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		client := &wsClient{url: s.opts.URL}
		if err := client.connect(ctx); err != nil {
			s.Logger.Warn("feed connect failed", zap.Error(err))
			if s.Metrics != nil {
				s.Metrics.FeedReconnects.Inc()
			}
			if err := sleepWithJitter(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, s.opts.BackoffMax)
			continue
		}
		s.Logger.Info("feed connected", zap.String("url", s.opts.URL))

		if err := client.subscribe(ctx, tickers); err != nil {
			s.Logger.Warn("feed subscribe failed", zap.Error(err))
			_ = client.close(websocket.StatusInternalError, "subscribe failed")
			if err := sleepWithJitter(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, s.opts.BackoffMax)
			continue
		}
		s.Logger.Info("feed subscribed", zap.Int("tickers", len(tickers)))
		backoff = s.opts.BackoffMin

		err := s.consume(ctx, client)
		_ = client.close(websocket.StatusNormalClosure, "reconnect")
		if err == nil || errors.Is(err, context.Canceled) {
			return err
		}
		if s.Metrics != nil {
			s.Metrics.FeedReconnects.Inc()
		}
		if err := sleepWithJitter(ctx, backoff); err != nil {
			return err
		}
		backoff = nextBackoff(backoff, s.opts.BackoffMax)
	}
}

func (s *Stream) consume(ctx context.Context, client *wsClient) error {
	heartbeatErr := make(chan error, 1)
	heartbeatCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(s.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-heartbeatCtx.Done():
				heartbeatErr <- heartbeatCtx.Err()
				return
			case <-ticker.C:
				pingCtx, cancelPing := context.WithTimeout(heartbeatCtx, s.opts.PingTimeout)
				err := client.conn.Ping(pingCtx)
				cancelPing()
				if err != nil {
					heartbeatErr <- err
					return
				}
			}
		}
	}()

	for {
		select {
		case err := <-heartbeatErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		default:
		}
		msg, raw, err := client.read(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.Logger.Warn("feed read failed", zap.Error(err))
			}
			return err
		}
		if isPingPayload(msg, raw) {
			_ = client.respondPong(ctx)
			continue
		}
		if !s.seenFirst {
			s.seenFirst = true
			s.Logger.Info("feed first message", zap.String("type", msg.Type))
		}
		s.handleMessage(ctx, msg)
	}
}

func (s *Stream) handleMessage(ctx context.Context, msg wireMessage) {
	switch msg.Type {
	case "bar", "quote":
	default:
		return
	}

	inst, ok := s.Universe.ByDataTicker(msg.Ticker)
	if !ok {
		s.Logger.Warn("feed message for unknown ticker", zap.String("ticker", msg.Ticker))
		return
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = s.Clock.Now()
	}

	switch msg.Type {
	case "bar":
		rec, err := market.NewBar(inst.ID, ts, msg.Open, msg.High, msg.Low, msg.Close, msg.Volume)
		if err != nil {
			s.Logger.Warn("dropping malformed bar", zap.String("ticker", msg.Ticker), zap.Error(err))
			return
		}
		s.apply(ctx, rec)
	case "quote":
		rec, err := market.NewQuote(inst.ID, ts, msg.Bid, msg.Ask, msg.BidSize, msg.AskSize)
		if err != nil {
			s.Logger.Warn("dropping malformed quote", zap.String("ticker", msg.Ticker), zap.Error(err))
			return
		}
		if s.agg != nil {
			s.agg.add(rec)
			return
		}
		s.apply(ctx, rec)
	}
}

func (s *Stream) apply(ctx context.Context, rec market.Record) {
	if err := s.Book.Apply(ctx, rec); err != nil {
		s.Logger.Warn("book apply failed", zap.Int("instrument_id", rec.InstrumentID), zap.Error(err))
	}
}

func isPingPayload(msg wireMessage, raw []byte) bool {
	if strings.EqualFold(msg.Type, "ping") {
		return true
	}
	return strings.TrimSpace(string(raw)) == "ping"
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func sleepWithJitter(ctx context.Context, base time.Duration) error {
	if base <= 0 {
		return nil
	}
	jitter := time.Duration(rand.Int63n(int64(base / 2)))
	timer := time.NewTimer(base + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
