package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"quantcore/internal/api"
	"quantcore/internal/book"
	"quantcore/internal/bus"
	"quantcore/internal/clock"
	"quantcore/internal/config"
	cronrunner "quantcore/internal/cron"
	"quantcore/internal/db"
	"quantcore/internal/execution"
	"quantcore/internal/feed"
	"quantcore/internal/instrument"
	"quantcore/internal/metrics"
	"quantcore/internal/portfolio"
	"quantcore/internal/recorder"
	"quantcore/internal/replay"
	"quantcore/internal/repository"
	gormrepository "quantcore/internal/repository/gorm"
	"quantcore/internal/sim"
	"quantcore/internal/strategy"
)

// drainGrace bounds how long a finished backtest waits for bus consumers to
// work through the tail of the event stream before teardown.
const drainGrace = time.Second

// Engine assembles the full trading core for one run: bus, book, portfolio
// mirror, strategy, execution manager, simulated broker, and the optional
// persistence and HTTP surfaces. Construction wires everything; Run drives
// it in the configured mode until the context ends or, in backtest mode,
// the replay is exhausted.
type Engine struct {
	Config config.Config
	Logger *zap.Logger

	bus       *bus.Bus
	book      *book.Book
	universe  *instrument.Universe
	portfolio *portfolio.Server
	metrics   *metrics.Metrics
	broker    *sim.Broker
	exec      *execution.Manager
	runner    *strategy.Runner
	recorder  *recorder.Recorder

	dbConn *db.DB
	repo   repository.Repository

	sessionLoc *time.Location
}

func New(cfg config.Config, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Engine.Mode.Valid() {
		return nil, fmt.Errorf("unknown engine mode %q", cfg.Engine.Mode)
	}

	universe, err := instrument.FromConfig(cfg.Instruments)
	if err != nil {
		return nil, fmt.Errorf("build universe: %w", err)
	}

	loc := time.UTC
	if cfg.EOD.Timezone != "" {
		loc, err = time.LoadLocation(cfg.EOD.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load eod timezone: %w", err)
		}
	}

	m := metrics.New()
	b := bus.New(logger)
	b.Metrics = m

	bk := book.New(universe, b, book.Options{
		Mode:            cfg.Engine.Mode,
		LockstepTimeout: cfg.Lockstep.Timeout,
	}, logger)
	bk.Metrics = m

	pf := portfolio.NewServer(b, logger)

	strat, err := strategy.ByName(cfg.Engine.Strategy)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		Config:     cfg,
		Logger:     logger,
		bus:        b,
		book:       bk,
		universe:   universe,
		portfolio:  pf,
		metrics:    m,
		sessionLoc: loc,
	}

	e.broker = sim.NewBroker(b, bk, universe,
		decimal.NewFromFloat(cfg.Engine.Capital), cfg.Engine.Currency, logger)
	e.broker.Metrics = m
	e.broker.Mode = cfg.Engine.Mode

	e.exec = &execution.Manager{
		Bus:       b,
		Book:      bk,
		Portfolio: pf,
		Universe:  universe,
		Logger:    logger,
		Metrics:   m,
		Mode:      cfg.Engine.Mode,
	}

	e.runner = &strategy.Runner{
		Strategy: strat,
		Bus:      b,
		View:     strategy.NewView(bk, pf),
		Logger:   logger,
		Mode:     cfg.Engine.Mode,
	}

	if cfg.DB.Enabled {
		dbConn, err := db.Open(cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
		if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
			logger.Warn("failed to set timezone", zap.Error(err))
		}
		if err := db.AutoMigrate(dbConn); err != nil {
			db.Close(dbConn)
			return nil, fmt.Errorf("auto-migrate: %w", err)
		}
		e.dbConn = dbConn
		e.repo = gormrepository.New(dbConn.Gorm)
	}

	if cfg.Recorder.Enabled && e.repo != nil {
		e.recorder = &recorder.Recorder{
			Bus:       b,
			Repo:      e.repo,
			Universe:  universe,
			Portfolio: pf,
			Logger:    logger,
			Metrics:   m,
		}
	}

	return e, nil
}

// Close releases the engine's external resources. Call after Run returns.
func (e *Engine) Close() error {
	e.bus.Close()
	if e.dbConn != nil {
		return db.Close(e.dbConn)
	}
	return nil
}

// Run starts every consumer, then drives the engine in the configured mode.
// In backtest mode it returns once the replay has drained and positions are
// liquidated; in live mode it blocks until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				e.Logger.Warn(name+" stopped", zap.Error(err))
			}
		}()
	}

	start("portfolio server", e.portfolio.Run)
	start("strategy runner", e.runner.Run)
	start("execution manager", e.exec.Run)
	start("sim broker", e.broker.Run)
	if e.recorder != nil {
		start("recorder", e.recorder.Run)
	}

	errCh := make(chan error, 2)
	var srv *http.Server
	if e.Config.Server.Enabled {
		srv = &http.Server{
			Addr:    e.Config.Server.HTTPAddr,
			Handler: e.buildRouter(),
		}
		go func() {
			e.Logger.Info("http server starting", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
	}

	var runErr error
	switch e.Config.Engine.Mode {
	case config.ModeBacktest:
		runErr = e.runBacktest(runCtx, errCh)
	default:
		runErr = e.runLive(runCtx, errCh)
	}

	cancel()
	wg.Wait()

	if srv != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		_ = srv.Shutdown(shutdownCtx)
	}
	return runErr
}

func (e *Engine) runBacktest(ctx context.Context, errCh <-chan error) error {
	if e.repo == nil {
		return errors.New("backtest mode requires db.enabled: bars are replayed from the database")
	}

	start, err := parseDatePtr(e.Config.Replay.Start, e.sessionLoc)
	if err != nil {
		return fmt.Errorf("replay.start: %w", err)
	}
	end, err := parseDatePtr(e.Config.Replay.End, e.sessionLoc)
	if err != nil {
		return fmt.Errorf("replay.end: %w", err)
	}

	source := &replay.DBSource{
		Repo:      e.repo,
		Logger:    e.Logger,
		Start:     start,
		End:       end,
		BatchSize: e.Config.Replay.BatchSize,
	}
	rep := &replay.Replayer{
		Source:   source,
		Book:     e.book,
		Logger:   e.Logger,
		Timezone: e.sessionLoc,
	}

	done := make(chan error, 1)
	go func() { done <- rep.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("replay: %w", err)
		}
		if err != nil {
			return err
		}
	case err := <-errCh:
		e.Logger.Error("server error", zap.Error(err))
		return err
	case <-ctx.Done():
		return ctx.Err()
	}

	if e.recorder != nil {
		if err := e.recorder.SnapshotPositions(ctx); err != nil {
			e.Logger.Warn("final position snapshot failed", zap.Error(err))
		}
	}
	e.broker.Liquidate(ctx)

	snap := e.broker.Account().EquityValue()
	e.Logger.Info("backtest complete",
		zap.Time("last_update", snap.Timestamp),
		zap.String("final_equity", snap.Value.String()),
	)

	// Consumers drop their queues on cancel, so give them a beat to persist
	// the liquidation tail.
	select {
	case <-time.After(drainGrace):
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (e *Engine) runLive(ctx context.Context, errCh <-chan error) error {
	stream := feed.NewStream(e.universe, e.book, clock.System{}, e.metrics, e.Logger, feed.Options{
		URL:               e.Config.Feed.URL,
		HeartbeatInterval: e.Config.Feed.Heartbeat,
		BackoffMin:        e.Config.Feed.ReconnectMin,
		BackoffMax:        e.Config.Feed.ReconnectMax,
		BarInterval:       e.Config.Feed.BarInterval,
	})
	go func() {
		if err := stream.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.Logger.Warn("market data stream stopped", zap.Error(err))
		}
	}()

	if e.Config.Cron.Enabled {
		cronRunner := cronrunner.New(e.Logger, ctx)
		_, err := cronRunner.Add(e.Config.EOD.Schedule, func(ctx context.Context) {
			date := sessionDate(time.Now(), e.sessionLoc)
			if err := e.book.HandleEOD(ctx, date); err != nil {
				e.Logger.Warn("end-of-day handling failed", zap.Error(err))
				return
			}
			e.Logger.Info("end-of-day complete", zap.Time("date", date))
		})
		if err != nil {
			e.Logger.Warn("cron register eod failed", zap.Error(err))
		}
		if e.recorder != nil {
			_, err = cronRunner.Add(e.Config.Cron.Snapshot, func(ctx context.Context) {
				if err := e.recorder.SnapshotPositions(ctx); err != nil {
					e.Logger.Warn("position snapshot failed", zap.Error(err))
				}
			})
			if err != nil {
				e.Logger.Warn("cron register snapshot failed", zap.Error(err))
			}
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	select {
	case <-ctx.Done():
		e.Logger.Info("shutdown requested")
		return ctx.Err()
	case err := <-errCh:
		e.Logger.Error("server error", zap.Error(err))
		return err
	}
}

func (e *Engine) buildRouter() *gin.Engine {
	if strings.EqualFold(e.Config.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(api.CORSMiddleware())
	r.Use(api.RequestLogger(e.Logger))

	health := &api.HealthHandler{}
	if e.dbConn != nil {
		health.DB = e.dbConn.Gorm
	}
	health.Register(r)

	state := &api.StateHandler{Portfolio: e.portfolio, Universe: e.universe}
	state.Register(r)

	if e.repo != nil {
		history := &api.HistoryHandler{Repo: e.repo}
		history.Register(r)
	}

	r.GET("/metrics", gin.WrapH(e.metrics.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	return r
}

// sessionDate truncates ts to midnight in loc, the engine's notion of a
// trading date.
func sessionDate(ts time.Time, loc *time.Location) time.Time {
	local := ts.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// parseDatePtr accepts an empty string (no bound), a calendar date, or a
// full RFC3339 timestamp.
func parseDatePtr(s string, loc *time.Location) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return &ts, nil
	}
	ts, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return nil, fmt.Errorf("want YYYY-MM-DD or RFC3339, got %q", s)
	}
	return &ts, nil
}
