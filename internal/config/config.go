package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Mode selects how the engine is driven: a historical replay in lockstep or
// a live market-data feed.
type Mode string

const (
	ModeBacktest Mode = "backtest"
	ModeLive     Mode = "live"
)

func (m Mode) Valid() bool {
	return m == ModeBacktest || m == ModeLive
}

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Cron      CronConfig      `mapstructure:"cron"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Lockstep  LockstepConfig  `mapstructure:"lockstep"`
	Replay    ReplayConfig    `mapstructure:"replay"`
	Feed      FeedConfig      `mapstructure:"feed"`
	EOD       EODConfig       `mapstructure:"eod"`
	Recorder  RecorderConfig  `mapstructure:"recorder"`
	Profiling ProfilingConfig `mapstructure:"profiling"`

	Instruments []InstrumentConfig `mapstructure:"instruments"`
}

type AppConfig struct {
	Env  string `mapstructure:"env"`
	Name string `mapstructure:"name"`
}

type ServerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Snapshot string `mapstructure:"snapshot"`
}

type EngineConfig struct {
	Mode     Mode    `mapstructure:"mode"`
	Capital  float64 `mapstructure:"capital"`
	Currency string  `mapstructure:"currency"`
	Strategy string  `mapstructure:"strategy"`
}

// LockstepConfig bounds the flag handshakes that keep the backtest replay,
// the broker and the strategy in step. A wait that exceeds Timeout means a
// stage stopped clearing its flag.
type LockstepConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type ReplayConfig struct {
	Start     string `mapstructure:"start"`
	End       string `mapstructure:"end"`
	BatchSize int    `mapstructure:"batch_size"`
}

type FeedConfig struct {
	URL          string        `mapstructure:"url"`
	ReconnectMin time.Duration `mapstructure:"reconnect_min"`
	ReconnectMax time.Duration `mapstructure:"reconnect_max"`
	Heartbeat    time.Duration `mapstructure:"heartbeat"`
	BarInterval  time.Duration `mapstructure:"bar_interval"`
}

type EODConfig struct {
	Schedule string `mapstructure:"schedule"`
	Timezone string `mapstructure:"timezone"`
}

type RecorderConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type ProfilingConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ServerAddress string `mapstructure:"server_address"`
}

// InstrumentConfig declares one tradable instrument of the engine universe.
// Money-like values are plain floats here; they are converted to decimals
// when the universe is built.
type InstrumentConfig struct {
	ID                 int     `mapstructure:"id"`
	Ticker             string  `mapstructure:"ticker"`
	BrokerTicker       string  `mapstructure:"broker_ticker"`
	DataTicker         string  `mapstructure:"data_ticker"`
	Kind               string  `mapstructure:"kind"`
	Currency           string  `mapstructure:"currency"`
	Venue              string  `mapstructure:"venue"`
	Fees               float64 `mapstructure:"fees"`
	InitialMargin      float64 `mapstructure:"initial_margin"`
	PriceMultiplier    float64 `mapstructure:"price_multiplier"`
	QuantityMultiplier float64 `mapstructure:"quantity_multiplier"`
	SlippageFactor     float64 `mapstructure:"slippage_factor"`
	DayOpen            string  `mapstructure:"day_open"`
	DayClose           string  `mapstructure:"day_close"`
	Strike             float64 `mapstructure:"strike"`
	Right              string  `mapstructure:"right"`
	Expiration         string  `mapstructure:"expiration"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("QC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.name", "quantcore")
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.enabled", true)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.snapshot", "@every 1h")
	v.SetDefault("engine.mode", "backtest")
	v.SetDefault("engine.capital", 100000)
	v.SetDefault("engine.currency", "USD")
	v.SetDefault("engine.strategy", "hold")
	v.SetDefault("lockstep.timeout", "5s")
	v.SetDefault("replay.start", "")
	v.SetDefault("replay.end", "")
	v.SetDefault("replay.batch_size", 1000)
	v.SetDefault("feed.url", "")
	v.SetDefault("feed.reconnect_min", "1s")
	v.SetDefault("feed.reconnect_max", "30s")
	v.SetDefault("feed.heartbeat", "25s")
	v.SetDefault("feed.bar_interval", "0s")
	v.SetDefault("eod.schedule", "0 5 17 * * MON-FRI")
	v.SetDefault("eod.timezone", "America/New_York")
	v.SetDefault("recorder.enabled", true)
	v.SetDefault("profiling.enabled", false)
	v.SetDefault("profiling.server_address", "http://localhost:4040")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
