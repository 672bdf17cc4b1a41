// Package config loads trailbot settings from flags, the environment, an
// optional config file, a .env file and built-in defaults, in that order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"trailing-lab/internal/domain"
	"trailing-lab/internal/ingestion"
	"trailing-lab/internal/replay"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the resolved configuration of one command.
type Config struct {
	Pair     string
	Ordering replay.OrderingPolicy

	Strategy domain.StrategyParams
	Ledger   domain.LedgerConfig
	Run      domain.RunConfig

	PostgresDSN   string
	ClickhouseDSN string
	FeedEndpoint  string
	MetricsAddr   string
}

// setting ties a viper key to its environment variable, flag and default.
type setting struct {
	key   string
	env   string
	flag  string
	value any
	usage string
}

var settings = []setting{
	{"pair", "TRADING_PAIR", "pair", "BTC-GBP", "product id, e.g. BTC-GBP"},
	{"replay.ordering", "REPLAY_ORDERING", "ordering", string(replay.OrderingDrop), "out-of-order ticks: drop or strict"},

	{"strategy.window_days", "REENTRY_MA_DAYS", "window-days", domain.DefaultStrategyParams.WindowDays, "moving-average window in days"},
	{"strategy.buy_below_pct", "REENTRY_BUY_BELOW_PCT", "buy-below-pct", domain.DefaultStrategyParams.BuyBelowPct, "percent below the average that arms the trailing buy"},
	{"strategy.trailing_buy_pct", "REENTRY_TRAILING_BUY_PCT", "trailing-buy-pct", domain.DefaultStrategyParams.TrailingBuyPct, "bounce from the local low that triggers a buy, percent"},
	{"strategy.trailing_stop_pct", "TRAILING_STOP_PERCENT", "trailing-stop-pct", domain.DefaultStrategyParams.TrailingStopPct, "trailing stop distance, percent"},
	{"strategy.activation_threshold_pct", "ACTIVATION_THRESHOLD_PERCENT", "activation-pct", domain.DefaultStrategyParams.ActivationThresholdPct, "trailing stop activation threshold, percent (reported only)"},

	{"ledger.initial_quote", "BACKTEST_INITIAL_QUOTE", "initial-quote", 1000.0, "starting quote balance"},
	{"ledger.fee_pct", "TRADE_FEE_PERCENTAGE", "fee-pct", 0.5, "fee per trade, percent"},
	{"run.invest_quote", "BACKTEST_INVEST_QUOTE", "invest-quote", 100.0, "quote spent on each buy"},
	{"run.reenter", "BACKTEST_REENTER", "reenter", true, "allow buys after the first round trip"},

	{"postgres.dsn", "POSTGRES_DSN", "postgres-dsn", "", "PostgreSQL DSN for the run archive"},
	{"clickhouse.dsn", "CLICKHOUSE_DSN", "clickhouse-dsn", "", "ClickHouse DSN for price samples"},
	{"feed.endpoint", "FEED_WS_ENDPOINT", "feed-endpoint", ingestion.DefaultFeedEndpoint, "ticker websocket endpoint"},
	{"metrics.addr", "METRICS_ADDR", "metrics-addr", ":9090", "listen address for /metrics"},
}

// BindFlags registers every setting as a flag on fs.
func BindFlags(fs *pflag.FlagSet) {
	for _, s := range settings {
		if fs.Lookup(s.flag) != nil {
			continue
		}
		switch v := s.value.(type) {
		case string:
			fs.String(s.flag, v, s.usage)
		case float64:
			fs.Float64(s.flag, v, s.usage)
		case bool:
			fs.Bool(s.flag, v, s.usage)
		}
	}
}

// Options selects the inputs of Load.
type Options struct {
	ConfigFile string         // optional YAML/TOML/JSON file
	EnvFile    string         // defaults to ".env"; a missing file is ignored
	Flags      *pflag.FlagSet // flags registered with BindFlags, may be nil
}

// Load resolves the configuration. Values set in the process environment
// win over the .env file.
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	v := viper.New()
	for _, s := range settings {
		v.SetDefault(s.key, s.value)
		if err := v.BindEnv(s.key, s.env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", s.env, err)
		}
		if opts.Flags != nil {
			if f := opts.Flags.Lookup(s.flag); f != nil {
				if err := v.BindPFlag(s.key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", s.flag, err)
				}
			}
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
		}
	}

	cfg := &Config{
		Pair:     strings.TrimSpace(v.GetString("pair")),
		Ordering: replay.OrderingPolicy(strings.ToLower(strings.TrimSpace(v.GetString("replay.ordering")))),
		Strategy: domain.StrategyParams{
			WindowDays:             v.GetFloat64("strategy.window_days"),
			BuyBelowPct:            v.GetFloat64("strategy.buy_below_pct"),
			TrailingBuyPct:         v.GetFloat64("strategy.trailing_buy_pct"),
			TrailingStopPct:        v.GetFloat64("strategy.trailing_stop_pct"),
			ActivationThresholdPct: v.GetFloat64("strategy.activation_threshold_pct"),
		},
		Ledger: domain.LedgerConfig{
			InitialQuote: v.GetFloat64("ledger.initial_quote"),
			FeePct:       v.GetFloat64("ledger.fee_pct"),
		},
		Run: domain.RunConfig{
			InvestQuote: v.GetFloat64("run.invest_quote"),
			Reenter:     v.GetBool("run.reenter"),
		},
		PostgresDSN:   v.GetString("postgres.dsn"),
		ClickhouseDSN: v.GetString("clickhouse.dsn"),
		FeedEndpoint:  v.GetString("feed.endpoint"),
		MetricsAddr:   v.GetString("metrics.addr"),
	}
	return cfg, nil
}

// Validate reports every invalid field, joined.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Pair == "" {
		bad("pair is required")
	}
	if _, err := replay.ParseOrderingPolicy(string(c.Ordering)); err != nil {
		bad("ordering %q: want drop or strict", c.Ordering)
	}

	nonNegative := []struct {
		name  string
		value float64
	}{
		{"window_days", c.Strategy.WindowDays},
		{"buy_below_pct", c.Strategy.BuyBelowPct},
		{"trailing_buy_pct", c.Strategy.TrailingBuyPct},
		{"trailing_stop_pct", c.Strategy.TrailingStopPct},
		{"activation_threshold_pct", c.Strategy.ActivationThresholdPct},
		{"initial_quote", c.Ledger.InitialQuote},
		{"fee_pct", c.Ledger.FeePct},
		{"invest_quote", c.Run.InvestQuote},
	}
	for _, f := range nonNegative {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) || f.value < 0 {
			bad("%s must be a finite non-negative number, got %v", f.name, f.value)
		}
	}

	if c.Strategy.WindowDays == 0 {
		bad("window_days must be greater than zero")
	}
	if c.Ledger.FeePct >= 100 {
		bad("fee_pct must be below 100, got %v", c.Ledger.FeePct)
	}

	return errors.Join(errs...)
}
