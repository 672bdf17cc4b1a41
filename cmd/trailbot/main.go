// Command trailbot replays prices through the trailing entry/exit strategy:
// backtests over CSV files or stored samples, paper trading on a live
// ticker feed, price ingestion, run archives and determinism checks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"trailing-lab/internal/config"
)

var version = "0.1.0"

// app carries what every subcommand needs once the root pre-run is done.
type app struct {
	configFile string
	envFile    string
	logLevel   string
	devLog     bool

	cfg *config.Config
	log *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{}
	rootCmd := newRootCmd(a)

	err := rootCmd.ExecuteContext(ctx)
	if a.log != nil {
		_ = a.log.Sync()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "trailbot",
		Short: "Trailing-stop spot strategy: backtest, paper trade, archive",
		Long: `trailbot replays prices through a moving-average entry with a trailing
buy and a trailing stop exit, and simulates fills in a quote/base ledger.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (YAML, TOML or JSON)")
	pf.StringVar(&a.envFile, "env-file", ".env", "dotenv file, ignored when missing")
	pf.StringVar(&a.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.BoolVar(&a.devLog, "dev-log", false, "human-readable development logging")
	config.BindFlags(pf)

	rootCmd.AddCommand(
		backtestCmd(a),
		paperCmd(a),
		ingestCmd(a),
		fetchCmd(a),
		verifyCmd(a),
		runsCmd(a),
	)
	return rootCmd
}

func (a *app) setup(cmd *cobra.Command) error {
	log, err := newLogger(a.logLevel, a.devLog)
	if err != nil {
		return err
	}
	a.log = log

	cfg, err := config.Load(config.Options{
		ConfigFile: a.configFile,
		EnvFile:    a.envFile,
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	a.log.Debug("config loaded",
		zap.String("pair", cfg.Pair),
		zap.Any("strategy", cfg.Strategy),
		zap.Any("ledger", cfg.Ledger),
		zap.Any("run", cfg.Run),
		zap.String("ordering", string(cfg.Ordering)),
		zap.Bool("postgres", cfg.PostgresDSN != ""),
		zap.Bool("clickhouse", cfg.ClickhouseDSN != ""))
	return nil
}

// newLogger builds a production (JSON) or development (console) logger on stderr.
func newLogger(level string, dev bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}

	zc := zap.NewProductionConfig()
	if dev {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}
