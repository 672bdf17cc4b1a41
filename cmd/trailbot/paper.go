package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trailing-lab/internal/ingestion"
	"trailing-lab/internal/ledger"
	"trailing-lab/internal/observability"
	"trailing-lab/internal/replay"
	"trailing-lab/internal/reporting"
	"trailing-lab/internal/status"
	"trailing-lab/internal/strategy"
)

type paperFlags struct {
	record      bool
	duration    time.Duration
	statusEvery int
	format      string
}

func paperCmd(a *app) *cobra.Command {
	f := &paperFlags{}
	cmd := &cobra.Command{
		Use:   "paper",
		Short: "Run the strategy on the live ticker feed with a simulated account",
		Long: `paper subscribes to the public ticker channel of the feed endpoint and runs
the strategy on every update. Fills are simulated; nothing is sent to an
exchange. Metrics are served on --metrics-addr at /metrics, the latest
snapshot at /status.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPaper(cmd, a, f)
		},
	}

	fl := cmd.Flags()
	fl.BoolVar(&f.record, "record", false, "store received prices as samples (ClickHouse when configured)")
	fl.DurationVar(&f.duration, "duration", 0, "stop after this long; 0 runs until interrupted")
	fl.IntVar(&f.statusEvery, "status-every", 60, "log a status line every N ticks; 0 disables")
	fl.StringVar(&f.format, "format", formatText, "summary format on exit: text, markdown or json")
	return cmd
}

func runPaper(cmd *cobra.Command, a *app, f *paperFlags) error {
	if err := checkFormat(f.format); err != nil {
		return err
	}
	cfg := a.cfg
	log := a.log

	ctx := cmd.Context()
	if f.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.duration)
		defer cancel()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(observability.DefaultNamespace, reg)

	wsCfg := ingestion.DefaultWSConfig(cfg.Pair)
	wsCfg.Endpoint = cfg.FeedEndpoint
	feed := ingestion.NewWSSource(wsCfg, log.Named("feed"), metrics)
	if err := feed.Start(ctx); err != nil {
		return err
	}

	var src ingestion.Source = feed
	closeSrc := func() { feed.Close() }
	if f.record {
		store, err := openPriceStore(ctx, cfg.ClickhouseDSN, false, log)
		if err != nil {
			feed.Close()
			return err
		}
		rec := ingestion.NewRecorder(feed, store, ingestion.RecorderConfig{
			Pair:     cfg.Pair,
			Database: store.database,
			Logger:   log.Named("recorder"),
			Metrics:  metrics,
		})
		src = rec
		closeSrc = func() {
			if err := rec.Close(context.WithoutCancel(ctx)); err != nil {
				log.Warn("recorder close", zap.Error(err))
			}
			stored, failed, skipped := rec.Stats()
			log.Info("recorder stopped",
				zap.Int("stored", stored), zap.Int("failed", failed), zap.Int("skipped", skipped))
			store.close()
		}
	}
	defer closeSrc()

	b := status.NewBroadcaster()
	var latest atomic.Pointer[status.Snapshot]
	b.Subscribe(func(s status.Snapshot) { latest.Store(&s) })
	if f.statusEvery > 0 {
		b.Subscribe(statusLogger(log.Named("status"), f.statusEvery))
	}

	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           paperMux(reg, &latest),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.MetricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	runner := replay.NewRunner(
		strategy.NewEntryExitEngine(cfg.Strategy),
		ledger.NewFromConfig(cfg.Ledger),
		replay.Options{
			Run:         cfg.Run,
			Pair:        cfg.Pair,
			Ordering:    cfg.Ordering,
			Logger:      log.Named("replay"),
			Metrics:     metrics,
			Broadcaster: b,
		},
	)

	log.Info("paper trading started",
		zap.String("pair", cfg.Pair),
		zap.String("endpoint", wsCfg.Endpoint),
		zap.String("strategy", strategy.ID(cfg.Strategy)))

	res, err := runner.Run(ctx, src)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	log.Info("paper trading stopped", zap.Int("reconnects", feed.Reconnects()))

	report := reporting.NewGenerator(nil).FromResult(res, reporting.RunMeta{
		Pair:   cfg.Pair,
		Source: "feed:" + wsCfg.Endpoint,
		Params: cfg.Strategy,
		Ledger: cfg.Ledger,
		Run:    cfg.Run,
	})
	return writeReport(cmd.OutOrStdout(), f.format, report, res)
}

func paperMux(g prometheus.Gatherer, latest *atomic.Pointer[status.Snapshot]) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", observability.Handler(g))

	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		s := latest.Load()
		if s == nil {
			http.Error(w, "no ticks yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s)
	})

	return mux
}

// statusLogger logs one line every n snapshots and every executed trade.
func statusLogger(log *zap.Logger, n int) status.Observer {
	return func(s status.Snapshot) {
		if !s.Executed && s.Seq%n != 0 {
			return
		}
		fields := []zap.Field{
			zap.Int("seq", s.Seq),
			zap.Float64("price", s.Tick.Price),
			zap.String("signal", string(s.Signal)),
			zap.Float64("equity", s.Ledger.Equity),
			zap.Float64("max_drawdown_pct", s.Ledger.MaxDrawdownPct),
			zap.Int("samples", s.Engine.Samples),
		}
		if s.Engine.MA != nil {
			fields = append(fields, zap.Float64("ma", *s.Engine.MA))
		}
		if s.Engine.Trailing.TrailingStopPrice != nil {
			fields = append(fields, zap.Float64("stop", *s.Engine.Trailing.TrailingStopPrice))
		}
		log.Info("status", fields...)
	}
}
