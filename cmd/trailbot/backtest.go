package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trailing-lab/internal/domain"
	"trailing-lab/internal/ingestion"
	"trailing-lab/internal/replay"
	"trailing-lab/internal/reporting"
	"trailing-lab/internal/verification"
)

type backtestFlags struct {
	csvPath   string
	from      string
	to        string
	format    string
	tradesCSV string
	archive   bool
	check     bool
}

func backtestCmd(a *app) *cobra.Command {
	f := &backtestFlags{}
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay a CSV file or stored samples through the strategy",
		Example: `  trailbot backtest --csv data/btc-gbp.csv --trailing-stop-pct 3
  trailbot backtest --from 2024-01-01 --to 2024-03-01 --archive --format markdown`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBacktest(cmd, a, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.csvPath, "csv", "", "CSV file with time and price columns; stored samples are used when empty")
	fl.StringVar(&f.from, "from", "", "first stored sample to replay (epoch or date)")
	fl.StringVar(&f.to, "to", "", "last stored sample to replay (epoch or date)")
	fl.StringVar(&f.format, "format", formatText, "output format: text, markdown or json")
	fl.StringVar(&f.tradesCSV, "trades-csv", "", "also write the trade list to this CSV file")
	fl.BoolVar(&f.archive, "archive", false, "store the run and its trades in PostgreSQL")
	fl.BoolVar(&f.check, "check", false, "replay twice and fail if the decision logs differ")
	return cmd
}

// backtestOutput is the JSON form of a backtest.
type backtestOutput struct {
	RunID    string                `json:"run_id,omitempty"`
	Pair     string                `json:"pair"`
	Source   string                `json:"source"`
	Params   domain.StrategyParams `json:"params"`
	Ledger   domain.LedgerConfig   `json:"ledger"`
	Run      domain.RunConfig      `json:"run"`
	Result   *replay.Result        `json:"result"`
	Elapsed  string                `json:"elapsed"`
	Verified bool                  `json:"verified,omitempty"`
}

func runBacktest(cmd *cobra.Command, a *app, f *backtestFlags) error {
	if err := checkFormat(f.format); err != nil {
		return err
	}
	ctx := cmd.Context()
	cfg := a.cfg

	bs, err := openBacktestSource(ctx, a, f)
	if err != nil {
		return err
	}
	defer bs.close()
	src, label := bs.src, bs.label

	opts := replay.Options{
		Run:      cfg.Run,
		Pair:     cfg.Pair,
		Ordering: cfg.Ordering,
		Logger:   a.log.Named("replay"),
	}

	if f.check {
		ticks, err := ingestion.Drain(ctx, src)
		if err != nil {
			return fmt.Errorf("read prices: %w", err)
		}
		divs, err := verification.VerifyDeterminism(ctx, ticks, cfg.Strategy, cfg.Ledger, opts)
		if err != nil {
			return err
		}
		if len(divs) > 0 {
			for _, d := range divs {
				a.log.Error("replay diverged", zap.String("field", d.Field),
					zap.Any("expected", d.Expected), zap.Any("actual", d.Actual))
			}
			return fmt.Errorf("determinism check failed: %d divergences", len(divs))
		}
		src = ingestion.NewSliceSource(ticks)
	}

	start := time.Now()
	res, err := replay.Backtest(ctx, cfg.Strategy, cfg.Ledger, opts, src)
	if err != nil {
		return err
	}
	if bs.csv != nil && bs.csv.Skipped() > 0 {
		a.log.Warn("csv rows skipped", zap.String("file", f.csvPath), zap.Int("rows", bs.csv.Skipped()))
	}

	out := backtestOutput{
		Pair:     cfg.Pair,
		Source:   label,
		Params:   cfg.Strategy,
		Ledger:   cfg.Ledger,
		Run:      cfg.Run,
		Result:   res,
		Elapsed:  time.Since(start).String(),
		Verified: f.check,
	}

	if f.archive {
		runID, err := archiveRun(ctx, a, label, res)
		if err != nil {
			return err
		}
		out.RunID = runID
	}

	if err := writeTradesCSV(f.tradesCSV, res.Results.Trades); err != nil {
		return err
	}

	report := reporting.NewGenerator(nil).FromResult(res, reporting.RunMeta{
		RunID:  out.RunID,
		Pair:   cfg.Pair,
		Source: label,
		Params: cfg.Strategy,
		Ledger: cfg.Ledger,
		Run:    cfg.Run,
	})
	return writeReport(cmd.OutOrStdout(), f.format, report, out)
}

func archiveRun(ctx context.Context, a *app, source string, res *replay.Result) (string, error) {
	store, closeStore, err := openRunStore(ctx, a.cfg.PostgresDSN, a.log)
	if err != nil {
		return "", err
	}
	defer closeStore()

	run := &domain.BacktestRun{
		RunID:          uuid.NewString(),
		Pair:           a.cfg.Pair,
		Source:         source,
		Params:         a.cfg.Strategy,
		Ledger:         a.cfg.Ledger,
		Run:            a.cfg.Run,
		FromMs:         res.FromMs,
		ToMs:           res.ToMs,
		TicksProcessed: res.TicksProcessed,
		Results:        res.Results,
		Digest:         res.Digest,
		CreatedAt:      time.Now().UTC(),
	}
	if err := store.Insert(ctx, run); err != nil {
		return "", fmt.Errorf("archive run: %w", err)
	}
	a.log.Info("run archived", zap.String("run_id", run.RunID), zap.Int("trades", len(run.Results.Trades)))
	return run.RunID, nil
}

// backtestSource is where a backtest reads its prices from.
type backtestSource struct {
	src   ingestion.Source
	label string
	csv   *ingestion.CSVSource // set for CSV input
	close func()
}

func openBacktestSource(ctx context.Context, a *app, f *backtestFlags) (*backtestSource, error) {
	if f.csvPath != "" {
		if f.from != "" || f.to != "" {
			return nil, fmt.Errorf("--from and --to apply to stored samples, not --csv")
		}
		cs, err := ingestion.OpenCSV(f.csvPath)
		if err != nil {
			return nil, err
		}
		return &backtestSource{
			src:   cs,
			label: "csv:" + f.csvPath,
			csv:   cs,
			close: func() { cs.Close() },
		}, nil
	}

	fromMs, err := parseTimeFlag("from", f.from)
	if err != nil {
		return nil, err
	}
	toMs, err := parseTimeFlag("to", f.to)
	if err != nil {
		return nil, err
	}

	store, err := openPriceStore(ctx, a.cfg.ClickhouseDSN, true, a.log)
	if err != nil {
		return nil, err
	}

	var opts []ingestion.StoreSourceOption
	if fromMs != 0 || toMs != 0 {
		if toMs == 0 {
			toMs = time.Now().UnixMilli()
		}
		if toMs < fromMs {
			store.close()
			return nil, fmt.Errorf("--to precedes --from")
		}
		opts = append(opts, ingestion.WithTimeRange(fromMs, toMs))
	}

	return &backtestSource{
		src:   ingestion.NewStoreSource(store, a.cfg.Pair, opts...),
		label: store.database,
		close: store.close,
	}, nil
}
