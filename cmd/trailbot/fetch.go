package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trailing-lab/internal/ingestion"
)

type fetchFlags struct {
	endpoint    string
	granularity time.Duration
	from        string
	to          string
	out         string
	store       bool
}

func fetchCmd(a *app) *cobra.Command {
	f := &fetchFlags{}
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download historical candles as close prices",
		Long: `fetch downloads candles for --pair from the public exchange API and writes
their close prices as a time,close CSV, stores them as samples, or both.`,
		Example: `  trailbot fetch --pair BTC-GBP --from 2024-01-01 --granularity 1h --out btc-gbp.csv
  trailbot fetch --from 2024-01-01 --to 2024-02-01 --store`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFetch(cmd, a, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.endpoint, "candles-endpoint", ingestion.DefaultCandleEndpoint, "REST endpoint serving /products/{pair}/candles")
	fl.DurationVar(&f.granularity, "granularity", time.Hour, "candle size")
	fl.StringVar(&f.from, "from", "", "start of the range (epoch or date, required)")
	fl.StringVar(&f.to, "to", "", "end of the range (epoch or date); now when empty")
	fl.StringVar(&f.out, "out", "", `CSV output file, "-" for stdout`)
	fl.BoolVar(&f.store, "store", false, "store the close prices as samples")
	cmd.MarkFlagRequired("from")
	return cmd
}

func runFetch(cmd *cobra.Command, a *app, f *fetchFlags) error {
	if f.out == "" && !f.store {
		return fmt.Errorf("nothing to do: set --out and/or --store")
	}
	ctx := cmd.Context()

	fromMs, err := parseTimeFlag("from", f.from)
	if err != nil {
		return err
	}
	end := time.Now().UTC()
	if f.to != "" {
		toMs, err := parseTimeFlag("to", f.to)
		if err != nil {
			return err
		}
		end = time.UnixMilli(toMs).UTC()
	}

	client := ingestion.NewCandleClient(f.endpoint, ingestion.WithLogger(a.log.Named("candles")))
	candles, err := client.FetchCandles(ctx, a.cfg.Pair, f.granularity, time.UnixMilli(fromMs).UTC(), end)
	if err != nil {
		return err
	}
	a.log.Info("candles fetched", zap.String("pair", a.cfg.Pair), zap.Int("candles", len(candles)))

	if f.out != "" {
		var w io.Writer = cmd.OutOrStdout()
		if f.out != "-" {
			file, err := os.Create(f.out)
			if err != nil {
				return err
			}
			defer file.Close()
			w = file
		}
		if err := ingestion.WriteCandlesCSV(w, candles, true); err != nil {
			return fmt.Errorf("write candles: %w", err)
		}
	}

	if f.store {
		store, err := openPriceStore(ctx, a.cfg.ClickhouseDSN, true, a.log)
		if err != nil {
			return err
		}
		defer store.close()

		stored, _, err := storeTicks(ctx, store, a.cfg.Pair, ingestion.CandleTicks(candles), defaultInsertBatch)
		if err != nil {
			return err
		}
		a.log.Info("candles stored", zap.Int("samples", stored))
	}
	return nil
}
