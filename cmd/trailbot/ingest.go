package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trailing-lab/internal/domain"
	"trailing-lab/internal/ingestion"
	"trailing-lab/internal/storage"
)

const defaultInsertBatch = 1000

type ingestFlags struct {
	csvPath   string
	batchSize int
}

func ingestCmd(a *app) *cobra.Command {
	f := &ingestFlags{}
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load a CSV price file into the price sample store",
		Long: `ingest reads a CSV price file, normalizes timestamps to milliseconds and
stores the samples for --pair. Without a ClickHouse DSN the samples go to
an in-memory store and the command only reports what it would write.`,
		Example: `  trailbot ingest --csv data/btc-gbp.csv --pair BTC-GBP`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIngest(cmd, a, f)
		},
	}
	cmd.Flags().StringVar(&f.csvPath, "csv", "", "CSV file with time and price columns (required)")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", defaultInsertBatch, "samples per insert")
	cmd.MarkFlagRequired("csv")
	return cmd
}

func runIngest(cmd *cobra.Command, a *app, f *ingestFlags) error {
	ctx := cmd.Context()

	cs, err := ingestion.OpenCSV(f.csvPath)
	if err != nil {
		return err
	}
	defer cs.Close()

	ticks, err := ingestion.Drain(ctx, cs)
	if err != nil {
		return fmt.Errorf("read %s: %w", f.csvPath, err)
	}

	store, err := openPriceStore(ctx, a.cfg.ClickhouseDSN, false, a.log)
	if err != nil {
		return err
	}
	defer store.close()
	if store.database == "memory" {
		a.log.Warn("no clickhouse dsn, samples are not persisted")
	}

	stored, skipped, err := storeTicks(ctx, store, a.cfg.Pair, ticks, f.batchSize)
	a.log.Info("ingest finished",
		zap.String("file", f.csvPath),
		zap.String("pair", a.cfg.Pair),
		zap.Int("rows", len(ticks)+cs.Skipped()),
		zap.Int("csv_skipped", cs.Skipped()),
		zap.Int("invalid", skipped),
		zap.Int("stored", stored))
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "stored %d samples for %s in %s\n", stored, a.cfg.Pair, store.database)
	return nil
}

// storeTicks converts ticks to samples and inserts them in batches, oldest
// first. It returns the number stored and the number of ticks without a
// valid time or price.
func storeTicks(ctx context.Context, store storage.PriceSampleStore, pair string, ticks []domain.Tick, batchSize int) (int, int, error) {
	if batchSize <= 0 {
		batchSize = defaultInsertBatch
	}

	points, skipped := ingestion.ToPricePoints(pair, ticks)
	ingestion.SortPricePoints(points)

	stored := 0
	for start := 0; start < len(points); start += batchSize {
		end := min(start+batchSize, len(points))
		if err := store.InsertBulk(ctx, points[start:end]); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				return stored, skipped, fmt.Errorf("samples %d..%d already stored for %s: %w", start, end-1, pair, err)
			}
			return stored, skipped, fmt.Errorf("insert samples: %w", err)
		}
		stored += end - start
	}
	return stored, skipped, nil
}
