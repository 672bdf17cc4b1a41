package verification

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"trailing-lab/internal/domain"
	"trailing-lab/internal/ingestion"
	"trailing-lab/internal/replay"
	"trailing-lab/internal/storage"
)

// ErrRunNotFound is returned when run ID doesn't exist.
var ErrRunNotFound = errors.New("run not found")

// RunVerifier implements Verifier by replaying stored price samples.
type RunVerifier struct {
	runStore   storage.RunStore
	priceStore storage.PriceSampleStore
	log        *zap.Logger
}

// RunVerifierOptions contains configuration for creating a RunVerifier.
type RunVerifierOptions struct {
	RunStore   storage.RunStore
	PriceStore storage.PriceSampleStore
	Logger     *zap.Logger
}

// NewRunVerifier creates a new RunVerifier.
func NewRunVerifier(opts RunVerifierOptions) *RunVerifier {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &RunVerifier{
		runStore:   opts.RunStore,
		priceStore: opts.PriceStore,
		log:        log,
	}
}

// Compile-time interface check.
var _ Verifier = (*RunVerifier)(nil)

// VerifyRun verifies a single run by replaying its stored samples.
func (v *RunVerifier) VerifyRun(ctx context.Context, runID string) (*VerificationResult, error) {
	// 1. Load stored run
	stored, err := v.runStore.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}

	// 2. Replay the same range with the same parameters
	replayed, err := v.replayRun(ctx, stored)
	if err != nil {
		return nil, err
	}

	// 3. Compare results
	divs := CompareRun(stored, replayed)
	v.log.Info("run verified",
		zap.String("run_id", runID),
		zap.Bool("match", len(divs) == 0),
		zap.Int("divergences", len(divs)))

	return &VerificationResult{
		RunID:            runID,
		Match:            len(divs) == 0,
		Divergences:      divs,
		StoredDigest:     stored.Digest,
		ReplayedDigest:   replayed.Digest,
		StoredEndQuote:   stored.Results.EndQuote,
		ReplayedEndQuote: replayed.Results.EndQuote,
	}, nil
}

// VerifyAll verifies the latest stored runs.
func (v *RunVerifier) VerifyAll(ctx context.Context, pair string, limit int) (*VerificationReport, error) {
	runs, err := v.runStore.List(ctx, pair, limit)
	if err != nil {
		return nil, err
	}

	report := &VerificationReport{
		TotalRuns: len(runs),
		Results:   make([]VerificationResult, 0, len(runs)),
	}

	for _, run := range runs {
		result, err := v.VerifyRun(ctx, run.RunID)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			// Record error as divergence
			report.Results = append(report.Results, VerificationResult{
				RunID:        run.RunID,
				Match:        false,
				StoredDigest: run.Digest,
				Divergences: []FieldDivergence{
					{Field: "Error", Expected: nil, Actual: err.Error()},
				},
			})
			report.DivergentRuns++
			continue
		}

		report.Results = append(report.Results, *result)
		if result.Match {
			report.MatchedRuns++
		} else {
			report.DivergentRuns++
		}
	}

	return report, nil
}

// replayRun re-executes the backtest over the stored samples of the run's range.
func (v *RunVerifier) replayRun(ctx context.Context, stored *domain.BacktestRun) (*replay.Result, error) {
	src := ingestion.NewStoreSource(v.priceStore, stored.Pair,
		ingestion.WithTimeRange(stored.FromMs, stored.ToMs))

	opts := replay.Options{
		Run:    stored.Run,
		Pair:   stored.Pair,
		Logger: v.log.Named("replay"),
	}
	res, err := replay.Backtest(ctx, stored.Params, stored.Ledger, opts, src)
	if err != nil {
		return nil, fmt.Errorf("replay run %s: %w", stored.RunID, err)
	}
	return res, nil
}

// VerifyDeterminism replays the same ticks twice with fresh state and
// compares the outcomes.
func VerifyDeterminism(ctx context.Context, ticks []domain.Tick, params domain.StrategyParams, ledgerCfg domain.LedgerConfig, opts replay.Options) ([]FieldDivergence, error) {
	first, err := replay.Backtest(ctx, params, ledgerCfg, opts, ingestion.NewSliceSource(ticks))
	if err != nil {
		return nil, err
	}
	second, err := replay.Backtest(ctx, params, ledgerCfg, opts, ingestion.NewSliceSource(ticks))
	if err != nil {
		return nil, err
	}
	return CompareReplays(first, second), nil
}
