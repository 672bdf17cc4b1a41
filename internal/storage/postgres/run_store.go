package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"trailing-lab/internal/domain"
	"trailing-lab/internal/idhash"
	"trailing-lab/internal/storage"
)

// RunStore implements storage.RunStore using PostgreSQL.
type RunStore struct {
	pool *Pool
}

// NewRunStore creates a new RunStore.
func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunStore = (*RunStore)(nil)

const runColumns = `
	run_id, pair, source,
	window_days, buy_below_pct, trailing_buy_pct, trailing_stop_pct, activation_threshold_pct,
	initial_quote, fee_pct, invest_quote, reenter,
	from_ms, to_ms, ticks_processed,
	start_quote, end_quote, base_end_qty, realized_pnl, max_drawdown_pct, trade_count,
	digest, created_at`

var tradeColumns = []string{
	"trade_id", "run_id", "trade_index", "side", "raw_time",
	"timestamp_ms", "price", "base_qty", "quote_qty",
}

// Insert adds a run and its trades in one transaction.
// Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Insert(ctx context.Context, run *domain.BacktestRun) error {
	if run == nil || run.RunID == "" || run.Pair == "" {
		return storage.ErrInvalidInput
	}

	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	r := run.Results
	rows, err := tradeRows(run.RunID, r.Trades)
	if err != nil {
		return err
	}

	query := `INSERT INTO backtest_runs (` + runColumns + `
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7, $8,
			$9, $10, $11, $12,
			$13, $14, $15,
			$16, $17, $18, $19, $20, $21,
			$22, $23
		)`

	return s.pool.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, query,
			run.RunID, run.Pair, run.Source,
			run.Params.WindowDays, run.Params.BuyBelowPct, run.Params.TrailingBuyPct,
			run.Params.TrailingStopPct, run.Params.ActivationThresholdPct,
			run.Ledger.InitialQuote, run.Ledger.FeePct, run.Run.InvestQuote, run.Run.Reenter,
			run.FromMs, run.ToMs, run.TicksProcessed,
			r.StartQuote, r.EndQuote, r.BaseEndQty, r.RealizedPnL, r.MaxDrawdownPct, len(r.Trades),
			run.Digest, createdAt,
		)
		if err != nil {
			return translate("insert backtest run", err)
		}
		if len(rows) == 0 {
			return nil
		}
		_, err = tx.CopyFrom(ctx, pgx.Identifier{"backtest_trades"}, tradeColumns, pgx.CopyFromRows(rows))
		return translate("copy backtest trades", err)
	})
}

// tradeRows lays trades out in tradeColumns order. Trade time keeps its
// original JSON form so unparsable inputs survive the round trip.
func tradeRows(runID string, trades []domain.Trade) ([][]any, error) {
	rows := make([][]any, 0, len(trades))
	for i, t := range trades {
		rawTime, err := json.Marshal(t.Time)
		if err != nil {
			return nil, fmt.Errorf("encode trade %d time: %w", i, err)
		}
		rows = append(rows, []any{
			idhash.TradeID(runID, i, t.Side, t.TimestampMs),
			runID, i, string(t.Side), string(rawTime),
			t.TimestampMs, t.Price, t.BaseQty, t.QuoteQty,
		})
	}
	return rows, nil
}

// GetByID retrieves a run with its trades. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(ctx context.Context, runID string) (*domain.BacktestRun, error) {
	query := `SELECT ` + runColumns + ` FROM backtest_runs WHERE run_id = $1`

	run, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		return nil, translate("get backtest run by id", err)
	}

	trades, err := s.getTrades(ctx, runID)
	if err != nil {
		return nil, err
	}
	run.Results.Trades = trades
	return run, nil
}

// List retrieves runs for a pair (all pairs when empty), newest first.
func (s *RunStore) List(ctx context.Context, pair string, limit int) ([]*domain.BacktestRun, error) {
	query := `SELECT ` + runColumns + `
		FROM backtest_runs
		WHERE ($1 = '' OR pair = $1)
		ORDER BY created_at DESC, run_id ASC`
	args := []any{pair}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list backtest runs: %w", err)
	}
	defer rows.Close()

	var result []*domain.BacktestRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backtest run: %w", err)
		}
		result = append(result, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backtest runs: %w", err)
	}
	return result, nil
}

func (s *RunStore) getTrades(ctx context.Context, runID string) ([]domain.Trade, error) {
	query := `
		SELECT side, raw_time, timestamp_ms, price, base_qty, quote_qty
		FROM backtest_trades
		WHERE run_id = $1
		ORDER BY trade_index ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get backtest trades: %w", err)
	}
	defer rows.Close()

	trades := make([]domain.Trade, 0)
	for rows.Next() {
		var (
			t       domain.Trade
			side    string
			rawTime string
		)
		if err := rows.Scan(&side, &rawTime, &t.TimestampMs, &t.Price, &t.BaseQty, &t.QuoteQty); err != nil {
			return nil, fmt.Errorf("scan backtest trade: %w", err)
		}
		if err := json.Unmarshal([]byte(rawTime), &t.Time); err != nil {
			return nil, fmt.Errorf("decode backtest trade time: %w", err)
		}
		t.Side = domain.Side(side)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backtest trades: %w", err)
	}
	return trades, nil
}

// scanRun scans a backtest_runs row. Trades are left empty.
func scanRun(row pgx.Row) (*domain.BacktestRun, error) {
	var (
		run        domain.BacktestRun
		tradeCount int
	)
	err := row.Scan(
		&run.RunID, &run.Pair, &run.Source,
		&run.Params.WindowDays, &run.Params.BuyBelowPct, &run.Params.TrailingBuyPct,
		&run.Params.TrailingStopPct, &run.Params.ActivationThresholdPct,
		&run.Ledger.InitialQuote, &run.Ledger.FeePct, &run.Run.InvestQuote, &run.Run.Reenter,
		&run.FromMs, &run.ToMs, &run.TicksProcessed,
		&run.Results.StartQuote, &run.Results.EndQuote, &run.Results.BaseEndQty,
		&run.Results.RealizedPnL, &run.Results.MaxDrawdownPct, &tradeCount,
		&run.Digest, &run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	run.TradeCount = tradeCount
	run.CreatedAt = run.CreatedAt.UTC()
	return &run, nil
}
