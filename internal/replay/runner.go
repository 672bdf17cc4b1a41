// Package replay drives a price source through the entry/exit engine and
// the backtest ledger, one tick at a time, on a single goroutine.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"trailing-lab/internal/domain"
	"trailing-lab/internal/idhash"
	"trailing-lab/internal/ledger"
	"trailing-lab/internal/observability"
	"trailing-lab/internal/status"
	"trailing-lab/internal/strategy"
	"trailing-lab/internal/window"
)

// PriceSource yields ticks in order. Next returns io.EOF when the stream
// ends; any other error is a hard failure.
type PriceSource interface {
	Next(ctx context.Context) (domain.Tick, error)
}

// Drop reasons reported to metrics.
const (
	DropInvalidPrice = "invalid_price"
	DropOutOfOrder   = "out_of_order"
)

// Options configures a Runner.
type Options struct {
	Run         domain.RunConfig
	Pair        string
	Ordering    OrderingPolicy
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	Broadcaster *status.Broadcaster
}

// Result is the outcome of a replay, complete or partial.
type Result struct {
	Results        domain.Results         `json:"results"`
	Engine         strategy.Status        `json:"engine"`
	Ledger         ledger.Status          `json:"ledger"`
	TicksProcessed int                    `json:"ticks_processed"`
	TicksDropped   int                    `json:"ticks_dropped"`
	Decisions      []domain.DecisionEvent `json:"decisions"`
	Digest         string                 `json:"digest"`
	FromMs         int64                  `json:"from_ms"`
	ToMs           int64                  `json:"to_ms"`
}

// Runner owns an engine, a ledger and the caller-side position.
// Not safe for concurrent use.
type Runner struct {
	engine strategy.Engine
	ledger *ledger.Ledger
	opts   Options
	log    *zap.Logger

	position   domain.Position
	roundTrips int
	guard      orderGuard

	seq       int
	processed int
	dropped   int
	decisions []domain.DecisionEvent
	fromMs    int64
	toMs      int64
	hasRange  bool
}

// NewRunner creates a runner starting flat.
func NewRunner(engine strategy.Engine, l *ledger.Ledger, opts Options) *Runner {
	if opts.Ordering == "" {
		opts.Ordering = OrderingDrop
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		engine:    engine,
		ledger:    l,
		opts:      opts,
		log:       log,
		position:  domain.PositionNone,
		decisions: make([]domain.DecisionEvent, 0),
	}
}

// Backtest builds a fresh engine and ledger and replays src through them.
func Backtest(ctx context.Context, params domain.StrategyParams, ledgerCfg domain.LedgerConfig, opts Options, src PriceSource) (*Result, error) {
	r := NewRunner(strategy.NewEntryExitEngine(params), ledger.NewFromConfig(ledgerCfg), opts)
	return r.Run(ctx, src)
}

// Position returns the caller-side position.
func (r *Runner) Position() domain.Position {
	return r.position
}

// Run consumes src until io.EOF, a source failure, an ordering violation
// under OrderingStrict, or context cancellation. The result is always
// returned, partial when err is non-nil.
func (r *Runner) Run(ctx context.Context, src PriceSource) (*Result, error) {
	start := time.Now()
	err := r.consume(ctx, src)

	runStatus := "ok"
	if err != nil {
		runStatus = "error"
	}
	r.opts.Metrics.RecordReplayRun(runStatus, time.Since(start).Seconds())

	res := r.Result()
	r.log.Info("replay finished",
		zap.String("status", runStatus),
		zap.Int("ticks_processed", res.TicksProcessed),
		zap.Int("ticks_dropped", res.TicksDropped),
		zap.Int("trades", len(res.Results.Trades)),
		zap.Float64("end_quote", res.Results.EndQuote),
		zap.String("digest", res.Digest),
	)
	return res, err
}

func (r *Runner) consume(ctx context.Context, src PriceSource) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		tick, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return ctxErr
			}
			r.opts.Metrics.RecordSourceError(fmt.Sprintf("%T", src))
			return fmt.Errorf("%w: %w", ErrSourceFailed, err)
		}

		if _, err := r.Step(tick); err != nil {
			return err
		}
	}
}

// Step applies one tick: mark the ledger, ask the engine, execute.
// Ticks with an invalid price, or an out-of-order time under OrderingDrop,
// are skipped and counted as dropped. Ticks whose time cannot be parsed
// still reach the engine, which keeps them out of its average.
func (r *Runner) Step(tick domain.Tick) (domain.Signal, error) {
	seq := r.seq
	r.seq++

	if !window.ValidPrice(tick.Price) {
		r.drop(seq, tick, DropInvalidPrice)
		return domain.SignalHold, nil
	}

	ms, ok := window.Normalize(tick.Time)
	if ok && !r.guard.accept(ms) {
		if r.opts.Ordering == OrderingStrict {
			return domain.SignalHold, fmt.Errorf("%w: tick %d at %d ms precedes %d ms",
				ErrInvalidOrdering, seq, ms, r.guard.latest)
		}
		r.drop(seq, tick, DropOutOfOrder)
		return domain.SignalHold, nil
	}
	if ok {
		if !r.hasRange {
			r.fromMs = ms
			r.hasRange = true
		}
		r.toMs = ms
	} else {
		r.log.Debug("unparsable tick time", zap.Int("seq", seq), zap.Stringer("time", tick.Time))
	}

	r.ledger.Tick(tick.Time, tick.Price)
	sig := r.engine.NextSignal(r.position, tick.Time, tick.Price)
	executed := r.execute(sig, tick, ms)

	r.processed++
	if sig != domain.SignalHold {
		r.decisions = append(r.decisions, domain.DecisionEvent{
			Seq:         seq,
			Time:        tick.Time,
			TimestampMs: ms,
			Price:       tick.Price,
			Signal:      sig,
			Executed:    executed,
		})
	}

	r.observe(seq, tick, ms, sig, executed)
	return sig, nil
}

func (r *Runner) execute(sig domain.Signal, tick domain.Tick, ms int64) bool {
	switch {
	case sig == domain.SignalBuy && r.position == domain.PositionNone:
		if !r.entryAllowed() {
			r.log.Debug("re-entry disabled, ignoring BUY", zap.Int64("ts", ms), zap.Float64("price", tick.Price))
			return false
		}
		invest := r.opts.Run.InvestQuote
		if r.ledger.QuoteBalance() < invest {
			r.log.Debug("insufficient quote, ignoring BUY",
				zap.Float64("quote", r.ledger.QuoteBalance()),
				zap.Float64("invest", invest))
			return false
		}
		if !r.ledger.BuyWithQuote(tick.Time, tick.Price, invest) {
			return false
		}
		r.engine.NotifyExecuted(domain.PositionLong, tick.Price)
		r.position = domain.PositionLong
		r.opts.Metrics.RecordTrade(domain.SideBuy)
		r.log.Info("BUY executed",
			zap.String("pair", r.opts.Pair),
			zap.Int64("ts", ms),
			zap.Float64("price", tick.Price),
			zap.Float64("quote", invest))
		return true

	case sig == domain.SignalSell && r.position == domain.PositionLong:
		if !r.ledger.SellAll(tick.Time, tick.Price) {
			return false
		}
		r.engine.NotifyExecuted(domain.PositionNone, tick.Price)
		r.position = domain.PositionNone
		r.roundTrips++
		r.opts.Metrics.RecordTrade(domain.SideSell)
		r.log.Info("SELL executed",
			zap.String("pair", r.opts.Pair),
			zap.Int64("ts", ms),
			zap.Float64("price", tick.Price),
			zap.Float64("quote_balance", r.ledger.QuoteBalance()))
		return true
	}
	return false
}

func (r *Runner) entryAllowed() bool {
	return r.opts.Run.Reenter || r.roundTrips == 0
}

func (r *Runner) drop(seq int, tick domain.Tick, reason string) {
	r.dropped++
	r.opts.Metrics.RecordDropped(reason)
	r.log.Warn("tick dropped",
		zap.Int("seq", seq),
		zap.String("reason", reason),
		zap.Stringer("time", tick.Time),
		zap.Float64("price", tick.Price))
}

func (r *Runner) observe(seq int, tick domain.Tick, ms int64, sig domain.Signal, executed bool) {
	m := r.opts.Metrics
	b := r.opts.Broadcaster
	if m == nil && (b == nil || b.Len() == 0) {
		return
	}

	engineStatus := r.engine.Status()
	ledgerStatus := r.ledger.Status()

	m.RecordTick()
	m.RecordSignal(sig)
	m.UpdateMovingAverage(engineStatus.MA)
	m.UpdateAccount(ledgerStatus.LatestPrice, ledgerStatus.Equity, ledgerStatus.MaxDrawdownPct, r.position)

	b.Notify(status.Snapshot{
		Seq:         seq,
		Pair:        r.opts.Pair,
		Tick:        tick,
		TimestampMs: ms,
		Signal:      sig,
		Executed:    executed,
		Engine:      engineStatus,
		Ledger:      ledgerStatus,
	})
}

// Result returns the current outcome. Safe to call at any point.
func (r *Runner) Result() *Result {
	decisions := make([]domain.DecisionEvent, len(r.decisions))
	copy(decisions, r.decisions)

	return &Result{
		Results:        r.ledger.Results(),
		Engine:         r.engine.Status(),
		Ledger:         r.ledger.Status(),
		TicksProcessed: r.processed,
		TicksDropped:   r.dropped,
		Decisions:      decisions,
		Digest:         idhash.DecisionDigest(r.engine.ID(), decisions),
		FromMs:         r.fromMs,
		ToMs:           r.toMs,
	}
}
