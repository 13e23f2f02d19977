package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"v3backtester/internal/backtest"
	"v3backtester/internal/report"
)

// Store persists backtest runs and their value series to Postgres. It is
// optional; runs without a DSN never touch it.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InsertRun stores the summary and metrics of one run and returns its id.
func (s *Store) InsertRun(ctx context.Context, dataPath string, summary backtest.Summary, metrics report.Metrics) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO backtest_runs (
			strategy, data_path, events, initial_value, final_value,
			total_return, annualized_return, volatility, sharpe, max_drawdown,
			rebalance_count, gas_spent_quote, fees_earned_quote, impermanent_loss,
			time_in_range_pct, dropped_actions, skipped_events, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,now())
		RETURNING id
	`,
		summary.Strategy,
		dataPath,
		summary.Events,
		summary.InitialValue,
		summary.FinalValue,
		summary.TotalReturn,
		metrics.AnnualizedReturn,
		metrics.Volatility,
		metrics.Sharpe,
		summary.MaxDrawdown,
		summary.RebalanceCount,
		summary.GasSpentQuote,
		summary.FeesEarnedQuote,
		summary.ImpermanentLoss,
		summary.TimeInRangePct,
		summary.DroppedActions,
		summary.SkippedEvents,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// InsertSeries bulk-inserts the value and price points of a run.
func (s *Store) InsertSeries(ctx context.Context, runID int64, values, prices []backtest.Point) error {
	rows := make([][]any, 0, len(values)+len(prices))
	for _, p := range values {
		rows = append(rows, []any{runID, "value", time.Unix(p.Timestamp, 0).UTC(), p.Value})
	}
	for _, p := range prices {
		rows = append(rows, []any{runID, "price", time.Unix(p.Timestamp, 0).UTC(), p.Value})
	}
	if len(rows) == 0 {
		return nil
	}

	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"backtest_series"},
		[]string{"run_id", "series", "ts", "value"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy series: %w", err)
	}
	return nil
}

// InsertActions stores the executed action log of a run.
func (s *Store) InsertActions(ctx context.Context, runID int64, actions []backtest.ActionRecord) error {
	if len(actions) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, a := range actions {
		batch.Queue(`
			INSERT INTO backtest_actions (
				run_id, ts, kind, tick_lower, tick_upper, cost_quote, dropped, reason
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`,
			runID,
			time.Unix(a.Timestamp, 0).UTC(),
			a.Kind,
			a.TickLower,
			a.TickUpper,
			a.CostQuote,
			a.Dropped,
			a.Reason,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range actions {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert action: %w", err)
		}
	}
	return nil
}
