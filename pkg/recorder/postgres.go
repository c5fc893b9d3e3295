package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"otcrouter/pkg/routing"
)

// Postgres is the durable Recorder implementation.
type Postgres struct {
	pool *pgxpool.Pool
}

// Compile-time interface check.
var _ Recorder = (*Postgres)(nil)

// NewPostgres connects to Postgres, verifies the connection and ensures
// the schema exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS trade_records (
		id UUID PRIMARY KEY,
		route VARCHAR(8) NOT NULL,
		input_token VARCHAR(20) NOT NULL,
		output_token VARCHAR(20) NOT NULL,
		input_amount DOUBLE PRECISION NOT NULL,
		output_amount DOUBLE PRECISION NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		slippage_pct DOUBLE PRECISION NOT NULL,
		reference_slippage_pct DOUBLE PRECISION NOT NULL,
		cost_savings DOUBLE PRECISION NOT NULL DEFAULT 0,
		tx_signature TEXT NOT NULL,
		execution_delay_ms BIGINT NOT NULL DEFAULT 0,
		remaining_liquidity DOUBLE PRECISION NOT NULL DEFAULT 0,
		executed_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_trade_records_created_at ON trade_records(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_trade_records_route ON trade_records(route);
	`
	if _, err := p.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("init trade_records schema: %w", err)
	}
	return nil
}

func (p *Postgres) Record(ctx context.Context, t *TradeRecord) (string, error) {
	if t == nil || t.InputToken == "" || t.OutputToken == "" || t.InputAmount <= 0 {
		return "", ErrInvalidRecord
	}

	id := t.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO trade_records (
			id, route, input_token, output_token,
			input_amount, output_amount, price,
			slippage_pct, reference_slippage_pct, cost_savings,
			tx_signature, execution_delay_ms, remaining_liquidity,
			executed_at, created_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10,
			$11, $12, $13,
			$14, $15
		)
	`
	_, err := p.pool.Exec(ctx, query,
		id, string(t.Route), t.InputToken, t.OutputToken,
		t.InputAmount, t.OutputAmount, t.Price,
		t.SlippagePct, t.ReferenceSlippagePct, t.CostSavings,
		t.TxSignature, t.ExecutionDelay.Milliseconds(), t.RemainingLiquidity,
		t.ExecutedAt, createdAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert trade record: %w", err)
	}
	return id, nil
}

func (p *Postgres) Recent(ctx context.Context, limit int) ([]*TradeRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT
			id, route, input_token, output_token,
			input_amount, output_amount, price,
			slippage_pct, reference_slippage_pct, cost_savings,
			tx_signature, execution_delay_ms, remaining_liquidity,
			executed_at, created_at
		FROM trade_records
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := p.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent trades: %w", err)
	}
	defer rows.Close()

	var out []*TradeRecord
	for rows.Next() {
		t, err := scanTradeRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent trades: %w", err)
	}
	return out, nil
}

func (p *Postgres) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE route = 'DEX'),
			COUNT(*) FILTER (WHERE route = 'OTC'),
			COALESCE(SUM(input_amount), 0),
			COALESCE(SUM(input_amount) FILTER (WHERE route = 'DEX'), 0),
			COALESCE(SUM(input_amount) FILTER (WHERE route = 'OTC'), 0),
			COALESCE(SUM(cost_savings), 0),
			COALESCE(AVG(slippage_pct) FILTER (WHERE route = 'DEX'), 0),
			COALESCE(AVG(reference_slippage_pct), 0),
			COUNT(*) FILTER (WHERE created_at::date = CURRENT_DATE),
			COALESCE(SUM(input_amount) FILTER (WHERE created_at::date = CURRENT_DATE), 0),
			COALESCE(SUM(cost_savings) FILTER (WHERE created_at::date = CURRENT_DATE), 0)
		FROM trade_records
	`
	err := p.pool.QueryRow(ctx, query).Scan(
		&stats.TotalTrades, &stats.DexTrades, &stats.OtcTrades,
		&stats.TotalVolume, &stats.DexVolume, &stats.OtcVolume,
		&stats.TotalCostSavings,
		&stats.AvgDexSlippagePct, &stats.AvgReferenceSlippagePct,
		&stats.TodayTrades, &stats.TodayVolume, &stats.TodaySavings,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate trade stats: %w", err)
	}

	if stats.TotalTrades > 0 {
		stats.OtcSharePct = float64(stats.OtcTrades) / float64(stats.TotalTrades) * 100
	}

	dailyQuery := `
		SELECT created_at::date, COALESCE(SUM(cost_savings), 0)
		FROM trade_records
		WHERE created_at >= now() - interval '30 days'
		GROUP BY created_at::date
		ORDER BY created_at::date
	`
	rows, err := p.pool.Query(ctx, dailyQuery)
	if err != nil {
		return nil, fmt.Errorf("query daily savings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var day time.Time
		var savings float64
		if err := rows.Scan(&day, &savings); err != nil {
			return nil, fmt.Errorf("scan daily savings: %w", err)
		}
		stats.DailySavings = append(stats.DailySavings, DailySavings{
			Day:     day.Format("2006-01-02"),
			Savings: savings,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily savings: %w", err)
	}

	return stats, nil
}

func scanTradeRecord(row pgx.Row) (*TradeRecord, error) {
	var (
		t       TradeRecord
		route   string
		delayMs int64
	)
	err := row.Scan(
		&t.ID, &route, &t.InputToken, &t.OutputToken,
		&t.InputAmount, &t.OutputAmount, &t.Price,
		&t.SlippagePct, &t.ReferenceSlippagePct, &t.CostSavings,
		&t.TxSignature, &delayMs, &t.RemainingLiquidity,
		&t.ExecutedAt, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan trade record: %w", err)
	}
	t.Route = routing.Route(route)
	t.ExecutionDelay = time.Duration(delayMs) * time.Millisecond
	return &t, nil
}
