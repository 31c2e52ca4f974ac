package database

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/irfndi/commodity-forecast/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DatabasePool defines the interface for database pool operations.
// This interface allows for both real pool and mock pool implementations.
type DatabasePool interface {
	// QueryRow executes a query that is expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	// Exec executes a query without returning any rows.
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	// Query executes a query that returns rows.
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

const (
	priceHistoryQuery = `
		SELECT observed_on, price::text
		FROM commodity_prices
		WHERE commodity = $1 AND market = $2 AND price > 0
		ORDER BY observed_on DESC
		LIMIT $3
	`
	pricesTable      = "commodity_prices"
	listMarketsQuery = `
		SELECT DISTINCT market
		FROM commodity_prices
		WHERE commodity = $1
		ORDER BY market
	`
)

// OperationLogger receives one entry per completed query. It is satisfied by
// logging.StandardLogger.
type OperationLogger interface {
	LogDatabaseOperation(operation string, table string, duration int64, rowsAffected int64)
}

// PriceRepository reads daily commodity prices written by the ingestion pipeline.
type PriceRepository struct {
	pool   DatabasePool
	logger OperationLogger
}

// RepositoryOption configures a PriceRepository.
type RepositoryOption func(*PriceRepository)

// WithOperationLogger reports query timings and row counts to logger.
func WithOperationLogger(logger OperationLogger) RepositoryOption {
	return func(r *PriceRepository) {
		r.logger = logger
	}
}

// NewPriceRepository creates a new price repository.
func NewPriceRepository(pool DatabasePool, opts ...RepositoryOption) *PriceRepository {
	r := &PriceRepository{pool: pool}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *PriceRepository) logOperation(operation string, start time.Time, rows int) {
	if r.logger != nil {
		r.logger.LogDatabaseOperation(operation, pricesTable, time.Since(start).Milliseconds(), int64(rows))
	}
}

// GetPriceHistory returns the latest limit observations of a series in
// ascending date order. An empty history yields models.ErrCommodityNotFound.
func (r *PriceRepository) GetPriceHistory(ctx context.Context, commodity, market string, limit int) ([]models.DataPoint, error) {
	commodity = strings.ToLower(strings.TrimSpace(commodity))
	market = strings.ToLower(strings.TrimSpace(market))

	start := time.Now()
	rows, err := r.pool.Query(ctx, priceHistoryQuery, commodity, market, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	points := make([]models.DataPoint, 0, limit)
	for rows.Next() {
		var (
			observedOn time.Time
			raw        string
		)
		if err := rows.Scan(&observedOn, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan price row: %w", err)
		}
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid price %q on %s: %w", raw, observedOn.Format(time.DateOnly), err)
		}
		points = append(points, models.DataPoint{Date: observedOn, Value: price.InexactFloat64()})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate price history: %w", err)
	}
	r.logOperation("price_history", start, len(points))

	if len(points) == 0 {
		return nil, fmt.Errorf("%s at %s: %w", commodity, market, models.ErrCommodityNotFound)
	}

	slices.Reverse(points)
	return points, nil
}

// ListMarkets returns the markets that have price history for a commodity.
func (r *PriceRepository) ListMarkets(ctx context.Context, commodity string) ([]string, error) {
	commodity = strings.ToLower(strings.TrimSpace(commodity))

	start := time.Now()
	rows, err := r.pool.Query(ctx, listMarketsQuery, commodity)
	if err != nil {
		return nil, fmt.Errorf("failed to list markets: %w", err)
	}
	defer rows.Close()

	var markets []string
	for rows.Next() {
		var market string
		if err := rows.Scan(&market); err != nil {
			return nil, fmt.Errorf("failed to scan market: %w", err)
		}
		markets = append(markets, market)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate markets: %w", err)
	}
	r.logOperation("list_markets", start, len(markets))
	if len(markets) == 0 {
		return nil, fmt.Errorf("%s: %w", commodity, models.ErrCommodityNotFound)
	}
	return markets, nil
}
