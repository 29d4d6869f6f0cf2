package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dexpipe/dexpipe/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
//
// Terminal statuses are enforced in SQL: every UPDATE carries a
// status-not-terminal guard, so a late writer can never move an order out of
// confirmed or failed.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// InsertPending inserts a new order row with status pending.
func (s *OrderStore) InsertPending(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (order_id, type, side, amount, status)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, query,
		o.ID, string(o.Type), string(o.Side), o.Amount, string(domain.OrderStatusPending),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert order %s: %w", o.ID, err)
	}
	return nil
}

// UpdateStatus moves a non-terminal order to the given non-terminal status.
func (s *OrderStore) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	const query = `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE order_id = $2 AND status NOT IN ('confirmed', 'failed')`

	return s.exec(ctx, id, query, string(status), id)
}

// MarkConfirmed moves an order to confirmed and records its settlement
// reference.
func (s *OrderStore) MarkConfirmed(ctx context.Context, id, txHash string) error {
	const query = `
		UPDATE orders SET status = 'confirmed', tx_hash = $1, updated_at = NOW()
		WHERE order_id = $2 AND status NOT IN ('confirmed', 'failed')`

	return s.exec(ctx, id, query, txHash, id)
}

// MarkFailed moves an order to failed and records the terminal error.
func (s *OrderStore) MarkFailed(ctx context.Context, id, errMsg string) error {
	const query = `
		UPDATE orders SET status = 'failed', last_error = $1, updated_at = NOW()
		WHERE order_id = $2 AND status NOT IN ('confirmed', 'failed')`

	return s.exec(ctx, id, query, errMsg, id)
}

func (s *OrderStore) exec(ctx context.Context, id, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: update order %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		// Either the row does not exist or it is already terminal;
		// distinguish the two for callers.
		var status string
		err := s.pool.QueryRow(ctx,
			`SELECT status FROM orders WHERE order_id = $1`, id,
		).Scan(&status)
		if err == pgx.ErrNoRows {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("postgres: check order %s: %w", id, err)
		}
		return domain.ErrTerminalState
	}
	return nil
}

const orderSelectCols = `order_id, type, side, amount, status, tx_hash, last_error, created_at, updated_at`

func scanOrderFromRow(scanner interface{ Scan(dest ...any) error }) (domain.Order, error) {
	var o domain.Order
	var typ, side, status string
	var txHash, lastError *string

	err := scanner.Scan(
		&o.ID, &typ, &side, &o.Amount, &status,
		&txHash, &lastError, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.Type = domain.OrderType(typ)
	o.Side = domain.OrderSide(side)
	o.Status = domain.OrderStatus(status)
	if txHash != nil {
		o.TxHash = *txHash
	}
	if lastError != nil {
		o.LastError = *lastError
	}
	return o, nil
}

// GetByID retrieves a single order by ID.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE order_id = $1`, id)

	o, err := scanOrderFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// ListRecent returns orders newest-first with pagination.
func (s *OrderStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 ORDER BY created_at DESC
		 LIMIT $1 OFFSET $2`, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrderFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	return orders, nil
}

// Compile-time interface check.
var _ domain.OrderStore = (*OrderStore)(nil)
