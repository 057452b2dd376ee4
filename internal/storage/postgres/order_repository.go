package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tardigrade97/dianping/internal/domain"
)

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

// CountByUserAndVoucher reports how many orders a user already holds for a
// voucher. The worker uses it as the durable duplicate check.
func (r *OrderRepository) CountByUserAndVoucher(ctx context.Context, userID, voucherID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM voucher_orders WHERE user_id = $1 AND voucher_id = $2`

	var count int
	if err := r.queryRow(ctx, query, userID, voucherID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return count, nil
}

// Create persists an order. The unique index on (user_id, voucher_id) turns a
// lost duplicate race into ErrDuplicateOrder.
func (r *OrderRepository) Create(ctx context.Context, order domain.VoucherOrder) error {
	const stmt = `
INSERT INTO voucher_orders (id, user_id, voucher_id, created_at)
VALUES ($1, $2, $3, $4)`

	_, err := r.exec(ctx, stmt, order.ID, order.UserID, order.VoucherID, order.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateOrder
		}
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// GetByID returns an order or (nil, nil) when absent.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*domain.VoucherOrder, error) {
	const query = `SELECT id, user_id, voucher_id, created_at FROM voucher_orders WHERE id = $1`

	var o domain.VoucherOrder
	err := r.queryRow(ctx, query, id).Scan(&o.ID, &o.UserID, &o.VoucherID, &o.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return &o, nil
}

func (r *OrderRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *OrderRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
