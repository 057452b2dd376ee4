package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tardigrade97/dianping/internal/domain"
)

type VoucherRepository struct {
	pool *pgxpool.Pool
}

func NewVoucherRepository(pool *pgxpool.Pool) *VoucherRepository {
	return &VoucherRepository{pool: pool}
}

func (r *VoucherRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

// GetSeckillVoucher returns a flash-sale voucher with its durable stock, or
// (nil, nil) when the id does not exist.
func (r *VoucherRepository) GetSeckillVoucher(ctx context.Context, id int64) (*domain.SeckillVoucher, error) {
	const query = `
SELECT v.id, v.shop_id, v.title, v.pay_value, v.actual_value, v.created_at,
       s.stock, s.begin_at, s.end_at
FROM vouchers v
JOIN seckill_vouchers s ON s.voucher_id = v.id
WHERE v.id = $1`

	var v domain.SeckillVoucher
	err := r.queryRow(ctx, query, id).Scan(
		&v.ID, &v.ShopID, &v.Title, &v.PayValue, &v.Actual, &v.CreatedAt,
		&v.Stock, &v.BeginAt, &v.EndAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get seckill voucher: %w", err)
	}
	return &v, nil
}

// CreateSeckillVoucher inserts the voucher and its flash-sale row as one unit.
func (r *VoucherRepository) CreateSeckillVoucher(ctx context.Context, v domain.SeckillVoucher) error {
	return r.WithTx(ctx, func(txCtx context.Context) error {
		const insertVoucher = `
INSERT INTO vouchers (id, shop_id, title, pay_value, actual_value, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
		if _, err := r.exec(txCtx, insertVoucher, v.ID, v.ShopID, v.Title, v.PayValue, v.Actual, v.CreatedAt); err != nil {
			return fmt.Errorf("create voucher: %w", err)
		}

		const insertSeckill = `
INSERT INTO seckill_vouchers (voucher_id, stock, begin_at, end_at)
VALUES ($1, $2, $3, $4)`
		if _, err := r.exec(txCtx, insertSeckill, v.ID, v.Stock, v.BeginAt, v.EndAt); err != nil {
			return fmt.Errorf("create seckill voucher: %w", err)
		}
		return nil
	})
}

// UpdateVoucher rewrites the mutable voucher fields.
func (r *VoucherRepository) UpdateVoucher(ctx context.Context, v domain.Voucher) error {
	const stmt = `
UPDATE vouchers SET title = $2, pay_value = $3, actual_value = $4 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, v.ID, v.Title, v.PayValue, v.Actual)
	if err != nil {
		return fmt.Errorf("update voucher: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVoucherNotFound
	}
	return nil
}

// DecrementStock is the optimistic-concurrency guard against oversell: the
// decrement only lands while a unit of stock remains, independent of any
// cache-tier bookkeeping.
func (r *VoucherRepository) DecrementStock(ctx context.Context, voucherID int64) (bool, error) {
	const stmt = `
UPDATE seckill_vouchers SET stock = stock - 1 WHERE voucher_id = $1 AND stock > 0`

	tag, err := r.exec(ctx, stmt, voucherID)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *VoucherRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *VoucherRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
