package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Tardigrade97/dianping/internal/cache"
	"github.com/Tardigrade97/dianping/internal/clock"
	"github.com/Tardigrade97/dianping/internal/domain"
	"github.com/Tardigrade97/dianping/internal/idgen"
)

const (
	// voucherCachePrefix keys pass-through entries for general voucher reads.
	voucherCachePrefix = "cache:voucher:"
	// seckillCachePrefix keys logical-expiry envelopes holding sale metadata.
	// These are pre-warmed at publish time and never carry a store TTL.
	seckillCachePrefix = "cache:seckill:"

	// stockKeyPrefix and orderSetKeyPrefix are the cache-tier admission state:
	// an integer stock counter and the set of already-admitted user ids.
	stockKeyPrefix    = "seckill:stock:"
	orderSetKeyPrefix = "seckill:order:"
)

const (
	defaultVoucherTTL = 30 * time.Minute
	defaultLogicalTTL = 20 * time.Minute
)

type VoucherStore interface {
	GetSeckillVoucher(ctx context.Context, id int64) (*domain.SeckillVoucher, error)
	CreateSeckillVoucher(ctx context.Context, v domain.SeckillVoucher) error
	UpdateVoucher(ctx context.Context, v domain.Voucher) error
}

type VoucherService struct {
	store      VoucherStore
	cache      *cache.Client
	rdb        *redis.Client
	ids        *idgen.Generator
	clock      clock.Clock
	cacheTTL   time.Duration
	logicalTTL time.Duration
}

type VoucherServiceOption func(*VoucherService)

// WithCacheTTL overrides the store-level TTL for pass-through entries.
func WithCacheTTL(d time.Duration) VoucherServiceOption {
	return func(s *VoucherService) {
		if d > 0 {
			s.cacheTTL = d
		}
	}
}

// WithLogicalTTL overrides the logical expiry for pre-warmed sale metadata.
func WithLogicalTTL(d time.Duration) VoucherServiceOption {
	return func(s *VoucherService) {
		if d > 0 {
			s.logicalTTL = d
		}
	}
}

func NewVoucherService(store VoucherStore, c *cache.Client, rdb *redis.Client, ids *idgen.Generator, clk clock.Clock, opts ...VoucherServiceOption) *VoucherService {
	svc := &VoucherService{
		store:      store,
		cache:      c,
		rdb:        rdb,
		ids:        ids,
		clock:      clk,
		cacheTTL:   defaultVoucherTTL,
		logicalTTL: defaultLogicalTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// GetVoucher is the penetration-safe read used by the public voucher endpoint.
func (s *VoucherService) GetVoucher(ctx context.Context, id int64) (*domain.SeckillVoucher, error) {
	return cache.QueryWithPassThrough(ctx, s.cache, voucherCachePrefix, strconv.FormatInt(id, 10), s.cacheTTL,
		func(ctx context.Context, _ string) (*domain.SeckillVoucher, error) {
			return s.store.GetSeckillVoucher(ctx, id)
		})
}

// SaleInfo is the hot-path read for purchase admission: sale window metadata
// from the pre-warmed logical-expiry cache. An unpublished voucher reads as
// not found here even if a row exists in the store.
func (s *VoucherService) SaleInfo(ctx context.Context, id int64) (*domain.SeckillVoucher, error) {
	return cache.QueryWithLogicExpire(ctx, s.cache, seckillCachePrefix, strconv.FormatInt(id, 10), s.logicalTTL,
		func(ctx context.Context, _ string) (*domain.SeckillVoucher, error) {
			return s.store.GetSeckillVoucher(ctx, id)
		})
}

type PublishVoucherInput struct {
	ShopID   int64
	Title    string
	PayValue int64
	Actual   int64
	Stock    int
	BeginAt  time.Time
	EndAt    time.Time
}

// PublishSeckillVoucher persists a new flash-sale voucher and opens it for
// admission: the durable row first, then the cache-tier stock counter, a clean
// admitted set, and the pre-warmed sale metadata.
func (s *VoucherService) PublishSeckillVoucher(ctx context.Context, in PublishVoucherInput) (domain.SeckillVoucher, error) {
	id, err := s.ids.Next(ctx, "voucher")
	if err != nil {
		return domain.SeckillVoucher{}, err
	}

	v := domain.SeckillVoucher{
		Voucher: domain.Voucher{
			ID:        id,
			ShopID:    in.ShopID,
			Title:     in.Title,
			PayValue:  in.PayValue,
			Actual:    in.Actual,
			CreatedAt: s.clock.Now(),
		},
		Stock:   in.Stock,
		BeginAt: in.BeginAt,
		EndAt:   in.EndAt,
	}

	if err := s.store.CreateSeckillVoucher(ctx, v); err != nil {
		return domain.SeckillVoucher{}, err
	}
	if err := s.seedAdmissionState(ctx, v); err != nil {
		return domain.SeckillVoucher{}, err
	}
	return v, nil
}

// ReseedAdmissionState re-publishes the cache-tier state from the durable row,
// for operators recovering a flushed or rebuilt Redis.
func (s *VoucherService) ReseedAdmissionState(ctx context.Context, voucherID int64) error {
	v, err := s.store.GetSeckillVoucher(ctx, voucherID)
	if err != nil {
		return err
	}
	if v == nil {
		return domain.ErrVoucherNotFound
	}
	return s.seedAdmissionState(ctx, *v)
}

func (s *VoucherService) seedAdmissionState(ctx context.Context, v domain.SeckillVoucher) error {
	idStr := strconv.FormatInt(v.ID, 10)
	if err := s.rdb.Set(ctx, stockKeyPrefix+idStr, v.Stock, 0).Err(); err != nil {
		return fmt.Errorf("seed stock: %w", err)
	}
	if err := s.rdb.Del(ctx, orderSetKeyPrefix+idStr).Err(); err != nil {
		return fmt.Errorf("reset admitted set: %w", err)
	}
	return s.cache.SetWithLogicExpire(ctx, seckillCachePrefix+idStr, v, s.logicalTTL)
}

type UpdateVoucherInput struct {
	ID       int64
	Title    string
	PayValue int64
	Actual   int64
}

// UpdateVoucher writes the store first and deletes the cache entry second, so
// the next read repopulates from fresh data.
func (s *VoucherService) UpdateVoucher(ctx context.Context, in UpdateVoucherInput) error {
	if err := s.store.UpdateVoucher(ctx, domain.Voucher{
		ID:       in.ID,
		Title:    in.Title,
		PayValue: in.PayValue,
		Actual:   in.Actual,
	}); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, voucherCachePrefix+strconv.FormatInt(in.ID, 10))
}
