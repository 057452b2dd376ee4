package app

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/Tardigrade97/dianping/internal/clock"
	"github.com/Tardigrade97/dianping/internal/domain"
	"github.com/Tardigrade97/dianping/internal/idgen"
	"github.com/Tardigrade97/dianping/internal/lock"
)

// admitScript is the whole fast path in one indivisible cache-tier operation:
// stock check, duplicate check, stock decrement and admitted-set insert cannot
// interleave with any other admission for the same voucher.
// Returns 0 = admitted, 1 = stock exhausted, 2 = duplicate order.
var admitScript = redis.NewScript(`
local stock = tonumber(redis.call('get', KEYS[1]))
if stock == nil or stock <= 0 then
  return 1
end
if redis.call('sismember', KEYS[2], ARGV[1]) == 1 then
  return 2
end
redis.call('decrby', KEYS[1], 1)
redis.call('sadd', KEYS[2], ARGV[1])
return 0
`)

// revokeScript undoes one admission when the order cannot even be queued. It
// mirrors admitScript so stock and set membership stay consistent.
var revokeScript = redis.NewScript(`
if redis.call('srem', KEYS[2], ARGV[1]) == 1 then
  redis.call('incrby', KEYS[1], 1)
end
return 0
`)

const (
	admitOK             = 0
	admitStockExhausted = 1
	admitDuplicate      = 2
)

const (
	defaultQueueSize      = 1024
	defaultUserLockLease  = 10 * time.Second
	defaultPersistTimeout = 5 * time.Second
)

// OrderStore is the durable side of the pipeline. WithTx must make the
// duplicate re-check, stock decrement and insert commit as one unit.
type OrderStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CountByUserAndVoucher(ctx context.Context, userID, voucherID int64) (int, error)
	Create(ctx context.Context, order domain.VoucherOrder) error
}

type StockStore interface {
	DecrementStock(ctx context.Context, voucherID int64) (bool, error)
}

// SaleInfoProvider yields flash-sale metadata for the admission pre-checks.
type SaleInfoProvider interface {
	SaleInfo(ctx context.Context, voucherID int64) (*domain.SeckillVoucher, error)
}

// Pipeline is the seckill order-admission pipeline. Purchase performs the
// race-free cache-tier admission and answers immediately; one background
// worker drains the queue and persists orders, so backing-store write
// concurrency for this flow is bounded to 1.
type Pipeline struct {
	rdb   *redis.Client
	ids   *idgen.Generator
	sales SaleInfoProvider
	ord   OrderStore
	stock StockStore
	clock clock.Clock
	log   zerolog.Logger

	queue          chan domain.PendingOrder
	quit           chan struct{}
	lockLease      time.Duration
	persistTimeout time.Duration

	closed    *atomic.Bool
	admitted  *atomic.Int64
	persisted *atomic.Int64
	dropped   *atomic.Int64

	wg sync.WaitGroup
}

type PipelineOption func(*Pipeline)

// WithQueueSize bounds how many admitted orders may wait for persistence.
func WithQueueSize(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.queue = make(chan domain.PendingOrder, n)
		}
	}
}

// WithUserLockLease overrides the per-user lock lease; it must outlast the
// slowest store transaction.
func WithUserLockLease(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if d > 0 {
			p.lockLease = d
		}
	}
}

// NewPipeline constructs the pipeline and starts its worker. Call Close on
// shutdown.
func NewPipeline(rdb *redis.Client, ids *idgen.Generator, sales SaleInfoProvider, orders OrderStore, stock StockStore, clk clock.Clock, log zerolog.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		rdb:            rdb,
		ids:            ids,
		sales:          sales,
		ord:            orders,
		stock:          stock,
		clock:          clk,
		log:            log,
		queue:          make(chan domain.PendingOrder, defaultQueueSize),
		quit:           make(chan struct{}),
		lockLease:      defaultUserLockLease,
		persistTimeout: defaultPersistTimeout,
		closed:         atomic.NewBool(false),
		admitted:       atomic.NewInt64(0),
		persisted:      atomic.NewInt64(0),
		dropped:        atomic.NewInt64(0),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(1)
	go p.worker()
	return p
}

// Purchase admits a flash-sale purchase and returns the order id before the
// order is durably persisted. Rejections come back as domain errors
// (ErrStockExhausted, ErrDuplicateOrder, ErrSaleNotStarted, ErrSaleEnded).
func (p *Pipeline) Purchase(ctx context.Context, voucherID, userID int64) (int64, error) {
	if p.closed.Load() {
		return 0, domain.ErrPipelineClosed
	}

	sale, err := p.sales.SaleInfo(ctx, voucherID)
	if err != nil {
		return 0, err
	}
	if sale == nil {
		return 0, domain.ErrVoucherNotFound
	}
	now := p.clock.Now()
	if now.Before(sale.BeginAt) {
		return 0, domain.ErrSaleNotStarted
	}
	if !now.Before(sale.EndAt) {
		return 0, domain.ErrSaleEnded
	}

	voucherKey := strconv.FormatInt(voucherID, 10)
	userArg := strconv.FormatInt(userID, 10)
	keys := []string{stockKeyPrefix + voucherKey, orderSetKeyPrefix + voucherKey}

	res, err := admitScript.Run(ctx, p.rdb, keys, userArg).Int()
	if err != nil {
		return 0, fmt.Errorf("admission script: %w", err)
	}
	switch res {
	case admitOK:
	case admitStockExhausted:
		return 0, domain.ErrStockExhausted
	case admitDuplicate:
		return 0, domain.ErrDuplicateOrder
	default:
		// The script has exactly three exits; anything else is a defect.
		return 0, fmt.Errorf("admission script returned %d", res)
	}

	orderID, err := p.ids.Next(ctx, "order")
	if err != nil {
		p.revokeAdmission(ctx, keys, userArg)
		return 0, err
	}

	select {
	case p.queue <- domain.PendingOrder{OrderID: orderID, UserID: userID, VoucherID: voucherID}:
	default:
		p.revokeAdmission(ctx, keys, userArg)
		return 0, domain.ErrQueueFull
	}

	p.admitted.Inc()
	return orderID, nil
}

func (p *Pipeline) revokeAdmission(ctx context.Context, keys []string, userArg string) {
	if err := revokeScript.Run(ctx, p.rdb, keys, userArg).Err(); err != nil && err != redis.Nil {
		p.log.Error().Err(err).Str("stock_key", keys[0]).Msg("admission revoke failed")
	}
}

// worker drains the queue until Close, then keeps draining whatever is left.
// One consumer, sequential writes.
func (p *Pipeline) worker() {
	defer p.wg.Done()
	for {
		select {
		case po := <-p.queue:
			p.persist(po)
		case <-p.quit:
			for {
				select {
				case po := <-p.queue:
					p.persist(po)
				default:
					return
				}
			}
		}
	}
}

// persist transfers one admitted order to the backing store. The caller was
// already answered, so failures here are logged and the order is dropped; the
// cache tier keeps the unit of stock reserved. That asymmetry is the price of
// the low-latency fast path.
func (p *Pipeline) persist(po domain.PendingOrder) {
	ctx, cancel := context.WithTimeout(context.Background(), p.persistTimeout)
	defer cancel()

	userKey := strconv.FormatInt(po.UserID, 10)
	mutex := lock.New(p.rdb, "order:"+userKey, userKey)
	ok, err := mutex.TryLock(ctx, p.lockLease)
	if err != nil {
		p.drop(po, err)
		return
	}
	if !ok {
		// Another process is persisting for this user right now.
		p.drop(po, fmt.Errorf("user %d is locked", po.UserID))
		return
	}
	defer func() {
		if uerr := mutex.Unlock(ctx); uerr != nil {
			p.log.Warn().Err(uerr).Int64("user_id", po.UserID).Msg("user lock release failed")
		}
	}()

	err = p.ord.WithTx(ctx, func(txCtx context.Context) error {
		// The admitted set is not the durable source of truth; re-check.
		count, cerr := p.ord.CountByUserAndVoucher(txCtx, po.UserID, po.VoucherID)
		if cerr != nil {
			return cerr
		}
		if count > 0 {
			return domain.ErrDuplicateOrder
		}

		decremented, derr := p.stock.DecrementStock(txCtx, po.VoucherID)
		if derr != nil {
			return derr
		}
		if !decremented {
			return domain.ErrStockExhausted
		}

		return p.ord.Create(txCtx, domain.VoucherOrder{
			ID:        po.OrderID,
			UserID:    po.UserID,
			VoucherID: po.VoucherID,
			CreatedAt: p.clock.Now(),
		})
	})
	if err != nil {
		p.drop(po, err)
		return
	}

	p.persisted.Inc()
	p.log.Info().
		Int64("order_id", po.OrderID).
		Int64("user_id", po.UserID).
		Int64("voucher_id", po.VoucherID).
		Msg("order persisted")
}

func (p *Pipeline) drop(po domain.PendingOrder, err error) {
	p.dropped.Inc()
	p.log.Error().Err(err).
		Int64("order_id", po.OrderID).
		Int64("user_id", po.UserID).
		Int64("voucher_id", po.VoucherID).
		Msg("order dropped")
}

// Close stops admissions and drains queued orders until ctx expires; whatever
// is still queued past the deadline is discarded and logged.
func (p *Pipeline) Close(ctx context.Context) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(p.quit)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.log.Error().Int("discarded", len(p.queue)).Msg("shutdown deadline hit before queue drained")
		return ctx.Err()
	}
}

// Stats is a point-in-time pipeline counter snapshot.
type Stats struct {
	Admitted  int64
	Persisted int64
	Dropped   int64
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Admitted:  p.admitted.Load(),
		Persisted: p.persisted.Load(),
		Dropped:   p.dropped.Load(),
	}
}
