package app

import (
	"context"
	"sync"

	"github.com/Tardigrade97/dianping/internal/domain"
)

// fakeStore is an in-memory stand-in for the postgres repositories. WithTx
// runs the function directly; the mutex stands in for transaction isolation,
// which is enough here because the pipeline serializes durable writes anyway.
type fakeStore struct {
	mu       sync.Mutex
	vouchers map[int64]*domain.SeckillVoucher
	orders   []domain.VoucherOrder

	getCalls    int
	blockCreate chan struct{}
}

func newFakeStore(vouchers ...domain.SeckillVoucher) *fakeStore {
	s := &fakeStore{vouchers: make(map[int64]*domain.SeckillVoucher)}
	for i := range vouchers {
		v := vouchers[i]
		s.vouchers[v.ID] = &v
	}
	return s
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *fakeStore) GetSeckillVoucher(ctx context.Context, id int64) (*domain.SeckillVoucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	v, ok := s.vouchers[id]
	if !ok {
		return nil, nil
	}
	copied := *v
	return &copied, nil
}

func (s *fakeStore) CreateSeckillVoucher(ctx context.Context, v domain.SeckillVoucher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vouchers[v.ID] = &v
	return nil
}

func (s *fakeStore) UpdateVoucher(ctx context.Context, v domain.Voucher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.vouchers[v.ID]
	if !ok {
		return domain.ErrVoucherNotFound
	}
	existing.Title = v.Title
	existing.PayValue = v.PayValue
	existing.Actual = v.Actual
	return nil
}

func (s *fakeStore) DecrementStock(ctx context.Context, voucherID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vouchers[voucherID]
	if !ok || v.Stock <= 0 {
		return false, nil
	}
	v.Stock--
	return true, nil
}

func (s *fakeStore) CountByUserAndVoucher(ctx context.Context, userID, voucherID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, o := range s.orders {
		if o.UserID == userID && o.VoucherID == voucherID {
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) Create(ctx context.Context, order domain.VoucherOrder) error {
	if s.blockCreate != nil {
		<-s.blockCreate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.UserID == order.UserID && o.VoucherID == order.VoucherID {
			return domain.ErrDuplicateOrder
		}
	}
	s.orders = append(s.orders, order)
	return nil
}

func (s *fakeStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *fakeStore) stockOf(voucherID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.vouchers[voucherID]; ok {
		return v.Stock
	}
	return -1
}
