package domain

import "time"

// Voucher is a purchasable coupon. Non-seckill vouchers have no stock limit.
type Voucher struct {
	ID        int64
	ShopID    int64
	Title     string
	PayValue  int64
	Actual    int64
	CreatedAt time.Time
}

// SeckillVoucher extends a voucher with flash-sale inventory and a sale window.
// Stock here is the durable count; the cache tier holds its own copy for
// admission racing and neither tier trusts the other.
type SeckillVoucher struct {
	Voucher
	Stock   int
	BeginAt time.Time
	EndAt   time.Time
}

// InWindow reports whether the flash sale is open at the given instant.
func (v SeckillVoucher) InWindow(now time.Time) bool {
	return !now.Before(v.BeginAt) && now.Before(v.EndAt)
}
