package domain

import "time"

// VoucherOrder is a confirmed purchase. At most one row ever exists per
// (UserID, VoucherID); a unique index enforces this at the store.
type VoucherOrder struct {
	ID        int64
	UserID    int64
	VoucherID int64
	CreatedAt time.Time
}

// PendingOrder is an admitted purchase waiting for durable persistence. It
// lives only on the in-process queue between admission and the worker; a crash
// in that window loses it.
type PendingOrder struct {
	OrderID   int64
	UserID    int64
	VoucherID int64
}
