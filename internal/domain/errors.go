package domain

import "errors"

var (
	ErrVoucherNotFound = errors.New("voucher not found")
	ErrStockExhausted  = errors.New("stock exhausted")
	ErrDuplicateOrder  = errors.New("duplicate order")
	ErrSaleNotStarted  = errors.New("sale not started")
	ErrSaleEnded       = errors.New("sale ended")
	ErrQueueFull       = errors.New("order queue full")
	ErrPipelineClosed  = errors.New("pipeline closed")
	ErrInvalidID       = errors.New("invalid id")
)
