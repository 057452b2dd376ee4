package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/Tardigrade97/dianping/internal/domain"
)

// userHeader carries the caller identity resolved by the upstream auth layer.
const userHeader = "X-User-ID"

// VoucherReader is the minimal interface needed to serve voucher reads.
type VoucherReader interface {
	GetVoucher(ctx context.Context, id int64) (*domain.SeckillVoucher, error)
}

// Purchaser is the minimal interface needed to run a flash-sale purchase.
type Purchaser interface {
	Purchase(ctx context.Context, voucherID, userID int64) (int64, error)
}

type voucherResponse struct {
	ID       int64     `json:"id"`
	ShopID   int64     `json:"shop_id"`
	Title    string    `json:"title"`
	PayValue int64     `json:"pay_value"`
	Actual   int64     `json:"actual_value"`
	Stock    int       `json:"stock"`
	BeginAt  time.Time `json:"begin_at"`
	EndAt    time.Time `json:"end_at"`
}

// HandleGetVoucher returns an HTTP handler for reading one voucher.
func HandleGetVoucher(svc VoucherReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, codeInvalidID, "invalid voucher id")
			return
		}

		v, err := svc.GetVoucher(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}
		if v == nil {
			writeError(w, http.StatusNotFound, codeVoucherNotFound, "voucher not found")
			return
		}

		writeJSON(w, http.StatusOK, voucherResponse{
			ID:       v.ID,
			ShopID:   v.ShopID,
			Title:    v.Title,
			PayValue: v.PayValue,
			Actual:   v.Actual,
			Stock:    v.Stock,
			BeginAt:  v.BeginAt,
			EndAt:    v.EndAt,
		})
	}
}

type purchaseResponse struct {
	OrderID int64 `json:"order_id"`
}

// HandlePurchase returns an HTTP handler for the seckill purchase entry point.
// The order id comes back before the order is durably persisted.
func HandlePurchase(svc Purchaser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		voucherID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil || voucherID <= 0 {
			writeError(w, http.StatusBadRequest, codeInvalidID, "invalid voucher id")
			return
		}
		userID, err := strconv.ParseInt(r.Header.Get(userHeader), 10, 64)
		if err != nil || userID <= 0 {
			writeError(w, http.StatusBadRequest, codeMissingUser, "missing or invalid "+userHeader)
			return
		}

		orderID, err := svc.Purchase(r.Context(), voucherID, userID)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrVoucherNotFound):
				writeError(w, http.StatusNotFound, codeVoucherNotFound, err.Error())
			case errors.Is(err, domain.ErrStockExhausted):
				writeError(w, http.StatusConflict, codeStockExhausted, err.Error())
			case errors.Is(err, domain.ErrDuplicateOrder):
				writeError(w, http.StatusConflict, codeDuplicateOrder, err.Error())
			case errors.Is(err, domain.ErrSaleNotStarted):
				writeError(w, http.StatusUnprocessableEntity, codeSaleNotStarted, err.Error())
			case errors.Is(err, domain.ErrSaleEnded):
				writeError(w, http.StatusUnprocessableEntity, codeSaleEnded, err.Error())
			case errors.Is(err, domain.ErrQueueFull), errors.Is(err, domain.ErrPipelineClosed):
				writeError(w, http.StatusServiceUnavailable, codeQueueFull, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			}
			return
		}

		writeJSON(w, http.StatusOK, purchaseResponse{OrderID: orderID})
	}
}
