package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/Tardigrade97/dianping/internal/app"
	"github.com/Tardigrade97/dianping/internal/domain"
)

// VoucherAdmin is the minimal interface behind the admin endpoints.
type VoucherAdmin interface {
	PublishSeckillVoucher(ctx context.Context, in app.PublishVoucherInput) (domain.SeckillVoucher, error)
	UpdateVoucher(ctx context.Context, in app.UpdateVoucherInput) error
	ReseedAdmissionState(ctx context.Context, voucherID int64) error
}

type publishVoucherRequest struct {
	ShopID   int64     `json:"shop_id"`
	Title    string    `json:"title"`
	PayValue int64     `json:"pay_value"`
	Actual   int64     `json:"actual_value"`
	Stock    int       `json:"stock"`
	BeginAt  time.Time `json:"begin_at"`
	EndAt    time.Time `json:"end_at"`
}

// HandlePublishVoucher creates a flash-sale voucher and opens it for
// admission.
func HandlePublishVoucher(svc VoucherAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req publishVoucherRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidBody, "invalid request body")
			return
		}
		if req.Title == "" || req.Stock <= 0 || !req.EndAt.After(req.BeginAt) {
			writeError(w, http.StatusBadRequest, codeInvalidBody, "title, positive stock and a valid sale window are required")
			return
		}

		v, err := svc.PublishSeckillVoucher(r.Context(), app.PublishVoucherInput{
			ShopID:   req.ShopID,
			Title:    req.Title,
			PayValue: req.PayValue,
			Actual:   req.Actual,
			Stock:    req.Stock,
			BeginAt:  req.BeginAt,
			EndAt:    req.EndAt,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}

		writeJSON(w, http.StatusCreated, voucherResponse{
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

type updateVoucherRequest struct {
	Title    string `json:"title"`
	PayValue int64  `json:"pay_value"`
	Actual   int64  `json:"actual_value"`
}

// HandleUpdateVoucher updates voucher fields and invalidates the cached copy.
func HandleUpdateVoucher(svc VoucherAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, codeInvalidID, "invalid voucher id")
			return
		}

		var req updateVoucherRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidBody, "invalid request body")
			return
		}

		err = svc.UpdateVoucher(r.Context(), app.UpdateVoucherInput{
			ID:       id,
			Title:    req.Title,
			PayValue: req.PayValue,
			Actual:   req.Actual,
		})
		if err != nil {
			if errors.Is(err, domain.ErrVoucherNotFound) {
				writeError(w, http.StatusNotFound, codeVoucherNotFound, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleReseedVoucher re-publishes the cache-tier admission state from the
// durable voucher row.
func HandleReseedVoucher(svc VoucherAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, codeInvalidID, "invalid voucher id")
			return
		}

		if err := svc.ReseedAdmissionState(r.Context(), id); err != nil {
			if errors.Is(err, domain.ErrVoucherNotFound) {
				writeError(w, http.StatusNotFound, codeVoucherNotFound, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
