package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tardigrade97/dianping/internal/domain"
)

func TestHandlePublishVoucher(t *testing.T) {
	t.Parallel()

	begin := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	end := begin.Add(2 * time.Hour)

	t.Run("creates voucher", func(t *testing.T) {
		svc := &fakeVoucherService{published: domain.SeckillVoucher{
			Voucher: domain.Voucher{ID: 4242, ShopID: 1, Title: "100 off"},
			Stock:   10,
			BeginAt: begin,
			EndAt:   end,
		}}

		body := `{"shop_id":1,"title":"100 off","pay_value":8000,"actual_value":10000,` +
			`"stock":10,"begin_at":"2025-06-01T10:00:00Z","end_at":"2025-06-01T12:00:00Z"}`
		req := httptest.NewRequest(http.MethodPost, "/admin/vouchers", strings.NewReader(body))
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp voucherResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.ID != 4242 {
			t.Fatalf("expected id 4242, got %d", resp.ID)
		}
	})

	t.Run("rejects invalid payloads", func(t *testing.T) {
		cases := []struct {
			name string
			body string
		}{
			{"malformed json", `{"title":`},
			{"missing title", `{"stock":10,"begin_at":"2025-06-01T10:00:00Z","end_at":"2025-06-01T12:00:00Z"}`},
			{"zero stock", `{"title":"x","stock":0,"begin_at":"2025-06-01T10:00:00Z","end_at":"2025-06-01T12:00:00Z"}`},
			{"inverted window", `{"title":"x","stock":10,"begin_at":"2025-06-01T12:00:00Z","end_at":"2025-06-01T10:00:00Z"}`},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				req := httptest.NewRequest(http.MethodPost, "/admin/vouchers", strings.NewReader(tc.body))
				rec := httptest.NewRecorder()
				newTestRouter(&fakeVoucherService{}).ServeHTTP(rec, req)

				if rec.Code != http.StatusBadRequest {
					t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
				}
			})
		}
	})
}

func TestHandleUpdateVoucher(t *testing.T) {
	t.Parallel()

	t.Run("updates voucher", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/admin/vouchers/100",
			strings.NewReader(`{"title":"new title","pay_value":9000,"actual_value":10000}`))
		rec := httptest.NewRecorder()
		newTestRouter(&fakeVoucherService{}).ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("unknown voucher", func(t *testing.T) {
		svc := &fakeVoucherService{updateErr: domain.ErrVoucherNotFound}

		req := httptest.NewRequest(http.MethodPut, "/admin/vouchers/999",
			strings.NewReader(`{"title":"new title"}`))
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

func TestHandleReseedVoucher(t *testing.T) {
	t.Parallel()

	t.Run("reseeds", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin/vouchers/100/reseed", nil)
		rec := httptest.NewRecorder()
		newTestRouter(&fakeVoucherService{}).ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("unknown voucher", func(t *testing.T) {
		svc := &fakeVoucherService{reseedErr: domain.ErrVoucherNotFound}

		req := httptest.NewRequest(http.MethodPost, "/admin/vouchers/999/reseed", nil)
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}
