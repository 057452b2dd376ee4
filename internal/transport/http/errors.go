package http

import (
	"encoding/json"
	"net/http"
)

const (
	codeNotFound         = "not_found"
	codeMethodNotAllowed = "method_not_allowed"
	codeInvalidBody      = "invalid_request_body"
	codeInvalidID        = "invalid_id"
	codeMissingUser      = "missing_user"
	codeStockExhausted   = "stock_exhausted"
	codeDuplicateOrder   = "duplicate_order"
	codeSaleNotStarted   = "sale_not_started"
	codeSaleEnded        = "sale_ended"
	codeVoucherNotFound  = "voucher_not_found"
	codeQueueFull        = "queue_full"
	codeRateLimited      = "rate_limited"
	codeForbidden        = "forbidden"
	codeInternalError    = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
