package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter wires every route of the service.
func NewRouter(vouchers VoucherReader, purchases Purchaser, admin VoucherAdmin) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", HealthHandler).Methods(http.MethodGet)
	r.Handle("/vouchers/{id:[0-9]+}", HandleGetVoucher(vouchers)).Methods(http.MethodGet)
	r.Handle("/vouchers/{id:[0-9]+}/purchase", HandlePurchase(purchases)).Methods(http.MethodPost)
	r.Handle("/admin/vouchers", HandlePublishVoucher(admin)).Methods(http.MethodPost)
	r.Handle("/admin/vouchers/{id:[0-9]+}", HandleUpdateVoucher(admin)).Methods(http.MethodPut)
	r.Handle("/admin/vouchers/{id:[0-9]+}/reseed", HandleReseedVoucher(admin)).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	})
	return r
}
