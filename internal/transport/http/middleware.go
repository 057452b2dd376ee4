package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RequestLogger logs basic request details and latency.
func RequestLogger(next http.Handler, log zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RateLimit throttles requests per caller identity (X-User-ID, falling back
// to the remote address). Limiters for idle callers are dropped once the map
// grows past a soft cap to bound memory during a flood.
func RateLimit(next http.Handler, limit rate.Limit, burst int) http.Handler {
	const softCap = 100_000

	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(userHeader)
		if key == "" {
			key = r.RemoteAddr
		}

		mu.Lock()
		lim, ok := limiters[key]
		if !ok {
			if len(limiters) >= softCap {
				limiters = make(map[string]*rate.Limiter)
			}
			lim = rate.NewLimiter(limit, burst)
			limiters[key] = lim
		}
		mu.Unlock()

		if !lim.Allow() {
			writeError(w, http.StatusTooManyRequests, codeRateLimited, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
