package middleware

import (
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Limit bounds the number of requests handled at once. A request that cannot
// get a slot within wait is answered with 503.
func Limit(concurrency int, wait time.Duration) func(http.Handler) http.Handler {
	if concurrency <= 0 {
		concurrency = 1
	}
	slots := make(chan struct{}, concurrency)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			timer := time.NewTimer(wait)
			defer timer.Stop()

			select {
			case slots <- struct{}{}:
			case <-r.Context().Done():
				return
			case <-timer.C:
				w.Header().Set("Retry-After", "1")
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}
			defer func() { <-slots }()

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit admits rps requests per second with the given burst, shared by
// all callers. Excess requests get 429.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				retry := time.Second
				if rps > 0 {
					retry = time.Duration(float64(time.Second) / rps)
				}
				w.Header().Set("Retry-After", strconv.Itoa(max(1, int(retry.Seconds()))))
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
