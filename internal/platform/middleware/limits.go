package middleware

import (
	"encoding/json"
	"mime"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	dErrors "consentis/pkg/domain-errors"
	"consentis/pkg/platform/httputil"
)

// RateLimit gives every caller its own token bucket refilled at perSecond
// with room for burst. It must run after Caller. A non-positive perSecond
// disables limiting.
func RateLimit(perSecond float64, burst int) func(http.Handler) http.Handler {
	buckets := &callerBuckets{
		limit:  rate.Limit(perSecond),
		burst:  max(burst, 1),
		byCall: make(map[string]*rate.Limiter),
	}
	return func(next http.Handler) http.Handler {
		if perSecond <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !buckets.get(GetCaller(r.Context())).Allow() {
				w.Header().Set("Retry-After", "1")
				httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// callerBuckets grows with the number of distinct MSP ids, which the
// Caller middleware bounds to the configured organizations.
type callerBuckets struct {
	limit  rate.Limit
	burst  int
	mu     sync.Mutex
	byCall map[string]*rate.Limiter
}

func (b *callerBuckets) get(caller string) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.byCall[caller]
	if !ok {
		l = rate.NewLimiter(b.limit, b.burst)
		b.byCall[caller] = l
	}
	return l
}

// Timeout aborts handlers that run longer than d with a 503 carrying a
// timeout error body.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	body, _ := json.Marshal(httputil.ErrorResponse{
		Error:       string(dErrors.CodeTimeout),
		Description: "request exceeded " + d.String(),
	})
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, string(body))
	}
}

// MaxBody caps request bodies at limit bytes. Reads past the cap fail with
// *http.MaxBytesError, which DecodeJSON reports as a 400.
func MaxBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ContentTypeJSON answers 415 to a body-carrying request whose declared
// media type is not application/json. Parameters such as charset are
// allowed and a missing header is tolerated.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			if ct := r.Header.Get("Content-Type"); ct != "" {
				if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
					httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.ErrorResponse{
						Error:       "invalid_content_type",
						Description: "Content-Type must be application/json",
					})
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}
