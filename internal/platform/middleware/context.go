// Package middleware holds the chi middleware shared by every consentis
// HTTP route: request correlation, caller resolution, limits and logging.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"consentis/internal/ledger"
	dErrors "consentis/pkg/domain-errors"
	"consentis/pkg/platform/httputil"
)

const (
	// CallerHeader selects the organization a request is submitted as. It
	// accepts a peer number, org name, MSP id or role name.
	CallerHeader = "X-Caller-MSP"

	RequestIDHeader = "X-Request-ID"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	callerKey
)

// RequestID echoes the client's X-Request-ID or mints a UUID, and exposes
// it through GetRequestID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Caller resolves CallerHeader to an MSP id through ids. Requests without
// the header run as the issuer; an alias that names no organization is a
// 400.
func Caller(ids ledger.Identities) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			msp := ids.Issuer
			if alias := r.Header.Get(CallerHeader); alias != "" {
				resolved, ok := ids.Resolve(alias)
				if !ok {
					httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unknown caller "+alias))
					return
				}
				msp = resolved
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey, msp)))
		})
	}
}

// GetCaller returns the MSP id resolved by Caller, or "" outside it.
func GetCaller(ctx context.Context) string {
	msp, _ := ctx.Value(callerKey).(string)
	return msp
}
