package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/mdm/pkg/slogx"
)

// Middleware wraps an http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares to h so the first listed runs outermost.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

type ctxKey string

const (
	// CtxKeySubject is the authenticated account ID.
	CtxKeySubject ctxKey = "subject"
	// CtxKeyTokenID is the ID of the bearer token the request presented.
	CtxKeyTokenID ctxKey = "token_id"
)

// SubjectFromCtx returns the authenticated account ID, empty when the
// request was not authenticated.
func SubjectFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeySubject).(string); ok {
		return v
	}
	return ""
}

// TokenIDFromCtx returns the presented token's ID.
func TokenIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyTokenID).(string); ok {
		return v
	}
	return ""
}

// TokenVerifier checks a raw bearer token and returns the account it belongs
// to and the token's own ID.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, raw string) (subject, tokenID string, err error)
}

// AuthnMiddleware rejects requests without a verifiable bearer token and
// injects the subject and token ID into the request context.
func AuthnMiddleware(v TokenVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") {
				writeBearerError(w, "missing bearer token")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))

			subject, tokenID, err := v.VerifyToken(ctx, raw)
			if err != nil {
				slogx.FromContext(ctx).Warn("token verification failed", "error", err)
				writeBearerError(w, "token invalid, expired or revoked")
				return
			}

			ctx = context.WithValue(ctx, CtxKeySubject, subject)
			ctx = context.WithValue(ctx, CtxKeyTokenID, tokenID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, "invalid_token", desc)
}
