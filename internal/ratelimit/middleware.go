package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"anagolay/internal/platform/middleware"
	dErrors "anagolay/pkg/domain-errors"
	"anagolay/pkg/platform/httputil"
	"anagolay/pkg/requestcontext"
)

type Limiter interface {
	Allow(ctx context.Context, key string) Result
}

// Middleware rejects callers over their window with 429. Place it after
// the auth middleware to key signed requests by account.
func Middleware(limiter Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := "ip:" + middleware.ClientIPFromRequest(r)
			if account := requestcontext.Account(ctx); !account.IsNil() {
				key = "account:" + account.String()
			}

			result := limiter.Allow(ctx, key)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				logger.WarnContext(ctx, "rate limit exceeded",
					"key", key,
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(result.RetryAfter.Seconds()))))
				httputil.WriteError(w, dErrors.New(dErrors.CodeLimitExceeded, "too many requests, try again later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
