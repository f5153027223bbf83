// Package requestcontext provides HTTP-independent context accessors for
// request-scoped and block-scoped values.
//
// Middleware and the runtime set values; services only read them, so services
// never need to import net/http.
//
// Usage in services (read values):
//
//	account := requestcontext.Account(ctx)
//	block := requestcontext.BlockNumber(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithBlockNumber(ctx, 7)
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	"anagolay/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	accountKey     struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
	blockNumberKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyAccount     = accountKey{}
	ContextKeyClientIP    = clientIPKey{}
	ContextKeyUserAgent   = userAgentKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
	ContextKeyBlockNumber = blockNumberKey{}
)

// -----------------------------------------------------------------------------
// Auth context
// -----------------------------------------------------------------------------

// Account retrieves the authenticated account from the context.
// Returns the zero account if not set.
func Account(ctx context.Context) domain.AccountID {
	if account, ok := ctx.Value(ContextKeyAccount).(domain.AccountID); ok {
		return account
	}
	return domain.AccountID{}
}

// WithAccount injects the authenticated account into the context.
func WithAccount(ctx context.Context, account domain.AccountID) context.Context {
	return context.WithValue(ctx, ContextKeyAccount, account)
}

// Origin returns the signed origin of the authenticated account, or the
// unsigned origin when no account is set.
func Origin(ctx context.Context) domain.Origin {
	account := Account(ctx)
	if account.IsNil() {
		return domain.None()
	}
	return domain.Signed(account)
}

// -----------------------------------------------------------------------------
// Client metadata (IP, User-Agent)
// -----------------------------------------------------------------------------

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyClientIP, clientIP)
	ctx = context.WithValue(ctx, ContextKeyUserAgent, userAgent)
	return ctx
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// -----------------------------------------------------------------------------
// Time and block
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}

// BlockNumber retrieves the block an extrinsic is executing in.
// Returns zero outside block execution.
func BlockNumber(ctx context.Context) domain.BlockNumber {
	if n, ok := ctx.Value(ContextKeyBlockNumber).(domain.BlockNumber); ok {
		return n
	}
	return 0
}

// WithBlockNumber injects the executing block number into the context.
func WithBlockNumber(ctx context.Context, n domain.BlockNumber) context.Context {
	return context.WithValue(ctx, ContextKeyBlockNumber, n)
}
