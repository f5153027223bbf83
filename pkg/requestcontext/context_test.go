package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"anagolay/pkg/domain"
)

func TestDefaults(t *testing.T) {
	ctx := context.Background()

	assert.True(t, Account(ctx).IsNil())
	assert.Equal(t, domain.OriginNone, Origin(ctx).Kind)
	assert.Empty(t, RequestID(ctx))
	assert.Equal(t, domain.BlockNumber(0), BlockNumber(ctx))
	assert.WithinDuration(t, time.Now(), Now(ctx), time.Second)
}

func TestRoundTrip(t *testing.T) {
	var alice domain.AccountID
	alice[31] = 7
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	ctx := WithAccount(context.Background(), alice)
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithTime(ctx, fixed)
	ctx = WithBlockNumber(ctx, 42)
	ctx = WithClientMetadata(ctx, "10.0.0.1", "curl/8")

	assert.Equal(t, alice, Account(ctx))
	assert.Equal(t, domain.Signed(alice), Origin(ctx))
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, fixed, Now(ctx))
	assert.Equal(t, domain.BlockNumber(42), BlockNumber(ctx))
	assert.Equal(t, "10.0.0.1", ClientIP(ctx))
	assert.Equal(t, "curl/8", UserAgent(ctx))
}
