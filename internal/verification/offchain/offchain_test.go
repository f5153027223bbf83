package offchain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anagolay/internal/verification/models"
	"anagolay/internal/verification/strategy"
	"anagolay/pkg/domain"
)

func account(b byte) domain.AccountID {
	var a domain.AccountID
	a[0] = b
	return a
}

func pendingEnvelope(holder byte) models.IndexingData {
	return models.IndexingData{
		Verifier: account(9),
		Request: models.Request{
			Context: models.URLForDomain("anagolay.network"),
			Action:  models.ActionDNSTXTRecord,
			Status:  models.Pending(),
			Holder:  account(holder),
			Key:     "anagolay-domain-verification=abc",
		},
	}
}

func TestIndexingKey(t *testing.T) {
	key := IndexingKey(258)
	assert.Equal(t, "verification::indexing::", string(key[:len(IndexingPrefix)]))
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 1, 2}, key[len(IndexingPrefix):])
	assert.NotEqual(t, IndexingKey(1), IndexingKey(2))
}

func testIndexStore(t *testing.T, s IndexStore) {
	t.Helper()
	ctx := context.Background()
	key := IndexingKey(7)

	got, err := s.Take(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.Append(ctx, key, pendingEnvelope(1)))
	require.NoError(t, s.Append(ctx, key, pendingEnvelope(2)))
	require.NoError(t, s.Append(ctx, IndexingKey(8), pendingEnvelope(3)))

	got, err = s.Take(ctx, key)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, account(1), got[0].Request.Holder)
	assert.Equal(t, account(2), got[1].Request.Holder)
	assert.Equal(t, pendingEnvelope(1), got[0])

	got, err = s.Take(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, got, "envelopes are consumed at most once")

	got, err = s.Take(ctx, IndexingKey(8))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMemoryIndex(t *testing.T) {
	testIndexStore(t, NewMemoryIndex())
}

func TestBoltIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offchain.db")
	idx, err := OpenBoltIndex(path)
	require.NoError(t, err)
	testIndexStore(t, idx)

	require.NoError(t, idx.Append(context.Background(), IndexingKey(99), pendingEnvelope(4)))
	require.NoError(t, idx.Close())

	reopened, err := OpenBoltIndex(path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Take(context.Background(), IndexingKey(99))
	require.NoError(t, err)
	assert.Len(t, got, 1, "bolt storage survives restarts")
}

func TestBoltIndex_BestBlock(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "offchain.db")
	idx, err := OpenBoltIndex(path)
	require.NoError(t, err)

	best, err := idx.LoadBestBlock(ctx)
	require.NoError(t, err)
	assert.Zero(t, best)

	require.NoError(t, idx.SaveBestBlock(ctx, 41))
	require.NoError(t, idx.SaveBestBlock(ctx, 42))
	require.NoError(t, idx.Close())

	reopened, err := OpenBoltIndex(path)
	require.NoError(t, err)
	defer reopened.Close()
	best, err = reopened.LoadBestBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.BlockNumber(42), best)

	got, err := reopened.Take(ctx, IndexingKey(42))
	require.NoError(t, err)
	assert.Empty(t, got, "the best block record is not an envelope list")
}

func TestIndexer(t *testing.T) {
	idx := NewMemoryIndex()
	require.NoError(t, NewIndexer(idx).Index(context.Background(), 5, pendingEnvelope(1)))
	assert.Equal(t, 1, idx.Len(IndexingKey(5)))
}

// --- worker ---

type stubStrategy struct {
	status models.Status
	err    error
	calls  int
}

func (s *stubStrategy) ID() string { return "stub" }

func (s *stubStrategy) Supports(c models.Context, a models.Action) bool {
	return c.Kind == models.ContextURLForDomain && a == models.ActionDNSTXTRecord
}

func (s *stubStrategy) NewRequest(domain.AccountID, models.Context, models.Action) (models.Request, error) {
	return models.Request{}, nil
}

func (s *stubStrategy) Verify(context.Context, models.Request) (models.Status, error) {
	s.calls++
	return s.status, s.err
}

type stubSigner struct{ err error }

func (s stubSigner) Sign(models.IndexingData) (string, error) { return "sig", s.err }

type recordingSubmitter struct {
	mu          sync.Mutex
	submissions []models.StatusSubmission
	err         error
}

func (r *recordingSubmitter) SubmitUnsigned(_ context.Context, s models.StatusSubmission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.submissions = append(r.submissions, s)
	return nil
}

type countingMetrics struct{ outcomes []string }

func (c *countingMetrics) ObserveCheck(_ string, outcome string, _ time.Duration) {
	c.outcomes = append(c.outcomes, outcome)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWorker_SubmitsVerifiedStatus(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	strat := &stubStrategy{status: models.Success()}
	sub := &recordingSubmitter{}
	metrics := &countingMetrics{}
	w := NewWorker(idx, strategy.NewRegistry(strat), stubSigner{}, sub, WithLogger(discard()), WithMetrics(metrics))

	require.NoError(t, idx.Append(ctx, IndexingKey(3), pendingEnvelope(1)))
	require.NoError(t, idx.Append(ctx, IndexingKey(3), pendingEnvelope(2)))

	assert.Equal(t, 0, w.OnBlockFinalized(ctx, 2), "other blocks are untouched")
	assert.Equal(t, 2, w.OnBlockFinalized(ctx, 3))
	assert.Equal(t, 0, w.OnBlockFinalized(ctx, 3), "second tick finds nothing")

	require.Len(t, sub.submissions, 2)
	assert.Equal(t, models.Success(), sub.submissions[0].Data.Request.Status)
	assert.Equal(t, account(9), sub.submissions[0].Data.Verifier)
	assert.Equal(t, "sig", sub.submissions[0].Signature)
	assert.Equal(t, []string{"success", "success"}, metrics.outcomes)
}

func TestWorker_SkipsNonPending(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	strat := &stubStrategy{status: models.Success()}
	sub := &recordingSubmitter{}
	w := NewWorker(idx, strategy.NewRegistry(strat), stubSigner{}, sub, WithLogger(discard()))

	env := pendingEnvelope(1)
	env.Request.Status = models.Waiting()
	require.NoError(t, idx.Append(ctx, IndexingKey(1), env))

	assert.Equal(t, 0, w.OnBlockFinalized(ctx, 1))
	assert.Zero(t, strat.calls)
}

func TestWorker_DropsOnFailures(t *testing.T) {
	tests := []struct {
		name     string
		strategy *stubStrategy
		signer   stubSigner
		subErr   error
		context  models.Context
	}{
		{
			name:     "transport error",
			strategy: &stubStrategy{err: strategy.NewError(strategy.ErrorTimeout, "stub", "timeout", nil)},
		},
		{
			name:     "no strategy",
			strategy: &stubStrategy{status: models.Success()},
			context:  models.Unbounded(),
		},
		{
			name:     "signing fails",
			strategy: &stubStrategy{status: models.Success()},
			signer:   stubSigner{err: errors.New("hsm offline")},
		},
		{
			name:     "pool rejects",
			strategy: &stubStrategy{status: models.Failure("mismatch")},
			subErr:   errors.New("pool full"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			idx := NewMemoryIndex()
			sub := &recordingSubmitter{err: tt.subErr}
			w := NewWorker(idx, strategy.NewRegistry(tt.strategy), tt.signer, sub, WithLogger(discard()))

			env := pendingEnvelope(1)
			if tt.context.Kind != "" {
				env.Request.Context = tt.context
			}
			require.NoError(t, idx.Append(ctx, IndexingKey(4), env))

			assert.Equal(t, 0, w.OnBlockFinalized(ctx, 4))
			assert.Empty(t, sub.submissions)
			assert.Equal(t, 0, idx.Len(IndexingKey(4)), "dropped envelopes are not retried")
		})
	}
}
