package runtime

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anagolay/internal/balances"
	"anagolay/internal/platform/metrics"
	"anagolay/internal/statements"
	"anagolay/internal/verification/models"
	"anagolay/internal/verification/offchain"
	"anagolay/internal/verification/service"
	"anagolay/internal/verification/store"
	"anagolay/internal/verification/strategy"
	"anagolay/internal/workerauth"
	"anagolay/pkg/domain"
	"anagolay/pkg/platform/events"
	"anagolay/pkg/platform/events/publisher"
	eventsmemory "anagolay/pkg/platform/events/store/memory"
)

type stubStrategy struct {
	mu     sync.Mutex
	status models.Status
}

func (s *stubStrategy) ID() string { return "stub" }

func (s *stubStrategy) Supports(c models.Context, a models.Action) bool {
	return c.Kind == models.ContextURLForDomain && a == models.ActionDNSTXTRecord
}

func (s *stubStrategy) NewRequest(holder domain.AccountID, c models.Context, a models.Action) (models.Request, error) {
	return models.Request{Context: c, Action: a, Status: models.Waiting(), Holder: holder, Key: "key-" + c.Host()}, nil
}

func (s *stubStrategy) Verify(context.Context, models.Request) (models.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, nil
}

func (s *stubStrategy) set(status models.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

type submitterFunc func(ctx context.Context, s models.StatusSubmission) error

func (f submitterFunc) SubmitUnsigned(ctx context.Context, s models.StatusSubmission) error {
	return f(ctx, s)
}

func acct(b byte) domain.AccountID {
	var a domain.AccountID
	a[0] = b
	return a
}

var (
	alice = acct(1)
	bob   = acct(2)
	carol = acct(3)
)

type harness struct {
	rt         *Runtime
	svc        *service.Service
	statements *statements.Service
	ledger     *balances.InMemoryLedger
	index      *offchain.MemoryIndex
	strategy   *stubStrategy
	signer     *workerauth.Signer
	worker     *offchain.Worker
	events     *eventsmemory.InMemoryStore
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		index:    offchain.NewMemoryIndex(),
		strategy: &stubStrategy{status: models.Success()},
		events:   eventsmemory.NewInMemoryStore(),
	}
	var err error
	h.ledger, err = balances.NewInMemoryLedger(map[domain.AccountID]domain.Balance{alice: 100, bob: 100, carol: 100})
	require.NoError(t, err)

	key, err := workerauth.KeyFromSeed("runtime-test")
	require.NoError(t, err)
	h.signer = workerauth.NewSigner(key)
	authority := workerauth.NewAuthority(h.signer.PublicKey())
	pub := publisher.NewPublisher(h.events)

	st := store.NewInMemoryStore()
	registry := strategy.NewRegistry(h.strategy)
	h.statements = statements.NewService(statements.WithLogger(logger))
	h.svc, err = service.NewService(st, registry, h.ledger, h.statements, offchain.NewIndexer(h.index), authority,
		service.Config{RegistrationFee: 10, MaxRequestsPerContext: 8},
		service.WithTx(service.NewInMemoryTx(st)),
		service.WithLogger(logger),
	)
	require.NoError(t, err)
	h.statements.SetVerifications(h.svc)

	h.worker = offchain.NewWorker(h.index, registry, h.signer,
		submitterFunc(func(ctx context.Context, s models.StatusSubmission) error {
			return h.rt.SubmitUnsigned(ctx, s)
		}),
		offchain.WithLogger(logger),
	)
	base := []Option{
		WithLogger(logger),
		WithMetrics(metrics.NewWithRegisterer(prometheus.NewRegistry())),
		WithPublisher(pub),
		WithStatements(h.statements),
		WithWorker(h.worker),
	}
	h.rt = New(h.svc, authority, append(base, opts...)...)
	return h
}

func (h *harness) pending(t *testing.T, holder domain.AccountID, domainName string) models.Request {
	t.Helper()
	ctx := context.Background()
	req, err := h.rt.RequestVerification(ctx, domain.Signed(holder), models.URLForDomain(domainName), models.ActionDNSTXTRecord)
	require.NoError(t, err)
	req, err = h.rt.PerformVerification(ctx, domain.Signed(bob), req)
	require.NoError(t, err)
	return req
}

func (h *harness) signed(t *testing.T, req models.Request, status models.Status) models.StatusSubmission {
	t.Helper()
	data := models.IndexingData{Verifier: bob, Request: req}
	data.Request.Status = status
	sig, err := h.signer.Sign(data)
	require.NoError(t, err)
	return models.StatusSubmission{Data: data, Signature: sig}
}

func TestRuntime_VerificationRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	req := h.pending(t, alice, "anagolay.network")
	assert.Equal(t, 1, h.index.Len(offchain.IndexingKey(1)), "extrinsics run in the block being built")

	assert.Equal(t, domain.BlockNumber(1), h.rt.ProduceBlock(ctx))
	assert.Equal(t, 1, h.worker.OnBlockFinalized(ctx, 1))
	assert.Equal(t, 1, h.rt.PoolSize())

	h.rt.ProduceBlock(ctx)
	assert.Equal(t, 0, h.rt.PoolSize())
	got, err := h.svc.Request(ctx, alice, req.Context)
	require.NoError(t, err)
	assert.Equal(t, models.Success(), got.Status)

	stmt, err := h.rt.CreateStatement(ctx, domain.Signed(alice), statements.Claim{
		Kind:    statements.ClaimOwnership,
		Subject: "bafkr4iproof",
		Context: req.Context,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.BlockNumber(3), stmt.CreatedAt)

	finalized := 0
	recent, err := h.events.ListRecent(ctx, 100)
	require.NoError(t, err)
	for _, e := range recent {
		if e.Kind == events.KindBlockFinalized {
			finalized++
		}
	}
	assert.Equal(t, 2, finalized)
}

func TestRuntime_RunWorkerTicksPerBlock(t *testing.T) {
	h := newHarness(t)
	h.strategy.set(models.Failure("no record"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.rt.RunWorker(ctx) }()

	req := h.pending(t, alice, "anagolay.network")
	h.rt.ProduceBlock(ctx)
	require.Eventually(t, func() bool { return h.rt.PoolSize() == 1 }, 2*time.Second, 10*time.Millisecond)

	h.rt.ProduceBlock(ctx)
	got, err := h.svc.Request(ctx, alice, req.Context)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailure, got.Status.Kind)
	assert.Equal(t, balances.Account{Free: 90}, h.ledger.Account(ctx, alice))
	assert.Equal(t, balances.Account{Free: 110}, h.ledger.Account(ctx, bob))

	cancel()
	require.NoError(t, <-done)
}

func TestRuntime_Run(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.rt.Run(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool { return h.rt.BestBlock() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestValidateUnsigned(t *testing.T) {
	h := newHarness(t, WithLongevity(3))
	ctx := context.Background()

	waiting, err := h.rt.RequestVerification(ctx, domain.Signed(carol), models.URLForDomain("waiting.dev"), models.ActionDNSTXTRecord)
	require.NoError(t, err)
	pending := h.pending(t, alice, "anagolay.network")
	h.rt.ProduceBlock(ctx)

	rogueKey, err := workerauth.KeyFromSeed("rogue")
	require.NoError(t, err)
	forged := models.IndexingData{Verifier: bob, Request: pending}
	forged.Request.Status = models.Success()
	forgedSig, err := workerauth.NewSigner(rogueKey).Sign(forged)
	require.NoError(t, err)

	tests := []struct {
		name    string
		sub     models.StatusSubmission
		wantErr error
	}{
		{"non-terminal status", h.signed(t, pending, models.Pending()), ErrUnsignedCallShape},
		{"missing signature", models.StatusSubmission{Data: forged}, ErrUnsignedCallShape},
		{"untrusted signature", models.StatusSubmission{Data: forged, Signature: forgedSig}, models.ErrInvalidWorkerSignature},
		{"request not pending", h.signed(t, waiting, models.Success()), ErrStaleSubmission},
		{"unknown request", h.signed(t, models.Request{Holder: carol, Context: models.URLForDomain("none.dev")}, models.Success()), ErrStaleSubmission},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := h.rt.ValidateUnsigned(ctx, tt.sub)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, h.rt.SubmitUnsigned(ctx, tt.sub), tt.wantErr)
		})
	}
	assert.Equal(t, 0, h.rt.PoolSize())

	valid, _, err := h.rt.ValidateUnsigned(ctx, h.signed(t, pending, models.Success()))
	require.NoError(t, err)
	assert.Equal(t, UnsignedPriority, valid.Priority)
	assert.Equal(t, domain.BlockNumber(4), valid.ValidUntil)
	assert.Equal(t, alice.String()+"/"+pending.Context.Key(), valid.Tag)
}

func TestSubmitUnsigned_DedupeAndBound(t *testing.T) {
	h := newHarness(t, WithPoolSize(1))
	ctx := context.Background()
	first := h.pending(t, alice, "anagolay.network")
	second := h.pending(t, carol, "anagolay.network")

	require.NoError(t, h.rt.SubmitUnsigned(ctx, h.signed(t, first, models.Success())))
	assert.ErrorIs(t, h.rt.SubmitUnsigned(ctx, h.signed(t, first, models.Failure("x"))), ErrDuplicateUnsigned)
	assert.ErrorIs(t, h.rt.SubmitUnsigned(ctx, h.signed(t, second, models.Success())), ErrPoolFull)
	assert.Equal(t, 1, h.rt.PoolSize())
}

func TestProduceBlock_PerBlockLimitAndLongevity(t *testing.T) {
	h := newHarness(t, WithMaxUnsignedPerBlock(1), WithLongevity(1))
	ctx := context.Background()
	first := h.pending(t, alice, "anagolay.network")
	second := h.pending(t, carol, "anagolay.network")

	require.NoError(t, h.rt.SubmitUnsigned(ctx, h.signed(t, first, models.Success())))
	require.NoError(t, h.rt.SubmitUnsigned(ctx, h.signed(t, second, models.Success())))

	h.rt.ProduceBlock(ctx)
	assert.Equal(t, 1, h.rt.PoolSize(), "one submission per block")
	h.rt.ProduceBlock(ctx)
	assert.Equal(t, 0, h.rt.PoolSize(), "the second expired")

	got, err := h.svc.Request(ctx, alice, first.Context)
	require.NoError(t, err)
	assert.Equal(t, models.Success(), got.Status)
	got, err = h.svc.Request(ctx, carol, second.Context)
	require.NoError(t, err)
	assert.Equal(t, models.Pending(), got.Status)
}

func TestRuntime_StatementsDisabled(t *testing.T) {
	h := newHarness(t)
	h.rt.statements = nil
	_, err := h.rt.CreateStatement(context.Background(), domain.Signed(alice), statements.Claim{})
	assert.ErrorIs(t, err, ErrStatementsDisabled)
}

type memoryChain struct {
	mu    sync.Mutex
	best  domain.BlockNumber
	saved []domain.BlockNumber
}

func (c *memoryChain) LoadBestBlock(context.Context) (domain.BlockNumber, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.best, nil
}

func (c *memoryChain) SaveBestBlock(_ context.Context, block domain.BlockNumber) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.best = block
	c.saved = append(c.saved, block)
	return nil
}

func TestRuntime_ResumeContinuesNumbering(t *testing.T) {
	ctx := context.Background()
	chain := &memoryChain{best: 41}
	h := newHarness(t, WithChainState(chain))

	require.NoError(t, h.rt.Resume(ctx))
	assert.Equal(t, domain.BlockNumber(41), h.rt.BestBlock())
	assert.Equal(t, domain.BlockNumber(41), <-h.rt.ticks, "the last finalized block is handed to the worker again")

	h.pending(t, alice, "anagolay.network")
	assert.Equal(t, 1, h.index.Len(offchain.IndexingKey(42)), "new envelopes land past the saved block")

	assert.Equal(t, domain.BlockNumber(42), h.rt.ProduceBlock(ctx))
	assert.Equal(t, []domain.BlockNumber{42}, chain.saved)
}

func TestRuntime_ResumeWithoutChainState(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.rt.Resume(context.Background()))
	assert.Zero(t, h.rt.BestBlock())
	assert.Empty(t, h.rt.ticks)
}
