// Package runtime is the single-node block pipeline. It executes extrinsics
// one at a time, stamps them with the block being built, keeps the pool of
// unsigned worker submissions and drives the off-chain worker once per
// finalized block.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"anagolay/internal/platform/metrics"
	"anagolay/internal/statements"
	"anagolay/internal/verification/models"
	"anagolay/pkg/cid"
	"anagolay/pkg/domain"
	"anagolay/pkg/platform/events"
	"anagolay/pkg/requestcontext"
)

const (
	CallRequestVerification      = "request_verification"
	CallPerformVerification      = "perform_verification"
	CallSubmitVerificationStatus = "submit_verification_status"
	CallCreateStatement          = "create_statement"
	CallRevokeStatement          = "revoke_statement"
)

// Verification is the verification module as dispatched by the runtime.
type Verification interface {
	RequestVerification(ctx context.Context, origin domain.Origin, vctx models.Context, action models.Action) (models.Request, error)
	PerformVerification(ctx context.Context, origin domain.Origin, request models.Request) (models.Request, error)
	SubmitVerificationStatus(ctx context.Context, origin domain.Origin, submission models.StatusSubmission) error
	GetRequests(ctx context.Context, query models.RequestQuery) ([]models.Request, error)
	Request(ctx context.Context, holder domain.AccountID, vctx models.Context) (models.Request, error)
}

type Statements interface {
	CreateStatement(ctx context.Context, origin domain.Origin, claim statements.Claim) (statements.Statement, error)
	Revoke(ctx context.Context, origin domain.Origin, id cid.ID) error
}

// Authority checks worker signatures before a submission enters the pool.
type Authority interface {
	Verify(data models.IndexingData, signature string) error
}

// OffchainWorker is ticked once per finalized block.
type OffchainWorker interface {
	OnBlockFinalized(ctx context.Context, block domain.BlockNumber) int
}

type Publisher interface {
	Emit(ctx context.Context, event events.Event) error
}

// ChainState persists the best finalized block across restarts.
type ChainState interface {
	LoadBestBlock(ctx context.Context) (domain.BlockNumber, error)
	SaveBestBlock(ctx context.Context, block domain.BlockNumber) error
}

const (
	DefaultPoolSize            = 256
	DefaultMaxUnsignedPerBlock = 64
	DefaultLongevity           = 5
	DefaultTickBuffer          = 64
)

type Runtime struct {
	// mu serializes extrinsic execution and block production.
	mu   sync.Mutex
	best domain.BlockNumber

	poolMu sync.Mutex
	pool   *unsignedPool

	verification Verification
	statements   Statements
	authority    Authority
	worker       OffchainWorker
	ticks        chan domain.BlockNumber
	chain        ChainState

	maxPerBlock int
	longevity   domain.BlockNumber

	publisher Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type Option func(*Runtime)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runtime) {
		r.metrics = m
	}
}

func WithPublisher(p Publisher) Option {
	return func(r *Runtime) {
		r.publisher = p
	}
}

func WithStatements(s Statements) Option {
	return func(r *Runtime) {
		r.statements = s
	}
}

func WithWorker(w OffchainWorker) Option {
	return func(r *Runtime) {
		r.worker = w
	}
}

// WithChainState makes block numbering durable. Call Resume before producing
// blocks.
func WithChainState(cs ChainState) Option {
	return func(r *Runtime) {
		r.chain = cs
	}
}

// WithPoolSize bounds the unsigned pool.
func WithPoolSize(n int) Option {
	return func(r *Runtime) {
		if n > 0 {
			r.pool.limit = n
		}
	}
}

// WithMaxUnsignedPerBlock bounds how many pooled submissions one block includes.
func WithMaxUnsignedPerBlock(n int) Option {
	return func(r *Runtime) {
		if n > 0 {
			r.maxPerBlock = n
		}
	}
}

// WithLongevity sets how many blocks a validated submission stays includable.
func WithLongevity(blocks domain.BlockNumber) Option {
	return func(r *Runtime) {
		if blocks > 0 {
			r.longevity = blocks
		}
	}
}

func New(verification Verification, authority Authority, opts ...Option) *Runtime {
	r := &Runtime{
		pool:         newUnsignedPool(DefaultPoolSize),
		verification: verification,
		authority:    authority,
		ticks:        make(chan domain.BlockNumber, DefaultTickBuffer),
		maxPerBlock:  DefaultMaxUnsignedPerBlock,
		longevity:    DefaultLongevity,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resume continues from the best block saved by a previous run and replays
// the off-chain worker tick for it, so envelopes indexed at that block are not
// stranded. Without a chain state it does nothing.
func (r *Runtime) Resume(ctx context.Context) error {
	if r.chain == nil {
		return nil
	}
	best, err := r.chain.LoadBestBlock(ctx)
	if err != nil {
		return fmt.Errorf("resume chain: %w", err)
	}
	r.mu.Lock()
	r.best = best
	r.mu.Unlock()

	if best > 0 {
		select {
		case r.ticks <- best:
		default:
		}
		r.logger.InfoContext(ctx, "resumed chain", "best_block", uint64(best))
	}
	return nil
}

// BestBlock is the number of the last finalized block.
func (r *Runtime) BestBlock() domain.BlockNumber {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.best
}

// apply runs one extrinsic in the block being built.
func (r *Runtime) apply(ctx context.Context, call string, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applyLocked(ctx, call, fn)
}

func (r *Runtime) applyLocked(ctx context.Context, call string, fn func(ctx context.Context) error) error {
	ctx = requestcontext.WithBlockNumber(ctx, r.best+1)
	err := fn(ctx)
	r.metrics.ObserveExtrinsic(call, err)
	return err
}

func (r *Runtime) RequestVerification(ctx context.Context, origin domain.Origin, vctx models.Context, action models.Action) (req models.Request, err error) {
	err = r.apply(ctx, CallRequestVerification, func(ctx context.Context) error {
		req, err = r.verification.RequestVerification(ctx, origin, vctx, action)
		return err
	})
	return req, err
}

func (r *Runtime) PerformVerification(ctx context.Context, origin domain.Origin, request models.Request) (req models.Request, err error) {
	err = r.apply(ctx, CallPerformVerification, func(ctx context.Context) error {
		req, err = r.verification.PerformVerification(ctx, origin, request)
		return err
	})
	return req, err
}

func (r *Runtime) CreateStatement(ctx context.Context, origin domain.Origin, claim statements.Claim) (stmt statements.Statement, err error) {
	if r.statements == nil {
		return statements.Statement{}, ErrStatementsDisabled
	}
	err = r.apply(ctx, CallCreateStatement, func(ctx context.Context) error {
		stmt, err = r.statements.CreateStatement(ctx, origin, claim)
		return err
	})
	return stmt, err
}

func (r *Runtime) RevokeStatement(ctx context.Context, origin domain.Origin, id cid.ID) error {
	if r.statements == nil {
		return ErrStatementsDisabled
	}
	return r.apply(ctx, CallRevokeStatement, func(ctx context.Context) error {
		return r.statements.Revoke(ctx, origin, id)
	})
}

// GetRequests is a read-only query and does not wait for block production.
func (r *Runtime) GetRequests(ctx context.Context, query models.RequestQuery) ([]models.Request, error) {
	return r.verification.GetRequests(ctx, query)
}

func (r *Runtime) Request(ctx context.Context, holder domain.AccountID, vctx models.Context) (models.Request, error) {
	return r.verification.Request(ctx, holder, vctx)
}

// ProduceBlock includes pooled unsigned submissions in priority order,
// finalizes the block and queues the off-chain worker tick for it. A failing
// submission is logged and does not abort the block.
func (r *Runtime) ProduceBlock(ctx context.Context) domain.BlockNumber {
	r.mu.Lock()
	number := r.best + 1

	r.poolMu.Lock()
	included, expired := r.pool.take(number, r.maxPerBlock)
	r.metrics.SetUnsignedPoolSize(r.pool.len())
	r.poolMu.Unlock()

	for range expired {
		r.metrics.IncrementUnsignedRejected(reasonExpired)
	}
	for _, tx := range included {
		err := r.applyLocked(ctx, CallSubmitVerificationStatus, func(ctx context.Context) error {
			return r.verification.SubmitVerificationStatus(ctx, domain.None(), tx.submission)
		})
		if err != nil {
			r.logger.WarnContext(ctx, "unsigned submission failed in block",
				"block", uint64(number),
				"tag", tx.Tag,
				"error", err,
			)
		}
	}
	r.best = number
	if r.chain != nil {
		if err := r.chain.SaveBestBlock(ctx, number); err != nil {
			r.logger.ErrorContext(ctx, "failed to persist best block", "block", uint64(number), "error", err)
		}
	}
	r.mu.Unlock()

	r.metrics.IncrementBlocksProduced(uint64(number))
	r.logger.DebugContext(ctx, "block finalized",
		"block", uint64(number),
		"unsigned_included", len(included),
		"unsigned_expired", len(expired),
	)
	if r.publisher != nil {
		if err := r.publisher.Emit(ctx, events.Event{Kind: events.KindBlockFinalized, Block: number}); err != nil {
			r.logger.WarnContext(ctx, "failed to publish block event", "block", uint64(number), "error", err)
		}
	}

	select {
	case r.ticks <- number:
	default:
		r.logger.WarnContext(ctx, "off-chain worker lagging, tick dropped", "block", uint64(number))
	}
	return number
}

// Run produces a block every blockTime until ctx is cancelled.
func (r *Runtime) Run(ctx context.Context, blockTime time.Duration) error {
	ticker := time.NewTicker(blockTime)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.ProduceBlock(ctx)
		}
	}
}

// RunWorker hands finalized blocks to the off-chain worker one at a time
// until ctx is cancelled.
func (r *Runtime) RunWorker(ctx context.Context) error {
	if r.worker == nil {
		<-ctx.Done()
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case block := <-r.ticks:
			start := time.Now()
			submitted := r.worker.OnBlockFinalized(ctx, block)
			r.metrics.ObserveWorkerTick(time.Since(start).Seconds())
			if submitted > 0 {
				r.logger.InfoContext(ctx, "off-chain worker tick",
					"block", uint64(block),
					"submitted", submitted,
				)
			}
		}
	}
}
