package offchain

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"anagolay/internal/verification/models"
	"anagolay/internal/verification/strategy"
	"anagolay/pkg/domain"
)

var tracer = otel.Tracer("anagolay/verification/offchain")

// Signer signs envelopes with the local worker key.
type Signer interface {
	Sign(data models.IndexingData) (string, error)
}

// Submitter hands a signed status submission to the unsigned transaction pool.
type Submitter interface {
	SubmitUnsigned(ctx context.Context, submission models.StatusSubmission) error
}

// Metrics receives per-envelope outcomes.
type Metrics interface {
	ObserveCheck(strategyID string, outcome string, duration time.Duration)
}

// Worker runs once per finalized block. Within one tick envelopes are handled
// strictly in order; failures are logged and dropped without retry.
type Worker struct {
	index      IndexStore
	strategies *strategy.Registry
	signer     Signer
	submitter  Submitter
	logger     *slog.Logger
	metrics    Metrics
}

type WorkerOption func(*Worker)

func WithLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithMetrics(m Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

func NewWorker(index IndexStore, strategies *strategy.Registry, signer Signer, submitter Submitter, opts ...WorkerOption) *Worker {
	w := &Worker{
		index:      index,
		strategies: strategies,
		signer:     signer,
		submitter:  submitter,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OnBlockFinalized consumes the envelopes indexed at block and submits a
// status for every pending one it could check. It returns the number of
// submissions made.
func (w *Worker) OnBlockFinalized(ctx context.Context, block domain.BlockNumber) int {
	envelopes, err := w.index.Take(ctx, IndexingKey(block))
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to read off-chain indexing data",
			"block", uint64(block),
			"error", err,
		)
		return 0
	}

	submitted := 0
	for _, data := range envelopes {
		if w.process(ctx, block, data) {
			submitted++
		}
	}
	return submitted
}

func (w *Worker) process(ctx context.Context, block domain.BlockNumber, data models.IndexingData) bool {
	req := data.Request
	ctx, span := tracer.Start(ctx, "offchain.verify")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("block", int64(block)),
		attribute.String("context", req.Context.String()),
		attribute.String("holder", req.Holder.String()),
	)

	logAttrs := []any{
		"block", uint64(block),
		"holder", req.Holder.String(),
		"verifier", data.Verifier.String(),
		"context", req.Context.String(),
	}

	if req.Status.Kind != models.StatusPending {
		w.logger.DebugContext(ctx, "skipping non-pending verification", append(logAttrs, "status", req.Status.String())...)
		return false
	}

	s, ok := w.strategies.Find(req.Context, req.Action)
	if !ok {
		w.logger.WarnContext(ctx, "no strategy for indexed verification", logAttrs...)
		return false
	}

	start := time.Now()
	status, err := s.Verify(ctx, req)
	if err != nil {
		w.observe(s.ID(), "error", time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "verify failed")
		w.logger.WarnContext(ctx, "verification check failed, leaving request pending",
			append(logAttrs,
				"error", err,
				"category", string(strategy.GetCategory(err)),
				"retryable", strategy.IsRetryable(err),
			)...)
		return false
	}
	w.observe(s.ID(), string(status.Kind), time.Since(start))

	data.Request.Status = status
	signature, err := w.signer.Sign(data)
	if err != nil {
		span.RecordError(err)
		w.logger.ErrorContext(ctx, "failed to sign verification status", append(logAttrs, "error", err)...)
		return false
	}

	if err := w.submitter.SubmitUnsigned(ctx, models.StatusSubmission{Data: data, Signature: signature}); err != nil {
		span.RecordError(err)
		w.logger.WarnContext(ctx, "failed to submit verification status", append(logAttrs, "error", err)...)
		return false
	}

	w.logger.InfoContext(ctx, "verification status submitted", append(logAttrs, "status", status.String())...)
	return true
}

func (w *Worker) observe(strategyID, outcome string, d time.Duration) {
	if w.metrics != nil {
		w.metrics.ObserveCheck(strategyID, outcome, d)
	}
}
