// Package service implements the verification state machine: requesting a
// verification, queueing it for the off-chain worker, accepting the worker's
// verdict and settling the registration fee.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"

	"anagolay/internal/verification/metrics"
	"anagolay/internal/verification/models"
	"anagolay/internal/verification/strategy"
	"anagolay/pkg/domain"
	dErrors "anagolay/pkg/domain-errors"
	"anagolay/pkg/platform/events"
	"anagolay/pkg/platform/sentinel"
)

var tracer = otel.Tracer("anagolay/verification/service")

// Store holds the (context -> holders) index and the (holder, context) ->
// request map.
type Store interface {
	FindRequest(ctx context.Context, holder domain.AccountID, vctx models.Context) (models.Request, error)
	SaveRequest(ctx context.Context, request models.Request) error
	ListHolders(ctx context.Context, vctx models.Context) ([]domain.AccountID, error)
	AddHolder(ctx context.Context, vctx models.Context, holder domain.AccountID, limit int) error
	ListContexts(ctx context.Context) ([]models.Context, error)
	ListContextsByHolder(ctx context.Context, holder domain.AccountID) ([]models.Context, error)
}

// Currency is the reservable balance the registration fee is taken from.
type Currency interface {
	Reserve(ctx context.Context, who domain.AccountID, amount domain.Balance) error
	Unreserve(ctx context.Context, who domain.AccountID, amount domain.Balance) domain.Balance
	RepatriateReserved(ctx context.Context, from, to domain.AccountID, amount domain.Balance) error
}

// Invalidator stages the teardown of whatever depends on a verification that
// failed. The service commits or rolls back the returned Invalidation with
// the extrinsic.
type Invalidator interface {
	Invalidate(ctx context.Context, request models.Request) (models.Invalidation, error)
}

// ContextTracker is implemented by invalidators that require a context to be
// known before Invalidate may be called for it.
type ContextTracker interface {
	TrackContext(ctx context.Context, vctx models.Context) error
}

// Indexer hands an envelope to the off-chain worker for the given block.
type Indexer interface {
	Index(ctx context.Context, block domain.BlockNumber, data models.IndexingData) error
}

// Authority checks that a status submission was signed by a trusted worker.
type Authority interface {
	Verify(data models.IndexingData, signature string) error
}

// Publisher receives runtime events after a call commits.
type Publisher interface {
	Emit(ctx context.Context, event events.Event) error
}

type Config struct {
	RegistrationFee       domain.Balance
	MaxRequestsPerContext int
}

// Service runs the verification extrinsics. Every extrinsic is atomic: an
// error leaves the store and balances as they were.
type Service struct {
	store       Store
	tx          StoreTx
	strategies  *strategy.Registry
	currency    Currency
	invalidator Invalidator
	indexer     Indexer
	authority   Authority
	cfg         Config

	publisher Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithTx replaces the default transaction boundary, e.g. with a SQL
// transaction runner.
func WithTx(tx StoreTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func NewService(
	store Store,
	strategies *strategy.Registry,
	currency Currency,
	invalidator Invalidator,
	indexer Indexer,
	authority Authority,
	cfg Config,
	opts ...Option,
) (*Service, error) {
	if store == nil || strategies == nil || currency == nil || invalidator == nil || indexer == nil || authority == nil {
		return nil, errors.New("verification service: missing dependency")
	}
	if cfg.MaxRequestsPerContext <= 0 {
		return nil, errors.New("verification service: max requests per context must be positive")
	}
	s := &Service{
		store:       store,
		strategies:  strategies,
		currency:    currency,
		invalidator: invalidator,
		indexer:     indexer,
		authority:   authority,
		cfg:         cfg,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = directTx{store: store}
	}
	return s, nil
}

// RestoreTracking registers every stored context with the invalidator and
// returns how many there were. A node restarted over a durable store calls it
// before accepting extrinsics, so Failure verdicts for requests made before the
// restart can still invalidate.
func (s *Service) RestoreTracking(ctx context.Context) (int, error) {
	tracker, ok := s.invalidator.(ContextTracker)
	if !ok {
		return 0, nil
	}
	contexts, err := s.store.ListContexts(ctx)
	if err != nil {
		return 0, translateStoreError(err, "failed to list verification contexts")
	}
	for _, vctx := range contexts {
		if err := tracker.TrackContext(ctx, vctx); err != nil {
			return 0, fmt.Errorf("%w: %v", models.ErrVerificationInvalidation, err)
		}
	}
	return len(contexts), nil
}

// translateStoreError maps store sentinels onto module errors.
func translateStoreError(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return models.ErrNoSuchVerificationRequest
	case errors.Is(err, sentinel.ErrLimitReached):
		return models.ErrMaxVerificationRequestsPerContextLimitReached
	case errors.Is(err, sentinel.ErrInvalidState):
		return models.ErrInvalidVerificationStatus
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func (s *Service) observeCall(call string, err error) {
	result := "ok"
	if err != nil {
		result = string(dErrors.CodeOf(err))
	}
	s.metrics.ObserveCall(call, result)
}

func (s *Service) emit(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish event",
			"kind", string(event.Kind),
			"error", err,
		)
	}
}
