package statements

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"anagolay/internal/verification/models"
	"anagolay/pkg/cid"
	"anagolay/pkg/domain"
	"anagolay/pkg/platform/events"
	"anagolay/pkg/requestcontext"
)

// Verifications reads the verification state of a holder.
type Verifications interface {
	Request(ctx context.Context, holder domain.AccountID, vctx models.Context) (models.Request, error)
}

type Publisher interface {
	Emit(ctx context.Context, event events.Event) error
}

// Service keeps statements in memory, indexed by verification context key.
// A context index exists from the moment a verification for it is tracked,
// and survives invalidation.
type Service struct {
	mu         sync.RWMutex
	statements map[cid.ID]Statement
	byContext  map[string][]cid.ID

	verifications Verifications
	publisher     Publisher
	logger        *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func NewService(opts ...Option) *Service {
	s := &Service{
		statements: make(map[cid.ID]Statement),
		byContext:  make(map[string][]cid.ID),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetVerifications wires the verification reader. The two services depend on
// each other, so this happens after both are built.
func (s *Service) SetVerifications(v Verifications) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifications = v
}

// CreateStatement records claim for the signer. The signer must hold a
// successful verification of the claim's context.
func (s *Service) CreateStatement(ctx context.Context, origin domain.Origin, claim Claim) (Statement, error) {
	holder, err := origin.EnsureSigned()
	if err != nil {
		return Statement{}, err
	}
	claim.Holder = holder
	claim.Context = claim.Context.Normalize()
	if err := claim.Validate(); err != nil {
		return Statement{}, err
	}

	s.mu.RLock()
	verifications := s.verifications
	s.mu.RUnlock()
	if verifications == nil {
		return Statement{}, ErrVerificationRequired
	}
	req, err := verifications.Request(ctx, holder, claim.Context)
	if errors.Is(err, models.ErrNoSuchVerificationRequest) || (err == nil && req.Status.Kind != models.StatusSuccess) {
		return Statement{}, ErrVerificationRequired
	}
	if err != nil {
		return Statement{}, err
	}

	raw, err := claim.Bytes()
	if err != nil {
		return Statement{}, ErrStatementIDInvalid
	}
	id := cid.ToCID(raw)
	if id.IsDefault() {
		return Statement{}, ErrStatementIDInvalid
	}

	stmt := Statement{ID: id, Claim: claim, CreatedAt: requestcontext.BlockNumber(ctx)}
	key := claim.Context.Key()

	s.mu.Lock()
	if _, exists := s.statements[id]; exists {
		s.mu.Unlock()
		return Statement{}, ErrStatementExists
	}
	s.statements[id] = stmt
	s.byContext[key] = append(s.byContext[key], id)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "statement created",
		"statement_id", id.String(),
		"holder", holder.String(),
		"context", claim.Context.String(),
	)
	s.emit(ctx, events.KindStatementCreated, stmt)
	return stmt, nil
}

func (s *Service) Get(_ context.Context, id cid.ID) (Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stmt, ok := s.statements[id]
	if !ok {
		return Statement{}, ErrStatementNotFound
	}
	return stmt, nil
}

// ListByContext returns the statements indexed under vctx in creation order.
func (s *Service) ListByContext(_ context.Context, vctx models.Context) ([]Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids, ok := s.byContext[vctx.Normalize().Key()]
	if !ok {
		return nil, ErrContextNotIndexed
	}
	out := make([]Statement, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.statements[id])
	}
	return out, nil
}

// Revoke removes a statement. Only its holder may revoke it.
func (s *Service) Revoke(ctx context.Context, origin domain.Origin, id cid.ID) error {
	holder, err := origin.EnsureSigned()
	if err != nil {
		return err
	}
	s.mu.Lock()
	stmt, ok := s.statements[id]
	if !ok {
		s.mu.Unlock()
		return ErrStatementNotFound
	}
	if stmt.Claim.Holder != holder {
		s.mu.Unlock()
		return domain.ErrBadOrigin
	}
	s.removeLocked(stmt)
	s.mu.Unlock()

	s.emit(ctx, events.KindStatementRevoked, stmt)
	return nil
}

// TrackContext opens the (empty) index of vctx. It is idempotent.
func (s *Service) TrackContext(_ context.Context, vctx models.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := vctx.Normalize().Key()
	if _, ok := s.byContext[key]; !ok {
		s.byContext[key] = []cid.ID{}
	}
	return nil
}

// Invalidate stages the revocation of every statement the request's holder
// made under the request's context. The statements stay in place until the
// returned Invalidation is committed. A context that was never tracked is an
// error; an index that is already empty is not.
func (s *Service) Invalidate(_ context.Context, request models.Request) (models.Invalidation, error) {
	vctx := request.Context.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids, ok := s.byContext[vctx.Key()]
	if !ok {
		return nil, ErrContextNotIndexed
	}
	inv := &invalidation{svc: s, holder: request.Holder, context: vctx}
	for _, id := range ids {
		if s.statements[id].Claim.Holder == request.Holder {
			inv.ids = append(inv.ids, id)
		}
	}
	return inv, nil
}

type invalidation struct {
	svc     *Service
	holder  domain.AccountID
	context models.Context
	ids     []cid.ID
	done    bool
}

// Commit removes the staged statements that still exist and publishes their
// revocation.
func (inv *invalidation) Commit(ctx context.Context) {
	if inv.done {
		return
	}
	inv.done = true

	s := inv.svc
	var revoked []Statement
	s.mu.Lock()
	for _, id := range inv.ids {
		stmt, ok := s.statements[id]
		if !ok {
			continue
		}
		s.removeLocked(stmt)
		revoked = append(revoked, stmt)
	}
	s.mu.Unlock()

	for _, stmt := range revoked {
		s.emit(ctx, events.KindStatementRevoked, stmt)
	}
	if len(revoked) > 0 {
		s.logger.InfoContext(ctx, "statements invalidated",
			"holder", inv.holder.String(),
			"context", inv.context.String(),
			"count", len(revoked),
		)
	}
}

func (inv *invalidation) Rollback(ctx context.Context) {
	if inv.done {
		return
	}
	inv.done = true
	if len(inv.ids) > 0 {
		inv.svc.logger.DebugContext(ctx, "statement invalidation rolled back",
			"holder", inv.holder.String(),
			"context", inv.context.String(),
			"count", len(inv.ids),
		)
	}
}

func (s *Service) removeLocked(stmt Statement) {
	delete(s.statements, stmt.ID)
	key := stmt.Claim.Context.Key()
	s.byContext[key] = slices.DeleteFunc(s.byContext[key], func(id cid.ID) bool {
		return id == stmt.ID
	})
}

func (s *Service) emit(ctx context.Context, kind events.Kind, stmt Statement) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Emit(ctx, events.Event{
		Kind:      kind,
		Block:     requestcontext.BlockNumber(ctx),
		Account:   stmt.Claim.Holder,
		Actor:     stmt.Claim.Holder,
		Context:   stmt.Claim.Context.String(),
		Key:       stmt.ID.String(),
		RequestID: requestcontext.RequestID(ctx),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to publish statement event", "error", err)
	}
}
