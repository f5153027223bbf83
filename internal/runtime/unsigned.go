package runtime

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"anagolay/internal/verification/models"
	"anagolay/pkg/domain"
	dErrors "anagolay/pkg/domain-errors"
)

var (
	ErrStatementsDisabled = dErrors.New(dErrors.CodeUnavailable, "statements module is not enabled")

	ErrUnsignedCallShape = dErrors.New(dErrors.CodeBadRequest, "unsigned call must carry a terminal verification status")
	ErrStaleSubmission   = dErrors.New(dErrors.CodeInvalidState, "verification request is not pending")
	ErrDuplicateUnsigned = dErrors.New(dErrors.CodeConflict, "a submission for this request is already pooled")
	ErrPoolFull          = dErrors.New(dErrors.CodeLimitExceeded, "unsigned transaction pool is full")
)

const (
	// UnsignedPriority ranks worker submissions above ordinary traffic.
	UnsignedPriority uint64 = 1 << 20

	reasonShape     = "call_shape"
	reasonSignature = "signature"
	reasonStale     = "stale"
	reasonDuplicate = "duplicate"
	reasonPoolFull  = "pool_full"
	reasonExpired   = "expired"
)

// ValidTransaction describes an accepted unsigned submission.
type ValidTransaction struct {
	Priority   uint64
	Tag        string
	ValidUntil domain.BlockNumber
}

type pooledTx struct {
	ValidTransaction
	submission models.StatusSubmission
	seq        uint64
}

type unsignedPool struct {
	limit int
	seq   uint64
	txs   []pooledTx
}

func newUnsignedPool(limit int) *unsignedPool {
	return &unsignedPool{limit: limit}
}

func (p *unsignedPool) len() int {
	return len(p.txs)
}

func (p *unsignedPool) has(tag string) bool {
	return slices.ContainsFunc(p.txs, func(tx pooledTx) bool { return tx.Tag == tag })
}

func (p *unsignedPool) add(valid ValidTransaction, sub models.StatusSubmission) error {
	if p.has(valid.Tag) {
		return ErrDuplicateUnsigned
	}
	if len(p.txs) >= p.limit {
		return ErrPoolFull
	}
	p.seq++
	p.txs = append(p.txs, pooledTx{ValidTransaction: valid, submission: sub, seq: p.seq})
	return nil
}

// take removes up to limit transactions includable in block, highest priority
// first and FIFO within a priority, and drops the expired ones.
func (p *unsignedPool) take(block domain.BlockNumber, limit int) (included, expired []pooledTx) {
	live := p.txs[:0]
	for _, tx := range p.txs {
		if tx.ValidUntil < block {
			expired = append(expired, tx)
			continue
		}
		live = append(live, tx)
	}
	slices.SortStableFunc(live, func(a, b pooledTx) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	n := min(limit, len(live))
	included = slices.Clone(live[:n])
	p.txs = slices.Clone(live[n:])
	return included, expired
}

func unsignedTag(req models.Request) string {
	return req.Holder.String() + "/" + req.Context.Key()
}

// ValidateUnsigned is the acceptance rule for the unsigned pool. Only
// submit_verification_status with a terminal status, a trusted worker
// signature and a request that is still pending is accepted.
func (r *Runtime) ValidateUnsigned(ctx context.Context, sub models.StatusSubmission) (ValidTransaction, string, error) {
	req := sub.Data.Request
	if !req.Status.IsTerminal() || sub.Signature == "" {
		return ValidTransaction{}, reasonShape, ErrUnsignedCallShape
	}
	if err := r.authority.Verify(sub.Data, sub.Signature); err != nil {
		return ValidTransaction{}, reasonSignature, err
	}
	current, err := r.verification.Request(ctx, req.Holder, req.Context)
	if err != nil {
		if errors.Is(err, models.ErrNoSuchVerificationRequest) {
			return ValidTransaction{}, reasonStale, ErrStaleSubmission
		}
		return ValidTransaction{}, "", err
	}
	if current.Status.Kind != models.StatusPending {
		return ValidTransaction{}, reasonStale, ErrStaleSubmission
	}
	return ValidTransaction{
		Priority:   UnsignedPriority,
		Tag:        unsignedTag(req),
		ValidUntil: r.BestBlock() + r.longevity,
	}, "", nil
}

// SubmitUnsigned validates sub and adds it to the pool for the next block.
func (r *Runtime) SubmitUnsigned(ctx context.Context, sub models.StatusSubmission) error {
	valid, reason, err := r.ValidateUnsigned(ctx, sub)
	if err == nil {
		r.poolMu.Lock()
		err = r.pool.add(valid, sub)
		size := r.pool.len()
		r.poolMu.Unlock()
		r.metrics.SetUnsignedPoolSize(size)
		switch {
		case errors.Is(err, ErrDuplicateUnsigned):
			reason = reasonDuplicate
		case errors.Is(err, ErrPoolFull):
			reason = reasonPoolFull
		}
	}
	if err != nil {
		if reason != "" {
			r.metrics.IncrementUnsignedRejected(reason)
		}
		r.logger.WarnContext(ctx, "unsigned submission rejected",
			"holder", sub.Data.Request.Holder.String(),
			"context", sub.Data.Request.Context.String(),
			"reason", reason,
			"error", err,
		)
		return err
	}
	return nil
}

// PoolSize is the number of submissions waiting for inclusion.
func (r *Runtime) PoolSize() int {
	r.poolMu.Lock()
	defer r.poolMu.Unlock()
	return r.pool.len()
}
