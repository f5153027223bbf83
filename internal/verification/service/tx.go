package service

import (
	"context"
	"time"

	"anagolay/internal/verification/store"
	dErrors "anagolay/pkg/domain-errors"
)

// StoreTx provides a transactional boundary for store mutations.
// Implementations may wrap a database transaction or an in-memory snapshot.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(store Store) error) error
}

// defaultTxTimeout is the maximum duration of one extrinsic's transaction.
const defaultTxTimeout = 5 * time.Second

// InMemoryTx runs transactions against a staged overlay of an InMemoryStore.
type InMemoryTx struct {
	store   *store.InMemoryStore
	timeout time.Duration
}

func NewInMemoryTx(s *store.InMemoryStore) *InMemoryTx {
	return &InMemoryTx{store: s, timeout: defaultTxTimeout}
}

func (t *InMemoryTx) RunInTx(ctx context.Context, fn func(store Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	err := t.store.Atomically(ctx, func(staged *store.Staged) error {
		return fn(staged)
	})
	if err != nil && ctx.Err() != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return err
}

// directTx runs fn against the store without isolation. It is only used when
// no transaction runner is configured.
type directTx struct {
	store Store
}

func (t directTx) RunInTx(ctx context.Context, fn func(store Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(t.store)
}
