package main

import (
	"context"
	"database/sql"
	"time"

	"anagolay/internal/verification/service"
	"anagolay/internal/verification/store"
	dErrors "anagolay/pkg/domain-errors"
)

const defaultVerificationTxTimeout = 5 * time.Second

type verificationPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newVerificationPostgresTx(db *sql.DB) *verificationPostgresTx {
	return &verificationPostgresTx{db: db}
}

func (t *verificationPostgresTx) RunInTx(ctx context.Context, fn func(store service.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultVerificationTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(store.NewPostgresTx(tx)); err != nil {
		return err
	}
	return tx.Commit()
}
