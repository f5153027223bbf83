package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"anagolay/internal/verification/models"
	"anagolay/pkg/domain"
	"anagolay/pkg/platform/sentinel"
	"anagolay/pkg/platform/tx"
)

// PostgresStore persists verification state in PostgreSQL. A store built with
// NewPostgresTx runs every statement on that transaction; otherwise it joins a
// transaction carried in the context, or uses the pool.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func NewPostgresTx(sqlTx *sql.Tx) *PostgresStore {
	return &PostgresStore{tx: sqlTx}
}

func (s *PostgresStore) executor(ctx context.Context) tx.Executor {
	if s.tx != nil {
		return s.tx
	}
	return tx.ExecutorFrom(ctx, s.db)
}

func (s *PostgresStore) FindRequest(ctx context.Context, holder domain.AccountID, vctx models.Context) (models.Request, error) {
	row := s.executor(ctx).QueryRowContext(ctx, `
		SELECT action, status, reason, challenge_key, record_id
		FROM verification_requests
		WHERE holder = $1 AND context_key = $2`,
		holder.Bytes(), vctx.Key(),
	)
	var (
		action, status, reason, key string
		recordID                    sql.NullString
	)
	if err := row.Scan(&action, &status, &reason, &key, &recordID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Request{}, sentinel.ErrNotFound
		}
		return models.Request{}, fmt.Errorf("find verification request: %w", err)
	}
	r := models.Request{
		Context: vctx,
		Action:  models.Action(action),
		Status:  models.Status{Kind: models.StatusKind(status), Reason: reason},
		Holder:  holder,
		Key:     key,
	}
	if recordID.Valid {
		id := recordID.String
		r.ID = &id
	}
	return r, nil
}

func (s *PostgresStore) SaveRequest(ctx context.Context, request models.Request) error {
	var recordID sql.NullString
	if request.ID != nil {
		recordID = sql.NullString{String: *request.ID, Valid: true}
	}
	_, err := s.executor(ctx).ExecContext(ctx, `
		INSERT INTO verification_requests (holder, context_key, action, status, reason, challenge_key, record_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (holder, context_key) DO UPDATE SET
			action = EXCLUDED.action,
			status = EXCLUDED.status,
			reason = EXCLUDED.reason,
			challenge_key = EXCLUDED.challenge_key,
			record_id = EXCLUDED.record_id,
			updated_at = now()`,
		request.Holder.Bytes(), request.Context.Key(), string(request.Action),
		string(request.Status.Kind), request.Status.Reason, request.Key, recordID,
	)
	if err != nil {
		return fmt.Errorf("save verification request: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListHolders(ctx context.Context, vctx models.Context) ([]domain.AccountID, error) {
	rows, err := s.executor(ctx).QueryContext(ctx, `
		SELECT holder FROM verification_holders
		WHERE context_key = $1
		ORDER BY seq`,
		vctx.Key(),
	)
	if err != nil {
		return nil, fmt.Errorf("list verification holders: %w", err)
	}
	defer rows.Close()

	var out []domain.AccountID
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan verification holder: %w", err)
		}
		holder, err := domain.AccountIDFromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("decode verification holder: %w", err)
		}
		out = append(out, holder)
	}
	return out, rows.Err()
}

// AddHolder indexes holder under the context. The count check and insert run
// on one executor, so callers must hold a transaction for the bound to be exact.
func (s *PostgresStore) AddHolder(ctx context.Context, vctx models.Context, holder domain.AccountID, limit int) error {
	exec := s.executor(ctx)
	encoded, err := vctx.Encode()
	if err != nil {
		return fmt.Errorf("encode verification context: %w", err)
	}
	if _, err := exec.ExecContext(ctx, `
		INSERT INTO verification_contexts (context_key, encoded)
		VALUES ($1, $2)
		ON CONFLICT (context_key) DO NOTHING`,
		vctx.Key(), encoded,
	); err != nil {
		return fmt.Errorf("register verification context: %w", err)
	}

	// Serializes concurrent writers for the same context.
	if _, err := exec.ExecContext(ctx,
		`SELECT 1 FROM verification_contexts WHERE context_key = $1 FOR UPDATE`, vctx.Key(),
	); err != nil {
		return fmt.Errorf("lock verification context: %w", err)
	}

	var exists bool
	var count int
	if err := exec.QueryRowContext(ctx, `
		SELECT COALESCE(bool_or(holder = $2), false), count(*)
		FROM verification_holders
		WHERE context_key = $1`,
		vctx.Key(), holder.Bytes(),
	).Scan(&exists, &count); err != nil {
		return fmt.Errorf("count verification holders: %w", err)
	}
	if exists {
		return nil
	}
	if count >= limit {
		return sentinel.ErrLimitReached
	}
	if _, err := exec.ExecContext(ctx, `
		INSERT INTO verification_holders (context_key, holder)
		VALUES ($1, $2)`,
		vctx.Key(), holder.Bytes(),
	); err != nil {
		return fmt.Errorf("add verification holder: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListContexts(ctx context.Context) ([]models.Context, error) {
	return s.queryContexts(ctx, `SELECT encoded FROM verification_contexts ORDER BY seq`)
}

func (s *PostgresStore) ListContextsByHolder(ctx context.Context, holder domain.AccountID) ([]models.Context, error) {
	return s.queryContexts(ctx, `
		SELECT c.encoded
		FROM verification_contexts c
		JOIN verification_holders h ON h.context_key = c.context_key
		WHERE h.holder = $1
		ORDER BY c.seq`,
		holder.Bytes(),
	)
}

func (s *PostgresStore) queryContexts(ctx context.Context, query string, args ...any) ([]models.Context, error) {
	rows, err := s.executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list verification contexts: %w", err)
	}
	defer rows.Close()

	var out []models.Context
	for rows.Next() {
		var encoded []byte
		if err := rows.Scan(&encoded); err != nil {
			return nil, fmt.Errorf("scan verification context: %w", err)
		}
		c, err := models.DecodeContext(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode verification context: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
