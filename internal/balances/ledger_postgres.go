package balances

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"anagolay/pkg/domain"
)

const genesisMarker = "genesis_applied"

// PostgresLedger keeps balances in the node database so reservations survive
// a restart. Every method is its own statement or transaction on the pool; it
// never joins the caller's verification transaction, which compensates
// through Unreserve and Reserve on abort instead.
type PostgresLedger struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresLedger returns a ledger over db and funds genesis the first time
// the database is used.
func NewPostgresLedger(ctx context.Context, db *sql.DB, genesis map[domain.AccountID]domain.Balance, logger *slog.Logger) (*PostgresLedger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &PostgresLedger{db: db, logger: logger}
	if err := l.applyGenesis(ctx, genesis); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *PostgresLedger) applyGenesis(ctx context.Context, genesis map[domain.AccountID]domain.Balance) error {
	sqlTx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin genesis: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	res, err := sqlTx.ExecContext(ctx,
		`INSERT INTO chain_state (name, value) VALUES ($1, 1) ON CONFLICT (name) DO NOTHING`,
		genesisMarker,
	)
	if err != nil {
		return fmt.Errorf("mark genesis: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	for who, amount := range genesis {
		if err := deposit(ctx, sqlTx, who, amount); err != nil {
			return fmt.Errorf("genesis balance for %s: %w", who, err)
		}
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit genesis: %w", err)
	}
	l.logger.InfoContext(ctx, "genesis balances applied", "accounts", len(genesis))
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func deposit(ctx context.Context, exec execer, who domain.AccountID, amount domain.Balance) error {
	if amount > math.MaxInt64 {
		return ErrOverflow
	}
	_, err := exec.ExecContext(ctx, `
		INSERT INTO balances (account, free, reserved) VALUES ($1, $2, 0)
		ON CONFLICT (account) DO UPDATE SET free = balances.free + EXCLUDED.free`,
		who.Bytes(), int64(amount),
	)
	return err
}

// Lookup returns the balances of who; an unknown account has zero balances.
func (l *PostgresLedger) Lookup(ctx context.Context, who domain.AccountID) (Account, error) {
	var free, reserved int64
	err := l.db.QueryRowContext(ctx,
		`SELECT free, reserved FROM balances WHERE account = $1`, who.Bytes(),
	).Scan(&free, &reserved)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, nil
	}
	if err != nil {
		return Account{}, fmt.Errorf("load balance: %w", err)
	}
	return Account{Free: domain.Balance(free), Reserved: domain.Balance(reserved)}, nil
}

// TotalIssuance is the sum of every account's total balance.
func (l *PostgresLedger) TotalIssuance(ctx context.Context) (domain.Balance, error) {
	var total int64
	if err := l.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(free + reserved), 0)::BIGINT FROM balances`,
	).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum balances: %w", err)
	}
	return domain.Balance(total), nil
}

func (l *PostgresLedger) Deposit(ctx context.Context, who domain.AccountID, amount domain.Balance) error {
	return deposit(ctx, l.db, who, amount)
}

func (l *PostgresLedger) Reserve(ctx context.Context, who domain.AccountID, amount domain.Balance) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE balances SET free = free - $2, reserved = reserved + $2
		WHERE account = $1 AND free >= $2`,
		who.Bytes(), int64(amount),
	)
	if err != nil {
		return fmt.Errorf("reserve: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

// Unreserve moves up to amount from reserved back to free and returns the part
// that could not be unreserved. A database error moves nothing.
func (l *PostgresLedger) Unreserve(ctx context.Context, who domain.AccountID, amount domain.Balance) domain.Balance {
	var moved int64
	err := l.db.QueryRowContext(ctx, `
		UPDATE balances b
		SET reserved = b.reserved - m.moved, free = b.free + m.moved
		FROM (
			SELECT account, LEAST(reserved, $2) AS moved
			FROM balances WHERE account = $1 FOR UPDATE
		) m
		WHERE b.account = m.account
		RETURNING m.moved`,
		who.Bytes(), int64(amount),
	).Scan(&moved)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return amount
	case err != nil:
		l.logger.ErrorContext(ctx, "failed to unreserve balance",
			"account", who.String(),
			"amount", uint64(amount),
			"error", err,
		)
		return amount
	}
	return amount - domain.Balance(moved)
}

// RepatriateReserved moves amount from the reserved balance of from into the
// free balance of to. Nothing moves unless the whole amount is reserved.
func (l *PostgresLedger) RepatriateReserved(ctx context.Context, from, to domain.AccountID, amount domain.Balance) error {
	sqlTx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin repatriate: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	res, err := sqlTx.ExecContext(ctx,
		`UPDATE balances SET reserved = reserved - $2 WHERE account = $1 AND reserved >= $2`,
		from.Bytes(), int64(amount),
	)
	if err != nil {
		return fmt.Errorf("debit reserved: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrInsufficientReserved
	}
	if err := deposit(ctx, sqlTx, to, amount); err != nil {
		return fmt.Errorf("credit free: %w", err)
	}
	return sqlTx.Commit()
}
