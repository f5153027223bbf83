// Package balances keeps free and reserved balances of the native currency.
//
// Only the reservable-currency surface the verification module needs is
// implemented: reserve, unreserve and repatriate-reserved, plus deposits for
// genesis funding.
package balances

import (
	"context"
	"fmt"
	"sync"

	"anagolay/pkg/domain"
	dErrors "anagolay/pkg/domain-errors"
)

var (
	ErrInsufficientBalance  = dErrors.New(dErrors.CodeInsufficientFunds, "insufficient free balance")
	ErrInsufficientReserved = dErrors.New(dErrors.CodeInsufficientFunds, "insufficient reserved balance")
	ErrOverflow             = dErrors.New(dErrors.CodeInvariantViolation, "balance overflow")
)

// Account is the balance pair of one account.
type Account struct {
	Free     domain.Balance `json:"free"`
	Reserved domain.Balance `json:"reserved"`
}

// Total is free plus reserved.
func (a Account) Total() domain.Balance {
	return a.Free + a.Reserved
}

// InMemoryLedger keeps balances for the life of the process.
type InMemoryLedger struct {
	mu       sync.RWMutex
	accounts map[domain.AccountID]Account
	issuance domain.Balance
}

func NewInMemoryLedger(genesis map[domain.AccountID]domain.Balance) (*InMemoryLedger, error) {
	l := &InMemoryLedger{accounts: make(map[domain.AccountID]Account)}
	for who, amount := range genesis {
		if err := l.Deposit(context.Background(), who, amount); err != nil {
			return nil, fmt.Errorf("genesis balance for %s: %w", who, err)
		}
	}
	return l, nil
}

func (l *InMemoryLedger) Account(_ context.Context, who domain.AccountID) Account {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.accounts[who]
}

// Lookup is Account with the error return shared by durable ledgers.
func (l *InMemoryLedger) Lookup(ctx context.Context, who domain.AccountID) (Account, error) {
	return l.Account(ctx, who), nil
}

func (l *InMemoryLedger) Free(ctx context.Context, who domain.AccountID) domain.Balance {
	return l.Account(ctx, who).Free
}

func (l *InMemoryLedger) Reserved(ctx context.Context, who domain.AccountID) domain.Balance {
	return l.Account(ctx, who).Reserved
}

// TotalIssuance is the sum of every account's total balance.
func (l *InMemoryLedger) TotalIssuance() domain.Balance {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.issuance
}

// Deposit mints amount into who's free balance.
func (l *InMemoryLedger) Deposit(_ context.Context, who domain.AccountID, amount domain.Balance) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.issuance+amount < l.issuance {
		return ErrOverflow
	}
	acc := l.accounts[who]
	acc.Free += amount
	l.accounts[who] = acc
	l.issuance += amount
	return nil
}

// Reserve moves amount from free to reserved. It fails without change when the
// free balance is short.
func (l *InMemoryLedger) Reserve(_ context.Context, who domain.AccountID, amount domain.Balance) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.accounts[who]
	if acc.Free < amount {
		return ErrInsufficientBalance
	}
	acc.Free -= amount
	acc.Reserved += amount
	l.accounts[who] = acc
	return nil
}

// Unreserve moves up to amount from reserved back to free and returns the part
// that could not be unreserved.
func (l *InMemoryLedger) Unreserve(_ context.Context, who domain.AccountID, amount domain.Balance) domain.Balance {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.accounts[who]
	moved := min(amount, acc.Reserved)
	acc.Reserved -= moved
	acc.Free += moved
	l.accounts[who] = acc
	return amount - moved
}

// RepatriateReserved moves amount from the reserved balance of from into the
// free balance of to. Nothing moves unless the whole amount is reserved.
func (l *InMemoryLedger) RepatriateReserved(_ context.Context, from, to domain.AccountID, amount domain.Balance) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	src := l.accounts[from]
	if src.Reserved < amount {
		return ErrInsufficientReserved
	}
	src.Reserved -= amount
	l.accounts[from] = src

	dst := l.accounts[to]
	dst.Free += amount
	l.accounts[to] = dst
	return nil
}
