// Package events defines the runtime events emitted when verification and
// statement state changes. Events are transport-agnostic so stores and sinks
// (in-memory history, Kafka) can fan them out.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"anagolay/pkg/domain"
)

// Kind names what happened.
type Kind string

const (
	// Verification lifecycle
	KindVerificationRequested  Kind = "verification_requested"
	KindVerificationPending    Kind = "verification_pending"
	KindVerificationSuccessful Kind = "verification_successful"
	KindVerificationFailed     Kind = "verification_failed"

	// Statements
	KindStatementCreated Kind = "statement_created"
	KindStatementRevoked Kind = "statement_revoked"

	// Ledger
	KindBlockFinalized Kind = "block_finalized"
)

// Event is a single runtime event. Account is the account the event is about
// (the holder for verification events); Actor is whoever triggered it when
// that differs (the verifier).
type Event struct {
	ID        uuid.UUID          `json:"id"`
	Kind      Kind               `json:"kind"`
	Block     domain.BlockNumber `json:"block"`
	Timestamp time.Time          `json:"timestamp"`
	Account   domain.AccountID   `json:"account"`
	Actor     domain.AccountID   `json:"actor"`
	Context   string             `json:"context,omitempty"`
	Status    string             `json:"status,omitempty"`
	Reason    string             `json:"reason,omitempty"`
	Key       string             `json:"key,omitempty"`
	RequestID string             `json:"request_id,omitempty"`
}

// Store persists events and serves per-account history.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByAccount(ctx context.Context, account domain.AccountID) ([]Event, error)
}

// Sink receives a copy of every published event (e.g. a Kafka topic).
type Sink interface {
	Append(ctx context.Context, event Event) error
}
