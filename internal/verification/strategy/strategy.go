// Package strategy defines how a verification is checked and selects the
// strategy responsible for a (context, action) pair.
package strategy

import (
	"context"
	"fmt"

	"anagolay/internal/verification/models"
	"anagolay/pkg/domain"
)

// Strategy proves a holder controls a context.
type Strategy interface {
	// ID returns a unique identifier for this strategy.
	ID() string

	// Supports is a cheap pure predicate; the registry calls it for every
	// registered strategy.
	Supports(context models.Context, action models.Action) bool

	// NewRequest derives the challenge key and returns a Waiting request.
	// Unsupported contexts fail with models.ErrVerificationKeyGeneration.
	NewRequest(holder domain.AccountID, context models.Context, action models.Action) (models.Request, error)

	// Verify performs the external check. A returned error is a transport
	// problem (*Error) and never a verification outcome.
	Verify(ctx context.Context, request models.Request) (models.Status, error)
}

// Registry keeps strategies in registration order.
type Registry struct {
	strategies []Strategy
}

func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{}
	for _, s := range strategies {
		_ = r.Register(s)
	}
	return r
}

// Register appends s. Overlapping Supports predicates are not detected; the
// first registered strategy wins.
func (r *Registry) Register(s Strategy) error {
	for _, existing := range r.strategies {
		if existing.ID() == s.ID() {
			return fmt.Errorf("strategy %s already registered", s.ID())
		}
	}
	r.strategies = append(r.strategies, s)
	return nil
}

// Find returns the first strategy supporting (context, action).
func (r *Registry) Find(context models.Context, action models.Action) (Strategy, bool) {
	for _, s := range r.strategies {
		if s.Supports(context, action) {
			return s, true
		}
	}
	return nil, false
}

// All returns the registered strategies in order.
func (r *Registry) All() []Strategy {
	return append([]Strategy{}, r.strategies...)
}
