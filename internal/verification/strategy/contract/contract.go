// Package contract holds reusable checks every Strategy implementation must pass.
package contract

import (
	"context"
	"strings"
	"testing"

	"anagolay/internal/verification/models"
	"anagolay/internal/verification/strategy"
	"anagolay/pkg/domain"
)

// SupportCase pins the Supports answer for one (context, action) pair.
type SupportCase struct {
	Context models.Context
	Action  models.Action
	Want    bool
}

// Suite exercises a strategy's pure operations.
type Suite struct {
	Strategy  strategy.Strategy
	Holder    domain.AccountID
	Cases     []SupportCase
	KeyPrefix string
}

// Run checks that Supports matches the cases, that NewRequest produces a
// Waiting request for every supported pair, and that NewRequest rejects every
// unsupported one with models.ErrVerificationKeyGeneration.
func (s *Suite) Run(t *testing.T) {
	t.Helper()
	if s.Strategy.ID() == "" {
		t.Fatal("strategy ID not set")
	}
	for _, c := range s.Cases {
		t.Run(c.Context.String()+"/"+string(c.Action), func(t *testing.T) {
			if got := s.Strategy.Supports(c.Context, c.Action); got != c.Want {
				t.Fatalf("Supports = %v, want %v", got, c.Want)
			}

			req, err := s.Strategy.NewRequest(s.Holder, c.Context, c.Action)
			if !c.Want {
				if err == nil {
					t.Fatal("NewRequest accepted an unsupported pair")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewRequest: %v", err)
			}
			if req.Status != models.Waiting() {
				t.Errorf("status = %s, want waiting", req.Status)
			}
			if req.Holder != s.Holder {
				t.Errorf("holder = %s, want %s", req.Holder, s.Holder)
			}
			if req.Context != c.Context || req.Action != c.Action {
				t.Error("request does not carry the context and action")
			}
			if req.ID != nil {
				t.Error("new request must not carry an id")
			}
			if !strings.HasPrefix(req.Key, s.KeyPrefix) {
				t.Errorf("key %q lacks prefix %q", req.Key, s.KeyPrefix)
			}

			again, err := s.Strategy.NewRequest(s.Holder, c.Context, c.Action)
			if err != nil || again.Key != req.Key {
				t.Error("NewRequest is not deterministic")
			}
		})
	}
}

// ErrorCase expects Verify to fail with a transport error of Category.
type ErrorCase struct {
	Name     string
	Request  models.Request
	Category strategy.ErrorCategory
}

// RunErrors checks that transport failures surface as *strategy.Error and
// never as a status.
func RunErrors(t *testing.T, s strategy.Strategy, cases []ErrorCase) {
	t.Helper()
	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			status, err := s.Verify(context.Background(), c.Request)
			if err == nil {
				t.Fatalf("expected transport error, got status %s", status)
			}
			if got := strategy.GetCategory(err); got != c.Category {
				t.Errorf("category = %s, want %s", got, c.Category)
			}
		})
	}
}
