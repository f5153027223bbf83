package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"anagolay/pkg/domain"
	dErrors "anagolay/pkg/domain-errors"
)

func TestStatus(t *testing.T) {
	assert.False(t, Waiting().IsTerminal())
	assert.False(t, Pending().IsTerminal())
	assert.True(t, Success().IsTerminal())
	assert.True(t, Failure("no record").IsTerminal())
	assert.True(t, Failure("").IsFailure())
	assert.Equal(t, "failure(no record)", Failure("no record").String())
	assert.True(t, StatusPending.Valid())
	assert.False(t, StatusKind("done").Valid())
}

func TestRequest_CloneCopiesID(t *testing.T) {
	id := "record-1"
	r := Request{ID: &id}
	c := r.Clone()
	*c.ID = "changed"
	assert.Equal(t, "record-1", *r.ID)
}

func TestRequestQuery_MatchesAndPaginate(t *testing.T) {
	var alice, bob domain.AccountID
	alice[0], bob[0] = 1, 2
	pending := StatusPending

	reqs := []Request{
		{Holder: alice, Status: Waiting()},
		{Holder: bob, Status: Pending()},
		{Holder: alice, Status: Pending()},
	}

	q := RequestQuery{Status: &pending, Holder: &alice}
	var matched []Request
	for _, r := range reqs {
		if q.Matches(r) {
			matched = append(matched, r)
		}
	}
	assert.Len(t, matched, 1)

	assert.Len(t, Paginate(reqs, 0, 2), 2)
	assert.Len(t, Paginate(reqs, 2, 10), 1)
	assert.Empty(t, Paginate(reqs, 3, 10))
	assert.Empty(t, Paginate(reqs, 0, 0))
}

func TestErrors_CarryCodes(t *testing.T) {
	wrapped := fmt.Errorf("request: %w", ErrVerificationAlreadyIssued)
	assert.True(t, errors.Is(wrapped, ErrVerificationAlreadyIssued))
	assert.True(t, dErrors.HasCode(wrapped, dErrors.CodeConflict))
	assert.True(t, dErrors.HasCode(ErrInvalidVerificationStatus, dErrors.CodeInvalidState))
	assert.True(t, dErrors.HasCode(ErrCannotReserveRegistrationFee, dErrors.CodeInsufficientFunds))
}
