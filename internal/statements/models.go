// Package statements records claims made by verified holders about a
// verification context and revokes them when the verification fails.
package statements

import (
	"encoding/json"

	"anagolay/internal/verification/models"
	"anagolay/pkg/cid"
	"anagolay/pkg/domain"
	dErrors "anagolay/pkg/domain-errors"
)

type ClaimKind string

const (
	ClaimOwnership ClaimKind = "ownership"
	ClaimCopyright ClaimKind = "copyright"
)

func (k ClaimKind) Valid() bool {
	return k == ClaimOwnership || k == ClaimCopyright
}

// Claim is what a holder asserts about a subject (usually the CID of a proof).
type Claim struct {
	Kind    ClaimKind        `json:"kind" validate:"required,oneof=ownership copyright"`
	Subject string           `json:"subject" validate:"required,max=256"`
	Holder  domain.AccountID `json:"holder"`
	Context models.Context   `json:"context"`
	// Expiration is the block after which the claim no longer holds; zero
	// means it does not expire.
	Expiration domain.BlockNumber `json:"expiration,omitempty"`
}

// Bytes is the canonical encoding the statement ID is derived from.
func (c Claim) Bytes() ([]byte, error) {
	return json.Marshal(c)
}

func (c Claim) Validate() error {
	if !c.Kind.Valid() {
		return dErrors.New(dErrors.CodeValidation, "unknown claim kind")
	}
	if c.Subject == "" {
		return dErrors.New(dErrors.CodeValidation, "claim subject is required")
	}
	return c.Context.Validate()
}

type Statement struct {
	ID        cid.ID             `json:"id"`
	Claim     Claim              `json:"claim"`
	CreatedAt domain.BlockNumber `json:"created_at"`
}

var (
	ErrVerificationRequired = dErrors.New(dErrors.CodeForbidden,
		"a successful verification of the context is required")
	ErrStatementExists    = dErrors.New(dErrors.CodeConflict, "statement already exists")
	ErrStatementNotFound  = dErrors.New(dErrors.CodeNotFound, "statement not found")
	ErrContextNotIndexed  = dErrors.New(dErrors.CodeNotFound, "no statement index for verification context")
	ErrStatementIDInvalid = dErrors.New(dErrors.CodeInternal, "failed to derive statement id")
)
