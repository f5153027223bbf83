// Package keygen derives verification challenge keys.
package keygen

import (
	"anagolay/internal/verification/models"
	"anagolay/pkg/cid"
	"anagolay/pkg/domain"
	dErrors "anagolay/pkg/domain-errors"
)

// Prefix is prepended to every key produced by CIDGenerator.
const Prefix = "anagolay-domain-verification="

// Generator turns identifying bytes into the opaque challenge a holder
// publishes. Implementations can be swapped, e.g. for short keys in tests.
type Generator interface {
	Generate(holder domain.AccountID, context models.Context, identifier []byte) (string, error)
}

// CIDGenerator renders Prefix + ToCID(identifier).
type CIDGenerator struct{}

func (CIDGenerator) Generate(_ domain.AccountID, _ models.Context, identifier []byte) (string, error) {
	id, err := cid.Generate(identifier)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, models.ErrVerificationKeyGeneration.Message)
	}
	return Prefix + id.String(), nil
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(holder domain.AccountID, context models.Context, identifier []byte) (string, error)

func (f GeneratorFunc) Generate(holder domain.AccountID, context models.Context, identifier []byte) (string, error) {
	return f(holder, context, identifier)
}
