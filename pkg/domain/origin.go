package domain

import dErrors "anagolay/pkg/domain-errors"

// OriginKind tells who is dispatching a call.
type OriginKind uint8

const (
	// OriginNone is the origin of unsigned transactions. Only locally validated
	// calls (the off-chain worker callback) may use it.
	OriginNone OriginKind = iota
	// OriginSigned is a call signed by an account.
	OriginSigned
	// OriginRoot is the privileged origin used by genesis and governance.
	OriginRoot
)

func (k OriginKind) String() string {
	switch k {
	case OriginNone:
		return "none"
	case OriginSigned:
		return "signed"
	case OriginRoot:
		return "root"
	default:
		return "unknown"
	}
}

// Origin is the authorization attached to a dispatched call.
type Origin struct {
	Kind    OriginKind
	Account AccountID
}

// Signed returns the origin of a call signed by account.
func Signed(account AccountID) Origin {
	return Origin{Kind: OriginSigned, Account: account}
}

// None returns the unsigned origin.
func None() Origin {
	return Origin{Kind: OriginNone}
}

// ErrBadOrigin is returned when a call is dispatched from an origin it does not accept.
var ErrBadOrigin = dErrors.New(dErrors.CodeForbidden, "bad origin")

// EnsureSigned returns the signing account or ErrBadOrigin.
func (o Origin) EnsureSigned() (AccountID, error) {
	if o.Kind != OriginSigned || o.Account.IsNil() {
		return AccountID{}, ErrBadOrigin
	}
	return o.Account, nil
}

// EnsureNone returns ErrBadOrigin unless the origin is unsigned.
func (o Origin) EnsureNone() error {
	if o.Kind != OriginNone {
		return ErrBadOrigin
	}
	return nil
}
