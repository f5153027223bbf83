// Package domain holds the primitives shared by every runtime module: account
// identifiers, block numbers, balances and call origins.
package domain

import (
	"encoding/hex"
	"strings"

	dErrors "anagolay/pkg/domain-errors"
)

// AccountIDLength is the byte length of an account public key.
const AccountIDLength = 32

// AccountID identifies an account on the ledger. The value is the raw 32-byte
// public key; the textual form is 0x-prefixed lowercase hex.
type AccountID [AccountIDLength]byte

// ParseAccountID constructs an AccountID from external input.
//
// Errors: returns CodeInvalidInput when the value is empty, not hex, the wrong
// length, or the all-zero account.
func ParseAccountID(s string) (AccountID, error) {
	var id AccountID
	if s == "" {
		return id, dErrors.New(dErrors.CodeInvalidInput, "account id cannot be empty")
	}
	raw := strings.TrimPrefix(s, "0x")
	if len(raw) != hex.EncodedLen(AccountIDLength) {
		return id, dErrors.New(dErrors.CodeInvalidInput, "account id must be 32 bytes of hex")
	}
	if _, err := hex.Decode(id[:], []byte(raw)); err != nil {
		return AccountID{}, dErrors.New(dErrors.CodeInvalidInput, "account id must be 32 bytes of hex")
	}
	if id.IsNil() {
		return AccountID{}, dErrors.New(dErrors.CodeInvalidInput, "account id cannot be the zero account")
	}
	return id, nil
}

// AccountIDFromBytes copies a public key into an AccountID.
func AccountIDFromBytes(b []byte) (AccountID, error) {
	var id AccountID
	if len(b) != AccountIDLength {
		return id, dErrors.New(dErrors.CodeInvalidInput, "account id must be 32 bytes")
	}
	copy(id[:], b)
	return id, nil
}

// Bytes returns a copy of the raw account bytes.
func (a AccountID) Bytes() []byte {
	out := make([]byte, AccountIDLength)
	copy(out, a[:])
	return out
}

func (a AccountID) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// IsNil reports whether the account is the zero value.
func (a AccountID) IsNil() bool {
	return a == AccountID{}
}

func (a AccountID) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *AccountID) UnmarshalText(text []byte) error {
	parsed, err := ParseAccountID(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
