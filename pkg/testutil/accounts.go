package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"anagolay/pkg/domain"
)

// Account returns a deterministic account whose 32 bytes all equal fill.
func Account(t *testing.T, fill byte) domain.AccountID {
	t.Helper()
	b := make([]byte, domain.AccountIDLength)
	for i := range b {
		b[i] = fill
	}
	id, err := domain.AccountIDFromBytes(b)
	require.NoError(t, err)
	return id
}
