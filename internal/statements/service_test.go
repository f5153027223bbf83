package statements

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anagolay/internal/verification/models"
	"anagolay/pkg/domain"
	dErrors "anagolay/pkg/domain-errors"
	"anagolay/pkg/platform/events"
	"anagolay/pkg/platform/events/publisher"
	eventsmemory "anagolay/pkg/platform/events/store/memory"
	"anagolay/pkg/requestcontext"
)

type stubVerifications map[domain.AccountID]models.StatusKind

func (v stubVerifications) Request(_ context.Context, holder domain.AccountID, vctx models.Context) (models.Request, error) {
	kind, ok := v[holder]
	if !ok {
		return models.Request{}, models.ErrNoSuchVerificationRequest
	}
	return models.Request{Holder: holder, Context: vctx, Status: models.Status{Kind: kind}}, nil
}

func acct(b byte) domain.AccountID {
	var a domain.AccountID
	a[31] = b
	return a
}

var (
	alice = acct(1)
	bob   = acct(2)
	carol = acct(3)
	vctx  = models.URLForDomain("anagolay.network")
)

func newService(t *testing.T) (*Service, *eventsmemory.InMemoryStore) {
	t.Helper()
	store := eventsmemory.NewInMemoryStore()
	svc := NewService(WithPublisher(publisher.NewPublisher(store)))
	svc.SetVerifications(stubVerifications{
		alice: models.StatusSuccess,
		bob:   models.StatusSuccess,
		carol: models.StatusPending,
	})
	require.NoError(t, svc.TrackContext(context.Background(), vctx))
	return svc, store
}

func claim(subject string) Claim {
	return Claim{Kind: ClaimOwnership, Subject: subject, Context: vctx}
}

func TestCreateStatement(t *testing.T) {
	ctx := requestcontext.WithBlockNumber(context.Background(), 12)

	t.Run("verified holder", func(t *testing.T) {
		svc, evts := newService(t)
		stmt, err := svc.CreateStatement(ctx, domain.Signed(alice), claim("bafkr4iproof"))
		require.NoError(t, err)
		assert.Equal(t, alice, stmt.Claim.Holder)
		assert.Equal(t, domain.BlockNumber(12), stmt.CreatedAt)
		assert.Contains(t, stmt.ID.String(), "bafkr4i")

		got, err := svc.Get(ctx, stmt.ID)
		require.NoError(t, err)
		assert.Equal(t, stmt, got)

		list, err := evts.ListByAccount(ctx, alice)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, events.KindStatementCreated, list[0].Kind)
	})

	t.Run("id is derived from the claim", func(t *testing.T) {
		svc, _ := newService(t)
		a, err := svc.CreateStatement(ctx, domain.Signed(alice), claim("one"))
		require.NoError(t, err)
		b, err := svc.CreateStatement(ctx, domain.Signed(bob), claim("one"))
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID, "holder is part of the claim")

		_, err = svc.CreateStatement(ctx, domain.Signed(alice), claim("one"))
		assert.ErrorIs(t, err, ErrStatementExists)
	})

	t.Run("requires successful verification", func(t *testing.T) {
		svc, _ := newService(t)
		_, err := svc.CreateStatement(ctx, domain.Signed(carol), claim("x"))
		assert.ErrorIs(t, err, ErrVerificationRequired)
		_, err = svc.CreateStatement(ctx, domain.Signed(acct(9)), claim("x"))
		assert.ErrorIs(t, err, ErrVerificationRequired)
	})

	t.Run("rejects unsigned origin and bad claims", func(t *testing.T) {
		svc, _ := newService(t)
		_, err := svc.CreateStatement(ctx, domain.None(), claim("x"))
		assert.ErrorIs(t, err, domain.ErrBadOrigin)

		_, err = svc.CreateStatement(ctx, domain.Signed(alice), Claim{Kind: "gift", Subject: "x", Context: vctx})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = svc.CreateStatement(ctx, domain.Signed(alice), Claim{Kind: ClaimCopyright, Context: vctx})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	svc, evts := newService(t)

	a1, err := svc.CreateStatement(ctx, domain.Signed(alice), claim("a1"))
	require.NoError(t, err)
	a2, err := svc.CreateStatement(ctx, domain.Signed(alice), claim("a2"))
	require.NoError(t, err)
	b1, err := svc.CreateStatement(ctx, domain.Signed(bob), claim("b1"))
	require.NoError(t, err)

	inv, err := svc.Invalidate(ctx, models.Request{Holder: alice, Context: vctx})
	require.NoError(t, err)
	staged, err := svc.ListByContext(ctx, vctx)
	require.NoError(t, err)
	assert.Equal(t, []Statement{a1, a2, b1}, staged, "nothing is removed before commit")

	inv.Commit(ctx)
	remaining, err := svc.ListByContext(ctx, vctx)
	require.NoError(t, err)
	assert.Equal(t, []Statement{b1}, remaining)
	_, err = svc.Get(ctx, a1.ID)
	assert.ErrorIs(t, err, ErrStatementNotFound)

	revoked, err := evts.ListByAccount(ctx, alice)
	require.NoError(t, err)
	kinds := make([]events.Kind, 0, len(revoked))
	for _, e := range revoked {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []events.Kind{
		events.KindStatementCreated, events.KindStatementCreated,
		events.KindStatementRevoked, events.KindStatementRevoked,
	}, kinds)

	again, err := svc.Invalidate(ctx, models.Request{Holder: alice, Context: vctx})
	require.NoError(t, err, "already clean context is a no-op")
	again.Commit(ctx)

	_, err = svc.Invalidate(ctx, models.Request{Holder: alice, Context: models.URLForDomain("untracked.dev")})
	assert.ErrorIs(t, err, ErrContextNotIndexed)
}

func TestInvalidate_RollbackKeepsStatements(t *testing.T) {
	ctx := context.Background()
	svc, evts := newService(t)

	a1, err := svc.CreateStatement(ctx, domain.Signed(alice), claim("a1"))
	require.NoError(t, err)

	inv, err := svc.Invalidate(ctx, models.Request{Holder: alice, Context: vctx})
	require.NoError(t, err)
	inv.Rollback(ctx)
	inv.Commit(ctx)

	got, err := svc.Get(ctx, a1.ID)
	require.NoError(t, err)
	assert.Equal(t, a1, got)

	list, err := evts.ListByAccount(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, list, 1, "a rolled back invalidation publishes nothing")
}

func TestContextLookupFoldsCase(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	mixed := models.Context{Kind: models.ContextURLForDomain, Domain: "Anagolay.Network"}
	stmt, err := svc.CreateStatement(ctx, domain.Signed(alice), Claim{Kind: ClaimOwnership, Subject: "x", Context: mixed})
	require.NoError(t, err)
	assert.Equal(t, vctx, stmt.Claim.Context)

	list, err := svc.ListByContext(ctx, mixed)
	require.NoError(t, err)
	assert.Equal(t, []Statement{stmt}, list)
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	stmt, err := svc.CreateStatement(ctx, domain.Signed(alice), claim("a1"))
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Revoke(ctx, domain.Signed(bob), stmt.ID), domain.ErrBadOrigin)
	require.NoError(t, svc.Revoke(ctx, domain.Signed(alice), stmt.ID))
	assert.ErrorIs(t, svc.Revoke(ctx, domain.Signed(alice), stmt.ID), ErrStatementNotFound)

	list, err := svc.ListByContext(ctx, vctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
