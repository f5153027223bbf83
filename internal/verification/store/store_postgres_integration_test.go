//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"

	"anagolay/internal/verification/models"
	"anagolay/internal/verification/store"
	"anagolay/pkg/domain"
	"anagolay/pkg/platform/sentinel"
	"anagolay/pkg/platform/tx"
	"anagolay/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(),
		"verification_requests", "verification_holders", "verification_contexts")
	s.Require().NoError(err)
}

func account(b byte) domain.AccountID {
	var a domain.AccountID
	a[0] = b
	return a
}

func (s *PostgresStoreSuite) TestRequestRoundTrip() {
	ctx := context.Background()
	alice := account(1)
	vctx := models.URLForDomainWithSubdomain("anagolay.network", "www")

	_, err := s.store.FindRequest(ctx, alice, vctx)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(s.store.AddHolder(ctx, vctx, alice, 4))
	s.Require().NoError(s.store.SaveRequest(ctx, models.Request{
		Context: vctx,
		Action:  models.ActionDNSTXTRecord,
		Status:  models.Waiting(),
		Holder:  alice,
		Key:     "anagolay-domain-verification=abc",
	}))

	id := "txt-record"
	s.Require().NoError(s.store.SaveRequest(ctx, models.Request{
		Context: vctx,
		Action:  models.ActionDNSTXTRecord,
		Status:  models.Failure("no TXT record"),
		Holder:  alice,
		Key:     "anagolay-domain-verification=abc",
		ID:      &id,
	}))

	got, err := s.store.FindRequest(ctx, alice, vctx)
	s.Require().NoError(err)
	s.Equal(models.Failure("no TXT record"), got.Status)
	s.Equal(vctx, got.Context)
	s.Require().NotNil(got.ID)
	s.Equal("txt-record", *got.ID)
}

func (s *PostgresStoreSuite) TestHolderIndexOrderAndBound() {
	ctx := context.Background()
	a := models.URLForDomain("a.io")
	b := models.URLForDomain("b.io")

	s.Require().NoError(s.store.AddHolder(ctx, a, account(2), 2))
	s.Require().NoError(s.store.AddHolder(ctx, a, account(1), 2))
	s.Require().NoError(s.store.AddHolder(ctx, a, account(1), 2))
	s.Require().ErrorIs(s.store.AddHolder(ctx, a, account(3), 2), sentinel.ErrLimitReached)
	s.Require().NoError(s.store.AddHolder(ctx, b, account(1), 2))

	holders, err := s.store.ListHolders(ctx, a)
	s.Require().NoError(err)
	s.Equal([]domain.AccountID{account(2), account(1)}, holders)

	contexts, err := s.store.ListContexts(ctx)
	s.Require().NoError(err)
	s.Equal([]models.Context{a, b}, contexts)

	byHolder, err := s.store.ListContextsByHolder(ctx, account(1))
	s.Require().NoError(err)
	s.Equal([]models.Context{a, b}, byHolder)
}

func (s *PostgresStoreSuite) TestTransactionRollback() {
	ctx := context.Background()
	vctx := models.URLForDomain("rollback.io")

	sqlTx, err := s.postgres.DB.BeginTx(ctx, nil)
	s.Require().NoError(err)
	txStore := store.NewPostgresTx(sqlTx)
	s.Require().NoError(txStore.AddHolder(ctx, vctx, account(1), 4))
	s.Require().NoError(sqlTx.Rollback())

	holders, err := s.store.ListHolders(ctx, vctx)
	s.Require().NoError(err)
	s.Empty(holders)
}

func (s *PostgresStoreSuite) TestJoinsContextTransaction() {
	ctx := context.Background()
	vctx := models.URLForDomain("context-tx.io")

	sqlTx, err := s.postgres.DB.BeginTx(ctx, nil)
	s.Require().NoError(err)
	txCtx := tx.WithTx(ctx, sqlTx)
	s.Require().NoError(s.store.AddHolder(txCtx, vctx, account(1), 4))
	s.Require().NoError(sqlTx.Commit())

	holders, err := s.store.ListHolders(ctx, vctx)
	s.Require().NoError(err)
	s.Len(holders, 1)
}

// TestConcurrentAddHolderRespectsBound verifies the per-context bound holds
// when many transactions race to index new holders.
func (s *PostgresStoreSuite) TestConcurrentAddHolderRespectsBound() {
	ctx := context.Background()
	vctx := models.URLForDomain("race.io")
	const limit = 3

	var wg sync.WaitGroup
	var added, rejected atomic.Int32
	for i := range 12 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sqlTx, err := s.postgres.DB.BeginTx(ctx, nil)
			if err != nil {
				return
			}
			defer func() { _ = sqlTx.Rollback() }()
			err = store.NewPostgresTx(sqlTx).AddHolder(ctx, vctx, account(byte(i+1)), limit)
			switch {
			case err == nil:
				if sqlTx.Commit() == nil {
					added.Add(1)
				}
			case errors.Is(err, sentinel.ErrLimitReached):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	holders, err := s.store.ListHolders(ctx, vctx)
	s.Require().NoError(err)
	s.Len(holders, limit)
	s.Equal(int32(limit), added.Load())
}
