package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stocksim/trading-engine/internal/model"
)

// newPostgresStore connects to TEST_DATABASE_URL, or skips.
func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := NewPostgresStore(pool)
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestPostgresStore_TradeRoundTrip(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()
	user := "pg-" + uuid.NewString()[:8]

	require.NoError(t, s.CreateAccount(ctx, &model.Account{Username: user, Balance: d(1000), CreatedAt: time.Now().UTC()}))
	t.Cleanup(func() { _ = s.DeleteAccount(context.Background(), user) })

	assert.ErrorIs(t, s.CreateAccount(ctx, &model.Account{Username: user, CreatedAt: time.Now().UTC()}), ErrAlreadyExists)

	err := s.WithTx(ctx, func(tx Tx) error {
		a, err := tx.GetAccountForUpdate(ctx, user)
		if err != nil {
			return err
		}
		a.Balance = d(500)
		if err := tx.SaveAccount(ctx, a); err != nil {
			return err
		}
		if err := tx.SavePosition(ctx, &model.Position{
			Username: user, Ticker: "aapl", AmountOwned: d(5), CostBasis: d(100), UpdatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return tx.InsertTransaction(ctx, &model.Transaction{
			ID: uuid.NewString(), Username: user, Ticker: "AAPL", Kind: model.KindBuy,
			Shares: d(5), Price: d(100), Amount: d(-500), Timestamp: time.Now().UTC(),
		})
	})
	require.NoError(t, err)

	a, err := s.GetAccount(ctx, user)
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(d(500)))

	positions, err := s.ListPositions(ctx, user)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "AAPL", positions[0].Ticker)

	ledger, err := s.ListTransactions(ctx, user)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.True(t, ledger[0].Amount.Equal(d(-500)))
}

func TestPostgresStore_AbortRollsBack(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()
	user := "pg-" + uuid.NewString()[:8]

	require.NoError(t, s.CreateAccount(ctx, &model.Account{Username: user, Balance: d(100), CreatedAt: time.Now().UTC()}))
	t.Cleanup(func() { _ = s.DeleteAccount(context.Background(), user) })

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx Tx) error {
		a, err := tx.GetAccountForUpdate(ctx, user)
		if err != nil {
			return err
		}
		a.Balance = d(0)
		if err := tx.SaveAccount(ctx, a); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	a, err := s.GetAccount(ctx, user)
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(d(100)))
}

func TestPostgresStore_FindPositionAbsent(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx Tx) error {
		p, err := tx.FindPosition(ctx, "nobody-"+uuid.NewString()[:8], "AAPL")
		require.NoError(t, err)
		assert.Nil(t, p)
		return nil
	})
	require.NoError(t, err)
}
