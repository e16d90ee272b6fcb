package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maze-rewards/internal/model"
	"maze-rewards/internal/payout"
	"maze-rewards/internal/testutil"
)

const testMonth = "2026-01"

func TestAccountRepository_Upsert(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := NewAccountRepository(pool)
	ctx := context.Background()

	acc, created, err := repo.Upsert(ctx, "u1", "alice", testMonth)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "u1", acc.UID)
	assert.Equal(t, "alice", acc.Username)
	assert.Equal(t, int64(0), acc.Coins)
	assert.Equal(t, testMonth, acc.MonthlyKey)
	assert.Nil(t, acc.LastLoginDay)
	assert.Equal(t, payout.Breakdown{}, acc.MonthlyRateBreakdown)

	// Second sight refreshes username only
	acc, created, err = repo.Upsert(ctx, "u1", "alice2", "2026-02")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "alice2", acc.Username)
	assert.Equal(t, testMonth, acc.MonthlyKey)

	// Username owned by another uid
	_, _, err = repo.Upsert(ctx, "u2", "alice2", testMonth)
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestAccountRepository_GetByUID(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := NewAccountRepository(pool)
	ctx := context.Background()

	_, _, err := repo.Upsert(ctx, "u1", "alice", testMonth)
	require.NoError(t, err)

	acc, err := repo.GetByUID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", acc.Username)

	acc, err = repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", acc.UID)

	_, err = repo.GetByUID(ctx, "missing")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestAccountRepository_ApplyDeltaClampsAtZero(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := NewAccountRepository(pool)
	ctx := context.Background()

	_, _, err := repo.Upsert(ctx, "u1", "alice", testMonth)
	require.NoError(t, err)

	acc, err := repo.ApplyDelta(ctx, "u1", 30, CounterDelta{CoinsEarned: 30, AdsWatched: 1, FreeSkips: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(30), acc.Coins)
	assert.Equal(t, int64(30), acc.MonthlyCoinsEarned)
	assert.Equal(t, int64(1), acc.MonthlyAdsWatched)
	assert.Equal(t, int64(1), acc.FreeSkipsUsed)

	acc, err = repo.ApplyDelta(ctx, "u1", -100, CounterDelta{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), acc.Coins)

	_, err = repo.ApplyDelta(ctx, "missing", 1, CounterDelta{})
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestAccountRepository_RollMonth(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := NewAccountRepository(pool)
	ctx := context.Background()

	_, _, err := repo.Upsert(ctx, "u1", "alice", testMonth)
	require.NoError(t, err)
	_, err = repo.ApplyDelta(ctx, "u1", 10, CounterDelta{CoinsEarned: 10, LoginDays: 1, LevelsCompleted: 4})
	require.NoError(t, err)

	acc, rolled, err := repo.RollMonth(ctx, "u1", testMonth)
	require.NoError(t, err)
	assert.False(t, rolled)
	assert.Equal(t, int64(4), acc.MonthlyLevelsCompleted)

	acc, rolled, err = repo.RollMonth(ctx, "u1", "2026-02")
	require.NoError(t, err)
	assert.True(t, rolled)
	assert.Equal(t, "2026-02", acc.MonthlyKey)
	assert.Equal(t, int64(0), acc.MonthlyLevelsCompleted)
	assert.Equal(t, int64(0), acc.MonthlyLoginDays)
	assert.Equal(t, int64(10), acc.Coins, "rollover keeps the balance")

	_, _, err = repo.RollMonth(ctx, "missing", "2026-02")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestAccountRepository_StoreRate(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := NewAccountRepository(pool)
	ctx := context.Background()

	_, _, err := repo.Upsert(ctx, "u1", "alice", testMonth)
	require.NoError(t, err)

	bd := payout.Breakdown{Base: 50, LoginDays: 5, Streak: 2}
	require.NoError(t, repo.StoreRate(ctx, "u1", 57, bd))

	acc, err := repo.GetByUID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 57, acc.MonthlyFinalRate)
	assert.Equal(t, bd, acc.MonthlyRateBreakdown)

	assert.ErrorIs(t, repo.StoreRate(ctx, "missing", 1, bd), ErrAccountNotFound)
}

func TestAccountRepository_ListingQueries(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := NewAccountRepository(pool)
	ctx := context.Background()

	for i, name := range []string{"alice", "bob", "carol"} {
		uid := "u" + name
		_, _, err := repo.Upsert(ctx, uid, name, testMonth)
		require.NoError(t, err)
		_, err = repo.ApplyDelta(ctx, uid, int64((i+1)*100), CounterDelta{})
		require.NoError(t, err)
	}

	top, err := repo.Top(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "carol", top[0].Username)
	assert.Equal(t, "bob", top[1].Username)

	found, err := repo.Search(ctx, SubsequencePattern("ac"), 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "alice", found[0].Username)

	accounts, coins, err := repo.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), accounts)
	assert.Equal(t, int64(600), coins)

	online, err := repo.CountOnline(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(3), online)

	page, err := repo.List(ctx, 2, 1)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	uids, err := repo.UIDsWithCoins(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ualice", "ubob", "ucarol"}, uids)

	require.NoError(t, repo.Delete(ctx, "ubob"))
	assert.ErrorIs(t, repo.Delete(ctx, "ubob"), ErrAccountNotFound)
}

func TestClaimRepository_InsertIsIdempotent(t *testing.T) {
	pool := testutil.NewPool(t)
	accounts := NewAccountRepository(pool)
	claims := NewClaimRepository(pool)
	ctx := context.Background()

	_, _, err := accounts.Upsert(ctx, "u1", "alice", testMonth)
	require.NoError(t, err)

	inserted, err := claims.Insert(ctx, "u1", model.ClaimAdReward, "ad:u1:n1", 50, time.Now())
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = claims.Insert(ctx, "u1", model.ClaimAdReward, "ad:u1:n1", 50, time.Now())
	require.NoError(t, err)
	assert.False(t, inserted)

	exists, err := claims.NonceExists(ctx, "ad:u1:n1")
	require.NoError(t, err)
	assert.True(t, exists)

	c, err := claims.GetByNonce(ctx, "ad:u1:n1")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, model.ClaimAdReward, c.Type)
	assert.Equal(t, int64(50), c.Amount)

	last, err := claims.LastClaimAt(ctx, "u1", model.ClaimAdReward)
	require.NoError(t, err)
	require.NotNil(t, last)

	last, err = claims.LastClaimAt(ctx, "u1", model.ClaimDailyLogin)
	require.NoError(t, err)
	assert.Nil(t, last)

	n, err := claims.CountForUID(ctx, "u1", model.ClaimAdReward)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestLevelRewardRepository_OncePerLevel(t *testing.T) {
	pool := testutil.NewPool(t)
	accounts := NewAccountRepository(pool)
	levels := NewLevelRewardRepository(pool)
	ctx := context.Background()

	_, _, err := accounts.Upsert(ctx, "u1", "alice", testMonth)
	require.NoError(t, err)

	inserted, err := levels.Insert(ctx, "u1", 7, 1)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = levels.Insert(ctx, "u1", 7, 1)
	require.NoError(t, err)
	assert.False(t, inserted)

	exists, err := levels.Exists(ctx, "u1", 7)
	require.NoError(t, err)
	assert.True(t, exists)

	list, err := levels.ListByUID(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 7, list[0].Level)
}

func TestTransactionRepository_CreateAndSeries(t *testing.T) {
	pool := testutil.NewPool(t)
	accounts := NewAccountRepository(pool)
	txs := NewTransactionRepository(pool)
	ctx := context.Background()

	_, _, err := accounts.Upsert(ctx, "u1", "alice", testMonth)
	require.NoError(t, err)

	ref := "daily:u1:2026-01-05"
	tx, err := txs.Create(ctx, "u1", 5, model.ReasonDailyLogin, 0, 5, &ref)
	require.NoError(t, err)
	assert.Equal(t, int64(5), tx.BalanceAfter)
	require.NotNil(t, tx.Ref)
	assert.Equal(t, ref, *tx.Ref)

	_, err = txs.Create(ctx, "u1", -5, model.ReasonSkipCoins, 5, 0, nil)
	require.NoError(t, err)

	list, err := txs.GetByUID(ctx, "u1", 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, model.ReasonSkipCoins, list[0].Reason)

	today := time.Now().UTC().Truncate(24 * time.Hour)
	series, err := txs.DailySeries(ctx, today.AddDate(0, 0, -2), today.AddDate(0, 0, 1), model.EarningReasons(), model.SpendingReasons())
	require.NoError(t, err)
	require.Len(t, series, 3)
	last := series[len(series)-1]
	assert.True(t, last.Day.Equal(today))
	assert.Equal(t, int64(5), last.CoinsEarned)
	assert.Equal(t, int64(5), last.CoinsSpent)
	assert.Equal(t, int64(1), last.ActiveUsers)
	assert.Equal(t, int64(0), series[0].ActiveUsers)
}

func TestPayoutRepository_InsertIfAbsent(t *testing.T) {
	pool := testutil.NewPool(t)
	accounts := NewAccountRepository(pool)
	payouts := NewPayoutRepository(pool)
	ctx := context.Background()

	_, _, err := accounts.Upsert(ctx, "u1", "alice", testMonth)
	require.NoError(t, err)

	p, err := payouts.InsertIfAbsent(ctx, "u1", testMonth, 120, 60)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(120), p.CoinsCollected)
	assert.Equal(t, model.PayoutPending, p.Status)
	assert.Nil(t, p.PiAmountEquivalent)

	p, err = payouts.InsertIfAbsent(ctx, "u1", testMonth, 999, 60)
	require.NoError(t, err)
	assert.Nil(t, p)

	got, err := payouts.Get(ctx, "u1", testMonth)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(120), got.CoinsCollected)

	n, err := payouts.CountByMonth(ctx, testMonth)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Purging the account cascades to its snapshots
	require.NoError(t, accounts.Delete(ctx, "u1"))
	list, err := payouts.ListByMonth(ctx, testMonth)
	require.NoError(t, err)
	assert.Empty(t, list)
}
