package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"maze-rewards/internal/model"
	"maze-rewards/internal/payout"
	"maze-rewards/internal/pkg/db"
)

const usernameConstraint = "accounts_username_key"

const accountColumns = `
	uid, username, coins,
	free_skips_used, free_hints_used, free_restarts_used,
	monthly_coins_earned, monthly_login_days, monthly_levels_completed,
	monthly_skips_used, monthly_hints_used, monthly_restarts_used,
	monthly_ads_watched, monthly_valid_invites, monthly_best_streak, monthly_key,
	login_streak, last_login_day,
	monthly_final_rate, monthly_rate_breakdown,
	last_seen_at, created_at, updated_at`

// monthlyReset is the SET list that zeroes every per-month counter.
const monthlyReset = `
	monthly_coins_earned = 0,
	monthly_login_days = 0,
	monthly_levels_completed = 0,
	monthly_skips_used = 0,
	monthly_hints_used = 0,
	monthly_restarts_used = 0,
	monthly_ads_watched = 0,
	monthly_valid_invites = 0,
	monthly_best_streak = 0,
	monthly_final_rate = 0,
	monthly_rate_breakdown = '{}'::jsonb`

// CounterDelta lists counter increments applied together with a coin delta.
type CounterDelta struct {
	CoinsEarned     int64
	LoginDays       int64
	LevelsCompleted int64
	SkipsUsed       int64
	HintsUsed       int64
	RestartsUsed    int64
	AdsWatched      int64
	ValidInvites    int64
	FreeSkips       int64
	FreeHints       int64
	FreeRestarts    int64
}

// IsZero reports whether d changes nothing.
func (d CounterDelta) IsZero() bool {
	return d == CounterDelta{}
}

// AccountRepository handles account persistence.
type AccountRepository struct {
	db DBTX
}

// NewAccountRepository creates a new AccountRepository instance.
func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx.
func (r *AccountRepository) WithTx(tx pgx.Tx) *AccountRepository {
	return &AccountRepository{db: tx}
}

// scanAccount scans accountColumns followed by any extra destinations.
func scanAccount(row pgx.Row, extra ...any) (*model.Account, error) {
	var a model.Account
	dest := []any{
		&a.UID,
		&a.Username,
		&a.Coins,
		&a.FreeSkipsUsed,
		&a.FreeHintsUsed,
		&a.FreeRestartsUsed,
		&a.MonthlyCoinsEarned,
		&a.MonthlyLoginDays,
		&a.MonthlyLevelsCompleted,
		&a.MonthlySkipsUsed,
		&a.MonthlyHintsUsed,
		&a.MonthlyRestartsUsed,
		&a.MonthlyAdsWatched,
		&a.MonthlyValidInvites,
		&a.MonthlyBestStreak,
		&a.MonthlyKey,
		&a.LoginStreak,
		&a.LastLoginDay,
		&a.MonthlyFinalRate,
		&a.MonthlyRateBreakdown,
		&a.LastSeenAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &a, nil
}

func collectAccounts(rows pgx.Rows) ([]*model.Account, error) {
	defer rows.Close()

	var accounts []*model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return accounts, nil
}

func (r *AccountRepository) getOne(ctx context.Context, query string, args ...any) (*model.Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return a, nil
}

// Upsert creates the account on first sight or refreshes its username and
// heartbeat. created reports whether a new row was inserted.
// Returns ErrUsernameTaken if another uid already owns username.
func (r *AccountRepository) Upsert(ctx context.Context, uid, username, monthKey string) (*model.Account, bool, error) {
	query := `
		INSERT INTO accounts (uid, username, monthly_key)
		VALUES ($1, $2, $3)
		ON CONFLICT (uid) DO UPDATE
		SET username = EXCLUDED.username, last_seen_at = NOW(), updated_at = NOW()
		RETURNING ` + accountColumns + `, (xmax = 0) AS inserted`

	var created bool
	a, err := scanAccount(r.db.QueryRow(ctx, query, uid, username, monthKey), &created)
	if err != nil {
		if db.IsUniqueViolation(err, usernameConstraint) {
			return nil, false, ErrUsernameTaken
		}
		return nil, false, fmt.Errorf("failed to upsert account: %w", err)
	}
	return a, created, nil
}

// GetByUID retrieves an account by uid.
// Returns ErrAccountNotFound if the account does not exist.
func (r *AccountRepository) GetByUID(ctx context.Context, uid string) (*model.Account, error) {
	a, err := r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE uid = $1`, uid)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, err
}

// GetByUsername retrieves an account by its exact username.
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*model.Account, error) {
	a, err := r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("failed to get account by username: %w", err)
	}
	return a, err
}

// GetForUpdate retrieves an account and locks its row until the surrounding
// transaction ends. Must be called on a repository bound with WithTx.
func (r *AccountRepository) GetForUpdate(ctx context.Context, uid string) (*model.Account, error) {
	a, err := r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE uid = $1 FOR UPDATE`, uid)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}
	return a, err
}

// ApplyDelta adds coinDelta to the balance, clamped at zero, and applies the
// counter increments in d.
func (r *AccountRepository) ApplyDelta(ctx context.Context, uid string, coinDelta int64, d CounterDelta) (*model.Account, error) {
	query := `
		UPDATE accounts
		SET coins = GREATEST(coins + $2, 0),
			monthly_coins_earned = monthly_coins_earned + $3,
			monthly_login_days = monthly_login_days + $4,
			monthly_levels_completed = monthly_levels_completed + $5,
			monthly_skips_used = monthly_skips_used + $6,
			monthly_hints_used = monthly_hints_used + $7,
			monthly_restarts_used = monthly_restarts_used + $8,
			monthly_ads_watched = monthly_ads_watched + $9,
			monthly_valid_invites = monthly_valid_invites + $10,
			free_skips_used = free_skips_used + $11,
			free_hints_used = free_hints_used + $12,
			free_restarts_used = free_restarts_used + $13,
			updated_at = NOW()
		WHERE uid = $1
		RETURNING ` + accountColumns

	a, err := r.getOne(ctx, query, uid, coinDelta,
		d.CoinsEarned, d.LoginDays, d.LevelsCompleted,
		d.SkipsUsed, d.HintsUsed, d.RestartsUsed,
		d.AdsWatched, d.ValidInvites,
		d.FreeSkips, d.FreeHints, d.FreeRestarts,
	)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("failed to apply account delta: %w", err)
	}
	return a, err
}

// UpdateLoginStreak stores the current streak and login day and raises the
// monthly best streak if needed.
func (r *AccountRepository) UpdateLoginStreak(ctx context.Context, uid string, streak int64, day string) (*model.Account, error) {
	query := `
		UPDATE accounts
		SET login_streak = $2,
			last_login_day = $3,
			monthly_best_streak = GREATEST(monthly_best_streak, $2),
			updated_at = NOW()
		WHERE uid = $1
		RETURNING ` + accountColumns

	a, err := r.getOne(ctx, query, uid, streak, day)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("failed to update login streak: %w", err)
	}
	return a, err
}

// RollMonth resets the monthly counters and stamps monthKey if the stored key
// differs. rolled is false when the account was already on monthKey.
func (r *AccountRepository) RollMonth(ctx context.Context, uid, monthKey string) (a *model.Account, rolled bool, err error) {
	query := `
		UPDATE accounts
		SET monthly_key = $2,` + monthlyReset + `,
			updated_at = NOW()
		WHERE uid = $1 AND monthly_key <> $2
		RETURNING ` + accountColumns

	a, err = r.getOne(ctx, query, uid, monthKey)
	if err == nil {
		return a, true, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, false, fmt.Errorf("failed to roll monthly key: %w", err)
	}

	a, err = r.GetByUID(ctx, uid)
	if err != nil {
		return nil, false, err
	}
	return a, false, nil
}

// CloseMonth zeroes the balance and the monthly counters and stamps monthKey.
func (r *AccountRepository) CloseMonth(ctx context.Context, uid, monthKey string) (*model.Account, error) {
	query := `
		UPDATE accounts
		SET coins = 0,
			monthly_key = $2,` + monthlyReset + `,
			updated_at = NOW()
		WHERE uid = $1
		RETURNING ` + accountColumns

	a, err := r.getOne(ctx, query, uid, monthKey)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("failed to close month for account: %w", err)
	}
	return a, err
}

// StoreRate persists the computed monthly payout rate and its breakdown.
func (r *AccountRepository) StoreRate(ctx context.Context, uid string, rate int, breakdown payout.Breakdown) error {
	const query = `
		UPDATE accounts
		SET monthly_final_rate = $2, monthly_rate_breakdown = $3, updated_at = NOW()
		WHERE uid = $1
	`

	tag, err := r.db.Exec(ctx, query, uid, rate, breakdown)
	if err != nil {
		return fmt.Errorf("failed to store monthly rate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Touch records activity for the online listing.
func (r *AccountRepository) Touch(ctx context.Context, uid string) error {
	const query = `UPDATE accounts SET last_seen_at = NOW() WHERE uid = $1`

	tag, err := r.db.Exec(ctx, query, uid)
	if err != nil {
		return fmt.Errorf("failed to touch account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Search returns up to limit accounts whose uid or username matches the ILIKE pattern.
func (r *AccountRepository) Search(ctx context.Context, pattern string, limit int) ([]*model.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE username ILIKE $1 OR uid ILIKE $1
		ORDER BY last_seen_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search accounts: %w", err)
	}
	return collectAccounts(rows)
}

// List returns a page of accounts, newest first.
func (r *AccountRepository) List(ctx context.Context, limit, offset int) ([]*model.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		ORDER BY created_at DESC, uid
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return collectAccounts(rows)
}

// Top returns the richest accounts.
func (r *AccountRepository) Top(ctx context.Context, limit int) ([]*model.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		ORDER BY coins DESC, uid
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top accounts: %w", err)
	}
	return collectAccounts(rows)
}

// Online returns accounts seen at or after since, most recent first.
func (r *AccountRepository) Online(ctx context.Context, since time.Time, limit int) ([]*model.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE last_seen_at >= $1
		ORDER BY last_seen_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list online accounts: %w", err)
	}
	return collectAccounts(rows)
}

// CountOnline counts accounts seen at or after since.
func (r *AccountRepository) CountOnline(ctx context.Context, since time.Time) (int64, error) {
	const query = `SELECT COUNT(*) FROM accounts WHERE last_seen_at >= $1`

	var n int64
	if err := r.db.QueryRow(ctx, query, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count online accounts: %w", err)
	}
	return n, nil
}

// Totals returns the number of accounts and the coins in circulation.
func (r *AccountRepository) Totals(ctx context.Context) (accounts int64, coins int64, err error) {
	const query = `SELECT COUNT(*), COALESCE(SUM(coins), 0)::BIGINT FROM accounts`

	if err := r.db.QueryRow(ctx, query).Scan(&accounts, &coins); err != nil {
		return 0, 0, fmt.Errorf("failed to get account totals: %w", err)
	}
	return accounts, coins, nil
}

// UIDsWithCoins lists every account holding a non-zero balance.
func (r *AccountRepository) UIDsWithCoins(ctx context.Context) ([]string, error) {
	const query = `SELECT uid FROM accounts WHERE coins > 0 ORDER BY uid`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts with coins: %w", err)
	}
	uids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to collect uids: %w", err)
	}
	return uids, nil
}

// Delete purges an account. Claims, level markers, ledger rows and payouts
// cascade with it.
func (r *AccountRepository) Delete(ctx context.Context, uid string) error {
	const query = `DELETE FROM accounts WHERE uid = $1`

	tag, err := r.db.Exec(ctx, query, uid)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}
