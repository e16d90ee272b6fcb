package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"maze-rewards/internal/model"
)

// ClaimRepository handles reward claim persistence. Claims are append-only.
type ClaimRepository struct {
	db DBTX
}

// NewClaimRepository creates a new ClaimRepository instance.
func NewClaimRepository(db DBTX) *ClaimRepository {
	return &ClaimRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx.
func (r *ClaimRepository) WithTx(tx pgx.Tx) *ClaimRepository {
	return &ClaimRepository{db: tx}
}

// NonceExists reports whether a claim with nonce was already recorded.
func (r *ClaimRepository) NonceExists(ctx context.Context, nonce string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM reward_claims WHERE nonce = $1)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, nonce).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check claim nonce: %w", err)
	}
	return exists, nil
}

// Insert records a claim made at at. inserted is false when the nonce
// already exists.
func (r *ClaimRepository) Insert(ctx context.Context, uid string, claimType model.ClaimType, nonce string, amount int64, at time.Time) (bool, error) {
	const query = `
		INSERT INTO reward_claims (uid, type, nonce, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (nonce) DO NOTHING
	`

	tag, err := r.db.Exec(ctx, query, uid, string(claimType), nonce, amount, at)
	if err != nil {
		return false, fmt.Errorf("failed to insert claim: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetByNonce retrieves a claim by nonce. Returns nil if absent.
func (r *ClaimRepository) GetByNonce(ctx context.Context, nonce string) (*model.RewardClaim, error) {
	const query = `
		SELECT id, uid, type, nonce, amount, created_at
		FROM reward_claims
		WHERE nonce = $1
	`

	var c model.RewardClaim
	err := r.db.QueryRow(ctx, query, nonce).Scan(
		&c.ID,
		&c.UID,
		&c.Type,
		&c.Nonce,
		&c.Amount,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}
	return &c, nil
}

// LastClaimAt returns the time of the newest claim of claimType for uid, or
// nil if there is none.
func (r *ClaimRepository) LastClaimAt(ctx context.Context, uid string, claimType model.ClaimType) (*time.Time, error) {
	const query = `
		SELECT MAX(created_at)
		FROM reward_claims
		WHERE uid = $1 AND type = $2
	`

	var last *time.Time
	if err := r.db.QueryRow(ctx, query, uid, string(claimType)).Scan(&last); err != nil {
		return nil, fmt.Errorf("failed to get last claim time: %w", err)
	}
	return last, nil
}

// CountForUID counts claims of claimType recorded for uid.
func (r *ClaimRepository) CountForUID(ctx context.Context, uid string, claimType model.ClaimType) (int64, error) {
	const query = `SELECT COUNT(*) FROM reward_claims WHERE uid = $1 AND type = $2`

	var n int64
	if err := r.db.QueryRow(ctx, query, uid, string(claimType)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count claims: %w", err)
	}
	return n, nil
}

// CountSince counts claims of any type created at or after since.
func (r *ClaimRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	const query = `SELECT COUNT(*) FROM reward_claims WHERE created_at >= $1`

	var n int64
	if err := r.db.QueryRow(ctx, query, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count recent claims: %w", err)
	}
	return n, nil
}

// LevelRewardRepository handles the once-per-level markers.
type LevelRewardRepository struct {
	db DBTX
}

// NewLevelRewardRepository creates a new LevelRewardRepository instance.
func NewLevelRewardRepository(db DBTX) *LevelRewardRepository {
	return &LevelRewardRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx.
func (r *LevelRewardRepository) WithTx(tx pgx.Tx) *LevelRewardRepository {
	return &LevelRewardRepository{db: tx}
}

// Insert records that level was rewarded for uid. inserted is false when the
// marker already exists.
func (r *LevelRewardRepository) Insert(ctx context.Context, uid string, level int, amount int64) (bool, error) {
	const query = `
		INSERT INTO level_rewards (uid, level, amount, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (uid, level) DO NOTHING
	`

	tag, err := r.db.Exec(ctx, query, uid, level, amount)
	if err != nil {
		return false, fmt.Errorf("failed to insert level reward: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Exists reports whether level was already rewarded for uid.
func (r *LevelRewardRepository) Exists(ctx context.Context, uid string, level int) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM level_rewards WHERE uid = $1 AND level = $2)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, uid, level).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check level reward: %w", err)
	}
	return exists, nil
}

// ListByUID returns every rewarded level for uid in ascending order.
func (r *LevelRewardRepository) ListByUID(ctx context.Context, uid string) ([]model.LevelReward, error) {
	const query = `
		SELECT uid, level, amount, created_at
		FROM level_rewards
		WHERE uid = $1
		ORDER BY level
	`

	rows, err := r.db.Query(ctx, query, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to list level rewards: %w", err)
	}
	defer rows.Close()

	var out []model.LevelReward
	for rows.Next() {
		var lr model.LevelReward
		if err := rows.Scan(&lr.UID, &lr.Level, &lr.Amount, &lr.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan level reward: %w", err)
		}
		out = append(out, lr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate level rewards: %w", err)
	}
	return out, nil
}
