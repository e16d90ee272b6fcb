package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"maze-rewards/internal/model"
)

const payoutColumns = `id, uid, month, coins_collected, rate, pi_amount_equivalent, status, txid, created_at, updated_at`

// PayoutRepository handles monthly payout snapshots.
type PayoutRepository struct {
	db DBTX
}

// NewPayoutRepository creates a new PayoutRepository instance.
func NewPayoutRepository(db DBTX) *PayoutRepository {
	return &PayoutRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx.
func (r *PayoutRepository) WithTx(tx pgx.Tx) *PayoutRepository {
	return &PayoutRepository{db: tx}
}

func scanPayout(row pgx.Row) (*model.MonthlyPayout, error) {
	var p model.MonthlyPayout
	err := row.Scan(
		&p.ID,
		&p.UID,
		&p.Month,
		&p.CoinsCollected,
		&p.Rate,
		&p.PiAmountEquivalent,
		&p.Status,
		&p.TxID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// InsertIfAbsent snapshots coins for (uid, month). It returns nil and no
// error when a snapshot for that pair already exists.
func (r *PayoutRepository) InsertIfAbsent(ctx context.Context, uid, month string, coins int64, rate int) (*model.MonthlyPayout, error) {
	query := `
		INSERT INTO monthly_payouts (uid, month, coins_collected, rate, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'pending', NOW(), NOW())
		ON CONFLICT (uid, month) DO NOTHING
		RETURNING ` + payoutColumns

	p, err := scanPayout(r.db.QueryRow(ctx, query, uid, month, coins, rate))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to insert payout: %w", err)
	}
	return p, nil
}

// Get retrieves the snapshot for (uid, month), or nil if absent.
func (r *PayoutRepository) Get(ctx context.Context, uid, month string) (*model.MonthlyPayout, error) {
	query := `SELECT ` + payoutColumns + ` FROM monthly_payouts WHERE uid = $1 AND month = $2`

	p, err := scanPayout(r.db.QueryRow(ctx, query, uid, month))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payout: %w", err)
	}
	return p, nil
}

// ListByMonth returns every snapshot for month, largest first.
func (r *PayoutRepository) ListByMonth(ctx context.Context, month string) ([]*model.MonthlyPayout, error) {
	query := `
		SELECT ` + payoutColumns + `
		FROM monthly_payouts
		WHERE month = $1
		ORDER BY coins_collected DESC, uid`

	rows, err := r.db.Query(ctx, query, month)
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}
	defer rows.Close()

	var payouts []*model.MonthlyPayout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payout: %w", err)
		}
		payouts = append(payouts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payouts: %w", err)
	}
	return payouts, nil
}

// CountByMonth counts snapshots for month.
func (r *PayoutRepository) CountByMonth(ctx context.Context, month string) (int64, error) {
	const query = `SELECT COUNT(*) FROM monthly_payouts WHERE month = $1`

	var n int64
	if err := r.db.QueryRow(ctx, query, month).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count payouts: %w", err)
	}
	return n, nil
}
