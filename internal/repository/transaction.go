package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"maze-rewards/internal/model"
)

// TransactionRepository handles the coin ledger. Every balance-affecting
// mutation writes exactly one row.
type TransactionRepository struct {
	db DBTX
}

// NewTransactionRepository creates a new TransactionRepository instance.
func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx.
func (r *TransactionRepository) WithTx(tx pgx.Tx) *TransactionRepository {
	return &TransactionRepository{db: tx}
}

// Create appends a ledger row.
func (r *TransactionRepository) Create(ctx context.Context, uid string, amount int64, reason string, before, after int64, ref *string) (*model.Transaction, error) {
	const query = `
		INSERT INTO coin_transactions (uid, amount, reason, balance_before, balance_after, ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, uid, amount, reason, balance_before, balance_after, ref, created_at
	`

	var tx model.Transaction
	err := r.db.QueryRow(ctx, query, uid, amount, reason, before, after, ref).Scan(
		&tx.ID,
		&tx.UID,
		&tx.Amount,
		&tx.Reason,
		&tx.BalanceBefore,
		&tx.BalanceAfter,
		&tx.Ref,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	return &tx, nil
}

// GetByUID retrieves ledger rows for an account, newest first.
func (r *TransactionRepository) GetByUID(ctx context.Context, uid string, limit, offset int) ([]*model.Transaction, error) {
	const query = `
		SELECT id, uid, amount, reason, balance_before, balance_after, ref, created_at
		FROM coin_transactions
		WHERE uid = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, uid, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*model.Transaction
	for rows.Next() {
		var tx model.Transaction
		err := rows.Scan(
			&tx.ID,
			&tx.UID,
			&tx.Amount,
			&tx.Reason,
			&tx.BalanceBefore,
			&tx.BalanceAfter,
			&tx.Ref,
			&tx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, &tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

// CountByReason counts ledger rows for uid with the given reason.
func (r *TransactionRepository) CountByReason(ctx context.Context, uid, reason string) (int64, error) {
	const query = `SELECT COUNT(*) FROM coin_transactions WHERE uid = $1 AND reason = $2`

	var n int64
	if err := r.db.QueryRow(ctx, query, uid, reason).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}

// DailySeries aggregates coins earned, coins spent and distinct active
// accounts per UTC day in [from, to). Days without activity are present
// with zero values.
func (r *TransactionRepository) DailySeries(ctx context.Context, from, to time.Time, earning, spending []string) ([]model.DailyPoint, error) {
	from = from.UTC().Truncate(24 * time.Hour)
	to = to.UTC()

	const query = `
		WITH activity AS (
			SELECT (created_at AT TIME ZONE 'UTC')::date AS day, uid
			FROM coin_transactions
			WHERE created_at >= $1 AND created_at < $2
			UNION
			SELECT (created_at AT TIME ZONE 'UTC')::date AS day, uid
			FROM reward_claims
			WHERE created_at >= $1 AND created_at < $2
		),
		ledger AS (
			SELECT (created_at AT TIME ZONE 'UTC')::date AS day,
				COALESCE(SUM(amount) FILTER (WHERE reason = ANY($3)), 0)::BIGINT AS earned,
				COALESCE(SUM(-amount) FILTER (WHERE reason = ANY($4)), 0)::BIGINT AS spent
			FROM coin_transactions
			WHERE created_at >= $1 AND created_at < $2
			GROUP BY 1
		),
		active AS (
			SELECT day, COUNT(DISTINCT uid)::BIGINT AS users
			FROM activity
			GROUP BY day
		)
		SELECT COALESCE(l.day, a.day) AS day,
			COALESCE(l.earned, 0),
			COALESCE(l.spent, 0),
			COALESCE(a.users, 0)
		FROM ledger l
		FULL OUTER JOIN active a ON a.day = l.day
		ORDER BY day
	`

	rows, err := r.db.Query(ctx, query, from, to, earning, spending)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily series: %w", err)
	}
	defer rows.Close()

	byDay := make(map[string]model.DailyPoint)
	for rows.Next() {
		var p model.DailyPoint
		if err := rows.Scan(&p.Day, &p.CoinsEarned, &p.CoinsSpent, &p.ActiveUsers); err != nil {
			return nil, fmt.Errorf("failed to scan daily point: %w", err)
		}
		byDay[p.Day.Format(time.DateOnly)] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily series: %w", err)
	}

	var series []model.DailyPoint
	for day := from; day.Before(to); day = day.AddDate(0, 0, 1) {
		p, ok := byDay[day.Format(time.DateOnly)]
		if !ok {
			p = model.DailyPoint{}
		}
		p.Day = day
		series = append(series, p)
	}
	return series, nil
}

// TopEarners ranks accounts by coins earned through the given reasons in
// [from, to). Ties are broken by uid.
func (r *TransactionRepository) TopEarners(ctx context.Context, from, to time.Time, reasons []string, limit int) ([]model.EarnerRank, error) {
	const query = `
		SELECT t.uid, a.username, SUM(t.amount)::BIGINT AS earned
		FROM coin_transactions t
		JOIN accounts a ON a.uid = t.uid
		WHERE t.created_at >= $1 AND t.created_at < $2 AND t.reason = ANY($3)
		GROUP BY t.uid, a.username
		HAVING SUM(t.amount) > 0
		ORDER BY earned DESC, t.uid
		LIMIT $4
	`

	rows, err := r.db.Query(ctx, query, from, to, reasons, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top earners: %w", err)
	}

	ranks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.EarnerRank, error) {
		var e model.EarnerRank
		err := row.Scan(&e.UID, &e.Username, &e.Earned)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan top earners: %w", err)
	}
	for i := range ranks {
		ranks[i].Rank = i + 1
	}
	return ranks, nil
}
