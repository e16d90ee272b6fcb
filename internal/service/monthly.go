package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"maze-rewards/internal/model"
	"maze-rewards/internal/pkg/lock"
	"maze-rewards/internal/repository"
)

// CloseSummary reports the outcome of a month close.
type CloseSummary struct {
	Month       string `json:"month"`
	Snapshotted int    `json:"snapshotted"`
	Skipped     int    `json:"skipped"`
	TotalCoins  int64  `json:"totalCoins"`
}

// MonthlyService closes months: it snapshots balances into payout rows and
// resets coins and monthly counters.
type MonthlyService struct {
	ledger  *Ledger
	payouts *repository.PayoutRepository
	workers int
	locks   *lock.KeyLock
}

// NewMonthlyService creates a new MonthlyService instance.
func NewMonthlyService(ledger *Ledger, payouts *repository.PayoutRepository, workers int, locks *lock.KeyLock) *MonthlyService {
	if workers < 1 {
		workers = 1
	}
	return &MonthlyService{
		ledger:  ledger,
		payouts: payouts,
		workers: workers,
		locks:   locks,
	}
}

// CloseMonthAndResetCoins snapshots every account holding coins into a
// payout row for month and zeroes it. month defaults to the current UTC month.
// Accounts already snapshotted for month are skipped, so re-running is safe.
func (s *MonthlyService) CloseMonthAndResetCoins(ctx context.Context, month string) (*CloseSummary, error) {
	if month == "" {
		month = MonthKey(s.ledger.now())
	}
	if !ValidMonth(month) {
		return nil, invalidf("month must be YYYY-MM, got %q", month)
	}

	lockKey := "close:" + month
	if !s.locks.TryLock(lockKey) {
		return nil, ErrCloseInProgress
	}
	defer s.locks.Unlock(lockKey)

	uids, err := s.ledger.accounts.UIDsWithCoins(ctx)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("month", month).
		Int("candidates", len(uids)).
		Int("workers", s.workers).
		Msg("Closing month")

	summary := &CloseSummary{Month: month}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, uid := range uids {
		uid := uid // per-iteration copy (Go 1.21 loop semantics)
		g.Go(func() error {
			coins, snapped, err := s.closeAccount(gctx, uid, month)
			if err != nil {
				return fmt.Errorf("failed to close month for %s: %w", uid, err)
			}

			mu.Lock()
			defer mu.Unlock()
			if snapped {
				summary.Snapshotted++
				summary.TotalCoins += coins
			} else {
				summary.Skipped++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Str("month", month).Msg("Month close aborted")
		return nil, err
	}

	log.Info().
		Str("month", month).
		Int("snapshotted", summary.Snapshotted).
		Int("skipped", summary.Skipped).
		Int64("total_coins", summary.TotalCoins).
		Msg("Month closed")
	return summary, nil
}

// closeAccount snapshots and resets one account in its own transaction.
func (s *MonthlyService) closeAccount(ctx context.Context, uid, month string) (int64, bool, error) {
	var coins int64
	var snapped bool

	err := s.ledger.pool.WithTx(ctx, func(tx pgx.Tx) error {
		r := s.ledger.bind(tx)

		acc, err := r.accounts.GetForUpdate(ctx, uid)
		if err != nil {
			return mapRepoErr(err)
		}
		if acc.Coins == 0 {
			return nil
		}

		rate := CalcMonthlyRate(s.ledger.policy, acc)
		p, err := s.payouts.WithTx(tx).InsertIfAbsent(ctx, uid, month, acc.Coins, rate.Rate)
		if err != nil {
			return err
		}
		if p == nil {
			return nil
		}

		reset, err := r.accounts.CloseMonth(ctx, uid, MonthKey(s.ledger.now()))
		if err != nil {
			return mapRepoErr(err)
		}
		ref := "month_close:" + month
		if err := s.ledger.record(ctx, r, uid, model.ReasonMonthClose, acc.Coins, reset.Coins, &ref); err != nil {
			return err
		}
		if _, err := s.ledger.refreshRate(ctx, r, reset); err != nil {
			return err
		}

		coins = acc.Coins
		snapped = true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return coins, snapped, nil
}

// Payouts lists the snapshots for month.
func (s *MonthlyService) Payouts(ctx context.Context, month string) ([]*model.MonthlyPayout, error) {
	if !ValidMonth(month) {
		return nil, invalidf("month must be YYYY-MM, got %q", month)
	}
	return s.payouts.ListByMonth(ctx, month)
}
