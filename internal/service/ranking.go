package service

import (
	"context"
	"time"

	"maze-rewards/internal/model"
	"maze-rewards/internal/repository"
)

// RankingService builds earnings leaderboards from the coin ledger.
type RankingService struct {
	txs *repository.TransactionRepository
	now func() time.Time
}

// NewRankingService creates a new RankingService instance.
func NewRankingService(ledger *Ledger) *RankingService {
	return &RankingService{
		txs: ledger.txs,
		now: func() time.Time { return ledger.now() },
	}
}

// DailyEarners ranks accounts by coins earned on the UTC day tagged day
// (YYYY-MM-DD). An empty day means today.
func (s *RankingService) DailyEarners(ctx context.Context, day string, limit int) ([]model.EarnerRank, error) {
	from := s.now().UTC().Truncate(24 * time.Hour)
	if day != "" {
		t, err := time.Parse(dayLayout, day)
		if err != nil {
			return nil, invalidf("day must be YYYY-MM-DD, got %q", day)
		}
		from = t
	}
	limit, _ = clampPage(limit, 0)
	return s.txs.TopEarners(ctx, from, from.AddDate(0, 0, 1), model.EarningReasons(), limit)
}

// MonthlyEarners ranks accounts by coins earned in the UTC month tagged month
// (YYYY-MM). An empty month means the current one.
func (s *RankingService) MonthlyEarners(ctx context.Context, month string, limit int) ([]model.EarnerRank, error) {
	if month == "" {
		month = MonthKey(s.now())
	}
	from, err := time.Parse(monthLayout, month)
	if err != nil || !ValidMonth(month) {
		return nil, invalidf("month must be YYYY-MM, got %q", month)
	}
	limit, _ = clampPage(limit, 0)
	return s.txs.TopEarners(ctx, from, from.AddDate(0, 1, 0), model.EarningReasons(), limit)
}
