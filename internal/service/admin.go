package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sahilm/fuzzy"

	"maze-rewards/internal/model"
	"maze-rewards/internal/repository"
)

const (
	// searchCandidates caps how many ILIKE matches are ranked in memory.
	searchCandidates = 500
	maxChartDays     = 90
)

// AdminService provides read-only reporting plus the admin mutations.
type AdminService struct {
	ledger       *Ledger
	claims       *repository.ClaimRepository
	monthly      *MonthlyService
	ranking      *RankingService
	onlineWindow time.Duration
}

// NewAdminService creates a new AdminService instance.
func NewAdminService(ledger *Ledger, monthly *MonthlyService, onlineWindow time.Duration) *AdminService {
	if onlineWindow <= 0 {
		onlineWindow = 5 * time.Minute
	}
	return &AdminService{
		ledger:       ledger,
		claims:       ledger.claims,
		monthly:      monthly,
		ranking:      NewRankingService(ledger),
		onlineWindow: onlineWindow,
	}
}

// Stats returns the dashboard summary.
func (s *AdminService) Stats(ctx context.Context) (*model.Stats, error) {
	now := s.ledger.now()

	accounts, coins, err := s.ledger.accounts.Totals(ctx)
	if err != nil {
		return nil, err
	}
	online, err := s.ledger.accounts.CountOnline(ctx, now.Add(-s.onlineWindow))
	if err != nil {
		return nil, err
	}
	claims, err := s.claims.CountSince(ctx, now.UTC().Truncate(24*time.Hour))
	if err != nil {
		return nil, err
	}

	return &model.Stats{
		Accounts:    accounts,
		TotalCoins:  coins,
		Online:      online,
		ClaimsToday: claims,
	}, nil
}

// accountSource adapts accounts for fuzzy ranking.
type accountSource []*model.Account

func (a accountSource) String(i int) string {
	return strings.ToLower(a[i].Username + " " + a[i].UID)
}

func (a accountSource) Len() int {
	return len(a)
}

// SearchAccounts pages through accounts. An empty query lists everything,
// newest first. Otherwise candidates are prefiltered in SQL and ranked by
// fuzzy match score. total is the number of matches before paging.
func (s *AdminService) SearchAccounts(ctx context.Context, query string, limit, offset int) ([]*model.Account, int, error) {
	limit, offset = clampPage(limit, offset)
	query = strings.ToLower(strings.TrimSpace(query))

	if query == "" {
		accounts, err := s.ledger.accounts.List(ctx, limit, offset)
		if err != nil {
			return nil, 0, err
		}
		total, _, err := s.ledger.accounts.Totals(ctx)
		if err != nil {
			return nil, 0, err
		}
		return accounts, int(total), nil
	}

	candidates, err := s.ledger.accounts.Search(ctx, repository.SubsequencePattern(query), searchCandidates)
	if err != nil {
		return nil, 0, err
	}

	ranked := RankAccounts(query, candidates)
	total := len(ranked)
	if offset >= total {
		return []*model.Account{}, total, nil
	}
	end := min(offset+limit, total)
	return ranked[offset:end], total, nil
}

// RankAccounts orders accounts by fuzzy match quality against query,
// dropping those that do not match at all.
func RankAccounts(query string, accounts []*model.Account) []*model.Account {
	src := accountSource(accounts)
	matches := fuzzy.FindFrom(strings.ToLower(query), src)

	out := make([]*model.Account, len(matches))
	for i, m := range matches {
		out[i] = src[m.Index]
	}
	return out
}

// FindAccount resolves a uid or an exact username.
func (s *AdminService) FindAccount(ctx context.Context, key string) (*model.Account, error) {
	acc, err := s.ledger.accounts.GetByUID(ctx, key)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, err
	}
	acc, err = s.ledger.accounts.GetByUsername(ctx, key)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return acc, nil
}

// AdjustCoins applies an admin balance correction. The result is clamped at zero.
func (s *AdminService) AdjustCoins(ctx context.Context, uid string, delta int64) (*model.Account, error) {
	if delta == 0 {
		return nil, invalidf("delta must not be zero")
	}
	return s.ledger.AdjustCoins(ctx, uid, delta, model.ReasonAdminAdjust, nil)
}

// PurgeAccount deletes an account and everything that references it.
func (s *AdminService) PurgeAccount(ctx context.Context, uid string) error {
	if err := s.ledger.accounts.Delete(ctx, uid); err != nil {
		return mapRepoErr(err)
	}
	log.Warn().Str("uid", uid).Msg("Account purged")
	return nil
}

// Online lists accounts active within the online window.
func (s *AdminService) Online(ctx context.Context, limit int) ([]*model.Account, error) {
	limit, _ = clampPage(limit, 0)
	return s.ledger.accounts.Online(ctx, s.ledger.now().Add(-s.onlineWindow), limit)
}

// Charts returns the daily series for the last days UTC days, today included.
func (s *AdminService) Charts(ctx context.Context, days int) ([]model.DailyPoint, error) {
	if days <= 0 {
		days = 7
	}
	if days > maxChartDays {
		return nil, invalidf("days must be at most %d", maxChartDays)
	}
	today := s.ledger.now().UTC().Truncate(24 * time.Hour)
	from := today.AddDate(0, 0, -(days - 1))
	to := today.AddDate(0, 0, 1)
	return s.ledger.txs.DailySeries(ctx, from, to, model.EarningReasons(), model.SpendingReasons())
}

// Top returns the richest accounts.
func (s *AdminService) Top(ctx context.Context, limit int) ([]*model.Account, error) {
	limit, _ = clampPage(limit, 0)
	return s.ledger.accounts.Top(ctx, limit)
}

// Earners returns the earnings leaderboard for period: a YYYY-MM month, a
// YYYY-MM-DD day, or today when empty.
func (s *AdminService) Earners(ctx context.Context, period string, limit int) ([]model.EarnerRank, error) {
	if len(period) == len(monthLayout) {
		return s.ranking.MonthlyEarners(ctx, period, limit)
	}
	return s.ranking.DailyEarners(ctx, period, limit)
}

// CloseMonth runs the month close.
func (s *AdminService) CloseMonth(ctx context.Context, month string) (*CloseSummary, error) {
	return s.monthly.CloseMonthAndResetCoins(ctx, month)
}

// Payouts lists the payout snapshots for month, defaulting to the current one.
func (s *AdminService) Payouts(ctx context.Context, month string) ([]*model.MonthlyPayout, error) {
	if month == "" {
		month = MonthKey(s.ledger.now())
	}
	return s.monthly.Payouts(ctx, month)
}
