package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"maze-rewards/internal/model"
	"maze-rewards/internal/repository"
)

// AccountService handles account bootstrap and player-facing reads.
type AccountService struct {
	ledger *Ledger
	levels *repository.LevelRewardRepository
	txs    *repository.TransactionRepository
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(ledger *Ledger) *AccountService {
	return &AccountService{
		ledger: ledger,
		levels: ledger.levels,
		txs:    ledger.txs,
	}
}

// EnsureAccount upserts the account for a verified identity, rolls its
// monthly counters if a new month started and records the heartbeat.
// Returns ErrConflict if username belongs to another uid.
func (s *AccountService) EnsureAccount(ctx context.Context, uid, username string) (*model.Account, error) {
	if uid == "" {
		return nil, invalidf("uid is required")
	}
	if username == "" {
		username = uid
	}

	acc, created, err := s.ledger.accounts.Upsert(ctx, uid, username, MonthKey(s.ledger.now()))
	if err != nil {
		return nil, mapRepoErr(err)
	}

	if created {
		log.Info().Str("uid", uid).Str("username", username).Msg("Account created")
		return s.ledger.RecalcAndStoreMonthlyRate(ctx, uid)
	}
	if acc.MonthlyKey != MonthKey(s.ledger.now()) {
		return s.ledger.EnsureMonthlyKey(ctx, uid)
	}
	return acc, nil
}

// GetAccount retrieves an account by uid.
func (s *AccountService) GetAccount(ctx context.Context, uid string) (*model.Account, error) {
	acc, err := s.ledger.accounts.GetByUID(ctx, uid)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return acc, nil
}

// Transactions returns a page of uid's coin ledger, newest first.
func (s *AccountService) Transactions(ctx context.Context, uid string, limit, offset int) ([]*model.Transaction, error) {
	limit, offset = clampPage(limit, offset)
	return s.txs.GetByUID(ctx, uid, limit, offset)
}

// Levels returns every level uid was rewarded for.
func (s *AccountService) Levels(ctx context.Context, uid string) ([]model.LevelReward, error) {
	return s.levels.ListByUID(ctx, uid)
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
