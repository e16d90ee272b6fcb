package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"maze-rewards/internal/model"
	"maze-rewards/internal/payout"
	"maze-rewards/internal/pkg/db"
	"maze-rewards/internal/repository"
)

// ClaimRequest describes one idempotent reward event.
type ClaimRequest struct {
	UID   string
	Type  model.ClaimType
	Nonce string

	// Amount is the coin delta. AmountFunc, when set, replaces it and is
	// evaluated against the locked account.
	Amount     int64
	AmountFunc func(acc *model.Account) int64

	// Cooldown rejects the claim with a *CooldownError while the newest claim
	// of the same (UID, Type) is younger than it.
	Cooldown time.Duration

	// Counters are applied together with the amount.
	Counters repository.CounterDelta

	// Reason labels the coin ledger row. Defaults to Type.
	Reason string

	// OnApply runs inside the claim transaction after the balance changed.
	// It may return a refreshed account, or nil to keep acc. Returning
	// errAlreadyApplied rolls the claim back and reports it as a duplicate.
	OnApply func(ctx context.Context, tx pgx.Tx, acc *model.Account) (*model.Account, error)
}

// ClaimResult is the outcome of TryClaim. Applied is false for duplicates;
// Account is the current state either way.
type ClaimResult struct {
	Applied bool           `json:"applied"`
	Amount  int64          `json:"amount"`
	Account *model.Account `json:"user"`
}

// txRepos are repositories bound to one transaction.
type txRepos struct {
	accounts *repository.AccountRepository
	claims   *repository.ClaimRepository
	txs      *repository.TransactionRepository
}

// Ledger is the single idempotency primitive. It applies coin and counter
// deltas exactly once per nonce and keeps the coin ledger and the stored
// payout rate in step with every mutation.
type Ledger struct {
	pool     *db.Pool
	accounts *repository.AccountRepository
	claims   *repository.ClaimRepository
	levels   *repository.LevelRewardRepository
	txs      *repository.TransactionRepository
	policy   payout.Policy
	now      func() time.Time
}

// NewLedger creates a new Ledger instance.
func NewLedger(
	pool *db.Pool,
	accounts *repository.AccountRepository,
	claims *repository.ClaimRepository,
	levels *repository.LevelRewardRepository,
	txs *repository.TransactionRepository,
	policy payout.Policy,
) *Ledger {
	return &Ledger{
		pool:     pool,
		accounts: accounts,
		claims:   claims,
		levels:   levels,
		txs:      txs,
		policy:   policy.WithDefaults(),
		now:      time.Now,
	}
}

// Policy returns the payout policy rates are computed with.
func (l *Ledger) Policy() payout.Policy {
	return l.policy
}

func (l *Ledger) bind(tx pgx.Tx) txRepos {
	return txRepos{
		accounts: l.accounts.WithTx(tx),
		claims:   l.claims.WithTx(tx),
		txs:      l.txs.WithTx(tx),
	}
}

// lock loads uid FOR UPDATE and rolls its monthly key forward if needed.
func (l *Ledger) lock(ctx context.Context, r txRepos, uid string) (*model.Account, error) {
	acc, err := r.accounts.GetForUpdate(ctx, uid)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return l.rollLocked(ctx, r, acc)
}

func (l *Ledger) rollLocked(ctx context.Context, r txRepos, acc *model.Account) (*model.Account, error) {
	key := MonthKey(l.now())
	if acc.MonthlyKey == key {
		return acc, nil
	}
	rolled, ok, err := r.accounts.RollMonth(ctx, acc.UID, key)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if !ok {
		return rolled, nil
	}
	log.Info().
		Str("uid", acc.UID).
		Str("from", acc.MonthlyKey).
		Str("to", key).
		Msg("Monthly counters rolled over")
	return l.refreshRate(ctx, r, rolled)
}

// refreshRate recomputes the payout rate from acc's counters and persists it
// when it changed.
func (l *Ledger) refreshRate(ctx context.Context, r txRepos, acc *model.Account) (*model.Account, error) {
	res := payout.Calculate(l.policy, acc.Counters())
	if res.Rate == acc.MonthlyFinalRate && res.Breakdown == acc.MonthlyRateBreakdown {
		return acc, nil
	}
	if err := r.accounts.StoreRate(ctx, acc.UID, res.Rate, res.Breakdown); err != nil {
		return nil, mapRepoErr(err)
	}
	acc.MonthlyFinalRate = res.Rate
	acc.MonthlyRateBreakdown = res.Breakdown
	return acc, nil
}

// record writes the ledger row for a balance change from before to after.
func (l *Ledger) record(ctx context.Context, r txRepos, uid, reason string, before, after int64, ref *string) error {
	if before == after {
		return nil
	}
	if _, err := r.txs.Create(ctx, uid, after-before, reason, before, after, ref); err != nil {
		return err
	}
	return nil
}

// TryClaim applies req at most once per nonce. A repeated nonce returns
// Applied=false with the current account and is not an error.
func (l *Ledger) TryClaim(ctx context.Context, req ClaimRequest) (*ClaimResult, error) {
	if req.UID == "" || req.Nonce == "" {
		return nil, invalidf("uid and nonce are required")
	}
	reason := req.Reason
	if reason == "" {
		reason = string(req.Type)
	}

	var result *ClaimResult
	err := l.pool.WithTx(ctx, func(tx pgx.Tx) error {
		r := l.bind(tx)

		acc, err := l.lock(ctx, r, req.UID)
		if err != nil {
			return err
		}

		exists, err := r.claims.NonceExists(ctx, req.Nonce)
		if err != nil {
			return err
		}
		if exists {
			result = &ClaimResult{Applied: false, Account: acc}
			return nil
		}

		now := l.now()
		if req.Cooldown > 0 {
			last, err := r.claims.LastClaimAt(ctx, req.UID, req.Type)
			if err != nil {
				return err
			}
			if last != nil {
				if wait := req.Cooldown - now.Sub(*last); wait > 0 {
					return &CooldownError{Remaining: wait}
				}
			}
		}

		amount := req.Amount
		if req.AmountFunc != nil {
			amount = req.AmountFunc(acc)
		}

		inserted, err := r.claims.Insert(ctx, req.UID, req.Type, req.Nonce, amount, now)
		if err != nil {
			return err
		}
		if !inserted {
			// Same nonce committed by a transaction holding a different row lock.
			result = &ClaimResult{Applied: false, Account: acc}
			return nil
		}

		counters := req.Counters
		if amount > 0 {
			counters.CoinsEarned += amount
		}
		before := acc.Coins
		updated, err := r.accounts.ApplyDelta(ctx, req.UID, amount, counters)
		if err != nil {
			return mapRepoErr(err)
		}

		nonce := req.Nonce
		if err := l.record(ctx, r, req.UID, reason, before, updated.Coins, &nonce); err != nil {
			return err
		}

		if req.OnApply != nil {
			hooked, err := req.OnApply(ctx, tx, updated)
			if err != nil {
				return err
			}
			if hooked != nil {
				updated = hooked
			}
		}

		updated, err = l.refreshRate(ctx, r, updated)
		if err != nil {
			return err
		}

		result = &ClaimResult{Applied: true, Amount: updated.Coins - before, Account: updated}
		return nil
	})
	if errors.Is(err, errAlreadyApplied) {
		acc, gerr := l.accounts.GetByUID(ctx, req.UID)
		if gerr != nil {
			return nil, mapRepoErr(gerr)
		}
		result, err = &ClaimResult{Applied: false, Account: acc}, nil
	}
	if err != nil {
		return nil, err
	}

	if result.Applied {
		log.Info().
			Str("uid", req.UID).
			Str("type", string(req.Type)).
			Str("nonce", req.Nonce).
			Int64("amount", result.Amount).
			Int64("balance", result.Account.Coins).
			Msg("Reward claim applied")
	} else {
		log.Debug().
			Str("uid", req.UID).
			Str("nonce", req.Nonce).
			Msg("Duplicate reward claim ignored")
	}

	return result, nil
}

// AdjustCoins adds delta to the balance, clamping the result at zero.
func (l *Ledger) AdjustCoins(ctx context.Context, uid string, delta int64, reason string, ref *string) (*model.Account, error) {
	var acc *model.Account
	err := l.pool.WithTx(ctx, func(tx pgx.Tx) error {
		r := l.bind(tx)

		locked, err := l.lock(ctx, r, uid)
		if err != nil {
			return err
		}

		updated, err := r.accounts.ApplyDelta(ctx, uid, delta, repository.CounterDelta{})
		if err != nil {
			return mapRepoErr(err)
		}
		if err := l.record(ctx, r, uid, reason, locked.Coins, updated.Coins, ref); err != nil {
			return err
		}
		acc = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("uid", uid).
		Str("reason", reason).
		Int64("delta", delta).
		Int64("balance", acc.Coins).
		Msg("Coins adjusted")
	return acc, nil
}

// SpendCoins debits amount and applies counters in one step.
// Returns ErrInsufficientFunds if the balance is lower than amount.
func (l *Ledger) SpendCoins(ctx context.Context, uid string, amount int64, reason string, counters repository.CounterDelta) (*model.Account, error) {
	if amount <= 0 {
		return nil, invalidf("spend amount must be positive, got %d", amount)
	}

	var acc *model.Account
	err := l.pool.WithTx(ctx, func(tx pgx.Tx) error {
		r := l.bind(tx)

		locked, err := l.lock(ctx, r, uid)
		if err != nil {
			return err
		}
		if locked.Coins < amount {
			return ErrInsufficientFunds
		}

		updated, err := r.accounts.ApplyDelta(ctx, uid, -amount, counters)
		if err != nil {
			return mapRepoErr(err)
		}
		if err := l.record(ctx, r, uid, reason, locked.Coins, updated.Coins, nil); err != nil {
			return err
		}
		if !counters.IsZero() {
			if updated, err = l.refreshRate(ctx, r, updated); err != nil {
				return err
			}
		}
		acc = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("uid", uid).
		Str("reason", reason).
		Int64("amount", amount).
		Int64("balance", acc.Coins).
		Msg("Coins spent")
	return acc, nil
}

// ApplyCounters applies counter increments after check approves the locked
// account. It moves no coins.
func (l *Ledger) ApplyCounters(ctx context.Context, uid string, counters repository.CounterDelta, check func(acc *model.Account) error) (*model.Account, error) {
	var acc *model.Account
	err := l.pool.WithTx(ctx, func(tx pgx.Tx) error {
		r := l.bind(tx)

		locked, err := l.lock(ctx, r, uid)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(locked); err != nil {
				return err
			}
		}

		updated, err := r.accounts.ApplyDelta(ctx, uid, 0, counters)
		if err != nil {
			return mapRepoErr(err)
		}
		acc, err = l.refreshRate(ctx, r, updated)
		return err
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// EnsureMonthlyKey rolls uid's monthly counters over when the stored month
// tag is not the current one. Repeated calls within a month change nothing.
func (l *Ledger) EnsureMonthlyKey(ctx context.Context, uid string) (*model.Account, error) {
	acc, err := l.accounts.GetByUID(ctx, uid)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if acc.MonthlyKey == MonthKey(l.now()) {
		return acc, nil
	}

	err = l.pool.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		acc, err = l.lock(ctx, l.bind(tx), uid)
		return err
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// CalcMonthlyRate computes the payout rate for acc's monthly counters. It is
// a pure function of the counters.
func CalcMonthlyRate(policy payout.Policy, acc *model.Account) payout.Result {
	return payout.Calculate(policy, acc.Counters())
}

// RecalcAndStoreMonthlyRate recomputes and persists uid's payout rate.
func (l *Ledger) RecalcAndStoreMonthlyRate(ctx context.Context, uid string) (*model.Account, error) {
	var acc *model.Account
	err := l.pool.WithTx(ctx, func(tx pgx.Tx) error {
		r := l.bind(tx)
		locked, err := l.lock(ctx, r, uid)
		if err != nil {
			return err
		}
		acc, err = l.refreshRate(ctx, r, locked)
		return err
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}
