package service

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"maze-rewards/internal/config"
	"maze-rewards/internal/model"
	"maze-rewards/internal/repository"
)

// RewardService implements the reward engine on top of the Ledger.
type RewardService struct {
	ledger      *Ledger
	accounts    *repository.AccountRepository
	rewards     config.RewardsConfig
	consumables config.ConsumablesConfig
}

// NewRewardService creates a new RewardService instance.
func NewRewardService(
	ledger *Ledger,
	accounts *repository.AccountRepository,
	rewards config.RewardsConfig,
	consumables config.ConsumablesConfig,
) *RewardService {
	return &RewardService{
		ledger:      ledger,
		accounts:    accounts,
		rewards:     rewards,
		consumables: consumables,
	}
}

// ClaimDailyLogin pays the daily bonus once per UTC calendar day and
// advances the login streak.
func (s *RewardService) ClaimDailyLogin(ctx context.Context, uid string) (*ClaimResult, error) {
	day := DayKey(s.ledger.now())

	return s.ledger.TryClaim(ctx, ClaimRequest{
		UID:      uid,
		Type:     model.ClaimDailyLogin,
		Nonce:    DailyNonce(uid, day),
		Amount:   s.rewards.DailyLogin,
		Counters: repository.CounterDelta{LoginDays: 1},
		Reason:   model.ReasonDailyLogin,
		OnApply: func(ctx context.Context, tx pgx.Tx, acc *model.Account) (*model.Account, error) {
			streak := NextStreak(acc.LastLoginDay, acc.LoginStreak, day)
			updated, err := s.ledger.accounts.WithTx(tx).UpdateLoginStreak(ctx, acc.UID, streak, day)
			return updated, mapRepoErr(err)
		},
	})
}

// ClaimLevelComplete pays the level bonus at most once per (uid, level),
// independent of date.
func (s *RewardService) ClaimLevelComplete(ctx context.Context, uid string, level int) (*ClaimResult, error) {
	if level < 0 {
		return nil, invalidf("level must not be negative, got %d", level)
	}

	amount := s.rewards.LevelComplete
	return s.ledger.TryClaim(ctx, ClaimRequest{
		UID:      uid,
		Type:     model.ClaimLevelComplete,
		Nonce:    LevelNonce(uid, level),
		Amount:   amount,
		Counters: repository.CounterDelta{LevelsCompleted: 1},
		Reason:   model.ReasonLevelComplete,
		OnApply: func(ctx context.Context, tx pgx.Tx, acc *model.Account) (*model.Account, error) {
			inserted, err := s.ledger.levels.WithTx(tx).Insert(ctx, acc.UID, level, amount)
			if err != nil {
				return nil, err
			}
			if !inserted {
				return nil, errAlreadyApplied
			}
			return nil, nil
		},
	})
}

// ClaimAdReward pays one ad impression identified by the client nonce. The
// amount decays with the ads already watched this month when configured.
func (s *RewardService) ClaimAdReward(ctx context.Context, uid, clientNonce string) (*ClaimResult, error) {
	if clientNonce == "" {
		return nil, invalidf("nonce is required")
	}

	ad := s.rewards.Ad
	return s.ledger.TryClaim(ctx, ClaimRequest{
		UID:   uid,
		Type:  model.ClaimAdReward,
		Nonce: AdNonce(uid, clientNonce),
		AmountFunc: func(acc *model.Account) int64 {
			return AdAmount(ad, acc.MonthlyAdsWatched)
		},
		Cooldown: time.Duration(ad.CooldownSeconds) * time.Second,
		Counters: repository.CounterDelta{AdsWatched: 1},
		Reason:   model.ReasonAdReward,
	})
}

// RecordInvite credits inviterUID once for bringing in inviteeUID.
func (s *RewardService) RecordInvite(ctx context.Context, inviterUID, inviteeUID string) (*ClaimResult, error) {
	if inviterUID == "" || inviteeUID == "" {
		return nil, invalidf("inviter and invitee are required")
	}
	if inviterUID == inviteeUID {
		return nil, invalidf("cannot invite yourself")
	}
	if _, err := s.accounts.GetByUID(ctx, inviteeUID); err != nil {
		return nil, mapRepoErr(err)
	}

	return s.ledger.TryClaim(ctx, ClaimRequest{
		UID:      inviterUID,
		Type:     model.ClaimInvite,
		Nonce:    InviteNonce(inviteeUID),
		Amount:   s.rewards.Invite,
		Counters: repository.CounterDelta{ValidInvites: 1},
		Reason:   model.ReasonInvite,
	})
}

// ConsumeResult is the outcome of Consume.
type ConsumeResult struct {
	OK      bool              `json:"ok"`
	Mode    model.ConsumeMode `json:"mode"`
	Already bool              `json:"already"`
	Account *model.Account    `json:"user"`
}

// usageDelta is the monthly usage increment for one use of kind.
func usageDelta(kind model.ConsumableKind) repository.CounterDelta {
	switch kind {
	case model.ConsumableSkip:
		return repository.CounterDelta{SkipsUsed: 1}
	case model.ConsumableHint:
		return repository.CounterDelta{HintsUsed: 1}
	default:
		return repository.CounterDelta{RestartsUsed: 1}
	}
}

// freeDelta is usageDelta plus the lifetime free counter for kind.
func freeDelta(kind model.ConsumableKind) repository.CounterDelta {
	d := usageDelta(kind)
	switch kind {
	case model.ConsumableSkip:
		d.FreeSkips = 1
	case model.ConsumableHint:
		d.FreeHints = 1
	default:
		d.FreeRestarts = 1
	}
	return d
}

// Consume spends one skip, hint or restart in the mode chosen by the caller.
// There is no fallback between modes.
func (s *RewardService) Consume(ctx context.Context, uid string, kind model.ConsumableKind, mode model.ConsumeMode, nonce string) (*ConsumeResult, error) {
	if !kind.Valid() {
		return nil, invalidf("unknown consumable %q", kind)
	}
	if !mode.Valid() {
		return nil, invalidf("unknown mode %q", mode)
	}

	switch mode {
	case model.ModeFree:
		freeCap := s.consumables.FreeCap
		acc, err := s.ledger.ApplyCounters(ctx, uid, freeDelta(kind), func(acc *model.Account) error {
			return CheckFreeUse(acc.FreeUsed(kind), freeCap)
		})
		if err != nil {
			return nil, err
		}
		log.Info().
			Str("uid", uid).
			Str("kind", string(kind)).
			Int64("free_used", acc.FreeUsed(kind)).
			Msg("Free consumable used")
		return &ConsumeResult{OK: true, Mode: mode, Account: acc}, nil

	case model.ModeCoins:
		acc, err := s.ledger.SpendCoins(ctx, uid, s.consumables.Cost, kind.CoinReason(), usageDelta(kind))
		if err != nil {
			return nil, err
		}
		return &ConsumeResult{OK: true, Mode: mode, Account: acc}, nil

	default:
		if nonce == "" {
			return nil, invalidf("nonce is required for ad mode")
		}
		counters := usageDelta(kind)
		counters.AdsWatched = 1
		res, err := s.ledger.TryClaim(ctx, ClaimRequest{
			UID:      uid,
			Type:     kind.AdClaimType(),
			Nonce:    ConsumableAdNonce(uid, kind, nonce),
			Amount:   0,
			Counters: counters,
		})
		if err != nil {
			return nil, err
		}
		return &ConsumeResult{OK: true, Mode: mode, Already: !res.Applied, Account: res.Account}, nil
	}
}
