// Package model defines the data models for the maze rewards backend.
package model

import (
	"time"

	"maze-rewards/internal/payout"
)

// Account is the mutable per-player aggregate. It owns the coin balance,
// lifetime free-consumable counters and the current month's engagement counters.
type Account struct {
	UID      string `db:"uid" json:"uid"`
	Username string `db:"username" json:"username"`
	Coins    int64  `db:"coins" json:"coins"`

	FreeSkipsUsed    int64 `db:"free_skips_used" json:"freeSkipsUsed"`
	FreeHintsUsed    int64 `db:"free_hints_used" json:"freeHintsUsed"`
	FreeRestartsUsed int64 `db:"free_restarts_used" json:"freeRestartsUsed"`

	MonthlyCoinsEarned     int64  `db:"monthly_coins_earned" json:"monthlyCoinsEarned"`
	MonthlyLoginDays       int64  `db:"monthly_login_days" json:"monthlyLoginDays"`
	MonthlyLevelsCompleted int64  `db:"monthly_levels_completed" json:"monthlyLevelsCompleted"`
	MonthlySkipsUsed       int64  `db:"monthly_skips_used" json:"monthlySkipsUsed"`
	MonthlyHintsUsed       int64  `db:"monthly_hints_used" json:"monthlyHintsUsed"`
	MonthlyRestartsUsed    int64  `db:"monthly_restarts_used" json:"monthlyRestartsUsed"`
	MonthlyAdsWatched      int64  `db:"monthly_ads_watched" json:"monthlyAdsWatched"`
	MonthlyValidInvites    int64  `db:"monthly_valid_invites" json:"monthlyValidInvites"`
	MonthlyBestStreak      int64  `db:"monthly_best_streak" json:"monthlyBestStreak"`
	MonthlyKey             string `db:"monthly_key" json:"monthlyKey"`

	LoginStreak  int64   `db:"login_streak" json:"loginStreak"`
	LastLoginDay *string `db:"last_login_day" json:"lastLoginDay,omitempty"`

	MonthlyFinalRate     int              `db:"monthly_final_rate" json:"monthlyFinalRate"`
	MonthlyRateBreakdown payout.Breakdown `db:"monthly_rate_breakdown" json:"monthlyRateBreakdown"`

	LastSeenAt time.Time `db:"last_seen_at" json:"lastSeenAt"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
}

// Counters extracts the monthly counters the payout rate is computed from.
func (a *Account) Counters() payout.Counters {
	return payout.Counters{
		LoginDays:       a.MonthlyLoginDays,
		LevelsCompleted: a.MonthlyLevelsCompleted,
		ValidInvites:    a.MonthlyValidInvites,
		SkipsUsed:       a.MonthlySkipsUsed,
		HintsUsed:       a.MonthlyHintsUsed,
		RestartsUsed:    a.MonthlyRestartsUsed,
		AdsWatched:      a.MonthlyAdsWatched,
		BestStreak:      a.MonthlyBestStreak,
	}
}

// FreeUsed returns the lifetime free-use counter for a consumable kind.
func (a *Account) FreeUsed(kind ConsumableKind) int64 {
	switch kind {
	case ConsumableSkip:
		return a.FreeSkipsUsed
	case ConsumableHint:
		return a.FreeHintsUsed
	case ConsumableRestart:
		return a.FreeRestartsUsed
	}
	return 0
}

// RewardClaim is an append-only idempotency record. Nonce is globally unique.
type RewardClaim struct {
	ID        int64     `db:"id" json:"id"`
	UID       string    `db:"uid" json:"uid"`
	Type      ClaimType `db:"type" json:"type"`
	Nonce     string    `db:"nonce" json:"nonce"`
	Amount    int64     `db:"amount" json:"amount"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// LevelReward marks that the level bonus for (UID, Level) was paid.
type LevelReward struct {
	UID       string    `db:"uid" json:"uid"`
	Level     int       `db:"level" json:"level"`
	Amount    int64     `db:"amount" json:"amount"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Transaction is one balance-affecting coin ledger row.
type Transaction struct {
	ID            int64     `db:"id" json:"id"`
	UID           string    `db:"uid" json:"uid"`
	Amount        int64     `db:"amount" json:"amount"`
	Reason        string    `db:"reason" json:"reason"`
	BalanceBefore int64     `db:"balance_before" json:"balanceBefore"`
	BalanceAfter  int64     `db:"balance_after" json:"balanceAfter"`
	Ref           *string   `db:"ref" json:"ref,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// MonthlyPayout snapshots a balance at month close.
type MonthlyPayout struct {
	ID                 int64        `db:"id" json:"id"`
	UID                string       `db:"uid" json:"uid"`
	Month              string       `db:"month" json:"month"`
	CoinsCollected     int64        `db:"coins_collected" json:"coinsCollected"`
	Rate               int          `db:"rate" json:"rate"`
	PiAmountEquivalent *float64     `db:"pi_amount_equivalent" json:"piAmountEquivalent"`
	Status             PayoutStatus `db:"status" json:"status"`
	TxID               *string      `db:"txid" json:"txid"`
	CreatedAt          time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time    `db:"updated_at" json:"updatedAt"`
}

// DailyPoint is one day of an admin chart series.
type DailyPoint struct {
	Day         time.Time `json:"day"`
	CoinsEarned int64     `json:"coinsEarned"`
	CoinsSpent  int64     `json:"coinsSpent"`
	ActiveUsers int64     `json:"activeUsers"`
}

// EarnerRank is one row of an earnings leaderboard.
type EarnerRank struct {
	Rank     int    `json:"rank"`
	UID      string `json:"uid"`
	Username string `json:"username"`
	Earned   int64  `json:"earned"`
}

// Stats is the admin dashboard summary.
type Stats struct {
	Accounts    int64 `json:"accounts"`
	TotalCoins  int64 `json:"totalCoins"`
	Online      int64 `json:"online"`
	ClaimsToday int64 `json:"claimsToday"`
}

// ClaimType enumerates reward categories.
type ClaimType string

const (
	ClaimDailyLogin    ClaimType = "daily_login"
	ClaimLevelComplete ClaimType = "level_complete"
	ClaimAdReward      ClaimType = "ad_reward"
	ClaimInvite        ClaimType = "invite"
	ClaimSkipAd        ClaimType = "skip_ad"
	ClaimHintAd        ClaimType = "hint_ad"
	ClaimRestartAd     ClaimType = "restart_ad"
)

// ConsumableKind is one of the in-game helpers a player can spend.
type ConsumableKind string

const (
	ConsumableSkip    ConsumableKind = "skip"
	ConsumableHint    ConsumableKind = "hint"
	ConsumableRestart ConsumableKind = "restart"
)

// Valid reports whether k is a known consumable.
func (k ConsumableKind) Valid() bool {
	switch k {
	case ConsumableSkip, ConsumableHint, ConsumableRestart:
		return true
	}
	return false
}

// AdClaimType is the claim type used when k is unlocked by watching an ad.
func (k ConsumableKind) AdClaimType() ClaimType {
	return ClaimType(string(k) + "_ad")
}

// CoinReason is the coin ledger reason used when k is bought with coins.
func (k ConsumableKind) CoinReason() string {
	return string(k) + "_coins"
}

// ConsumeMode selects how a consumable is paid for.
type ConsumeMode string

const (
	ModeFree  ConsumeMode = "free"
	ModeCoins ConsumeMode = "coins"
	ModeAd    ConsumeMode = "ad"
)

// Valid reports whether m is a known mode.
func (m ConsumeMode) Valid() bool {
	switch m {
	case ModeFree, ModeCoins, ModeAd:
		return true
	}
	return false
}

// PayoutStatus tracks the external payout pipeline.
type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutSent       PayoutStatus = "sent"
	PayoutFailed     PayoutStatus = "failed"
)

// Coin ledger reasons.
const (
	ReasonDailyLogin    = "daily_login"
	ReasonLevelComplete = "level_complete"
	ReasonAdReward      = "ad_reward"
	ReasonInvite        = "invite_reward"
	ReasonSkipCoins     = "skip_coins"
	ReasonHintCoins     = "hint_coins"
	ReasonRestartCoins  = "restart_coins"
	ReasonAdminAdjust   = "admin_adjust"
	ReasonMonthClose    = "month_close"
)

// EarningReasons are the ledger reasons counted as coins earned in admin charts.
func EarningReasons() []string {
	return []string{ReasonDailyLogin, ReasonLevelComplete, ReasonAdReward, ReasonInvite}
}

// SpendingReasons are the ledger reasons counted as coins spent in admin charts.
func SpendingReasons() []string {
	return []string{ReasonSkipCoins, ReasonHintCoins, ReasonRestartCoins}
}
