package service

import (
	"fmt"
	"time"

	"maze-rewards/internal/config"
	"maze-rewards/internal/model"
)

const (
	monthLayout = "2006-01"
	dayLayout   = "2006-01-02"
)

// MonthKey is the UTC calendar-month tag of t, e.g. "2026-01".
func MonthKey(t time.Time) string {
	return t.UTC().Format(monthLayout)
}

// DayKey is the UTC calendar-day tag of t, e.g. "2026-01-31".
func DayKey(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

// ValidMonth reports whether month is a well-formed YYYY-MM tag.
func ValidMonth(month string) bool {
	t, err := time.Parse(monthLayout, month)
	return err == nil && t.Format(monthLayout) == month
}

// Claim nonces. Each semantic event maps to exactly one nonce.

func DailyNonce(uid string, day string) string {
	return fmt.Sprintf("daily:%s:%s", uid, day)
}

func LevelNonce(uid string, level int) string {
	return fmt.Sprintf("level:%s:%d", uid, level)
}

func AdNonce(uid, clientNonce string) string {
	return fmt.Sprintf("ad:%s:%s", uid, clientNonce)
}

func ConsumableAdNonce(uid string, kind model.ConsumableKind, clientNonce string) string {
	return fmt.Sprintf("%s:%s:%s", kind.AdClaimType(), uid, clientNonce)
}

func InviteNonce(inviteeUID string) string {
	return "invite:" + inviteeUID
}

// AdAmount is the coin reward for the next ad given how many ads were
// already watched this month.
func AdAmount(cfg config.AdConfig, watched int64) int64 {
	if cfg.Mode != "decay" {
		return cfg.FlatAmount
	}
	return max(cfg.BaseAmount-watched, cfg.Floor)
}

// NextStreak returns the login streak after logging in on day, given the
// previous login day and streak.
func NextStreak(lastDay *string, streak int64, day string) int64 {
	if lastDay == nil {
		return 1
	}
	if *lastDay == day {
		return max(streak, 1)
	}
	today, err := time.Parse(dayLayout, day)
	if err != nil {
		return 1
	}
	if today.AddDate(0, 0, -1).Format(dayLayout) == *lastDay {
		return streak + 1
	}
	return 1
}

// CheckFreeUse returns ErrNoFreeUsesLeft once used has reached freeCap.
func CheckFreeUse(used, freeCap int64) error {
	if used >= freeCap {
		return ErrNoFreeUsesLeft
	}
	return nil
}
