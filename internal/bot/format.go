package bot

import (
	"fmt"
	"strings"

	"maze-rewards/internal/model"
	"maze-rewards/internal/service"
)

// FormatStats renders the dashboard summary.
func FormatStats(s *model.Stats) string {
	return fmt.Sprintf("Accounts: %d\nCoins in circulation: %d\nOnline: %d\nClaims today: %d",
		s.Accounts, s.TotalCoins, s.Online, s.ClaimsToday)
}

func accountLine(a *model.Account) string {
	return fmt.Sprintf("%s (%s): %d coins, rate %d%%", a.Username, a.UID, a.Coins, a.MonthlyFinalRate)
}

// FormatSearch renders a user search result.
func FormatSearch(query string, accounts []*model.Account, total int) string {
	if len(accounts) == 0 {
		return fmt.Sprintf("No accounts match %q", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d match(es) for %q", total, query)
	for _, a := range accounts {
		sb.WriteString("\n")
		sb.WriteString(accountLine(a))
	}
	if total > len(accounts) {
		fmt.Fprintf(&sb, "\n... and %d more", total-len(accounts))
	}
	return sb.String()
}

// FormatTop renders the richest accounts, ranked.
func FormatTop(accounts []*model.Account) string {
	if len(accounts) == 0 {
		return "No accounts yet"
	}

	var sb strings.Builder
	sb.WriteString("Top accounts")
	for i, a := range accounts {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, accountLine(a))
	}
	return sb.String()
}

// FormatEarners renders an earnings leaderboard.
func FormatEarners(period string, ranks []model.EarnerRank) string {
	if period == "" {
		period = "today"
	}
	if len(ranks) == 0 {
		return fmt.Sprintf("No coins earned %s", period)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Top earners %s", period)
	for _, r := range ranks {
		fmt.Fprintf(&sb, "\n%d. %s (%s): +%d", r.Rank, r.Username, r.UID, r.Earned)
	}
	return sb.String()
}

// FormatCloseSummary renders a month close result.
func FormatCloseSummary(s *service.CloseSummary) string {
	return fmt.Sprintf("Month %s closed\nSnapshotted: %d\nSkipped: %d\nCoins collected: %d",
		s.Month, s.Snapshotted, s.Skipped, s.TotalCoins)
}
