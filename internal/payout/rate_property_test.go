package payout

import (
	"testing"

	"pgregory.net/rapid"
)

func drawCounters(t *rapid.T) Counters {
	return Counters{
		LoginDays:       rapid.Int64Range(0, 31).Draw(t, "loginDays"),
		LevelsCompleted: rapid.Int64Range(0, 500).Draw(t, "levels"),
		ValidInvites:    rapid.Int64Range(0, 50).Draw(t, "invites"),
		SkipsUsed:       rapid.Int64Range(0, 100).Draw(t, "skips"),
		HintsUsed:       rapid.Int64Range(0, 100).Draw(t, "hints"),
		RestartsUsed:    rapid.Int64Range(0, 100).Draw(t, "restarts"),
		AdsWatched:      rapid.Int64Range(0, 500).Draw(t, "ads"),
		BestStreak:      rapid.Int64Range(0, 31).Draw(t, "streak"),
	}
}

func drawPolicy(t *rapid.T) Policy {
	tiers := func(label string) []Tier {
		n := rapid.IntRange(0, 4).Draw(t, label+"Len")
		out := make([]Tier, n)
		for i := range out {
			out[i] = Tier{
				Min:    rapid.Int64Range(0, 100).Draw(t, label+"Min"),
				Points: rapid.IntRange(0, 40).Draw(t, label+"Points"),
			}
		}
		return out
	}
	skill := SkillPolicy{MinLevels: rapid.Int64Range(0, 50).Draw(t, "skillMinLevels")}
	for i := rapid.IntRange(0, 3).Draw(t, "skillLen"); i > 0; i-- {
		skill.Tiers = append(skill.Tiers, SkillTier{
			MaxUsage: rapid.Int64Range(0, 100).Draw(t, "skillMax"),
			Points:   rapid.IntRange(0, 40).Draw(t, "skillPoints"),
		})
	}
	return Policy{
		Base:      rapid.IntRange(-50, 150).Draw(t, "base"),
		LoginDays: tiers("login"),
		Levels:    tiers("levels"),
		Invites:   tiers("invites"),
		Ads:       tiers("ads"),
		Streak:    tiers("streak"),
		Skill:     skill,
	}
}

// TestRateBoundsProperty: for any policy and counters the rate stays in [0, 100].
func TestRateBoundsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		res := Calculate(drawPolicy(t), drawCounters(t))
		if res.Rate < MinRate || res.Rate > MaxRate {
			t.Fatalf("rate %d out of bounds", res.Rate)
		}
	})
}

// TestRateMonotonicProperty: raising an engagement counter never lowers the rate,
// raising consumable usage never raises it.
func TestRateMonotonicProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := drawPolicy(t)
		c := drawCounters(t)
		bump := rapid.Int64Range(1, 50).Draw(t, "bump")
		base := Calculate(p, c).Rate

		up := []Counters{c, c, c, c, c, c}
		up[0].LoginDays += bump
		up[1].LevelsCompleted += bump
		up[2].ValidInvites += bump
		up[3].AdsWatched += bump
		up[4].BestStreak += bump
		up[5].LevelsCompleted += bump
		up[5].LoginDays += bump
		for i, next := range up {
			if got := Calculate(p, next).Rate; got < base {
				t.Fatalf("case %d: rate dropped from %d to %d", i, base, got)
			}
		}

		down := []Counters{c, c, c}
		down[0].SkipsUsed += bump
		down[1].HintsUsed += bump
		down[2].RestartsUsed += bump
		for i, next := range down {
			if got := Calculate(p, next).Rate; got > base {
				t.Fatalf("usage case %d: rate rose from %d to %d", i, base, got)
			}
		}
	})
}

// TestBreakdownSumProperty: the stored rate is the clamped breakdown sum.
func TestBreakdownSumProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		res := Calculate(drawPolicy(t), drawCounters(t))
		if res.Rate != clamp(res.Breakdown.Sum()) {
			t.Fatalf("rate %d does not match clamped sum %d", res.Rate, res.Breakdown.Sum())
		}
	})
}
