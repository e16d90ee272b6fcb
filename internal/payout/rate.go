package payout

// MaxRate and MinRate bound every computed rate.
const (
	MinRate = 0
	MaxRate = 100
)

// Counters are the monthly engagement counters the rate is derived from.
type Counters struct {
	LoginDays       int64
	LevelsCompleted int64
	ValidInvites    int64
	SkipsUsed       int64
	HintsUsed       int64
	RestartsUsed    int64
	AdsWatched      int64
	BestStreak      int64
}

// ConsumablesUsed is the total of skips, hints and restarts.
func (c Counters) ConsumablesUsed() int64 {
	return c.SkipsUsed + c.HintsUsed + c.RestartsUsed
}

// Breakdown records how many points each factor contributed.
type Breakdown struct {
	Base      int `json:"base"`
	LoginDays int `json:"loginDays"`
	Levels    int `json:"levels"`
	Invites   int `json:"invites"`
	Skill     int `json:"skill"`
	Ads       int `json:"ads"`
	Streak    int `json:"streak"`
}

// Sum adds up all factors without clamping.
func (b Breakdown) Sum() int {
	return b.Base + b.LoginDays + b.Levels + b.Invites + b.Skill + b.Ads + b.Streak
}

// Result is a computed rate together with its breakdown.
type Result struct {
	Rate      int       `json:"rate"`
	Breakdown Breakdown `json:"breakdown"`
}

// Calculate computes the payout rate for c under policy p. It is a pure function.
func Calculate(p Policy, c Counters) Result {
	b := Breakdown{
		Base:      p.Base,
		LoginDays: bandPoints(p.LoginDays, c.LoginDays),
		Levels:    bandPoints(p.Levels, c.LevelsCompleted),
		Invites:   bandPoints(p.Invites, c.ValidInvites),
		Skill:     skillPoints(p.Skill, c.LevelsCompleted, c.ConsumablesUsed()),
		Ads:       bandPoints(p.Ads, c.AdsWatched),
		Streak:    bandPoints(p.Streak, c.BestStreak),
	}
	return Result{Rate: clamp(b.Sum()), Breakdown: b}
}

// bandPoints returns the best tier reached. Tier order in config does not matter.
func bandPoints(tiers []Tier, value int64) int {
	best := 0
	for _, t := range tiers {
		if value >= t.Min && t.Points > best {
			best = t.Points
		}
	}
	return best
}

func skillPoints(p SkillPolicy, levels, usage int64) int {
	if levels < p.MinLevels || levels == 0 {
		return 0
	}
	best := 0
	for _, t := range p.Tiers {
		if usage <= t.MaxUsage && t.Points > best {
			best = t.Points
		}
	}
	return best
}

func clamp(rate int) int {
	if rate < MinRate {
		return MinRate
	}
	if rate > MaxRate {
		return MaxRate
	}
	return rate
}
