// Package payout computes the monthly payout rate from engagement counters.
//
// The rate is a percentage in [0, 100] made of a fixed base plus capped bonus
// bands. Band thresholds are policy, loaded from configuration; the only
// guarantees the calculator makes are that each band is monotonic in its
// counter and that the total is clamped.
package payout

// Tier awards Points once a counter reaches Min.
type Tier struct {
	Min    int64 `mapstructure:"min" json:"min"`
	Points int   `mapstructure:"points" json:"points"`
}

// SkillTier awards Points while total consumable usage stays at or below MaxUsage.
type SkillTier struct {
	MaxUsage int64 `mapstructure:"max_usage" json:"maxUsage"`
	Points   int   `mapstructure:"points" json:"points"`
}

// SkillPolicy rewards finishing levels without leaning on skips, hints and restarts.
// Nothing is awarded until MinLevels levels were completed in the month.
type SkillPolicy struct {
	MinLevels int64       `mapstructure:"min_levels" json:"minLevels"`
	Tiers     []SkillTier `mapstructure:"tiers" json:"tiers"`
}

// Policy is the full set of payout-rate bands.
type Policy struct {
	Base      int         `mapstructure:"base" json:"base"`
	LoginDays []Tier      `mapstructure:"login_days" json:"loginDays"`
	Levels    []Tier      `mapstructure:"levels" json:"levels"`
	Invites   []Tier      `mapstructure:"invites" json:"invites"`
	Ads       []Tier      `mapstructure:"ads" json:"ads"`
	Streak    []Tier      `mapstructure:"streak" json:"streak"`
	Skill     SkillPolicy `mapstructure:"skill" json:"skill"`
}

// DefaultPolicy returns the shipped band table.
func DefaultPolicy() Policy {
	return Policy{
		Base:      50,
		LoginDays: []Tier{{Min: 10, Points: 5}, {Min: 20, Points: 10}, {Min: 28, Points: 15}},
		Levels:    []Tier{{Min: 10, Points: 3}, {Min: 30, Points: 6}, {Min: 60, Points: 10}},
		Invites:   []Tier{{Min: 1, Points: 3}, {Min: 3, Points: 6}, {Min: 5, Points: 10}},
		Ads:       []Tier{{Min: 10, Points: 2}, {Min: 30, Points: 4}, {Min: 60, Points: 6}},
		Streak:    []Tier{{Min: 3, Points: 2}, {Min: 7, Points: 4}, {Min: 14, Points: 6}},
		Skill: SkillPolicy{
			MinLevels: 10,
			Tiers:     []SkillTier{{MaxUsage: 5, Points: 8}, {MaxUsage: 15, Points: 4}, {MaxUsage: 30, Points: 2}},
		},
	}
}

// WithDefaults fills unset band tables of p from DefaultPolicy. Base is kept
// as given, so a zero base rate is valid.
func (p Policy) WithDefaults() Policy {
	d := DefaultPolicy()
	if p.LoginDays == nil {
		p.LoginDays = d.LoginDays
	}
	if p.Levels == nil {
		p.Levels = d.Levels
	}
	if p.Invites == nil {
		p.Invites = d.Invites
	}
	if p.Ads == nil {
		p.Ads = d.Ads
	}
	if p.Streak == nil {
		p.Streak = d.Streak
	}
	if p.Skill.Tiers == nil {
		p.Skill = d.Skill
	}
	return p
}
