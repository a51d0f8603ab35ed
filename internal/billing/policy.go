// Package billing decides how much workflow history a user may load.
package billing

// Tier is a user's billing tier.
type Tier string

const (
	TierFree Tier = "free"
	TierPaid Tier = "paid"
)

// Limits are the quota numbers behind the tiers.
type Limits struct {
	FreeDays    int `mapstructure:"free_days"`
	FreeBatches int `mapstructure:"free_batches"`
	PaidDays    int `mapstructure:"paid_days"`
	PaidBatches int `mapstructure:"paid_batches"`
}

// DefaultLimits are the quotas used when none are configured.
var DefaultLimits = Limits{
	FreeDays:    7,
	FreeBatches: 2,
	PaidDays:    31,
	PaidBatches: 8,
}

// Config is the quota handed to clients. It is immutable for a session.
type Config struct {
	MaxDays             int  `json:"maxDays"`
	MaxBatches          int  `json:"maxBatches"`
	CanViewOrgWorkflows bool `json:"canViewOrgWorkflows"`
	BillingEnabled      bool `json:"billingEnabled"`
	UserTier            Tier `json:"userTier"`
}

// SamePlan reports whether both configs produce the same batch plan.
func (c Config) SamePlan(o Config) bool {
	return c.MaxDays == o.MaxDays && c.MaxBatches == o.MaxBatches
}

// ConfigFor returns the quota for a tier. With billing disabled every user gets
// full access and the tier is reported unchanged.
func ConfigFor(enabled bool, tier Tier, l Limits) Config {
	if tier == "" {
		tier = TierFree
	}
	if !enabled {
		return Config{
			MaxDays:             l.PaidDays,
			MaxBatches:          l.PaidBatches,
			CanViewOrgWorkflows: true,
			BillingEnabled:      false,
			UserTier:            tier,
		}
	}
	if tier == TierPaid {
		return Config{
			MaxDays:             l.PaidDays,
			MaxBatches:          l.PaidBatches,
			CanViewOrgWorkflows: true,
			BillingEnabled:      true,
			UserTier:            tier,
		}
	}
	return Config{
		MaxDays:             l.FreeDays,
		MaxBatches:          l.FreeBatches,
		CanViewOrgWorkflows: false,
		BillingEnabled:      true,
		UserTier:            TierFree,
	}
}
