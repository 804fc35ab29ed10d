package usage

import "github.com/parallaxhq/parallax/internal/llm"

// TierLimits holds the monthly token allowance per model tier. A zero
// value means the model is not available on that subscription tier.
type TierLimits map[llm.ModelID]int64

// tierTable is fixed at build time; updating it is a deployment-time
// change.
var tierTable = map[string]TierLimits{
	"free": {
		llm.Haiku:  25_000,
		llm.Sonnet: 0,
		llm.Opus:   0,
	},
	"starter": {
		llm.Haiku:  100_000,
		llm.Sonnet: 50_000,
		llm.Opus:   0,
	},
	"pro": {
		llm.Haiku:  500_000,
		llm.Sonnet: 250_000,
		llm.Opus:   100_000,
	},
	"enterprise": {
		llm.Haiku:  2_000_000,
		llm.Sonnet: 1_000_000,
		llm.Opus:   500_000,
	},
}

// Limits returns the monthly allowances for a tier. Unknown tiers fall
// back to the free tier so a bad stored value degrades rather than
// unlocking everything.
func Limits(tier string) TierLimits {
	if limits, ok := tierTable[tier]; ok {
		return limits
	}
	return tierTable["free"]
}

// ValidTier reports whether tier is a known subscription tier.
func ValidTier(tier string) bool {
	_, ok := tierTable[tier]
	return ok
}
