package registry

// Advisor is a catalog entry for a gated advisor persona. Static data; the
// on-chain entitlement is per account, not per advisor entry.
type Advisor struct {
	FeatureKey  string
	Name        string
	Description string
	UnlockCost  string
}

var advisorCatalog = []Advisor{
	{
		FeatureKey:  "steady",
		Name:        "Steady Finance Advisor",
		Description: "Low-risk, stable-return strategies for conservative investors",
		UnlockCost:  "100 ADV",
	},
	{
		FeatureKey:  "growth",
		Name:        "Growth Advisor",
		Description: "Balances risk and return for mid-to-long-term growth",
		UnlockCost:  "100 ADV",
	},
	{
		FeatureKey:  "quant",
		Name:        "Quant Trading Advisor",
		Description: "High-frequency strategies for return-seeking investors",
		UnlockCost:  "100 ADV",
	},
	{
		FeatureKey:  "meme",
		Name:        "Meme Advisor",
		Description: "Meme token guidance driven by price oracles and AI sentiment",
		UnlockCost:  "100 ADV",
	},
}

func Advisors() []Advisor {
	out := make([]Advisor, len(advisorCatalog))
	copy(out, advisorCatalog)
	return out
}

func AdvisorByKey(featureKey string) (Advisor, bool) {
	for _, a := range advisorCatalog {
		if a.FeatureKey == featureKey {
			return a, true
		}
	}
	return Advisor{}, false
}
