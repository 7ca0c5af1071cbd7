package service

// Prices are USD per 1000 tokens. Lookup order: exact model under the
// request's provider, then the provider's default, then the global default
// when the provider itself is unlisted or carries no default.

const globalDefaultRate = 0.001

type providerPricing struct {
	models      map[string]float64
	defaultRate float64 // 0 means no provider default
}

var pricingTable = map[string]providerPricing{
	"openai": {
		models: map[string]float64{
			"gpt-4":         0.03,
			"gpt-4-turbo":   0.01,
			"gpt-4o":        0.005,
			"gpt-4o-mini":   0.0015,
			"gpt-3.5-turbo": 0.0015,
		},
	},
	"groq":   {defaultRate: 0.0001},
	"gemini": {defaultRate: 0.001},
}

// RateFor returns the per-1K-token price for a provider/model pair.
func RateFor(provider, model string) float64 {
	p, ok := pricingTable[provider]
	if !ok {
		return globalDefaultRate
	}
	if rate, ok := p.models[model]; ok {
		return rate
	}
	if p.defaultRate > 0 {
		return p.defaultRate
	}
	return globalDefaultRate
}

// CostFor computes the cost of totalTokens at the pair's rate.
func CostFor(provider, model string, totalTokens int) float64 {
	return float64(totalTokens) / 1000 * RateFor(provider, model)
}
