// internal/ledger/pricing.go
package ledger

import "sort"

// ModelPricing holds per-million-token rates in USD.
type ModelPricing struct {
	Input  float64
	Output float64
}

// pricing maps every model a user may select to its rates. Unknown models
// are rejected at the command layer, so a record's cost is always computed
// from a known rate.
var pricing = map[string]ModelPricing{
	"sonnet-4":   {Input: 3.00, Output: 15.00},
	"sonnet-4.5": {Input: 3.00, Output: 15.00},
	"opus-4.5":   {Input: 15.00, Output: 75.00},
	"haiku-3.5":  {Input: 0.80, Output: 4.00},
	"haiku-3":    {Input: 0.25, Output: 1.25},
}

const defaultModel = "sonnet-4"

// KnownModel reports whether the model ID can be selected and priced.
func KnownModel(model string) bool {
	_, ok := pricing[model]
	return ok
}

// KnownModels returns the selectable model IDs, sorted.
func KnownModels() []string {
	models := make([]string, 0, len(pricing))
	for m := range pricing {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

// Cost computes the dollar cost of one call, rounded to 6 decimals.
// Unpriced models fall back to the default model's rates rather than
// recording a zero cost.
func Cost(model string, inputTokens, outputTokens int) float64 {
	p, ok := pricing[model]
	if !ok {
		p = pricing[defaultModel]
	}
	cost := float64(inputTokens)/1_000_000*p.Input + float64(outputTokens)/1_000_000*p.Output
	return round6(cost)
}

func round6(v float64) float64 {
	return float64(int64(v*1_000_000+0.5)) / 1_000_000
}
