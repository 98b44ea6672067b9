package domain

import "strings"

// Pricing is USD per million tokens.
type Pricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// ModelPricing is keyed by model id. Lookups fall back to a prefix match and
// then to "default".
var ModelPricing = map[string]Pricing{
	"claude-opus-4-5":   {InputPer1M: 5.0, OutputPer1M: 25.0},
	"claude-sonnet-4-5": {InputPer1M: 3.0, OutputPer1M: 15.0},
	"claude-haiku-4-5":  {InputPer1M: 1.0, OutputPer1M: 5.0},
	"claude-opus-4":     {InputPer1M: 15.0, OutputPer1M: 75.0},
	"claude-sonnet-4":   {InputPer1M: 3.0, OutputPer1M: 15.0},
	"gpt-4o":            {InputPer1M: 2.5, OutputPer1M: 10.0},
	"gpt-4o-mini":       {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gemini-2.5-pro":    {InputPer1M: 1.25, OutputPer1M: 10.0},
	"gemini-2.5-flash":  {InputPer1M: 0.30, OutputPer1M: 2.50},

	"default": {InputPer1M: 3.0, OutputPer1M: 15.0},
}

// PricingFor returns the pricing entry for model, preferring the longest
// matching prefix so dated ids like "claude-sonnet-4-20250514" resolve.
func PricingFor(model string) Pricing {
	model = strings.ToLower(strings.TrimSpace(model))
	if p, ok := ModelPricing[model]; ok {
		return p
	}
	best := ""
	for key := range ModelPricing {
		if key == "default" {
			continue
		}
		if strings.HasPrefix(model, key) && len(key) > len(best) {
			best = key
		}
	}
	if best != "" {
		return ModelPricing[best]
	}
	return ModelPricing["default"]
}

// Cost returns the USD cost of the accumulated usage. Uploaded reports are free.
func (m AIMetadata) Cost() float64 {
	if m.Uploaded() && m.InputTokens == 0 && m.OutputTokens == 0 {
		return 0
	}
	p := PricingFor(m.Model)
	return float64(m.InputTokens)*p.InputPer1M/1_000_000 + float64(m.OutputTokens)*p.OutputPer1M/1_000_000
}

// UsageBucket aggregates usage over a group of reports.
type UsageBucket struct {
	Key          string  `json:"key"`
	Label        string  `json:"label,omitempty"`
	Reports      int     `json:"reports"`
	Uploaded     int     `json:"uploaded"`
	InputTokens  int64   `json:"inputTokens"`
	OutputTokens int64   `json:"outputTokens"`
	DurationMs   int64   `json:"durationMs"`
	CostUSD      float64 `json:"costUSD"`
}

// Include adds one report's metadata to the bucket.
func (b *UsageBucket) Include(m AIMetadata) {
	b.Reports++
	if m.Uploaded() {
		b.Uploaded++
	}
	b.InputTokens += m.InputTokens
	b.OutputTokens += m.OutputTokens
	b.DurationMs += m.Duration
	b.CostUSD += m.Cost()
}

// UsageSummary is the usage report returned to admins.
type UsageSummary struct {
	Total     UsageBucket   `json:"total"`
	ByProject []UsageBucket `json:"byProject"`
	ByMonth   []UsageBucket `json:"byMonth"`
}
