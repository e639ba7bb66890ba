package pricing

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Multiplier tiers applied on top of the base rate of one credit per 1000 billable tokens.
const (
	TierFast     = 1
	TierStandard = 5
	TierPower    = 10
)

var (
	tokensPerCredit = decimal.NewFromInt(1000)

	// MinimumCharge is the floor applied to every billed interaction.
	MinimumCharge = decimal.RequireFromString("0.01")

	// DefaultCacheDiscountRate is the fraction of the normal rate charged for cached input tokens.
	DefaultCacheDiscountRate = decimal.RequireFromString("0.25")
)

// creditScale is the number of fractional digits stored for credit amounts.
const creditScale = 4

// DefaultMultipliers maps model id prefixes to their tier.
var DefaultMultipliers = map[string]int{
	// OpenAI
	"gpt-4o-mini":   TierFast,
	"gpt-4.1-mini":  TierFast,
	"gpt-4.1-nano":  TierFast,
	"gpt-3.5-turbo": TierFast,
	"o1-mini":       TierStandard,
	"o3-mini":       TierStandard,
	"gpt-4o":        TierStandard,
	"gpt-4.1":       TierStandard,
	"gpt-4-turbo":   TierPower,
	"gpt-4":         TierPower,
	"o1":            TierPower,
	// Anthropic
	"claude-3-haiku":    TierFast,
	"claude-3-5-haiku":  TierFast,
	"claude-3-5-sonnet": TierStandard,
	"claude-3-7-sonnet": TierStandard,
	"claude-sonnet-4":   TierStandard,
	"claude-3-opus":     TierPower,
	"claude-opus-4":     TierPower,
	// Google
	"gemini-1.5-flash": TierFast,
	"gemini-2.0-flash": TierFast,
	"gemini-1.5-pro":   TierStandard,
}

// Usage is the token accounting of one completion.
type Usage struct {
	InputTokens       int
	OutputTokens      int
	CachedInputTokens int
}

// Total is the billable token count before discounts.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Model prices completions. It is immutable once built and safe for
// concurrent use.
type Model struct {
	multipliers       map[string]int
	prefixes          []string
	defaultMultiplier int
	cacheDiscountRate decimal.Decimal
}

// Config tunes a Model. Zero values fall back to the package defaults.
type Config struct {
	Multipliers       map[string]int
	DefaultMultiplier int
	CacheDiscountRate decimal.Decimal
}

// New creates a pricing model seeded with DefaultMultipliers and cfg applied on top.
func New(cfg Config) *Model {
	m := &Model{
		defaultMultiplier: TierStandard,
		cacheDiscountRate: DefaultCacheDiscountRate,
	}
	table := make(map[string]int, len(DefaultMultipliers)+len(cfg.Multipliers))
	for k, v := range DefaultMultipliers {
		table[k] = v
	}
	for k, v := range cfg.Multipliers {
		if v > 0 {
			table[strings.ToLower(strings.TrimSpace(k))] = v
		}
	}
	m.setTable(table)
	if cfg.DefaultMultiplier > 0 {
		m.defaultMultiplier = cfg.DefaultMultiplier
	}
	if cfg.CacheDiscountRate.IsPositive() && cfg.CacheDiscountRate.LessThanOrEqual(decimal.NewFromInt(1)) {
		m.cacheDiscountRate = cfg.CacheDiscountRate
	}
	return m
}

// ParseConfig decodes the JSON override document of PRICING_CONFIG, of the form
// {"multipliers": {"model": 5}, "default_multiplier": 5, "cache_discount_rate": "0.25"}.
func ParseConfig(data []byte) (Config, error) {
	var doc struct {
		Multipliers       map[string]int  `json:"multipliers"`
		DefaultMultiplier int             `json:"default_multiplier"`
		CacheDiscountRate decimal.Decimal `json:"cache_discount_rate"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return Config{}, err
	}
	return Config{
		Multipliers:       doc.Multipliers,
		DefaultMultiplier: doc.DefaultMultiplier,
		CacheDiscountRate: doc.CacheDiscountRate,
	}, nil
}

// setTable must be called before the model is shared.
func (m *Model) setTable(table map[string]int) {
	prefixes := make([]string, 0, len(table))
	for k := range table {
		prefixes = append(prefixes, k)
	}
	// Longest prefix first so gpt-4o-mini wins over gpt-4o and gpt-4.
	sort.Slice(prefixes, func(i, j int) bool {
		if len(prefixes[i]) != len(prefixes[j]) {
			return len(prefixes[i]) > len(prefixes[j])
		}
		return prefixes[i] < prefixes[j]
	})
	m.multipliers = table
	m.prefixes = prefixes
}

// Multiplier returns the tier multiplier for modelID. Dated or suffixed ids
// resolve through their longest known prefix; unknown models use the default.
func (m *Model) Multiplier(modelID string) int {
	id := strings.ToLower(strings.TrimSpace(modelID))
	if v, ok := m.multipliers[id]; ok {
		return v
	}
	for _, p := range m.prefixes {
		if strings.HasPrefix(id, p) {
			return m.multipliers[p]
		}
	}
	return m.defaultMultiplier
}

// CacheDiscountRate returns the fraction charged for cached input tokens.
func (m *Model) CacheDiscountRate() decimal.Decimal {
	return m.cacheDiscountRate
}

// Cost returns (in+out)/1000 * multiplier credits, never less than MinimumCharge.
func (m *Model) Cost(modelID string, inputTokens, outputTokens int) decimal.Decimal {
	return m.CostWithUsage(modelID, Usage{InputTokens: inputTokens, OutputTokens: outputTokens})
}

// CostWithUsage prices a completion whose cached input tokens are billed at
// the cache discount rate. Negative counts are treated as zero and cached
// tokens are capped at the input count.
func (m *Model) CostWithUsage(modelID string, u Usage) decimal.Decimal {
	in := max(u.InputTokens, 0)
	out := max(u.OutputTokens, 0)
	cached := min(max(u.CachedInputTokens, 0), in)

	rate := m.CacheDiscountRate()
	billable := decimal.NewFromInt(int64(in - cached)).
		Add(decimal.NewFromInt(int64(cached)).Mul(rate)).
		Add(decimal.NewFromInt(int64(out)))

	cost := billable.Div(tokensPerCredit).
		Mul(decimal.NewFromInt(int64(m.Multiplier(modelID)))).
		Round(creditScale)
	if cost.LessThan(MinimumCharge) {
		return MinimumCharge
	}
	return cost
}

// EstimateTokens approximates a token count as ceil(characters/4). It is used
// when a provider does not report usage.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return int(math.Ceil(float64(n) / 4))
}
