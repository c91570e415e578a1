// Package tokens provides deterministic token accounting for context
// budgeting. Counts are estimates tuned per model family; the same text and
// model always produce the same count.
package tokens

import (
	"strings"
	"unicode"

	"github.com/wigtn/wigtn-spot-finder/internal/config"
)

// messageOverhead is the per-message token cost of chat formatting
// (role marker plus separators) added on top of the content estimate.
const messageOverhead = 4

// modelFamily holds the estimator parameters for one family of models.
type modelFamily struct {
	// charsPerToken is the average characters per token for Latin text.
	charsPerToken float64
	// cjkCharsPerToken is the average for CJK runes, which tokenize denser.
	cjkCharsPerToken float64
}

// families maps model ID prefixes to estimator parameters. Longest prefix
// wins. Unknown models are a configuration error, not a silent fallback.
var families = map[string]modelFamily{
	"solar":   {charsPerToken: 4.0, cjkCharsPerToken: 1.5},
	"gpt":     {charsPerToken: 4.0, cjkCharsPerToken: 1.8},
	"claude":  {charsPerToken: 3.8, cjkCharsPerToken: 1.8},
	"qwen":    {charsPerToken: 4.2, cjkCharsPerToken: 1.4},
	"llama":   {charsPerToken: 3.6, cjkCharsPerToken: 2.0},
	"mistral": {charsPerToken: 3.8, cjkCharsPerToken: 2.0},
}

// Counter estimates token counts for a fixed model.
type Counter struct {
	model  string
	family modelFamily
}

// NewCounter returns a Counter for the given model ID. An unrecognized model
// family is a ConfigurationError so the failure surfaces at startup.
func NewCounter(model string) (*Counter, error) {
	id := strings.ToLower(strings.TrimSpace(model))
	best := ""
	for prefix := range families {
		if strings.HasPrefix(id, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return nil, &config.ConfigurationError{Field: "model.name", Reason: "unknown model family: " + model}
	}
	return &Counter{model: model, family: families[best]}, nil
}

// Model returns the model ID this counter was built for.
func (c *Counter) Model() string { return c.model }

// Count estimates the number of tokens in text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	var latin, cjk int
	for _, r := range text {
		if isCJK(r) {
			cjk++
		} else {
			latin++
		}
	}
	n := int(float64(latin)/c.family.charsPerToken + float64(cjk)/c.family.cjkCharsPerToken)
	if n < 1 {
		n = 1
	}
	return n
}

// CountMessage estimates tokens for one chat message including formatting
// overhead.
func (c *Counter) CountMessage(content string) int {
	return c.Count(content) + messageOverhead
}

// CountMessages sums the estimates for a slice of message contents.
func (c *Counter) CountMessages(contents []string) int {
	total := 0
	for _, m := range contents {
		total += c.CountMessage(m)
	}
	return total
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hangul, unicode.Hiragana, unicode.Katakana)
}

// Budget reports how the current context size relates to the configured
// thresholds.
type Budget struct {
	Used               int
	SoftLimit          int
	HardLimit          int
	NeedsSummarization bool
	OverHardLimit      bool
}

// Remaining returns the tokens left under the hard limit, never negative.
func (b Budget) Remaining() int {
	if b.Used >= b.HardLimit {
		return 0
	}
	return b.HardLimit - b.Used
}

// CheckBudget evaluates used tokens against soft and hard thresholds.
func CheckBudget(used, softLimit, hardLimit int) Budget {
	return Budget{
		Used:               used,
		SoftLimit:          softLimit,
		HardLimit:          hardLimit,
		NeedsSummarization: used > softLimit,
		OverHardLimit:      used > hardLimit,
	}
}
