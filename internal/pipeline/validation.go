package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// injectionPatterns flag likely prompt-injection attempts: instruction
// overrides, role hijacking, jailbreak phrases and raw chat markup.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?im)ignore\s+(previous|all|above)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?im)disregard\s+(previous|all|above)`),
	regexp.MustCompile(`(?im)forget\s+(everything|all|previous)`),
	regexp.MustCompile(`(?im)new\s+instructions?:`),
	regexp.MustCompile(`(?im)system\s*:\s*`),
	regexp.MustCompile(`(?im)<\|system\|>`),
	regexp.MustCompile(`(?im)<\|assistant\|>`),
	regexp.MustCompile(`(?im)you\s+are\s+now\s+(a\s+)?different`),
	regexp.MustCompile(`(?im)pretend\s+(to\s+be|you\s+are)`),
	regexp.MustCompile(`(?im)act\s+as\s+(if|a)`),
	regexp.MustCompile(`(?im)roleplay\s+as`),
	regexp.MustCompile(`(?im)DAN\s+mode`),
	regexp.MustCompile(`(?im)developer\s+mode`),
	regexp.MustCompile(`(?im)bypass\s+(filters?|restrictions?|safety)`),
	regexp.MustCompile(`(?im)unlock\s+(hidden|secret)`),
	regexp.MustCompile(`(?im)\[\s*INST\s*\]`),
	regexp.MustCompile(`(?im)\[\s*SYS(TEM)?\s*\]`),
	regexp.MustCompile(`(?im)</?(system|user|assistant)>`),
}

var (
	spacesRe   = regexp.MustCompile(`[ \t]+`)
	newlinesRe = regexp.MustCompile(`\n{3,}`)
)

// ValidationStage rejects oversized, empty or hostile input and sanitizes
// the rest. It runs before any thread state is loaded or mutated.
type ValidationStage struct {
	MaxChars int
}

func (s *ValidationStage) Name() string { return "validation" }

func (s *ValidationStage) Run(ctx context.Context, tc *TurnContext) error {
	text := tc.RawInput
	if strings.TrimSpace(text) == "" {
		return &RejectedInputError{Code: CodeEmptyInput, Message: "empty input"}
	}

	maxChars := s.MaxChars
	if maxChars <= 0 {
		maxChars = 4000
	}
	if n := len([]rune(text)); n > maxChars {
		return &RejectedInputError{
			Code:    CodeInputTooLong,
			Message: fmt.Sprintf("input too long: %d characters (max: %d)", n, maxChars),
		}
	}

	sanitized := normalizeWhitespace(text)

	for _, pattern := range injectionPatterns {
		if match := pattern.FindString(sanitized); match != "" {
			return &RejectedInputError{
				Code:    CodePromptInjection,
				Message: "input contains disallowed patterns",
			}
		}
	}

	tc.Input = escapeMarkup(sanitized)
	return nil
}

func normalizeWhitespace(text string) string {
	text = spacesRe.ReplaceAllString(text, " ")
	text = newlinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// escapeMarkup defuses the few fragments that downstream renderers might
// interpret, without mangling ordinary text.
func escapeMarkup(text string) string {
	replacer := strings.NewReplacer(
		"<script", "&lt;script",
		"</script", "&lt;/script",
		"javascript:", "javascript&#58;",
	)
	return replacer.Replace(text)
}
