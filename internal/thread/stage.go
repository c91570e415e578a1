package thread

import (
	"strings"
	"unicode"
)

// Stage is the coarse phase of a conversation, used to pick prompt guidance.
type Stage string

const (
	StageInit          Stage = "init"
	StageInvestigation Stage = "investigation"
	StagePlanning      Stage = "planning"
	StageResolution    Stage = "resolution"
)

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageInit, StageInvestigation, StagePlanning, StageResolution:
		return true
	}
	return false
}

var investigationKeywords = []string{
	"recommend", "suggest", "what", "where", "which", "best",
	"good", "popular", "famous", "must-see", "must-visit",
	"interested in", "looking for", "want to",
}

var planningKeywords = []string{
	"itinerary", "schedule", "plan", "day", "morning", "afternoon",
	"evening", "route", "order", "optimize", "how long", "how much time",
	"between", "from", "to", "next",
}

var resolutionKeywords = []string{
	"looks good", "perfect", "thanks", "thank you", "great",
	"save", "done", "finished", "complete", "final",
	"that's all", "nothing else", "goodbye", "bye",
}

// DetectStage picks the stage for the next turn from the latest user message
// and the turn count. Keyword hits win over the turn-count progression;
// resolution only triggers once planning has started.
func DetectStage(current Stage, turnCount int, lastUserMessage string) Stage {
	lower := strings.ToLower(lastUserMessage)

	if containsAny(lower, resolutionKeywords) {
		if current == StagePlanning || current == StageResolution {
			return StageResolution
		}
	}
	if containsAny(lower, planningKeywords) {
		return StagePlanning
	}
	if containsAny(lower, investigationKeywords) {
		return StageInvestigation
	}

	switch {
	case turnCount <= 2:
		return StageInit
	case turnCount <= 6:
		return StageInvestigation
	default:
		return StagePlanning
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if containsPhrase(s, kw) {
			return true
		}
	}
	return false
}

// containsPhrase reports whether phrase occurs in s on word boundaries.
// Plain substring matching would fire on "to" inside "store" or "day"
// inside "today".
func containsPhrase(s, phrase string) bool {
	for start := 0; ; {
		i := strings.Index(s[start:], phrase)
		if i < 0 {
			return false
		}
		i += start
		beforeOK := i == 0 || !isWordByte(s[i-1])
		end := i + len(phrase)
		afterOK := end >= len(s) || !isWordByte(s[end])
		if beforeOK && afterOK {
			return true
		}
		start = i + 1
	}
}

func isWordByte(b byte) bool {
	r := rune(b)
	return r >= 0x80 || unicode.IsLetter(r) || unicode.IsDigit(r)
}
