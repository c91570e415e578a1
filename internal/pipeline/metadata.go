package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/wigtn/wigtn-spot-finder/internal/thread"
)

// Intent labels.
const (
	IntentGreeting   = "greeting"
	IntentThanks     = "thanks"
	IntentFarewell   = "farewell"
	IntentQuestion   = "question"
	IntentSearch     = "search_request"
	IntentDirections = "directions_request"
	IntentItinerary  = "itinerary_request"
	IntentSave       = "save_request"
	IntentModify     = "modification"
	IntentGeneral    = "general"
)

// intentRules are checked in order; the first hit wins.
var intentRules = []struct {
	intent   string
	keywords []string
}{
	{IntentGreeting, []string{"hello", "hi", "hey", "안녕", "你好", "こんにちは"}},
	{IntentThanks, []string{"thank", "thanks", "감사", "谢谢", "ありがとう"}},
	{IntentFarewell, []string{"bye", "goodbye", "see you", "안녕히", "再见", "さようなら"}},
	{IntentQuestion, []string{"?", "what", "where", "when", "how", "why", "which", "can you"}},
	{IntentSearch, []string{"find", "search", "look for", "recommend", "suggest"}},
	{IntentDirections, []string{"direction", "route", "how to get", "way to"}},
	{IntentItinerary, []string{"itinerary", "schedule", "plan", "day trip"}},
	{IntentSave, []string{"save", "remember", "note"}},
	{IntentModify, []string{"change", "modify", "update", "instead"}},
}

// MetadataStage stamps the turn with its start time, classifies the user's
// intent and detects the conversation stage. It never fails.
type MetadataStage struct{}

func (MetadataStage) Name() string { return "metadata" }

func (MetadataStage) Run(ctx context.Context, tc *TurnContext) error {
	if tc.StartedAt.IsZero() {
		tc.StartedAt = time.Now()
	}
	tc.Intent = ClassifyIntent(tc.Input)
	tc.NextStage = thread.DetectStage(tc.Thread.Stage, tc.Thread.TurnCount, tc.Input)
	return nil
}

// ClassifyIntent buckets a message into a coarse intent label by keyword.
func ClassifyIntent(message string) string {
	lower := strings.ToLower(message)
	for _, rule := range intentRules {
		for _, kw := range rule.keywords {
			if keywordMatch(lower, kw) {
				return rule.intent
			}
		}
	}
	return IntentGeneral
}

// keywordMatch applies word boundaries to ASCII keywords so "hi" does not
// fire inside "which". Punctuation and CJK keywords match as substrings.
func keywordMatch(s, kw string) bool {
	for i := 0; i < len(kw); i++ {
		b := kw[i]
		if b >= 0x80 || !(isWordByte(b) || b == ' ') {
			return strings.Contains(s, kw)
		}
	}
	for start := 0; ; {
		i := strings.Index(s[start:], kw)
		if i < 0 {
			return false
		}
		i += start
		beforeOK := i == 0 || !isWordByte(s[i-1])
		end := i + len(kw)
		afterOK := end >= len(s) || !isWordByte(s[end])
		if beforeOK && afterOK {
			return true
		}
		start = i + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 0x80 || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9')
}
