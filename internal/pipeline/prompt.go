package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/wigtn/wigtn-spot-finder/internal/provider"
	"github.com/wigtn/wigtn-spot-finder/internal/thread"
)

const baseSystemPrompt = `You are a friendly and knowledgeable travel assistant helping foreigners explore Korea.

IMPORTANT CONTEXT:
- Google Maps does NOT work well in Korea. You use Naver Map data instead.
- You help tourists find attractions, restaurants, and plan itineraries.
- You can search for places, get directions, and optimize travel routes.

RESPONSE GUIDELINES:
- Be warm, helpful, and culturally sensitive
- Provide practical tips that tourists need (T-money cards, WiFi, subway tips)
- Include Korean names in parentheses when mentioning places: "Gyeongbokgung Palace (경복궁)"
- Mention approximate costs in both KRW and USD when relevant
- Consider operating hours and travel time between locations`

var stagePrompts = map[thread.Stage]string{
	thread.StageInit: `
CURRENT STAGE: Initial Greeting
- Welcome the user warmly
- Ask about their travel dates and interests
- Learn where they're staying (hotel area)
- Discover any dietary restrictions or mobility needs
- Keep the conversation light and friendly`,

	thread.StageInvestigation: `
CURRENT STAGE: Understanding Needs
- Ask clarifying questions about their interests
- Suggest popular attractions based on their preferences
- Learn about their daily schedule preferences
- Understand their transportation comfort (walking vs subway vs taxi)
- Search for places that match their criteria`,

	thread.StagePlanning: `
CURRENT STAGE: Building Itinerary
- Create detailed day-by-day schedules
- Include realistic travel times between locations
- Schedule meals at appropriate times (lunch 12-2pm, dinner 6-8pm)
- Consider attraction operating hours
- Optimize the route to minimize travel time
- Provide alternative options for each time slot`,

	thread.StageResolution: `
CURRENT STAGE: Finalizing Plans
- Summarize the complete itinerary clearly
- Ask if any modifications are needed
- Provide emergency contact information:
  * Police: 112
  * Fire/Ambulance: 119
  * Tourist Helpline: 1330 (24/7, English available)
- Remind about T-money card for transportation
- Offer to save the itinerary for reference
- Wish them a wonderful trip!`,
}

var languageHints = map[string]string{
	"en": "Respond in English.",
	"zh": "Respond in Chinese (Simplified). Include Korean names in parentheses.",
	"ja": "Respond in Japanese. Include Korean names in parentheses.",
	"ko": "Respond in Korean.",
}

const (
	maxMemorySnippets  = 5
	memorySnippetChars = 300
	maxEntityHints     = 10
)

// systemPreamble is the stage and language dependent prefix of the system
// prompt. The trimmer prices it before the full prompt exists.
func systemPreamble(stage thread.Stage, language string) string {
	var b strings.Builder
	b.WriteString(baseSystemPrompt)
	if sp, ok := stagePrompts[stage]; ok {
		b.WriteString("\n")
		b.WriteString(sp)
	}
	hint, ok := languageHints[language]
	if !ok {
		hint = languageHints["en"]
	}
	b.WriteString("\n\nLANGUAGE: ")
	b.WriteString(hint)
	return b.String()
}

// PromptStage assembles the message list sent to the model: a context-aware
// system prompt, the unsummarized tail and the new user input.
type PromptStage struct {
	Store *thread.Store
}

func (s *PromptStage) Name() string { return "prompt" }

func (s *PromptStage) Run(ctx context.Context, tc *TurnContext) error {
	var b strings.Builder
	b.WriteString(systemPreamble(tc.NextStage, tc.Language))

	if s.Store != nil {
		entities, err := s.Store.RecentEntities(ctx, tc.Thread.ThreadID, maxEntityHints)
		if err == nil && len(entities) > 0 {
			b.WriteString("\n\nKNOWN TRIP DETAILS:")
			for _, e := range entities {
				fmt.Fprintf(&b, "\n- %s: %s", e.Kind, e.Value)
			}
		}
	}

	if len(tc.Records) > 0 {
		b.WriteString("\n\nRELEVANT CONTEXT FROM PREVIOUS CONVERSATIONS:")
		for i, rec := range tc.Records {
			if i == maxMemorySnippets {
				break
			}
			snippet := rec.Content
			if r := []rune(snippet); len(r) > memorySnippetChars {
				snippet = string(r[:memorySnippetChars]) + "..."
			}
			fmt.Fprintf(&b, "\n%d. %s", i+1, snippet)
		}
		b.WriteString("\n(Use this context to provide personalized recommendations)")
	}

	if tc.LatestSummary != nil {
		b.WriteString("\n\nPREVIOUS CONVERSATION SUMMARY:\n")
		b.WriteString(tc.LatestSummary.Text)
	}

	prompt := make([]provider.Message, 0, len(tc.Tail)+2)
	prompt = append(prompt, provider.Message{Role: "system", Content: b.String()})
	for _, m := range tc.Tail {
		prompt = append(prompt, provider.Message{Role: m.Role, Content: m.Content})
	}
	prompt = append(prompt, provider.Message{Role: "user", Content: tc.Input})
	tc.Prompt = prompt
	return nil
}
