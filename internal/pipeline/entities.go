package pipeline

import (
	"regexp"
	"strings"

	"github.com/wigtn/wigtn-spot-finder/internal/thread"
)

// Entity patterns. Lightweight regex matching stands in for full NER; it
// covers the place names, dates, budgets and times travellers actually type.
var (
	koreanPlaceRe = regexp.MustCompile(`[가-힣]{2,}(?:궁|사|역|동|구|시|도|산|강|해변|공원|시장|거리)`)

	englishPlaceRe = regexp.MustCompile(`(?i)\b(?:Gyeongbokgung|Bukchon|Myeongdong|Hongdae|Gangnam|Itaewon|` +
		`Insadong|Namdaemun|Dongdaemun|N Seoul Tower|Lotte Tower|` +
		`Namsan|Han River|Cheonggyecheon)\b`)

	dateRe = regexp.MustCompile(`(?i)\b(?:\d{1,2}/\d{1,2}|\d{4}-\d{2}-\d{2}|` +
		`(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]* \d{1,2}|` +
		`tomorrow|today|next (?:week|month)|` +
		`(?:Mon|Tue|Wed|Thu|Fri|Sat|Sun)[a-z]*day)\b`)

	budgetRe = regexp.MustCompile(`(?i)\b(\d{1,3}(?:,\d{3})*)\s*(?:won|krw|원)`)

	timeRe = regexp.MustCompile(`(?i)\b(\d{1,2}:\d{2}\s*(?:am|pm)?|\d{1,2}\s*(?:am|pm))\b`)
)

// ExtractEntities pulls place, date, budget and time mentions out of a
// completed turn. Duplicates are dropped case-insensitively, first mention
// wins.
func ExtractEntities(userMessage, assistantMessage string, turnIndex int) []thread.Entity {
	combined := userMessage
	if assistantMessage != "" {
		combined += " " + assistantMessage
	}

	var out []thread.Entity
	seen := make(map[string]bool)
	add := func(kind, value string, confidence float64) {
		key := kind + ":" + strings.ToLower(value)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, thread.Entity{
			Kind:       kind,
			Value:      value,
			Confidence: confidence,
			TurnIndex:  turnIndex,
		})
	}

	for _, m := range koreanPlaceRe.FindAllString(combined, -1) {
		add(thread.EntityPlace, m, 0.7)
	}
	for _, m := range englishPlaceRe.FindAllString(combined, -1) {
		add(thread.EntityPlace, m, 0.9)
	}
	for _, m := range dateRe.FindAllString(combined, -1) {
		add(thread.EntityDate, m, 0.8)
	}
	for _, m := range budgetRe.FindAllStringSubmatch(combined, -1) {
		add(thread.EntityBudget, m[1], 0.9)
	}
	for _, m := range timeRe.FindAllStringSubmatch(combined, -1) {
		add(thread.EntityTime, m[1], 0.6)
	}
	return out
}
