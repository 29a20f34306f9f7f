package planner

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Keyword sets for the deterministic fallback planner.
var (
	lowBudgetKeywords  = []string{"cheap", "budget", "affordable", "inexpensive", "free", "deal", "deals", "low cost"}
	highBudgetKeywords = []string{"expensive", "luxury", "upscale", "splurge", "fancy", "high end"}
	costKeywords       = append(append([]string{"price", "prices", "cost", "pricing"}, lowBudgetKeywords...), highBudgetKeywords...)

	aestheticKeywords = []string{
		"vibe", "vibes", "aesthetic", "cozy", "cosy", "trendy", "minimalist", "modern", "rustic",
		"chic", "romantic", "quiet", "lively", "instagram", "artsy", "vintage", "elegant", "hip",
		"atmosphere", "ambience", "ambiance", "cute", "dark academia", "cyberpunk",
	}
	riskKeywords = []string{
		"safe", "safety", "weather", "rain", "outdoor", "outdoors", "crowd", "crowded", "busy",
		"reliable", "risk", "late night", "open late",
	}
	accessKeywords = []string{
		"near", "nearby", "close", "walk", "walking", "walkable", "transit", "subway", "bus", "ttc",
		"parking", "drive", "accessible", "wheelchair", "bike", "commute", "on foot",
	}
	actionKeywords = []string{"email", "contact", "reach out", "book", "reserve"}

	fillerWords = map[string]bool{
		"i": true, "we": true, "want": true, "wants": true, "looking": true, "look": true, "for": true,
		"a": true, "an": true, "the": true, "find": true, "me": true, "us": true, "some": true,
		"somewhere": true, "place": true, "places": true, "to": true, "go": true, "with": true,
		"need": true, "like": true, "would": true, "please": true, "good": true, "great": true,
		"nice": true, "best": true, "lets": true, "let's": true, "can": true, "you": true,
		"recommend": true, "suggest": true, "spot": true, "spots": true, "our": true, "my": true,
		"and": true, "that": true, "is": true, "are": true, "of": true, "in": true, "near": true,
		"around": true, "get": true,
	}

	numberWords = map[string]int{
		"two": 2, "three": 3, "four": 4, "five": 5, "six": 6, "seven": 7, "eight": 8,
		"nine": 9, "ten": 10, "eleven": 11, "twelve": 12, "dozen": 12,
	}

	groupPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(\d+|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve)\s+(?:people|persons|friends|of us|guests|adults|coworkers|colleagues|kids)\b`),
		regexp.MustCompile(`(?i)\bgroup of\s+(\d+|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|a dozen)\b`),
		regexp.MustCompile(`(?i)\bfor\s+(\d+)\b`),
	}
	locationPattern = regexp.MustCompile(`\b(?:in|near|around)\s+([A-Z][\w'.-]*(?:\s+[A-Z][\w'.-]*)*)`)
)

// keywordHits counts how many keywords of a set occur in the normalized
// request. Multi-word keywords match as phrases.
func keywordHits(normalized string, keywords []string) int {
	padded := " " + normalized + " "
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(padded, " "+kw+" ") {
			hits++
		}
	}
	return hits
}

// normalizeRequest lowercases and collapses the request into space-separated words.
func normalizeRequest(raw string) string {
	fields := strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	return strings.Join(fields, " ")
}

func parseCount(s string) int {
	s = strings.TrimPrefix(strings.ToLower(s), "a ")
	if n, ok := numberWords[s]; ok {
		return n
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0
	}
	return n
}

func extractGroupSize(raw string) (int, string) {
	for _, re := range groupPatterns {
		if m := re.FindStringSubmatch(raw); m != nil {
			if n := parseCount(m[1]); n > 0 {
				return n, m[0]
			}
		}
	}
	return 1, ""
}

func extractLocation(raw, fallback string) (string, string) {
	if m := locationPattern.FindStringSubmatch(raw); m != nil {
		return strings.TrimRight(m[1], ".,!?"), m[0]
	}
	return fallback, ""
}

func extractBudget(normalized string) string {
	low := keywordHits(normalized, lowBudgetKeywords)
	high := keywordHits(normalized, highBudgetKeywords)
	switch {
	case low > high:
		return "low"
	case high > low:
		return "high"
	default:
		return "medium"
	}
}

func extractVibe(normalized string) string {
	padded := " " + normalized + " "
	best, bestAt := "", -1
	for _, kw := range aestheticKeywords {
		if i := strings.Index(padded, " "+kw+" "); i >= 0 && (bestAt < 0 || i < bestAt) {
			best, bestAt = kw, i
		}
	}
	return best
}

func extractActivity(raw string, strip ...string) string {
	text := raw
	for _, s := range strip {
		if s != "" {
			text = strings.Replace(text, s, " ", 1)
		}
	}
	var kept []string
	for _, w := range strings.Fields(normalizeRequest(text)) {
		if fillerWords[w] {
			continue
		}
		if _, err := strconv.Atoi(w); err == nil {
			continue
		}
		kept = append(kept, w)
	}
	if len(kept) == 0 {
		return strings.TrimSpace(raw)
	}
	return strings.Join(kept, " ")
}

// HeuristicPlan is the output of the keyword planner.
type HeuristicPlan struct {
	Intent  Intent
	Stages  StageSet
	Weights map[StageID]float64
}

// PlanHeuristically derives a plan from keyword hits alone. It is total and
// deterministic.
func PlanHeuristically(raw, defaultLocation string) HeuristicPlan {
	normalized := normalizeRequest(raw)

	groupSize, groupPhrase := extractGroupSize(raw)
	location, locationPhrase := extractLocation(raw, defaultLocation)

	hits := map[StageID]int{
		StageCost:          keywordHits(normalized, costKeywords),
		StageAesthetic:     keywordHits(normalized, aestheticKeywords),
		StageReview:        keywordHits(normalized, riskKeywords),
		StageAccessibility: keywordHits(normalized, accessKeywords),
	}

	intent := Intent{
		Activity:   extractActivity(raw, locationPhrase, groupPhrase),
		GroupSize:  groupSize,
		BudgetTier: extractBudget(normalized),
		Location:   location,
	}
	if hits[StageAesthetic] > 0 {
		intent.VibePreference = extractVibe(normalized)
	}
	if keywordHits(normalized, actionKeywords) > 0 {
		intent.RequiresOAuth = true
		intent.AllowedActions = []string{"send_email"}
	}

	total := 0
	for _, n := range hits {
		total += n
	}

	weights := map[StageID]float64{StageDiscovery: 1.0}
	stages := StageSet{StageDiscovery}
	if total == 0 {
		for _, id := range AllStages[1:] {
			stages = append(stages, id)
			weights[id] = 0.5
		}
		return HeuristicPlan{Intent: intent, Stages: stages, Weights: weights}
	}

	for _, id := range AllStages[1:] {
		n := hits[id]
		active := n > 0
		if groupSize > 1 && (id == StageCost || id == StageReview) {
			active = true
		}
		if !active {
			continue
		}
		stages = append(stages, id)
		weights[id] = stageWeight(n)
	}
	return HeuristicPlan{Intent: intent, Stages: stages, Weights: weights}
}

func stageWeight(hits int) float64 {
	w := 0.5 + 0.1*float64(hits)
	if w > 1.0 {
		return 1.0
	}
	return roundTo(w, 2)
}

// ComplexityTier derives the tier from the number of active stages.
func ComplexityTier(stages StageSet) string {
	switch n := len(stages); {
	case n <= 2:
		return "tier_1"
	case n <= 4:
		return "tier_2"
	default:
		return "tier_3"
	}
}
