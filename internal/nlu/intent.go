// Package nlu implements natural language understanding for inbound chat
// messages: rule-based intent and emotion classification with an optional
// AI override, entity extraction, and response strategy derivation.
package nlu

import (
	"regexp"
)

// Classification methods recorded on results.
const (
	MethodRules = "rules"
	MethodAI    = "ai"
)

// Intent names produced by the rule engine. The AI classifier is
// constrained to the same label set.
const (
	IntentGreeting    = "greeting"
	IntentFarewell    = "farewell"
	IntentQuestion    = "question"
	IntentComplaint   = "complaint"
	IntentPurchase    = "purchase"
	IntentPricing     = "pricing"
	IntentSupport     = "support"
	IntentAppointment = "appointment"
	IntentThanks      = "thanks"
	IntentGeneral     = "general"
)

// Intent is a classified message intent.
type Intent struct {
	Name       string
	Confidence float64
	Method     string
}

// intentCategory scores as (#matched patterns)/(#patterns) × weight.
type intentCategory struct {
	name     string
	weight   float64
	patterns []*regexp.Regexp
}

var intentCategories = []intentCategory{
	{
		name:   IntentGreeting,
		weight: 0.9,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(hi|hello|hey|hiya|howdy|greetings|good (morning|afternoon|evening))\b`),
		},
	},
	{
		name:   IntentFarewell,
		weight: 0.9,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(bye|goodbye|see you|farewell|good night|take care)\b`),
		},
	},
	{
		name:   IntentComplaint,
		weight: 0.85,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(complain|complaint|unacceptable|terrible|awful|worst)\b`),
			regexp.MustCompile(`(?i)\b(not working|doesn'?t work|broken|failed|refund|disappointed)\b`),
		},
	},
	{
		name:   IntentPricing,
		weight: 0.8,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(price|pricing|cost|how much|fee|rate|quote)\b`),
			regexp.MustCompile(`(?i)\b(discount|cheaper|expensive|budget)\b`),
		},
	},
	{
		name:   IntentPurchase,
		weight: 0.8,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(buy|purchase|order|checkout|add to cart)\b`),
			regexp.MustCompile(`(?i)\b(i('?| wi)ll take|i want (it|one|to buy))\b`),
		},
	},
	{
		name:   IntentAppointment,
		weight: 0.8,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(appointment|schedule|book|booking|reserve|reservation)\b`),
			regexp.MustCompile(`(?i)\b(available|availability|slot|reschedule)\b`),
		},
	},
	{
		name:   IntentSupport,
		weight: 0.75,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(help|support|assist|assistance|issue|problem|trouble)\b`),
			regexp.MustCompile(`(?i)\b(how (do|can) i|can you help)\b`),
		},
	},
	{
		name:   IntentThanks,
		weight: 0.85,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(thanks|thank you|thx|appreciated?|grateful)\b`),
		},
	},
	{
		name:   IntentQuestion,
		weight: 0.6,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\?`),
			regexp.MustCompile(`(?i)^(what|when|where|who|why|how|which|can|could|do|does|is|are)\b`),
		},
	},
}

// classifyIntentByRules computes the rule-based score per category and
// returns the highest-scoring intent. Unmatched text degrades to a neutral
// low-confidence "general" intent.
func classifyIntentByRules(text string) Intent {
	best := Intent{Name: IntentGeneral, Confidence: 0.3, Method: MethodRules}
	bestScore := 0.0

	for _, category := range intentCategories {
		matched := 0
		for _, pattern := range category.patterns {
			if pattern.MatchString(text) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}

		score := float64(matched) / float64(len(category.patterns)) * category.weight
		if score > bestScore {
			bestScore = score
			best = Intent{Name: category.name, Confidence: score, Method: MethodRules}
		}
	}

	return best
}

// knownIntent reports whether a label belongs to the rule engine's set.
func knownIntent(name string) bool {
	if name == IntentGeneral {
		return true
	}
	for _, category := range intentCategories {
		if category.name == name {
			return true
		}
	}
	return false
}

// intentLabels returns all labels for the AI classification prompt.
func intentLabels() []string {
	labels := make([]string, 0, len(intentCategories)+1)
	for _, category := range intentCategories {
		labels = append(labels, category.name)
	}
	return append(labels, IntentGeneral)
}
