package nlu

import (
	"regexp"
	"strings"
)

// Entity categories returned by ExtractEntities.
const (
	EntityDates     = "dates"
	EntityTimes     = "times"
	EntityNumbers   = "numbers"
	EntityEmails    = "emails"
	EntityPhones    = "phones"
	EntityNames     = "names"
	EntityLocations = "locations"
	EntityProducts  = "products"
	EntityServices  = "services"
)

var (
	datePattern = regexp.MustCompile(`(?i)\b(\d{1,2}[/-]\d{1,2}(?:[/-]\d{2,4})?|\d{4}-\d{2}-\d{2}|(?:mon|tues|wednes|thurs|fri|satur|sun)day|tomorrow|today|yesterday|next (?:week|month|monday|tuesday|wednesday|thursday|friday|saturday|sunday)|(?:january|february|march|april|may|june|july|august|september|october|november|december) \d{1,2})\b`)
	timePattern = regexp.MustCompile(`(?i)\b(\d{1,2}:\d{2}(?:\s?(?:am|pm))?|\d{1,2}\s?(?:am|pm)|noon|midnight)\b`)
	// numberPattern skips digits that belong to dates/times; those are
	// removed from the text before matching.
	numberPattern = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern  = regexp.MustCompile(`\+?\d[\d\s\-()]{7,}\d`)
	namePattern   = regexp.MustCompile(`(?i)\b(?:my name is|i am|i'm|this is)\s+([A-Z][a-z]+(?:\s[A-Z][a-z]+)?)`)
)

// Small lexicons for domain entities; these are extended via configuration
// in deployments with richer catalogs.
var (
	locationLexicon = []string{
		"new york", "london", "paris", "tokyo", "berlin", "madrid",
		"são paulo", "sao paulo", "mexico city", "buenos aires", "downtown",
	}
	productLexicon = []string{
		"laptop", "phone", "tablet", "headphones", "camera", "monitor",
		"subscription", "plan", "package", "bundle",
	}
	serviceLexicon = []string{
		"delivery", "shipping", "installation", "repair", "consultation",
		"cleaning", "maintenance", "training", "onboarding",
	}
)

// ExtractEntities performs lexicon and regex extraction over the input and
// returns a map of category to matched values. Categories with no matches
// are omitted.
func ExtractEntities(text string) map[string][]string {
	entities := make(map[string][]string)

	add := func(category string, values []string) {
		if len(values) > 0 {
			entities[category] = dedupe(values)
		}
	}

	add(EntityDates, datePattern.FindAllString(text, -1))
	add(EntityTimes, timePattern.FindAllString(text, -1))
	add(EntityEmails, emailPattern.FindAllString(text, -1))

	// Strip emails before phone matching so user@host digits don't trip it.
	phoneText := emailPattern.ReplaceAllString(text, " ")
	add(EntityPhones, phonePattern.FindAllString(phoneText, -1))

	// Numbers are matched after removing dates, times, and phones to avoid
	// double-reporting their digit runs.
	numberText := datePattern.ReplaceAllString(phoneText, " ")
	numberText = timePattern.ReplaceAllString(numberText, " ")
	numberText = phonePattern.ReplaceAllString(numberText, " ")
	add(EntityNumbers, numberPattern.FindAllString(numberText, -1))

	var names []string
	for _, match := range namePattern.FindAllStringSubmatch(text, -1) {
		names = append(names, match[1])
	}
	add(EntityNames, names)

	lower := strings.ToLower(text)
	add(EntityLocations, lexiconMatches(lower, locationLexicon))
	add(EntityProducts, lexiconMatches(lower, productLexicon))
	add(EntityServices, lexiconMatches(lower, serviceLexicon))

	return entities
}

func lexiconMatches(lowerText string, lexicon []string) []string {
	var matches []string
	for _, term := range lexicon {
		if strings.Contains(lowerText, term) {
			matches = append(matches, term)
		}
	}
	return matches
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		key := strings.ToLower(strings.TrimSpace(v))
		if _, ok := seen[key]; ok || key == "" {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
