package personality

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"
)

// tonePhraseChance is the probability a tone phrase is prepended.
const tonePhraseChance = 0.4

// Context carries the per-message signals the transformer may use.
type Context struct {
	Intent  string
	Emotion string
	Stage   string
}

// Transformer rewrites generated replies according to a personality
// profile. The pipeline has four stages: type rewrite, tone adjustment,
// industry styling, and brand voice. A failure inside any stage passes the
// unmodified text to the next stage; the base reply is never lost.
type Transformer struct {
	logger *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewTransformer creates a Transformer.
func NewTransformer(logger *slog.Logger) *Transformer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Transformer{
		logger: logger.With("component", "personality_transformer"),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Apply runs the four-stage rewrite pipeline over text.
func (t *Transformer) Apply(text string, profile Profile, tc Context) string {
	if strings.TrimSpace(text) == "" {
		return text
	}

	stages := []struct {
		name string
		fn   func(string) string
	}{
		{"type_rewrite", func(s string) string { return t.applyTypeRewrite(s, profile, tc) }},
		{"tone_adjustment", func(s string) string { return t.applyTone(s, profile) }},
		{"industry_styling", func(s string) string { return applyIndustryStyle(s, profile.IndustryType) }},
		{"brand_voice", func(s string) string { return applyBrandVoice(s, profile) }},
	}

	for _, stage := range stages {
		text = t.runStage(stage.name, stage.fn, text)
	}
	return text
}

// runStage isolates one stage: a panic is logged and the input text is
// carried forward unchanged.
func (t *Transformer) runStage(name string, fn func(string) string, text string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Warn("Transformation stage failed, passing text through",
				"stage", name, "panic", fmt.Sprintf("%v", r))
			out = text
		}
	}()
	return fn(text)
}

// --- Stage 1: personality type rewrite ---

var (
	greetingDetect = regexp.MustCompile(`(?i)^\s*(hi|hello|hey|good (morning|afternoon|evening)|greetings|welcome)\b`)
	closingDetect  = regexp.MustCompile(`(?i)\b(bye|goodbye|see you|take care|have a (great|good|nice) (day|evening|weekend))\b`)
)

var typeGreetings = map[string]string{
	TypeProfessional: "Good day.",
	TypeFriendly:     "Hey!",
	TypeExpert:       "Hello,",
	TypeCaring:       "Hi, so glad you reached out.",
	TypeTrendy:       "Heyyy!",
}

var typeClosings = map[string]string{
	TypeProfessional: "Please don't hesitate to reach out if anything else comes up.",
	TypeFriendly:     "Talk soon!",
	TypeExpert:       "Let me know if you need further detail.",
	TypeCaring:       "I'm here whenever you need me.",
	TypeTrendy:       "Catch you later!",
}

// formalToCasual and its inverse implement the lexical substitution table.
var formalToCasual = map[string]string{
	"assistance":   "help",
	"purchase":     "buy",
	"inquire":      "ask",
	"commence":     "start",
	"utilize":      "use",
	"nevertheless": "still",
	"therefore":    "so",
}

var casualToFormal = map[string]string{
	"help":  "assistance",
	"buy":   "purchase",
	"ask":   "inquire",
	"start": "commence",
	"use":   "utilize",
	"so":    "therefore",
	"kids":  "children",
}

var typeEmojis = map[string][]string{
	TypeFriendly: {"🙂", "👍", "✨"},
	TypeTrendy:   {"🔥", "💯", "✨", "🚀"},
}

func (t *Transformer) applyTypeRewrite(text string, profile Profile, tc Context) string {
	if greetingDetect.MatchString(text) || tc.Intent == "greeting" {
		if phrase, ok := typeGreetings[profile.Type]; ok {
			text = greetingDetect.ReplaceAllString(text, phrase)
		}
	}
	if closingDetect.MatchString(text) {
		if phrase, ok := typeClosings[profile.Type]; ok && !strings.Contains(text, phrase) {
			text = strings.TrimRight(text, " \n") + " " + phrase
		}
	}

	switch profile.CommunicationStyle {
	case "casual":
		text = substituteWords(text, formalToCasual)
	case "formal":
		text = substituteWords(text, casualToFormal)
	}

	// Emoji injection is reserved for the informal personality types.
	if emojis, ok := typeEmojis[profile.Type]; ok && !containsEmoji(text, emojis) {
		t.rngMu.Lock()
		emoji := emojis[t.rng.Intn(len(emojis))]
		t.rngMu.Unlock()
		text = strings.TrimRight(text, " \n") + " " + emoji
	}

	return text
}

// --- Stage 2: tone adjustment ---

var tonePhrases = map[string][]string{
	ToneEnthusiastic: {"Great news —", "Love it —", "Fantastic —"},
	ToneCalm:         {"No worries.", "All good.", "Take your time."},
	ToneEmpathetic:   {"I completely understand.", "I hear you.", "That makes sense."},
	ToneConfident:    {"Absolutely.", "Certainly.", "You can count on it."},
}

func (t *Transformer) applyTone(text string, profile Profile) string {
	phrases, ok := tonePhrases[profile.EmotionalTone]
	if ok && len(phrases) > 0 {
		t.rngMu.Lock()
		roll := t.rng.Float64()
		phrase := phrases[t.rng.Intn(len(phrases))]
		t.rngMu.Unlock()
		if roll < tonePhraseChance {
			text = phrase + " " + text
		}
	}

	if profile.EmotionalTone == ToneEnthusiastic {
		text = exclaimTerminalPeriods(text)
	}
	return text
}

// exclaimTerminalPeriods converts sentence-final periods to exclamation
// marks, leaving ellipses, decimals, and abbreviations alone.
func exclaimTerminalPeriods(text string) string {
	var sb strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		if r != '.' {
			sb.WriteRune(r)
			continue
		}
		prevDigit := i > 0 && runes[i-1] >= '0' && runes[i-1] <= '9'
		nextDot := i+1 < len(runes) && runes[i+1] == '.'
		prevDot := i > 0 && runes[i-1] == '.'
		atEnd := i == len(runes)-1 || runes[i+1] == ' ' || runes[i+1] == '\n'
		if atEnd && !prevDigit && !nextDot && !prevDot {
			sb.WriteRune('!')
		} else {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// --- Stage 3: industry styling ---

var industrySubstitutions = map[string]map[string]string{
	"healthcare": {
		"problem":  "concern",
		"customer": "patient",
		"buy":      "obtain",
	},
	"retail": {
		"item":   "product",
		"client": "customer",
	},
	"finance": {
		"money":   "funds",
		"problem": "matter",
	},
	"hospitality": {
		"customer": "guest",
		"buy":      "book",
	},
}

func applyIndustryStyle(text, industryType string) string {
	subs, ok := industrySubstitutions[strings.ToLower(industryType)]
	if !ok {
		return text
	}
	return substituteWords(text, subs)
}

// --- Stage 4: brand voice ---

// customInstructionRule parses directives of the form:
//
//	replace "foo" with "bar"
var customInstructionRule = regexp.MustCompile(`(?i)replace\s+"([^"]+)"\s+with\s+"([^"]+)"`)

func applyBrandVoice(text string, profile Profile) string {
	for _, match := range customInstructionRule.FindAllStringSubmatch(profile.CustomInstructions, -1) {
		text = substituteWords(text, map[string]string{match[1]: match[2]})
	}
	if len(profile.BrandVoice) > 0 {
		text = substituteWords(text, profile.BrandVoice)
	}
	return text
}

// --- helpers ---

// substituteWords replaces whole-word, case-insensitive occurrences,
// preserving a leading capital on the replacement.
func substituteWords(text string, table map[string]string) string {
	for from, to := range table {
		pattern, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(from) + `\b`)
		if err != nil {
			continue
		}
		text = pattern.ReplaceAllStringFunc(text, func(match string) string {
			if match != "" && match[0] >= 'A' && match[0] <= 'Z' {
				return capitalize(to)
			}
			return to
		})
	}
	return text
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func containsEmoji(text string, emojis []string) bool {
	for _, e := range emojis {
		if strings.Contains(text, e) {
			return true
		}
	}
	return false
}
