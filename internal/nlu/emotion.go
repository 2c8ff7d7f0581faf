package nlu

import (
	"regexp"
	"strings"
)

// Emotion names produced by the rule engine.
const (
	EmotionHappy   = "happy"
	EmotionSad     = "sad"
	EmotionAngry   = "angry"
	EmotionWorried = "worried"
	EmotionExcited = "excited"
	EmotionNeutral = "neutral"
)

// Emotion is a classified emotional state with an intensity in [0, 1].
type Emotion struct {
	Name       string
	Confidence float64
	Intensity  float64
	Method     string
}

type emotionCategory struct {
	name     string
	weight   float64
	patterns []*regexp.Regexp
}

var emotionCategories = []emotionCategory{
	{
		name:   EmotionAngry,
		weight: 0.85,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(angry|furious|outrageous|ridiculous|fed up|sick of)\b`),
			regexp.MustCompile(`(?i)\b(terrible|awful|worst|unacceptable|hate)\b`),
		},
	},
	{
		name:   EmotionSad,
		weight: 0.8,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(sad|unhappy|depressed|miserable|heartbroken|crying)\b`),
			regexp.MustCompile(`(?i)\b(disappointed|let down|upset)\b`),
		},
	},
	{
		name:   EmotionWorried,
		weight: 0.8,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(worried|anxious|concerned|nervous|scared|afraid)\b`),
			regexp.MustCompile(`(?i)\b(urgent|emergency|asap|right away)\b`),
		},
	},
	{
		name:   EmotionExcited,
		weight: 0.8,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(excited|can'?t wait|thrilled|amazing|awesome|incredible)\b`),
			regexp.MustCompile(`(?i)\b(wow|yay|woohoo)\b`),
		},
	},
	{
		name:   EmotionHappy,
		weight: 0.75,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(happy|glad|great|wonderful|love it|perfect|fantastic)\b`),
			regexp.MustCompile(`(?i)\b(thanks|thank you|appreciated?)\b`),
		},
	},
}

// classifyEmotionByRules scores emotion categories the same way as intents
// and derives an intensity from text emphasis cues.
func classifyEmotionByRules(text string) Emotion {
	best := Emotion{Name: EmotionNeutral, Confidence: 0.3, Intensity: 0.2, Method: MethodRules}
	bestScore := 0.0

	for _, category := range emotionCategories {
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
			best = Emotion{
				Name:       category.name,
				Confidence: score,
				Intensity:  emotionIntensity(text, score),
				Method:     MethodRules,
			}
		}
	}

	return best
}

// emotionIntensity adjusts the base score using emphasis cues: exclamation
// marks, repeated punctuation, and shouting caps.
func emotionIntensity(text string, base float64) float64 {
	intensity := base

	if strings.Count(text, "!") >= 2 {
		intensity += 0.2
	} else if strings.Contains(text, "!") {
		intensity += 0.1
	}

	letters, uppers := 0, 0
	for _, r := range text {
		if r >= 'a' && r <= 'z' {
			letters++
		} else if r >= 'A' && r <= 'Z' {
			letters++
			uppers++
		}
	}
	if letters >= 8 && float64(uppers)/float64(letters) > 0.6 {
		intensity += 0.2
	}

	if intensity > 1 {
		intensity = 1
	}
	return intensity
}

func knownEmotion(name string) bool {
	if name == EmotionNeutral {
		return true
	}
	for _, category := range emotionCategories {
		if category.name == name {
			return true
		}
	}
	return false
}

func emotionLabels() []string {
	labels := make([]string, 0, len(emotionCategories)+1)
	for _, category := range emotionCategories {
		labels = append(labels, category.name)
	}
	return append(labels, EmotionNeutral)
}
