package personality

import (
	"strings"
	"testing"
)

func TestRunStageIsolatesPanics(t *testing.T) {
	t.Parallel()

	tr := NewTransformer(nil)

	out := tr.runStage("exploding", func(string) string {
		panic("stage blew up")
	}, "the original reply")

	if out != "the original reply" {
		t.Errorf("runStage() = %q, want the input passed through unchanged", out)
	}
}

func TestApplyTypeRewriteGreeting(t *testing.T) {
	t.Parallel()

	tr := NewTransformer(nil)
	profile := Profile{Type: TypeProfessional, CommunicationStyle: "mixed"}

	out := tr.applyTypeRewrite("Hello! What can I do for you?", profile, Context{Intent: "greeting"})
	if !strings.HasPrefix(out, "Good day.") {
		t.Errorf("applyTypeRewrite() = %q, want professional greeting prefix", out)
	}
}

func TestApplyTypeRewriteClosing(t *testing.T) {
	t.Parallel()

	tr := NewTransformer(nil)
	profile := Profile{Type: TypeExpert, CommunicationStyle: "mixed"}

	out := tr.applyTypeRewrite("That covers it. Goodbye", profile, Context{})
	if !strings.Contains(out, typeClosings[TypeExpert]) {
		t.Errorf("applyTypeRewrite() = %q, want expert closing appended", out)
	}
}

func TestApplyTypeRewriteSubstitutions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		style string
		in    string
		want  string
	}{
		{
			name:  "casual style simplifies formal words",
			style: "casual",
			in:    "We can provide assistance if you wish to purchase it.",
			want:  "We can provide help if you wish to buy it.",
		},
		{
			name:  "formal style elevates casual words",
			style: "formal",
			in:    "We can help you buy it.",
			want:  "We can assistance you purchase it.",
		},
		{
			name:  "leading capital survives substitution",
			style: "casual",
			in:    "Assistance is available.",
			want:  "Help is available.",
		},
		{
			name:  "mixed style leaves text alone",
			style: "mixed",
			in:    "We can provide assistance.",
			want:  "We can provide assistance.",
		},
	}

	tr := NewTransformer(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			profile := Profile{Type: TypeProfessional, CommunicationStyle: tt.style}
			out := tr.applyTypeRewrite(tt.in, profile, Context{})
			if out != tt.want {
				t.Errorf("applyTypeRewrite() = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestExclaimTerminalPeriods(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"sentence endings", "That works. See you soon.", "That works! See you soon!"},
		{"decimals untouched", "It costs 3.50 per unit.", "It costs 3.50 per unit!"},
		{"ellipsis untouched", "Well... maybe.", "Well... maybe!"},
		{"no periods", "All set!", "All set!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := exclaimTerminalPeriods(tt.in); got != tt.want {
				t.Errorf("exclaimTerminalPeriods(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestApplyIndustryStyle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		industry string
		in       string
		want     string
	}{
		{"healthcare", "Tell me about your problem.", "Tell me about your concern."},
		{"hospitality", "Every customer can buy online.", "Every guest can book online."},
		{"", "Tell me about your problem.", "Tell me about your problem."},
		{"aviation", "No table for this industry.", "No table for this industry."},
	}

	for _, tt := range tests {
		t.Run(tt.industry+"/"+tt.in, func(t *testing.T) {
			t.Parallel()

			if got := applyIndustryStyle(tt.in, tt.industry); got != tt.want {
				t.Errorf("applyIndustryStyle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestApplyBrandVoice(t *testing.T) {
	t.Parallel()

	profile := Profile{
		CustomInstructions: `Always be warm. replace "cheap" with "affordable"`,
		BrandVoice:         map[string]string{"store": "boutique"},
	}

	out := applyBrandVoice("Our store has cheap options. Cheap ones.", profile)
	want := "Our boutique has affordable options. Affordable ones."
	if out != want {
		t.Errorf("applyBrandVoice() = %q, want %q", out, want)
	}
}

func TestApplyKeepsCoreContent(t *testing.T) {
	t.Parallel()

	tr := NewTransformer(nil)
	profile := Profile{
		Type:               TypeProfessional,
		CommunicationStyle: "formal",
		ResponseLength:     "balanced",
		EmotionalTone:      ToneConfident,
	}

	out := tr.Apply("Your order ships on Monday.", profile, Context{Intent: "question"})
	if !strings.Contains(out, "Your order ships on Monday.") {
		t.Errorf("Apply() = %q, want the base reply preserved", out)
	}
}
