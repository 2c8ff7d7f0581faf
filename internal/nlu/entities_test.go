package nlu_test

import (
	"testing"

	"github.com/talkpipe/talkpipe/internal/nlu"
)

func TestExtractEntities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want map[string][]string
	}{
		{
			name: "dates and times",
			text: "can we meet tomorrow at 3pm?",
			want: map[string][]string{
				nlu.EntityDates: {"tomorrow"},
				nlu.EntityTimes: {"3pm"},
			},
		},
		{
			name: "email does not leak into phones or numbers",
			text: "reach me at john99@example.com",
			want: map[string][]string{
				nlu.EntityEmails: {"john99@example.com"},
			},
		},
		{
			name: "phone number",
			text: "call me on 555-123-4567 please",
			want: map[string][]string{
				nlu.EntityPhones: {"555-123-4567"},
			},
		},
		{
			name: "introduced name",
			text: "Hi, my name is Alice Johnson",
			want: map[string][]string{
				nlu.EntityNames: {"Alice Johnson"},
			},
		},
		{
			name: "lexicon categories",
			text: "I need delivery to New York for my new laptop",
			want: map[string][]string{
				nlu.EntityLocations: {"new york"},
				nlu.EntityProducts:  {"laptop"},
				nlu.EntityServices:  {"delivery"},
			},
		},
		{
			name: "plain number",
			text: "I ordered 3 units",
			want: map[string][]string{
				nlu.EntityNumbers: {"3"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := nlu.ExtractEntities(tt.text)
			for category, wantValues := range tt.want {
				gotValues, ok := got[category]
				if !ok {
					t.Errorf("category %q missing, want %v", category, wantValues)
					continue
				}
				if len(gotValues) != len(wantValues) {
					t.Errorf("category %q = %v, want %v", category, gotValues, wantValues)
					continue
				}
				for i := range wantValues {
					if gotValues[i] != wantValues[i] {
						t.Errorf("category %q[%d] = %q, want %q", category, i, gotValues[i], wantValues[i])
					}
				}
			}
			for category := range got {
				if _, ok := tt.want[category]; !ok {
					t.Errorf("unexpected category %q = %v", category, got[category])
				}
			}
		})
	}
}

func TestExtractEntitiesOmitsEmptyCategories(t *testing.T) {
	t.Parallel()

	got := nlu.ExtractEntities("just chatting")
	if len(got) != 0 {
		t.Errorf("entities = %v, want empty map", got)
	}
}
