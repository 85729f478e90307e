package services

import (
	"strings"
	"testing"
)

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func TestValidateFeedback(t *testing.T) {
	goodItems := []string{"practice system design", "tighten the resume", "mock interviews weekly"}

	tests := []struct {
		name        string
		text        string
		actionItems []string
		wantReasons int
	}{
		{"long enough with three items", words(200), goodItems, 0},
		{"well over the minimum", words(350), goodItems, 0},
		{"one word short", words(199), goodItems, 1},
		{"empty text", "", goodItems, 1},
		{"two action items", words(200), goodItems[:2], 1},
		{"four action items", words(200), append(append([]string{}, goodItems...), "extra"), 1},
		{"blank action item", words(200), []string{"first", "  ", "third"}, 1},
		{"short text and missing items", words(50), nil, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reasons := ValidateFeedback(tt.text, tt.actionItems)
			if len(reasons) != tt.wantReasons {
				t.Errorf("expected %d reasons, got %d: %v", tt.wantReasons, len(reasons), reasons)
			}
		})
	}
}
