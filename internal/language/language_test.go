package language

import (
	"errors"
	"testing"
)

func TestHint(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"  ", ""},
		{"fr", "fr"},
		{"FR", "fr"},
		{"fr-CA", "fr"},
		{"en-US", "en"},
		{"fra", "fr"},
		{"deu", "de"},
		{"french", "fr"},
		{"English", "en"},
		{" german ", "de"},
		{"und", ""},
	}
	for _, tt := range tests {
		got, err := Hint(tt.input)
		if err != nil {
			t.Fatalf("Hint(%q) error: %v", tt.input, err)
		}
		if got != tt.expected {
			t.Errorf("Hint(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestHintRejectsGarbage(t *testing.T) {
	for _, input := range []string{"not a language", "x1", "fr_CA!"} {
		if _, err := Hint(input); !errors.Is(err, ErrUnknownLanguage) {
			t.Errorf("Hint(%q) expected ErrUnknownLanguage, got %v", input, err)
		}
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "Unknown"},
		{"fr", "French"},
		{"de", "German"},
		{"zz!", "ZZ!"},
	}
	for _, tt := range tests {
		if got := DisplayName(tt.input); got != tt.expected {
			t.Errorf("DisplayName(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
