package util

import "testing"

func TestSafeTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"longer than max", "very-long-token-abc123", 8, "very-lon"},
		{"shorter than max", "short", 10, "short"},
		{"exact length", "eight-ch", 8, "eight-ch"},
		{"empty string", "", 5, ""},
		{"zero max", "token", 0, ""},
		{"negative max", "token", -1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeTruncate(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("SafeTruncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"already normalized", "a@b.com", "a@b.com"},
		{"mixed case", "A@B.Com", "a@b.com"},
		{"surrounding whitespace", "  user@example.com \n", "user@example.com"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeEmail(tt.input); got != tt.want {
				t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantFirst string
		wantLast  string
	}{
		{"first and last", "Ada Lovelace", "Ada", "Lovelace"},
		{"three parts", "Ada King Lovelace", "Ada", "King Lovelace"},
		{"single word", "Ada", "Ada", ""},
		{"extra whitespace", "  Ada   Lovelace ", "Ada", "Lovelace"},
		{"empty", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, last := SplitName(tt.input)
			if first != tt.wantFirst || last != tt.wantLast {
				t.Errorf("SplitName(%q) = (%q, %q), want (%q, %q)", tt.input, first, last, tt.wantFirst, tt.wantLast)
			}
		})
	}
}
