package service

import (
	"strings"
	"testing"
)

func TestDeriveTitle(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"single line", "Buy milk", "Buy milk"},
		{"first line only", "Shopping list\n- milk\n- eggs", "Shopping list"},
		{"leading whitespace trimmed", "  Meeting notes  \nbody", "Meeting notes"},
		{"empty first line", "\nactual content", ""},
		{"long line truncated", strings.Repeat("a", 150), strings.Repeat("a", 100)},
		{"multibyte runes kept intact", strings.Repeat("笔", 150), strings.Repeat("笔", 100)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := deriveTitle(tc.text)
			if got != tc.want {
				t.Errorf("deriveTitle(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}
