package chat

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestProposeTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "short kept verbatim", content: "hello", want: "hello"},
		{name: "empty kept", content: "", want: ""},
		{
			name:    "exactly fifty runes kept",
			content: strings.Repeat("x", 50),
			want:    strings.Repeat("x", 50),
		},
		{
			name:    "fifty-one runes truncated",
			content: strings.Repeat("x", 51),
			want:    strings.Repeat("x", 50) + "…",
		},
		{
			name:    "multibyte counted in runes",
			content: strings.Repeat("語", 60),
			want:    strings.Repeat("語", 50) + "…",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := proposeTitle(tt.content); got != tt.want {
				t.Errorf("proposeTitle(%d runes) = %q, want %q",
					utf8.RuneCountInString(tt.content), got, tt.want)
			}
		})
	}
}
