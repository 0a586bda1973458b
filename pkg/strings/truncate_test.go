package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{name: "short string unchanged", input: "orders", maxLen: 10, want: "orders"},
		{name: "exact length unchanged", input: "orders", maxLen: 6, want: "orders"},
		{name: "long string cut", input: "connection refused by host", maxLen: 13, want: "connection..."},
		{name: "newlines collapsed", input: "line one\nline two", maxLen: 40, want: "line one line two"},
		{name: "whitespace runs collapsed", input: "a \t\r\n  b", maxLen: 10, want: "a b"},
		{name: "multibyte runes kept whole", input: "ñandú ñandú ñandú", maxLen: 8, want: "ñandú..."},
		{name: "tiny limit clamped", input: "abcdefgh", maxLen: 1, want: "a..."},
		{name: "empty", input: "", maxLen: 5, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Truncate(tt.input, tt.maxLen))
		})
	}
}
