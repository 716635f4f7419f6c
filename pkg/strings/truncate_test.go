package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOneLine(t *testing.T) {
	assert.Equal(t, "Store a receipt for later", OneLine("  Store a receipt\r\n\tfor   later\n"))
	assert.Equal(t, "", OneLine(" \n "))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"exact", 5, "exact"},
		{"total spent this month", 12, "total spe..."},
		{"multi\nline text", 40, "multi line text"},
		{"Zürich café receipt", 9, "Zürich..."},
		{"abcdef", 1, "a..."},
		{"", 10, ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Truncate(tt.in, tt.width))
		})
	}
}
