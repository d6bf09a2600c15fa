package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountWords(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"empty", "", 0},
		{"only spaces", "   \n\t  ", 0},
		{"simple sentence", "The dragon flew over the castle", 6},
		{"extra whitespace", "  one   two\nthree\t four ", 4},
		{"punctuation only tokens ignored", "wow -- ... !!", 1},
		{"hyphenated counts once", "a well-known tale", 3},
		{"digits count", "chapter 2 begins", 3},
		{"unicode letters", "Жил-был дракон", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CountWords(tt.content))
		})
	}
}
