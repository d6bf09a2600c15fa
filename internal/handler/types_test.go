package handler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		ok       bool
	}{
		{"valid", "password1", true},
		{"too short", "pass1", false},
		{"too long", strings.Repeat("a1", 51), false},
		{"letters only", "passwordonly", false},
		{"digits only", "1234567890", false},
		{"unicode letter with digit", "пароль123", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := validatePassword(tt.password)
			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				assert.NotEmpty(t, msg, "rejections carry a human-readable reason")
			}
		})
	}
}

func TestUsernameRegex(t *testing.T) {
	assert.True(t, usernameRegex.MatchString("mia_the-writer9"))
	assert.False(t, usernameRegex.MatchString("mia writer"))
	assert.False(t, usernameRegex.MatchString("mia!"))
	assert.False(t, usernameRegex.MatchString("мия"))
}
