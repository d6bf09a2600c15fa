package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAdvanceStreak(t *testing.T) {
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		lastWroteAt time.Time
		streak      int
		want        int
	}{
		{"first write ever", time.Time{}, 0, 1},
		{"fresh account same day", now.Add(-2 * time.Hour), 0, 1},
		{"second write same day", now.Add(-3 * time.Hour), 4, 4},
		{"wrote yesterday", now.AddDate(0, 0, -1), 4, 5},
		{"missed a day", now.AddDate(0, 0, -2), 9, 1},
		{"long gap", now.AddDate(0, -1, 0), 30, 1},
		{"non-UTC timestamp normalized", now.AddDate(0, 0, -1).In(time.FixedZone("UTC+5", 5*3600)), 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AdvanceStreak(tt.lastWroteAt, tt.streak, now))
		})
	}
}

func TestAdvanceStreakMonthBoundary(t *testing.T) {
	// March 1 after writing on the last day of February.
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	last := time.Date(2025, 2, 28, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, 6, AdvanceStreak(last, 5, now))
}
