package services

import (
	"testing"
	"time"

	"lvlup-backend/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePeriod(t *testing.T) {
	now := time.Date(2026, 3, 11, 15, 0, 0, 0, time.UTC) // Wednesday of ISO week 11

	tests := []struct {
		name      string
		periodID  int
		wantID    int
		wantStart string
	}{
		{"zero is current week", 0, 202611, "2026-03-09"},
		{"one is current week", 1, 202611, "2026-03-09"},
		{"week of current year", 10, 202610, "2026-03-02"},
		{"explicit year and week", 202501, 202501, "2024-12-30"},
		{"week 53 in a long year", 202653, 202653, "2026-12-28"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ResolvePeriod(tt.periodID, now)
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, p.ID)
			require.Len(t, p.Dates, 7)
			assert.Equal(t, tt.wantStart, p.Dates[0])
			assert.Equal(t, time.Monday, p.Start.Weekday())
		})
	}
}

func TestResolvePeriodRejectsUnknownWeeks(t *testing.T) {
	now := time.Date(2026, 3, 11, 15, 0, 0, 0, time.UTC)

	for _, id := range []int{-1, 54, 99, 100000, 202553, 202600} {
		_, err := ResolvePeriod(id, now)
		assert.ErrorIs(t, err, apperr.ErrInvalidPeriod, id)
	}
}
