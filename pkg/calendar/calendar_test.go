package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recognition-review-backend/pkg/config"
)

func TestTerm_IncludesBothEndDays(t *testing.T) {
	manila, err := time.LoadLocation("Asia/Manila")
	require.NoError(t, err)
	term, err := NewTerm("2025-08-01", "2025-12-20", manila)
	require.NoError(t, err)

	assert.True(t, term.IsActive(time.Date(2025, 8, 1, 0, 0, 0, 0, manila)))
	assert.True(t, term.IsActive(time.Date(2025, 12, 20, 23, 59, 59, 0, manila)))
	assert.False(t, term.IsActive(time.Date(2025, 12, 21, 0, 0, 0, 0, manila)))
	assert.False(t, term.IsActive(time.Date(2025, 7, 31, 23, 59, 59, 0, manila)))
	// 2025-07-31 16:30 UTC is already 2025-08-01 in Manila
	assert.True(t, term.IsActive(time.Date(2025, 7, 31, 16, 30, 0, 0, time.UTC)))
	assert.True(t, term.End().Before(time.Date(2025, 12, 21, 0, 0, 0, 0, manila)))
}

func TestNewTerm_Errors(t *testing.T) {
	_, err := NewTerm("2025-12-20", "2025-08-01", nil)
	assert.Error(t, err)
	_, err = NewTerm("soon", "2025-08-01", nil)
	assert.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	active, archive, loc, err := FromConfig(&config.Config{CalendarTimezone: "UTC"})
	require.NoError(t, err)
	assert.Nil(t, active, "no term configured counts everything")
	assert.True(t, archive.IsActive(time.Time{}))
	assert.Equal(t, time.UTC, loc)

	active, _, _, err = FromConfig(&config.Config{CalendarTimezone: "UTC", ActivePeriodStart: "2025-08-01", ActivePeriodEnd: "2025-12-20"})
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.False(t, active.IsActive(time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)))
}
