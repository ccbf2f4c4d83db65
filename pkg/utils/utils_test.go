package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalculateDueDate(t *testing.T) {
	baseDate := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		startDate     time.Time
		paymentNumber int
		expected      time.Time
	}{
		{
			name:          "first payment",
			startDate:     baseDate,
			paymentNumber: 1,
			expected:      baseDate.AddDate(0, 0, 7),
		},
		{
			name:          "second payment",
			startDate:     baseDate,
			paymentNumber: 2,
			expected:      baseDate.AddDate(0, 0, 14),
		},
		{
			name:          "week 50",
			startDate:     baseDate,
			paymentNumber: 50,
			expected:      baseDate.AddDate(0, 0, 350),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateDueDate(tt.startDate, tt.paymentNumber)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestGetCurrentWeek(t *testing.T) {
	loanStartDate := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		currentDate time.Time
		expected    int
	}{
		{
			name:        "same day as loan start",
			currentDate: loanStartDate,
			expected:    1,
		},
		{
			name:        "one week later",
			currentDate: loanStartDate.AddDate(0, 0, 7),
			expected:    2,
		},
		{
			name:        "middle of second week",
			currentDate: loanStartDate.AddDate(0, 0, 10),
			expected:    2,
		},
		{
			name:        "before the loan starts",
			currentDate: loanStartDate.AddDate(0, 0, -3),
			expected:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GetCurrentWeek(loanStartDate, tt.currentDate)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestIsDateOverdue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, IsDateOverdue(now.AddDate(0, 0, -1), now))
	assert.False(t, IsDateOverdue(now.AddDate(0, 0, 1), now))
	assert.False(t, IsDateOverdue(now, now))
}
