package utils

import (
	"time"

	"github.com/shopspring/decimal"
)

// CalculateDueDate calculates the due date for a specific payment number.
// Payment 1 is due 7 days after the start date, payment 2 after 14 days, etc.
func CalculateDueDate(startDate time.Time, paymentNumber int) time.Time {
	return startDate.AddDate(0, 0, 7*paymentNumber)
}

// GetCurrentWeek calculates which week of the loan we're in based on the start date
func GetCurrentWeek(loanStartDate time.Time, now time.Time) int {
	duration := now.Sub(loanStartDate)
	days := int(duration.Hours() / 24)
	week := (days / 7) + 1

	if week < 1 {
		return 1
	}

	return week
}

// IsDateOverdue checks if a due date is in the past
func IsDateOverdue(dueDate time.Time, now time.Time) bool {
	return now.After(dueDate)
}

// DecimalFromFloat converts float64 to decimal.Decimal
func DecimalFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// DecimalFromString converts string to decimal.Decimal
func DecimalFromString(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}
