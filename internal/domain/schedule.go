package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	ScheduleStatusPending = "pending"
	ScheduleStatusPaid    = "paid"
	ScheduleStatusOverdue = "overdue"
)

// PaymentScheduleEntry is one row of a computed amortization schedule.
// Entries are derived values: generated in order 1..N, rounded to 2 decimal
// places at generation time, and never mutated afterwards.
type PaymentScheduleEntry struct {
	Number           int             `json:"number"`
	DueDate          time.Time       `json:"due_date"`
	DueDateLabel     string          `json:"due_date_label"`
	PrincipalPortion decimal.Decimal `json:"principal"`
	InterestPortion  decimal.Decimal `json:"interest"`
	TotalPayment     decimal.Decimal `json:"total_payment"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
}

// LoanSchedule is the persisted servicing ledger row for one payment week.
// Unlike PaymentScheduleEntry it tracks collection status over time.
type LoanSchedule struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	LoanID     string          `json:"loan_id" db:"loan_id"`
	WeekNumber int             `json:"week_number" db:"week_number"`
	DueAmount  decimal.Decimal `json:"due_amount" db:"due_amount"`
	DueDate    time.Time       `json:"due_date" db:"due_date"`
	Status     string          `json:"status" db:"status"` // pending, paid, overdue
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// Payment is a collected borrower payment
type Payment struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	LoanID      string          `json:"loan_id" db:"loan_id"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	WeekNumber  int             `json:"week_number" db:"week_number"`
	PaymentDate time.Time       `json:"payment_date" db:"payment_date"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

type ScheduleResponse struct {
	LoanID   string                  `json:"loan_id"`
	Schedule []*PaymentScheduleEntry `json:"schedule"`
}
