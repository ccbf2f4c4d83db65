package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	LoanStatusActive  = "active"
	LoanStatusClosed  = "closed"
	LoanStatusDefault = "default"
)

// Loan represents a funded or in-flight loan
type Loan struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	LoanID        string          `json:"loan_id" db:"loan_id"`
	OrgID         string          `json:"org_id" db:"org_id"`
	Principal     decimal.Decimal `json:"principal" db:"principal"`
	AnnualRate    decimal.Decimal `json:"annual_rate" db:"annual_rate"`
	TermWeeks     int             `json:"term_weeks" db:"term_weeks"`
	WeeklyPayment decimal.Decimal `json:"weekly_payment" db:"weekly_payment"`
	StartDate     time.Time       `json:"start_date" db:"start_date"`
	Status        string          `json:"status" db:"status"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// Terms extracts the immutable amortization inputs from the loan.
func (l *Loan) Terms() LoanTerms {
	return LoanTerms{
		Principal:  l.Principal,
		AnnualRate: l.AnnualRate,
		TermWeeks:  l.TermWeeks,
		StartDate:  l.StartDate,
	}
}

// LoanTerms are the inputs to schedule computation. Immutable once constructed;
// the schedule is always recomputed from these, never persisted as truth.
type LoanTerms struct {
	Principal  decimal.Decimal
	AnnualRate decimal.Decimal
	TermWeeks  int
	StartDate  time.Time
}

// DTOs for requests and responses

type CreateLoanRequest struct {
	LoanID     string          `json:"loan_id" validate:"required"`
	OrgID      string          `json:"org_id" validate:"required"`
	Principal  decimal.Decimal `json:"principal" validate:"required,decimal_gt_zero"`
	AnnualRate decimal.Decimal `json:"annual_rate" validate:"decimal_gte_zero"`
	TermWeeks  int             `json:"term_weeks" validate:"required,gt=0"`
}

type CreateLoanResponse struct {
	Loan     *Loan                   `json:"loan"`
	Schedule []*PaymentScheduleEntry `json:"schedule"`
}

type MakePaymentRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required,decimal_gt_zero"`
}

type OutstandingResponse struct {
	LoanID      string          `json:"loan_id"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

type DelinquentResponse struct {
	LoanID       string `json:"loan_id"`
	IsDelinquent bool   `json:"is_delinquent"`
	MissedWeeks  int    `json:"missed_weeks"`
}
