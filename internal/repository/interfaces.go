package repository

import (
	"context"
	"time"

	"github.com/lendfast/origination-engine/internal/domain"
)

// LoanRepository defines the interface for loan data operations
type LoanRepository interface {
	// Create creates a new loan
	Create(ctx context.Context, loan *domain.Loan) error

	// GetByLoanID retrieves a loan by its loan ID
	GetByLoanID(ctx context.Context, loanID string) (*domain.Loan, error)

	// UpdateStatus updates a loan's status
	UpdateStatus(ctx context.Context, loanID string, status string) error

	// CreateSchedule creates loan schedule entries
	CreateSchedule(ctx context.Context, schedules []*domain.LoanSchedule) error

	// GetScheduleByLoanID retrieves loan schedule by loan ID
	GetScheduleByLoanID(ctx context.Context, loanID string) ([]*domain.LoanSchedule, error)

	// UpdateScheduleStatus updates the status of a specific schedule entry
	UpdateScheduleStatus(ctx context.Context, loanID string, weekNumber int, status string) error

	// MarkOverdueSchedules flips pending entries past their due date to
	// overdue across all loans and returns how many rows changed
	MarkOverdueSchedules(ctx context.Context, asOf time.Time) (int64, error)

	// GetUpcomingSchedules gets pending entries due within the window
	GetUpcomingSchedules(ctx context.Context, from, to time.Time) ([]*domain.LoanSchedule, error)
}

// PaymentRepository defines the interface for payment data operations
type PaymentRepository interface {
	// Create creates a new payment record
	Create(ctx context.Context, payment *domain.Payment) error

	// GetByLoanID retrieves all payments for a loan
	GetByLoanID(ctx context.Context, loanID string) ([]*domain.Payment, error)
}

// ApplicationRepository persists borrower application snapshots.
type ApplicationRepository interface {
	// Get retrieves the snapshot; wraps ErrApplicationNotFound when absent
	Get(ctx context.Context, loanID string) (*domain.ApplicationSnapshot, error)

	// Upsert writes a partial-progress snapshot
	Upsert(ctx context.Context, snap *domain.ApplicationSnapshot) error

	// Complete marks the application completed. Wraps ErrAlreadyCompleted
	// if it already is, ErrApplicationNotFound if there is no record.
	Complete(ctx context.Context, loanID string) error
}
