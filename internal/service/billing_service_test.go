package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lendfast/origination-engine/internal/config"
	"github.com/lendfast/origination-engine/internal/domain"
	apperrors "github.com/lendfast/origination-engine/pkg/errors"
)

type mockLoanRepository struct {
	mock.Mock
}

func (m *mockLoanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	args := m.Called(ctx, loan)
	return args.Error(0)
}

func (m *mockLoanRepository) GetByLoanID(ctx context.Context, loanID string) (*domain.Loan, error) {
	args := m.Called(ctx, loanID)
	if loan, ok := args.Get(0).(*domain.Loan); ok {
		return loan, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLoanRepository) UpdateStatus(ctx context.Context, loanID string, status string) error {
	args := m.Called(ctx, loanID, status)
	return args.Error(0)
}

func (m *mockLoanRepository) CreateSchedule(ctx context.Context, schedules []*domain.LoanSchedule) error {
	args := m.Called(ctx, schedules)
	return args.Error(0)
}

func (m *mockLoanRepository) GetScheduleByLoanID(ctx context.Context, loanID string) ([]*domain.LoanSchedule, error) {
	args := m.Called(ctx, loanID)
	if schedules, ok := args.Get(0).([]*domain.LoanSchedule); ok {
		return schedules, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLoanRepository) UpdateScheduleStatus(ctx context.Context, loanID string, weekNumber int, status string) error {
	args := m.Called(ctx, loanID, weekNumber, status)
	return args.Error(0)
}

func (m *mockLoanRepository) MarkOverdueSchedules(ctx context.Context, asOf time.Time) (int64, error) {
	args := m.Called(ctx, asOf)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockLoanRepository) GetUpcomingSchedules(ctx context.Context, from, to time.Time) ([]*domain.LoanSchedule, error) {
	args := m.Called(ctx, from, to)
	if schedules, ok := args.Get(0).([]*domain.LoanSchedule); ok {
		return schedules, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockPaymentRepository struct {
	mock.Mock
}

func (m *mockPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

func (m *mockPaymentRepository) GetByLoanID(ctx context.Context, loanID string) ([]*domain.Payment, error) {
	args := m.Called(ctx, loanID)
	if payments, ok := args.Get(0).([]*domain.Payment); ok {
		return payments, args.Error(1)
	}
	return nil, args.Error(1)
}

func testConfig() *config.Config {
	return &config.Config{
		Business: config.BusinessConfig{DelinquencyThreshold: 2},
	}
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func activeLoan(loanID string, weeklyPayment string, termWeeks int, startDate time.Time) *domain.Loan {
	return &domain.Loan{
		ID:            uuid.New(),
		LoanID:        loanID,
		OrgID:         "org-001",
		Principal:     decimal.NewFromInt(5000),
		AnnualRate:    decimal.NewFromFloat(0.10),
		TermWeeks:     termWeeks,
		WeeklyPayment: decimal.RequireFromString(weeklyPayment),
		StartDate:     startDate,
		Status:        domain.LoanStatusActive,
	}
}

func TestCreateLoan(t *testing.T) {
	request := &domain.CreateLoanRequest{
		LoanID:     "LN-1001",
		OrgID:      "org-001",
		Principal:  decimal.NewFromInt(5000),
		AnnualRate: decimal.NewFromFloat(0.10),
		TermWeeks:  50,
	}

	t.Run("creates loan and persists full schedule", func(t *testing.T) {
		loanRepo := new(mockLoanRepository)
		paymentRepo := new(mockPaymentRepository)
		svc := NewBillingService(loanRepo, paymentRepo, testConfig(), testLogger())

		loanRepo.On("GetByLoanID", mock.Anything, "LN-1001").Return(nil, sql.ErrNoRows)
		loanRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Loan")).Return(nil)
		loanRepo.On("CreateSchedule", mock.Anything, mock.AnythingOfType("[]*domain.LoanSchedule")).
			Run(func(args mock.Arguments) {
				schedules := args.Get(1).([]*domain.LoanSchedule)
				assert.Len(t, schedules, 50)
			}).Return(nil)

		loan, entries, err := svc.CreateLoan(context.Background(), request)

		require.NoError(t, err)
		require.NotNil(t, loan)
		assert.Equal(t, "LN-1001", loan.LoanID)
		assert.Equal(t, domain.LoanStatusActive, loan.Status)
		assert.True(t, loan.WeeklyPayment.IsPositive())
		assert.Len(t, entries, 50)
		loanRepo.AssertExpectations(t)
	})

	t.Run("rejects duplicate loan id", func(t *testing.T) {
		loanRepo := new(mockLoanRepository)
		paymentRepo := new(mockPaymentRepository)
		svc := NewBillingService(loanRepo, paymentRepo, testConfig(), testLogger())

		loanRepo.On("GetByLoanID", mock.Anything, "LN-1001").
			Return(activeLoan("LN-1001", "110.00", 50, time.Now()), nil)

		_, _, err := svc.CreateLoan(context.Background(), request)

		assert.ErrorIs(t, err, apperrors.ErrLoanAlreadyExists)
		loanRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("propagates lookup failure", func(t *testing.T) {
		loanRepo := new(mockLoanRepository)
		paymentRepo := new(mockPaymentRepository)
		svc := NewBillingService(loanRepo, paymentRepo, testConfig(), testLogger())

		loanRepo.On("GetByLoanID", mock.Anything, "LN-1001").Return(nil, errors.New("connection refused"))

		_, _, err := svc.CreateLoan(context.Background(), request)

		var bizErr *apperrors.BusinessError
		require.ErrorAs(t, err, &bizErr)
		assert.Equal(t, apperrors.ErrCodeDatabaseError, bizErr.Code)
	})

	t.Run("rejects invalid terms before touching storage", func(t *testing.T) {
		loanRepo := new(mockLoanRepository)
		paymentRepo := new(mockPaymentRepository)
		svc := NewBillingService(loanRepo, paymentRepo, testConfig(), testLogger())

		loanRepo.On("GetByLoanID", mock.Anything, "LN-BAD").Return(nil, sql.ErrNoRows)

		bad := &domain.CreateLoanRequest{
			LoanID:     "LN-BAD",
			OrgID:      "org-001",
			Principal:  decimal.NewFromInt(-100),
			AnnualRate: decimal.NewFromFloat(0.10),
			TermWeeks:  50,
		}
		_, _, err := svc.CreateLoan(context.Background(), bad)

		assert.ErrorIs(t, err, apperrors.ErrInvalidLoanTerms)
		loanRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestGetOutstanding(t *testing.T) {
	start := time.Now().AddDate(0, 0, -28)

	t.Run("subtracts payments from total due", func(t *testing.T) {
		loanRepo := new(mockLoanRepository)
		paymentRepo := new(mockPaymentRepository)
		svc := NewBillingService(loanRepo, paymentRepo, testConfig(), testLogger())

		loanRepo.On("GetByLoanID", mock.Anything, "LN-1001").
			Return(activeLoan("LN-1001", "110.00", 50, start), nil)
		paymentRepo.On("GetByLoanID", mock.Anything, "LN-1001").Return([]*domain.Payment{
			{Amount: decimal.RequireFromString("110.00")},
			{Amount: decimal.RequireFromString("110.00")},
		}, nil)

		outstanding, err := svc.GetOutstanding(context.Background(), "LN-1001")

		require.NoError(t, err)
		// 50 * 110.00 - 220.00
		assert.True(t, outstanding.Equal(decimal.RequireFromString("5280.00")))
	})

	t.Run("floors at zero", func(t *testing.T) {
		loanRepo := new(mockLoanRepository)
		paymentRepo := new(mockPaymentRepository)
		svc := NewBillingService(loanRepo, paymentRepo, testConfig(), testLogger())

		loanRepo.On("GetByLoanID", mock.Anything, "LN-1001").
			Return(activeLoan("LN-1001", "110.00", 2, start), nil)
		paymentRepo.On("GetByLoanID", mock.Anything, "LN-1001").Return([]*domain.Payment{
			{Amount: decimal.RequireFromString("110.00")},
			{Amount: decimal.RequireFromString("110.00")},
			{Amount: decimal.RequireFromString("110.00")},
		}, nil)

		outstanding, err := svc.GetOutstanding(context.Background(), "LN-1001")

		require.NoError(t, err)
		assert.True(t, outstanding.IsZero())
	})

	t.Run("unknown loan", func(t *testing.T) {
		loanRepo := new(mockLoanRepository)
		paymentRepo := new(mockPaymentRepository)
		svc := NewBillingService(loanRepo, paymentRepo, testConfig(), testLogger())

		loanRepo.On("GetByLoanID", mock.Anything, "LN-MISSING").Return(nil, sql.ErrNoRows)

		_, err := svc.GetOutstanding(context.Background(), "LN-MISSING")

		assert.ErrorIs(t, err, apperrors.ErrLoanNotFound)
	})
}

func TestMakePayment(t *testing.T) {
	start := time.Now().AddDate(0, 0, -28)
	weekly := decimal.RequireFromString("110.00")

	pendingSchedule := func(weeks ...int) []*domain.LoanSchedule {
		schedules := make([]*domain.LoanSchedule, 0, len(weeks))
		for _, w := range weeks {
			schedules = append(schedules, &domain.LoanSchedule{
				LoanID:     "LN-1001",
				WeekNumber: w,
				DueAmount:  weekly,
				DueDate:    start.AddDate(0, 0, 7*w),
				Status:     domain.ScheduleStatusPending,
			})
		}
		return schedules
	}

	t.Run("pays earliest unpaid week", func(t *testing.T) {
		loanRepo := new(mockLoanRepository)
		paymentRepo := new(mockPaymentRepository)
		svc := NewBillingService(loanRepo, paymentRepo, testConfig(), testLogger())

		loanRepo.On("GetByLoanID", mock.Anything, "LN-1001").
			Return(activeLoan("LN-1001", "110.00", 50, start), nil)
		loanRepo.On("GetScheduleByLoanID", mock.Anything, "LN-1001").
			Return(pendingSchedule(1, 2, 3), nil)
		paymentRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Payment")).Return(nil)
		loanRepo.On("UpdateScheduleStatus", mock.Anything, "LN-1001", 1, domain.ScheduleStatusPaid).Return(nil)

		payment, err := svc.MakePayment(context.Background(), "LN-1001", weekly)

		require.NoError(t, err)
		assert.Equal(t, 1, payment.WeekNumber)
		assert.True(t, payment.Amount.Equal(weekly))
		loanRepo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects amount mismatch", func(t *testing.T) {
		loanRepo := new(mockLoanRepository)
		paymentRepo := new(mockPaymentRepository)
		svc := NewBillingService(loanRepo, paymentRepo, testConfig(), testLogger())

		loanRepo.On("GetByLoanID", mock.Anything, "LN-1001").
			Return(activeLoan("LN-1001", "110.00", 50, start), nil)

		_, err := svc.MakePayment(context.Background(), "LN-1001", decimal.RequireFromString("100.00"))

		assert.ErrorIs(t, err, apperrors.ErrInvalidPaymentAmount)
		paymentRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("final payment closes the loan", func(t *testing.T) {
		loanRepo := new(mockLoanRepository)
		paymentRepo := new(mockPaymentRepository)
		svc := NewBillingService(loanRepo, paymentRepo, testConfig(), testLogger())

		loanRepo.On("GetByLoanID", mock.Anything, "LN-1001").
			Return(activeLoan("LN-1001", "110.00", 3, start), nil)
		schedules := pendingSchedule(1, 2, 3)
		schedules[0].Status = domain.ScheduleStatusPaid
		schedules[1].Status = domain.ScheduleStatusPaid
		loanRepo.On("GetScheduleByLoanID", mock.Anything, "LN-1001").Return(schedules, nil)
		paymentRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Payment")).Return(nil)
		loanRepo.On("UpdateScheduleStatus", mock.Anything, "LN-1001", 3, domain.ScheduleStatusPaid).Return(nil)
		loanRepo.On("UpdateStatus", mock.Anything, "LN-1001", domain.LoanStatusClosed).Return(nil)

		payment, err := svc.MakePayment(context.Background(), "LN-1001", weekly)

		require.NoError(t, err)
		assert.Equal(t, 3, payment.WeekNumber)
		loanRepo.AssertExpectations(t)
	})

	t.Run("rejects closed loan", func(t *testing.T) {
		loanRepo := new(mockLoanRepository)
		paymentRepo := new(mockPaymentRepository)
		svc := NewBillingService(loanRepo, paymentRepo, testConfig(), testLogger())

		closed := activeLoan("LN-1001", "110.00", 50, start)
		closed.Status = domain.LoanStatusClosed
		loanRepo.On("GetByLoanID", mock.Anything, "LN-1001").Return(closed, nil)

		_, err := svc.MakePayment(context.Background(), "LN-1001", weekly)

		assert.ErrorIs(t, err, apperrors.ErrLoanAlreadyClosed)
	})

	t.Run("rejects fully paid loan", func(t *testing.T) {
		loanRepo := new(mockLoanRepository)
		paymentRepo := new(mockPaymentRepository)
		svc := NewBillingService(loanRepo, paymentRepo, testConfig(), testLogger())

		loanRepo.On("GetByLoanID", mock.Anything, "LN-1001").
			Return(activeLoan("LN-1001", "110.00", 2, start), nil)
		schedules := pendingSchedule(1, 2)
		schedules[0].Status = domain.ScheduleStatusPaid
		schedules[1].Status = domain.ScheduleStatusPaid
		loanRepo.On("GetScheduleByLoanID", mock.Anything, "LN-1001").Return(schedules, nil)

		_, err := svc.MakePayment(context.Background(), "LN-1001", weekly)

		assert.ErrorIs(t, err, apperrors.ErrNoOutstandingBalance)
	})
}

func TestIsDelinquent(t *testing.T) {
	weekly := decimal.RequireFromString("110.00")

	buildSchedules := func(start time.Time, statuses []string) []*domain.LoanSchedule {
		schedules := make([]*domain.LoanSchedule, 0, len(statuses))
		for i, status := range statuses {
			schedules = append(schedules, &domain.LoanSchedule{
				LoanID:     "LN-1001",
				WeekNumber: i + 1,
				DueAmount:  weekly,
				DueDate:    start.AddDate(0, 0, 7*(i+1)),
				Status:     status,
			})
		}
		return schedules
	}

	tests := []struct {
		name           string
		weeksElapsed   int
		statuses       []string
		wantDelinquent bool
		wantMissed     int
	}{
		{
			name:           "two consecutive missed weeks",
			weeksElapsed:   4,
			statuses:       []string{domain.ScheduleStatusPaid, domain.ScheduleStatusOverdue, domain.ScheduleStatusOverdue, domain.ScheduleStatusPending},
			wantDelinquent: true,
			wantMissed:     2,
		},
		{
			name:           "missed weeks broken up by a payment",
			weeksElapsed:   5,
			statuses:       []string{domain.ScheduleStatusOverdue, domain.ScheduleStatusPaid, domain.ScheduleStatusOverdue, domain.ScheduleStatusPaid, domain.ScheduleStatusPending},
			wantDelinquent: false,
			wantMissed:     1,
		},
		{
			name:           "fully current",
			weeksElapsed:   3,
			statuses:       []string{domain.ScheduleStatusPaid, domain.ScheduleStatusPaid, domain.ScheduleStatusPending},
			wantDelinquent: false,
			wantMissed:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loanRepo := new(mockLoanRepository)
			paymentRepo := new(mockPaymentRepository)
			svc := NewBillingService(loanRepo, paymentRepo, testConfig(), testLogger())

			start := time.Now().AddDate(0, 0, -7*tt.weeksElapsed-1)
			loanRepo.On("GetByLoanID", mock.Anything, "LN-1001").
				Return(activeLoan("LN-1001", "110.00", 50, start), nil)
			loanRepo.On("GetScheduleByLoanID", mock.Anything, "LN-1001").
				Return(buildSchedules(start, tt.statuses), nil)

			delinquent, missed, err := svc.IsDelinquent(context.Background(), "LN-1001")

			require.NoError(t, err)
			assert.Equal(t, tt.wantDelinquent, delinquent)
			assert.Equal(t, tt.wantMissed, missed)
		})
	}
}
