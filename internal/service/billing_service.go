package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/lendfast/origination-engine/internal/amortize"
	"github.com/lendfast/origination-engine/internal/config"
	"github.com/lendfast/origination-engine/internal/domain"
	"github.com/lendfast/origination-engine/internal/repository"
	apperrors "github.com/lendfast/origination-engine/pkg/errors"
	"github.com/lendfast/origination-engine/pkg/utils"
)

// BillingService owns the loan lifecycle: origination, schedule generation,
// payment collection, delinquency.
type BillingService struct {
	loanRepo    repository.LoanRepository
	paymentRepo repository.PaymentRepository
	config      *config.Config
	log         *logrus.Entry
}

func NewBillingService(
	loanRepo repository.LoanRepository,
	paymentRepo repository.PaymentRepository,
	cfg *config.Config,
	log *logrus.Logger,
) *BillingService {
	return &BillingService{
		loanRepo:    loanRepo,
		paymentRepo: paymentRepo,
		config:      cfg,
		log:         log.WithField("service", "billing"),
	}
}

// CreateLoan creates a new loan with its payment schedule. The weekly
// payment is derived in amortized mode; the persisted schedule rows are the
// servicing ledger, while display schedules are recomputed on demand.
func (s *BillingService) CreateLoan(ctx context.Context, request *domain.CreateLoanRequest) (*domain.Loan, []*domain.PaymentScheduleEntry, error) {
	existingLoan, err := s.loanRepo.GetByLoanID(ctx, request.LoanID)
	if err == nil && existingLoan != nil {
		return nil, nil, apperrors.WrapLoanAlreadyExists(request.LoanID)
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, nil, apperrors.WrapDatabaseError(err)
	}

	startDate := time.Now().Truncate(24 * time.Hour)
	terms := domain.LoanTerms{
		Principal:  request.Principal,
		AnnualRate: request.AnnualRate,
		TermWeeks:  request.TermWeeks,
		StartDate:  startDate,
	}

	weeklyPayment, err := amortize.AmortizedWeeklyPayment(terms)
	if err != nil {
		return nil, nil, err
	}

	entries, err := amortize.Amortized(terms)
	if err != nil {
		return nil, nil, err
	}

	loan := &domain.Loan{
		ID:            uuid.New(),
		LoanID:        request.LoanID,
		OrgID:         request.OrgID,
		Principal:     request.Principal,
		AnnualRate:    request.AnnualRate,
		TermWeeks:     request.TermWeeks,
		WeeklyPayment: weeklyPayment,
		StartDate:     startDate,
		Status:        domain.LoanStatusActive,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	schedules := make([]*domain.LoanSchedule, 0, len(entries))
	for _, entry := range entries {
		schedules = append(schedules, &domain.LoanSchedule{
			ID:         uuid.New(),
			LoanID:     request.LoanID,
			WeekNumber: entry.Number,
			DueAmount:  entry.TotalPayment,
			DueDate:    entry.DueDate,
			Status:     domain.ScheduleStatusPending,
			CreatedAt:  time.Now(),
		})
	}

	if err = s.loanRepo.Create(ctx, loan); err != nil {
		return nil, nil, apperrors.WrapDatabaseError(err)
	}

	if err = s.loanRepo.CreateSchedule(ctx, schedules); err != nil {
		return nil, nil, apperrors.WrapDatabaseError(err)
	}

	return loan, entries, nil
}

// PreviewSchedule recomputes the borrower-facing schedule in
// simple-interest mode using the loan's stored weekly payment.
func (s *BillingService) PreviewSchedule(ctx context.Context, loanID string) ([]*domain.PaymentScheduleEntry, error) {
	loan, err := s.getLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return amortize.Simple(loan.Terms(), loan.WeeklyPayment)
}

// LegalSchedule recomputes the schedule used for document generation in
// amortized mode.
func (s *BillingService) LegalSchedule(ctx context.Context, loanID string) ([]*domain.PaymentScheduleEntry, error) {
	loan, err := s.getLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return amortize.Amortized(loan.Terms())
}

// GetOutstanding calculates the outstanding balance for a loan: total
// amount due over the full term minus payments made, floored at zero.
func (s *BillingService) GetOutstanding(ctx context.Context, loanID string) (decimal.Decimal, error) {
	loan, err := s.getLoan(ctx, loanID)
	if err != nil {
		return decimal.Zero, err
	}

	payments, err := s.paymentRepo.GetByLoanID(ctx, loanID)
	if err != nil {
		return decimal.Zero, apperrors.WrapDatabaseError(err)
	}

	var totalPayments decimal.Decimal
	for _, payment := range payments {
		totalPayments = totalPayments.Add(payment.Amount)
	}

	totalDue := loan.WeeklyPayment.Mul(decimal.NewFromInt(int64(loan.TermWeeks)))
	outstanding := totalDue.Sub(totalPayments)
	if outstanding.IsNegative() {
		outstanding = decimal.Zero
	}

	return outstanding, nil
}

// MakePayment records a payment against the earliest unpaid week. The
// amount must match the weekly payment exactly; paying the final week
// closes the loan.
func (s *BillingService) MakePayment(ctx context.Context, loanID string, amount decimal.Decimal) (*domain.Payment, error) {
	loan, err := s.getLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}

	if loan.Status != domain.LoanStatusActive {
		return nil, apperrors.WrapLoanAlreadyClosed(loanID)
	}

	if !amount.Equal(loan.WeeklyPayment) {
		return nil, apperrors.WrapPaymentAmountMismatch(loan.WeeklyPayment.StringFixed(2), amount.StringFixed(2))
	}

	schedules, err := s.loanRepo.GetScheduleByLoanID(ctx, loanID)
	if err != nil {
		return nil, apperrors.WrapDatabaseError(err)
	}

	var earliestUnpaid *domain.LoanSchedule
	unpaidCount := 0
	for _, schedule := range schedules {
		if schedule.Status != domain.ScheduleStatusPaid {
			unpaidCount++
			if earliestUnpaid == nil {
				earliestUnpaid = schedule
			}
		}
	}

	if earliestUnpaid == nil {
		return nil, apperrors.WrapNoOutstandingBalance(loanID)
	}

	payment := &domain.Payment{
		ID:          uuid.New(),
		LoanID:      loanID,
		Amount:      amount,
		WeekNumber:  earliestUnpaid.WeekNumber,
		PaymentDate: time.Now(),
		CreatedAt:   time.Now(),
	}

	if err = s.paymentRepo.Create(ctx, payment); err != nil {
		return nil, apperrors.WrapDatabaseError(err)
	}

	if err = s.loanRepo.UpdateScheduleStatus(ctx, loanID, earliestUnpaid.WeekNumber, domain.ScheduleStatusPaid); err != nil {
		return nil, apperrors.WrapDatabaseError(err)
	}

	if unpaidCount == 1 {
		if err = s.loanRepo.UpdateStatus(ctx, loanID, domain.LoanStatusClosed); err != nil {
			return nil, apperrors.WrapDatabaseError(err)
		}
		s.log.WithField("loan_id", loanID).Info("loan fully paid and closed")
	}

	return payment, nil
}

// IsDelinquent checks whether the borrower has missed enough consecutive
// weekly payments to be considered delinquent.
func (s *BillingService) IsDelinquent(ctx context.Context, loanID string) (bool, int, error) {
	loan, err := s.getLoan(ctx, loanID)
	if err != nil {
		return false, 0, err
	}

	schedules, err := s.loanRepo.GetScheduleByLoanID(ctx, loanID)
	if err != nil {
		return false, 0, apperrors.WrapDatabaseError(err)
	}

	now := time.Now()
	currentWeek := utils.GetCurrentWeek(loan.StartDate, now)
	threshold := s.config.Business.DelinquencyThreshold

	consecutiveMissed := 0
	maxMissed := 0
	for _, schedule := range schedules {
		if schedule.WeekNumber >= currentWeek {
			break
		}

		if schedule.Status != domain.ScheduleStatusPaid && utils.IsDateOverdue(schedule.DueDate, now) {
			consecutiveMissed++
			if consecutiveMissed > maxMissed {
				maxMissed = consecutiveMissed
			}
		} else if schedule.Status == domain.ScheduleStatusPaid {
			consecutiveMissed = 0
		}
	}

	return maxMissed >= threshold, maxMissed, nil
}

func (s *BillingService) getLoan(ctx context.Context, loanID string) (*domain.Loan, error) {
	loan, err := s.loanRepo.GetByLoanID(ctx, loanID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.WrapLoanNotFound(loanID)
	}
	if err != nil {
		return nil, apperrors.WrapDatabaseError(err)
	}
	return loan, nil
}
