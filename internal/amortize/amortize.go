// Package amortize computes weekly payment schedules from loan terms.
// Schedules are pure derived values: the same terms always produce the
// same entries, rounded to 2 decimal places at generation time.
package amortize

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lendfast/origination-engine/internal/domain"
	apperrors "github.com/lendfast/origination-engine/pkg/errors"
)

// Mode selects which rate convention and payment derivation to use.
// The two modes feed different consumers (borrower-facing preview vs.
// legal-document generation) and intentionally disagree on the weekly
// rate divisor; both behaviors are load-bearing downstream.
type Mode int

const (
	// ModeSimple divides the annual rate by 12 and takes the weekly
	// payment as a caller-supplied input.
	ModeSimple Mode = iota

	// ModeAmortized divides the annual rate by 52 and derives the weekly
	// payment from the standard amortization formula.
	ModeAmortized
)

const (
	simpleRateDivisor    = 12
	amortizedRateDivisor = 52

	// Date label formats differ per consumer and are compared against
	// literal strings in downstream documents.
	simpleDateLayout    = "2006-01-02"
	amortizedDateLayout = "01/02/2006"
)

var one = decimal.NewFromInt(1)

// Simple computes a schedule in simple-interest-per-period mode with a
// caller-supplied weekly payment. It always emits exactly terms.TermWeeks
// entries, even when the balance reaches zero early.
func Simple(terms domain.LoanTerms, weeklyPayment decimal.Decimal) ([]*domain.PaymentScheduleEntry, error) {
	if err := validateTerms(terms); err != nil {
		return nil, err
	}
	if !weeklyPayment.IsPositive() {
		return nil, apperrors.WrapInvalidLoanTerms(
			fmt.Sprintf("weekly payment must be greater than zero, got %s", weeklyPayment))
	}

	weeklyRate := terms.AnnualRate.Div(decimal.NewFromInt(simpleRateDivisor))
	return accrue(terms, weeklyRate, weeklyPayment.Round(2), simpleDateLayout), nil
}

// Amortized computes a schedule in amortized mode, deriving the weekly
// payment from the terms.
func Amortized(terms domain.LoanTerms) ([]*domain.PaymentScheduleEntry, error) {
	payment, err := AmortizedWeeklyPayment(terms)
	if err != nil {
		return nil, err
	}

	weeklyRate := terms.AnnualRate.Div(decimal.NewFromInt(amortizedRateDivisor))
	return accrue(terms, weeklyRate, payment, amortizedDateLayout), nil
}

// AmortizedWeeklyPayment derives the weekly payment:
//
//	payment = principal * [rate * (1+rate)^n] / [(1+rate)^n - 1]
//
// where rate is the weekly rate (annual / 52) and n is the term in weeks.
// At rate zero the formula divides by zero and degenerates to equal
// principal-only installments.
func AmortizedWeeklyPayment(terms domain.LoanTerms) (decimal.Decimal, error) {
	if err := validateTerms(terms); err != nil {
		return decimal.Zero, err
	}

	weeks := decimal.NewFromInt(int64(terms.TermWeeks))

	if terms.AnnualRate.IsZero() {
		return terms.Principal.Div(weeks).Round(2), nil
	}

	weeklyRate := terms.AnnualRate.Div(decimal.NewFromInt(amortizedRateDivisor))
	compounded := one.Add(weeklyRate).Pow(weeks)
	payment := terms.Principal.Mul(weeklyRate.Mul(compounded)).Div(compounded.Sub(one))

	return payment.Round(2), nil
}

// accrue runs the shared accrual loop: interest on the remaining balance at
// the weekly rate, the rest of the payment against principal, balance
// floored at zero. Monetary fields are rounded at each step so the rounded
// schedule is self-consistent rather than drifting from a full-precision
// shadow balance.
func accrue(terms domain.LoanTerms, weeklyRate, payment decimal.Decimal, dateLayout string) []*domain.PaymentScheduleEntry {
	entries := make([]*domain.PaymentScheduleEntry, 0, terms.TermWeeks)
	balance := terms.Principal.Round(2)

	for number := 1; number <= terms.TermWeeks; number++ {
		interest := balance.Mul(weeklyRate).Round(2)
		principalPortion := payment.Sub(interest)

		balance = balance.Sub(principalPortion).Round(2)
		if balance.IsNegative() {
			balance = decimal.Zero
		}

		dueDate := terms.StartDate.AddDate(0, 0, 7*number)

		entries = append(entries, &domain.PaymentScheduleEntry{
			Number:           number,
			DueDate:          dueDate,
			DueDateLabel:     dueDate.Format(dateLayout),
			PrincipalPortion: principalPortion,
			InterestPortion:  interest,
			TotalPayment:     payment,
			RemainingBalance: balance,
		})
	}

	return entries
}

func validateTerms(terms domain.LoanTerms) error {
	if !terms.Principal.IsPositive() {
		return apperrors.WrapInvalidLoanTerms(
			fmt.Sprintf("principal must be greater than zero, got %s", terms.Principal))
	}
	if terms.TermWeeks <= 0 {
		return apperrors.WrapInvalidLoanTerms(
			fmt.Sprintf("term must be a positive number of weeks, got %d", terms.TermWeeks))
	}
	if terms.AnnualRate.IsNegative() {
		return apperrors.WrapInvalidLoanTerms(
			fmt.Sprintf("annual rate must not be negative, got %s", terms.AnnualRate))
	}
	return nil
}
