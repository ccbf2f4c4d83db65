package errors

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrLoanNotFound            = errors.New("loan not found")
	ErrLoanAlreadyExists       = errors.New("loan already exists")
	ErrLoanAlreadyClosed       = errors.New("loan is already closed")
	ErrInvalidLoanTerms        = errors.New("invalid loan terms")
	ErrInvalidPaymentAmount    = errors.New("invalid payment amount")
	ErrNoOutstandingBalance    = errors.New("no outstanding balance")
	ErrApplicationNotFound     = errors.New("application not found")
	ErrAlreadyCompleted        = errors.New("application already completed")
	ErrVerificationRequired    = errors.New("verification not completed")
	ErrStaleVerificationStatus = errors.New("stale verification status update")
	ErrSubmitInFlight          = errors.New("submission already in flight")
	ErrProviderUnavailable     = errors.New("verification provider unavailable")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeLoanNotFound         = "LOAN_NOT_FOUND"
	ErrCodeLoanAlreadyExists    = "LOAN_ALREADY_EXISTS"
	ErrCodeLoanAlreadyClosed    = "LOAN_ALREADY_CLOSED"
	ErrCodeInvalidLoanTerms     = "INVALID_LOAN_TERMS"
	ErrCodeInvalidPaymentAmount = "INVALID_PAYMENT_AMOUNT"
	ErrCodeNoOutstandingBalance = "NO_OUTSTANDING_BALANCE"
	ErrCodeApplicationNotFound  = "APPLICATION_NOT_FOUND"
	ErrCodeAlreadyCompleted     = "APPLICATION_ALREADY_COMPLETED"
	ErrCodeVerificationRequired = "VERIFICATION_REQUIRED"
	ErrCodeStaleVerification    = "STALE_VERIFICATION_STATUS"
	ErrCodeSubmitInFlight       = "SUBMIT_IN_FLIGHT"
	ErrCodeProviderError        = "PROVIDER_ERROR"
	ErrCodeValidationError      = "VALIDATION_ERROR"
	ErrCodeDatabaseError        = "DATABASE_ERROR"
	ErrCodeCacheError           = "CACHE_ERROR"
)

// FieldErrors carries step-level validation failures keyed by field name.
// It blocks a forward step transition but is always recoverable.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	return fmt.Sprintf("validation failed for %d field(s)", len(f))
}

// Wrap common errors with business context

func WrapLoanNotFound(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanNotFound,
		fmt.Sprintf("Loan with ID %s not found", loanID),
		ErrLoanNotFound,
	)
}

func WrapLoanAlreadyExists(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanAlreadyExists,
		fmt.Sprintf("Loan with ID %s already exists", loanID),
		ErrLoanAlreadyExists,
	)
}

func WrapLoanAlreadyClosed(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanAlreadyClosed,
		fmt.Sprintf("Loan with ID %s is already closed", loanID),
		ErrLoanAlreadyClosed,
	)
}

func WrapInvalidLoanTerms(reason string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidLoanTerms,
		reason,
		ErrInvalidLoanTerms,
	)
}

func WrapApplicationNotFound(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeApplicationNotFound,
		fmt.Sprintf("Application for loan %s not found", loanID),
		ErrApplicationNotFound,
	)
}

func WrapAlreadyCompleted(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeAlreadyCompleted,
		fmt.Sprintf("Application for loan %s has already been completed", loanID),
		ErrAlreadyCompleted,
	)
}

func WrapVerificationRequired(kind string) *BusinessError {
	return NewBusinessError(
		ErrCodeVerificationRequired,
		fmt.Sprintf("%s verification must be completed before continuing", kind),
		ErrVerificationRequired,
	)
}

func WrapProviderError(provider string, err error) *BusinessError {
	return NewBusinessError(
		ErrCodeProviderError,
		fmt.Sprintf("%s provider request failed", provider),
		errors.Join(ErrProviderUnavailable, err),
	)
}

func WrapPaymentAmountMismatch(expected, actual string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidPaymentAmount,
		fmt.Sprintf("Payment amount %s does not match expected weekly payment %s", actual, expected),
		ErrInvalidPaymentAmount,
	)
}

func WrapNoOutstandingBalance(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeNoOutstandingBalance,
		fmt.Sprintf("Loan with ID %s has no outstanding balance", loanID),
		ErrNoOutstandingBalance,
	)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeDatabaseError,
		"database operation failed",
		err,
	)
}

func WrapCacheError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeCacheError,
		"cache operation failed",
		err,
	)
}

// IsAlreadyCompleted reports whether err indicates the idempotent-submit
// recovery path: the application finished server-side before this attempt.
func IsAlreadyCompleted(err error) bool {
	return errors.Is(err, ErrAlreadyCompleted)
}

// IsRecordInvalid reports whether err indicates the underlying loan record
// is missing or unusable and the application must restart from scratch.
func IsRecordInvalid(err error) bool {
	return errors.Is(err, ErrLoanNotFound) || errors.Is(err, ErrApplicationNotFound)
}
