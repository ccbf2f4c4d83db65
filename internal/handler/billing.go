package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/lendfast/origination-engine/internal/domain"
	"github.com/lendfast/origination-engine/internal/service"
	"github.com/lendfast/origination-engine/pkg/response"
)

type BillingHandler struct {
	service   *service.BillingService
	validator *validator.Validate
}

func NewBillingHandler(service *service.BillingService) *BillingHandler {
	return &BillingHandler{
		service:   service,
		validator: newValidator(),
	}
}

// CreateLoan originates a loan and returns it with its amortized schedule.
func (h *BillingHandler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var request domain.CreateLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		response.BadRequest(w, "Invalid request body", err)
		return
	}

	if err := h.validator.Struct(&request); err != nil {
		response.ValidationFailed(w, validationFields(err))
		return
	}

	loan, schedule, err := h.service.CreateLoan(r.Context(), &request)
	if err != nil {
		respondError(w, err)
		return
	}

	response.Created(w, domain.CreateLoanResponse{
		Loan:     loan,
		Schedule: schedule,
	})
}

// GetSchedule returns the recomputed schedule. ?mode=preview (default) uses
// simple-interest mode; ?mode=legal uses amortized mode.
func (h *BillingHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	loanID := mux.Vars(r)["loanId"]

	var (
		schedule []*domain.PaymentScheduleEntry
		err      error
	)

	switch mode := r.URL.Query().Get("mode"); mode {
	case "", "preview":
		schedule, err = h.service.PreviewSchedule(r.Context(), loanID)
	case "legal":
		schedule, err = h.service.LegalSchedule(r.Context(), loanID)
	default:
		response.BadRequest(w, "Unknown schedule mode: "+mode, nil)
		return
	}

	if err != nil {
		respondError(w, err)
		return
	}

	response.Success(w, schedule)
}

// GetOutstanding returns the remaining balance on the loan.
func (h *BillingHandler) GetOutstanding(w http.ResponseWriter, r *http.Request) {
	loanID := mux.Vars(r)["loanId"]

	outstanding, err := h.service.GetOutstanding(r.Context(), loanID)
	if err != nil {
		respondError(w, err)
		return
	}

	response.Success(w, domain.OutstandingResponse{
		LoanID:      loanID,
		Outstanding: outstanding,
	})
}

// MakePayment records a weekly payment.
func (h *BillingHandler) MakePayment(w http.ResponseWriter, r *http.Request) {
	loanID := mux.Vars(r)["loanId"]

	var request domain.MakePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		response.BadRequest(w, "Invalid request body", err)
		return
	}

	if err := h.validator.Struct(&request); err != nil {
		response.ValidationFailed(w, validationFields(err))
		return
	}

	payment, err := h.service.MakePayment(r.Context(), loanID, request.Amount)
	if err != nil {
		respondError(w, err)
		return
	}

	response.Created(w, payment)
}

// IsDelinquent reports the borrower's delinquency standing.
func (h *BillingHandler) IsDelinquent(w http.ResponseWriter, r *http.Request) {
	loanID := mux.Vars(r)["loanId"]

	delinquent, missed, err := h.service.IsDelinquent(r.Context(), loanID)
	if err != nil {
		respondError(w, err)
		return
	}

	response.Success(w, domain.DelinquentResponse{
		LoanID:       loanID,
		IsDelinquent: delinquent,
		MissedWeeks:  missed,
	})
}
