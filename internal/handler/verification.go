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

type VerificationHandler struct {
	service   *service.ApplicationService
	validator *validator.Validate
}

func NewVerificationHandler(service *service.ApplicationService) *VerificationHandler {
	return &VerificationHandler{
		service:   service,
		validator: newValidator(),
	}
}

type sendCodeRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,e164"`
}

type verifyCodeRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,e164"`
	Code        string `json:"code" validate:"required,len=6,numeric"`
}

type verificationStatusResponse struct {
	LoanID   string `json:"loan_id"`
	Status   string `json:"status"`
	Verified bool   `json:"verified,omitempty"`
}

// identityWebhookPayload is the provider's callback body. The provider signs
// the session, not the loan, so the loan id rides in metadata.
type identityWebhookPayload struct {
	LoanID string `json:"loan_id" validate:"required"`
	Status string `json:"status" validate:"required"`
}

type phoneWebhookPayload struct {
	LoanID      string `json:"loan_id" validate:"required"`
	PhoneNumber string `json:"phone_number"`
	Status      string `json:"status" validate:"required"`
}

// SendPhoneCode texts an OTP to the borrower.
func (h *VerificationHandler) SendPhoneCode(w http.ResponseWriter, r *http.Request) {
	loanID := mux.Vars(r)["loanId"]

	var request sendCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		response.BadRequest(w, "Invalid request body", err)
		return
	}
	if err := h.validator.Struct(&request); err != nil {
		response.ValidationFailed(w, validationFields(err))
		return
	}

	status, err := h.service.SendPhoneCode(r.Context(), loanID, request.PhoneNumber)
	if err != nil {
		respondError(w, err)
		return
	}

	response.Success(w, verificationStatusResponse{LoanID: loanID, Status: string(status)})
}

// VerifyPhoneCode checks the OTP the borrower entered.
func (h *VerificationHandler) VerifyPhoneCode(w http.ResponseWriter, r *http.Request) {
	loanID := mux.Vars(r)["loanId"]

	var request verifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		response.BadRequest(w, "Invalid request body", err)
		return
	}
	if err := h.validator.Struct(&request); err != nil {
		response.ValidationFailed(w, validationFields(err))
		return
	}

	ok, status, err := h.service.VerifyPhoneCode(r.Context(), loanID, request.PhoneNumber, request.Code)
	if err != nil {
		respondError(w, err)
		return
	}

	response.Success(w, verificationStatusResponse{LoanID: loanID, Status: string(status), Verified: ok})
}

// StartIdentitySession opens a hosted identity-verification session and
// returns the client secret the borrower's device needs.
func (h *VerificationHandler) StartIdentitySession(w http.ResponseWriter, r *http.Request) {
	loanID := mux.Vars(r)["loanId"]

	session, err := h.service.StartIdentitySession(r.Context(), loanID)
	if err != nil {
		respondError(w, err)
		return
	}

	response.Created(w, session)
}

// PollIdentityStatus re-reads the identity session status from the provider.
func (h *VerificationHandler) PollIdentityStatus(w http.ResponseWriter, r *http.Request) {
	loanID := mux.Vars(r)["loanId"]

	status, err := h.service.PollIdentityStatus(r.Context(), loanID)
	if err != nil {
		respondError(w, err)
		return
	}

	response.Success(w, verificationStatusResponse{
		LoanID:   loanID,
		Status:   string(status),
		Verified: status.IsTerminalSuccess(),
	})
}

// IdentityWebhook ingests the identity provider's status callback.
func (h *VerificationHandler) IdentityWebhook(w http.ResponseWriter, r *http.Request) {
	var payload identityWebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		response.BadRequest(w, "Invalid webhook payload", err)
		return
	}
	if err := h.validator.Struct(&payload); err != nil {
		response.ValidationFailed(w, validationFields(err))
		return
	}

	status := domain.VerificationStatus(payload.Status)
	if !status.Known() {
		response.BadRequest(w, "Unknown verification status: "+payload.Status, nil)
		return
	}

	if err := h.service.IngestIdentityWebhook(r.Context(), payload.LoanID, status); err != nil {
		respondError(w, err)
		return
	}

	response.Success(w, nil)
}

// PhoneWebhook ingests the phone provider's status callback.
func (h *VerificationHandler) PhoneWebhook(w http.ResponseWriter, r *http.Request) {
	var payload phoneWebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		response.BadRequest(w, "Invalid webhook payload", err)
		return
	}
	if err := h.validator.Struct(&payload); err != nil {
		response.ValidationFailed(w, validationFields(err))
		return
	}

	status := domain.VerificationStatus(payload.Status)
	if !status.Known() {
		response.BadRequest(w, "Unknown verification status: "+payload.Status, nil)
		return
	}

	if err := h.service.IngestPhoneWebhook(r.Context(), payload.LoanID, payload.PhoneNumber, status); err != nil {
		respondError(w, err)
		return
	}

	response.Success(w, nil)
}
