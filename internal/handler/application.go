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

type ApplicationHandler struct {
	service   *service.ApplicationService
	validator *validator.Validate
}

func NewApplicationHandler(service *service.ApplicationService) *ApplicationHandler {
	return &ApplicationHandler{
		service:   service,
		validator: newValidator(),
	}
}

// StepResponse reports the wizard position after a transition.
type StepResponse struct {
	LoanID string `json:"loan_id"`
	Step   int    `json:"step"`
	Name   string `json:"step_name"`
}

// GetState returns the live application snapshot, resuming it if needed.
func (h *ApplicationHandler) GetState(w http.ResponseWriter, r *http.Request) {
	loanID := mux.Vars(r)["loanId"]

	snap, err := h.service.State(r.Context(), loanID)
	if err != nil {
		respondError(w, err)
		return
	}

	response.Success(w, snap)
}

// UpdateAnswers applies a partial edit to the borrower's answers.
func (h *ApplicationHandler) UpdateAnswers(w http.ResponseWriter, r *http.Request) {
	loanID := mux.Vars(r)["loanId"]

	var request service.UpdateAnswersRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		response.BadRequest(w, "Invalid request body", err)
		return
	}

	if err := h.service.UpdateAnswers(r.Context(), loanID, &request); err != nil {
		respondError(w, err)
		return
	}

	snap, err := h.service.State(r.Context(), loanID)
	if err != nil {
		respondError(w, err)
		return
	}

	response.Success(w, snap)
}

// Next advances the wizard. A blocked gate comes back as a 422 with the
// failing fields; the step does not move.
func (h *ApplicationHandler) Next(w http.ResponseWriter, r *http.Request) {
	loanID := mux.Vars(r)["loanId"]

	step, fields, err := h.service.Next(r.Context(), loanID)
	if err != nil {
		respondError(w, err)
		return
	}
	if len(fields) > 0 {
		response.ValidationFailed(w, fields)
		return
	}

	response.Success(w, StepResponse{LoanID: loanID, Step: int(step), Name: step.String()})
}

// Prev retreats the wizard one step. Always allowed; answers are kept.
func (h *ApplicationHandler) Prev(w http.ResponseWriter, r *http.Request) {
	loanID := mux.Vars(r)["loanId"]

	step, err := h.service.Prev(r.Context(), loanID)
	if err != nil {
		respondError(w, err)
		return
	}

	response.Success(w, StepResponse{LoanID: loanID, Step: int(step), Name: step.String()})
}

// Submit finalizes the application.
func (h *ApplicationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	loanID := mux.Vars(r)["loanId"]

	if err := h.service.Submit(r.Context(), loanID); err != nil {
		respondError(w, err)
		return
	}

	response.Success(w, StepResponse{
		LoanID: loanID,
		Step:   int(domain.StepSubmitted),
		Name:   domain.StepSubmitted.String(),
	})
}
