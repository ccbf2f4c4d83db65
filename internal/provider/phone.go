// Package provider holds the HTTP clients for the hosted verification
// collaborators. Their internals are out of scope; only the request and
// response contracts live here.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/lendfast/origination-engine/internal/config"
	"github.com/lendfast/origination-engine/internal/domain"
	apperrors "github.com/lendfast/origination-engine/pkg/errors"
)

// PhoneVerifier is the SMS one-time-password collaborator.
type PhoneVerifier interface {
	// Send delivers an OTP to the number and reports the resulting status.
	Send(ctx context.Context, phoneNumber, loanID string) (domain.VerificationStatus, error)

	// Verify checks a code the borrower typed in.
	Verify(ctx context.Context, phoneNumber, code, loanID string) (bool, domain.VerificationStatus, error)
}

type phoneClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logrus.Entry
}

func NewPhoneClient(cfg config.ProviderConfig, log *logrus.Logger) PhoneVerifier {
	return &phoneClient{
		baseURL: cfg.PhoneBaseURL,
		apiKey:  cfg.PhoneAPIKey,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		log:     log.WithField("provider", "phone"),
	}
}

type sendOTPRequest struct {
	PhoneNumber string `json:"phone_number"`
	LoanID      string `json:"loan_id"`
}

type sendOTPResponse struct {
	PhoneNumber string `json:"phone_number"`
	Status      string `json:"status"`
}

type verifyOTPRequest struct {
	PhoneNumber string `json:"phone_number"`
	Code        string `json:"code"`
	LoanID      string `json:"loan_id"`
}

type verifyOTPResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
}

func (c *phoneClient) Send(ctx context.Context, phoneNumber, loanID string) (domain.VerificationStatus, error) {
	var resp sendOTPResponse
	err := c.post(ctx, "/v1/otp/send", sendOTPRequest{PhoneNumber: phoneNumber, LoanID: loanID}, &resp)
	if err != nil {
		return domain.VerificationFailed, err
	}
	return domain.VerificationStatus(resp.Status), nil
}

func (c *phoneClient) Verify(ctx context.Context, phoneNumber, code, loanID string) (bool, domain.VerificationStatus, error) {
	var resp verifyOTPResponse
	err := c.post(ctx, "/v1/otp/verify", verifyOTPRequest{PhoneNumber: phoneNumber, Code: code, LoanID: loanID}, &resp)
	if err != nil {
		return false, domain.VerificationFailed, err
	}
	return resp.Success, domain.VerificationStatus(resp.Status), nil
}

func (c *phoneClient) post(ctx context.Context, path string, body, out interface{}) error {
	if err := postJSON(ctx, c.http, c.baseURL+path, c.apiKey, body, out); err != nil {
		c.log.WithError(err).WithField("path", path).Warn("phone provider request failed")
		return apperrors.WrapProviderError("phone", err)
	}
	return nil
}

// postJSON is the shared request helper for both provider clients.
func postJSON(ctx context.Context, client *http.Client, url, apiKey string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
