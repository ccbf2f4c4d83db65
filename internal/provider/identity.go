package provider

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/lendfast/origination-engine/internal/config"
	"github.com/lendfast/origination-engine/internal/domain"
	apperrors "github.com/lendfast/origination-engine/pkg/errors"
)

// IdentitySession references a provider-hosted document verification flow.
// The client secret is handed to the borrower's device; the session id is
// what status lookups and webhooks key on.
type IdentitySession struct {
	SessionID    string `json:"session_id"`
	ClientSecret string `json:"client_secret"`
}

// IdentityVerifier is the hosted identity/document verification collaborator.
type IdentityVerifier interface {
	CreateSession(ctx context.Context, loanID string) (*IdentitySession, error)

	// SessionStatus polls the status-by-session endpoint. Results feed the
	// progress machine as PollResult events.
	SessionStatus(ctx context.Context, sessionID string) (domain.VerificationStatus, error)
}

type identityClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logrus.Entry
}

func NewIdentityClient(cfg config.ProviderConfig, log *logrus.Logger) IdentityVerifier {
	return &identityClient{
		baseURL: cfg.IdentityBaseURL,
		apiKey:  cfg.IdentityAPIKey,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		log:     log.WithField("provider", "identity"),
	}
}

type createSessionRequest struct {
	LoanID string `json:"loan_id"`
}

type sessionStatusRequest struct {
	SessionID string `json:"session_id"`
}

type sessionStatusResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

func (c *identityClient) CreateSession(ctx context.Context, loanID string) (*IdentitySession, error) {
	var session IdentitySession
	err := postJSON(ctx, c.http, c.baseURL+"/v1/sessions", c.apiKey, createSessionRequest{LoanID: loanID}, &session)
	if err != nil {
		c.log.WithError(err).Warn("creating identity session failed")
		return nil, apperrors.WrapProviderError("identity", err)
	}
	return &session, nil
}

func (c *identityClient) SessionStatus(ctx context.Context, sessionID string) (domain.VerificationStatus, error) {
	var resp sessionStatusResponse
	err := postJSON(ctx, c.http, c.baseURL+"/v1/sessions/status", c.apiKey, sessionStatusRequest{SessionID: sessionID}, &resp)
	if err != nil {
		c.log.WithError(err).Warn("fetching identity session status failed")
		return domain.VerificationNotStarted, apperrors.WrapProviderError("identity", err)
	}
	return domain.VerificationStatus(resp.Status), nil
}
