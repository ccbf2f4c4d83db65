package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendfast/origination-engine/internal/config"
	"github.com/lendfast/origination-engine/internal/domain"
)

func testProviderConfig(url string) config.ProviderConfig {
	return config.ProviderConfig{
		PhoneBaseURL:    url,
		PhoneAPIKey:     "test-key",
		IdentityBaseURL: url,
		IdentityAPIKey:  "test-key",
		RequestTimeout:  2 * time.Second,
	}
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestPhoneSend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/otp/send", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req sendOTPRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "+12145550137", req.PhoneNumber)
		assert.Equal(t, "LN-1001", req.LoanID)

		json.NewEncoder(w).Encode(sendOTPResponse{PhoneNumber: req.PhoneNumber, Status: "sent"})
	}))
	defer server.Close()

	client := NewPhoneClient(testProviderConfig(server.URL), quietLogger())
	status, err := client.Send(context.Background(), "+12145550137", "LN-1001")
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationSent, status)
}

func TestPhoneVerify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/otp/verify", r.URL.Path)

		var req verifyOTPRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if req.Code == "123456" {
			json.NewEncoder(w).Encode(verifyOTPResponse{Success: true, Status: "verified"})
			return
		}
		json.NewEncoder(w).Encode(verifyOTPResponse{Success: false, Status: "failed"})
	}))
	defer server.Close()

	client := NewPhoneClient(testProviderConfig(server.URL), quietLogger())

	ok, status, err := client.Verify(context.Background(), "+12145550137", "123456", "LN-1001")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.VerificationVerified, status)

	ok, status, err = client.Verify(context.Background(), "+12145550137", "000000", "LN-1001")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, domain.VerificationFailed, status)
}

func TestPhoneProviderErrorIsWrapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewPhoneClient(testProviderConfig(server.URL), quietLogger())
	_, err := client.Send(context.Background(), "+12145550137", "LN-1001")
	assert.Error(t, err)
}

func TestIdentitySessionLifecycle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/sessions":
			json.NewEncoder(w).Encode(IdentitySession{SessionID: "vs_123", ClientSecret: "secret_abc"})
		case "/v1/sessions/status":
			var req sessionStatusRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "vs_123", req.SessionID)
			json.NewEncoder(w).Encode(sessionStatusResponse{SessionID: req.SessionID, Status: "processing"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewIdentityClient(testProviderConfig(server.URL), quietLogger())

	session, err := client.CreateSession(context.Background(), "LN-1001")
	require.NoError(t, err)
	assert.Equal(t, "vs_123", session.SessionID)
	assert.Equal(t, "secret_abc", session.ClientSecret)

	status, err := client.SessionStatus(context.Background(), session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationProcessing, status)
}
