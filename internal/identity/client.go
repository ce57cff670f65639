package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/angelmondragon/walletcore-backend/pkg/config"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
)

var errBaseURLRequired = errors.New("identity base url required")

// PersonalData is the holder information the verifier cross-checks against
// the national identity record.
type PersonalData struct {
	FullName    string `json:"full_name"`
	FatherName  string `json:"father_name,omitempty"`
	DateOfBirth string `json:"date_of_birth"`
	Address     string `json:"address,omitempty"`
}

// Result is the verifier's answer.
type Result struct {
	Verified  bool
	KYCLevel  enums.KYCLevel
	RiskFlags []string
}

// Verifier checks an identity document number against personal data.
type Verifier interface {
	Verify(ctx context.Context, idNumber string, data PersonalData) (Result, error)
}

// StatusError is a non-2xx answer from the identity provider.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("identity provider returned status %d", e.StatusCode)
}

// HTTPVerifier calls the external identity verification API.
type HTTPVerifier struct {
	baseURL  string
	apiKey   string
	client   *http.Client
	executor failsafe.Executor[*http.Response]
}

// NewHTTPVerifier builds a verifier with retries on transport errors and 5xx
// answers behind a circuit breaker.
func NewHTTPVerifier(cfg config.IdentityConfig, httpClient *http.Client) (*HTTPVerifier, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errBaseURLRequired
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := max(cfg.MaxRetries, 0)

	failed := func(resp *http.Response, err error) bool {
		return err != nil || (resp != nil && resp.StatusCode >= http.StatusInternalServerError)
	}
	retry := retrypolicy.NewBuilder[*http.Response]().
		HandleIf(failed).
		WithBackoff(100*time.Millisecond, 2*time.Second).
		WithJitterFactor(0.1).
		WithMaxRetries(maxRetries).
		Build()
	breaker := circuitbreaker.NewBuilder[*http.Response]().
		HandleIf(failed).
		WithFailureThresholdRatio(5, 10).
		WithDelay(time.Minute).
		Build()

	return &HTTPVerifier{
		baseURL:  base,
		apiKey:   cfg.APIKey,
		client:   httpClient,
		executor: failsafe.With(retry, breaker),
	}, nil
}

type verifyRequest struct {
	IDNumber string `json:"id_number"`
	PersonalData
}

type verifyResponse struct {
	Verified  bool     `json:"verified"`
	KYCLevel  int      `json:"kyc_level"`
	RiskFlags []string `json:"risk_flags"`
}

func (v *HTTPVerifier) Verify(ctx context.Context, idNumber string, data PersonalData) (Result, error) {
	body, err := json.Marshal(verifyRequest{IDNumber: idNumber, PersonalData: data})
	if err != nil {
		return Result{}, err
	}

	resp, err := v.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/v1/verify", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if v.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+v.apiKey)
		}
		resp, err := v.client.Do(req)
		if err == nil && resp.StatusCode >= http.StatusInternalServerError {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
		return resp, err
	})
	if err != nil {
		return Result{}, fmt.Errorf("identity request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, &StatusError{StatusCode: resp.StatusCode}
	}
	var decoded verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Result{}, fmt.Errorf("decode identity response: %w", err)
	}
	level, err := enums.ParseKYCLevel(decoded.KYCLevel)
	if err != nil {
		return Result{}, fmt.Errorf("identity response: %w", err)
	}
	return Result{Verified: decoded.Verified, KYCLevel: level, RiskFlags: decoded.RiskFlags}, nil
}
