package screening

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
)

var errBaseURLRequired = errors.New("screening base url required")

// StatusError is a non-2xx answer from the screening provider.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("screening provider returned status %d", e.StatusCode)
}

// RemoteClient queries an external sanctions/PEP screening API.
type RemoteClient struct {
	baseURL  string
	apiKey   string
	client   *http.Client
	executor failsafe.Executor[*http.Response]
}

// NewRemoteClient builds a client that retries transport failures and 5xx
// answers, and stops calling a provider that keeps failing.
func NewRemoteClient(cfg config.ScreeningConfig, httpClient *http.Client) (*RemoteClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errBaseURLRequired
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &RemoteClient{
		baseURL:  base,
		apiKey:   cfg.APIKey,
		client:   httpClient,
		executor: newHTTPExecutor(cfg.MaxRetries),
	}, nil
}

//nolint:bodyclose // the policies only inspect status codes
func newHTTPExecutor(maxRetries int) failsafe.Executor[*http.Response] {
	if maxRetries < 0 {
		maxRetries = 0
	}
	failed := func(resp *http.Response, err error) bool {
		return err != nil || (resp != nil && resp.StatusCode >= http.StatusInternalServerError)
	}
	retry := retrypolicy.NewBuilder[*http.Response]().
		HandleIf(failed).
		WithBackoff(50*time.Millisecond, time.Second).
		WithJitterFactor(0.1).
		WithMaxRetries(maxRetries).
		Build()
	breaker := circuitbreaker.NewBuilder[*http.Response]().
		HandleIf(failed).
		WithFailureThresholdRatio(5, 10).
		WithDelay(30 * time.Second).
		Build()
	return failsafe.With(retry, breaker)
}

type matchRequest struct {
	Name string `json:"name"`
}

type matchResponse struct {
	Matched    bool    `json:"matched"`
	Score      float64 `json:"score"`
	SourceList string  `json:"source_list"`
	Name       string  `json:"matched_name"`
}

func (c *RemoteClient) Match(ctx context.Context, name string) (Match, error) {
	body, err := json.Marshal(matchRequest{Name: name})
	if err != nil {
		return Match{}, err
	}

	resp, err := c.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/screen", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		resp, err := c.client.Do(req)
		if err == nil && resp.StatusCode >= http.StatusInternalServerError {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
		return resp, err
	})
	if err != nil {
		return Match{}, fmt.Errorf("screening request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Match{}, &StatusError{StatusCode: resp.StatusCode}
	}
	var decoded matchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Match{}, fmt.Errorf("decode screening response: %w", err)
	}
	return Match{
		Matched:     decoded.Matched,
		Score:       decoded.Score,
		SourceList:  decoded.SourceList,
		MatchedName: decoded.Name,
	}, nil
}
