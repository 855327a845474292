// internal/remote/client.go

// Package remote talks to the aggregator: app registration, anonymized
// daily upload, and the global-model fetch that seeds cold clients.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/user/preflight/internal/types"
)

// requestTimeout bounds every sync call; an expired call logs and leaves
// local state untouched.
const requestTimeout = 10 * time.Second

// ErrProtocolMismatch means the server answered with an unexpected
// shape. Callers treat it like any other network failure: log and
// continue locally.
var ErrProtocolMismatch = errors.New("unexpected server response shape")

// statusError is a non-2xx HTTP response.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server status %d: %s", e.Code, e.Body)
}

// EncryptedCount is one action's deterministic ciphertext with its
// observed count.
type EncryptedCount struct {
	ActionType   string `json:"actionType"`
	ActionTypeIV string `json:"actionTypeIV"`
	Count        int64  `json:"count"`
}

type registerResponse struct {
	AppID string `json:"appId"`
}

type uploadRequest struct {
	AppID        string           `json:"appId"`
	Interactions []EncryptedCount `json:"interactions"`
}

// GlobalModelResponse is the wire form of the aggregated model: maps
// keyed by ciphertext, with the matching IVs alongside. Hours arrive as
// string keys.
type GlobalModelResponse struct {
	GlobalActionCounter    map[string]int64            `json:"globalActionCounter"`
	GlobalActionCounterIVs map[string]string           `json:"globalActionCounterIVs"`
	TimePatterns           map[string]map[string]int64 `json:"timePatterns"`
	TimePatternsIVs        map[string]string           `json:"timePatternsIVs"`
}

// Client is the aggregator HTTP client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      *RetryPolicy
}

// NewClient creates a Client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		retry: DefaultRetryPolicy(),
	}
}

// RegisterApp asks the server for an installation id.
func (c *Client) RegisterApp(ctx context.Context) (types.AppID, error) {
	body, err := c.do(ctx, http.MethodPost, "/register-app", []byte("{}"))
	if err != nil {
		return "", err
	}
	var resp registerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrProtocolMismatch, err)
	}
	if resp.AppID == "" {
		return "", fmt.Errorf("%w: empty appId", ErrProtocolMismatch)
	}
	return types.AppID(resp.AppID), nil
}

// UploadAnonymousData posts the encrypted action histogram.
func (c *Client) UploadAnonymousData(ctx context.Context, appID types.AppID, interactions []EncryptedCount) error {
	req := uploadRequest{AppID: string(appID), Interactions: interactions}
	body, err := json.Marshal(&req)
	if err != nil {
		return fmt.Errorf("marshal upload: %w", err)
	}
	_, err = c.do(ctx, http.MethodPost, "/upload-anonymous-data", body)
	return err
}

// FetchGlobalModel retrieves and shape-checks the aggregated model for
// the given app id.
func (c *Client) FetchGlobalModel(ctx context.Context, appID types.AppID) (*GlobalModelResponse, error) {
	body, err := c.do(ctx, http.MethodGet, "/global-model/"+string(appID), nil)
	if err != nil {
		return nil, err
	}
	if err := validateGlobalModel(body); err != nil {
		return nil, err
	}
	var resp GlobalModelResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocolMismatch, err)
	}
	return &resp, nil
}

// do runs one HTTP call with the retry policy, returning the response
// body on 2xx.
func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		data, err := c.once(ctx, method, path, body)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !c.retry.ShouldRetry(err, attempt) {
			return nil, lastErr
		}
		select {
		case <-time.After(c.retry.Delay(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Client) once(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", types.NewRequestID())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{Code: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}
