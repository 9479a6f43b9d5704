package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TestContext holds state between test steps
type TestContext struct {
	BaseURL          string
	HTTPClient       *http.Client
	LastResponse     *http.Response
	LastResponseBody []byte

	// Caller is sent as X-Caller-MSP; empty means the node default.
	Caller     string
	PolicyHash string
	// PublicKeys and PrivateKeys are keyed by asset id.
	PublicKeys  map[string]string
	PrivateKeys map[string]string
	// CreatedAt holds each anchor's createdTimestamp.
	CreatedAt map[string]string
}

// NewTestContext creates a new test context
func NewTestContext(baseURL string) *TestContext {
	return &TestContext{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		PublicKeys:  make(map[string]string),
		PrivateKeys: make(map[string]string),
		CreatedAt:   make(map[string]string),
	}
}

// POST makes a POST request as the current caller and stores the response
func (tc *TestContext) POST(path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	return tc.do(http.MethodPost, path, bytes.NewReader(data))
}

// GET makes a GET request as the current caller and stores the response
func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, nil)
}

func (tc *TestContext) do(method, path string, body io.Reader) error {
	req, err := http.NewRequestWithContext(context.Background(), method, tc.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tc.Caller != "" {
		req.Header.Set("X-Caller-MSP", tc.Caller)
	}

	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}

	tc.LastResponse = resp
	tc.LastResponseBody, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	return nil
}

// GetResponseField extracts a dotted path such as "anchor.status" from the
// JSON response.
func (tc *TestContext) GetResponseField(path string) (any, error) {
	var data any
	if err := json.Unmarshal(tc.LastResponseBody, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	cur := data
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %s: %q is not an object", path, part)
		}
		cur, ok = m[part]
		if !ok {
			return nil, fmt.Errorf("field %s not found in response", path)
		}
	}
	return cur, nil
}

// decodeLast unmarshals the last response body into v.
func (tc *TestContext) decodeLast(v any) error {
	if err := json.Unmarshal(tc.LastResponseBody, v); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w (body %s)", err, tc.LastResponseBody)
	}
	return nil
}

func (tc *TestContext) expectStatus(codes ...int) error {
	if tc.LastResponse == nil {
		return fmt.Errorf("no response recorded")
	}
	for _, c := range codes {
		if tc.LastResponse.StatusCode == c {
			return nil
		}
	}
	return fmt.Errorf("expected status %v, got %d: %s", codes, tc.LastResponse.StatusCode, tc.LastResponseBody)
}
