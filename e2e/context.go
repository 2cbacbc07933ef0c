package e2e

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// TestContext carries the HTTP client, the last response and values saved
// between steps of one scenario.
type TestContext struct {
	BaseURL string
	client  *http.Client

	status int
	body   []byte
	env    envelope
	saved  map[string]any
	run    string

	providerToken string
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewTestContext targets a running pidgate at baseURL.
func NewTestContext(baseURL string) *TestContext {
	return &TestContext{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		saved:   map[string]any{},
		run:     newRunID(),
	}
}

// UseProviderToken sets the bearer token sent by the Provider* requests.
func (tc *TestContext) UseProviderToken(token string) {
	tc.providerToken = token
}

// Reset clears per-scenario state.
func (tc *TestContext) Reset() {
	tc.status = 0
	tc.body = nil
	tc.env = envelope{}
	tc.saved = map[string]any{}
	tc.run = newRunID()
}

// Expand replaces $RUN with an ID unique to the scenario, so PIDs do not
// collide with earlier runs against the same server.
func (tc *TestContext) Expand(s string) string {
	return strings.ReplaceAll(s, "$RUN", tc.run)
}

func newRunID() string {
	var b [3]byte
	_, _ = rand.Read(b[:])
	return strings.ToUpper(hex.EncodeToString(b[:]))
}

func (tc *TestContext) POST(path string, body any) error {
	return tc.do(http.MethodPost, path, body, nil)
}

func (tc *TestContext) GET(path string, headers map[string]string) error {
	return tc.do(http.MethodGet, path, nil, headers)
}

func (tc *TestContext) DELETE(path string, body any) error {
	return tc.do(http.MethodDelete, path, body, nil)
}

func (tc *TestContext) ProviderPOST(path string, body any) error {
	return tc.do(http.MethodPost, path, body, tc.providerAuth())
}

func (tc *TestContext) ProviderDELETE(path string, body any) error {
	return tc.do(http.MethodDelete, path, body, tc.providerAuth())
}

func (tc *TestContext) providerAuth() map[string]string {
	return map[string]string{"Authorization": "Bearer " + tc.providerToken}
}

func (tc *TestContext) do(method, path string, body any, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, tc.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	tc.status = resp.StatusCode
	tc.body, err = io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	tc.env = envelope{}
	if len(tc.body) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(tc.body, &tc.env); err != nil {
			return fmt.Errorf("decode envelope: %w", err)
		}
	}
	return nil
}

func (tc *TestContext) StatusCode() int { return tc.status }

func (tc *TestContext) Body() string { return string(tc.body) }

// ErrorCode is the error code of the last response, or "" on success.
func (tc *TestContext) ErrorCode() string {
	if tc.env.Error == nil {
		return ""
	}
	return tc.env.Error.Code
}

// ResponseData returns the raw data member of the last envelope.
func (tc *TestContext) ResponseData() json.RawMessage { return tc.env.Data }

// GetResponseField walks a dotted path into the data member. Numeric
// segments index arrays.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var cur any
	if err := json.Unmarshal(tc.env.Data, &cur); err != nil {
		return nil, fmt.Errorf("response has no data: %s", tc.body)
	}
	for _, part := range strings.Split(field, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, fmt.Errorf("field %q not found in %s", field, tc.body)
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node) {
				return nil, fmt.Errorf("bad index %q for field %q", part, field)
			}
			cur = node[i]
		default:
			return nil, fmt.Errorf("field %q not found in %s", field, tc.body)
		}
	}
	return cur, nil
}

func (tc *TestContext) Save(key string, v any) { tc.saved[key] = v }

func (tc *TestContext) Load(key string) (any, bool) {
	v, ok := tc.saved[key]
	return v, ok
}
