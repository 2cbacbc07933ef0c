// Package testutil provides request builders and envelope assertions shared
// by handler and router tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pidgate/pkg/platform/httputil"
)

// NewJSONRequest builds a request whose body is body marshaled to JSON. A
// nil body sends no payload.
func NewJSONRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body), "failed to marshal request body")
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DoRequest serves req on handler and returns the recorder.
func DoRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// rawEnvelope mirrors httputil.Envelope with Data left undecoded.
type rawEnvelope struct {
	Success  bool                `json:"success"`
	Data     json.RawMessage     `json:"data"`
	Error    *httputil.ErrorBody `json:"error"`
	Metadata httputil.Metadata   `json:"metadata"`
}

// DecodeEnvelope checks the response is a success envelope and decodes its
// data into T.
func DecodeEnvelope[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var env rawEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), "response is not an envelope")
	require.True(t, env.Success, "expected success envelope, got error %+v", env.Error)
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out), "failed to decode envelope data")
	return out
}

// AssertError checks status and the envelope's error code.
func AssertError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, rr.Code, "unexpected status code")
	var env rawEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), "response is not an envelope")
	assert.False(t, env.Success)
	require.NotNil(t, env.Error, "error envelope has no error body")
	assert.Equal(t, code, env.Error.Code, "unexpected error code")
}

// RequestID returns the request ID echoed in the envelope metadata.
func RequestID(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var env rawEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), "response is not an envelope")
	return env.Metadata.RequestID
}
