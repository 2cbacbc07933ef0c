package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pidgate/internal/commitment"
	"pidgate/internal/pid"
	"pidgate/internal/proof"
	"pidgate/pkg/domain"
	"pidgate/pkg/platform/httputil"
	"pidgate/pkg/platform/middleware/auth"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestEncode(t *testing.T) {
	t.Run("joins values with level names from the schema", func(t *testing.T) {
		out, err := execute(t, "encode", "us", "CA", "075", "SF", "12B")
		require.NoError(t, err)
		assert.Equal(t, "US-CA-075-SF-12B\n", out)
	})

	t.Run("wrong number of values", func(t *testing.T) {
		_, err := execute(t, "encode", "US", "CA")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expects 4 values")
	})

	t.Run("segment violates its level rule", func(t *testing.T) {
		_, err := execute(t, "encode", "US", "california", "075", "SF", "12B")
		var malformed *pid.MalformedPIDError
		require.ErrorAs(t, err, &malformed)
	})

	t.Run("unknown country", func(t *testing.T) {
		_, err := execute(t, "encode", "ZZ", "1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown country")
	})
}

func TestDecode(t *testing.T) {
	out, err := execute(t, "decode", "--json", "US-CA-075-SF-12B")
	require.NoError(t, err)

	var segments []pid.Segment
	require.NoError(t, json.Unmarshal([]byte(out), &segments))
	require.Len(t, segments, 5)
	assert.Equal(t, pid.Segment{Level: pid.LevelCountry, Value: "US"}, segments[0])
	assert.Equal(t, pid.Segment{Level: "county", Value: "075"}, segments[2])
}

func TestDecodeWithSchemaFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schemas.yaml")
	schema := "delimiter: \"/\"\ncountries:\n  NL:\n    name: Netherlands\n    levels:\n      - {name: postcode, pattern: \"^[0-9]{4}$\"}\n"
	require.NoError(t, os.WriteFile(path, []byte(schema), 0o600))

	out, err := execute(t, "--schema", path, "decode", "NL/1012")
	require.NoError(t, err)
	assert.Contains(t, out, "postcode")
	assert.Contains(t, out, "1012")
}

func TestValidate(t *testing.T) {
	out, err := execute(t, "validate", "US-CA-075-SF-12B", "US-CA-075")
	require.ErrorIs(t, err, errInvalid)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "VALID"))
	assert.True(t, strings.HasPrefix(lines[1], "MALFORMED"))
}

func TestCommit(t *testing.T) {
	nonce := strings.Repeat("ab", commitment.NonceSize)
	out, err := execute(t, "commit", "--json", "--nonce", nonce, "US-CA-075-SF-12B")
	require.NoError(t, err)

	var c commitment.Commitment
	require.NoError(t, json.Unmarshal([]byte(out), &c))
	assert.Equal(t, nonce, c.Nonce)
	assert.True(t, commitment.Open(c, "US-CA-075-SF-12B"))

	_, err = execute(t, "commit", "--nonce", "zz", "value")
	require.ErrorIs(t, err, commitment.ErrInvalidNonce)
}

func TestVerifyProof(t *testing.T) {
	env, err := proof.Encode(&proof.StructureProof{
		Header:         proof.Header{ID: "p-1", Type: proof.KindStructure},
		CountryCode:    "US",
		HierarchyDepth: 5,
	})
	require.NoError(t, err)
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "proof.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	serve := func(result proof.Result) *httptest.Server {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/proofs/verify", r.URL.Path)
			var got proof.Envelope
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			assert.Equal(t, proof.KindStructure, got.ProofType)
			httputil.WriteJSON(r.Context(), w, http.StatusOK, result)
		}))
		t.Cleanup(srv.Close)
		return srv
	}

	t.Run("valid proof", func(t *testing.T) {
		srv := serve(proof.Result{Valid: true})
		out, err := execute(t, "verify-proof", "--server", srv.URL, path)
		require.NoError(t, err)
		assert.Equal(t, "VALID structure proof\n", out)
	})

	t.Run("rejected proof", func(t *testing.T) {
		srv := serve(proof.Result{Reason: domain.ReasonInvalid})
		out, err := execute(t, "verify-proof", "--server", srv.URL, path)
		require.ErrorIs(t, err, errInvalid)
		assert.Contains(t, out, "INVALID (INVALID)")
	})

	t.Run("undecodable envelope never reaches the server", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{"proofType":"teleport","proof":{}}`), 0o600))
		_, err := execute(t, "verify-proof", "--server", "http://127.0.0.1:1", bad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown proof type")
	})
}

func TestToken(t *testing.T) {
	t.Run("mints a provider token the server accepts", func(t *testing.T) {
		t.Setenv("PIDGATE_JWT_SIGNING_KEY", "pidctl-test-key")
		out, err := execute(t, "token", "did:pid:provider")
		require.NoError(t, err)

		subject, err := auth.NewTokenAuthority([]byte("pidctl-test-key"), "pidgate-provider").Validate(strings.TrimSpace(out))
		require.NoError(t, err)
		assert.Equal(t, "did:pid:provider", subject)

		_, err = auth.NewTokenAuthority([]byte("pidctl-test-key"), "pidgate").Validate(strings.TrimSpace(out))
		assert.Error(t, err, "provider tokens are not carrier tokens")
	})

	t.Run("needs the signing key", func(t *testing.T) {
		t.Setenv("PIDGATE_JWT_SIGNING_KEY", "")
		_, err := execute(t, "token", "did:pid:provider")
		require.Error(t, err)
	})
}
