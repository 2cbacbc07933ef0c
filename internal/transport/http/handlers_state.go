package httptransport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"pidgate/internal/credential"
	"pidgate/internal/registry"
	"pidgate/internal/revocation"
	dErrors "pidgate/pkg/domain-errors"
	"pidgate/pkg/platform/httputil"
	"pidgate/pkg/platform/sentinel"
	"pidgate/pkg/requestcontext"
)

// RootSource publishes the registry's signed roots.
type RootSource interface {
	Root() registry.SignedRoot
	Roots() []registry.SignedRoot
}

// RevocationSource serves published revocation lists.
type RevocationSource interface {
	Latest(ctx context.Context) (*revocation.List, error)
	Version(ctx context.Context, version uint64) (*revocation.List, error)
	At(ctx context.Context, t time.Time) (*revocation.List, error)
}

type CredentialVerifier interface {
	Verify(ctx context.Context, vc *credential.VerifiableCredential) credential.Result
}

// StateHandler exposes the signed state verifiers need to check proofs and
// credentials offline: registry roots and revocation lists.
type StateHandler struct {
	roots       RootSource
	revocations RevocationSource
	credentials CredentialVerifier
	logger      *slog.Logger
}

func NewStateHandler(roots RootSource, revocations RevocationSource, credentials CredentialVerifier, logger *slog.Logger) *StateHandler {
	return &StateHandler{roots: roots, revocations: revocations, credentials: credentials, logger: logger}
}

func (h *StateHandler) Register(r chi.Router) {
	r.Get("/registry/root", h.handleRoot)
	r.Get("/registry/roots", h.handleRoots)
	r.Get("/revocations", h.handleRevocationsAt)
	r.Get("/revocations/latest", h.handleRevocationsLatest)
	r.Get("/revocations/{version}", h.handleRevocationsVersion)
	r.Post("/credentials/verify", h.handleCredentialVerify)
}

func (h *StateHandler) handleRoot(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(r.Context(), w, http.StatusOK, h.roots.Root())
}

func (h *StateHandler) handleRoots(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(r.Context(), w, http.StatusOK, h.roots.Roots())
}

func (h *StateHandler) handleRevocationsLatest(w http.ResponseWriter, r *http.Request) {
	list, err := h.revocations.Latest(r.Context())
	h.writeList(w, r, list, err)
}

func (h *StateHandler) handleRevocationsVersion(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.ParseUint(chi.URLParam(r, "version"), 10, 64)
	if err != nil {
		httputil.WriteError(r.Context(), w, dErrors.New(dErrors.CodeInvalidInput, "version must be a non-negative integer"))
		return
	}
	list, err := h.revocations.Version(r.Context(), version)
	h.writeList(w, r, list, err)
}

// handleRevocationsAt serves GET /revocations?at=<RFC3339>, the list in force
// at that instant.
func (h *StateHandler) handleRevocationsAt(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("at")
	if raw == "" {
		httputil.WriteError(r.Context(), w, dErrors.New(dErrors.CodeInvalidInput, "at is required"))
		return
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		httputil.WriteError(r.Context(), w, dErrors.New(dErrors.CodeInvalidInput, "at must be RFC3339"))
		return
	}
	list, err := h.revocations.At(r.Context(), at)
	h.writeList(w, r, list, err)
}

func (h *StateHandler) writeList(w http.ResponseWriter, r *http.Request, list *revocation.List, err error) {
	ctx := r.Context()
	var untrusted *revocation.UntrustedError
	switch {
	case err == nil:
		httputil.WriteJSON(ctx, w, http.StatusOK, list)
	case errors.Is(err, sentinel.ErrNotFound):
		httputil.WriteError(ctx, w, dErrors.New(dErrors.CodeNotFound, "revocation list not found"))
	case errors.As(err, &untrusted):
		h.logger.ErrorContext(ctx, "stored revocation list failed verification",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(ctx, w, err)
	default:
		h.logger.ErrorContext(ctx, "failed to load revocation list",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(ctx, w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load revocation list"))
	}
}

type verifyCredentialRequest struct {
	Credential *credential.VerifiableCredential `json:"credential"`
}

func (r *verifyCredentialRequest) Validate() error {
	if r.Credential == nil {
		return dErrors.New(dErrors.CodeValidation, "credential is required")
	}
	return nil
}

// handleCredentialVerify re-evaluates a credential on every call; the result
// is never cached.
func (h *StateHandler) handleCredentialVerify(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndPrepare[verifyCredentialRequest](w, r, h.logger)
	if !ok {
		return
	}
	httputil.WriteJSON(r.Context(), w, http.StatusOK, h.credentials.Verify(r.Context(), req.Credential))
}
