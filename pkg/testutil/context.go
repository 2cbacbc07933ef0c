package testutil

import (
	"net/http"

	"pidgate/pkg/requestcontext"
)

// WithPrincipal stores principal on the request the way RequirePrincipal
// does after validating a bearer token.
func WithPrincipal(req *http.Request, principal string) *http.Request {
	return req.WithContext(requestcontext.WithPrincipal(req.Context(), principal))
}

// WithBearer sets the Authorization header.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}
