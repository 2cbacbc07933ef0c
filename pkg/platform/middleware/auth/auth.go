// Package auth authenticates carriers and other resolution principals with
// HS256 bearer tokens whose subject is the principal identifier (usually a DID).
package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "pidgate/pkg/domain-errors"
	"pidgate/pkg/platform/httputil"
	request "pidgate/pkg/platform/middleware/request"
	"pidgate/pkg/requestcontext"
)

// Validator turns a raw bearer token into a principal.
type Validator interface {
	Validate(token string) (string, error)
}

// Claims are the bearer token claims; Subject is the principal.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenAuthority issues and validates principal tokens.
type TokenAuthority struct {
	secret []byte
	issuer string
}

func NewTokenAuthority(secret []byte, issuer string) *TokenAuthority {
	return &TokenAuthority{secret: secret, issuer: issuer}
}

// Issue mints a token for principal valid for ttl from now.
func (a *TokenAuthority) Issue(principal string, ttl time.Duration, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(a.secret)
}

// Validate checks signature, issuer and expiry and returns the subject.
func (a *TokenAuthority) Validate(tokenString string) (string, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims.Subject, nil
}

// RequirePrincipal rejects requests without a valid bearer token and stores
// the principal in the request context.
func RequirePrincipal(validator Validator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", request.GetRequestID(ctx),
				)
				httputil.WriteError(ctx, w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}
			principal, err := validator.Validate(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"request_id", request.GetRequestID(ctx),
					"error", err,
				)
				httputil.WriteError(ctx, w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithPrincipal(ctx, principal)))
		})
	}
}
