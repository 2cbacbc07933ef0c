// Package httputil writes the shared response envelope used by every endpoint:
//
//	{"success": true, "data": {...}, "metadata": {"timestamp": "...", "requestId": "..."}}
//	{"success": false, "error": {"code": "...", "message": "..."}, "metadata": {...}}
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	dErrors "pidgate/pkg/domain-errors"
	"pidgate/pkg/requestcontext"
)

const maxBodyBytes = 1 << 20

// Envelope is the wire shape of every response.
type Envelope struct {
	Success  bool       `json:"success"`
	Data     any        `json:"data,omitempty"`
	Error    *ErrorBody `json:"error,omitempty"`
	Metadata Metadata   `json:"metadata"`
}

// ErrorBody carries the machine-readable code and a client-safe message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Metadata is attached to both success and error responses.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"requestId"`
}

// Validatable is implemented by request DTOs that normalize and check themselves.
type Validatable interface {
	Validate() error
}

func metadata(ctx context.Context) Metadata {
	return Metadata{
		Timestamp: requestcontext.Now(ctx).UTC(),
		RequestID: requestcontext.RequestID(ctx),
	}
}

// WriteJSON writes a success envelope.
func WriteJSON(ctx context.Context, w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{
		Success:  true,
		Data:     data,
		Metadata: metadata(ctx),
	})
}

// WriteError writes an error envelope. Internal errors never leak their message.
func WriteError(ctx context.Context, w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := &ErrorBody{Code: string(code)}
	if code != dErrors.CodeInternal {
		body.Message = clientMessage(err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(dErrors.HTTPStatus(code))
	_ = json.NewEncoder(w).Encode(Envelope{
		Success:  false,
		Error:    body,
		Metadata: metadata(ctx),
	})
}

// clientMessage prefers the outermost coded message so wrapped causes stay server-side.
func clientMessage(err error) string {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

// DecodeAndPrepare decodes a JSON body into T and runs its Validate method.
// On failure the error envelope has already been written and ok is false.
func DecodeAndPrepare[T any, PT interface {
	*T
	Validatable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*T, bool) {
	ctx := r.Context()
	req := new(T)
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(req); err != nil {
		logger.WarnContext(ctx, "invalid request body",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		WriteError(ctx, w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON body"))
		return nil, false
	}
	if err := PT(req).Validate(); err != nil {
		logger.WarnContext(ctx, "request validation failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		WriteError(ctx, w, err)
		return nil, false
	}
	return req, true
}
