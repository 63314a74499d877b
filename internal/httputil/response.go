// Package httputil holds the JSON envelope, request decoding and outbound
// HTTP helpers shared by the API and the notification senders.
package httputil

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/R3E-Network/sentinel/internal/errors"
)

// MaxJSONBody bounds JSON request bodies.
const MaxJSONBody = 1 << 20

// Envelope is the response shape of every API endpoint.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
	Errors  []string    `json:"errors"`
}

// Empty renders as {}.
type Empty struct{}

// WriteJSON writes an arbitrary JSON body.
func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

// Success writes a successful envelope.
func Success(w http.ResponseWriter, status int, data interface{}, message string) {
	if data == nil {
		data = Empty{}
	}
	WriteJSON(w, status, Envelope{Success: true, Data: data, Message: message, Errors: []string{}})
}

// Failure writes an error envelope carrying data (some endpoints return
// partial data alongside the failure).
func Failure(w http.ResponseWriter, status int, data interface{}, message string, errs ...string) {
	if data == nil {
		data = Empty{}
	}
	if errs == nil {
		errs = []string{}
	}
	WriteJSON(w, status, Envelope{Success: false, Data: data, Message: message, Errors: errs})
}

// WriteError renders err. Non-service errors become 500s. Error data, when
// present, is rendered as the envelope data.
func WriteError(w http.ResponseWriter, err error) {
	se := apperrors.GetServiceError(err)
	if se == nil {
		se = apperrors.Internal("", err)
	}
	if se.Code == apperrors.CodeRateLimit {
		w.Header().Set("Retry-After", "1")
	}
	Failure(w, se.HTTPStatus, se.Data, se.Message, se.Errors...)
}

// WriteErrorResponse renders a bare status/code/message triple.
func WriteErrorResponse(w http.ResponseWriter, _ *http.Request, status int, code, message string, details map[string]interface{}) {
	se := apperrors.New(status, apperrors.ErrorCode(code), message)
	se.Details = details
	WriteError(w, se)
}

// Unauthorized writes a 401 envelope.
func Unauthorized(w http.ResponseWriter, detail string) {
	WriteError(w, apperrors.Unauthorized(detail))
}

// DecodeJSON decodes a bounded JSON body into dst. Unknown fields are ignored
// to tolerate read-only fields echoed back by clients.
func DecodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return apperrors.BadRequest("Validation error.", "Request body is required.")
	}
	body, truncated, err := ReadAllWithLimit(r.Body, MaxJSONBody)
	if err != nil {
		return apperrors.BadRequest("Validation error.", "Could not read request body.")
	}
	if truncated {
		return apperrors.BadRequest("Validation error.", "Request body too large.")
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if stderrors.As(err, &typeErr) && typeErr.Field != "" {
			return apperrors.Validation(apperrors.Field(typeErr.Field, fmt.Sprintf("expected %s.", typeErr.Type)))
		}
		return apperrors.BadRequest("JSON parse error.", err.Error())
	}
	return nil
}

// ReadAllWithLimit reads at most limit bytes and reports truncation.
func ReadAllWithLimit(r io.Reader, limit int64) ([]byte, bool, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) > limit {
		return data[:limit], true, nil
	}
	return data, false, nil
}

// ReadAllStrict reads at most limit bytes and fails beyond it.
func ReadAllStrict(r io.Reader, limit int64) ([]byte, error) {
	data, truncated, err := ReadAllWithLimit(r, limit)
	if err != nil {
		return nil, err
	}
	if truncated {
		return nil, fmt.Errorf("body exceeds %d bytes", limit)
	}
	return data, nil
}
