package adaptfn

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Rejection is the error an extractor returns when the request does not
// satisfy it. It converts to a JSON error response.
type Rejection struct {
	// Status is the HTTP status code of the response.
	Status int
	// Code is a machine-readable reason, e.g. "missing_header".
	Code string
	// Message is a human-readable description.
	Message string
	// Cause is the underlying error, if any. It is never sent to the client.
	Cause error
}

// Reject creates a new Rejection.
func Reject(status int, code, format string, args ...any) *Rejection {
	return &Rejection{Status: status, Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause sets the underlying cause and returns the receiver.
func (r *Rejection) WithCause(cause error) *Rejection {
	r.Cause = cause
	return r
}

func (r *Rejection) Error() string {
	if r.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", r.Code, r.Message, r.Cause)
	}
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

// Unwrap returns the underlying cause.
func (r *Rejection) Unwrap() error { return r.Cause }

type rejectionBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// IntoResponse renders the rejection as {"error":{"code":...,"message":...}}.
func (r *Rejection) IntoResponse() *Response {
	if r == nil {
		return nil
	}
	var body rejectionBody
	body.Error.Code = r.Code
	body.Error.Message = r.Message
	data, err := json.Marshal(body)
	if err != nil {
		data = []byte(r.Message)
	}
	status := r.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	resp := NewResponse(status, data)
	resp.Header.Set("Content-Type", "application/json")
	return resp
}

// RejectionResponse converts an extractor error into a response. Errors that
// know how to render themselves are used as is, anything else is a 500.
func RejectionResponse(err error) *Response {
	var rej *Rejection
	if errors.As(err, &rej) {
		return ToResponse(rej)
	}
	var ir IntoResponse
	if errors.As(err, &ir) {
		return ToResponse(ir)
	}
	return ToResponse(Reject(http.StatusInternalServerError, "internal_error", "Internal server error").WithCause(err))
}
