// Package types holds the JSON envelopes every order API response is wrapped in.
package types

// RequestIDHeader carries the request id set by the request id middleware.
const RequestIDHeader = "X-Request-Id"

// SuccessEnvelope wraps a successful payload as {"data": ...}.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public part of a failed request. Details carries field
// level validation problems only.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope wraps an APIError. RequestID echoes the request id header so
// a client report can be matched with the request.error log line.
type ErrorEnvelope struct {
	Error     APIError `json:"error"`
	RequestID string   `json:"requestId,omitempty"`
}

func NewErrorEnvelope(code, message, requestID string) ErrorEnvelope {
	return ErrorEnvelope{
		Error:     APIError{Code: code, Message: message},
		RequestID: requestID,
	}
}
