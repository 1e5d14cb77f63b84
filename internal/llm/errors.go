package llm

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// APIError is a generation failure tied to an upstream status code. It
// carries the user-facing category string shown in the conversation.
type APIError struct {
	Status int
	Err    error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("generation request failed with status %d: %v", e.Status, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// UserMessage maps the status onto the error categories surfaced to the user:
// rate-limited, authorization failure, or generic connectivity failure.
func (e *APIError) UserMessage() string {
	switch e.Status {
	case http.StatusTooManyRequests:
		return "The assistant is handling too many requests right now. Please wait a moment and try again."
	case http.StatusUnauthorized, http.StatusForbidden:
		return "The generation service rejected the configured credentials. Please check the API key."
	default:
		return "Failed to get an answer. Please try again."
	}
}

// classify attaches an HTTP status to endpoint errors. The SDK surfaces
// failures either as googleapi errors or as gRPC status codes depending on
// the transport.
func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &APIError{Status: gerr.Code, Err: err}
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted:
			return &APIError{Status: http.StatusTooManyRequests, Err: err}
		case codes.Unauthenticated:
			return &APIError{Status: http.StatusUnauthorized, Err: err}
		case codes.PermissionDenied:
			return &APIError{Status: http.StatusForbidden, Err: err}
		case codes.Unavailable:
			return &APIError{Status: http.StatusServiceUnavailable, Err: err}
		}
	}
	return err
}
