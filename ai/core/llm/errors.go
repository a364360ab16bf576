package llm

import (
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// ErrMissingAPIKey is returned before any I/O when the service has no API key.
var ErrMissingAPIKey = errors.New("API key is required")

// APIError is an error response returned by the completion endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("OpenAI API Error: %d - %s", e.StatusCode, e.Message)
}

// TransportError is a failure to reach the endpoint or to read its reply.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// classifyError maps go-openai failures onto APIError or TransportError.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := string(reqErr.Body)
		if msg == "" && reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		if msg == "" {
			msg = reqErr.HTTPStatus
		}
		return &APIError{StatusCode: reqErr.HTTPStatusCode, Message: msg}
	}

	return &TransportError{Cause: err}
}
