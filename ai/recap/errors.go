package recap

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies why a run stopped.
type Kind string

const (
	KindMissingCredential   Kind = "MissingCredential"
	KindNoInput             Kind = "NoInput"
	KindTransportError      Kind = "TransportError"
	KindAPIError            Kind = "ApiError"
	KindMalformedResponse   Kind = "MalformedResponse"
	KindSchemaMismatch      Kind = "SchemaMismatch"
	KindPartialMergeFailure Kind = "PartialMergeFailure"
	KindAlreadyInProgress   Kind = "AlreadyInProgress"
)

// Error is the terminal failure of a run.
type Error struct {
	Kind    Kind
	Message string
	Err     error

	// Merged and Failed are set for KindPartialMergeFailure.
	Merged []string
	Failed string
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or "" when err is not a run error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func partialMergeError(merged []string, failed string, err error) *Error {
	msg := fmt.Sprintf("failed to merge %q", failed)
	if len(merged) > 0 {
		msg += fmt.Sprintf(" after merging %s", strings.Join(merged, ", "))
	}
	return &Error{
		Kind:    KindPartialMergeFailure,
		Message: msg,
		Err:     err,
		Merged:  append([]string(nil), merged...),
		Failed:  failed,
	}
}
