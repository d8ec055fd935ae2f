package embedding

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// FailureKind classifies an embedding failure for retry decisions.
type FailureKind int

const (
	// FailureInvalidInput means the input text cannot be embedded
	// (empty or whitespace-only). Never retried.
	FailureInvalidInput FailureKind = iota
	// FailureTransient means the provider was unreachable or overloaded.
	// Safe to retry with backoff.
	FailureTransient
	// FailureService means the provider rejected the request or returned
	// an unusable response. Treated as permanent for the affected item.
	FailureService
)

func (k FailureKind) String() string {
	switch k {
	case FailureInvalidInput:
		return "invalid_input"
	case FailureTransient:
		return "transient"
	case FailureService:
		return "service"
	default:
		return "unknown"
	}
}

// Error wraps a provider failure with its classification.
type Error struct {
	Kind FailureKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("embedding %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// errInvalidInput builds the error returned for empty or whitespace-only text.
func errInvalidInput(op string) error {
	return &Error{Kind: FailureInvalidInput, Op: op, Err: errors.New("input text is empty")}
}

// IsInvalidInput reports whether err represents an unembeddable input.
func IsInvalidInput(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == FailureInvalidInput
}

// IsTransient reports whether err is safe to retry with backoff.
func IsTransient(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == FailureTransient
}

// classifyTransportErr classifies low-level transport failures.
// Timeouts, refused connections and canceled contexts are all transient from
// the pipeline's point of view: the request never produced a provider verdict.
func classifyTransportErr(op string, err error) error {
	var alreadyClassified *Error
	if errors.As(err, &alreadyClassified) {
		return err
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.As(err, &netErr):
		return &Error{Kind: FailureTransient, Op: op, Err: err}
	default:
		return &Error{Kind: FailureService, Op: op, Err: err}
	}
}

// classifyStatus classifies an HTTP status from an embedding provider.
func classifyStatus(op string, status int, err error) error {
	switch {
	case status == 429 || status >= 500:
		return &Error{Kind: FailureTransient, Op: op, Err: err}
	default:
		return &Error{Kind: FailureService, Op: op, Err: err}
	}
}
