// Package render talks to the external garment rendering API.
package render

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"modelshoot/internal/domain"
)

// Request is one render of a garment onto an avatar or human model.
type Request struct {
	JobID     string
	Kind      domain.JobKind
	InputRef  string
	TargetRef string
}

// Result carries the rendered image.
type Result struct {
	URL    string
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// Renderer is the contract implemented by render backends.
type Renderer interface {
	Render(ctx context.Context, req Request) (*Result, error)
}

// ErrorClass groups upstream failures by retry behaviour.
type ErrorClass string

const (
	ClassTimeout     ErrorClass = "timeout"
	ClassUnavailable ErrorClass = "unavailable"
	ClassNetwork     ErrorClass = "network"
	ClassInvalid     ErrorClass = "invalid_input"
	ClassRejected    ErrorClass = "rejected"
)

// Error is a classified upstream failure.
type Error struct {
	Class      ErrorClass
	Code       string
	Message    string
	StatusCode int
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("render: %s (status %d, %s)", e.Message, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("render: %s (%s)", e.Message, e.Code)
}

// Retryable reports whether another attempt may succeed.
func (e *Error) Retryable() bool {
	switch e.Class {
	case ClassTimeout, ClassUnavailable, ClassNetwork:
		return true
	}
	return false
}

// classForStatus maps an HTTP status to an error class.
func classForStatus(status int) ErrorClass {
	switch {
	case status == 408 || status == 504:
		return ClassTimeout
	case status == 429 || status >= 500:
		return ClassUnavailable
	case status == 400 || status == 404 || status == 413 || status == 415 || status == 422:
		return ClassInvalid
	default:
		return ClassRejected
	}
}

// Classify turns a render error into a job failure. Timeouts, 5xx and
// network errors are transient; validation and other 4xx are permanent.
// Unrecognized errors are treated as transient so the retry cap bounds them.
func Classify(err error) domain.Failure {
	if err == nil {
		return domain.Failure{}
	}
	reason := strings.TrimSpace(err.Error())
	var rerr *Error
	if errors.As(err, &rerr) {
		switch rerr.Class {
		case ClassTimeout:
			return domain.Transient(domain.FailureUpstreamTimeout, reason)
		case ClassUnavailable:
			return domain.Transient(domain.FailureUpstreamUnavailable, reason)
		case ClassNetwork:
			return domain.Transient(domain.FailureNetwork, reason)
		case ClassInvalid:
			return domain.Permanent(domain.FailureInvalidInput, reason)
		default:
			return domain.Permanent(domain.FailureUpstreamRejected, reason)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.Transient(domain.FailureUpstreamTimeout, reason)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return domain.Transient(domain.FailureUpstreamTimeout, reason)
		}
		return domain.Transient(domain.FailureNetwork, reason)
	}
	return domain.Transient(domain.FailureUpstreamUnavailable, reason)
}
