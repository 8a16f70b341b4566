package domain

import "time"

// FailureClass decides whether a failure consumes a retry or terminates the job.
type FailureClass string

const (
	FailureTransient FailureClass = "transient"
	FailurePermanent FailureClass = "permanent"
)

// FailureCode is the machine-readable reason shown to clients.
type FailureCode string

const (
	FailureUpstreamTimeout     FailureCode = "UPSTREAM_TIMEOUT"
	FailureUpstreamUnavailable FailureCode = "UPSTREAM_UNAVAILABLE"
	FailureNetwork             FailureCode = "NETWORK_ERROR"
	FailureInvalidInput        FailureCode = "INVALID_INPUT"
	FailureUpstreamRejected    FailureCode = "UPSTREAM_REJECTED"
	FailureStorage             FailureCode = "STORAGE_ERROR"
	FailureInsufficientBalance FailureCode = "INSUFFICIENT_BALANCE"
	FailureLedgerRejected      FailureCode = "LEDGER_REJECTED"
	FailureCancelled           FailureCode = "CANCELLED"
	FailureLeaseExpired        FailureCode = "LEASE_EXPIRED"
)

// Failure describes a failed attempt.
type Failure struct {
	Class  FailureClass
	Code   FailureCode
	Reason string
}

// Transient builds a retryable failure.
func Transient(code FailureCode, reason string) Failure {
	return Failure{Class: FailureTransient, Code: code, Reason: reason}
}

// Permanent builds a terminal failure.
func Permanent(code FailureCode, reason string) Failure {
	return Failure{Class: FailurePermanent, Code: code, Reason: reason}
}

// BackoffPolicy computes the delay before a requeued job becomes eligible:
// Base * 2^(retryCount-1), capped at Max.
type BackoffPolicy struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait after the given retry count.
func (p BackoffPolicy) Delay(retryCount int) time.Duration {
	if p.Base <= 0 || retryCount <= 0 {
		return 0
	}
	d := p.Base
	for i := 1; i < retryCount; i++ {
		d *= 2
		if p.Max > 0 && d >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}
