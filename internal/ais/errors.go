package ais

import (
	"errors"
	"fmt"
)

// FailureKind classifies a failed provider call
type FailureKind string

const (
	KindTransport       FailureKind = "transport"
	KindUnauthorized    FailureKind = "unauthorized"
	KindRateLimited     FailureKind = "rate_limited"
	KindNotFound        FailureKind = "not_found"
	KindUnavailable     FailureKind = "unavailable"
	KindInvalidResponse FailureKind = "invalid_response"
)

// Sentinels for errors.Is; they match any ProviderError of the same kind.
var (
	ErrTransport       = &ProviderError{Kind: KindTransport}
	ErrUnauthorized    = &ProviderError{Kind: KindUnauthorized}
	ErrRateLimited     = &ProviderError{Kind: KindRateLimited}
	ErrNotFound        = &ProviderError{Kind: KindNotFound}
	ErrUnavailable     = &ProviderError{Kind: KindUnavailable}
	ErrInvalidResponse = &ProviderError{Kind: KindInvalidResponse}
)

// ProviderError is a classified failure of one provider call
type ProviderError struct {
	Kind       FailureKind
	StatusCode int
	MMSI       string
	Err        error

	// Aborted is set when the caller's context ended before the provider answered
	Aborted bool
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("ais provider %s", e.Kind)
	if e.MMSI != "" {
		msg += fmt.Sprintf(" for mmsi %s", e.MMSI)
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is matches on kind so callers can compare against the package sentinels
func (e *ProviderError) Is(target error) bool {
	t, ok := target.(*ProviderError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the failure kind carried by err, or "" if err is not a provider error
func KindOf(err error) FailureKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// aborted reports whether err was caused by the caller giving up
func aborted(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Aborted
}

// trips reports whether a failure counts against the circuit breaker.
// Answers from the provider about the request itself do not.
func trips(err error) bool {
	switch KindOf(err) {
	case KindTransport, KindRateLimited, KindUnavailable:
		return true
	case KindUnauthorized, KindNotFound, KindInvalidResponse:
		return false
	default:
		return err != nil
	}
}
