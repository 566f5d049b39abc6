package domain

import (
	"errors"
	"fmt"
)

// Common errors returned by the API clients.
var (
	ErrLoginFailed         = errors.New("login failed")
	ErrFlowSearchEmpty     = errors.New("flow not found")
	ErrChangeRequestNotFound = errors.New("change request not found")
	ErrUnresolvedFlow      = errors.New("flow is not resolved")
)

// APIError represents a failed call to one of the AlgoSec services.
// The decoded response body is kept for callers that need to inspect
// service-specific error payloads.
type APIError struct {
	StatusCode int
	Body       any
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("algosec api error: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("algosec api error: %s", e.Message)
}

// UnrecognizedServiceStringError is returned when a string could not be
// parsed as a protocol/port service literal.
type UnrecognizedServiceStringError struct {
	Raw string
}

// Error implements the error interface.
func (e *UnrecognizedServiceStringError) Error() string {
	return fmt.Sprintf("unrecognized service string: %q", e.Raw)
}

// UnrecognizedAllowanceStateError is returned when a device allowance state
// reported by Firewall Analyzer could not be matched to a known state.
type UnrecognizedAllowanceStateError struct {
	State string
}

// Error implements the error interface.
func (e *UnrecognizedAllowanceStateError) Error() string {
	return fmt.Sprintf("unrecognized device allowance state: %q", e.State)
}
