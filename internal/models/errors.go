package models

import (
	"errors"
	"fmt"
	"time"
)

// Common errors
var (
	ErrNotFound       = errors.New("challenge not found")
	ErrAlreadyJoined  = errors.New("wallet already joined this challenge")
	ErrChallengeEnded = errors.New("challenge has ended")
	ErrInvalidStake   = errors.New("stake amount must be a non-negative number")
	ErrExternalAuth   = errors.New("external authorization failed")
	ErrNotParticipant = errors.New("wallet is not participating in this challenge")
	ErrNotEnded       = errors.New("challenge has not ended yet")
	ErrValidation     = errors.New("validation failed")
)

// ValidationError reports an invalid request field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// RateLimitedError is returned when an upstream provider throttles requests
type RateLimitedError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limit exceeded, retry after %s", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limit exceeded", e.Provider)
}

// PartialFailureError reports a join whose on-chain part succeeded but whose
// stake record could not be persisted. Callers must reconcile using TxHash.
type PartialFailureError struct {
	ChallengeID int64
	TxHash      string
	Err         error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("on-chain join %s for challenge %d not recorded: %v", e.TxHash, e.ChallengeID, e.Err)
}

func (e *PartialFailureError) Unwrap() error {
	return e.Err
}

// ExternalAuthError wraps a failed wallet signature or OAuth exchange
type ExternalAuthError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ExternalAuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s auth failed (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s auth failed: %s", e.Provider, e.Message)
}

func (e *ExternalAuthError) Unwrap() error {
	return ErrExternalAuth
}
