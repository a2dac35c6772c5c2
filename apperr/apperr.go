// Package apperr classifies failures so callers can tell expected business
// outcomes (duplicate stake, period not ended, already claimed) apart from
// real faults (missing signing key, unreachable store).
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Kind groups errors by how a caller should react to them.
type Kind int

const (
	KindInfrastructure Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindPrecondition
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindPrecondition:
		return "precondition"
	default:
		return "infrastructure"
	}
}

// Error is a classified error. Two Errors match under errors.Is when their
// codes are equal, so a detailed error built from a sentinel still matches it.
type Error struct {
	Kind      Kind
	Code      string
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func newSentinel(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Validation errors.
var (
	ErrInvalidInput         = newSentinel(KindValidation, "invalid_input", "invalid input")
	ErrInvalidWallet        = newSentinel(KindValidation, "invalid_wallet_address", "invalid wallet address")
	ErrInvalidAmountFormat  = newSentinel(KindValidation, "invalid_amount_format", "amount must be an integer string in atomic units")
	ErrInvalidHabitsRequire = newSentinel(KindValidation, "invalid_habits_required", "habits_required must be between 1 and 50")
	ErrInvalidPeriod        = newSentinel(KindValidation, "invalid_period", "invalid period identifier")
	ErrInvalidHourRange     = newSentinel(KindValidation, "invalid_hour_range", "invalid hour range")
	ErrTaskIncomplete       = newSentinel(KindValidation, "task_incomplete", "task is not completed")
)

// Conflict errors.
var (
	ErrDuplicateActiveStake = newSentinel(KindConflict, "duplicate_active_stake", "user already has an active stake")
	ErrDuplicateTaskClaim   = newSentinel(KindConflict, "duplicate_task_claim", "task reward already claimed")
	ErrAlreadySettled       = newSentinel(KindConflict, "already_settled", "commitment period already settled")
	ErrDuplicate            = newSentinel(KindConflict, "duplicate", "record already exists")
)

// Not-found errors.
var (
	ErrNotFound      = newSentinel(KindNotFound, "not_found", "not found")
	ErrNoActiveStake = newSentinel(KindNotFound, "no_active_stake", "no active stake found")
	ErrTaskNotFound  = newSentinel(KindNotFound, "task_not_found", "task not found")
	ErrClaimNotFound = newSentinel(KindNotFound, "claim_not_found", "claim not found")
)

// Precondition errors.
var ErrPeriodNotEnded = newSentinel(KindPrecondition, "period_not_ended", "staking period has not ended yet")

// Infrastructure errors.
var (
	ErrStoreUnavailable    = &Error{Kind: KindInfrastructure, Code: "store_unavailable", Message: "store unavailable", Retryable: true}
	ErrMissingSigningKey   = newSentinel(KindInfrastructure, "missing_signing_key", "signing key is not configured")
	ErrSigningFailed       = newSentinel(KindInfrastructure, "signing_failed", "signing failed")
	ErrEscrowNotConfigured = newSentinel(KindInfrastructure, "escrow_not_configured", "escrow contract address is not configured")
)

// Wrap returns a copy of sentinel carrying err as its cause.
func Wrap(sentinel *Error, err error) *Error {
	out := *sentinel
	out.Err = err
	return &out
}

// Newf returns a copy of sentinel with a more specific message.
func Newf(sentinel *Error, format string, args ...any) *Error {
	out := *sentinel
	out.Message = fmt.Sprintf(format, args...)
	return &out
}

// Unavailable marks err as a retryable store failure.
func Unavailable(err error) *Error {
	return Wrap(ErrStoreUnavailable, err)
}

// PeriodNotEndedError reports how long the caller has to wait before a claim
// can be generated.
type PeriodNotEndedError struct {
	Remaining time.Duration
}

func (e *PeriodNotEndedError) Error() string {
	remaining := e.Remaining.Round(time.Minute)
	days := int(remaining / (24 * time.Hour))
	hours := int((remaining % (24 * time.Hour)) / time.Hour)
	return fmt.Sprintf("staking period has not ended yet: %d days and %d hours remaining", days, hours)
}

func (e *PeriodNotEndedError) Is(target error) bool {
	return target == ErrPeriodNotEnded
}

// KindOf classifies err. Unclassified errors are treated as infrastructure faults.
func KindOf(err error) Kind {
	var pne *PeriodNotEndedError
	if errors.As(err, &pne) {
		return KindPrecondition
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}

// CodeOf returns the stable code for err, or "internal" when unclassified.
func CodeOf(err error) string {
	var pne *PeriodNotEndedError
	if errors.As(err, &pne) {
		return ErrPeriodNotEnded.Code
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

// IsRetryable reports whether the operation may succeed if simply retried.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}

// IsExpected reports whether err is a business-rule outcome rather than a fault.
func IsExpected(err error) bool {
	return err != nil && KindOf(err) != KindInfrastructure
}
