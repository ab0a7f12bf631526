package advance

import (
	"errors"
	"fmt"
)

// Code is the error taxonomy shared with API callers.
type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeNotEligible       Code = "NOT_ELIGIBLE"
	CodeAmountTooSmall    Code = "AMOUNT_TOO_SMALL"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
)

var (
	ErrNotFound       = errors.New("advance request not found")
	ErrWorkerNotFound = errors.New("worker not found")

	// Targets for errors.Is against *RuleError and *TransitionError values.
	ErrValidation        = &RuleError{Code: CodeValidation}
	ErrNotEligible       = &RuleError{Code: CodeNotEligible}
	ErrAmountTooSmall    = &RuleError{Code: CodeAmountTooSmall}
	ErrInvalidTransition = &TransitionError{}
)

// RuleError is an expected business outcome: the caller corrects the input
// or tells the user. It is never a fault.
type RuleError struct {
	Code    Code
	Reason  Reason
	Message string
}

func (e *RuleError) Error() string {
	if e.Reason != ReasonNone {
		return fmt.Sprintf("%s (%s): %s", e.Code, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RuleError) Is(target error) bool {
	t, ok := target.(*RuleError)
	return ok && t.Code == e.Code
}

// TransitionError is an integration fault: the caller asked for a move the
// state machine does not allow.
type TransitionError struct {
	ID   string
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: request %s cannot move from %s to %s", CodeInvalidTransition, e.ID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	_, ok := target.(*TransitionError)
	return ok
}

// CodeOf extracts the taxonomy code from err, or "" for faults outside it.
func CodeOf(err error) Code {
	var re *RuleError
	if errors.As(err, &re) {
		return re.Code
	}
	var te *TransitionError
	if errors.As(err, &te) {
		return CodeInvalidTransition
	}
	return ""
}

func validationError(reason Reason, format string, args ...any) *RuleError {
	return &RuleError{Code: CodeValidation, Reason: reason, Message: fmt.Sprintf(format, args...)}
}
