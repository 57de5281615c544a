package domain

import (
	"errors"
	"fmt"
)

// ErrValidation is matched by every ValidationError via errors.Is.
var ErrValidation = errors.New("validation failed")

// ErrRuleViolation is matched by every RuleViolationError via errors.Is.
var ErrRuleViolation = errors.New("domain rule violated")

// ValidationError reports malformed input rejected by an aggregate.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// RuleViolationError reports a well-formed request that breaks a domain rule,
// for example an illegal status transition.
type RuleViolationError struct {
	Rule string
}

func (e *RuleViolationError) Error() string {
	return e.Rule
}

func (e *RuleViolationError) Is(target error) bool {
	return target == ErrRuleViolation
}

// AlreadyInStateError is returned when a transition targets the current status.
type AlreadyInStateError struct {
	Status Status
}

func (e *AlreadyInStateError) Error() string {
	return fmt.Sprintf("account is already %s", e.Status)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func violation(format string, args ...any) error {
	return &RuleViolationError{Rule: fmt.Sprintf(format, args...)}
}
