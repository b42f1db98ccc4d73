package domain

import (
	"errors"
	"fmt"
)

// Common domain errors raised while constructing or configuring the
// selection engines. Hot-path operations never return these; they report
// unknown identifiers and empty registries through ordinary return values.
var (
	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrDuplicateID indicates that an identifier is already registered.
	ErrDuplicateID = errors.New("duplicate identifier")

	// ErrUnknownID indicates that an identifier is not registered.
	ErrUnknownID = errors.New("unknown identifier")

	// ErrUnknownObjective indicates an unrecognized optimization objective tag.
	ErrUnknownObjective = errors.New("unknown optimization objective")

	// ErrUnknownAlgorithm indicates an unrecognized optimization algorithm tag.
	ErrUnknownAlgorithm = errors.New("unknown optimization algorithm")

	// ErrUnknownCostModel indicates an unrecognized cost model tag.
	ErrUnknownCostModel = errors.New("unknown cost model")

	// ErrUnknownRewardKind indicates an unrecognized reward kind tag.
	ErrUnknownRewardKind = errors.New("unknown reward kind")

	// ErrUnknownBoundFormula indicates an unrecognized confidence bound formula.
	ErrUnknownBoundFormula = errors.New("unknown bound formula")

	// ErrUnknownStrategy indicates an unrecognized bandit strategy tag.
	ErrUnknownStrategy = errors.New("unknown bandit strategy")
)

// TagError reports a tag value that failed to parse.
// It wraps one of the ErrUnknown* sentinels so callers can match with errors.Is.
type TagError struct {
	// Field names the configuration field holding the tag.
	Field string

	// Value is the rejected tag value.
	Value string

	// Err is the underlying sentinel error.
	Err error
}

// Error implements the error interface for TagError.
func (e *TagError) Error() string {
	return fmt.Sprintf("tag error: field=%s, value=%q, err=%v", e.Field, e.Value, e.Err)
}

// Unwrap returns the underlying error, supporting Go 1.13+ error unwrapping.
func (e *TagError) Unwrap() error { return e.Err }

// NewTagError creates a new TagError with the given details.
func NewTagError(field, value string, err error) *TagError {
	return &TagError{
		Field: field,
		Value: value,
		Err:   err,
	}
}

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// AddErrorf adds a formatted error message to the validation error.
func (e *ValidationError) AddErrorf(format string, args ...any) {
	e.Errors = append(e.Errors, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// Unwrap lets errors.Is match ErrInvalidConfiguration on any ValidationError.
func (e *ValidationError) Unwrap() error { return ErrInvalidConfiguration }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
