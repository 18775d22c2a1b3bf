package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for the record layer.
var (
	// ErrContractViolation is wrapped by every ContractViolationError.
	ErrContractViolation = errors.New("model: contract violation")

	// ErrMissingIdentity is returned when fetch, destroy or a bulk load has no identity to address.
	ErrMissingIdentity = errors.New("model: record has no identity")

	// ErrDuplicateEntity is returned when an entity type name is registered twice.
	ErrDuplicateEntity = errors.New("model: entity type already registered")

	// ErrUnknownEntity is returned when a reference names an entity type that was never registered.
	ErrUnknownEntity = errors.New("model: unknown entity type")

	// ErrInvalidSchema is returned by Registry.Define for malformed schemas.
	ErrInvalidSchema = errors.New("model: invalid schema")

	// ErrNoStore is returned by persistence operations when the registry has no Store.
	ErrNoStore = errors.New("model: no store configured")
)

// ContractViolationError describes API misuse. It is panicked by operations
// with no error return and returned by Collection.Add.
type ContractViolationError struct {
	Op     string
	Reason string
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("model: %s: %s", e.Op, e.Reason)
}

func (e *ContractViolationError) Unwrap() error {
	return ErrContractViolation
}

// PreconditionError is returned when an operation needs an identity the record does not have.
// No Store call is made.
type PreconditionError struct {
	Op     string
	Entity string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("model: %s %s: record has no identity", e.Op, e.Entity)
}

func (e *PreconditionError) Unwrap() error {
	return ErrMissingIdentity
}

func violation(op, format string, args ...any) {
	panic(&ContractViolationError{Op: op, Reason: fmt.Sprintf(format, args...)})
}

// IsContractViolation reports whether err (or a recovered panic value) is a contract violation.
func IsContractViolation(v any) bool {
	err, ok := v.(error)
	return ok && errors.Is(err, ErrContractViolation)
}
