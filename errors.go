package access

import (
	"errors"
	"fmt"
)

var (
	// ErrDenied is the sentinel wrapped by every DenyError.
	ErrDenied = errors.New("access: denied")

	// ErrNotFound is returned when a lookup finds no Enabled row.
	ErrNotFound = errors.New("access: not found")

	// ErrConflict is the sentinel wrapped by every ConflictError.
	ErrConflict = errors.New("access: already exists")

	// ErrValidation is the sentinel wrapped by every ValidationError.
	ErrValidation = errors.New("access: invalid input")

	// ErrImmutableRange is returned when an edit tries to change a role's
	// user or res range. Grant breadth changes go through delete + recreate.
	ErrImmutableRange = errors.New("access: role range is immutable")

	// ErrRelationCycle is returned when relation dependency declarations
	// form a cycle.
	ErrRelationCycle = errors.New("access: relation dependency cycle")

	// ErrDependDepth is returned when relation dependency resolution
	// exceeds the configured depth.
	ErrDependDepth = errors.New("access: relation dependency depth exceeded")
)

// ValidationError reports a field that failed validation before any store
// access.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("access: field %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConflictError reports that an identity already exists, carrying the
// existing row's identifying fields for a human-readable message.
type ConflictError struct {
	Kind string // "resource", "operation", "role"
	Name string
	Key  string
}

func (e *ConflictError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("access: %s %q (key %q) already exists", e.Kind, e.Name, e.Key)
	}
	return fmt.Sprintf("access: %s %q already exists", e.Kind, e.Name)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// DenyError is the checker's negative result, distinct from lookup and store
// failures. It carries the specific requirement or relation dependency that
// failed so the caller sees exactly which prerequisite was unmet.
type DenyError struct {
	Requirement *Requirement // the requirement that failed, if any
	Relation    string       // the relation (or dependency) being evaluated
	Reason      string
}

func (e *DenyError) Error() string {
	switch {
	case e.Relation != "" && e.Requirement != nil:
		return fmt.Sprintf("access: denied in %s for %s/%s: %s",
			e.Relation, e.Requirement.ResType, e.Requirement.ResData, e.Reason)
	case e.Requirement != nil:
		return fmt.Sprintf("access: denied for %s/%s: %s",
			e.Requirement.ResType, e.Requirement.ResData, e.Reason)
	case e.Relation != "":
		return fmt.Sprintf("access: denied in %s: %s", e.Relation, e.Reason)
	default:
		return fmt.Sprintf("access: denied: %s", e.Reason)
	}
}

func (e *DenyError) Unwrap() error { return ErrDenied }
