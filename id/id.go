// Package id defines TypeID-based identity types for all access entities.
//
// Every entity uses a single ID struct with a prefix that identifies the
// entity type. IDs are K-sortable (UUIDv7-based), globally unique, and
// URL-safe in the format "prefix_suffix".
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for all access entity types.
const (
	PrefixResource  Prefix = "res"
	PrefixOperation Prefix = "op"
	PrefixResLink   Prefix = "oplink"
	PrefixTag       Prefix = "tag"
	PrefixRole      Prefix = "role"
	PrefixPerm      Prefix = "perm"
	PrefixBinding   Prefix = "bind"
	PrefixChange    Prefix = "chg"
)

// ID is the primary identifier type for all access entities.
// It wraps a TypeID providing a prefix-qualified, globally unique,
// sortable, URL-safe identifier in the format "prefix_suffix".
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string (e.g., "role_01h2xcejqtf2nbrexx3vqjhp41")
// into an ID. Returns an error if the string is not valid.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses a TypeID string and validates that its prefix
// matches the expected value.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}

	return parsed, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded ID values.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// ──────────────────────────────────────────────────
// Per-entity aliases
// ──────────────────────────────────────────────────

// ResourceID identifies resources (prefix: "res").
type ResourceID = ID

// OperationID identifies operations (prefix: "op").
type OperationID = ID

// ResLinkID identifies operation-resource links (prefix: "oplink").
type ResLinkID = ID

// TagID identifies tags (prefix: "tag").
type TagID = ID

// RoleID identifies roles (prefix: "role").
type RoleID = ID

// PermID identifies permission grants (prefix: "perm").
type PermID = ID

// BindingID identifies role-user bindings (prefix: "bind").
type BindingID = ID

// ChangeID identifies change log entries (prefix: "chg").
type ChangeID = ID

// ──────────────────────────────────────────────────
// Convenience constructors
// ──────────────────────────────────────────────────

// NewResourceID generates a new unique resource ID.
func NewResourceID() ID { return New(PrefixResource) }

// NewOperationID generates a new unique operation ID.
func NewOperationID() ID { return New(PrefixOperation) }

// NewResLinkID generates a new unique operation-resource link ID.
func NewResLinkID() ID { return New(PrefixResLink) }

// NewTagID generates a new unique tag ID.
func NewTagID() ID { return New(PrefixTag) }

// NewRoleID generates a new unique role ID.
func NewRoleID() ID { return New(PrefixRole) }

// NewPermID generates a new unique permission grant ID.
func NewPermID() ID { return New(PrefixPerm) }

// NewBindingID generates a new unique role-user binding ID.
func NewBindingID() ID { return New(PrefixBinding) }

// NewChangeID generates a new unique change log ID.
func NewChangeID() ID { return New(PrefixChange) }

// ──────────────────────────────────────────────────
// Convenience parsers
// ──────────────────────────────────────────────────

// ParseResourceID parses a string and validates the "res" prefix.
func ParseResourceID(s string) (ID, error) { return ParseWithPrefix(s, PrefixResource) }

// ParseOperationID parses a string and validates the "op" prefix.
func ParseOperationID(s string) (ID, error) { return ParseWithPrefix(s, PrefixOperation) }

// ParseResLinkID parses a string and validates the "oplink" prefix.
func ParseResLinkID(s string) (ID, error) { return ParseWithPrefix(s, PrefixResLink) }

// ParseTagID parses a string and validates the "tag" prefix.
func ParseTagID(s string) (ID, error) { return ParseWithPrefix(s, PrefixTag) }

// ParseRoleID parses a string and validates the "role" prefix.
func ParseRoleID(s string) (ID, error) { return ParseWithPrefix(s, PrefixRole) }

// ParsePermID parses a string and validates the "perm" prefix.
func ParsePermID(s string) (ID, error) { return ParseWithPrefix(s, PrefixPerm) }

// ParseBindingID parses a string and validates the "bind" prefix.
func ParseBindingID(s string) (ID, error) { return ParseWithPrefix(s, PrefixBinding) }

// ParseChangeID parses a string and validates the "chg" prefix.
func ParseChangeID(s string) (ID, error) { return ParseWithPrefix(s, PrefixChange) }

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns the full TypeID string representation (prefix_suffix).
// Returns an empty string for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}

// Value implements driver.Valuer for database storage.
// Returns nil for the Nil ID so that optional foreign key columns store NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}

	return i.inner.String(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (i *ID) Scan(src any) error {
	if src == nil {
		*i = Nil

		return nil
	}

	switch v := src.(type) {
	case string:
		if v == "" {
			*i = Nil

			return nil
		}

		return i.UnmarshalText([]byte(v))
	case []byte:
		if len(v) == 0 {
			*i = Nil

			return nil
		}

		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
