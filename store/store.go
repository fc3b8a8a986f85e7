// Package store defines the aggregate persistence interface. Each subsystem
// (resource, operation, tag, role, binding, permission, changelog) defines
// its own store interface. The composite Store composes them all.
// Backends: Postgres, SQLite, and Memory.
package store

import (
	"context"
	"errors"

	"github.com/shanliu/lsys-access/binding"
	"github.com/shanliu/lsys-access/changelog"
	"github.com/shanliu/lsys-access/operation"
	"github.com/shanliu/lsys-access/permission"
	"github.com/shanliu/lsys-access/resource"
	"github.com/shanliu/lsys-access/role"
	"github.com/shanliu/lsys-access/tag"
)

// ErrNotFound is the shared sentinel every backend wraps when a lookup
// finds no matching row.
var ErrNotFound = errors.New("store: not found")

// Store is the aggregate persistence interface. A single backend
// (postgres, sqlite, memory) implements all subsystem stores, which is what
// lets cross-entity cascades run in one transaction.
type Store interface {
	resource.Store
	operation.Store
	tag.Store
	role.Store
	binding.Store
	permission.Store
	changelog.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
