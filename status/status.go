// Package status defines the shared row lifecycle enum.
//
// Rows are never physically removed. Deletion flips the status to Delete and
// every list, count, and lookup query must filter on Enable. Store backends
// route that filter through a single helper so it cannot be forgotten.
package status

// Status is the lifecycle state of a stored row.
type Status string

const (
	// Enable marks a live row.
	Enable Status = "enable"

	// Delete marks a soft-deleted row. The row stays in the store for audit.
	Delete Status = "delete"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	return s == Enable || s == Delete
}

// Enabled reports whether the row is live.
func (s Status) Enabled() bool { return s == Enable }
