// Package tag defines free-form labels attached to resources and roles.
// Tags drive categorized search and filtered counting and are orthogonal
// to authorization.
package tag

import (
	"time"

	"github.com/shanliu/lsys-access/id"
	"github.com/shanliu/lsys-access/status"
)

// MaxNameLen is the maximum length of a tag name after trimming.
const MaxNameLen = 32

// Source identifies which entity kind a tag is attached to.
type Source string

const (
	// SourceResource tags a resource row.
	SourceResource Source = "resource"

	// SourceRole tags a role row.
	SourceRole Source = "role"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	return s == SourceResource || s == SourceRole
}

// Tag is one label on one entity. Many tags may share a (FromID, FromSource).
type Tag struct {
	ID           id.TagID      `json:"id" db:"id"`
	FromID       id.ID         `json:"from_id" db:"from_id"`
	FromSource   Source        `json:"from_source" db:"from_source"`
	Name         string        `json:"name" db:"name"`
	OwnerUserID  string        `json:"owner_user_id" db:"owner_user_id"`
	Status       status.Status `json:"status" db:"status"`
	ChangeUserID string        `json:"change_user_id" db:"change_user_id"`
	ChangeTime   time.Time     `json:"change_time" db:"change_time"`
}

// GroupCount is one row of a tag-name aggregation.
type GroupCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}
