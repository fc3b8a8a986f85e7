// Package role defines the Role entity: a named bundle of grants with a
// membership-resolution mode and a grant-breadth mode.
package role

import (
	"time"

	"github.com/shanliu/lsys-access/id"
	"github.com/shanliu/lsys-access/status"
)

// MaxFieldLen is the maximum length, after trimming, for RoleKey and RoleName.
const MaxFieldLen = 32

// UserRange controls how a role's membership is resolved.
type UserRange string

const (
	// UserRangeCustom roles are held via explicit Binding rows and looked
	// up by name.
	UserRangeCustom UserRange = "custom"

	// UserRangeSession roles are looked up by stable RoleKey from code
	// paths (well-known system roles); no Binding rows are consulted.
	UserRangeSession UserRange = "session"
)

// Valid reports whether u is a known user range.
func (u UserRange) Valid() bool {
	return u == UserRangeCustom || u == UserRangeSession
}

// Well-known session role keys. Owners register session roles under these
// keys to grant baseline access without per-user bindings.
const (
	// SessionGlobal covers every caller, authenticated or not.
	SessionGlobal = "global"

	// SessionLogin covers authenticated callers.
	SessionLogin = "login"
)

// ResRange controls how broadly a held role grants access.
type ResRange string

const (
	// ResRangeAllowAll grants every resource/operation pair in the role's
	// scope, with no Perm rows required.
	ResRangeAllowAll ResRange = "allow_all"

	// ResRangeDenyAll grants nothing regardless of Perm rows. Used as an
	// explicit override to revoke a broader grant for specific users.
	ResRangeDenyAll ResRange = "deny_all"

	// ResRangeCustom grants only pairs with a matching Enabled Perm row.
	ResRangeCustom ResRange = "custom"
)

// Valid reports whether r is a known res range.
func (r ResRange) Valid() bool {
	return r == ResRangeAllowAll || r == ResRangeDenyAll || r == ResRangeCustom
}

// Role is a named bundle of grants. RoleName is unique per owner among
// Enabled rows; RoleKey, when non-empty, is too. UserRange and ResRange are
// immutable after creation — changing grant breadth goes through
// delete + recreate.
type Role struct {
	ID           id.RoleID     `json:"id" db:"id"`
	OwnerUserID  string        `json:"owner_user_id" db:"owner_user_id"`
	AppID        string        `json:"app_id" db:"app_id"`
	RoleKey      string        `json:"role_key" db:"role_key"`
	RoleName     string        `json:"role_name" db:"role_name"`
	UserRange    UserRange     `json:"user_range" db:"user_range"`
	ResRange     ResRange      `json:"res_range" db:"res_range"`
	Priority     int           `json:"priority" db:"priority"`
	Status       status.Status `json:"status" db:"status"`
	ChangeUserID string        `json:"change_user_id" db:"change_user_id"`
	ChangeTime   time.Time     `json:"change_time" db:"change_time"`
}

// ListFilter contains filters for listing roles. A non-nil empty IDs slice
// matches nothing.
type ListFilter struct {
	OwnerUserID string     `json:"owner_user_id,omitempty"`
	AppID       string     `json:"app_id,omitempty"`
	UserRange   *UserRange `json:"user_range,omitempty"`
	ResRange    *ResRange  `json:"res_range,omitempty"`
	NameLike    string     `json:"name_like,omitempty"`
	IDs         []id.ID    `json:"ids,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Limit       int        `json:"limit,omitempty"`
	Offset      int        `json:"offset,omitempty"`
}

// Empty reports whether the filter can only match the empty set.
func (f *ListFilter) Empty() bool {
	return f != nil && f.IDs != nil && len(f.IDs) == 0
}

// UserCount is one row of a per-role binding aggregation.
type UserCount struct {
	RoleID id.RoleID `json:"role_id"`
	Count  int64     `json:"count"`
}
