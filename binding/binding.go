// Package binding defines the role-user membership binding (RoleUser).
package binding

import (
	"time"

	"github.com/shanliu/lsys-access/id"
	"github.com/shanliu/lsys-access/status"
)

// Binding makes a user hold a role. Only meaningful when the role is
// consulted for that user. A nil Timeout never expires.
type Binding struct {
	ID           id.BindingID  `json:"id" db:"id"`
	RoleID       id.RoleID     `json:"role_id" db:"role_id"`
	UserID       string        `json:"user_id" db:"user_id"`
	Timeout      *time.Time    `json:"timeout,omitempty" db:"timeout"`
	Status       status.Status `json:"status" db:"status"`
	ChangeUserID string        `json:"change_user_id" db:"change_user_id"`
	ChangeTime   time.Time     `json:"change_time" db:"change_time"`
}

// Live reports whether the binding is Enabled and unexpired at now.
func (b *Binding) Live(now time.Time) bool {
	if !b.Status.Enabled() {
		return false
	}
	return b.Timeout == nil || b.Timeout.After(now)
}

// UserEntry is one desired membership row for SetRoleUsers.
type UserEntry struct {
	UserID  string     `json:"user_id"`
	Timeout *time.Time `json:"timeout,omitempty"`
}
