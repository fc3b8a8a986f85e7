// Package permission defines the explicit (role, resource, operation) grant.
// Perm rows are consulted only for roles with a custom res range; an absent
// row means not granted.
package permission

import (
	"time"

	"github.com/shanliu/lsys-access/id"
	"github.com/shanliu/lsys-access/status"
)

// Perm grants one operation on one resource to one role.
type Perm struct {
	ID           id.PermID      `json:"id" db:"id"`
	RoleID       id.RoleID      `json:"role_id" db:"role_id"`
	ResID        id.ResourceID  `json:"res_id" db:"res_id"`
	OpID         id.OperationID `json:"op_id" db:"op_id"`
	Status       status.Status  `json:"status" db:"status"`
	ChangeUserID string         `json:"change_user_id" db:"change_user_id"`
	ChangeTime   time.Time      `json:"change_time" db:"change_time"`
}

// Entry is one desired grant row for SetRolePerms.
type Entry struct {
	ResID id.ResourceID  `json:"res_id"`
	OpID  id.OperationID `json:"op_id"`
}
