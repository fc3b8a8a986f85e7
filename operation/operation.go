// Package operation defines the Operation entity and its resource-type links.
package operation

import (
	"time"

	"github.com/shanliu/lsys-access/id"
	"github.com/shanliu/lsys-access/status"
)

// MaxFieldLen is the maximum length, after trimming, for OpKey and OpName.
const MaxFieldLen = 32

// Operation is a named action (e.g. "view", "edit") that can be required
// against a resource. The identity tuple (OwnerUserID, AppID, OpKey) is
// unique among Enabled rows.
type Operation struct {
	ID           id.OperationID `json:"id" db:"id"`
	OwnerUserID  string         `json:"owner_user_id" db:"owner_user_id"`
	AppID        string         `json:"app_id" db:"app_id"`
	OpKey        string         `json:"op_key" db:"op_key"`
	OpName       string         `json:"op_name" db:"op_name"`
	Status       status.Status  `json:"status" db:"status"`
	ChangeUserID string         `json:"change_user_id" db:"change_user_id"`
	ChangeTime   time.Time      `json:"change_time" db:"change_time"`
}

// Identity is the natural key of an operation among Enabled rows.
type Identity struct {
	OwnerUserID string `json:"owner_user_id"`
	AppID       string `json:"app_id"`
	OpKey       string `json:"op_key"`
}

// Identity returns the operation's natural key.
func (o *Operation) Identity() Identity {
	return Identity{
		OwnerUserID: o.OwnerUserID,
		AppID:       o.AppID,
		OpKey:       o.OpKey,
	}
}

// ResLink associates an operation with a resource type it may act on.
// Removed (soft-deleted) when either side is deleted.
type ResLink struct {
	ID           id.ResLinkID   `json:"id" db:"id"`
	OpID         id.OperationID `json:"op_id" db:"op_id"`
	ResType      string         `json:"res_type" db:"res_type"`
	OwnerUserID  string         `json:"owner_user_id" db:"owner_user_id"`
	AppID        string         `json:"app_id" db:"app_id"`
	Status       status.Status  `json:"status" db:"status"`
	ChangeUserID string         `json:"change_user_id" db:"change_user_id"`
	ChangeTime   time.Time      `json:"change_time" db:"change_time"`
}

// ListFilter contains filters for listing operations. The same empty-set
// short-circuit rules apply as for resource listing: a non-nil empty IDs
// slice matches nothing.
type ListFilter struct {
	OwnerUserID string  `json:"owner_user_id,omitempty"`
	AppID       string  `json:"app_id,omitempty"`
	NameLike    string  `json:"name_like,omitempty"`
	IDs         []id.ID `json:"ids,omitempty"`
	Limit       int     `json:"limit,omitempty"`
	Offset      int     `json:"offset,omitempty"`
}

// Empty reports whether the filter can only match the empty set.
func (f *ListFilter) Empty() bool {
	return f != nil && f.IDs != nil && len(f.IDs) == 0
}
