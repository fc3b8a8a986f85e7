// Package resource defines the Resource entity owned by the catalog.
package resource

import (
	"time"

	"github.com/shanliu/lsys-access/id"
	"github.com/shanliu/lsys-access/status"
)

// MaxFieldLen is the maximum length, after trimming, for ResType, ResData,
// and ResName.
const MaxFieldLen = 32

// Resource is an addressable thing a user can be authorized against.
// The identity tuple (OwnerUserID, AppID, ResType, ResData) is unique among
// Enabled rows.
type Resource struct {
	ID           id.ResourceID `json:"id" db:"id"`
	OwnerUserID  string        `json:"owner_user_id" db:"owner_user_id"`
	AppID        string        `json:"app_id" db:"app_id"`
	ResType      string        `json:"res_type" db:"res_type"`
	ResData      string        `json:"res_data" db:"res_data"`
	ResName      string        `json:"res_name" db:"res_name"`
	Status       status.Status `json:"status" db:"status"`
	ChangeUserID string        `json:"change_user_id" db:"change_user_id"`
	ChangeTime   time.Time     `json:"change_time" db:"change_time"`
}

// Identity is the natural key of a resource among Enabled rows.
type Identity struct {
	OwnerUserID string `json:"owner_user_id"`
	AppID       string `json:"app_id"`
	ResType     string `json:"res_type"`
	ResData     string `json:"res_data"`
}

// Identity returns the resource's natural key.
func (r *Resource) Identity() Identity {
	return Identity{
		OwnerUserID: r.OwnerUserID,
		AppID:       r.AppID,
		ResType:     r.ResType,
		ResData:     r.ResData,
	}
}

// ListFilter contains filters for listing resources. A nil IDs slice means
// "no id restriction"; an empty non-nil slice matches nothing. Likewise a
// set ResType that is the empty string matches nothing — both distinguish
// "no filter" from "filter matches nothing".
type ListFilter struct {
	OwnerUserID string   `json:"owner_user_id,omitempty"`
	AppID       string   `json:"app_id,omitempty"`
	ResType     *string  `json:"res_type,omitempty"`
	NameLike    string   `json:"name_like,omitempty"`
	IDs         []id.ID  `json:"ids,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Limit       int      `json:"limit,omitempty"`
	Offset      int      `json:"offset,omitempty"`
}

// Empty reports whether the filter can only match the empty set, without
// touching the store.
func (f *ListFilter) Empty() bool {
	if f == nil {
		return false
	}
	if f.ResType != nil && *f.ResType == "" {
		return true
	}
	if f.IDs != nil && len(f.IDs) == 0 {
		return true
	}
	return false
}
