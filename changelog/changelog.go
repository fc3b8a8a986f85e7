// Package changelog defines the mutation audit trail. Every add, edit, and
// delete on catalog and registry entities emits one Entry. Writers treat the
// sink as fire-and-forget: a failed write is logged, never propagated.
package changelog

import (
	"time"

	"github.com/shanliu/lsys-access/id"
)

// Entry is a single mutation audit record.
type Entry struct {
	ID         id.ChangeID `json:"id" db:"id"`
	Action     string      `json:"action" db:"action"`
	ActorID    string      `json:"actor_id" db:"actor_id"`
	AppID      string      `json:"app_id" db:"app_id"`
	EntityKind string      `json:"entity_kind" db:"entity_kind"`
	EntityID   id.ID       `json:"entity_id" db:"entity_id"`
	Before     string      `json:"before,omitempty" db:"before"`
	After      string      `json:"after,omitempty" db:"after"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
}

// QueryFilter contains filters for querying change entries.
type QueryFilter struct {
	ActorID    string     `json:"actor_id,omitempty"`
	AppID      string     `json:"app_id,omitempty"`
	EntityKind string     `json:"entity_kind,omitempty"`
	EntityID   id.ID      `json:"entity_id,omitempty"`
	Action     string     `json:"action,omitempty"`
	After      *time.Time `json:"after,omitempty"`
	Before     *time.Time `json:"before,omitempty"`
	Limit      int        `json:"limit,omitempty"`
	Offset     int        `json:"offset,omitempty"`
}
