// Package access provides the RBAC authorization core for multi-tenant
// backends: a catalog of resources and operations, a registry of roles with
// user bindings and permission grants, a tag index for categorized search,
// an invalidation-driven cache, and the policy checker that decides whether
// a caller may perform an operation on a resource.
//
//	eng, err := access.NewEngine(
//	    access.WithStore(memStore),
//	)
//	err = eng.Check(ctx, "user-1", nil, []access.Requirement{{
//	    OwnerUserID: "owner-1",
//	    ResType:     "invoice",
//	    ResData:     "inv-42",
//	    Ops:         []string{"view"},
//	}})
package access

import "github.com/shanliu/lsys-access/id"

// ID is the primary identifier type for all access entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix

// Requirement names one resource a caller must be authorized against, the
// operation keys needed on it, and an optional tag restriction. OwnerUserID
// empty means the system scope; non-empty scopes the requirement to that
// user's resources.
type Requirement struct {
	OwnerUserID string   `json:"owner_user_id"`
	ResType     string   `json:"res_type"`
	ResData     string   `json:"res_data"`
	Ops         []string `json:"ops"`
	Tags        []string `json:"tags,omitempty"`
}

// ResKey returns the delegated-scope key for the requirement, matched
// against a caller's token scopes.
func (r Requirement) ResKey() string {
	return r.ResType + ":" + r.ResData
}
