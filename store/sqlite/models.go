package sqlite

import (
	"time"

	"github.com/xraph/grove"

	"github.com/shanliu/lsys-access/binding"
	"github.com/shanliu/lsys-access/changelog"
	"github.com/shanliu/lsys-access/id"
	"github.com/shanliu/lsys-access/operation"
	"github.com/shanliu/lsys-access/permission"
	"github.com/shanliu/lsys-access/resource"
	"github.com/shanliu/lsys-access/role"
	"github.com/shanliu/lsys-access/status"
	"github.com/shanliu/lsys-access/tag"
)

// ──────────────────────────────────────────────────
// Resource model
// ──────────────────────────────────────────────────

type resourceModel struct {
	grove.BaseModel `grove:"table:access_resources"`
	ID              string    `grove:"id,pk"`
	OwnerUserID     string    `grove:"owner_user_id,notnull"`
	AppID           string    `grove:"app_id,notnull"`
	ResType         string    `grove:"res_type,notnull"`
	ResData         string    `grove:"res_data,notnull"`
	ResName         string    `grove:"res_name,notnull"`
	Status          string    `grove:"status,notnull"`
	ChangeUserID    string    `grove:"change_user_id,notnull"`
	ChangeTime      time.Time `grove:"change_time,notnull"`
}

func resourceToModel(r *resource.Resource) *resourceModel {
	return &resourceModel{
		ID:           r.ID.String(),
		OwnerUserID:  r.OwnerUserID,
		AppID:        r.AppID,
		ResType:      r.ResType,
		ResData:      r.ResData,
		ResName:      r.ResName,
		Status:       string(r.Status),
		ChangeUserID: r.ChangeUserID,
		ChangeTime:   r.ChangeTime,
	}
}

func resourceFromModel(m *resourceModel) *resource.Resource {
	rid, _ := id.ParseResourceID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &resource.Resource{
		ID:           rid,
		OwnerUserID:  m.OwnerUserID,
		AppID:        m.AppID,
		ResType:      m.ResType,
		ResData:      m.ResData,
		ResName:      m.ResName,
		Status:       status.Status(m.Status),
		ChangeUserID: m.ChangeUserID,
		ChangeTime:   m.ChangeTime,
	}
}

// ──────────────────────────────────────────────────
// Operation models
// ──────────────────────────────────────────────────

type operationModel struct {
	grove.BaseModel `grove:"table:access_operations"`
	ID              string    `grove:"id,pk"`
	OwnerUserID     string    `grove:"owner_user_id,notnull"`
	AppID           string    `grove:"app_id,notnull"`
	OpKey           string    `grove:"op_key,notnull"`
	OpName          string    `grove:"op_name,notnull"`
	Status          string    `grove:"status,notnull"`
	ChangeUserID    string    `grove:"change_user_id,notnull"`
	ChangeTime      time.Time `grove:"change_time,notnull"`
}

func operationToModel(o *operation.Operation) *operationModel {
	return &operationModel{
		ID:           o.ID.String(),
		OwnerUserID:  o.OwnerUserID,
		AppID:        o.AppID,
		OpKey:        o.OpKey,
		OpName:       o.OpName,
		Status:       string(o.Status),
		ChangeUserID: o.ChangeUserID,
		ChangeTime:   o.ChangeTime,
	}
}

func operationFromModel(m *operationModel) *operation.Operation {
	oid, _ := id.ParseOperationID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &operation.Operation{
		ID:           oid,
		OwnerUserID:  m.OwnerUserID,
		AppID:        m.AppID,
		OpKey:        m.OpKey,
		OpName:       m.OpName,
		Status:       status.Status(m.Status),
		ChangeUserID: m.ChangeUserID,
		ChangeTime:   m.ChangeTime,
	}
}

type resLinkModel struct {
	grove.BaseModel `grove:"table:access_op_res_links"`
	ID              string    `grove:"id,pk"`
	OpID            string    `grove:"op_id,notnull"`
	ResType         string    `grove:"res_type,notnull"`
	OwnerUserID     string    `grove:"owner_user_id,notnull"`
	AppID           string    `grove:"app_id,notnull"`
	Status          string    `grove:"status,notnull"`
	ChangeUserID    string    `grove:"change_user_id,notnull"`
	ChangeTime      time.Time `grove:"change_time,notnull"`
}

func resLinkToModel(l *operation.ResLink) *resLinkModel {
	return &resLinkModel{
		ID:           l.ID.String(),
		OpID:         l.OpID.String(),
		ResType:      l.ResType,
		OwnerUserID:  l.OwnerUserID,
		AppID:        l.AppID,
		Status:       string(l.Status),
		ChangeUserID: l.ChangeUserID,
		ChangeTime:   l.ChangeTime,
	}
}

func resLinkFromModel(m *resLinkModel) *operation.ResLink {
	lid, _ := id.ParseResLinkID(m.ID)   //nolint:errcheck // stored IDs are always valid
	oid, _ := id.ParseOperationID(m.OpID) //nolint:errcheck
	return &operation.ResLink{
		ID:           lid,
		OpID:         oid,
		ResType:      m.ResType,
		OwnerUserID:  m.OwnerUserID,
		AppID:        m.AppID,
		Status:       status.Status(m.Status),
		ChangeUserID: m.ChangeUserID,
		ChangeTime:   m.ChangeTime,
	}
}

// ──────────────────────────────────────────────────
// Tag model
// ──────────────────────────────────────────────────

type tagModel struct {
	grove.BaseModel `grove:"table:access_tags"`
	ID              string    `grove:"id,pk"`
	FromID          string    `grove:"from_id,notnull"`
	FromSource      string    `grove:"from_source,notnull"`
	Name            string    `grove:"name,notnull"`
	OwnerUserID     string    `grove:"owner_user_id,notnull"`
	Status          string    `grove:"status,notnull"`
	ChangeUserID    string    `grove:"change_user_id,notnull"`
	ChangeTime      time.Time `grove:"change_time,notnull"`
}

func tagToModel(t *tag.Tag) *tagModel {
	return &tagModel{
		ID:           t.ID.String(),
		FromID:       t.FromID.String(),
		FromSource:   string(t.FromSource),
		Name:         t.Name,
		OwnerUserID:  t.OwnerUserID,
		Status:       string(t.Status),
		ChangeUserID: t.ChangeUserID,
		ChangeTime:   t.ChangeTime,
	}
}

func tagFromModel(m *tagModel) *tag.Tag {
	tid, _ := id.ParseTagID(m.ID) //nolint:errcheck // stored IDs are always valid
	fid, _ := id.Parse(m.FromID)  //nolint:errcheck
	return &tag.Tag{
		ID:           tid,
		FromID:       fid,
		FromSource:   tag.Source(m.FromSource),
		Name:         m.Name,
		OwnerUserID:  m.OwnerUserID,
		Status:       status.Status(m.Status),
		ChangeUserID: m.ChangeUserID,
		ChangeTime:   m.ChangeTime,
	}
}

// ──────────────────────────────────────────────────
// Role model
// ──────────────────────────────────────────────────

type roleModel struct {
	grove.BaseModel `grove:"table:access_roles"`
	ID              string    `grove:"id,pk"`
	OwnerUserID     string    `grove:"owner_user_id,notnull"`
	AppID           string    `grove:"app_id,notnull"`
	RoleKey         string    `grove:"role_key,notnull"`
	RoleName        string    `grove:"role_name,notnull"`
	UserRange       string    `grove:"user_range,notnull"`
	ResRange        string    `grove:"res_range,notnull"`
	Priority        int       `grove:"priority,notnull"`
	Status          string    `grove:"status,notnull"`
	ChangeUserID    string    `grove:"change_user_id,notnull"`
	ChangeTime      time.Time `grove:"change_time,notnull"`
}

func roleToModel(r *role.Role) *roleModel {
	return &roleModel{
		ID:           r.ID.String(),
		OwnerUserID:  r.OwnerUserID,
		AppID:        r.AppID,
		RoleKey:      r.RoleKey,
		RoleName:     r.RoleName,
		UserRange:    string(r.UserRange),
		ResRange:     string(r.ResRange),
		Priority:     r.Priority,
		Status:       string(r.Status),
		ChangeUserID: r.ChangeUserID,
		ChangeTime:   r.ChangeTime,
	}
}

func roleFromModel(m *roleModel) *role.Role {
	rid, _ := id.ParseRoleID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &role.Role{
		ID:           rid,
		OwnerUserID:  m.OwnerUserID,
		AppID:        m.AppID,
		RoleKey:      m.RoleKey,
		RoleName:     m.RoleName,
		UserRange:    role.UserRange(m.UserRange),
		ResRange:     role.ResRange(m.ResRange),
		Priority:     m.Priority,
		Status:       status.Status(m.Status),
		ChangeUserID: m.ChangeUserID,
		ChangeTime:   m.ChangeTime,
	}
}

// ──────────────────────────────────────────────────
// Binding model
// ──────────────────────────────────────────────────

type bindingModel struct {
	grove.BaseModel `grove:"table:access_role_users"`
	ID              string     `grove:"id,pk"`
	RoleID          string     `grove:"role_id,notnull"`
	UserID          string     `grove:"user_id,notnull"`
	Timeout         *time.Time `grove:"timeout"`
	Status          string     `grove:"status,notnull"`
	ChangeUserID    string     `grove:"change_user_id,notnull"`
	ChangeTime      time.Time  `grove:"change_time,notnull"`
}

func bindingToModel(b *binding.Binding) *bindingModel {
	return &bindingModel{
		ID:           b.ID.String(),
		RoleID:       b.RoleID.String(),
		UserID:       b.UserID,
		Timeout:      b.Timeout,
		Status:       string(b.Status),
		ChangeUserID: b.ChangeUserID,
		ChangeTime:   b.ChangeTime,
	}
}

func bindingFromModel(m *bindingModel) *binding.Binding {
	bid, _ := id.ParseBindingID(m.ID) //nolint:errcheck // stored IDs are always valid
	rid, _ := id.ParseRoleID(m.RoleID) //nolint:errcheck
	return &binding.Binding{
		ID:           bid,
		RoleID:       rid,
		UserID:       m.UserID,
		Timeout:      m.Timeout,
		Status:       status.Status(m.Status),
		ChangeUserID: m.ChangeUserID,
		ChangeTime:   m.ChangeTime,
	}
}

// ──────────────────────────────────────────────────
// Permission model
// ──────────────────────────────────────────────────

type permModel struct {
	grove.BaseModel `grove:"table:access_role_perms"`
	ID              string    `grove:"id,pk"`
	RoleID          string    `grove:"role_id,notnull"`
	ResID           string    `grove:"res_id,notnull"`
	OpID            string    `grove:"op_id,notnull"`
	Status          string    `grove:"status,notnull"`
	ChangeUserID    string    `grove:"change_user_id,notnull"`
	ChangeTime      time.Time `grove:"change_time,notnull"`
}

func permToModel(p *permission.Perm) *permModel {
	return &permModel{
		ID:           p.ID.String(),
		RoleID:       p.RoleID.String(),
		ResID:        p.ResID.String(),
		OpID:         p.OpID.String(),
		Status:       string(p.Status),
		ChangeUserID: p.ChangeUserID,
		ChangeTime:   p.ChangeTime,
	}
}

func permFromModel(m *permModel) *permission.Perm {
	pid, _ := id.ParsePermID(m.ID)      //nolint:errcheck // stored IDs are always valid
	rid, _ := id.ParseRoleID(m.RoleID)  //nolint:errcheck
	resID, _ := id.ParseResourceID(m.ResID) //nolint:errcheck
	oid, _ := id.ParseOperationID(m.OpID)   //nolint:errcheck
	return &permission.Perm{
		ID:           pid,
		RoleID:       rid,
		ResID:        resID,
		OpID:         oid,
		Status:       status.Status(m.Status),
		ChangeUserID: m.ChangeUserID,
		ChangeTime:   m.ChangeTime,
	}
}

// ──────────────────────────────────────────────────
// Changelog model
// ──────────────────────────────────────────────────

type changeModel struct {
	grove.BaseModel `grove:"table:access_changes"`
	ID              string    `grove:"id,pk"`
	Action          string    `grove:"action,notnull"`
	ActorID         string    `grove:"actor_id,notnull"`
	AppID           string    `grove:"app_id,notnull"`
	EntityKind      string    `grove:"entity_kind,notnull"`
	EntityID        string    `grove:"entity_id,notnull"`
	Before          string    `grove:"before_state"`
	After           string    `grove:"after_state"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
}

func changeToModel(e *changelog.Entry) *changeModel {
	return &changeModel{
		ID:         e.ID.String(),
		Action:     e.Action,
		ActorID:    e.ActorID,
		AppID:      e.AppID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID.String(),
		Before:     e.Before,
		After:      e.After,
		CreatedAt:  e.CreatedAt,
	}
}

func changeFromModel(m *changeModel) *changelog.Entry {
	cid, _ := id.ParseChangeID(m.ID) //nolint:errcheck // stored IDs are always valid
	eid, _ := id.Parse(m.EntityID)   //nolint:errcheck
	return &changelog.Entry{
		ID:         cid,
		Action:     m.Action,
		ActorID:    m.ActorID,
		AppID:      m.AppID,
		EntityKind: m.EntityKind,
		EntityID:   eid,
		Before:     m.Before,
		After:      m.After,
		CreatedAt:  m.CreatedAt,
	}
}
