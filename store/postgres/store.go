// Package postgres provides a PostgreSQL implementation of the composite
// access store using grove ORM with Go-based migrations.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/shanliu/lsys-access/binding"
	"github.com/shanliu/lsys-access/changelog"
	"github.com/shanliu/lsys-access/id"
	"github.com/shanliu/lsys-access/operation"
	"github.com/shanliu/lsys-access/permission"
	"github.com/shanliu/lsys-access/resource"
	"github.com/shanliu/lsys-access/role"
	"github.com/shanliu/lsys-access/status"
	"github.com/shanliu/lsys-access/store"
	"github.com/shanliu/lsys-access/tag"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Status values as stored. Every list and lookup that reads current state
// filters on stEnable; forgetting the filter is the classic soft-delete bug.
const (
	stEnable = string(status.Enable)
	stDelete = string(status.Delete)
)

// Store is a PostgreSQL implementation of the composite access store.
type Store struct {
	db   *grove.DB
	pgdb *pgdriver.PgDB
}

// New creates a new PostgreSQL store.
func New(db *grove.DB) *Store {
	return &Store{
		db:   db,
		pgdb: pgdriver.Unwrap(db),
	}
}

// Migrate runs programmatic migrations via the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pgdb)
	if err != nil {
		return fmt.Errorf("access: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("access: migration failed: %w", err)
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ──────────────────────────────────────────────────
// Resource operations
// ──────────────────────────────────────────────────

func (s *Store) CreateResource(ctx context.Context, r *resource.Resource) error {
	if _, err := s.pgdb.NewInsert(resourceToModel(r)).Exec(ctx); err != nil {
		return fmt.Errorf("access: create resource: %w", err)
	}
	return nil
}

func (s *Store) GetResource(ctx context.Context, resID id.ResourceID) (*resource.Resource, error) {
	m := new(resourceModel)
	err := s.pgdb.NewSelect(m).Where("id = ?", resID.String()).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("resource %s: %w", resID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("access: get resource: %w", err)
	}
	return resourceFromModel(m), nil
}

func (s *Store) GetResourceByIdentity(ctx context.Context, ident resource.Identity) (*resource.Resource, error) {
	m := new(resourceModel)
	err := s.pgdb.NewSelect(m).
		Where("owner_user_id = ?", ident.OwnerUserID).
		Where("app_id = ?", ident.AppID).
		Where("res_type = ?", ident.ResType).
		Where("res_data = ?", ident.ResData).
		Where("status = ?", stEnable).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("resource %s/%s: %w", ident.ResType, ident.ResData, store.ErrNotFound)
		}
		return nil, fmt.Errorf("access: get resource by identity: %w", err)
	}
	return resourceFromModel(m), nil
}

func (s *Store) UpdateResource(ctx context.Context, r *resource.Resource) error {
	if _, err := s.pgdb.NewUpdate(resourceToModel(r)).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("access: update resource: %w", err)
	}
	return nil
}

func (s *Store) DisableOtherResources(ctx context.Context, ident resource.Identity, keep id.ResourceID, changeUserID string) error {
	_, err := s.pgdb.NewUpdate((*resourceModel)(nil)).
		Set("status = ?", stDelete).
		Set("change_user_id = ?", changeUserID).
		Set("change_time = ?", time.Now().UTC()).
		Where("owner_user_id = ?", ident.OwnerUserID).
		Where("app_id = ?", ident.AppID).
		Where("res_type = ?", ident.ResType).
		Where("res_data = ?", ident.ResData).
		Where("status = ?", stEnable).
		Where("id != ?", keep.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("access: disable duplicate resources: %w", err)
	}
	return nil
}

func (s *Store) DeleteResourceCascade(ctx context.Context, resID id.ResourceID, changeUserID string) error {
	tx, err := s.pgdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("access: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	now := time.Now().UTC()
	_, err = tx.NewUpdate((*resourceModel)(nil)).
		Set("status = ?", stDelete).
		Set("change_user_id = ?", changeUserID).
		Set("change_time = ?", now).
		Where("id = ?", resID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("access: delete resource: %w", err)
	}
	_, err = tx.NewUpdate((*permModel)(nil)).
		Set("status = ?", stDelete).
		Set("change_user_id = ?", changeUserID).
		Set("change_time = ?", now).
		Where("res_id = ?", resID.String()).
		Where("status = ?", stEnable).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("access: strip resource perms: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("access: commit tx: %w", err)
	}
	return nil
}

func (s *Store) ListResources(ctx context.Context, filter *resource.ListFilter) ([]*resource.Resource, error) {
	var models []resourceModel
	q := s.pgdb.NewSelect(&models).Where("status = ?", stEnable).OrderExpr("id ASC")
	if filter != nil {
		if filter.OwnerUserID != "" {
			q = q.Where("owner_user_id = ?", filter.OwnerUserID)
		}
		if filter.AppID != "" {
			q = q.Where("app_id = ?", filter.AppID)
		}
		if filter.ResType != nil {
			q = q.Where("res_type = ?", *filter.ResType)
		}
		if filter.NameLike != "" {
			q = q.Where("res_name LIKE ?", "%"+filter.NameLike+"%")
		}
		if filter.IDs != nil {
			q = q.Where("id IN (?)", idStrings(filter.IDs))
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("access: list resources: %w", err)
	}
	result := make([]*resource.Resource, len(models))
	for i := range models {
		result[i] = resourceFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountResources(ctx context.Context, filter *resource.ListFilter) (int64, error) {
	var models []resourceModel
	q := s.pgdb.NewSelect(&models).Where("status = ?", stEnable)
	if filter != nil {
		if filter.OwnerUserID != "" {
			q = q.Where("owner_user_id = ?", filter.OwnerUserID)
		}
		if filter.AppID != "" {
			q = q.Where("app_id = ?", filter.AppID)
		}
		if filter.ResType != nil {
			q = q.Where("res_type = ?", *filter.ResType)
		}
		if filter.NameLike != "" {
			q = q.Where("res_name LIKE ?", "%"+filter.NameLike+"%")
		}
		if filter.IDs != nil {
			q = q.Where("id IN (?)", idStrings(filter.IDs))
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("access: count resources: %w", err)
	}
	return int64(count), nil
}

// ──────────────────────────────────────────────────
// Operation operations
// ──────────────────────────────────────────────────

func (s *Store) CreateOperation(ctx context.Context, o *operation.Operation) error {
	if _, err := s.pgdb.NewInsert(operationToModel(o)).Exec(ctx); err != nil {
		return fmt.Errorf("access: create operation: %w", err)
	}
	return nil
}

func (s *Store) GetOperation(ctx context.Context, opID id.OperationID) (*operation.Operation, error) {
	m := new(operationModel)
	err := s.pgdb.NewSelect(m).Where("id = ?", opID.String()).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("operation %s: %w", opID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("access: get operation: %w", err)
	}
	return operationFromModel(m), nil
}

func (s *Store) GetOperationByIdentity(ctx context.Context, ident operation.Identity) (*operation.Operation, error) {
	m := new(operationModel)
	err := s.pgdb.NewSelect(m).
		Where("owner_user_id = ?", ident.OwnerUserID).
		Where("app_id = ?", ident.AppID).
		Where("op_key = ?", ident.OpKey).
		Where("status = ?", stEnable).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("operation %s: %w", ident.OpKey, store.ErrNotFound)
		}
		return nil, fmt.Errorf("access: get operation by identity: %w", err)
	}
	return operationFromModel(m), nil
}

func (s *Store) GetOperationsByKeys(ctx context.Context, ownerUserID, appID string, keys []string) ([]*operation.Operation, error) {
	if len(keys) == 0 {
		return []*operation.Operation{}, nil
	}
	var models []operationModel
	err := s.pgdb.NewSelect(&models).
		Where("owner_user_id = ?", ownerUserID).
		Where("app_id = ?", appID).
		Where("op_key IN (?)", keys).
		Where("status = ?", stEnable).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("access: get operations by keys: %w", err)
	}
	result := make([]*operation.Operation, len(models))
	for i := range models {
		result[i] = operationFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) UpdateOperation(ctx context.Context, o *operation.Operation) error {
	if _, err := s.pgdb.NewUpdate(operationToModel(o)).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("access: update operation: %w", err)
	}
	return nil
}

func (s *Store) DisableOtherOperations(ctx context.Context, ident operation.Identity, keep id.OperationID, changeUserID string) error {
	_, err := s.pgdb.NewUpdate((*operationModel)(nil)).
		Set("status = ?", stDelete).
		Set("change_user_id = ?", changeUserID).
		Set("change_time = ?", time.Now().UTC()).
		Where("owner_user_id = ?", ident.OwnerUserID).
		Where("app_id = ?", ident.AppID).
		Where("op_key = ?", ident.OpKey).
		Where("status = ?", stEnable).
		Where("id != ?", keep.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("access: disable duplicate operations: %w", err)
	}
	return nil
}

func (s *Store) DeleteOperationCascade(ctx context.Context, opID id.OperationID, changeUserID string) error {
	tx, err := s.pgdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("access: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	now := time.Now().UTC()
	_, err = tx.NewUpdate((*operationModel)(nil)).
		Set("status = ?", stDelete).
		Set("change_user_id = ?", changeUserID).
		Set("change_time = ?", now).
		Where("id = ?", opID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("access: delete operation: %w", err)
	}
	_, err = tx.NewUpdate((*resLinkModel)(nil)).
		Set("status = ?", stDelete).
		Set("change_user_id = ?", changeUserID).
		Set("change_time = ?", now).
		Where("op_id = ?", opID.String()).
		Where("status = ?", stEnable).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("access: strip operation links: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("access: commit tx: %w", err)
	}
	return nil
}

func (s *Store) ListOperations(ctx context.Context, filter *operation.ListFilter) ([]*operation.Operation, error) {
	var models []operationModel
	q := s.pgdb.NewSelect(&models).Where("status = ?", stEnable).OrderExpr("id ASC")
	if filter != nil {
		if filter.OwnerUserID != "" {
			q = q.Where("owner_user_id = ?", filter.OwnerUserID)
		}
		if filter.AppID != "" {
			q = q.Where("app_id = ?", filter.AppID)
		}
		if filter.NameLike != "" {
			q = q.Where("op_name LIKE ?", "%"+filter.NameLike+"%")
		}
		if filter.IDs != nil {
			q = q.Where("id IN (?)", idStrings(filter.IDs))
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("access: list operations: %w", err)
	}
	result := make([]*operation.Operation, len(models))
	for i := range models {
		result[i] = operationFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountOperations(ctx context.Context, filter *operation.ListFilter) (int64, error) {
	var models []operationModel
	q := s.pgdb.NewSelect(&models).Where("status = ?", stEnable)
	if filter != nil {
		if filter.OwnerUserID != "" {
			q = q.Where("owner_user_id = ?", filter.OwnerUserID)
		}
		if filter.AppID != "" {
			q = q.Where("app_id = ?", filter.AppID)
		}
		if filter.NameLike != "" {
			q = q.Where("op_name LIKE ?", "%"+filter.NameLike+"%")
		}
		if filter.IDs != nil {
			q = q.Where("id IN (?)", idStrings(filter.IDs))
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("access: count operations: %w", err)
	}
	return int64(count), nil
}

func (s *Store) CreateResLink(ctx context.Context, l *operation.ResLink) error {
	if _, err := s.pgdb.NewInsert(resLinkToModel(l)).Exec(ctx); err != nil {
		return fmt.Errorf("access: create res link: %w", err)
	}
	return nil
}

func (s *Store) DeleteResLink(ctx context.Context, opID id.OperationID, resType string, changeUserID string) error {
	_, err := s.pgdb.NewUpdate((*resLinkModel)(nil)).
		Set("status = ?", stDelete).
		Set("change_user_id = ?", changeUserID).
		Set("change_time = ?", time.Now().UTC()).
		Where("op_id = ?", opID.String()).
		Where("res_type = ?", resType).
		Where("status = ?", stEnable).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("access: delete res link: %w", err)
	}
	return nil
}

func (s *Store) DeleteResLinksByResType(ctx context.Context, ownerUserID, appID, resType string, changeUserID string) error {
	_, err := s.pgdb.NewUpdate((*resLinkModel)(nil)).
		Set("status = ?", stDelete).
		Set("change_user_id = ?", changeUserID).
		Set("change_time = ?", time.Now().UTC()).
		Where("owner_user_id = ?", ownerUserID).
		Where("app_id = ?", appID).
		Where("res_type = ?", resType).
		Where("status = ?", stEnable).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("access: delete res links by type: %w", err)
	}
	return nil
}

func (s *Store) ListResLinksForOp(ctx context.Context, opID id.OperationID) ([]*operation.ResLink, error) {
	var models []resLinkModel
	err := s.pgdb.NewSelect(&models).
		Where("op_id = ?", opID.String()).
		Where("status = ?", stEnable).
		OrderExpr("res_type ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("access: list res links: %w", err)
	}
	result := make([]*operation.ResLink, len(models))
	for i := range models {
		result[i] = resLinkFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) ListOpsForResType(ctx context.Context, ownerUserID, appID, resType string) ([]*operation.Operation, error) {
	var links []resLinkModel
	err := s.pgdb.NewSelect(&links).
		Where("owner_user_id = ?", ownerUserID).
		Where("app_id = ?", appID).
		Where("res_type = ?", resType).
		Where("status = ?", stEnable).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("access: list ops for res type: %w", err)
	}
	if len(links) == 0 {
		return []*operation.Operation{}, nil
	}
	opIDs := make([]string, len(links))
	for i, l := range links {
		opIDs[i] = l.OpID
	}
	var models []operationModel
	err = s.pgdb.NewSelect(&models).
		Where("id IN (?)", opIDs).
		Where("status = ?", stEnable).
		OrderExpr("op_key ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("access: list ops for res type: %w", err)
	}
	result := make([]*operation.Operation, len(models))
	for i := range models {
		result[i] = operationFromModel(&models[i])
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Tag operations
// ──────────────────────────────────────────────────

func (s *Store) SetTags(ctx context.Context, fromID id.ID, source tag.Source, ownerUserID string, names []string, changeUserID string) error {
	var current []tagModel
	err := s.pgdb.NewSelect(&current).
		Where("from_id = ?", fromID.String()).
		Where("from_source = ?", string(source)).
		Where("status = ?", stEnable).
		Scan(ctx)
	if err != nil {
		return fmt.Errorf("access: load current tags: %w", err)
	}

	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}
	have := make(map[string]struct{}, len(current))
	var dropIDs []string
	for _, t := range current {
		if _, keep := want[t.Name]; keep {
			have[t.Name] = struct{}{}
		} else {
			dropIDs = append(dropIDs, t.ID)
		}
	}
	now := time.Now().UTC()
	var inserts []tagModel
	for _, n := range names {
		if _, ok := have[n]; ok {
			continue
		}
		inserts = append(inserts, *tagToModel(&tag.Tag{
			ID:           id.NewTagID(),
			FromID:       fromID,
			FromSource:   source,
			Name:         n,
			OwnerUserID:  ownerUserID,
			Status:       status.Enable,
			ChangeUserID: changeUserID,
			ChangeTime:   now,
		}))
	}
	if len(dropIDs) == 0 && len(inserts) == 0 {
		return nil
	}

	tx, err := s.pgdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("access: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if len(dropIDs) > 0 {
		_, err = tx.NewUpdate((*tagModel)(nil)).
			Set("status = ?", stDelete).
			Set("change_user_id = ?", changeUserID).
			Set("change_time = ?", now).
			Where("id IN (?)", dropIDs).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("access: drop tags: %w", err)
		}
	}
	if len(inserts) > 0 {
		if _, err = tx.NewInsert(&inserts).Exec(ctx); err != nil {
			return fmt.Errorf("access: insert tags: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("access: commit tx: %w", err)
	}
	return nil
}

func (s *Store) DeleteTags(ctx context.Context, fromID id.ID, source tag.Source, changeUserID string) error {
	_, err := s.pgdb.NewUpdate((*tagModel)(nil)).
		Set("status = ?", stDelete).
		Set("change_user_id = ?", changeUserID).
		Set("change_time = ?", time.Now().UTC()).
		Where("from_id = ?", fromID.String()).
		Where("from_source = ?", string(source)).
		Where("status = ?", stEnable).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("access: delete tags: %w", err)
	}
	return nil
}

func (s *Store) ListTags(ctx context.Context, fromID id.ID, source tag.Source) ([]*tag.Tag, error) {
	var models []tagModel
	err := s.pgdb.NewSelect(&models).
		Where("from_id = ?", fromID.String()).
		Where("from_source = ?", string(source)).
		Where("status = ?", stEnable).
		OrderExpr("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("access: list tags: %w", err)
	}
	result := make([]*tag.Tag, len(models))
	for i := range models {
		result[i] = tagFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) FindTagsByName(ctx context.Context, ownerUserID string, source tag.Source, names []string) ([]*tag.Tag, error) {
	if len(names) == 0 {
		return []*tag.Tag{}, nil
	}
	var models []tagModel
	err := s.pgdb.NewSelect(&models).
		Where("owner_user_id = ?", ownerUserID).
		Where("from_source = ?", string(source)).
		Where("name IN (?)", names).
		Where("status = ?", stEnable).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("access: find tags by name: %w", err)
	}
	result := make([]*tag.Tag, len(models))
	for i := range models {
		result[i] = tagFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) FindTagsByIDs(ctx context.Context, source tag.Source, fromIDs []id.ID) ([]*tag.Tag, error) {
	if len(fromIDs) == 0 {
		return []*tag.Tag{}, nil
	}
	var models []tagModel
	err := s.pgdb.NewSelect(&models).
		Where("from_source = ?", string(source)).
		Where("from_id IN (?)", idStrings(fromIDs)).
		Where("status = ?", stEnable).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("access: find tags by ids: %w", err)
	}
	result := make([]*tag.Tag, len(models))
	for i := range models {
		result[i] = tagFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) GroupTagsByOwner(ctx context.Context, ownerUserID string, source tag.Source) ([]tag.GroupCount, error) {
	// Grouped in Go; the grove builder has no GROUP BY surface.
	var models []tagModel
	err := s.pgdb.NewSelect(&models).
		Where("owner_user_id = ?", ownerUserID).
		Where("from_source = ?", string(source)).
		Where("status = ?", stEnable).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("access: group tags: %w", err)
	}
	counts := make(map[string]int64)
	order := make([]string, 0)
	for _, m := range models {
		if _, ok := counts[m.Name]; !ok {
			order = append(order, m.Name)
		}
		counts[m.Name]++
	}
	result := make([]tag.GroupCount, 0, len(order))
	for _, name := range order {
		result = append(result, tag.GroupCount{Name: name, Count: counts[name]})
	}
	return result, nil
}

func (s *Store) CountTagsByName(ctx context.Context, ownerUserID string, source tag.Source, name string) (int64, error) {
	var models []tagModel
	count, err := s.pgdb.NewSelect(&models).
		Where("owner_user_id = ?", ownerUserID).
		Where("from_source = ?", string(source)).
		Where("name = ?", name).
		Where("status = ?", stEnable).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("access: count tags: %w", err)
	}
	return int64(count), nil
}

// ──────────────────────────────────────────────────
// Role operations
// ──────────────────────────────────────────────────

func (s *Store) CreateRole(ctx context.Context, r *role.Role) error {
	if _, err := s.pgdb.NewInsert(roleToModel(r)).Exec(ctx); err != nil {
		return fmt.Errorf("access: create role: %w", err)
	}
	return nil
}

func (s *Store) GetRole(ctx context.Context, roleID id.RoleID) (*role.Role, error) {
	m := new(roleModel)
	err := s.pgdb.NewSelect(m).Where("id = ?", roleID.String()).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("role %s: %w", roleID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("access: get role: %w", err)
	}
	return roleFromModel(m), nil
}

func (s *Store) GetRoleByKey(ctx context.Context, ownerUserID, roleKey string) (*role.Role, error) {
	if roleKey == "" {
		return nil, fmt.Errorf("role key %q: %w", roleKey, store.ErrNotFound)
	}
	m := new(roleModel)
	err := s.pgdb.NewSelect(m).
		Where("owner_user_id = ?", ownerUserID).
		Where("role_key = ?", roleKey).
		Where("status = ?", stEnable).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("role key %q: %w", roleKey, store.ErrNotFound)
		}
		return nil, fmt.Errorf("access: get role by key: %w", err)
	}
	return roleFromModel(m), nil
}

func (s *Store) FindRoleConflict(ctx context.Context, ownerUserID, name, key string) ([]*role.Role, error) {
	var models []roleModel
	q := s.pgdb.NewSelect(&models).
		Where("owner_user_id = ?", ownerUserID).
		Where("status = ?", stEnable)
	if key != "" {
		q = q.Where("(role_name = ? OR role_key = ?)", name, key)
	} else {
		q = q.Where("role_name = ?", name)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("access: find role conflict: %w", err)
	}
	result := make([]*role.Role, len(models))
	for i := range models {
		result[i] = roleFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) UpdateRole(ctx context.Context, r *role.Role) error {
	if _, err := s.pgdb.NewUpdate(roleToModel(r)).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("access: update role: %w", err)
	}
	return nil
}

func (s *Store) DeleteRoleCascade(ctx context.Context, roleID id.RoleID, changeUserID string) error {
	tx, err := s.pgdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("access: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	now := time.Now().UTC()
	_, err = tx.NewUpdate((*roleModel)(nil)).
		Set("status = ?", stDelete).
		Set("change_user_id = ?", changeUserID).
		Set("change_time = ?", now).
		Where("id = ?", roleID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("access: delete role: %w", err)
	}
	_, err = tx.NewUpdate((*permModel)(nil)).
		Set("status = ?", stDelete).
		Set("change_user_id = ?", changeUserID).
		Set("change_time = ?", now).
		Where("role_id = ?", roleID.String()).
		Where("status = ?", stEnable).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("access: strip role perms: %w", err)
	}
	_, err = tx.NewUpdate((*bindingModel)(nil)).
		Set("status = ?", stDelete).
		Set("change_user_id = ?", changeUserID).
		Set("change_time = ?", now).
		Where("role_id = ?", roleID.String()).
		Where("status = ?", stEnable).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("access: strip role users: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("access: commit tx: %w", err)
	}
	return nil
}

func (s *Store) ListRoles(ctx context.Context, filter *role.ListFilter) ([]*role.Role, error) {
	var models []roleModel
	q := s.pgdb.NewSelect(&models).Where("status = ?", stEnable).OrderExpr("id ASC")
	if filter != nil {
		if filter.OwnerUserID != "" {
			q = q.Where("owner_user_id = ?", filter.OwnerUserID)
		}
		if filter.AppID != "" {
			q = q.Where("app_id = ?", filter.AppID)
		}
		if filter.UserRange != nil {
			q = q.Where("user_range = ?", string(*filter.UserRange))
		}
		if filter.ResRange != nil {
			q = q.Where("res_range = ?", string(*filter.ResRange))
		}
		if filter.NameLike != "" {
			q = q.Where("role_name LIKE ?", "%"+filter.NameLike+"%")
		}
		if filter.IDs != nil {
			q = q.Where("id IN (?)", idStrings(filter.IDs))
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("access: list roles: %w", err)
	}
	result := make([]*role.Role, len(models))
	for i := range models {
		result[i] = roleFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountRoles(ctx context.Context, filter *role.ListFilter) (int64, error) {
	var models []roleModel
	q := s.pgdb.NewSelect(&models).Where("status = ?", stEnable)
	if filter != nil {
		if filter.OwnerUserID != "" {
			q = q.Where("owner_user_id = ?", filter.OwnerUserID)
		}
		if filter.AppID != "" {
			q = q.Where("app_id = ?", filter.AppID)
		}
		if filter.UserRange != nil {
			q = q.Where("user_range = ?", string(*filter.UserRange))
		}
		if filter.ResRange != nil {
			q = q.Where("res_range = ?", string(*filter.ResRange))
		}
		if filter.NameLike != "" {
			q = q.Where("role_name LIKE ?", "%"+filter.NameLike+"%")
		}
		if filter.IDs != nil {
			q = q.Where("id IN (?)", idStrings(filter.IDs))
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("access: count roles: %w", err)
	}
	return int64(count), nil
}

func (s *Store) ListSessionRoles(ctx context.Context, ownerUserID string) ([]*role.Role, error) {
	var models []roleModel
	err := s.pgdb.NewSelect(&models).
		Where("owner_user_id = ?", ownerUserID).
		Where("user_range = ?", string(role.UserRangeSession)).
		Where("status = ?", stEnable).
		OrderExpr("priority DESC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("access: list session roles: %w", err)
	}
	result := make([]*role.Role, len(models))
	for i := range models {
		result[i] = roleFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountUsersPerRole(ctx context.Context, roleIDs []id.RoleID, onlyLive bool, now time.Time) ([]role.UserCount, error) {
	if len(roleIDs) == 0 {
		return []role.UserCount{}, nil
	}
	var models []bindingModel
	q := s.pgdb.NewSelect(&models).
		Where("role_id IN (?)", idStrings(roleIDs)).
		Where("status = ?", stEnable)
	if onlyLive {
		q = q.Where("(timeout IS NULL OR timeout > ?)", now)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("access: count users per role: %w", err)
	}
	counts := make(map[string]int64, len(roleIDs))
	for _, m := range models {
		counts[m.RoleID]++
	}
	result := make([]role.UserCount, len(roleIDs))
	for i, rid := range roleIDs {
		result[i] = role.UserCount{RoleID: rid, Count: counts[rid.String()]}
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Binding operations
// ──────────────────────────────────────────────────

func (s *Store) SetRoleUsers(ctx context.Context, roleID id.RoleID, users []binding.UserEntry, changeUserID string) error {
	var current []bindingModel
	err := s.pgdb.NewSelect(&current).
		Where("role_id = ?", roleID.String()).
		Where("status = ?", stEnable).
		Scan(ctx)
	if err != nil {
		return fmt.Errorf("access: load current bindings: %w", err)
	}

	want := make(map[string]binding.UserEntry, len(users))
	for _, u := range users {
		want[u.UserID] = u
	}
	now := time.Now().UTC()
	have := make(map[string]struct{}, len(current))
	var dropIDs []string
	type retime struct {
		id      string
		timeout *time.Time
	}
	var retimes []retime
	for _, m := range current {
		u, keep := want[m.UserID]
		if !keep {
			dropIDs = append(dropIDs, m.ID)
			continue
		}
		have[m.UserID] = struct{}{}
		if !equalTimeout(m.Timeout, u.Timeout) {
			retimes = append(retimes, retime{id: m.ID, timeout: u.Timeout})
		}
	}
	var inserts []bindingModel
	for _, u := range users {
		if _, ok := have[u.UserID]; ok {
			continue
		}
		inserts = append(inserts, *bindingToModel(&binding.Binding{
			ID:           id.NewBindingID(),
			RoleID:       roleID,
			UserID:       u.UserID,
			Timeout:      u.Timeout,
			Status:       status.Enable,
			ChangeUserID: changeUserID,
			ChangeTime:   now,
		}))
	}
	if len(dropIDs) == 0 && len(retimes) == 0 && len(inserts) == 0 {
		return nil
	}

	tx, err := s.pgdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("access: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if len(dropIDs) > 0 {
		_, err = tx.NewUpdate((*bindingModel)(nil)).
			Set("status = ?", stDelete).
			Set("change_user_id = ?", changeUserID).
			Set("change_time = ?", now).
			Where("id IN (?)", dropIDs).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("access: drop bindings: %w", err)
		}
	}
	for _, r := range retimes {
		_, err = tx.NewUpdate((*bindingModel)(nil)).
			Set("timeout = ?", r.timeout).
			Set("change_user_id = ?", changeUserID).
			Set("change_time = ?", now).
			Where("id = ?", r.id).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("access: rewrite binding timeout: %w", err)
		}
	}
	if len(inserts) > 0 {
		if _, err = tx.NewInsert(&inserts).Exec(ctx); err != nil {
			return fmt.Errorf("access: insert bindings: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("access: commit tx: %w", err)
	}
	return nil
}

func (s *Store) ListUsersForRole(ctx context.Context, roleID id.RoleID) ([]*binding.Binding, error) {
	var models []bindingModel
	err := s.pgdb.NewSelect(&models).
		Where("role_id = ?", roleID.String()).
		Where("status = ?", stEnable).
		OrderExpr("user_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("access: list users for role: %w", err)
	}
	result := make([]*binding.Binding, len(models))
	for i := range models {
		result[i] = bindingFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) ListBindingsForUser(ctx context.Context, userID string, now time.Time) ([]*binding.Binding, error) {
	var models []bindingModel
	err := s.pgdb.NewSelect(&models).
		Where("user_id = ?", userID).
		Where("status = ?", stEnable).
		Where("(timeout IS NULL OR timeout > ?)", now).
		OrderExpr("role_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("access: list bindings for user: %w", err)
	}
	result := make([]*binding.Binding, len(models))
	for i := range models {
		result[i] = bindingFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) PurgeExpiredBindings(ctx context.Context, now time.Time, changeUserID string) (int64, error) {
	res, err := s.pgdb.NewUpdate((*bindingModel)(nil)).
		Set("status = ?", stDelete).
		Set("change_user_id = ?", changeUserID).
		Set("change_time = ?", now).
		Where("status = ?", stEnable).
		Where("timeout IS NOT NULL").
		Where("timeout <= ?", now).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("access: purge expired bindings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("access: purge expired bindings: %w", err)
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Permission operations
// ──────────────────────────────────────────────────

func (s *Store) SetRolePerms(ctx context.Context, roleID id.RoleID, entries []permission.Entry, changeUserID string) error {
	var current []permModel
	err := s.pgdb.NewSelect(&current).
		Where("role_id = ?", roleID.String()).
		Where("status = ?", stEnable).
		Scan(ctx)
	if err != nil {
		return fmt.Errorf("access: load current perms: %w", err)
	}

	want := make(map[string]permission.Entry, len(entries))
	for _, e := range entries {
		want[e.ResID.String()+"|"+e.OpID.String()] = e
	}
	now := time.Now().UTC()
	have := make(map[string]struct{}, len(current))
	var dropIDs []string
	for _, m := range current {
		k := m.ResID + "|" + m.OpID
		if _, keep := want[k]; keep {
			have[k] = struct{}{}
		} else {
			dropIDs = append(dropIDs, m.ID)
		}
	}
	var inserts []permModel
	for k, e := range want {
		if _, ok := have[k]; ok {
			continue
		}
		inserts = append(inserts, *permToModel(&permission.Perm{
			ID:           id.NewPermID(),
			RoleID:       roleID,
			ResID:        e.ResID,
			OpID:         e.OpID,
			Status:       status.Enable,
			ChangeUserID: changeUserID,
			ChangeTime:   now,
		}))
	}
	if len(dropIDs) == 0 && len(inserts) == 0 {
		return nil
	}

	tx, err := s.pgdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("access: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if len(dropIDs) > 0 {
		_, err = tx.NewUpdate((*permModel)(nil)).
			Set("status = ?", stDelete).
			Set("change_user_id = ?", changeUserID).
			Set("change_time = ?", now).
			Where("id IN (?)", dropIDs).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("access: drop perms: %w", err)
		}
	}
	if len(inserts) > 0 {
		if _, err = tx.NewInsert(&inserts).Exec(ctx); err != nil {
			return fmt.Errorf("access: insert perms: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("access: commit tx: %w", err)
	}
	return nil
}

func (s *Store) ListPermsForRole(ctx context.Context, roleID id.RoleID) ([]*permission.Perm, error) {
	var models []permModel
	err := s.pgdb.NewSelect(&models).
		Where("role_id = ?", roleID.String()).
		Where("status = ?", stEnable).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("access: list perms for role: %w", err)
	}
	result := make([]*permission.Perm, len(models))
	for i := range models {
		result[i] = permFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) ListPermsForRoles(ctx context.Context, roleIDs []id.RoleID) ([]*permission.Perm, error) {
	if len(roleIDs) == 0 {
		return []*permission.Perm{}, nil
	}
	var models []permModel
	err := s.pgdb.NewSelect(&models).
		Where("role_id IN (?)", idStrings(roleIDs)).
		Where("status = ?", stEnable).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("access: list perms for roles: %w", err)
	}
	result := make([]*permission.Perm, len(models))
	for i := range models {
		result[i] = permFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) ListPermsForResource(ctx context.Context, resID id.ResourceID) ([]*permission.Perm, error) {
	var models []permModel
	err := s.pgdb.NewSelect(&models).
		Where("res_id = ?", resID.String()).
		Where("status = ?", stEnable).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("access: list perms for resource: %w", err)
	}
	result := make([]*permission.Perm, len(models))
	for i := range models {
		result[i] = permFromModel(&models[i])
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Changelog operations
// ──────────────────────────────────────────────────

func (s *Store) CreateChange(ctx context.Context, e *changelog.Entry) error {
	if _, err := s.pgdb.NewInsert(changeToModel(e)).Exec(ctx); err != nil {
		return fmt.Errorf("access: create change: %w", err)
	}
	return nil
}

func (s *Store) GetChange(ctx context.Context, chgID id.ChangeID) (*changelog.Entry, error) {
	m := new(changeModel)
	err := s.pgdb.NewSelect(m).Where("id = ?", chgID.String()).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("change %s: %w", chgID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("access: get change: %w", err)
	}
	return changeFromModel(m), nil
}

func (s *Store) ListChanges(ctx context.Context, filter *changelog.QueryFilter) ([]*changelog.Entry, error) {
	var models []changeModel
	q := s.pgdb.NewSelect(&models).OrderExpr("created_at DESC, id DESC")
	if filter != nil {
		if filter.ActorID != "" {
			q = q.Where("actor_id = ?", filter.ActorID)
		}
		if filter.AppID != "" {
			q = q.Where("app_id = ?", filter.AppID)
		}
		if filter.EntityKind != "" {
			q = q.Where("entity_kind = ?", filter.EntityKind)
		}
		if !filter.EntityID.IsNil() {
			q = q.Where("entity_id = ?", filter.EntityID.String())
		}
		if filter.Action != "" {
			q = q.Where("action = ?", filter.Action)
		}
		if filter.After != nil {
			q = q.Where("created_at > ?", *filter.After)
		}
		if filter.Before != nil {
			q = q.Where("created_at < ?", *filter.Before)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("access: list changes: %w", err)
	}
	result := make([]*changelog.Entry, len(models))
	for i := range models {
		result[i] = changeFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountChanges(ctx context.Context, filter *changelog.QueryFilter) (int64, error) {
	var models []changeModel
	q := s.pgdb.NewSelect(&models)
	if filter != nil {
		if filter.ActorID != "" {
			q = q.Where("actor_id = ?", filter.ActorID)
		}
		if filter.AppID != "" {
			q = q.Where("app_id = ?", filter.AppID)
		}
		if filter.EntityKind != "" {
			q = q.Where("entity_kind = ?", filter.EntityKind)
		}
		if !filter.EntityID.IsNil() {
			q = q.Where("entity_id = ?", filter.EntityID.String())
		}
		if filter.Action != "" {
			q = q.Where("action = ?", filter.Action)
		}
		if filter.After != nil {
			q = q.Where("created_at > ?", *filter.After)
		}
		if filter.Before != nil {
			q = q.Where("created_at < ?", *filter.Before)
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("access: count changes: %w", err)
	}
	return int64(count), nil
}

func (s *Store) PurgeChanges(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.pgdb.NewDelete((*changeModel)(nil)).
		Where("created_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("access: purge changes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("access: purge changes: %w", err)
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func idStrings(ids []id.ID) []string {
	out := make([]string, len(ids))
	for i, v := range ids {
		out[i] = v.String()
	}
	return out
}

func equalTimeout(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
