package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the access store (PostgreSQL).
var Migrations = migrate.NewGroup("access")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_resources",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS access_resources (
    id              TEXT PRIMARY KEY,
    owner_user_id   TEXT NOT NULL DEFAULT '',
    app_id          TEXT NOT NULL DEFAULT '',
    res_type        TEXT NOT NULL,
    res_data        TEXT NOT NULL,
    res_name        TEXT NOT NULL,
    status          TEXT NOT NULL DEFAULT 'enable',
    change_user_id  TEXT NOT NULL DEFAULT '',
    change_time     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_access_resources_identity
    ON access_resources (owner_user_id, app_id, res_type, res_data) WHERE status = 'enable';
CREATE INDEX IF NOT EXISTS idx_access_resources_owner ON access_resources (owner_user_id, status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS access_resources`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_operations",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS access_operations (
    id              TEXT PRIMARY KEY,
    owner_user_id   TEXT NOT NULL DEFAULT '',
    app_id          TEXT NOT NULL DEFAULT '',
    op_key          TEXT NOT NULL,
    op_name         TEXT NOT NULL,
    status          TEXT NOT NULL DEFAULT 'enable',
    change_user_id  TEXT NOT NULL DEFAULT '',
    change_time     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_access_operations_identity
    ON access_operations (owner_user_id, app_id, op_key) WHERE status = 'enable';

CREATE TABLE IF NOT EXISTS access_op_res_links (
    id              TEXT PRIMARY KEY,
    op_id           TEXT NOT NULL,
    res_type        TEXT NOT NULL,
    owner_user_id   TEXT NOT NULL DEFAULT '',
    app_id          TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'enable',
    change_user_id  TEXT NOT NULL DEFAULT '',
    change_time     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_access_op_res_links_op ON access_op_res_links (op_id, status);
CREATE INDEX IF NOT EXISTS idx_access_op_res_links_type
    ON access_op_res_links (owner_user_id, app_id, res_type, status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS access_op_res_links;
DROP TABLE IF EXISTS access_operations;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tags",
			Version: "20250101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS access_tags (
    id              TEXT PRIMARY KEY,
    from_id         TEXT NOT NULL,
    from_source     TEXT NOT NULL,
    name            TEXT NOT NULL,
    owner_user_id   TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'enable',
    change_user_id  TEXT NOT NULL DEFAULT '',
    change_time     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_access_tags_from ON access_tags (from_id, from_source, status);
CREATE INDEX IF NOT EXISTS idx_access_tags_name ON access_tags (owner_user_id, from_source, name, status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS access_tags`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_roles",
			Version: "20250101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS access_roles (
    id              TEXT PRIMARY KEY,
    owner_user_id   TEXT NOT NULL DEFAULT '',
    app_id          TEXT NOT NULL DEFAULT '',
    role_key        TEXT NOT NULL DEFAULT '',
    role_name       TEXT NOT NULL,
    user_range      TEXT NOT NULL,
    res_range       TEXT NOT NULL,
    priority        INTEGER NOT NULL DEFAULT 0,
    status          TEXT NOT NULL DEFAULT 'enable',
    change_user_id  TEXT NOT NULL DEFAULT '',
    change_time     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_access_roles_owner_name
    ON access_roles (owner_user_id, role_name) WHERE status = 'enable';
CREATE INDEX IF NOT EXISTS idx_access_roles_owner_key
    ON access_roles (owner_user_id, role_key) WHERE status = 'enable';
CREATE INDEX IF NOT EXISTS idx_access_roles_session
    ON access_roles (owner_user_id, user_range, priority DESC) WHERE status = 'enable';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS access_roles`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_role_users",
			Version: "20250101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS access_role_users (
    id              TEXT PRIMARY KEY,
    role_id         TEXT NOT NULL,
    user_id         TEXT NOT NULL,
    timeout         TIMESTAMPTZ,
    status          TEXT NOT NULL DEFAULT 'enable',
    change_user_id  TEXT NOT NULL DEFAULT '',
    change_time     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_access_role_users_role ON access_role_users (role_id, status);
CREATE INDEX IF NOT EXISTS idx_access_role_users_user ON access_role_users (user_id, status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS access_role_users`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_role_perms",
			Version: "20250101000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS access_role_perms (
    id              TEXT PRIMARY KEY,
    role_id         TEXT NOT NULL,
    res_id          TEXT NOT NULL,
    op_id           TEXT NOT NULL,
    status          TEXT NOT NULL DEFAULT 'enable',
    change_user_id  TEXT NOT NULL DEFAULT '',
    change_time     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_access_role_perms_role ON access_role_perms (role_id, status);
CREATE INDEX IF NOT EXISTS idx_access_role_perms_res ON access_role_perms (res_id, status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS access_role_perms`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_changes",
			Version: "20250101000007",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS access_changes (
    id              TEXT PRIMARY KEY,
    action          TEXT NOT NULL,
    actor_id        TEXT NOT NULL DEFAULT '',
    app_id          TEXT NOT NULL DEFAULT '',
    entity_kind     TEXT NOT NULL,
    entity_id       TEXT NOT NULL DEFAULT '',
    before_state    TEXT NOT NULL DEFAULT '',
    after_state     TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_access_changes_entity ON access_changes (entity_kind, entity_id);
CREATE INDEX IF NOT EXISTS idx_access_changes_created ON access_changes (created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS access_changes`)
				return err
			},
		},
	)
}
