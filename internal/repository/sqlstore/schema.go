package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/travel-notifications/internal/config"
)

// ChangeChannel is the LISTEN/NOTIFY channel the postgres triggers write to.
const ChangeChannel = "table_changes"

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	email TEXT,
	role TEXT NOT NULL DEFAULT 'user',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS notifications (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL,
	user_email TEXT,
	title TEXT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	importance TEXT NOT NULL DEFAULT 'normal',
	link TEXT,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS applications (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id UUID,
	user_email TEXT,
	tracking_id TEXT,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS appointments (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id UUID,
	user_email TEXT,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS payments (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id UUID,
	user_email TEXT,
	amount NUMERIC(12, 2),
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE OR REPLACE FUNCTION notify_row_summary(r jsonb) RETURNS jsonb AS $$
	SELECT CASE WHEN r IS NULL THEN NULL ELSE
		(r - 'metadata' - 'message') || jsonb_build_object('metadata', COALESCE((
			SELECT jsonb_object_agg(key, value)
			FROM jsonb_each(CASE WHEN jsonb_typeof(r->'metadata') = 'object' THEN r->'metadata' ELSE '{}'::jsonb END)
			WHERE key LIKE '%\_id' OR key IN ('seen', 'type', 'category', 'email', 'user_email', 'payer_email')
		), '{}'::jsonb))
	END
$$ LANGUAGE sql IMMUTABLE;

-- pg_notify rejects payloads of 8000 bytes or more. Oversized rows are sent
-- as a summary, and a failed notify never aborts the source write.
CREATE OR REPLACE FUNCTION notify_table_change() RETURNS trigger AS $$
DECLARE
	new_row jsonb := CASE WHEN TG_OP = 'DELETE' THEN NULL ELSE to_jsonb(NEW) END;
	old_row jsonb := CASE WHEN TG_OP = 'INSERT' THEN NULL ELSE to_jsonb(OLD) END;
	payload text;
BEGIN
	payload := jsonb_build_object('type', TG_OP, 'table', TG_TABLE_NAME, 'new', new_row, 'old', old_row)::text;
	IF octet_length(payload) >= 7900 THEN
		payload := jsonb_build_object('type', TG_OP, 'table', TG_TABLE_NAME,
			'new', notify_row_summary(new_row), 'old', notify_row_summary(old_row))::text;
	END IF;
	IF octet_length(payload) < 7900 THEN
		PERFORM pg_notify('table_changes', payload);
	ELSE
		RAISE WARNING 'notify_table_change: % row on % too large to notify', TG_OP, TG_TABLE_NAME;
	END IF;
	RETURN NULL;
EXCEPTION WHEN others THEN
	RAISE WARNING 'notify_table_change: %', SQLERRM;
	RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS notifications_changes ON notifications;
CREATE TRIGGER notifications_changes AFTER INSERT OR UPDATE OR DELETE ON notifications
	FOR EACH ROW EXECUTE FUNCTION notify_table_change();

DROP TRIGGER IF EXISTS applications_changes ON applications;
CREATE TRIGGER applications_changes AFTER INSERT ON applications
	FOR EACH ROW EXECUTE FUNCTION notify_table_change();

DROP TRIGGER IF EXISTS appointments_changes ON appointments;
CREATE TRIGGER appointments_changes AFTER INSERT ON appointments
	FOR EACH ROW EXECUTE FUNCTION notify_table_change();

DROP TRIGGER IF EXISTS payments_changes ON payments;
CREATE TRIGGER payments_changes AFTER INSERT ON payments
	FOR EACH ROW EXECUTE FUNCTION notify_table_change();
`

// sqlite has no LISTEN/NOTIFY; embedded deployments publish changes from the
// repository decorator instead.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT,
	role TEXT NOT NULL DEFAULT 'user',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS notifications (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	user_email TEXT,
	title TEXT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	importance TEXT NOT NULL DEFAULT 'normal',
	link TEXT,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications (user_id, created_at DESC);
`

// Migrate creates the tables the service reads and writes.
func Migrate(ctx context.Context, db *sqlx.DB, driver string) error {
	var schema string
	switch driver {
	case config.DriverPostgres, "":
		schema = postgresSchema
	case config.DriverSQLite:
		schema = sqliteSchema
	default:
		return fmt.Errorf("no schema for driver %q", driver)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate %s schema: %w", driver, err)
	}
	return nil
}
