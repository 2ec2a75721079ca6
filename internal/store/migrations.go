package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id              TEXT PRIMARY KEY,
	type            TEXT NOT NULL,
	title           TEXT NOT NULL DEFAULT '',
	message         TEXT NOT NULL DEFAULT '',
	priority        TEXT NOT NULL DEFAULT 'low',
	timestamp       DATETIME NOT NULL,
	read            INTEGER NOT NULL DEFAULT 0 CHECK(read IN (0, 1)),
	action_url      TEXT NOT NULL DEFAULT '',
	action_label    TEXT NOT NULL DEFAULT '',
	notification_id INTEGER NOT NULL DEFAULT 0,
	booking_id      INTEGER,
	workshop_id     INTEGER,
	raw_type        INTEGER NOT NULL DEFAULT 7
);

CREATE INDEX IF NOT EXISTS idx_notifications_read ON notifications(read);
CREATE INDEX IF NOT EXISTS idx_notifications_timestamp ON notifications(timestamp);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS confirmation_log (
	id              TEXT PRIMARY KEY,
	booking_id      INTEGER NOT NULL,
	notification_id INTEGER NOT NULL DEFAULT 0,
	outcome         TEXT NOT NULL CHECK(outcome IN ('confirmed', 'declined', 'expired', 'closed')),
	detail          TEXT NOT NULL DEFAULT '',
	recorded_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_confirmation_log_booking_id ON confirmation_log(booking_id);
CREATE INDEX IF NOT EXISTS idx_notifications_booking_id ON notifications(booking_id);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
