package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/autohub/internal/model"
)

// SQLiteStore implements the History interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ History = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// SaveNotification inserts or replaces a notification record.
func (s *SQLiteStore) SaveNotification(ctx context.Context, n model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO notifications (
			id, type, title, message, priority,
			timestamp, read, action_url, action_label,
			notification_id, booking_id, workshop_id, raw_type
		) VALUES (
			?, ?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?, ?
		)`,
		n.ID, string(n.Type), n.Title, n.Message, string(n.Priority),
		n.Timestamp.UTC(), boolToInt(n.Read), n.ActionURL, n.ActionLabel,
		n.Data.NotificationID, nullInt(n.Data.BookingID), nullInt(n.Data.WorkshopID), int(n.Data.RawType),
	)
	if err != nil {
		return fmt.Errorf("saving notification %s: %w", n.ID, err)
	}

	return nil
}

// RecentNotifications returns up to limit notifications, newest first.
func (s *SQLiteStore) RecentNotifications(ctx context.Context, limit int) ([]model.Notification, error) {
	query := `
		SELECT id, type, title, message, priority,
			timestamp, read, action_url, action_label,
			notification_id, booking_id, workshop_id, raw_type
		FROM notifications ORDER BY timestamp DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

// MarkNotificationRead marks a single notification as read.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = 1 WHERE id = ?", id,
	)
	if err != nil {
		return fmt.Errorf("marking notification %s as read: %w", id, err)
	}
	return nil
}

// MarkAllNotificationsRead marks every stored notification as read.
func (s *SQLiteStore) MarkAllNotificationsRead(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE notifications SET read = 1 WHERE read = 0"); err != nil {
		return fmt.Errorf("marking all notifications as read: %w", err)
	}
	return nil
}

// DeleteNotification removes a notification by ID. Deleting an unknown ID is
// not an error.
func (s *SQLiteStore) DeleteNotification(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM notifications WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting notification %s: %w", id, err)
	}
	return nil
}

// ClearNotifications removes every stored notification.
func (s *SQLiteStore) ClearNotifications(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM notifications"); err != nil {
		return fmt.Errorf("clearing notifications: %w", err)
	}
	return nil
}

// PruneNotifications keeps only the newest keep notifications.
func (s *SQLiteStore) PruneNotifications(ctx context.Context, keep int) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM notifications WHERE id NOT IN (
			SELECT id FROM notifications ORDER BY timestamp DESC LIMIT ?
		)`, keep)
	if err != nil {
		return fmt.Errorf("pruning notifications to %d: %w", keep, err)
	}
	return nil
}

// LogConfirmation appends a confirmation outcome. If the record has no ID,
// a new UUID is generated.
func (s *SQLiteStore) LogConfirmation(ctx context.Context, rec ConfirmationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO confirmation_log (id, booking_id, notification_id, outcome, detail, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.BookingID, rec.NotificationID, rec.Outcome, rec.Detail, rec.RecordedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("logging confirmation for booking %d: %w", rec.BookingID, err)
	}
	return nil
}

// ConfirmationHistory returns up to limit confirmation outcomes, newest first.
func (s *SQLiteStore) ConfirmationHistory(ctx context.Context, limit int) ([]ConfirmationRecord, error) {
	query := `
		SELECT id, booking_id, notification_id, outcome, detail, recorded_at
		FROM confirmation_log ORDER BY recorded_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying confirmation log: %w", err)
	}
	defer rows.Close()

	var records []ConfirmationRecord
	for rows.Next() {
		var rec ConfirmationRecord
		err := rows.Scan(
			&rec.ID, &rec.BookingID, &rec.NotificationID,
			&rec.Outcome, &rec.Detail, &rec.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning confirmation row: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// scanNotification scans a notification row from a sqlx.Rows result set.
func scanNotification(rows *sqlx.Rows) (model.Notification, error) {
	var (
		n          model.Notification
		category   string
		priority   string
		readInt    int
		bookingID  sql.NullInt64
		workshopID sql.NullInt64
		rawType    int
		timestamp  time.Time
	)

	err := rows.Scan(
		&n.ID, &category, &n.Title, &n.Message, &priority,
		&timestamp, &readInt, &n.ActionURL, &n.ActionLabel,
		&n.Data.NotificationID, &bookingID, &workshopID, &rawType,
	)
	if err != nil {
		return model.Notification{}, fmt.Errorf("scanning notification row: %w", err)
	}

	n.Type = model.Category(category)
	n.Priority = model.Priority(priority)
	n.Timestamp = timestamp
	n.Read = readInt != 0
	n.Data.BookingID = intPtr(bookingID)
	n.Data.WorkshopID = intPtr(workshopID)
	n.Data.RawType = model.RawType(rawType)

	return n, nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
