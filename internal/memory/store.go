// Package memory holds the reminder stores: an in-process map for single
// runs and a durable SQLite store.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"healthbot/internal/domain"
)

// SQLiteStore implements domain.ReminderStore using SQLite. The single
// connection serializes all writes, which also serializes per-sender mutations.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Set connection pool (single connection for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Add(ctx context.Context, r domain.Reminder) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if r.Channel == "" {
		r.Channel = domain.ChannelWhatsApp
	}
	if r.Language == "" {
		r.Language = domain.DefaultLanguage
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders (id, sender_id, channel, language, task, at_ms, created_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SenderID, string(r.Channel), r.Language, r.Task, r.At.UnixMilli(), r.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert reminder: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, senderID string) ([]domain.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender_id, channel, language, task, at_ms, created_ms, notified_ms
		 FROM reminders WHERE sender_id = ? ORDER BY seq ASC`, senderID)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	return scanReminders(rows)
}

func (s *SQLiteStore) Due(ctx context.Context, now time.Time) ([]domain.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender_id, channel, language, task, at_ms, created_ms, notified_ms
		 FROM reminders WHERE notified_ms IS NULL AND at_ms <= ? ORDER BY at_ms ASC, seq ASC`,
		now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("due reminders: %w", err)
	}
	return scanReminders(rows)
}

func (s *SQLiteStore) MarkNotified(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET notified_ms = ? WHERE id = ?`, at.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("mark reminder notified: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE at_ms < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune reminders: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func scanReminders(rows *sql.Rows) ([]domain.Reminder, error) {
	defer rows.Close()
	out := []domain.Reminder{}
	for rows.Next() {
		var (
			r               domain.Reminder
			channel         string
			atMS, createdMS int64
			notifiedMS      sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.SenderID, &channel, &r.Language, &r.Task, &atMS, &createdMS, &notifiedMS); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		r.Channel = domain.Channel(channel)
		r.At = time.UnixMilli(atMS)
		r.CreatedAt = time.UnixMilli(createdMS)
		if notifiedMS.Valid {
			r.NotifiedAt = time.UnixMilli(notifiedMS.Int64)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SchemaVersion reports the applied schema version of the open database.
func (s *SQLiteStore) SchemaVersion(_ context.Context) (int, error) {
	return GetSchemaVersion(s.db)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
