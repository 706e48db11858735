package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eldtechnologies/huddle/internal/models"
)

// SQLiteDirectory is the embedded room directory, used when no
// DATABASE_URL is configured.
type SQLiteDirectory struct {
	db *sql.DB
}

// NewSQLiteDirectory opens (or creates) the SQLite room directory.
// If dbPath is empty, defaults to "./data/huddle.db".
func NewSQLiteDirectory(ctx context.Context, dbPath string) (*SQLiteDirectory, error) {
	if dbPath == "" {
		dbPath = "./data/huddle.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	d := &SQLiteDirectory{db: db}

	if err := d.initSchema(ctx); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *SQLiteDirectory) initSchema(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS rooms (
			id TEXT PRIMARY KEY,
			is_private INTEGER NOT NULL DEFAULT 0,
			passcode_hash TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			last_active_at TIMESTAMP NOT NULL,
			message_count INTEGER NOT NULL DEFAULT 0
		)
	`)
	return err
}

// Close closes the database handle.
func (d *SQLiteDirectory) Close() {
	d.db.Close()
}

// Ping checks the database connection.
func (d *SQLiteDirectory) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// CreateRoom records a new room.
func (d *SQLiteDirectory) CreateRoom(ctx context.Context, id string, isPrivate bool, passcodeHash string) (*models.RoomInfo, error) {
	now := time.Now().UTC()
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO rooms (id, is_private, passcode_hash, created_at, last_active_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, isPrivate, passcodeHash, now, now)
	if err != nil {
		return nil, err
	}
	return &models.RoomInfo{
		ID:           id,
		IsPrivate:    isPrivate,
		PasscodeHash: passcodeHash,
		CreatedAt:    now,
		LastActiveAt: now,
	}, nil
}

// GetRoom retrieves room metadata by ID. Returns nil when absent.
func (d *SQLiteDirectory) GetRoom(ctx context.Context, id string) (*models.RoomInfo, error) {
	room := &models.RoomInfo{}
	err := d.db.QueryRowContext(ctx, `
		SELECT id, is_private, passcode_hash, created_at, last_active_at, message_count
		FROM rooms WHERE id = ?
	`, id).Scan(
		&room.ID,
		&room.IsPrivate,
		&room.PasscodeHash,
		&room.CreatedAt,
		&room.LastActiveAt,
		&room.MessageCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return room, nil
}

// UpdateRoomActivity bumps a room's last_active_at.
func (d *SQLiteDirectory) UpdateRoomActivity(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE rooms SET last_active_at = ? WHERE id = ?
	`, time.Now().UTC(), id)
	return err
}

// IncrementMessageCount bumps a room's message counter and activity.
func (d *SQLiteDirectory) IncrementMessageCount(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE rooms SET message_count = message_count + 1, last_active_at = ? WHERE id = ?
	`, time.Now().UTC(), id)
	return err
}

// CountRooms returns the total number of rooms ever created.
func (d *SQLiteDirectory) CountRooms(ctx context.Context) (int64, error) {
	var count int64
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&count)
	return count, err
}

// SumMessageCount returns the total messages relayed across all rooms.
func (d *SQLiteDirectory) SumMessageCount(ctx context.Context) (int64, error) {
	var sum int64
	err := d.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(message_count), 0) FROM rooms`).Scan(&sum)
	return sum, err
}
