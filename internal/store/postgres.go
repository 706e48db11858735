package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldtechnologies/huddle/internal/models"
)

// PostgresDirectory is the room directory backed by PostgreSQL.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory creates a directory with a connection pool and
// ensures the schema exists.
func NewPostgresDirectory(ctx context.Context, databaseURL string) (*PostgresDirectory, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	d := &PostgresDirectory{pool: pool}

	if err := d.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return d, nil
}

func (d *PostgresDirectory) initSchema(ctx context.Context) error {
	_, err := d.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS rooms (
			id TEXT PRIMARY KEY,
			is_private BOOLEAN NOT NULL DEFAULT FALSE,
			passcode_hash TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			last_active_at TIMESTAMPTZ NOT NULL,
			message_count BIGINT NOT NULL DEFAULT 0
		)
	`)
	return err
}

// Close closes the connection pool.
func (d *PostgresDirectory) Close() {
	d.pool.Close()
}

// Ping checks the database connection.
func (d *PostgresDirectory) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

// CreateRoom records a new room.
func (d *PostgresDirectory) CreateRoom(ctx context.Context, id string, isPrivate bool, passcodeHash string) (*models.RoomInfo, error) {
	now := time.Now().UTC()
	room := &models.RoomInfo{}
	err := d.pool.QueryRow(ctx, `
		INSERT INTO rooms (id, is_private, passcode_hash, created_at, last_active_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING id, is_private, passcode_hash, created_at, last_active_at, message_count
	`, id, isPrivate, passcodeHash, now).Scan(
		&room.ID,
		&room.IsPrivate,
		&room.PasscodeHash,
		&room.CreatedAt,
		&room.LastActiveAt,
		&room.MessageCount,
	)
	if err != nil {
		return nil, err
	}
	return room, nil
}

// GetRoom retrieves room metadata by ID. Returns nil when absent.
func (d *PostgresDirectory) GetRoom(ctx context.Context, id string) (*models.RoomInfo, error) {
	room := &models.RoomInfo{}
	err := d.pool.QueryRow(ctx, `
		SELECT id, is_private, passcode_hash, created_at, last_active_at, message_count
		FROM rooms WHERE id = $1
	`, id).Scan(
		&room.ID,
		&room.IsPrivate,
		&room.PasscodeHash,
		&room.CreatedAt,
		&room.LastActiveAt,
		&room.MessageCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return room, nil
}

// UpdateRoomActivity bumps a room's last_active_at.
func (d *PostgresDirectory) UpdateRoomActivity(ctx context.Context, id string) error {
	_, err := d.pool.Exec(ctx, `
		UPDATE rooms SET last_active_at = NOW() WHERE id = $1
	`, id)
	return err
}

// IncrementMessageCount bumps a room's message counter and activity.
func (d *PostgresDirectory) IncrementMessageCount(ctx context.Context, id string) error {
	_, err := d.pool.Exec(ctx, `
		UPDATE rooms SET message_count = message_count + 1, last_active_at = NOW() WHERE id = $1
	`, id)
	return err
}

// CountRooms returns the total number of rooms ever created.
func (d *PostgresDirectory) CountRooms(ctx context.Context) (int64, error) {
	var count int64
	err := d.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&count)
	return count, err
}

// SumMessageCount returns the total messages relayed across all rooms.
func (d *PostgresDirectory) SumMessageCount(ctx context.Context) (int64, error) {
	var sum int64
	err := d.pool.QueryRow(ctx, `SELECT COALESCE(SUM(message_count), 0) FROM rooms`).Scan(&sum)
	return sum, err
}
