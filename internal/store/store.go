package store

import (
	"context"

	"github.com/eldtechnologies/huddle/internal/models"
)

// RoomDirectory defines the interface for durable room metadata.
// Both PostgresDirectory and SQLiteDirectory implement this interface.
// Live room state (members, history, keys) is owned by the room store.
type RoomDirectory interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Room operations
	CreateRoom(ctx context.Context, id string, isPrivate bool, passcodeHash string) (*models.RoomInfo, error)
	GetRoom(ctx context.Context, id string) (*models.RoomInfo, error)
	UpdateRoomActivity(ctx context.Context, id string) error
	IncrementMessageCount(ctx context.Context, id string) error
	CountRooms(ctx context.Context) (int64, error)
	SumMessageCount(ctx context.Context) (int64, error)
}
