package store

import (
	"context"
	"time"

	"github.com/eldtechnologies/huddle/internal/metrics"
	"github.com/eldtechnologies/huddle/internal/models"
)

// instrumentedDirectory wraps a RoomDirectory and reports query latency.
type instrumentedDirectory struct {
	next RoomDirectory
}

// WithMetrics decorates a directory so every query observes
// DirectoryLatency.
func WithMetrics(next RoomDirectory) RoomDirectory {
	return &instrumentedDirectory{next: next}
}

func observe(start time.Time) {
	metrics.DirectoryLatency.Observe(time.Since(start).Seconds())
}

func (d *instrumentedDirectory) Close() {
	d.next.Close()
}

func (d *instrumentedDirectory) Ping(ctx context.Context) error {
	defer observe(time.Now())
	return d.next.Ping(ctx)
}

func (d *instrumentedDirectory) CreateRoom(ctx context.Context, id string, isPrivate bool, passcodeHash string) (*models.RoomInfo, error) {
	defer observe(time.Now())
	return d.next.CreateRoom(ctx, id, isPrivate, passcodeHash)
}

func (d *instrumentedDirectory) GetRoom(ctx context.Context, id string) (*models.RoomInfo, error) {
	defer observe(time.Now())
	return d.next.GetRoom(ctx, id)
}

func (d *instrumentedDirectory) UpdateRoomActivity(ctx context.Context, id string) error {
	defer observe(time.Now())
	return d.next.UpdateRoomActivity(ctx, id)
}

func (d *instrumentedDirectory) IncrementMessageCount(ctx context.Context, id string) error {
	defer observe(time.Now())
	return d.next.IncrementMessageCount(ctx, id)
}

func (d *instrumentedDirectory) CountRooms(ctx context.Context) (int64, error) {
	defer observe(time.Now())
	return d.next.CountRooms(ctx)
}

func (d *instrumentedDirectory) SumMessageCount(ctx context.Context) (int64, error) {
	defer observe(time.Now())
	return d.next.SumMessageCount(ctx)
}
