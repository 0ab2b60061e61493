package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/voltwatch/voltwatch/pkg/types"
)

// ErrNoPoints is returned by LatestPoint when the store holds no matching
// telemetry. Callers use it to distinguish "no data yet" from a store
// failure.
var ErrNoPoints = errors.New("no telemetry points")

// Database defines the interface for persisting and querying telemetry.
type Database interface {
	// InsertPoints persists points in bulk and returns their document IDs
	// in input order. Device summaries are updated as a side effect.
	InsertPoints(ctx context.Context, points []types.TelemetryPoint) ([]string, error)
	// DeletePointsBySource removes every point with the given source and
	// reports how many were deleted.
	DeletePointsBySource(ctx context.Context, source types.Source) (int, error)

	// PointsSince returns points with the given device (optional, empty
	// matches all) at or after since, ascending by timestamp, capped at
	// limit.
	PointsSince(ctx context.Context, since time.Time, deviceID string, limit int) ([]types.TelemetryPoint, error)
	// LatestPoint returns the newest point, optionally filtered by device.
	// Returns ErrNoPoints when the store has none.
	LatestPoint(ctx context.Context, deviceID string) (types.TelemetryPoint, error)
	// CountBySource counts points with the given source at or after since.
	CountBySource(ctx context.Context, since time.Time, source types.Source) (int64, error)
	// ListDevices returns per-device stats, most recently seen first.
	ListDevices(ctx context.Context) ([]types.DeviceStats, error)

	// Lifecycle
	Close() error
}

// Configured sets up the storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "firestore", "Storage provider to use (available: firestore)")

	var p struct{ Database }

	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
