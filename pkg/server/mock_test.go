package server

import (
	"context"
	"math/rand"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/voltwatch/voltwatch/pkg/ingest"
	"github.com/voltwatch/voltwatch/pkg/storage"
	"github.com/voltwatch/voltwatch/pkg/telemetry"
	"github.com/voltwatch/voltwatch/pkg/types"
)

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) InsertPoints(ctx context.Context, points []types.TelemetryPoint) ([]string, error) {
	args := m.Called(ctx, points)
	if len(args) > 0 {
		ids, _ := args.Get(0).([]string)
		return ids, args.Error(1)
	}
	return nil, nil
}

func (m *mockStorage) DeletePointsBySource(ctx context.Context, source types.Source) (int, error) {
	args := m.Called(ctx, source)
	if len(args) > 0 {
		return args.Int(0), args.Error(1)
	}
	return 0, nil
}

func (m *mockStorage) PointsSince(ctx context.Context, since time.Time, deviceID string, limit int) ([]types.TelemetryPoint, error) {
	args := m.Called(ctx, since, deviceID, limit)
	if len(args) > 0 {
		points, _ := args.Get(0).([]types.TelemetryPoint)
		return points, args.Error(1)
	}
	return nil, nil
}

func (m *mockStorage) LatestPoint(ctx context.Context, deviceID string) (types.TelemetryPoint, error) {
	args := m.Called(ctx, deviceID)
	if len(args) > 0 {
		return args.Get(0).(types.TelemetryPoint), args.Error(1)
	}
	return types.TelemetryPoint{}, nil
}

func (m *mockStorage) CountBySource(ctx context.Context, since time.Time, source types.Source) (int64, error) {
	args := m.Called(ctx, since, source)
	if len(args) > 0 {
		return int64(args.Int(0)), args.Error(1)
	}
	return 0, nil
}

func (m *mockStorage) ListDevices(ctx context.Context) ([]types.DeviceStats, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		devices, _ := args.Get(0).([]types.DeviceStats)
		return devices, args.Error(1)
	}
	return nil, nil
}

func (m *mockStorage) Close() error {
	args := m.Called()
	return args.Error(0)
}

// testNow is midday UTC so the demo generator produces nonzero output at
// the end of the series.
var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

// newTestServer builds a Server with deterministic time and demo data and
// auth bypassed. Individual tests adjust fields as needed.
func newTestServer(s storage.Database) *Server {
	gen := telemetry.NewGenerator(telemetry.SmallPanelProfile(), rand.New(rand.NewSource(1)))
	now := func() time.Time { return testNow }
	return &Server{
		storage:    s,
		generator:  gen,
		demoCache:  telemetry.NewCache(gen, now),
		limiter:    ingest.NewLimiter(ingest.DefaultWindow, ingest.DefaultMaxRequests, now),
		now:        now,
		bypassAuth: true,
		ingestKey:  "test-ingest-key",
		serverName: "voltwatch-test",
	}
}
