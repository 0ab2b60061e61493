package storagemock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/voltwatch/voltwatch/pkg/storage"
	"github.com/voltwatch/voltwatch/pkg/types"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) InsertPoints(ctx context.Context, points []types.TelemetryPoint) ([]string, error) {
	args := m.Called(ctx, points)
	if len(args) > 0 {
		ids, _ := args.Get(0).([]string)
		return ids, args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) DeletePointsBySource(ctx context.Context, source types.Source) (int, error) {
	args := m.Called(ctx, source)
	if len(args) > 0 {
		return args.Int(0), args.Error(1)
	}
	return 0, nil
}

func (m *MockDatabase) PointsSince(ctx context.Context, since time.Time, deviceID string, limit int) ([]types.TelemetryPoint, error) {
	args := m.Called(ctx, since, deviceID, limit)
	if len(args) > 0 {
		points, _ := args.Get(0).([]types.TelemetryPoint)
		return points, args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) LatestPoint(ctx context.Context, deviceID string) (types.TelemetryPoint, error) {
	args := m.Called(ctx, deviceID)
	if len(args) > 0 {
		return args.Get(0).(types.TelemetryPoint), args.Error(1)
	}
	return types.TelemetryPoint{}, nil
}

func (m *MockDatabase) CountBySource(ctx context.Context, since time.Time, source types.Source) (int64, error) {
	args := m.Called(ctx, since, source)
	if len(args) > 0 {
		return int64(args.Int(0)), args.Error(1)
	}
	return 0, nil
}

func (m *MockDatabase) ListDevices(ctx context.Context) ([]types.DeviceStats, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		devices, _ := args.Get(0).([]types.DeviceStats)
		return devices, args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
