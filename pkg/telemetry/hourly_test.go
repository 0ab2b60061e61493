package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voltwatch/voltwatch/pkg/types"
)

func TestHourlyAverages(t *testing.T) {
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	t.Run("Empty Input", func(t *testing.T) {
		assert.Empty(t, HourlyAverages(nil))
		assert.Empty(t, HourlyAverages([]types.TelemetryPoint{}))
	})

	t.Run("Single Sample Reports Exact Values", func(t *testing.T) {
		rows := HourlyAverages([]types.TelemetryPoint{
			{TS: base.Add(17 * time.Minute), Voltage: 5.51, Current: 1.23, Power: 6.78},
		})
		require.Len(t, rows, 1)
		assert.Equal(t, base.Add(17*time.Minute), rows[0].TS)
		assert.Equal(t, 5.51, rows[0].Voltage)
		assert.Equal(t, 1.23, rows[0].Current)
		assert.Equal(t, 6.78, rows[0].Power)
	})

	t.Run("Buckets By Calendar Hour", func(t *testing.T) {
		points := []types.TelemetryPoint{
			{TS: base.Add(5 * time.Minute), Voltage: 4, Current: 1, Power: 4},
			{TS: base.Add(45 * time.Minute), Voltage: 6, Current: 3, Power: 12},
			{TS: base.Add(70 * time.Minute), Voltage: 10, Current: 2, Power: 20},
			// Same hour-of-day on the next calendar day is a separate bucket.
			{TS: base.Add(24 * time.Hour), Voltage: 1, Current: 1, Power: 1},
		}
		rows := HourlyAverages(points)
		require.Len(t, rows, 3)

		// First bucket averages the two 10:xx samples and is tagged with
		// the last sample's timestamp, not the hour boundary.
		assert.Equal(t, base.Add(45*time.Minute), rows[0].TS)
		assert.Equal(t, 5.0, rows[0].Voltage)
		assert.Equal(t, 2.0, rows[0].Current)
		assert.Equal(t, 8.0, rows[0].Power)

		assert.Equal(t, base.Add(70*time.Minute), rows[1].TS)
		assert.Equal(t, base.Add(24*time.Hour), rows[2].TS)
	})

	t.Run("Idempotent", func(t *testing.T) {
		points := []types.TelemetryPoint{
			{TS: base, Voltage: 5, Current: 1, Power: 5},
			{TS: base.Add(30 * time.Minute), Voltage: 6, Current: 2, Power: 12},
			{TS: base.Add(90 * time.Minute), Voltage: 7, Current: 1, Power: 7},
		}
		first := HourlyAverages(points)
		second := HourlyAverages(points)
		assert.Equal(t, first, second)
	})

	t.Run("Bucket Count Matches Distinct Hours", func(t *testing.T) {
		var points []types.TelemetryPoint
		for i := 0; i < 180; i++ {
			points = append(points, types.TelemetryPoint{
				TS: base.Add(time.Duration(i) * time.Minute), Voltage: 5, Current: 1, Power: 5,
			})
		}
		// 180 minutes starting on an hour boundary span exactly 3 hours.
		assert.Len(t, HourlyAverages(points), 3)
	})

	t.Run("Rounded To Two Decimals", func(t *testing.T) {
		rows := HourlyAverages([]types.TelemetryPoint{
			{TS: base, Voltage: 1, Current: 1, Power: 1},
			{TS: base.Add(time.Minute), Voltage: 2, Current: 2, Power: 2},
			{TS: base.Add(2 * time.Minute), Voltage: 2, Current: 2, Power: 2},
		})
		require.Len(t, rows, 1)
		assert.Equal(t, 1.67, rows[0].Voltage)
	})
}

func TestSince(t *testing.T) {
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	points := []types.TelemetryPoint{
		{TS: base.Add(-time.Hour)},
		{TS: base},
		{TS: base.Add(time.Hour)},
	}
	got := Since(points, base)
	require.Len(t, got, 2)
	assert.Equal(t, base, got[0].TS)
	assert.Empty(t, Since(nil, base))
}
