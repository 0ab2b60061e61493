package telemetry

import (
	"sort"
	"time"

	"github.com/voltwatch/voltwatch/pkg/types"
)

type hourKey struct {
	year  int
	month time.Month
	day   int
	hour  int
}

type hourBucket struct {
	sumVoltage float64
	sumCurrent float64
	sumPower   float64
	count      int
	lastTS     time.Time
}

// HourlyAverages collapses samples into one row per calendar hour (using
// each sample's own wall-clock year/month/day/hour, not elapsed-hour
// buckets). Each row carries the arithmetic mean of voltage, current and
// power rounded to 2 decimals, and the timestamp of the last sample seen
// in that hour. Rows are sorted ascending by that timestamp. Empty input
// yields empty output.
func HourlyAverages(points []types.TelemetryPoint) []types.HourlyPoint {
	buckets := make(map[hourKey]*hourBucket)
	for _, p := range points {
		year, month, day := p.TS.Date()
		key := hourKey{year, month, day, p.TS.Hour()}
		b, ok := buckets[key]
		if !ok {
			b = &hourBucket{}
			buckets[key] = b
		}
		b.sumVoltage += p.Voltage
		b.sumCurrent += p.Current
		b.sumPower += p.Power
		b.count++
		if p.TS.After(b.lastTS) {
			b.lastTS = p.TS
		}
	}

	rows := make([]types.HourlyPoint, 0, len(buckets))
	for _, b := range buckets {
		n := float64(b.count)
		rows = append(rows, types.HourlyPoint{
			TS:      b.lastTS,
			Voltage: types.Round2(b.sumVoltage / n),
			Current: types.Round2(b.sumCurrent / n),
			Power:   types.Round2(b.sumPower / n),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].TS.Before(rows[j].TS)
	})
	return rows
}

// Since filters points to those with timestamps at or after start,
// preserving order. Handlers use it to apply the 24h candidate window
// before aggregating.
func Since(points []types.TelemetryPoint, start time.Time) []types.TelemetryPoint {
	out := make([]types.TelemetryPoint, 0, len(points))
	for _, p := range points {
		if !p.TS.Before(start) {
			out = append(out, p)
		}
	}
	return out
}
