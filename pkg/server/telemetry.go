package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/voltwatch/voltwatch/pkg/log"
	"github.com/voltwatch/voltwatch/pkg/metrics"
	"github.com/voltwatch/voltwatch/pkg/storage"
	"github.com/voltwatch/voltwatch/pkg/telemetry"
	"github.com/voltwatch/voltwatch/pkg/types"
)

const (
	// liveWindow is how far back the live endpoint reads.
	liveWindow = 10 * time.Minute
	// historyWindow is the candidate window for hourly aggregation.
	historyWindow = 24 * time.Hour
	// liveLimit caps one live response.
	liveLimit = 1000
	// hourlyBatch is the page size when scanning the 24h window.
	hourlyBatch = 5000
)

type pointsResponse struct {
	Points   []types.TelemetryPoint `json:"points"`
	Source   types.Source           `json:"source"`
	Count    int                    `json:"count"`
	DeviceID string                 `json:"deviceID,omitempty"`
}

type hourlyResponse struct {
	Points []types.HourlyPoint `json:"points"`
	Source types.Source        `json:"source"`
	Count  int                 `json:"count"`
}

type devicesResponse struct {
	Devices []types.DeviceStats `json:"devices"`
	Count   int                 `json:"count"`
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deviceID := r.URL.Query().Get("deviceID")

	point, err := s.storage.LatestPoint(ctx, deviceID)
	if errors.Is(err, storage.ErrNoPoints) {
		msg := "No data available. Connect hardware or seed demo data."
		if deviceID != "" {
			msg = "No data for device " + deviceID + ". Connect hardware or select a different device."
		}
		writeJSONError(w, msg, http.StatusNotFound)
		return
	}
	if err != nil {
		// store unreachable: serve the newest demo sample instead
		log.Ctx(ctx).WarnContext(ctx, "latest point lookup failed, serving demo data", slog.Any("error", err))
		metrics.DemoFallback("latest")
		series := s.demoCache.GetOrCreate()
		writeJSON(w, series[len(series)-1])
		return
	}

	if point.Source == "" || point.Source == types.SourceDemo {
		point.Source = types.SourceStored
	}
	writeJSON(w, point)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deviceID := r.URL.Query().Get("deviceID")
	since := s.now().Add(-liveWindow)

	points, err := s.storage.PointsSince(ctx, since, deviceID, liveLimit)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "live points lookup failed, serving demo data", slog.Any("error", err))
		metrics.DemoFallback("live")
		series := s.demoCache.GetOrCreate()
		// fine-resolution tail relative to the series end, since the cache
		// may have been generated a while ago
		tail := telemetry.Since(series, series[len(series)-1].TS.Add(-liveWindow))
		// report the demo device, not whichever device was asked for
		writeJSON(w, pointsResponse{Points: tail, Source: types.SourceDemo, Count: len(tail), DeviceID: types.DemoDeviceID})
		return
	}

	source := types.SourceStored
	for _, p := range points {
		if p.Source == types.SourceHardware {
			source = types.SourceHardware
			break
		}
	}
	if points == nil {
		points = []types.TelemetryPoint{}
	}
	writeJSON(w, pointsResponse{Points: points, Source: source, Count: len(points), DeviceID: deviceID})
}

func (s *Server) handleHourly(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := s.now().Add(-historyWindow)

	points, err := s.pointsSinceAll(ctx, start)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "hourly points lookup failed, serving demo data", slog.Any("error", err))
		metrics.DemoFallback("hourly")
		// the cache may predate the window, so trim it like the stored path
		rows := telemetry.HourlyAverages(telemetry.Since(s.demoCache.GetOrCreate(), start))
		writeJSON(w, hourlyResponse{Points: rows, Source: types.SourceDemo, Count: len(rows)})
		return
	}

	source := types.SourceStored
	hardwareCount, err := s.storage.CountBySource(ctx, start, types.SourceHardware)
	if err != nil {
		// non-fatal: the rows are still valid, only the tag is best-effort
		log.Ctx(ctx).WarnContext(ctx, "hardware count failed", slog.Any("error", err))
	} else if hardwareCount > 0 {
		source = types.SourceHardware
	}

	rows := telemetry.HourlyAverages(points)
	writeJSON(w, hourlyResponse{Points: rows, Source: source, Count: len(rows)})
}

// pointsSinceAll pages through PointsSince until the window is exhausted,
// so a device posting at the full admitted rate cannot push the newest
// hours past a single query's limit. The cursor re-fetches its own
// timestamp on each page; the store orders equal timestamps stably, so the
// already-collected head is skipped by count.
func (s *Server) pointsSinceAll(ctx context.Context, since time.Time) ([]types.TelemetryPoint, error) {
	var points []types.TelemetryPoint
	cursor := since
	seenAtCursor := 0
	for {
		batch, err := s.storage.PointsSince(ctx, cursor, "", hourlyBatch)
		if err != nil {
			return nil, err
		}
		full := len(batch) == hourlyBatch
		if seenAtCursor > 0 {
			skip := 0
			for skip < len(batch) && skip < seenAtCursor && batch[skip].TS.Equal(cursor) {
				skip++
			}
			batch = batch[skip:]
		}
		if len(batch) == 0 {
			// nothing new on a full page means every row shares the cursor
			// timestamp and was already collected
			return points, nil
		}
		points = append(points, batch...)

		last := batch[len(batch)-1].TS
		n := 0
		for i := len(batch) - 1; i >= 0 && batch[i].TS.Equal(last); i-- {
			n++
		}
		if last.Equal(cursor) {
			seenAtCursor += n
		} else {
			cursor, seenAtCursor = last, n
		}
		if !full {
			return points, nil
		}
	}
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	devices, err := s.storage.ListDevices(ctx)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "device listing failed, serving demo device", slog.Any("error", err))
		metrics.DemoFallback("devices")
		series := s.demoCache.GetOrCreate()
		devices = []types.DeviceStats{{
			DeviceID:   types.DemoDeviceID,
			LastSeen:   series[len(series)-1].TS,
			Source:     types.SourceDemo,
			DataPoints: int64(len(series)),
		}}
	}
	if devices == nil {
		devices = []types.DeviceStats{}
	}
	writeJSON(w, devicesResponse{Devices: devices, Count: len(devices)})
}
