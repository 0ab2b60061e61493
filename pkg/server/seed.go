package server

import (
	"log/slog"
	"net/http"

	"github.com/voltwatch/voltwatch/pkg/log"
	"github.com/voltwatch/voltwatch/pkg/metrics"
	"github.com/voltwatch/voltwatch/pkg/types"
)

type seedResponse struct {
	OK       bool         `json:"ok"`
	Inserted int          `json:"inserted"`
	Source   types.Source `json:"source"`
}

// handleSeed regenerates the demo series and replaces the stored demo
// data. Only demo-sourced points are purged; hardware points always
// survive a reseed. If the store write fails the in-memory cache is reset
// instead, so the dashboard still has data to show.
func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	points := s.generator.Generate(s.now())

	deleted, err := s.storage.DeletePointsBySource(ctx, types.SourceDemo)
	if err == nil {
		_, err = s.storage.InsertPoints(ctx, points)
	}
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "store seed failed, resetting in-memory demo series", slog.Any("error", err))
		metrics.SeedRun("memory")
		series := s.demoCache.Reset()
		writeJSON(w, seedResponse{OK: true, Inserted: len(series), Source: types.SourceDemo})
		return
	}

	metrics.SeedRun("store")
	log.Ctx(ctx).InfoContext(ctx, "demo telemetry seeded",
		slog.Int("deleted", deleted),
		slog.Int("inserted", len(points)),
	)
	writeJSON(w, seedResponse{OK: true, Inserted: len(points), Source: types.SourceStored})
}
