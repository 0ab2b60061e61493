package server

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/voltwatch/voltwatch/pkg/ingest"
	"github.com/voltwatch/voltwatch/pkg/log"
	"github.com/voltwatch/voltwatch/pkg/metrics"
	"github.com/voltwatch/voltwatch/pkg/types"
)

const ingestAPIKeyHeader = "X-API-Key"

type ingestErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

type ingestSuccessResponse struct {
	Success bool             `json:"success"`
	Data    ingestResultData `json:"data"`
}

type ingestResultData struct {
	ID       string  `json:"id"`
	TS       string  `json:"ts"`
	DeviceID string  `json:"deviceID"`
	Voltage  float64 `json:"voltage"`
	Current  float64 `json:"current"`
	Power    float64 `json:"power"`
}

// handleIngest accepts one telemetry submission from hardware. It is
// authenticated by the shared-secret header, not a user session.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// "not configured" is reported distinctly from "wrong key"
	if s.ingestKey == "" {
		metrics.IngestRejected(metrics.ReasonUnauthorized)
		writeJSONStatus(w, http.StatusServiceUnavailable, ingestErrorResponse{
			Error:   "ingestion not configured",
			Message: "no ingest API key is set on the server",
		})
		return
	}

	apiKey := r.Header.Get(ingestAPIKeyHeader)
	if apiKey == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.ingestKey)) != 1 {
		metrics.IngestRejected(metrics.ReasonUnauthorized)
		writeJSONStatus(w, http.StatusUnauthorized, ingestErrorResponse{Error: "unauthorized", Message: "missing or invalid " + ingestAPIKeyHeader + " header"})
		return
	}

	// malformed JSON is rejected before schema validation
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		metrics.IngestRejected(metrics.ReasonBadPayload)
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	var payload ingest.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.IngestRejected(metrics.ReasonBadPayload)
		writeJSONStatus(w, http.StatusBadRequest, ingestErrorResponse{Error: "bad request", Message: "invalid JSON body"})
		return
	}

	if details := payload.Validate(); len(details) > 0 {
		metrics.IngestRejected(metrics.ReasonBadPayload)
		writeJSONStatus(w, http.StatusBadRequest, ingestErrorResponse{Error: "validation error", Message: "invalid payload", Details: details})
		return
	}

	res := s.limiter.Allow(payload.Key())
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	if !res.Allowed {
		metrics.IngestRejected(metrics.ReasonRateLimited)
		retry := int(res.RetryAfter.Seconds())
		if retry < 1 {
			retry = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		w.Header().Set("X-RateLimit-Remaining", "0")
		writeJSONStatus(w, http.StatusTooManyRequests, ingestErrorResponse{
			Error:   "rate limit exceeded",
			Message: "too many requests, max " + strconv.Itoa(res.Limit) + " per minute per device",
		})
		return
	}
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

	point := payload.Point(s.now())
	ids, err := s.storage.InsertPoints(ctx, []types.TelemetryPoint{point})
	if err != nil {
		metrics.IngestRejected(metrics.ReasonStoreError)
		log.Ctx(ctx).ErrorContext(ctx, "failed to persist ingested point", slog.String("deviceID", point.DeviceID), slog.Any("error", err))
		writeJSONError(w, "failed to save telemetry", http.StatusInternalServerError)
		return
	}

	metrics.IngestAccepted()
	log.Ctx(ctx).InfoContext(ctx, "telemetry ingested",
		slog.String("deviceID", point.DeviceID),
		slog.Float64("power", point.Power),
	)
	writeJSON(w, ingestSuccessResponse{
		Success: true,
		Data: ingestResultData{
			ID:       ids[0],
			TS:       point.TS.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			DeviceID: point.DeviceID,
			Voltage:  point.Voltage,
			Current:  point.Current,
			Power:    point.Power,
		},
	})
}
