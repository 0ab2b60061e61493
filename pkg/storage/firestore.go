package storage

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	firestorepb "cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/google/uuid"
	"github.com/levenlabs/go-lflag"
	"github.com/voltwatch/voltwatch/pkg/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	telemetryCollection = "telemetry"
	devicesCollection   = "devices"
)

// FirestoreProvider implements the Database interface using Google Cloud
// Firestore. Points live in the "telemetry" collection keyed by UUID;
// per-device summaries are kept in "devices" keyed by device ID.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

type pointDoc struct {
	TS              time.Time `firestore:"ts"`
	DeviceID        string    `firestore:"deviceId"`
	Voltage         float64   `firestore:"voltage"`
	Current         float64   `firestore:"current"`
	Power           float64   `firestore:"power"`
	Source          string    `firestore:"source"`
	TemperatureC    *float64  `firestore:"temperature,omitempty"`
	BatteryLevel    *float64  `firestore:"batteryLevel,omitempty"`
	SolarIrradiance *float64  `firestore:"solarIrradiance,omitempty"`
	IngestedAt      time.Time `firestore:"ingestedAt,omitempty"`
}

func (d pointDoc) point() types.TelemetryPoint {
	return types.TelemetryPoint{
		TS:              d.TS,
		DeviceID:        d.DeviceID,
		Voltage:         d.Voltage,
		Current:         d.Current,
		Power:           d.Power,
		Source:          types.Source(d.Source),
		TemperatureC:    d.TemperatureC,
		BatteryLevel:    d.BatteryLevel,
		SolarIrradiance: d.SolarIrradiance,
		IngestedAt:      d.IngestedAt,
	}
}

func docFromPoint(p types.TelemetryPoint) pointDoc {
	return pointDoc{
		TS:              p.TS,
		DeviceID:        p.DeviceID,
		Voltage:         p.Voltage,
		Current:         p.Current,
		Power:           p.Power,
		Source:          string(p.Source),
		TemperatureC:    p.TemperatureC,
		BatteryLevel:    p.BatteryLevel,
		SolarIrradiance: p.SolarIrradiance,
		IngestedAt:      p.IngestedAt,
	}
}

type deviceDoc struct {
	LastSeen time.Time `firestore:"lastSeen"`
	Source   string    `firestore:"source"`
	Count    int64     `firestore:"count"`
}

// InsertPoints persists points in bulk via a BulkWriter and returns their
// generated document IDs. Timestamps collide across devices, so document
// IDs are UUIDs rather than RFC3339 timestamps.
func (f *FirestoreProvider) InsertPoints(ctx context.Context, points []types.TelemetryPoint) ([]string, error) {
	if len(points) == 0 {
		return nil, nil
	}

	col := f.client.Collection(telemetryCollection)
	bw := f.client.BulkWriter(ctx)

	ids := make([]string, 0, len(points))
	jobs := make([]*firestore.BulkWriterJob, 0, len(points))
	// one summary write per device, with the newest point winning
	latestByDevice := make(map[string]types.TelemetryPoint)
	counts := make(map[string]int64)

	for _, p := range points {
		id := uuid.New().String()
		job, err := bw.Create(col.Doc(id), docFromPoint(p))
		if err != nil {
			bw.End()
			return nil, fmt.Errorf("failed to enqueue point insert: %w", err)
		}
		ids = append(ids, id)
		jobs = append(jobs, job)

		if p.DeviceID != "" {
			counts[p.DeviceID]++
			if prev, ok := latestByDevice[p.DeviceID]; !ok || p.TS.After(prev.TS) {
				latestByDevice[p.DeviceID] = p
			}
		}
	}

	devices := f.client.Collection(devicesCollection)
	for deviceID, p := range latestByDevice {
		job, err := bw.Set(devices.Doc(deviceID), map[string]interface{}{
			"lastSeen": p.TS,
			"source":   string(p.Source),
			"count":    firestore.Increment(counts[deviceID]),
		}, firestore.MergeAll)
		if err != nil {
			bw.End()
			return nil, fmt.Errorf("failed to enqueue device summary for %s: %w", deviceID, err)
		}
		jobs = append(jobs, job)
	}

	bw.End()
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return nil, fmt.Errorf("failed to insert points: %w", err)
		}
	}
	return ids, nil
}

// DeletePointsBySource removes all points with the given source and
// reports how many were deleted. Device summary counters are left alone;
// they are rebuilt by subsequent inserts.
func (f *FirestoreProvider) DeletePointsBySource(ctx context.Context, source types.Source) (int, error) {
	col := f.client.Collection(telemetryCollection)
	iter := col.Where("source", "==", string(source)).Documents(ctx)
	defer iter.Stop()

	bw := f.client.BulkWriter(ctx)
	var jobs []*firestore.BulkWriterJob
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			bw.End()
			return 0, fmt.Errorf("error iterating %s points: %w", source, err)
		}
		job, err := bw.Delete(doc.Ref)
		if err != nil {
			bw.End()
			return 0, fmt.Errorf("failed to enqueue delete: %w", err)
		}
		jobs = append(jobs, job)
	}

	bw.End()
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return 0, fmt.Errorf("failed to delete points: %w", err)
		}
	}
	return len(jobs), nil
}

// PointsSince returns points at or after since, ascending by timestamp.
func (f *FirestoreProvider) PointsSince(ctx context.Context, since time.Time, deviceID string, limit int) ([]types.TelemetryPoint, error) {
	q := f.client.Collection(telemetryCollection).Query.Where("ts", ">=", since)
	if deviceID != "" {
		q = q.Where("deviceId", "==", deviceID)
	}
	iter := q.OrderBy("ts", firestore.Asc).Limit(limit).Documents(ctx)
	defer iter.Stop()

	var points []types.TelemetryPoint
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			// the deviceId+ts filter needs a composite index
			if status.Code(err) == codes.FailedPrecondition {
				return nil, fmt.Errorf("telemetry query needs a composite index (deviceId asc, ts asc): %w", err)
			}
			return nil, fmt.Errorf("error iterating points: %w", err)
		}
		var d pointDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("failed to decode point %s: %w", doc.Ref.ID, err)
		}
		points = append(points, d.point())
	}
	return points, nil
}

// LatestPoint returns the newest stored point, optionally filtered by
// device. Returns ErrNoPoints when nothing matches.
func (f *FirestoreProvider) LatestPoint(ctx context.Context, deviceID string) (types.TelemetryPoint, error) {
	q := f.client.Collection(telemetryCollection).Query
	if deviceID != "" {
		q = q.Where("deviceId", "==", deviceID)
	}
	iter := q.OrderBy("ts", firestore.Desc).Limit(1).Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return types.TelemetryPoint{}, ErrNoPoints
	}
	if err != nil {
		return types.TelemetryPoint{}, fmt.Errorf("failed to get latest point: %w", err)
	}

	var d pointDoc
	if err := doc.DataTo(&d); err != nil {
		return types.TelemetryPoint{}, fmt.Errorf("failed to decode point %s: %w", doc.Ref.ID, err)
	}
	return d.point(), nil
}

// CountBySource counts points with the given source at or after since
// using a native count aggregation, so the documents are never read.
func (f *FirestoreProvider) CountBySource(ctx context.Context, since time.Time, source types.Source) (int64, error) {
	q := f.client.Collection(telemetryCollection).Query.
		Where("ts", ">=", since).
		Where("source", "==", string(source))

	result, err := q.NewAggregationQuery().WithCount("count").Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s points: %w", source, err)
	}
	v, ok := result["count"]
	if !ok {
		return 0, fmt.Errorf("count aggregation returned no value")
	}
	count, ok := v.(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("count aggregation returned unexpected type %T", v)
	}
	return count.GetIntegerValue(), nil
}

// ListDevices returns the per-device summaries, most recently seen first.
func (f *FirestoreProvider) ListDevices(ctx context.Context) ([]types.DeviceStats, error) {
	iter := f.client.Collection(devicesCollection).Documents(ctx)
	defer iter.Stop()

	var devices []types.DeviceStats
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating devices: %w", err)
		}
		var d deviceDoc
		if err := doc.DataTo(&d); err != nil {
			// Skip malformed documents
			continue
		}
		devices = append(devices, types.DeviceStats{
			DeviceID:   doc.Ref.ID,
			LastSeen:   d.LastSeen,
			Source:     types.Source(d.Source),
			DataPoints: d.Count,
		})
	}

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].LastSeen.After(devices[j].LastSeen)
	})
	return devices, nil
}
