package main

import (
	"context"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/voltwatch/voltwatch/pkg/log"
	"github.com/voltwatch/voltwatch/pkg/storage"
	"github.com/voltwatch/voltwatch/pkg/telemetry"
	"github.com/voltwatch/voltwatch/pkg/types"
)

// Seeds the local emulator with a day of demo telemetry so the dashboard
// has data without hardware attached.
func main() {
	os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	s := storage.Configured()
	lflag.Configure()

	ctx := context.Background()

	log.Ctx(ctx).InfoContext(ctx, "seeding demo telemetry")

	gen := telemetry.NewGenerator(telemetry.SmallPanelProfile(), rand.New(rand.NewSource(time.Now().UnixNano())))
	points := gen.Generate(time.Now())

	deleted, err := s.DeletePointsBySource(ctx, types.SourceDemo)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to purge old demo points", slog.Any("error", err))
		os.Exit(1)
	}

	ids, err := s.InsertPoints(ctx, points)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to insert demo points", slog.Any("error", err))
		os.Exit(1)
	}

	if err := s.Close(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", err))
	}

	log.Ctx(ctx).InfoContext(ctx, "seeded demo telemetry",
		slog.Int("deleted", deleted),
		slog.Int("inserted", len(ids)),
	)
}
