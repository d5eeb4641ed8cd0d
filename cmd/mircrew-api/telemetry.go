package main

import (
	"context"
	"log/slog"
	"time"

	"mircrewapi/internal/components/telemetry"
	"mircrewapi/pkg/serviceutil"
)

// InitTelemetry sets up logging and the otel providers, the caller must
// call Shutdown on the returned Otel before exiting so buffered spans and
// metrics are flushed.
func InitTelemetry(ctx context.Context, cfg telemetry.Config, verbose bool) (telemetry.API, telemetry.Otel) {
	telemetry.InitSlog(verbose)
	if verbose {
		slog.DebugContext(ctx, "verbose logging enabled")
	}

	otel, err := telemetry.Setup(ctx, "mircrew-api", cfg)
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}

	tel := telemetry.SlogAPI{}
	if otel.MeterProvider != nil {
		telemetry.InstrumentPerfStats(ctx, 30*time.Second, tel)
	}
	return tel, otel
}
