package main

import (
	"context"
	"flag"
	"log/slog"
	"time"

	"mircrewapi/internal/api"
	"mircrewapi/internal/app"
	"mircrewapi/internal/config"
	"mircrewapi/pkg/serviceutil"
)

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	configPath := flag.String("config", "config.json5", "Path to the config file.")
	flag.Parse()

	ctx := serviceutil.SignalContext()

	cfg, err := config.Load(*configPath)
	if err != nil {
		serviceutil.Fatal("read config", err)
	}

	tel, otel := InitTelemetry(ctx, cfg.Telemetry, *verbose || cfg.Debug)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := otel.Shutdown(shutdownCtx)
		if err != nil {
			slog.Error("shutdown telemetry", "err", err)
		}
	}()

	mircrewApp, err := app.Open(ctx, cfg, tel)
	if err != nil {
		serviceutil.Fatal("init mircrew", err)
	}
	defer mircrewApp.Close()

	slog.Info(
		"starting mircrew api",
		"port", cfg.Api.Port,
		"driver", cfg.Mircrew.Driver,
		"cache_backend", cfg.Cache.Backend,
		"session", mircrewApp.Client.Status().String(),
	)
	err = serviceutil.StartHttpServer(ctx, cfg.Api.Port, api.NewRouter(mircrewApp.Service, tel))
	if err != nil {
		mircrewApp.Close()
		otel.Shutdown(context.Background())
		serviceutil.Fatal("serve http", err)
	}
}
