package main

import (
	"context"
	"flag"
	"log/slog"
	"time"

	"hwtrack-backend/internal/application"
	"hwtrack-backend/internal/components/chrono"
	"hwtrack-backend/internal/components/telemetry"
	"hwtrack-backend/internal/config"
	"hwtrack-backend/lib/serviceutil"
	libtelemetry "hwtrack-backend/lib/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to the config file, hwtrack.json5 is searched upwards from the cwd by default.")
	flag.Parse()

	ctx := serviceutil.SignalContext()

	cfg, err := config.Load(*configPath)
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}

	logCloser := libtelemetry.InitSlog(cfg.Log)
	defer logCloser.Close()

	t, err := libtelemetry.SetupFromEnv(ctx, "hwtrack-server")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	defer t.Shutdown(context.Background())
	libtelemetry.InstrumentPerfStats(ctx, 15*time.Second)

	tel := telemetry.SlogAPI{}
	app, err := application.New(ctx, cfg, tel)
	if err != nil {
		serviceutil.Fatal("failed to initialize", err)
	}
	defer app.Close()

	if cfg.Refresh.Cron != "" {
		cron := chrono.NewStandardCron(app.Clock, tel)
		defer func() { <-cron.Stop() }()

		err = app.Service.Schedule(ctx, cron, cfg.Refresh.Cron, app.Accounts(), cfg.Cache.MaxAge.Std())
		if err != nil {
			serviceutil.Fatal("failed to schedule refreshes", err)
		}
		slog.Info("scheduled refreshes", "cron", cfg.Refresh.Cron, "accounts", len(cfg.Refresh.Accounts))
	}

	err = serviceutil.StartHttpServer(ctx, cfg.Server.Port, app.Service.Handler())
	if err != nil {
		slog.Error("http server stopped", "err", err.Error())
	}
}
