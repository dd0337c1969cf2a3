package application

import (
	"context"
	"fmt"

	"hwtrack-backend/internal/cache"
	"hwtrack-backend/internal/captcha"
	"hwtrack-backend/internal/components/browser"
	"hwtrack-backend/internal/components/chrono"
	"hwtrack-backend/internal/components/telemetry"
	"hwtrack-backend/internal/config"
	"hwtrack-backend/internal/homework"
	"hwtrack-backend/internal/portal"
	"hwtrack-backend/internal/runlog"
	"hwtrack-backend/internal/service"
)

// App is every long lived component built from a Config.
type App struct {
	Config  config.Config
	Clock   chrono.StandardImpl
	Store   *cache.Store
	Service service.Service
	// RunLog is nil when no dsn is configured.
	RunLog *runlog.Log
}

// New validates the config and wires the login automaton, the cache and the
// service together. Nothing is launched until the first refresh.
func New(ctx context.Context, cfg config.Config, tel telemetry.API) (App, error) {
	if err := cfg.Validate(); err != nil {
		return App{}, fmt.Errorf("invalid config: %w", err)
	}

	clock, err := chrono.NewStandardImpl(cfg.Timezone)
	if err != nil {
		return App{}, fmt.Errorf("load timezone: %w", err)
	}

	solver := newSolver(cfg.Ocr, tel)
	automaton := portal.NewAutomaton(portal.AutomatonOptions{
		Launcher:     browser.NewLauncher(cfg.BrowserOptions(), tel),
		Solver:       solver,
		Endpoints:    cfg.Endpoints(),
		Selectors:    portal.DefaultSelectors(),
		Timing:       cfg.PortalTiming(),
		SecretPrefix: cfg.Portal.SecretPrefix,
		TempDir:      cfg.Portal.TempDir,
	}, tel)

	store := cache.NewStore(cfg.Cache.Dir, clock, tel)

	options := []service.Option{
		service.WithCustomTelemetryAPI(tel),
		service.WithRefreshTimeout(cfg.Refresh.Timeout.Std()),
		service.WithAggregatorOptions(homework.AggregatorOptions{
			CoursePause: cfg.Portal.CoursePause.Std(),
		}),
	}

	var runs *runlog.Log
	if cfg.RunLog.Dsn != "" {
		runs, err = runlog.Open(ctx, cfg.RunLog.Dsn)
		if err != nil {
			return App{}, fmt.Errorf("open run log: %w", err)
		}
		options = append(options, service.WithRunLog(runs))
	}

	svc := service.NewService(
		service.NewPortal(automaton, cfg.Portal.BaseURL, cfg.APIOptions(), tel),
		store,
		clock,
		options...,
	)

	return App{
		Config:  cfg,
		Clock:   clock,
		Store:   store,
		Service: svc,
		RunLog:  runs,
	}, nil
}

func newSolver(cfg config.OcrConfig, tel telemetry.API) captcha.Solver {
	primary := captcha.NewOcrClient(cfg.Primary.Options(), tel)

	var fallback captcha.Recognizer
	if cfg.Fallback.BaseURL != "" {
		fallback = captcha.NewOcrClient(cfg.Fallback.Options(), tel)
	}
	return captcha.NewSolver(primary, fallback, tel)
}

// Accounts converts the configured refresh accounts.
func (a App) Accounts() []service.Account {
	out := make([]service.Account, len(a.Config.Refresh.Accounts))
	for i, account := range a.Config.Refresh.Accounts {
		out[i] = service.Account{AccountID: account.AccountID, Secret: account.Secret}
	}
	return out
}

func (a App) Close() error {
	if a.RunLog == nil {
		return nil
	}
	return a.RunLog.Close()
}
