package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"hwtrack-backend/internal/assert"
	"hwtrack-backend/internal/cache"
	"hwtrack-backend/internal/components/chrono"
	"hwtrack-backend/internal/components/telemetry"
	"hwtrack-backend/internal/homework"
	"hwtrack-backend/internal/portal"
	"hwtrack-backend/internal/runlog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("hwtrack.internal.service")

const (
	report_service_refresh    = "service.refresh"
	report_service_cache_save = "service.cache-save"
	report_service_runlog     = "service.runlog"
	report_service_daemon     = "service.daemon"
)

// DefaultRefreshTimeout bounds a shared refresh once it no longer follows its callers.
const DefaultRefreshTimeout = 5 * time.Minute

// ErrInvalidRequest is returned for requests that can never succeed.
var ErrInvalidRequest = errors.New("invalid request")

// RunRecorder persists the outcome of every refresh.
//
// note: fault injection point
type RunRecorder interface {
	Record(ctx context.Context, run runlog.Run) (string, error)
}

type Request struct {
	AccountID string           `json:"accountId"`
	Secret    string           `json:"secret,omitempty"`
	Filter    *homework.Filter `json:"filters,omitempty"`
}

// Response is the successful answer to both a refresh and a cached read.
type Response struct {
	Success    bool                  `json:"success"`
	Data       []homework.Assignment `json:"data"`
	Summary    homework.Summary      `json:"summary"`
	TermCode   string                `json:"termCode"`
	Cached     bool                  `json:"cached"`
	FetchedAt  int64                 `json:"fetchedAt"`
	AgeMinutes *int                  `json:"ageMinutes,omitempty"`
}

// NormalizeAccountID removes formatting inconsistencies from user input.
func NormalizeAccountID(accountID string) string {
	return strings.TrimSpace(accountID)
}

func (r Request) filter() homework.Filter {
	if r.Filter == nil {
		return homework.Filter{}.WithDefaults()
	}
	return r.Filter.WithDefaults()
}

func (r Request) validate() error {
	if NormalizeAccountID(r.AccountID) == "" {
		return fmt.Errorf("%w: accountId is required", ErrInvalidRequest)
	}
	if r.Filter != nil {
		if err := r.Filter.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
	}
	return nil
}

type serviceConfig struct {
	tel        telemetry.API
	runs       RunRecorder
	aggregator homework.AggregatorOptions
	timeout    time.Duration
}

type Option func(cfg *serviceConfig)

func WithCustomTelemetryAPI(tel telemetry.API) Option {
	return func(cfg *serviceConfig) {
		cfg.tel = tel
	}
}

// WithRunLog records every refresh, failures to record never fail a refresh.
func WithRunLog(runs RunRecorder) Option {
	return func(cfg *serviceConfig) {
		cfg.runs = runs
	}
}

// WithRefreshTimeout bounds a single login and aggregation run.
func WithRefreshTimeout(timeout time.Duration) Option {
	return func(cfg *serviceConfig) {
		cfg.timeout = timeout
	}
}

func WithAggregatorOptions(opts homework.AggregatorOptions) Option {
	return func(cfg *serviceConfig) {
		cfg.aggregator = opts
	}
}

// Service refreshes accounts against the portal and serves cached results.
//
// note: there should not be any cron jobs running in here, scheduling lives in
// whatever owns the Service (see Schedule)
type Service struct {
	portal     Portal
	store      *cache.Store
	clock      chrono.API
	runs       RunRecorder
	aggregator homework.AggregatorOptions
	timeout    time.Duration
	tel        telemetry.API
	group      *singleflight.Group
}

func NewService(portal Portal, store *cache.Store, clock chrono.API, options ...Option) Service {
	assert.NotNil(portal)
	assert.NotNil(store)
	assert.NotNil(clock)

	cfg := serviceConfig{tel: telemetry.SlogAPI{}}
	for _, opt := range options {
		opt(&cfg)
	}
	if cfg.timeout <= 0 {
		cfg.timeout = DefaultRefreshTimeout
	}

	return Service{
		portal:     portal,
		store:      store,
		clock:      clock,
		runs:       cfg.runs,
		aggregator: cfg.aggregator,
		timeout:    cfg.timeout,
		tel:        telemetry.NewScopedAPI("service", cfg.tel),
		group:      &singleflight.Group{},
	}
}

// Refresh logs in, aggregates every assignment of the account, stores the
// result in the cache and answers with the filtered assignments. Concurrent
// refreshes of the same account and secret share a single run, which outlives
// any caller that gives up on it.
func (s Service) Refresh(ctx context.Context, req Request) (Response, error) {
	if err := req.validate(); err != nil {
		return Response{}, err
	}
	accountID := NormalizeAccountID(req.AccountID)

	// a caller never joins a run started with someone else's secret
	key := accountID + "\x00" + req.Secret
	ch := s.group.DoChan(key, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.refresh(runCtx, portal.Credentials{AccountID: accountID, Secret: req.Secret})
	})

	var result homework.Result
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Response{}, res.Err
		}
		result = res.Val.(homework.Result)
	}

	return Response{
		Success:   true,
		Data:      req.filter().Apply(result.Assignments, s.clock.Now()),
		Summary:   result.Summary,
		TermCode:  result.TermCode,
		Cached:    false,
		FetchedAt: result.FetchedAt.UnixMilli(),
	}, nil
}

func (s Service) refresh(ctx context.Context, creds portal.Credentials) (result homework.Result, err error) {
	ctx, span := tracer.Start(ctx, "service:Refresh")
	defer span.End()

	startedAt := s.clock.Now()
	defer func() {
		s.record(ctx, creds.AccountID, startedAt, result, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "refresh failed")
		}
	}()

	conn, err := s.portal.Open(ctx, creds)
	if err != nil {
		s.tel.ReportWarning(report_service_refresh, err)
		return homework.Result{}, err
	}
	defer conn.Close()

	aggregator := homework.NewAggregator(conn, s.clock, s.aggregator, s.tel)
	result, err = aggregator.Aggregate(ctx)
	if err != nil {
		s.tel.ReportWarning(report_service_refresh, err)
		return homework.Result{}, err
	}
	span.SetAttributes(attribute.Int("assignments", len(result.Assignments)))

	if saveErr := s.store.Save(creds.AccountID, result); saveErr != nil {
		// the caller still gets the fresh data
		s.tel.ReportBroken(report_service_cache_save, saveErr)
	}
	return result, nil
}

func (s Service) record(ctx context.Context, accountID string, startedAt time.Time, result homework.Result, err error) {
	if s.runs == nil {
		return
	}
	run := runlog.Run{
		AccountKey:  cache.Key(accountID),
		StartedAt:   startedAt,
		Duration:    s.clock.Now().Sub(startedAt),
		Outcome:     runlog.OutcomeOK,
		TermCode:    result.TermCode,
		Total:       result.Summary.Total,
		Unsubmitted: result.Summary.Unsubmitted,
	}
	if err != nil {
		run.Outcome = runlog.OutcomeFailed
		run.Error = err.Error()
	}
	if _, recordErr := s.runs.Record(context.WithoutCancel(ctx), run); recordErr != nil {
		s.tel.ReportBroken(report_service_runlog, recordErr)
	}
}

// Cached answers from the cache only, ok is false when the account has no entry.
func (s Service) Cached(accountID string, filter homework.Filter) (Response, bool) {
	entry, ok := s.store.Get(NormalizeAccountID(accountID))
	if !ok {
		return Response{}, false
	}

	now := s.clock.Now()
	ageMinutes := int(math.Floor(now.Sub(entry.FetchedTime()).Minutes()))
	return Response{
		Success:    true,
		Data:       filter.Apply(entry.Assignments, now),
		Summary:    entry.Summary,
		TermCode:   entry.TermCode,
		Cached:     true,
		FetchedAt:  entry.FetchedAt,
		AgeMinutes: &ageMinutes,
	}, true
}

type Account struct {
	AccountID string
	Secret    string
}

// RefreshExpired refreshes, one after another, every account whose cache entry
// is missing or older than maxAge. It returns how many refreshes failed.
func (s Service) RefreshExpired(ctx context.Context, accounts []Account, maxAge time.Duration) int {
	failed := 0
	for _, account := range accounts {
		if ctx.Err() != nil {
			return failed
		}
		accountID := NormalizeAccountID(account.AccountID)
		if !s.store.IsExpired(accountID, maxAge) {
			continue
		}
		_, err := s.Refresh(ctx, Request{AccountID: accountID, Secret: account.Secret})
		if err != nil {
			failed++
			s.tel.ReportWarning(report_service_daemon, accountID, err)
		}
	}
	s.tel.ReportCount(report_service_daemon, int64(failed))
	return failed
}

// Schedule runs RefreshExpired on the cron spec until ctx is done.
func (s Service) Schedule(ctx context.Context, cron chrono.CronAPI, spec string, accounts []Account, maxAge time.Duration) error {
	assert.NotNil(cron)
	return cron.Cron(spec, func() {
		if ctx.Err() != nil {
			return
		}
		s.RefreshExpired(ctx, accounts, maxAge)
	})
}
