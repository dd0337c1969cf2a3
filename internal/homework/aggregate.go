package homework

import (
	"context"
	"fmt"
	"time"

	"hwtrack-backend/internal/assert"
	"hwtrack-backend/internal/components/chrono"
	"hwtrack-backend/internal/components/telemetry"
	"hwtrack-backend/internal/portal"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("hwtrack.internal.homework")

const (
	report_aggregator_subtype = "aggregator.subtype"
	report_aggregator_total   = "aggregator.total"
)

// Source is the portal data the aggregation reads.
//
// note: fault injection point
type Source interface {
	CurrentTerm(ctx context.Context) (string, error)
	Courses(ctx context.Context, termCode string) ([]portal.Course, error)
	Assignments(ctx context.Context, course portal.Course, subtype portal.Subtype) ([]portal.Record, error)
}

type AggregatorOptions struct {
	// CoursePause is waited before querying each course.
	CoursePause time.Duration
}

type Aggregator struct {
	source Source
	clock  chrono.API
	opts   AggregatorOptions
	tel    telemetry.API
}

func NewAggregator(source Source, clock chrono.API, opts AggregatorOptions, tel telemetry.API) Aggregator {
	assert.NotNil(source)
	assert.NotNil(clock)
	assert.NotNil(tel)
	return Aggregator{
		source: source,
		clock:  clock,
		opts:   opts,
		tel:    telemetry.NewScopedAPI("homework", tel),
	}
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Aggregate collects every assignment of the current term. Only failing to resolve
// the term or the course list fails the run, a failing course category is
// reported and contributes nothing.
func (a Aggregator) Aggregate(ctx context.Context) (Result, error) {
	ctx, span := tracer.Start(ctx, "aggregator:Aggregate")
	defer span.End()

	termCode, err := a.source.CurrentTerm(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve term")
		return Result{}, err
	}
	courses, err := a.source.Courses(ctx, termCode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list courses")
		return Result{}, err
	}

	now := a.clock.Now()
	items := []Assignment{}
	for _, course := range courses {
		if err := pause(ctx, a.opts.CoursePause); err != nil {
			return Result{}, err
		}
		for _, subtype := range portal.Subtypes {
			records, err := a.source.Assignments(ctx, course, subtype)
			if err != nil {
				if ctx.Err() != nil {
					return Result{}, ctx.Err()
				}
				a.tel.ReportWarning(
					report_aggregator_subtype,
					fmt.Errorf("course %s (%s) %s: %w", course.ID, course.Name, subtype, err),
				)
				continue
			}
			for _, rec := range records {
				items = append(items, NewAssignment(rec, course, KindOf(subtype), now))
			}
		}
	}

	items = SortByDue(items)
	a.tel.ReportCount(report_aggregator_total, int64(len(items)))
	span.SetAttributes(
		attribute.Int("courses", len(courses)),
		attribute.Int("assignments", len(items)),
	)

	return Result{
		Assignments: items,
		Summary:     Summarize(items),
		TermCode:    termCode,
		FetchedAt:   now,
	}, nil
}
