package captcha

import (
	"context"
	"regexp"
	"strings"

	"hwtrack-backend/internal/assert"
	"hwtrack-backend/internal/components/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("hwtrack.internal.captcha")

const (
	report_solver_primary  = "solver.primary"
	report_solver_fallback = "solver.fallback"
	report_solver_empty    = "solver.empty"
)

// Recognizer turns a captcha image into best-effort text.
//
// note: fault injection point
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

type RecognizerFunc func(ctx context.Context, image []byte) (string, error)

func (f RecognizerFunc) Recognize(ctx context.Context, image []byte) (string, error) {
	return f(ctx, image)
}

type Source int

const (
	SourceNone Source = iota
	SourcePrimary
	SourceFallback
)

func (s Source) String() string {
	switch s {
	case SourcePrimary:
		return "primary"
	case SourceFallback:
		return "fallback"
	default:
		return "none"
	}
}

// Outcome is the answer the solver settled on and which recognizer produced it.
type Outcome struct {
	Source Source
	Text   string
}

func (o Outcome) Empty() bool {
	return o.Text == ""
}

var nonAlphanumeric = regexp.MustCompile(`[^A-Za-z0-9]`)

// Alphanumeric restricts a recognizer's output to ASCII letters and digits.
func Alphanumeric(inner Recognizer) Recognizer {
	return RecognizerFunc(func(ctx context.Context, image []byte) (string, error) {
		text, err := inner.Recognize(ctx, image)
		if err != nil {
			return "", err
		}
		return nonAlphanumeric.ReplaceAllString(text, ""), nil
	})
}

// Solver runs the primary recognizer, then the fallback when the primary yields
// nothing. It never retries and never fails: an unreadable image is an empty Outcome.
type Solver struct {
	primary  Recognizer
	fallback Recognizer
	tel      telemetry.API
}

// NewSolver creates a Solver, fallback may be nil.
func NewSolver(primary, fallback Recognizer, tel telemetry.API) Solver {
	assert.NotNil(primary)
	assert.NotNil(tel)
	return Solver{
		primary:  primary,
		fallback: fallback,
		tel:      telemetry.NewScopedAPI("captcha", tel),
	}
}

func (s Solver) Solve(ctx context.Context, image []byte) Outcome {
	ctx, span := tracer.Start(ctx, "Solve")
	defer span.End()

	text, err := s.primary.Recognize(ctx, image)
	if err != nil {
		s.tel.ReportWarning(report_solver_primary, err)
	}
	text = strings.TrimSpace(text)
	if text != "" {
		if answer, ok := EvaluateArithmetic(text); ok {
			s.tel.ReportDebug("arithmetic captcha", text, answer)
			text = answer
		}
		span.SetAttributes(attribute.String("source", SourcePrimary.String()))
		return Outcome{Source: SourcePrimary, Text: text}
	}

	if s.fallback != nil {
		text, err = Alphanumeric(s.fallback).Recognize(ctx, image)
		if err != nil {
			s.tel.ReportWarning(report_solver_fallback, err)
		}
		if text != "" {
			span.SetAttributes(attribute.String("source", SourceFallback.String()))
			return Outcome{Source: SourceFallback, Text: text}
		}
	}

	s.tel.ReportWarning(report_solver_empty)
	span.SetAttributes(attribute.String("source", SourceNone.String()))
	return Outcome{Source: SourceNone}
}
