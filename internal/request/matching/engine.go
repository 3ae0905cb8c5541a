// Package matching selects the eligible donors frozen into a new blood request.
package matching

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	donormodels "donorlink/internal/donor/models"
	dErrors "donorlink/pkg/domain-errors"
)

// DefaultCap bounds the snapshot when no cap is configured.
const DefaultCap = 50

// Directory is the donor read model the engine queries.
type Directory interface {
	FindEligibleDonors(ctx context.Context, district donormodels.District, group donormodels.BloodGroup, limit int) ([]*donormodels.Donor, error)
}

// Engine runs the matching query for a district and exact blood group.
type Engine struct {
	directory Directory
	cap       int
	tracer    trace.Tracer
	logger    *slog.Logger
}

type Option func(*Engine)

func WithCap(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.cap = n
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func New(directory Directory, opts ...Option) *Engine {
	e := &Engine{
		directory: directory,
		cap:       DefaultCap,
		tracer:    otel.Tracer("donorlink/request/matching"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cap is the maximum snapshot size.
func (e *Engine) Cap() int {
	return e.cap
}

// Match returns up to Cap eligible donors in matching order: available first,
// then most recently updated. Blood groups match exactly.
func (e *Engine) Match(ctx context.Context, district donormodels.District, group donormodels.BloodGroup) ([]*donormodels.Donor, error) {
	ctx, span := e.tracer.Start(ctx, "matching.Match", trace.WithAttributes(
		attribute.String("donor.district", district.String()),
		attribute.String("donor.blood_group", group.String()),
		attribute.Int("matching.cap", e.cap),
	))
	defer span.End()

	if !district.IsValid() || !group.IsValid() {
		err := dErrors.New(dErrors.CodeBadRequest, "District and blood group are required")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	donors, err := e.directory.FindEligibleDonors(ctx, district, group, e.cap)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "directory query failed")
		return nil, err
	}
	if len(donors) > e.cap {
		donors = donors[:e.cap]
	}
	span.SetAttributes(attribute.Int("matching.snapshot_size", len(donors)))
	if e.logger != nil {
		e.logger.DebugContext(ctx, "donors matched",
			"district", district,
			"blood_group", group,
			"snapshot_size", len(donors),
		)
	}
	return donors, nil
}
