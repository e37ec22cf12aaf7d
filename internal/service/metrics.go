package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type serviceMetrics struct {
	created   metric.Int64Counter
	conflicts metric.Int64Counter
	redirects metric.Int64Counter
}

func newServiceMetrics(meter metric.Meter) *serviceMetrics {
	m := &serviceMetrics{}
	var err error

	if m.created, err = meter.Int64Counter("shortlink.links.created",
		metric.WithDescription("Short links created")); err != nil {
		otel.Handle(err)
	}
	if m.conflicts, err = meter.Int64Counter("shortlink.create.conflicts",
		metric.WithDescription("Create requests rejected because the short code was taken")); err != nil {
		otel.Handle(err)
	}
	if m.redirects, err = meter.Int64Counter("shortlink.redirects",
		metric.WithDescription("Redirect attempts by outcome")); err != nil {
		otel.Handle(err)
	}
	return m
}

func (m *serviceMetrics) linkCreated(ctx context.Context, custom bool) {
	m.created.Add(ctx, 1, metric.WithAttributes(attribute.Bool("custom", custom)))
}

func (m *serviceMetrics) conflict(ctx context.Context) {
	m.conflicts.Add(ctx, 1)
}

func (m *serviceMetrics) redirect(ctx context.Context, outcome string) {
	m.redirects.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
