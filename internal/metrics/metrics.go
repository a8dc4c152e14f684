// Package metrics wraps OpenTelemetry instruments behind a small Handler so
// the realtime core can record without depending on an exporter.
package metrics

import (
	"context"
)

// Handler creates named instruments. Asking twice for the same name returns
// instruments backed by the same underlying series.
type Handler interface {
	Int64Counter(name string, description string, unit Unit) Int64Counter
	Int64Gauge(name string, description string, unit Unit) Int64Gauge
	Int64Histogram(name string, description string, unit Unit) Int64Histogram
	// WithTags returns a Handler whose instruments add tags to every
	// recording. Per-call tags win on key collisions.
	WithTags(tags map[string]string) Handler
}

type Int64Counter interface {
	Add(ctx context.Context, value int64, tags map[string]string)
}

type Int64Histogram interface {
	Record(ctx context.Context, value int64, tags map[string]string)
}

// Int64Gauge reports the last observed value per tag set.
type Int64Gauge interface {
	Observe(ctx context.Context, value int64, tags map[string]string)
}

// Unit is a UCUM unit string.
type Unit string

// Dimensionless is used for counts: connections, events, recipients.
const Dimensionless Unit = "1"
