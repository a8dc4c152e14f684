package metrics

import "context"

// discard satisfies Handler and every instrument and records nothing.
type discard struct{}

var (
	_ Handler        = discard{}
	_ Int64Counter   = discard{}
	_ Int64Histogram = discard{}
	_ Int64Gauge     = discard{}
)

func (discard) Int64Counter(string, string, Unit) Int64Counter     { return discard{} }
func (discard) Int64Gauge(string, string, Unit) Int64Gauge         { return discard{} }
func (discard) Int64Histogram(string, string, Unit) Int64Histogram { return discard{} }
func (discard) WithTags(map[string]string) Handler                 { return discard{} }

func (discard) Add(context.Context, int64, map[string]string)     {}
func (discard) Record(context.Context, int64, map[string]string)  {}
func (discard) Observe(context.Context, int64, map[string]string) {}

// NewNoOpHandler returns a Handler for when no exporter is configured.
func NewNoOpHandler(_ context.Context) Handler {
	return discard{}
}
