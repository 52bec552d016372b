package telemetry

import (
	"context"

	"github.com/sasha-s/go-deadlock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/draftea/saga-orchestrator"

// Config holds telemetry configuration for a service
type Config struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string
}

// Telemetry is the tracer and meter of one service. Instruments are created on first
// use and reused afterwards; every recorded point carries the service name.
type Telemetry struct {
	config  Config
	tracer  trace.Tracer
	meter   metric.Meter
	service attribute.KeyValue

	mu         deadlock.Mutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
	gauges     map[string]metric.Float64Gauge
}

// NewTelemetry binds config to the global providers
func NewTelemetry(config Config) *Telemetry {
	return newTelemetry(config, otel.Tracer(config.ServiceName), otel.Meter(config.ServiceName))
}

func newTelemetry(config Config, tracer trace.Tracer, meter metric.Meter) *Telemetry {
	return &Telemetry{
		config:     config,
		tracer:     tracer,
		meter:      meter,
		service:    attribute.String("service", config.ServiceName),
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
		gauges:     make(map[string]metric.Float64Gauge),
	}
}

func (t *Telemetry) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

func (t *Telemetry) GetMeter() metric.Meter {
	return t.meter
}

func (t *Telemetry) GetServiceName() string {
	return t.config.ServiceName
}

func (t *Telemetry) counter(name, description string) (metric.Int64Counter, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.counters[name]; ok {
		return c, nil
	}
	c, err := t.meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		return nil, err
	}
	t.counters[name] = c
	return c, nil
}

func (t *Telemetry) histogram(name, description string) (metric.Float64Histogram, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if h, ok := t.histograms[name]; ok {
		return h, nil
	}
	h, err := t.meter.Float64Histogram(name, metric.WithDescription(description))
	if err != nil {
		return nil, err
	}
	t.histograms[name] = h
	return h, nil
}

func (t *Telemetry) gauge(name, description string) (metric.Float64Gauge, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if g, ok := t.gauges[name]; ok {
		return g, nil
	}
	g, err := t.meter.Float64Gauge(name, metric.WithDescription(description))
	if err != nil {
		return nil, err
	}
	t.gauges[name] = g
	return g, nil
}

type contextKey struct{}

// WithTelemetry injects telemetry into context
func WithTelemetry(ctx context.Context, tel *Telemetry) context.Context {
	return context.WithValue(ctx, contextKey{}, tel)
}

// FromContext extracts telemetry from context
func FromContext(ctx context.Context) *Telemetry {
	tel, _ := ctx.Value(contextKey{}).(*Telemetry)
	return tel
}

// fallback serves contexts that carry no telemetry, e.g. background saga work started
// before the service wired its own
var fallback = NewTelemetry(Config{ServiceName: "unknown"})

func fromContextOrFallback(ctx context.Context) *Telemetry {
	if tel := FromContext(ctx); tel != nil {
		return tel
	}
	return fallback
}

// StartSpan starts a span with the telemetry carried by ctx
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if tel := FromContext(ctx); tel != nil {
		return tel.StartSpan(ctx, name, opts...)
	}
	return otel.Tracer(instrumentationName).Start(ctx, name, opts...)
}

func GetMeter(ctx context.Context) metric.Meter {
	return fromContextOrFallback(ctx).GetMeter()
}

// GetServiceName returns the service name carried by ctx, or "unknown"
func GetServiceName(ctx context.Context) string {
	return fromContextOrFallback(ctx).GetServiceName()
}

// RecordCounter adds value to the named counter
func RecordCounter(ctx context.Context, name, description string, value int64, attrs ...attribute.KeyValue) {
	tel := fromContextOrFallback(ctx)
	c, err := tel.counter(name, description)
	if err != nil {
		return
	}
	c.Add(ctx, value, metric.WithAttributes(append(attrs, tel.service)...))
}

// RecordHistogram records value in the named histogram
func RecordHistogram(ctx context.Context, name, description string, value float64, attrs ...attribute.KeyValue) {
	tel := fromContextOrFallback(ctx)
	h, err := tel.histogram(name, description)
	if err != nil {
		return
	}
	h.Record(ctx, value, metric.WithAttributes(append(attrs, tel.service)...))
}

// RecordGauge sets the named gauge to value
func RecordGauge(ctx context.Context, name, description string, value float64, attrs ...attribute.KeyValue) {
	tel := fromContextOrFallback(ctx)
	g, err := tel.gauge(name, description)
	if err != nil {
		return
	}
	g.Record(ctx, value, metric.WithAttributes(append(attrs, tel.service)...))
}
