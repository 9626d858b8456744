package observe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig configures the OpenTelemetry SDK providers of one mirror.
type ProviderConfig struct {
	// ServiceName is reported as service.name. Default: "aether".
	ServiceName string

	// ServiceVersion is reported as service.version.
	ServiceVersion string

	// ServerURL and Role describe the campaign being mirrored. They are
	// attached to the resource as aether.server.url and aether.role so
	// several mirrors can share one scrape target.
	ServerURL string
	Role      string

	// TraceExporter is an optional span exporter. When nil, spans are
	// recorded for the correlation IDs but never exported.
	TraceExporter sdktrace.SpanExporter

	// TraceSampleRatio is the fraction of root traces sampled. Values
	// outside (0, 1) sample everything. Child spans follow their parent.
	TraceSampleRatio float64

	// Registry receives the OTel bridge plus Go runtime and process
	// collectors. When nil the default registerer is used and
	// [MetricsHandler] should be given nil as well.
	Registry *prometheus.Registry
}

// InitProvider installs global meter and tracer providers and the W3C
// propagator. Metrics are exposed through a Prometheus registry for the
// status server's /metrics route.
//
// The returned shutdown function flushes and closes both providers; call it
// from main after the application has stopped.
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "aether"
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithProcessRuntimeName(),
		resource.WithAttributes(resourceAttrs(cfg)...),
	)
	if err != nil {
		return nil, fmt.Errorf("observe: resource: %w", err)
	}

	// ── Metrics ──
	var promOpts []promexporter.Option
	if cfg.Registry != nil {
		if err := registerRuntime(cfg.Registry); err != nil {
			return nil, err
		}
		promOpts = append(promOpts, promexporter.WithRegisterer(cfg.Registry))
	}
	promExp, err := promexporter.New(promOpts...)
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)

	// ── Traces ──
	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.TraceSampleRatio)),
	}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	shutdown = func(ctx context.Context) error {
		// Traces first so spans ended during metric shutdown are not lost.
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}
	return shutdown, nil
}

func resourceAttrs(cfg ProviderConfig) []attribute.KeyValue {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	if cfg.ServerURL != "" {
		attrs = append(attrs, attribute.String("aether.server.url", cfg.ServerURL))
	}
	if cfg.Role != "" {
		attrs = append(attrs, attribute.String("aether.role", cfg.Role))
	}
	return attrs
}

func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// registerRuntime adds the Go runtime and process collectors to reg. A
// registry that already carries them is left alone.
func registerRuntime(reg *prometheus.Registry) error {
	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return fmt.Errorf("observe: register runtime collector: %w", err)
		}
	}
	return nil
}

// MetricsHandler serves the collectors of reg in the Prometheus text format.
// A nil reg serves the default gatherer.
func MetricsHandler(reg *prometheus.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorLog:      promErrorLog{},
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// promErrorLog routes scrape errors to slog.
type promErrorLog struct{}

func (promErrorLog) Println(v ...any) {
	slog.Warn("metrics scrape error", "err", fmt.Sprint(v...))
}
