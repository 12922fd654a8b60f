package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"queuebot/config"
	"queuebot/display"
	"queuebot/grace"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const (
	metricPrefix = "queuebot"

	QueueMutationsTotal    = metricPrefix + ".queue.mutations"
	GraceExpirationsTotal  = metricPrefix + ".grace.expirations"
	GraceCancellationTotal = metricPrefix + ".grace.cancellations"
	DisplaySyncsTotal      = metricPrefix + ".display.syncs"
	DisplayErrorsTotal     = metricPrefix + ".display.errors"
	EventsPublishedTotal   = metricPrefix + ".events.published"

	LabelOperation = "op"
	LabelMode      = "mode"
	LabelOutcome   = "outcome"
	LabelEventType = "event_type"
)

// MetricsProvider owns the meter provider and the queue bot's instruments.
// Every Record method is a no-op until Initialize has enabled metrics.
type MetricsProvider struct {
	config        *config.Config
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	enabled       bool
	mu            sync.RWMutex

	queueMutations     metric.Int64Counter
	graceExpirations   metric.Int64Counter
	graceCancellations metric.Int64Counter
	displaySyncs       metric.Int64Counter
	displayErrors      metric.Int64Counter
	eventsPublished    metric.Int64Counter
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg *config.Config) *MetricsProvider {
	return &MetricsProvider{config: cfg}
}

// Initialize builds the exporter chosen by OTEL_EXPORTER_TYPE
func (mp *MetricsProvider) Initialize(ctx context.Context) error {
	if !mp.config.OTelEnabled {
		log.Info("OpenTelemetry metrics disabled")
		return nil
	}

	var (
		exporter sdkmetric.Exporter
		err      error
	)
	switch mp.config.OTelExporterType {
	case "console":
		exporter, err = stdoutmetric.New()
		if err != nil {
			return fmt.Errorf("failed to create console exporter: %w", err)
		}
	case "otlp":
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		exporter, err = otlpmetricgrpc.New(dialCtx,
			otlpmetricgrpc.WithEndpoint(mp.config.OTelEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
	case "none":
		log.Info("Metrics export disabled (exporter type 'none')")
		return nil
	default:
		return fmt.Errorf("unknown exporter type: %s", mp.config.OTelExporterType)
	}

	log.WithField("exporter", mp.config.OTelExporterType).Info("Using metric exporter")
	return mp.initWithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(30*time.Second)))
}

// initWithReader wires the instruments to reader. Tests pass a manual reader.
func (mp *MetricsProvider) initWithReader(reader sdkmetric.Reader) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(mp.config.OTelServiceName),
			attribute.String("environment", mp.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	mp.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp.meterProvider)
	mp.meter = mp.meterProvider.Meter(metricPrefix)

	if err := mp.createInstruments(); err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	mp.enabled = true
	return nil
}

func (mp *MetricsProvider) createInstruments() error {
	counters := []struct {
		target      *metric.Int64Counter
		name        string
		description string
	}{
		{&mp.queueMutations, QueueMutationsTotal, "Queue mutations by operation"},
		{&mp.graceExpirations, GraceExpirationsTotal, "Members removed after their grace period"},
		{&mp.graceCancellations, GraceCancellationTotal, "Grace period watchers that ended without removal"},
		{&mp.displaySyncs, DisplaySyncsTotal, "Display bindings brought up to date, by mode"},
		{&mp.displayErrors, DisplayErrorsTotal, "Display bindings that failed to sync"},
		{&mp.eventsPublished, EventsPublishedTotal, "Domain events published to NATS"},
	}

	for _, c := range counters {
		counter, err := mp.meter.Int64Counter(c.name,
			metric.WithDescription(c.description),
			metric.WithUnit("1"),
		)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", c.name, err)
		}
		*c.target = counter
	}
	return nil
}

// Shutdown flushes and stops the meter provider
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.enabled = false
	if mp.meterProvider != nil {
		return mp.meterProvider.Shutdown(ctx)
	}
	return nil
}

func (mp *MetricsProvider) isEnabled() bool {
	if mp == nil {
		return false
	}
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.enabled
}

// RecordQueueMutation counts one queue change
func (mp *MetricsProvider) RecordQueueMutation(ctx context.Context, op string) {
	if !mp.isEnabled() {
		return
	}
	mp.queueMutations.Add(ctx, 1, metric.WithAttributes(attribute.String(LabelOperation, op)))
}

// RecordGraceOutcome counts how a grace period watcher ended
func (mp *MetricsProvider) RecordGraceOutcome(ctx context.Context, outcome grace.Outcome) {
	if !mp.isEnabled() {
		return
	}
	attrs := metric.WithAttributes(attribute.String(LabelOutcome, outcome.String()))
	if outcome == grace.OutcomeExpired {
		mp.graceExpirations.Add(ctx, 1, attrs)
		return
	}
	mp.graceCancellations.Add(ctx, 1, attrs)
}

// DisplaySynced implements display.Metrics
func (mp *MetricsProvider) DisplaySynced(ctx context.Context, mode display.Mode) {
	if !mp.isEnabled() {
		return
	}
	mp.displaySyncs.Add(ctx, 1, metric.WithAttributes(attribute.String(LabelMode, string(mode))))
}

// DisplayFailed implements display.Metrics
func (mp *MetricsProvider) DisplayFailed(ctx context.Context) {
	if !mp.isEnabled() {
		return
	}
	mp.displayErrors.Add(ctx, 1)
}

// RecordEventPublished counts an event forwarded to NATS
func (mp *MetricsProvider) RecordEventPublished(ctx context.Context, eventType string) {
	if !mp.isEnabled() {
		return
	}
	mp.eventsPublished.Add(ctx, 1, metric.WithAttributes(attribute.String(LabelEventType, eventType)))
}
