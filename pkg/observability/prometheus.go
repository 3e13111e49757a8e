package observability

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// ErrNoRegistry is returned when exporting metrics that were never collected
// into a Prometheus registry.
var ErrNoRegistry = errors.New("observability: prometheus export not enabled")

// newPrometheusReader creates an OTel reader that mirrors instruments into
// a fresh Prometheus registry. Each call gets its own registry, so repeated
// initialization never trips duplicate-collector registration.
func newPrometheusReader() (sdkmetric.Reader, *prometheus.Registry, error) {
	registry := prometheus.NewRegistry()

	exporter, err := promexporter.New(
		promexporter.WithRegisterer(registry),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	return exporter, registry, nil
}

// WriteTextfile writes the current metrics in the text exposition format to
// path, for the node exporter textfile collector. The file is replaced
// atomically.
func (p Providers) WriteTextfile(path string) error {
	if p.Registry == nil {
		return ErrNoRegistry
	}

	if err := prometheus.WriteToTextfile(path, p.Registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}

	return nil
}
