// Package app wires the configuration into a runnable central service.
package app

import (
	"context"
	"fmt"

	"github.com/kilianp07/evcharge/config"
	coreaudit "github.com/kilianp07/evcharge/core/audit"
	"github.com/kilianp07/evcharge/core/central"
	coremetrics "github.com/kilianp07/evcharge/core/metrics"
	coreregistry "github.com/kilianp07/evcharge/core/registry"
	infraaudit "github.com/kilianp07/evcharge/infra/audit"
	"github.com/kilianp07/evcharge/infra/logger"
	"github.com/kilianp07/evcharge/infra/metrics"
	"github.com/kilianp07/evcharge/infra/registry"
	"github.com/kilianp07/evcharge/infra/storage"
)

// Service orchestrates the central server and its telemetry endpoints.
type Service struct {
	Central *central.Server

	audit       coreaudit.Sink
	sink        coremetrics.Sink
	log         logger.Logger
	promEnabled bool
	promPort    string
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	store, err := storage.NewFileStore(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}

	var verifier coreregistry.Verifier = coreregistry.AllowAll{}
	if cfg.Registry.URL != "" {
		verifier = registry.NewClient(cfg.Registry)
	} else {
		logg.Warnf("no registry configured, accepting all charging points")
	}

	auditSink, err := infraaudit.New(cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("audit sink: %w", err)
	}

	var sinks []coremetrics.Sink
	if cfg.Metrics.PrometheusEnabled {
		sinks = append(sinks, metrics.NewPromSink(nil))
	}
	if cfg.Metrics.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(
			cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken,
			cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket))
	}
	var sink coremetrics.Sink
	switch len(sinks) {
	case 0:
		sink = coremetrics.NopSink{}
	case 1:
		sink = sinks[0]
	default:
		sink = metrics.NewMultiSink(sinks...)
	}

	srv := central.New(cfg.Central, store, verifier, auditSink, sink, logger.New("central"))
	return &Service{
		Central:     srv,
		audit:       auditSink,
		sink:        sink,
		log:         logg,
		promEnabled: cfg.Metrics.PrometheusEnabled,
		promPort:    cfg.Metrics.PrometheusPort,
	}, nil
}

// Run starts the service and blocks until the context is cancelled or the
// listener fails.
func (s *Service) Run(ctx context.Context) error {
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	return s.Central.Run(ctx)
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if err := s.audit.Close(); err != nil {
		s.log.Errorf("close audit sink: %v", err)
	}
	return s.sink.Close()
}
