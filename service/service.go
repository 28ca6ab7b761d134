package service

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/ethereum-optimism/infra/op-describe/metrics"
	"github.com/ethereum/go-ethereum/log"
)

const (
	HealthzHost = "0.0.0.0"
	HealthzPort = "8080"

	MetricsHost = "0.0.0.0"
	MetricsPort = "7300"
)

// Config holds the listen addresses. Empty fields use the defaults above.
type Config struct {
	HealthzAddr string
	MetricsAddr string
}

func (c Config) healthzAddr() string {
	if c.HealthzAddr != "" {
		return c.HealthzAddr
	}
	return net.JoinHostPort(HealthzHost, HealthzPort)
}

func (c Config) metricsAddr() string {
	if c.MetricsAddr != "" {
		return c.MetricsAddr
	}
	return net.JoinHostPort(MetricsHost, MetricsPort)
}

type Service struct {
	Healthz *HealthzServer
	Metrics *MetricsServer
	Results *ResultStore

	cfg Config
	log log.Logger
}

func New(logger log.Logger, cfg Config) *Service {
	if logger == nil {
		logger = log.New()
	}
	results := NewResultStore()
	s := &Service{
		Healthz: &HealthzServer{log: logger, results: results},
		Metrics: &MetricsServer{},
		Results: results,
		cfg:     cfg,
		log:     logger,
	}
	return s
}

func (s *Service) Start(ctx context.Context) {
	s.log.Info("service starting")

	go func() {
		addr := s.cfg.healthzAddr()
		s.log.Info("starting healthz server", "addr", addr)
		if err := s.Healthz.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("error starting healthz server", "err", err)
			metrics.RecordErrorDetails("error starting healthz server", err)
		}
	}()

	go func() {
		addr := s.cfg.metricsAddr()
		s.log.Info("starting metrics server", "addr", addr)
		if err := s.Metrics.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("error starting metrics server", "err", err)
			metrics.RecordErrorDetails("error starting metrics server", err)
		}
	}()

	s.log.Info("service started")
}

func (s *Service) Shutdown() {
	s.log.Info("service shutting down")

	_ = s.Healthz.Shutdown()
	s.log.Info("healthz stopped")

	_ = s.Metrics.Shutdown()
	s.log.Info("metrics stopped")

	s.log.Info("service stopped")
}
