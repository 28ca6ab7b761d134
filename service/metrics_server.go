package service

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// MetricsServer exposes the default Prometheus registry on /metrics
type MetricsServer struct {
	ctx    context.Context
	server *http.Server
}

func (m *MetricsServer) Handler() http.Handler {
	hdlr := http.NewServeMux()
	hdlr.Handle("/metrics", promhttp.Handler())
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return c.Handler(hdlr)
}

func (m *MetricsServer) Start(ctx context.Context, addr string) error {
	m.server = &http.Server{
		Handler: m.Handler(),
		Addr:    addr,
	}
	m.ctx = ctx
	return m.server.ListenAndServe()
}

func (m *MetricsServer) Shutdown() error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(m.ctx)
}
