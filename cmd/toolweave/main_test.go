package main

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/toolweave/toolweave/internal/config"
)

func TestMetricsServerDisabledWhenListenEmpty(t *testing.T) {
	a := &app{cfg: &config.Config{}, promRegistry: prometheus.NewRegistry()}
	if srv := a.metricsServer(); srv != nil {
		t.Fatalf("metricsServer = %v, want nil for empty listen address", srv)
	}
}

func TestMetricsServerServesRegistry(t *testing.T) {
	a := &app{cfg: &config.Config{}, promRegistry: prometheus.NewRegistry()}
	a.cfg.Metrics.Listen = ":9090"
	srv := a.metricsServer()
	if srv == nil {
		t.Fatal("metricsServer = nil")
	}
	if srv.Addr != ":9090" {
		t.Errorf("Addr = %q, want :9090", srv.Addr)
	}

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Errorf("GET /metrics = %d, want 200", w.Code)
	}
}
