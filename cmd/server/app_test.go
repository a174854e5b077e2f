// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tomtom215/watchpost/internal/config"
)

func testConfig(t *testing.T, store string) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	cfg.Database.Path = ""
	cfg.Database.MaxMemory = ""
	cfg.Baseline.Store = store
	cfg.Baseline.BadgerPath = ""
	cfg.Ingest.NATSEnabled = false
	return cfg
}

func TestNewApp_ServesAPI(t *testing.T) {
	for _, store := range []string{"duckdb", "badger"} {
		t.Run(store, func(t *testing.T) {
			a, err := newApp(testConfig(t, store))
			if err != nil {
				t.Fatalf("newApp() error = %v", err)
			}
			defer a.Close()

			if a.ingestor != nil {
				t.Error("ingestor created with NATS disabled")
			}

			rec := httptest.NewRecorder()
			a.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("health status = %d", rec.Code)
			}

			body := `{"event_id":"e1","source_id":"yard","timestamp":"2026-03-02T10:00:00Z","categories":["car"],"confidence":0.7}`
			rec = httptest.NewRecorder()
			a.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(body)))
			if rec.Code != http.StatusOK {
				t.Fatalf("ingest status = %d: %s", rec.Code, rec.Body.String())
			}

			rec = httptest.NewRecorder()
			a.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/baselines/yard", nil))
			if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"total_samples":1`) {
				t.Errorf("baseline status = %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestNewApp_ServerAddress(t *testing.T) {
	cfg := testConfig(t, "duckdb")
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 9191

	a, err := newApp(cfg)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.Close()

	if a.server.Addr != "127.0.0.1:9191" {
		t.Errorf("Addr = %q", a.server.Addr)
	}
}

func TestApp_CloseIsIdempotent(t *testing.T) {
	a, err := newApp(testConfig(t, "duckdb"))
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	a.Close()
	a.Close()
	if a.closers != nil {
		t.Error("closers not cleared")
	}
}
