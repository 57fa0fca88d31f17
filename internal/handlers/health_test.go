package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHealthHandlersHealthz(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	handlers := NewHealthHandlers(
		WithHealthClock(func() time.Time { return now }),
		WithHealthVersion("1.2.3"),
	)
	now = start.Add(30 * time.Second)

	rr := httptest.NewRecorder()
	handlers.Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var body healthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %s", body.Status)
	}
	if body.Uptime != "30s" {
		t.Fatalf("expected uptime 30s, got %s", body.Uptime)
	}
	if body.Version != "1.2.3" {
		t.Fatalf("expected version 1.2.3, got %s", body.Version)
	}
}

func TestHealthHandlersReadyzAllHealthy(t *testing.T) {
	handlers := NewHealthHandlers(
		WithReadinessCheck("firestore", func(ctx context.Context) error { return nil }),
		WithReadinessCheck("pubsub", func(ctx context.Context) error { return nil }),
	)

	rr := httptest.NewRecorder()
	handlers.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var body readinessResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Status != "ready" {
		t.Fatalf("expected ready, got %s", body.Status)
	}
	if body.Checks["firestore"] != "ok" || body.Checks["pubsub"] != "ok" {
		t.Fatalf("unexpected checks %v", body.Checks)
	}
}

func TestHealthHandlersReadyzFailingProbe(t *testing.T) {
	handlers := NewHealthHandlers(
		WithReadinessCheck("firestore", func(ctx context.Context) error {
			return errors.New("connection refused")
		}),
	)

	rr := httptest.NewRecorder()
	handlers.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	var body readinessResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Status != "not_ready" {
		t.Fatalf("expected not_ready, got %s", body.Status)
	}
	if body.Checks["firestore"] != "connection refused" {
		t.Fatalf("expected probe error surfaced, got %v", body.Checks)
	}
}
