package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthzReportsOK(t *testing.T) {
	handler := NewHealthHandlers(nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	handler.Healthz(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("expected status ok, got %v", resp["status"])
	}
}

func TestReadyzProbesChecks(t *testing.T) {
	handler := NewHealthHandlers(map[string]ReadinessCheck{
		"firestore": func(ctx context.Context) error { return nil },
		"pubsub":    func(ctx context.Context) error { return nil },
	})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Fatalf("expected status ok, got %s", resp.Status)
	}
	if resp.Checks["firestore"] != "ok" || resp.Checks["pubsub"] != "ok" {
		t.Fatalf("unexpected checks %+v", resp.Checks)
	}
}

func TestReadyzFailsWhenDependencyIsDown(t *testing.T) {
	handler := NewHealthHandlers(map[string]ReadinessCheck{
		"firestore": func(ctx context.Context) error { return errors.New("connection refused") },
		"pubsub":    func(ctx context.Context) error { return nil },
	})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "unavailable" {
		t.Fatalf("expected status unavailable, got %s", resp.Status)
	}
	if resp.Checks["firestore"] != "connection refused" {
		t.Fatalf("unexpected firestore check %q", resp.Checks["firestore"])
	}
}
