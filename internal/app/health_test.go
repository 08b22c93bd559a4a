package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	h := newHarness(t, nil, Options{})
	rr := h.do(http.MethodGet, "/api/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if ok, exists := response["ok"]; !exists || ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestReadyEndpoint_Success(t *testing.T) {
	h := newHarness(t, nil, Options{Ping: func(context.Context) error { return nil }})
	rr := h.do(http.MethodGet, "/api/ready", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response["status"] != "ready" {
		t.Errorf("expected status=ready, got %v", response["status"])
	}
}

func TestReadyEndpoint_BackendDown(t *testing.T) {
	h := newHarness(t, nil, Options{Ping: func(context.Context) error { return errors.New("connection refused") }})
	rr := h.do(http.MethodGet, "/api/ready", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response["ok"] != false || response["status"] != "not_ready" {
		t.Errorf("unexpected readiness payload: %v", response)
	}
	checks, _ := response["checks"].(map[string]any)
	sessions, _ := checks["sessions"].(map[string]any)
	if sessions["error"] != "connection refused" {
		t.Errorf("expected sessions error to be reported, got %v", sessions)
	}
}

func TestUnknownRouteAndPreflight(t *testing.T) {
	h := newHarness(t, nil, Options{})
	expectError(t, h.do(http.MethodGet, "/api/nope", "", nil), http.StatusNotFound, "NOT_FOUND")

	rr := h.do(http.MethodOptions, "/api/sessions", "", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, ActorHeader) {
		t.Errorf("preflight should allow %s, got %q", ActorHeader, got)
	}
}

