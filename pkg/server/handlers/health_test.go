package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"sundial-hq/aperture/pkg/dedup"
	"sundial-hq/aperture/pkg/gateway"
	"sundial-hq/aperture/pkg/keypool"
	"sundial-hq/aperture/pkg/settings"
	"sundial-hq/aperture/pkg/upstream"
)

func getJSON(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return rec, body
}

func TestHealthHandler(t *testing.T) {
	rec, body := getJSON(t, NewHealthHandler(), "/health")

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if body["status"] != "ok" {
		t.Errorf("Expected status %q, got %v", "ok", body["status"])
	}
}

func TestReadyHandlerWithCredentials(t *testing.T) {
	gw := newTestGateway(t, &stubClient{}, nil)

	rec, body := getJSON(t, NewReadyHandler(gw), "/ready")

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if body["status"] != "ready" {
		t.Errorf("Expected status %q, got %v", "ready", body["status"])
	}
}

func TestReadyHandlerEmptyPool(t *testing.T) {
	logger := discardLogger()
	gw := gateway.New(gateway.Options{
		Pool:            keypool.New(settings.NewMemoryStore(), logger, keypool.Options{}),
		Dedup:           dedup.New(logger, dedup.Options{}),
		Clients:         map[string]upstream.Client{"gemini": &stubClient{}},
		DefaultEndpoint: "gemini",
		Logger:          logger,
	})

	rec, body := getJSON(t, NewReadyHandler(gw), "/ready")

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}
	if body["status"] != "not_ready" {
		t.Errorf("Expected status %q, got %v", "not_ready", body["status"])
	}
}

func TestModelsHandler(t *testing.T) {
	logger := discardLogger()
	catalog := keypool.NewModelCatalog()
	catalog.Replace([]string{"gemini-2.0-flash", "gemini-2.0-pro"})

	pool := keypool.New(settings.NewMemoryStore(), logger, keypool.Options{})
	pool.Add("test-credential")
	gw := gateway.New(gateway.Options{
		Pool:            pool,
		Dedup:           dedup.New(logger, dedup.Options{}),
		Catalog:         catalog,
		Clients:         map[string]upstream.Client{"gemini": &stubClient{}},
		DefaultEndpoint: "gemini",
		Logger:          logger,
	})

	rec, body := getJSON(t, NewModelsHandler(gw), "/v1/models")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, rec.Code)
	}
	models, ok := body["models"].([]any)
	if !ok {
		t.Fatalf("Expected models list, got %T", body["models"])
	}
	if len(models) != 2 {
		t.Errorf("Expected 2 models, got %d", len(models))
	}
}

func TestStatsHandler(t *testing.T) {
	gw := newTestGateway(t, &stubClient{}, nil)

	rec, body := getJSON(t, NewStatsHandler(gw), "/v1/stats")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if body["pool_size"] != float64(1) {
		t.Errorf("Expected pool size 1, got %v", body["pool_size"])
	}
}

func TestHealthHandlerMethodNotAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	rec := httptest.NewRecorder()
	NewHealthHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}
