package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/xianjianshenqu/health-report-analyzer/internal/shared/config"
)

func TestHealthEndpoint(t *testing.T) {
	router, err := NewRouter(config.Config{
		JWTSecret:     "router-test-secret",
		LocalStoreDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Status != "OK" {
		t.Fatalf("status field = %q, want OK", payload.Status)
	}
}

func TestAddr(t *testing.T) {
	cases := map[string]string{
		"":      ":8080",
		"9090":  ":9090",
		":7000": ":7000",
	}
	for port, want := range cases {
		if got := Addr(port); got != want {
			t.Fatalf("Addr(%q) = %q, want %q", port, got, want)
		}
	}
}
