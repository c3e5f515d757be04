package app

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func serverPort(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	return u.Port()
}

func TestRun_Healthcheck_Healthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %q, want /health", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	if err := Run(&buf, []string{"healthcheck", "--port", serverPort(t, srv)}); err != nil {
		t.Fatalf("expected healthy, got %v", err)
	}
}

func TestRun_Healthcheck_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	err := Run(&buf, []string{"healthcheck", "--port", serverPort(t, srv)})
	if err == nil {
		t.Fatal("expected error for 503")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("error = %v", err)
	}
}

func TestRun_Healthcheck_UsesServerPortEnv(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	t.Setenv("SERVER_PORT", serverPort(t, srv))

	var buf bytes.Buffer
	if err := Run(&buf, []string{"healthcheck"}); err != nil {
		t.Fatalf("expected healthy, got %v", err)
	}
}

func TestRun_Reconcile_MemoryStore(t *testing.T) {
	setMemoryEnv(t)

	var buf bytes.Buffer
	if err := Run(&buf, []string{"reconcile"}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !strings.Contains(buf.String(), "scanned=0 repaired_users=0") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestRun_Migrate_MemoryStore_ReturnsError(t *testing.T) {
	setMemoryEnv(t)

	var buf bytes.Buffer
	if err := Run(&buf, []string{"migrate"}); err == nil {
		t.Fatal("migrate should fail without postgres")
	}
}

func TestRun_Serve_WithMissingDatabaseURL_ReturnsError(t *testing.T) {
	setMemoryEnv(t)
	t.Setenv("STORE_DRIVER", "postgres")

	var buf bytes.Buffer
	if err := Run(&buf, []string{"serve"}); err == nil {
		t.Fatal("serve should fail when DATABASE_URL is missing")
	}
}
