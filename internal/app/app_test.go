package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/memberhub/internal/config"
	"github.com/hitoshi/memberhub/internal/event"
	"github.com/hitoshi/memberhub/internal/lock"
	"github.com/hitoshi/memberhub/internal/model"
)

// setMemoryEnv は外部サービスに接続しない設定にする。
func setMemoryEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("AMQP_URL", "")
	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("RECONCILE_INTERVAL", "")
}

func newMemoryRuntime(t *testing.T) *Runtime {
	t.Helper()
	setMemoryEnv(t)
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	rt, err := Build(context.Background(), cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(rt.Close)
	return rt
}

func TestInit_WithMemoryConfig_Succeeds(t *testing.T) {
	setMemoryEnv(t)

	var buf bytes.Buffer
	cfg, l, err := Init(&buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg == nil || l == nil {
		t.Fatal("expected non-nil config and logger")
	}
	if cfg.StoreDriver != config.StoreMemory {
		t.Errorf("StoreDriver = %q, want memory", cfg.StoreDriver)
	}

	slog.Default().Info("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
	if entry["service"] != "memberhub" {
		t.Errorf("service = %v, want memberhub", entry["service"])
	}
}

func TestInit_WithMissingDatabaseURL_ReturnsError(t *testing.T) {
	setMemoryEnv(t)
	t.Setenv("STORE_DRIVER", "postgres")

	var buf bytes.Buffer
	cfg, _, err := Init(&buf)
	if err == nil {
		t.Fatal("expected error for postgres without DATABASE_URL, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}

func TestBuild_MemoryRuntime_UsesInProcessDefaults(t *testing.T) {
	rt := newMemoryRuntime(t)

	if _, ok := rt.Locker.(*lock.KeyedMutex); !ok {
		t.Errorf("Locker = %T, want *lock.KeyedMutex", rt.Locker)
	}
	if _, ok := rt.Publisher.(event.NoopPublisher); !ok {
		t.Errorf("Publisher = %T, want event.NoopPublisher", rt.Publisher)
	}
	if err := rt.Health.PingContext(context.Background()); err != nil {
		t.Errorf("PingContext: %v", err)
	}
}

func TestRuntime_NewHandler_ServesAPI(t *testing.T) {
	rt := newMemoryRuntime(t)
	h, rl := rt.NewHandler()
	defer rl.Stop()

	body := `{"firstName":"Ada","lastName":"Lovelace","email":"ada@example.com"}`
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(body)))
	if w.Code != http.StatusOK {
		t.Fatalf("POST /users status = %d, body = %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("GET /health status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "memberhub_http_status_total") {
		t.Error("metrics output should contain memberhub_http_status_total")
	}
}

func TestRunReconcile_RemovesDanglingReferences(t *testing.T) {
	rt := newMemoryRuntime(t)
	ctx := context.Background()

	const (
		aliceID = "0b5e3c1e-8f8e-4c4a-9d55-3c1f1b6a0001"
		bobID   = "0b5e3c1e-8f8e-4c4a-9d55-3c1f1b6a0002"
		ghostID = "0b5e3c1e-8f8e-4c4a-9d55-3c1f1b6a0099"
	)
	if err := rt.Users.Create(ctx, &model.User{ID: bobID, FirstName: "Bob", LastName: "B", Email: "bob@example.com"}); err != nil {
		t.Fatal(err)
	}
	alice := &model.User{
		ID: aliceID, FirstName: "Alice", LastName: "A", Email: "alice@example.com",
		SubscribedToUserIDs: []string{bobID, ghostID, bobID},
	}
	if err := rt.Users.Create(ctx, alice); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := runReconcile(ctx, rt, &out); err != nil {
		t.Fatalf("runReconcile: %v", err)
	}
	want := "scanned=2 repaired_users=1 removed_dangling=1 removed_duplicates=1"
	if !strings.Contains(out.String(), want) {
		t.Errorf("output = %q, want %q", out.String(), want)
	}

	got, err := rt.Users.FindByID(ctx, aliceID)
	if err != nil || got == nil {
		t.Fatalf("FindByID: %v", err)
	}
	if len(got.SubscribedToUserIDs) != 1 || got.SubscribedToUserIDs[0] != bobID {
		t.Errorf("SubscribedToUserIDs = %v, want [%s]", got.SubscribedToUserIDs, bobID)
	}
}

func TestRunMigrate_RejectsMemoryStore(t *testing.T) {
	cfg := &config.Config{StoreDriver: config.StoreMemory}
	err := runMigrate(cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if err == nil {
		t.Fatal("expected error for memory store")
	}
	if !strings.Contains(err.Error(), "STORE_DRIVER=postgres") {
		t.Errorf("error = %v", err)
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://user:secret@db:5432/memberhub?sslmode=disable", "postgres://***@db:5432/memberhub?sslmode=disable"},
		{"postgres://db:5432/memberhub", "postgres://db:5432/memberhub"},
		{"not a url", "not a url"},
	}
	for _, tt := range tests {
		if got := maskDatabaseURL(tt.in); got != tt.want {
			t.Errorf("maskDatabaseURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
