package handler

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/memberhub/internal/importer"
	"github.com/hitoshi/memberhub/internal/lock"
	"github.com/hitoshi/memberhub/internal/membertype"
	"github.com/hitoshi/memberhub/internal/metrics"
	"github.com/hitoshi/memberhub/internal/middleware"
	"github.com/hitoshi/memberhub/internal/model"
	"github.com/hitoshi/memberhub/internal/post"
	"github.com/hitoshi/memberhub/internal/profile"
	"github.com/hitoshi/memberhub/internal/repository"
	"github.com/hitoshi/memberhub/internal/security"
	"github.com/hitoshi/memberhub/internal/subscription"
	"github.com/hitoshi/memberhub/internal/user"
)

// --- 統合テスト用ルーター構築ヘルパー ---

// newIntegrationRouter はメモリストア上の実サービスで組み立てたルーターを返す。
func newIntegrationRouter(t *testing.T, rlCfg middleware.RateLimiterConfig) http.Handler {
	t.Helper()
	const timeout = time.Second

	store := repository.NewMemoryStore()
	users := repository.NewMemoryUserRepo(store)
	profiles := repository.NewMemoryProfileRepo(store)
	posts := repository.NewMemoryPostRepo(store)
	locker := lock.NewKeyedMutex()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	subSvc := subscription.NewService(users, locker, nil, collector, timeout)
	userSvc := user.NewService(user.ServiceDeps{
		UserRepo:    users,
		ProfileRepo: profiles,
		PostRepo:    posts,
		Purger:      subSvc,
		Locker:      locker,
		Metrics:     collector,
		CallTimeout: timeout,
	})
	postSvc := post.NewService(posts, users, locker, security.NewPostSanitizer(), timeout)
	imp := importer.New(userSvc, postSvc, security.NewSafeURLGuard(), collector, importer.Config{
		Timeout: timeout, MaxBytes: 1 << 20, MaxItems: 10,
	})

	rl := middleware.NewRateLimiter(rlCfg)
	t.Cleanup(rl.Stop)

	return NewRouter(&RouterDeps{
		Logger:              nil,
		CORSAllowedOrigin:   "http://localhost:3000",
		RateLimiter:         rl,
		Metrics:             collector,
		MetricsGatherer:     reg,
		HealthChecker:       store,
		UserService:         userSvc,
		SubscriptionService: subSvc,
		ProfileService:      profile.NewService(profiles, users, locker, timeout),
		PostService:         postSvc,
		PostImporter:        imp,
		MemberTypeService:   membertype.NewService(repository.NewMemoryMemberTypeRepo(store), timeout),
	})
}

func generousLimits() middleware.RateLimiterConfig {
	return middleware.RateLimiterConfig{GeneralPerMinute: 1000, ImportPerMinute: 1000, CleanupInterval: time.Minute}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func mustCreateUser(t *testing.T, h http.Handler, first string) userResponse {
	t.Helper()
	w := do(t, h, http.MethodPost, "/users", `{"firstName":"`+first+`","lastName":"L","email":"`+strings.ToLower(first)+`@example.com"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("create user: status = %d, body = %s", w.Code, w.Body.String())
	}
	return decodeBody[userResponse](t, w)
}

// --- シナリオ ---

func TestRouter_CascadeDeletionScenario(t *testing.T) {
	h := newIntegrationRouter(t, generousLimits())

	alice := mustCreateUser(t, h, "Alice")
	bob := mustCreateUser(t, h, "Bob")

	// Alice が Bob を購読する: Bob の購読リストに Alice が入る
	w := do(t, h, http.MethodPost, "/users/"+alice.ID+"/subscribeTo", `{"userId":"`+bob.ID+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("subscribeTo: status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decodeBody[userResponse](t, w); len(got.SubscribedToUserIDs) != 1 || got.SubscribedToUserIDs[0] != alice.ID {
		t.Fatalf("bob.subscribedToUserIds = %v", got.SubscribedToUserIDs)
	}

	// 重複購読は変更なし
	w = do(t, h, http.MethodPost, "/users/"+alice.ID+"/subscribeTo", `{"userId":"`+bob.ID+`"}`)
	if got := decodeBody[userResponse](t, w); len(got.SubscribedToUserIDs) != 1 {
		t.Errorf("duplicate subscribe changed the list: %v", got.SubscribedToUserIDs)
	}

	w = do(t, h, http.MethodPost, "/profiles", `{"avatar":"a.png","sex":"f","birthday":0,"country":"JP","street":"1-1","city":"Tokyo","memberTypeId":"basic","userId":"`+alice.ID+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("create profile: status = %d, body = %s", w.Code, w.Body.String())
	}
	w = do(t, h, http.MethodPost, "/profiles", `{"avatar":"b.png","sex":"f","birthday":0,"country":"JP","street":"1-1","city":"Tokyo","memberTypeId":"basic","userId":"`+alice.ID+`"}`)
	if w.Code != http.StatusBadRequest || parseErrorBody(t, w).Code != model.ErrCodeProfileAlreadyExists {
		t.Errorf("second profile: status = %d", w.Code)
	}

	for _, title := range []string{"one", "two"} {
		w = do(t, h, http.MethodPost, "/posts", `{"title":"`+title+`","content":"<p>x</p>","userId":"`+alice.ID+`"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("create post: status = %d, body = %s", w.Code, w.Body.String())
		}
	}

	w = do(t, h, http.MethodDelete, "/users/"+alice.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete: status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decodeBody[userResponse](t, w); got.ID != alice.ID || got.FirstName != "Alice" {
		t.Errorf("snapshot = %+v", got)
	}

	if w = do(t, h, http.MethodGet, "/users/"+alice.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("get deleted user: status = %d", w.Code)
	}
	w = do(t, h, http.MethodGet, "/users/"+bob.ID, "")
	if got := decodeBody[userResponse](t, w); len(got.SubscribedToUserIDs) != 0 {
		t.Errorf("dangling reference left: %v", got.SubscribedToUserIDs)
	}
	if got := decodeBody[[]postResponse](t, do(t, h, http.MethodGet, "/posts", "")); len(got) != 0 {
		t.Errorf("posts left: %d", len(got))
	}
	if got := decodeBody[[]profileResponse](t, do(t, h, http.MethodGet, "/profiles", "")); len(got) != 0 {
		t.Errorf("profiles left: %d", len(got))
	}

	// 削除済みユーザーとの購読は NotFound
	w = do(t, h, http.MethodPost, "/users/"+bob.ID+"/subscribeTo", `{"userId":"`+alice.ID+`"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("subscribe to deleted user: status = %d", w.Code)
	}
}

func TestRouter_UnsubscribeWithoutSubscription(t *testing.T) {
	h := newIntegrationRouter(t, generousLimits())
	a := mustCreateUser(t, h, "A")
	b := mustCreateUser(t, h, "B")

	w := do(t, h, http.MethodPost, "/users/"+a.ID+"/unsubscribeFrom", `{"userId":"`+b.ID+`"}`)
	if w.Code != http.StatusBadRequest || parseErrorBody(t, w).Code != model.ErrCodeSubscriptionNotFound {
		t.Errorf("status = %d", w.Code)
	}

	w = do(t, h, http.MethodPost, "/users/"+a.ID+"/subscribeTo", `{"userId":"`+a.ID+`"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("self subscribe: status = %d", w.Code)
	}
}

func TestRouter_InvalidIDs(t *testing.T) {
	h := newIntegrationRouter(t, generousLimits())

	for _, path := range []string{"/users/not-a-uuid", "/profiles/not-a-uuid", "/posts/not-a-uuid"} {
		w := do(t, h, http.MethodGet, path, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("GET %s: status = %d, want 400", path, w.Code)
		}
	}
	if w := do(t, h, http.MethodDelete, "/users/not-a-uuid", ""); w.Code != http.StatusBadRequest {
		t.Errorf("DELETE: status = %d, want 400", w.Code)
	}
}

func TestRouter_MemberTypes(t *testing.T) {
	h := newIntegrationRouter(t, generousLimits())

	got := decodeBody[[]memberTypeResponse](t, do(t, h, http.MethodGet, "/member-types", ""))
	if len(got) != 2 {
		t.Fatalf("member types = %+v", got)
	}

	w := do(t, h, http.MethodPatch, "/member-types/business", `{"monthPostsLimit":50}`)
	if w.Code != http.StatusOK {
		t.Fatalf("patch: status = %d, body = %s", w.Code, w.Body.String())
	}
	if mt := decodeBody[memberTypeResponse](t, w); mt.MonthPostsLimit != 50 || mt.Discount != 5 {
		t.Errorf("updated = %+v", mt)
	}

	if w = do(t, h, http.MethodGet, "/member-types/premium", ""); w.Code != http.StatusNotFound {
		t.Errorf("GET unknown member type: status = %d, want 404", w.Code)
	}
	if w = do(t, h, http.MethodPatch, "/member-types/premium", `{"discount":1}`); w.Code != http.StatusBadRequest {
		t.Errorf("PATCH unknown member type: status = %d, want 400", w.Code)
	}
}

func TestRouter_ImportRateLimitAndSSRF(t *testing.T) {
	h := newIntegrationRouter(t, middleware.RateLimiterConfig{GeneralPerMinute: 1000, ImportPerMinute: 1, CleanupInterval: time.Minute})
	u := mustCreateUser(t, h, "Importer")

	body := `{"userId":"` + u.ID + `","url":"http://127.0.0.1/feed.xml"}`
	w := do(t, h, http.MethodPost, "/posts/import", body)
	if w.Code != http.StatusForbidden || parseErrorBody(t, w).Code != model.ErrCodeSSRFBlocked {
		t.Fatalf("first import: status = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, h, http.MethodPost, "/posts/import", body)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second import: status = %d, want 429", w.Code)
	}

	// API全般の制限には影響しない
	if w = do(t, h, http.MethodGet, "/users", ""); w.Code != http.StatusOK {
		t.Errorf("GET /users: status = %d", w.Code)
	}
}

func TestRouter_HealthMetricsAndFallbacks(t *testing.T) {
	h := newIntegrationRouter(t, generousLimits())

	w := do(t, h, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("health: status = %d, body = %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}

	w = do(t, h, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "memberhub_http_status_total") {
		t.Errorf("metrics: status = %d", w.Code)
	}

	w = do(t, h, http.MethodGet, "/nowhere", "")
	if w.Code != http.StatusNotFound || parseErrorBody(t, w).Code != "ROUTE_NOT_FOUND" {
		t.Errorf("unknown route: status = %d", w.Code)
	}

	w = do(t, h, http.MethodPut, "/users", `{}`)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("PUT /users: status = %d, want 405", w.Code)
	}
}
