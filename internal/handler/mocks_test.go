package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/memberhub/internal/middleware"
	"github.com/hitoshi/memberhub/internal/model"
	"github.com/hitoshi/memberhub/internal/post"
	"github.com/hitoshi/memberhub/internal/profile"
	"github.com/hitoshi/memberhub/internal/user"
)

// --- モック定義 ---

type mockUserService struct {
	listFn   func(ctx context.Context) ([]*model.User, error)
	getFn    func(ctx context.Context, id string) (*model.User, error)
	createFn func(ctx context.Context, in user.CreateInput) (*model.User, error)
	updateFn func(ctx context.Context, id string, patch model.UserPatch) (*model.User, error)
	deleteFn func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserService) List(ctx context.Context) ([]*model.User, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return []*model.User{}, nil
}

func (m *mockUserService) Get(ctx context.Context, id string) (*model.User, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, model.NewUserNotFoundError(id)
}

func (m *mockUserService) Create(ctx context.Context, in user.CreateInput) (*model.User, error) {
	if m.createFn != nil {
		return m.createFn(ctx, in)
	}
	return &model.User{ID: "u-1", FirstName: in.FirstName, LastName: in.LastName, Email: in.Email}, nil
}

func (m *mockUserService) Update(ctx context.Context, id string, patch model.UserPatch) (*model.User, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, patch)
	}
	return nil, model.NewUserNotFoundError(id)
}

func (m *mockUserService) Delete(ctx context.Context, id string) (*model.User, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil, model.NewUserNotFoundError(id)
}

type mockSubscriptionService struct {
	subscribeFn   func(ctx context.Context, followerID, targetID string) (*model.User, error)
	unsubscribeFn func(ctx context.Context, followerID, targetID string) (*model.User, error)
}

func (m *mockSubscriptionService) Subscribe(ctx context.Context, followerID, targetID string) (*model.User, error) {
	return m.subscribeFn(ctx, followerID, targetID)
}

func (m *mockSubscriptionService) Unsubscribe(ctx context.Context, followerID, targetID string) (*model.User, error) {
	return m.unsubscribeFn(ctx, followerID, targetID)
}

type mockProfileService struct {
	ProfileServiceInterface
	createFn func(ctx context.Context, in profile.CreateInput) (*model.Profile, error)
	updateFn func(ctx context.Context, id string, patch model.ProfilePatch) (*model.Profile, error)
}

func (m *mockProfileService) Create(ctx context.Context, in profile.CreateInput) (*model.Profile, error) {
	return m.createFn(ctx, in)
}

func (m *mockProfileService) Update(ctx context.Context, id string, patch model.ProfilePatch) (*model.Profile, error) {
	return m.updateFn(ctx, id, patch)
}

type mockPostService struct {
	PostServiceInterface
	createFn func(ctx context.Context, userID string, draft post.Draft) (*model.Post, error)
	updateFn func(ctx context.Context, id string, patch model.PostPatch) (*model.Post, error)
}

func (m *mockPostService) Create(ctx context.Context, userID string, draft post.Draft) (*model.Post, error) {
	return m.createFn(ctx, userID, draft)
}

func (m *mockPostService) Update(ctx context.Context, id string, patch model.PostPatch) (*model.Post, error) {
	return m.updateFn(ctx, id, patch)
}

type mockImporter struct {
	importFn func(ctx context.Context, userID, rawURL string) ([]*model.Post, error)
}

func (m *mockImporter) Import(ctx context.Context, userID, rawURL string) ([]*model.Post, error) {
	return m.importFn(ctx, userID, rawURL)
}

type mockMemberTypeService struct {
	MemberTypeServiceInterface
	getFn    func(ctx context.Context, id model.MemberTypeID) (*model.MemberType, error)
	updateFn func(ctx context.Context, id model.MemberTypeID, patch model.MemberTypePatch) (*model.MemberType, error)
}

func (m *mockMemberTypeService) Get(ctx context.Context, id model.MemberTypeID) (*model.MemberType, error) {
	return m.getFn(ctx, id)
}

func (m *mockMemberTypeService) Update(ctx context.Context, id model.MemberTypeID, patch model.MemberTypePatch) (*model.MemberType, error) {
	return m.updateFn(ctx, id, patch)
}

// --- テストヘルパー ---

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseErrorBody はレスポンスボディから統一エラーフォーマットをパースするヘルパー。
func parseErrorBody(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v\nbody: %s", err, w.Body.String())
	}
	return v
}
