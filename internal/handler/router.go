package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/memberhub/internal/importer"
	"github.com/hitoshi/memberhub/internal/membertype"
	"github.com/hitoshi/memberhub/internal/metrics"
	"github.com/hitoshi/memberhub/internal/middleware"
	"github.com/hitoshi/memberhub/internal/model"
	"github.com/hitoshi/memberhub/internal/post"
	"github.com/hitoshi/memberhub/internal/profile"
	"github.com/hitoshi/memberhub/internal/repository"
	"github.com/hitoshi/memberhub/internal/subscription"
	"github.com/hitoshi/memberhub/internal/user"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Metrics           metrics.MetricsCollector
	// MetricsGatherer が nil の場合は /metrics を公開しない
	MetricsGatherer prometheus.Gatherer

	HealthChecker repository.HealthChecker

	UserService         UserServiceInterface
	SubscriptionService SubscriptionServiceInterface
	ProfileService      ProfileServiceInterface
	PostService         PostServiceInterface
	PostImporter        PostImporter
	MemberTypeService   MemberTypeServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Recovery → Logging → Metrics → SecurityHeaders → CORS → RateLimit(General)
//
// /health と /metrics はレート制限の外に配置する。
// POST /posts/import には取り込み専用のレート制限を追加で適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(collector))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeAPIErrorResponse(w, http.StatusNotFound, routeNotFoundError())
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeAPIErrorResponse(w, http.StatusMethodNotAllowed, methodNotAllowedError())
	})

	healthHandler := NewHealthHandler(deps.HealthChecker)
	userHandler := NewUserHandler(deps.UserService)
	subHandler := NewSubscriptionHandler(deps.SubscriptionService)
	profileHandler := NewProfileHandler(deps.ProfileService)
	postHandler := NewPostHandler(deps.PostService, deps.PostImporter)
	memberTypeHandler := NewMemberTypeHandler(deps.MemberTypeService)

	r.Get("/health", healthHandler.Health)
	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/users", func(r chi.Router) {
			r.Get("/", userHandler.ListUsers)
			r.Post("/", userHandler.CreateUser)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", userHandler.GetUser)
				r.Patch("/", userHandler.UpdateUser)
				r.Delete("/", userHandler.DeleteUser)
				r.Post("/subscribeTo", subHandler.SubscribeTo)
				r.Post("/unsubscribeFrom", subHandler.UnsubscribeFrom)
			})
		})

		r.Route("/profiles", func(r chi.Router) {
			r.Get("/", profileHandler.ListProfiles)
			r.Post("/", profileHandler.CreateProfile)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", profileHandler.GetProfile)
				r.Patch("/", profileHandler.UpdateProfile)
				r.Delete("/", profileHandler.DeleteProfile)
			})
		})

		r.Route("/posts", func(r chi.Router) {
			r.Get("/", postHandler.ListPosts)
			r.Post("/", postHandler.CreatePost)
			// POST /posts/import - 外部取得を伴うため専用のレート制限を追加
			r.With(deps.RateLimiter.ImportMiddleware()).Post("/import", postHandler.ImportPosts)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", postHandler.GetPost)
				r.Patch("/", postHandler.UpdatePost)
				r.Delete("/", postHandler.DeletePost)
			})
		})

		r.Route("/member-types", func(r chi.Router) {
			r.Get("/", memberTypeHandler.ListMemberTypes)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", memberTypeHandler.GetMemberType)
				r.Patch("/", memberTypeHandler.UpdateMemberType)
			})
		})
	})

	return r
}

func routeNotFoundError() *model.APIError {
	return &model.APIError{
		Code:     "ROUTE_NOT_FOUND",
		Message:  "指定されたエンドポイントは存在しません。",
		Category: "system",
		Action:   "URLを確認してください。",
	}
}

func methodNotAllowedError() *model.APIError {
	return &model.APIError{
		Code:     "METHOD_NOT_ALLOWED",
		Message:  "このエンドポイントでは許可されていないメソッドです。",
		Category: "system",
		Action:   "HTTPメソッドを確認してください。",
	}
}

// compile-time interface checks
var (
	_ UserServiceInterface         = (*user.Service)(nil)
	_ SubscriptionServiceInterface = (*subscription.Service)(nil)
	_ ProfileServiceInterface      = (*profile.Service)(nil)
	_ PostServiceInterface         = (*post.Service)(nil)
	_ MemberTypeServiceInterface   = (*membertype.Service)(nil)
	_ PostImporter                 = (*importer.Importer)(nil)
)
