// Package app はコマンドごとの依存関係の組み立てと起動処理を提供する。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/memberhub/internal/config"
	"github.com/hitoshi/memberhub/internal/database"
	"github.com/hitoshi/memberhub/internal/event"
	"github.com/hitoshi/memberhub/internal/handler"
	"github.com/hitoshi/memberhub/internal/importer"
	"github.com/hitoshi/memberhub/internal/lock"
	"github.com/hitoshi/memberhub/internal/logger"
	"github.com/hitoshi/memberhub/internal/membertype"
	"github.com/hitoshi/memberhub/internal/metrics"
	"github.com/hitoshi/memberhub/internal/middleware"
	"github.com/hitoshi/memberhub/internal/post"
	"github.com/hitoshi/memberhub/internal/profile"
	"github.com/hitoshi/memberhub/internal/repository"
	"github.com/hitoshi/memberhub/internal/security"
	"github.com/hitoshi/memberhub/internal/subscription"
	"github.com/hitoshi/memberhub/internal/user"
	"github.com/hitoshi/memberhub/internal/worker/reconcile"
)

// Init は .env と環境変数から設定を読み込み、JSON構造化ログをセットアップする。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		// 設定が読めない場合もエラーはJSONで出す
		logger.SetupDefault(w, slog.LevelInfo)
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	l := logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, l, nil
}

// Runtime はストア・ロック・イベント・メトリクスを組み立てたもの。
// コマンドの終了時に Close で接続を閉じる。
type Runtime struct {
	Config *config.Config
	Logger *slog.Logger

	Health      repository.HealthChecker
	Users       repository.UserRepository
	Profiles    repository.ProfileRepository
	Posts       repository.PostRepository
	MemberTypes repository.MemberTypeRepository

	Locker    lock.Locker
	Publisher event.Publisher
	Metrics   *metrics.Collector
	Registry  *prometheus.Registry

	closers []func()
}

// Build は設定に従って Runtime を組み立てる。
// STORE_DRIVER=postgres ならPostgreSQL、REDIS_ADDR があればRedisロック、AMQP_URL があればRabbitMQへのイベント発行を使う。
func Build(ctx context.Context, cfg *config.Config, l *slog.Logger) (*Runtime, error) {
	if l == nil {
		l = slog.Default()
	}
	rt := &Runtime{Config: cfg, Logger: l}

	if err := rt.buildStore(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	if err := rt.buildLocker(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	if err := rt.buildPublisher(); err != nil {
		rt.Close()
		return nil, err
	}

	rt.Registry = prometheus.NewRegistry()
	rt.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rt.Metrics = metrics.NewCollector(rt.Registry)
	return rt, nil
}

func (rt *Runtime) buildStore(ctx context.Context) error {
	switch rt.Config.StoreDriver {
	case config.StorePostgres:
		db, err := database.Connect(ctx, rt.Config.DatabaseURL, 10*time.Second)
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, func() { db.Close() })
		rt.Health = db
		rt.Users = repository.NewPostgresUserRepo(db)
		rt.Profiles = repository.NewPostgresProfileRepo(db)
		rt.Posts = repository.NewPostgresPostRepo(db)
		rt.MemberTypes = repository.NewPostgresMemberTypeRepo(db)
		rt.Logger.Info("database connection established")
	default:
		store := repository.NewMemoryStore()
		rt.Health = store
		rt.Users = repository.NewMemoryUserRepo(store)
		rt.Profiles = repository.NewMemoryProfileRepo(store)
		rt.Posts = repository.NewMemoryPostRepo(store)
		rt.MemberTypes = repository.NewMemoryMemberTypeRepo(store)
		rt.Logger.Info("using in-memory store")
	}
	return nil
}

func (rt *Runtime) buildLocker(ctx context.Context) error {
	if rt.Config.RedisAddr == "" {
		rt.Locker = lock.NewKeyedMutex()
		return nil
	}

	rdb := lock.NewRedisClient(rt.Config.RedisAddr, rt.Config.RedisPassword, rt.Config.RedisDB)
	rt.closers = append(rt.closers, func() { rdb.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	rt.Locker = lock.NewRedisLocker(rdb, rt.Config.LockTTL)
	rt.Logger.Info("using redis locker", slog.String("addr", rt.Config.RedisAddr))
	return nil
}

func (rt *Runtime) buildPublisher() error {
	if rt.Config.AMQPURL == "" {
		rt.Publisher = event.NoopPublisher{}
		return nil
	}

	pub, err := event.NewAMQPPublisher(rt.Config.AMQPURL, rt.Config.AMQPQueue)
	if err != nil {
		return fmt.Errorf("failed to connect to amqp: %w", err)
	}
	rt.closers = append(rt.closers, pub.Close)
	rt.Publisher = pub
	rt.Logger.Info("publishing events to amqp", slog.String("queue", rt.Config.AMQPQueue))
	return nil
}

// Close は Build で開いた接続を逆順に閉じる。
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// NewHandler はサービス層を組み立て、APIのルーターを返す。
// 返すRateLimiterはサーバー停止時に Stop すること。
func (rt *Runtime) NewHandler() (http.Handler, *middleware.RateLimiter) {
	cfg := rt.Config
	timeout := cfg.StoreCallTimeout

	subSvc := subscription.NewService(rt.Users, rt.Locker, rt.Publisher, rt.Metrics, timeout)
	userSvc := user.NewService(user.ServiceDeps{
		UserRepo:    rt.Users,
		ProfileRepo: rt.Profiles,
		PostRepo:    rt.Posts,
		Purger:      subSvc,
		Locker:      rt.Locker,
		Publisher:   rt.Publisher,
		Metrics:     rt.Metrics,
		CallTimeout: timeout,
	})
	postSvc := post.NewService(rt.Posts, rt.Users, rt.Locker, security.NewPostSanitizer(), timeout)
	imp := importer.New(userSvc, postSvc, security.NewSafeURLGuard(), rt.Metrics, importer.Config{
		Timeout:  cfg.ImportTimeout,
		MaxBytes: cfg.ImportMaxSize,
		MaxItems: cfg.ImportMaxItems,
	})

	rlCfg := middleware.DefaultRateLimiterConfig()
	rlCfg.GeneralPerMinute = cfg.RateLimitGeneral
	rlCfg.ImportPerMinute = cfg.RateLimitImport
	rl := middleware.NewRateLimiter(rlCfg)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:              rt.Logger,
		CORSAllowedOrigin:   cfg.CORSAllowedOrigin,
		RateLimiter:         rl,
		Metrics:             rt.Metrics,
		MetricsGatherer:     rt.Registry,
		HealthChecker:       rt.Health,
		UserService:         userSvc,
		SubscriptionService: subSvc,
		ProfileService:      profile.NewService(rt.Profiles, rt.Users, rt.Locker, timeout),
		PostService:         postSvc,
		PostImporter:        imp,
		MemberTypeService:   membertype.NewService(rt.MemberTypes, timeout),
	})
	return router, rl
}

// NewReconcileJob は購読リスト修復ジョブを生成する。
func (rt *Runtime) NewReconcileJob() *reconcile.Job {
	return reconcile.NewJob(rt.Users, rt.Locker, rt.Metrics, rt.Logger, rt.Config.StoreCallTimeout)
}

// runServe はAPIサーバーを起動し、ctx がキャンセルされるとグレースフルシャットダウンする。
// RECONCILE_INTERVAL が正の場合は修復ジョブを同じプロセスで定期実行する。
func runServe(ctx context.Context, rt *Runtime) error {
	router, rl := rt.NewHandler()
	defer rl.Stop()

	server := &http.Server{
		Addr:         ":" + rt.Config.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if interval := rt.Config.ReconcileInterval; interval > 0 {
		go reconcile.Loop(ctx, rt.NewReconcileJob(), interval, rt.Logger)
	}

	errCh := make(chan error, 1)
	go func() {
		rt.Logger.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	rt.Logger.Info("shutting down API server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	rt.Logger.Info("API server stopped gracefully")
	return nil
}

// runReconcile は修復ジョブを1回実行し、結果を w に書き出す。
func runReconcile(ctx context.Context, rt *Runtime, w io.Writer) error {
	report, err := rt.NewReconcileJob().Run(ctx)
	if err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}
	fmt.Fprintf(w, "scanned=%d repaired_users=%d removed_dangling=%d removed_duplicates=%d\n",
		report.Scanned, report.RepairedUsers, report.RemovedDangling, report.RemovedDuplicates)
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。メモリストアでは実行できない。
func runMigrate(cfg *config.Config, l *slog.Logger) error {
	if cfg.StoreDriver != config.StorePostgres {
		return fmt.Errorf("migrate requires STORE_DRIVER=%s", config.StorePostgres)
	}

	l.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)
	result, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	l.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(result.Version)),
		slog.Bool("changed", result.Changed),
	)
	return nil
}

// runHealthcheck は /health にリクエストを送り、200以外ならエラーを返す。
// distroless環境でのDockerヘルスチェック用。
func runHealthcheck(ctx context.Context, port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	at := strings.LastIndex(url, "@")
	scheme := strings.Index(url, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return url
	}
	return url[:scheme+3] + "***" + url[at:]
}
