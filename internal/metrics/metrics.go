// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェア、サービス層、ワーカーから利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordRequestDuration(method string, duration time.Duration)
	RecordCascadeDeletion()
	RecordCascadePartialFailure()
	RecordSubscriptionOp(op string)
	RecordReferencesPurged(count int)
	RecordPostsImported(count int)
	RecordReconcileRepaired(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus        *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	cascadeDeletions  prometheus.Counter
	cascadePartial    prometheus.Counter
	subscriptionOps   *prometheus.CounterVec
	referencesPurged  prometheus.Counter
	postsImported     prometheus.Counter
	reconcileRepaired prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memberhub_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "memberhub_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		cascadeDeletions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memberhub_cascade_deletions_total",
			Help: "完了したユーザー連鎖削除の合計数",
		}),
		cascadePartial: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memberhub_cascade_partial_failures_total",
			Help: "途中で失敗したユーザー連鎖削除の合計数",
		}),
		subscriptionOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memberhub_subscription_ops_total",
			Help: "操作別の購読変更数",
		}, []string{"op"}),
		referencesPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memberhub_references_purged_total",
			Help: "削除ユーザーへの参照を取り除いたユーザーの合計数",
		}),
		postsImported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memberhub_posts_imported_total",
			Help: "フィードからインポートされた投稿の合計数",
		}),
		reconcileRepaired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memberhub_reconcile_repaired_total",
			Help: "整合性修復ワーカーが修復したユーザーの合計数",
		}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.requestDuration,
		c.cascadeDeletions,
		c.cascadePartial,
		c.subscriptionOps,
		c.referencesPurged,
		c.postsImported,
		c.reconcileRepaired,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestDuration はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestDuration(method string, duration time.Duration) {
	c.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordCascadeDeletion は連鎖削除の完了を記録する。
func (c *Collector) RecordCascadeDeletion() {
	c.cascadeDeletions.Inc()
}

// RecordCascadePartialFailure は連鎖削除の途中失敗を記録する。
func (c *Collector) RecordCascadePartialFailure() {
	c.cascadePartial.Inc()
}

// RecordSubscriptionOp は購読操作（subscribe / unsubscribe）を記録する。
func (c *Collector) RecordSubscriptionOp(op string) {
	c.subscriptionOps.WithLabelValues(op).Inc()
}

// RecordReferencesPurged は参照を取り除いたユーザー数を記録する。
func (c *Collector) RecordReferencesPurged(count int) {
	c.referencesPurged.Add(float64(count))
}

// RecordPostsImported はインポートされた投稿数を記録する。
func (c *Collector) RecordPostsImported(count int) {
	c.postsImported.Add(float64(count))
}

// RecordReconcileRepaired は修復したユーザー数を記録する。
func (c *Collector) RecordReconcileRepaired(count int) {
	c.reconcileRepaired.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// 整合性修復ワーカーなど、APIルーターを持たないプロセスで使う。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordHTTPStatus(int)                        {}
func (Nop) RecordRequestDuration(string, time.Duration) {}
func (Nop) RecordCascadeDeletion()                      {}
func (Nop) RecordCascadePartialFailure()                {}
func (Nop) RecordSubscriptionOp(string)                 {}
func (Nop) RecordReferencesPurged(int)                  {}
func (Nop) RecordPostsImported(int)                     {}
func (Nop) RecordReconcileRepaired(int)                 {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
