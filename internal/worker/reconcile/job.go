// Package reconcile は購読リストに残った不整合を修復するジョブを提供する。
//
// 連鎖削除が途中で失敗したまま再実行されなかった場合や、外部からストアが直接書き換えられた場合に、
// 購読リストに存在しないユーザーのIDや重複したIDが残ることがある。
// このジョブは全ユーザーを走査し、そうした参照を取り除く。何度実行しても結果は同じ。
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/memberhub/internal/lock"
	"github.com/hitoshi/memberhub/internal/metrics"
	"github.com/hitoshi/memberhub/internal/model"
	"github.com/hitoshi/memberhub/internal/repository"
)

// Report は1回の実行結果。
type Report struct {
	Scanned           int
	RepairedUsers     int
	RemovedDangling   int
	RemovedDuplicates int
}

// Job は購読リストの修復ジョブ。
type Job struct {
	users       repository.UserRepository
	locker      lock.Locker
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
	callTimeout time.Duration
}

// NewJob は新しいJobを生成する。collector は nil を許容する。
func NewJob(
	users repository.UserRepository,
	locker lock.Locker,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	callTimeout time.Duration,
) *Job {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Job{
		users:       users,
		locker:      locker,
		metrics:     collector,
		logger:      logger,
		callTimeout: callTimeout,
	}
}

// Run は全ユーザーの購読リストを走査し、存在しないユーザーへの参照と重複を取り除く。
// 修復は1ユーザーずつレコードロックの下で最新のリストを再取得して行う。
func (j *Job) Run(ctx context.Context) (Report, error) {
	start := time.Now()

	users, err := repository.Call(ctx, j.callTimeout, j.users.List)
	if err != nil {
		return Report{}, fmt.Errorf("ユーザー一覧の取得に失敗: %w", err)
	}

	known := make(map[string]bool, len(users))
	for _, u := range users {
		known[u.ID] = true
	}

	report := Report{Scanned: len(users)}
	for _, u := range users {
		if !needsRepair(u.SubscribedToUserIDs, known) {
			continue
		}
		dangling, dups, err := j.repair(ctx, u.ID, known)
		if err != nil {
			j.logger.Error("購読リストの修復に失敗しました",
				slog.String("user_id", u.ID),
				slog.String("error", err.Error()),
			)
			return report, err
		}
		if dangling+dups > 0 {
			report.RepairedUsers++
			report.RemovedDangling += dangling
			report.RemovedDuplicates += dups
		}
	}

	if report.RepairedUsers > 0 {
		j.metrics.RecordReconcileRepaired(report.RepairedUsers)
	}
	j.logger.Info("購読リストの修復ジョブが完了しました",
		slog.Int("scanned", report.Scanned),
		slog.Int("repaired_users", report.RepairedUsers),
		slog.Int("removed_dangling", report.RemovedDangling),
		slog.Int("removed_duplicates", report.RemovedDuplicates),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return report, nil
}

func needsRepair(ids []string, known map[string]bool) bool {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !known[id] || seen[id] {
			return true
		}
		seen[id] = true
	}
	return false
}

// repair は userID の購読リストを修復し、取り除いた件数を返す。
// 走査時点の一覧に無いIDは、走査後に作成された可能性があるため個別に存在を確認する。
func (j *Job) repair(ctx context.Context, userID string, known map[string]bool) (dangling, dups int, err error) {
	unlock, err := lock.Acquire(ctx, j.locker, lock.RecordKey(userID))
	if err != nil {
		return 0, 0, err
	}
	defer unlock()

	u, err := repository.Call(ctx, j.callTimeout, func(ctx context.Context) (*model.User, error) {
		return j.users.FindByID(ctx, userID)
	})
	if err != nil {
		return 0, 0, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}
	if u == nil {
		return 0, 0, nil
	}

	kept := make([]string, 0, len(u.SubscribedToUserIDs))
	seen := make(map[string]bool, len(u.SubscribedToUserIDs))
	for _, id := range u.SubscribedToUserIDs {
		if seen[id] {
			dups++
			continue
		}
		exists, err := j.exists(ctx, id, known)
		if err != nil {
			return 0, 0, err
		}
		if !exists {
			dangling++
			continue
		}
		seen[id] = true
		kept = append(kept, id)
	}

	if dangling+dups == 0 {
		return 0, 0, nil
	}

	_, err = repository.Call(ctx, j.callTimeout, func(ctx context.Context) (*model.User, error) {
		return j.users.SetSubscriptions(ctx, userID, kept)
	})
	if err != nil {
		// 走査後に削除されたユーザーは修復不要
		if errors.Is(err, repository.ErrNotFound) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("購読リストの更新に失敗: %w", err)
	}
	return dangling, dups, nil
}

func (j *Job) exists(ctx context.Context, id string, known map[string]bool) (bool, error) {
	if known[id] {
		return true, nil
	}
	u, err := repository.Call(ctx, j.callTimeout, func(ctx context.Context) (*model.User, error) {
		return j.users.FindByID(ctx, id)
	})
	if err != nil {
		return false, fmt.Errorf("参照先ユーザーの確認に失敗: %w", err)
	}
	return u != nil, nil
}
