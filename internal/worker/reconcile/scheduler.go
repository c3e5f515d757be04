package reconcile

import (
	"context"
	"log/slog"
	"time"
)

// Runner は定期実行されるジョブ。
type Runner interface {
	Run(ctx context.Context) (Report, error)
}

// Loop は interval ごとにジョブを実行する。起動直後にも1回実行する。
// コンテキストがキャンセルされるまで戻らない。失敗はログに記録して次の周期を待つ。
func Loop(ctx context.Context, job Runner, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("修復ジョブのスケジューラを開始しました", slog.Duration("interval", interval))

	runOnce := func() {
		if _, err := job.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("修復ジョブの実行に失敗しました", slog.String("error", err.Error()))
		}
	}

	runOnce()
	for {
		select {
		case <-ctx.Done():
			logger.Info("修復ジョブのスケジューラを停止しました")
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
