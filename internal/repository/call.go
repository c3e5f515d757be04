package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/memberhub/internal/model"
)

// Call はストアの1回の呼び出しをタイムアウト付きで実行する。
// timeoutが0以下の場合は呼び出し元のコンテキストをそのまま使う。
// 呼び出しがタイムアウトした場合は再試行可能な STORE_UNAVAILABLE に変換し、
// 未検出（nil）や ErrNotFound とは区別できるようにする。
func Call[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := fn(callCtx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		var zero T
		return zero, model.NewStoreUnavailableError(err.Error())
	}
	return result, err
}

// Exec は戻り値のないストア呼び出しを Call と同じ規則で実行する。
func Exec(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
