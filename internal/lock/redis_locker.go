package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix      = "memberhub:lock:"
	redisRetryInterval  = 20 * time.Millisecond
	redisReleaseTimeout = 2 * time.Second
)

// 自分のトークンの場合のみ削除する
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// 自分のトークンの場合のみ有効期限を延長する
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker はRedisを使った複数プロセス間の排他ロック。
// SET NX PX で取得し、保持者のトークンと一致する場合のみ解放する。
// 保持中は ttl/3 ごとに有効期限を延長するため、処理が ttl より長くかかってもロックは失われない。
// ttlはプロセスが異常終了した場合にロックが残り続ける上限になる。
type RedisLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisClient はRedisクライアントを生成する。
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedisLocker はRedisLockerを生成する。
func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{rdb: rdb, ttl: ttl}
}

// Lock はkeyのロックを取得するまで再試行する。
// Redisへの接続エラーはそのまま返す。
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := redisKeyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(redisRetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.rdb.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(stop, l.ttl/3, func() (bool, error) {
			extendCtx, cancel := context.WithTimeout(context.Background(), redisReleaseTimeout)
			defer cancel()
			n, err := extendScript.Run(extendCtx, l.rdb, []string{redisKey}, token, l.ttl.Milliseconds()).Int()
			return n == 1, err
		}, func(err error) {
			attrs := []any{slog.String("key", key)}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
			}
			slog.Error("redis lock was lost before release", attrs...)
		})
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// 呼び出し元のctxがキャンセル済みでも解放できるよう独立したctxを使う
			releaseCtx, cancel := context.WithTimeout(context.Background(), redisReleaseTimeout)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.rdb, []string{redisKey}, token).Err(); err != nil {
				slog.Warn("failed to release redis lock", slog.String("key", key), slog.String("error", err.Error()))
			}
		})
	}, nil
}

// keepAlive は stop が閉じられるまで interval ごとに extend を呼ぶ。
// extend がロックを延長できなかった場合は onLost を呼んで終了する。
// 通信エラーは次の周期で再試行し、ロックを失ったと判明した時点で onLost に渡す。
func keepAlive(stop <-chan struct{}, interval time.Duration, extend func() (bool, error), onLost func(err error)) {
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ok, err := extend()
		if err != nil {
			lastErr = err
			continue
		}
		if !ok {
			onLost(lastErr)
			return
		}
		lastErr = nil
	}
}

var _ Locker = (*RedisLocker)(nil)
