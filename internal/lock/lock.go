// Package lock はエンティティ単位の排他制御を提供する。
//
// ロックには2種類のキーがある。
//   - IdentityKey: ユーザーの存在そのものに関わる操作（購読の追加、連鎖削除、従属エンティティの作成）を直列化する。
//   - RecordKey: ユーザーレコード（購読リスト）の読み取り・変更・書き込みを直列化する。
//
// デッドロックを避けるため、1つの処理が保持するIdentityKeyは最大1つとし、
// RecordKeyより先に取得する。RecordKeyは同時に1つだけ保持する。
package lock

import (
	"context"
	"fmt"

	"github.com/hitoshi/memberhub/internal/model"
)

// Locker はキー単位の排他ロックを提供する。
// Lock はロックを取得するまでブロックし、ctxがキャンセルされた場合はエラーを返す。
// 返されたunlock関数は複数回呼び出しても安全。
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// IdentityKey はユーザーの存在に関わる操作用のロックキーを返す。
func IdentityKey(userID string) string {
	return "identity:" + userID
}

// RecordKey はユーザーレコードの更新用のロックキーを返す。
func RecordKey(userID string) string {
	return "record:" + userID
}

// Acquire はロックを取得し、失敗した場合は再試行可能な STORE_UNAVAILABLE に変換する。
func Acquire(ctx context.Context, l Locker, key string) (func(), error) {
	unlock, err := l.Lock(ctx, key)
	if err != nil {
		return nil, model.NewStoreUnavailableError(fmt.Sprintf("ロック %s を取得できませんでした: %v", key, err))
	}
	return unlock, nil
}
