// Package repository はデータ永続化のインターフェースと実装を提供する。
//
// 各メソッドは1回の呼び出し単位でアトミックに実行されるが、
// 複数呼び出しにまたがるトランザクションは提供しない。
// 複数エンティティにまたがる整合性はサービス層が lock パッケージの排他区間で保証する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/memberhub/internal/model"
)

// ErrNotFound は更新・削除対象のエンティティが存在しない場合に返される。
// Find系メソッドは未検出時にエラーではなくnilを返す。
var ErrNotFound = errors.New("entity not found")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// List は全ユーザーを作成順で返す。
	List(ctx context.Context) ([]*model.User, error)

	// ListBySubscribedTo は購読リストに指定ユーザーIDを含むユーザーを返す（配列メンバーシップ検索）。
	ListBySubscribedTo(ctx context.Context, userID string) ([]*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error

	// Update は表示属性を部分更新し、更新後のユーザーを返す。存在しない場合はErrNotFound。
	Update(ctx context.Context, id string, patch model.UserPatch) (*model.User, error)

	// SetSubscriptions は購読リストを丸ごと置き換え、更新後のユーザーを返す。存在しない場合はErrNotFound。
	SetSubscriptions(ctx context.Context, id string, subscribedToUserIDs []string) (*model.User, error)

	// Delete はユーザーを削除し、削除前のユーザーを返す。存在しない場合はErrNotFound。
	Delete(ctx context.Context, id string) (*model.User, error)
}

// ProfileRepository はプロフィールデータの永続化インターフェース。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// FindByUserID はユーザーIDでプロフィールを検索する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Profile, error)

	// List は全プロフィールを作成順で返す。
	List(ctx context.Context) ([]*model.Profile, error)

	// Create はプロフィールを作成する。
	Create(ctx context.Context, profile *model.Profile) error

	// Update はプロフィールを部分更新する。存在しない場合はErrNotFound。
	Update(ctx context.Context, id string, patch model.ProfilePatch) (*model.Profile, error)

	// Delete はプロフィールを削除する。存在しない場合はErrNotFound。
	Delete(ctx context.Context, id string) (*model.Profile, error)
}

// PostRepository は投稿データの永続化インターフェース。
type PostRepository interface {
	// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Post, error)

	// ListByUserID はユーザーの投稿一覧を返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Post, error)

	// List は全投稿を作成順で返す。
	List(ctx context.Context) ([]*model.Post, error)

	// Create は投稿を作成する。
	Create(ctx context.Context, post *model.Post) error

	// Update は投稿を部分更新する。存在しない場合はErrNotFound。
	Update(ctx context.Context, id string, patch model.PostPatch) (*model.Post, error)

	// Delete は投稿を削除する。存在しない場合はErrNotFound。
	Delete(ctx context.Context, id string) (*model.Post, error)
}

// MemberTypeRepository は会員種別データの永続化インターフェース。
// 会員種別は固定の列挙値で初期投入されるため、作成・削除は提供しない。
type MemberTypeRepository interface {
	// FindByID は指定IDの会員種別を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id model.MemberTypeID) (*model.MemberType, error)

	// List は全会員種別を返す。
	List(ctx context.Context) ([]*model.MemberType, error)

	// Update は会員種別の属性を部分更新する。存在しない場合はErrNotFound。
	Update(ctx context.Context, id model.MemberTypeID, patch model.MemberTypePatch) (*model.MemberType, error)
}

// HealthChecker はストアの疎通確認インターフェース。
// *sql.DB と MemoryStore の両方が満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}
