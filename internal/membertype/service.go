// Package membertype は会員種別の参照・更新を提供する。
package membertype

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/memberhub/internal/model"
	"github.com/hitoshi/memberhub/internal/repository"
)

// Service は会員種別のサービス層。
// 会員種別は固定の列挙値なので、作成・削除は提供しない。
type Service struct {
	repo        repository.MemberTypeRepository
	callTimeout time.Duration
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.MemberTypeRepository, callTimeout time.Duration) *Service {
	return &Service{repo: repo, callTimeout: callTimeout}
}

// List は全会員種別を返す。
func (s *Service) List(ctx context.Context) ([]*model.MemberType, error) {
	types, err := repository.Call(ctx, s.callTimeout, s.repo.List)
	if err != nil {
		return nil, fmt.Errorf("会員種別一覧の取得に失敗しました: %w", err)
	}
	return types, nil
}

// Get は指定IDの会員種別を返す。列挙値外のIDも存在しない会員種別として MEMBER_TYPE_NOT_FOUND を返す。
func (s *Service) Get(ctx context.Context, id model.MemberTypeID) (*model.MemberType, error) {
	if !id.Valid() {
		return nil, model.NewMemberTypeNotFoundError(string(id))
	}
	mt, err := repository.Call(ctx, s.callTimeout, func(ctx context.Context) (*model.MemberType, error) {
		return s.repo.FindByID(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("会員種別の取得に失敗しました: %w", err)
	}
	if mt == nil {
		return nil, model.NewMemberTypeNotFoundError(string(id))
	}
	return mt, nil
}

// Update は割引率・月間投稿上限を部分更新する。
// 列挙値外のID、および行が存在しないIDはどちらも INVALID_MEMBER_TYPE。
func (s *Service) Update(ctx context.Context, id model.MemberTypeID, patch model.MemberTypePatch) (*model.MemberType, error) {
	if !id.Valid() {
		return nil, model.NewInvalidMemberTypeError(string(id))
	}
	updated, err := repository.Call(ctx, s.callTimeout, func(ctx context.Context) (*model.MemberType, error) {
		return s.repo.Update(ctx, id, patch)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NewInvalidMemberTypeError(string(id))
	}
	if err != nil {
		return nil, fmt.Errorf("会員種別の更新に失敗しました: %w", err)
	}
	return updated, nil
}
