// Package profile はユーザープロフィールのドメインロジックを提供する。
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/memberhub/internal/lock"
	"github.com/hitoshi/memberhub/internal/model"
	"github.com/hitoshi/memberhub/internal/repository"
	"github.com/hitoshi/memberhub/internal/validation"
)

// Service はプロフィールのサービス層。
// 1ユーザーにつきプロフィールは1件までとし、作成時に所有ユーザーの識別子ロックの下で検証する。
type Service struct {
	profileRepo repository.ProfileRepository
	userRepo    repository.UserRepository
	locker      lock.Locker
	callTimeout time.Duration
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	profileRepo repository.ProfileRepository,
	userRepo repository.UserRepository,
	locker lock.Locker,
	callTimeout time.Duration,
) *Service {
	return &Service{
		profileRepo: profileRepo,
		userRepo:    userRepo,
		locker:      locker,
		callTimeout: callTimeout,
	}
}

// CreateInput はプロフィール作成の入力。
type CreateInput struct {
	Avatar       string
	Sex          string
	Birthday     int64
	Country      string
	Street       string
	City         string
	MemberTypeID model.MemberTypeID
	UserID       string
}

// List は全プロフィールを返す。
func (s *Service) List(ctx context.Context) ([]*model.Profile, error) {
	profiles, err := repository.Call(ctx, s.callTimeout, s.profileRepo.List)
	if err != nil {
		return nil, fmt.Errorf("プロフィール一覧の取得に失敗しました: %w", err)
	}
	return profiles, nil
}

// Get は指定IDのプロフィールを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Profile, error) {
	if err := validation.ID(id); err != nil {
		return nil, err
	}
	profile, err := repository.Call(ctx, s.callTimeout, func(ctx context.Context) (*model.Profile, error) {
		return s.profileRepo.FindByID(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if profile == nil {
		return nil, model.NewProfileNotFoundError(id)
	}
	return profile, nil
}

// Create はプロフィールを作成する。
// フロー: 会員種別の検証 → 所有ユーザーの識別子ロック → ユーザー存在確認 → 既存プロフィール確認 → 保存
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.Profile, error) {
	if !in.MemberTypeID.Valid() {
		return nil, model.NewInvalidMemberTypeError(string(in.MemberTypeID))
	}
	if err := validation.ID(in.UserID); err != nil {
		return nil, err
	}

	// 連鎖削除中のユーザーにプロフィールが作られないよう、削除と同じロックで直列化する
	unlock, err := lock.Acquire(ctx, s.locker, lock.IdentityKey(in.UserID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	user, err := repository.Call(ctx, s.callTimeout, func(ctx context.Context) (*model.User, error) {
		return s.userRepo.FindByID(ctx, in.UserID)
	})
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(in.UserID)
	}

	existing, err := repository.Call(ctx, s.callTimeout, func(ctx context.Context) (*model.Profile, error) {
		return s.profileRepo.FindByUserID(ctx, in.UserID)
	})
	if err != nil {
		return nil, fmt.Errorf("既存プロフィールの確認に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewProfileAlreadyExistsError(in.UserID)
	}

	profile := &model.Profile{
		ID:           uuid.NewString(),
		Avatar:       in.Avatar,
		Sex:          in.Sex,
		Birthday:     in.Birthday,
		Country:      in.Country,
		Street:       in.Street,
		City:         in.City,
		MemberTypeID: in.MemberTypeID,
		UserID:       in.UserID,
	}
	err = repository.Exec(ctx, s.callTimeout, func(ctx context.Context) error {
		return s.profileRepo.Create(ctx, profile)
	})
	if err != nil {
		return nil, fmt.Errorf("プロフィールの保存に失敗しました: %w", err)
	}

	slog.Info("profile created",
		slog.String("profile_id", profile.ID),
		slog.String("user_id", profile.UserID),
	)
	return profile, nil
}

// Update はプロフィールを部分更新する。所有ユーザーは変更できない。
func (s *Service) Update(ctx context.Context, id string, patch model.ProfilePatch) (*model.Profile, error) {
	if err := validation.ID(id); err != nil {
		return nil, err
	}
	if patch.MemberTypeID != nil && !patch.MemberTypeID.Valid() {
		return nil, model.NewInvalidMemberTypeError(string(*patch.MemberTypeID))
	}

	updated, err := repository.Call(ctx, s.callTimeout, func(ctx context.Context) (*model.Profile, error) {
		return s.profileRepo.Update(ctx, id, patch)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NewProfileNotFoundError(id)
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	return updated, nil
}

// Delete はプロフィールを削除し、削除前のプロフィールを返す。
func (s *Service) Delete(ctx context.Context, id string) (*model.Profile, error) {
	if err := validation.ID(id); err != nil {
		return nil, err
	}
	deleted, err := repository.Call(ctx, s.callTimeout, func(ctx context.Context) (*model.Profile, error) {
		return s.profileRepo.Delete(ctx, id)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NewProfileNotFoundError(id)
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの削除に失敗しました: %w", err)
	}
	return deleted, nil
}
