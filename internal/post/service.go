// Package post はユーザー投稿のドメインロジックを提供する。
package post

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
	"github.com/hitoshi/memberhub/internal/security"
	"github.com/hitoshi/memberhub/internal/validation"
)

// Draft は作成前の投稿内容。Contentは保存前にサニタイズされる。
type Draft struct {
	Title   string
	Content string
}

// Service は投稿のサービス層。
type Service struct {
	postRepo    repository.PostRepository
	userRepo    repository.UserRepository
	locker      lock.Locker
	sanitizer   security.ContentSanitizer
	callTimeout time.Duration
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	postRepo repository.PostRepository,
	userRepo repository.UserRepository,
	locker lock.Locker,
	sanitizer security.ContentSanitizer,
	callTimeout time.Duration,
) *Service {
	return &Service{
		postRepo:    postRepo,
		userRepo:    userRepo,
		locker:      locker,
		sanitizer:   sanitizer,
		callTimeout: callTimeout,
	}
}

// List は全投稿を返す。
func (s *Service) List(ctx context.Context) ([]*model.Post, error) {
	posts, err := repository.Call(ctx, s.callTimeout, s.postRepo.List)
	if err != nil {
		return nil, fmt.Errorf("投稿一覧の取得に失敗しました: %w", err)
	}
	return posts, nil
}

// Get は指定IDの投稿を返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Post, error) {
	if err := validation.ID(id); err != nil {
		return nil, err
	}
	post, err := repository.Call(ctx, s.callTimeout, func(ctx context.Context) (*model.Post, error) {
		return s.postRepo.FindByID(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	if post == nil {
		return nil, model.NewPostNotFoundError(id)
	}
	return post, nil
}

// Create はユーザーの投稿を1件作成する。
func (s *Service) Create(ctx context.Context, userID string, draft Draft) (*model.Post, error) {
	posts, err := s.CreateBatch(ctx, userID, []Draft{draft})
	if err != nil {
		return nil, err
	}
	return posts[0], nil
}

// CreateBatch はユーザーの投稿を順に作成し、作成した投稿を返す。
// 全件の作成が終わるまで所有ユーザーの識別子ロックを保持するため、
// 連鎖削除中のユーザーに投稿が追加されることはない。
// 途中で保存に失敗した場合は、それまでに作成した投稿は残る。
func (s *Service) CreateBatch(ctx context.Context, userID string, drafts []Draft) ([]*model.Post, error) {
	if err := validation.ID(userID); err != nil {
		return nil, err
	}

	unlock, err := lock.Acquire(ctx, s.locker, lock.IdentityKey(userID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	user, err := repository.Call(ctx, s.callTimeout, func(ctx context.Context) (*model.User, error) {
		return s.userRepo.FindByID(ctx, userID)
	})
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(userID)
	}

	created := make([]*model.Post, 0, len(drafts))
	for _, d := range drafts {
		post := &model.Post{
			ID:      uuid.NewString(),
			Title:   d.Title,
			Content: s.sanitizer.Sanitize(d.Content),
			UserID:  userID,
		}
		err := repository.Exec(ctx, s.callTimeout, func(ctx context.Context) error {
			return s.postRepo.Create(ctx, post)
		})
		if err != nil {
			return created, fmt.Errorf("投稿の保存に失敗しました: %w", err)
		}
		created = append(created, post)
	}

	if len(drafts) > 1 {
		slog.Info("posts created",
			slog.String("user_id", userID),
			slog.Int("count", len(created)),
		)
	}
	return created, nil
}

// Update は投稿のタイトル・本文を部分更新する。
func (s *Service) Update(ctx context.Context, id string, patch model.PostPatch) (*model.Post, error) {
	if err := validation.ID(id); err != nil {
		return nil, err
	}
	if patch.Content != nil {
		sanitized := s.sanitizer.Sanitize(*patch.Content)
		patch.Content = &sanitized
	}

	updated, err := repository.Call(ctx, s.callTimeout, func(ctx context.Context) (*model.Post, error) {
		return s.postRepo.Update(ctx, id, patch)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NewPostNotFoundError(id)
	}
	if err != nil {
		return nil, fmt.Errorf("投稿の更新に失敗しました: %w", err)
	}
	return updated, nil
}

// Delete は投稿を削除し、削除前の投稿を返す。
func (s *Service) Delete(ctx context.Context, id string) (*model.Post, error) {
	if err := validation.ID(id); err != nil {
		return nil, err
	}
	deleted, err := repository.Call(ctx, s.callTimeout, func(ctx context.Context) (*model.Post, error) {
		return s.postRepo.Delete(ctx, id)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NewPostNotFoundError(id)
	}
	if err != nil {
		return nil, fmt.Errorf("投稿の削除に失敗しました: %w", err)
	}
	return deleted, nil
}
