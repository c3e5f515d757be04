// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/memberhub/internal/event"
	"github.com/hitoshi/memberhub/internal/lock"
	"github.com/hitoshi/memberhub/internal/metrics"
	"github.com/hitoshi/memberhub/internal/model"
	"github.com/hitoshi/memberhub/internal/repository"
	"github.com/hitoshi/memberhub/internal/validation"
)

// ReferencePurger は削除されるユーザーへの購読参照を他ユーザーから取り除く。
// subscription.Service が実装する。
type ReferencePurger interface {
	PurgeReferencesTo(ctx context.Context, userID string) ([]string, error)
}

// 連鎖削除のステップ名
const (
	StepListPosts       = "list_posts"
	StepDeletePost      = "delete_post"
	StepFindProfile     = "find_profile"
	StepDeleteProfile   = "delete_profile"
	StepPurgeReferences = "purge_references"
	StepPurgeReference  = "purge_reference"
	StepDeleteUser      = "delete_user"
)

// ServiceDeps はServiceの依存関係。
// Publisher と Metrics は省略可能。
type ServiceDeps struct {
	UserRepo    repository.UserRepository
	ProfileRepo repository.ProfileRepository
	PostRepo    repository.PostRepository
	Purger      ReferencePurger
	Locker      lock.Locker
	Publisher   event.Publisher
	Metrics     metrics.MetricsCollector
	CallTimeout time.Duration
}

// Service はユーザー管理のサービス層。
// ユーザーのCRUDと、従属エンティティを含めた連鎖削除を提供する。
type Service struct {
	userRepo    repository.UserRepository
	profileRepo repository.ProfileRepository
	postRepo    repository.PostRepository
	purger      ReferencePurger
	locker      lock.Locker
	publisher   event.Publisher
	metrics     metrics.MetricsCollector
	callTimeout time.Duration
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(deps ServiceDeps) *Service {
	s := &Service{
		userRepo:    deps.UserRepo,
		profileRepo: deps.ProfileRepo,
		postRepo:    deps.PostRepo,
		purger:      deps.Purger,
		locker:      deps.Locker,
		publisher:   deps.Publisher,
		metrics:     deps.Metrics,
		callTimeout: deps.CallTimeout,
	}
	if s.publisher == nil {
		s.publisher = event.NoopPublisher{}
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	return s
}

// CreateInput はユーザー作成の入力。
type CreateInput struct {
	FirstName string
	LastName  string
	Email     string
}

// List は全ユーザーを返す。
func (s *Service) List(ctx context.Context) ([]*model.User, error) {
	users, err := repository.Call(ctx, s.callTimeout, s.userRepo.List)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// Get は指定IDのユーザーを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.User, error) {
	if err := validation.ID(id); err != nil {
		return nil, err
	}
	return s.requireUser(ctx, id)
}

// Create はユーザーを作成する。購読リストは空で作成される。
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.User, error) {
	user := &model.User{
		ID:                  uuid.NewString(),
		FirstName:           in.FirstName,
		LastName:            in.LastName,
		Email:               in.Email,
		SubscribedToUserIDs: []string{},
	}
	err := repository.Exec(ctx, s.callTimeout, func(ctx context.Context) error {
		return s.userRepo.Create(ctx, user)
	})
	if err != nil {
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}
	return user, nil
}

// Update はユーザーの表示属性を部分更新する。購読リストはこの操作では変更できない。
func (s *Service) Update(ctx context.Context, id string, patch model.UserPatch) (*model.User, error) {
	if err := validation.ID(id); err != nil {
		return nil, err
	}

	unlock, err := lock.Acquire(ctx, s.locker, lock.RecordKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	updated, err := repository.Call(ctx, s.callTimeout, func(ctx context.Context) (*model.User, error) {
		return s.userRepo.Update(ctx, id, patch)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NewUserNotFoundError(id)
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}
	return updated, nil
}

// Delete はユーザーを連鎖削除し、削除前のユーザーを返す。
//
// 削除順序: 投稿 → プロフィール → 他ユーザーの購読リストからの参照 → ユーザー本体。
// ユーザー本体を最後に削除するため、途中で失敗しても同じリクエストの再実行で残りを処理できる。
// 既に削除済みの投稿・プロフィールは成功として扱う。
//
// 処理全体でユーザーの識別子ロックを保持し、同じユーザーへの購読追加や従属エンティティの作成と直列化する。
func (s *Service) Delete(ctx context.Context, userID string) (*model.User, error) {
	if err := validation.ID(userID); err != nil {
		return nil, err
	}

	unlock, err := lock.Acquire(ctx, s.locker, lock.IdentityKey(userID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	user, err := s.requireUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	slog.Info("ユーザーの連鎖削除を開始します",
		slog.String("user_id", userID),
	)

	c := &cascade{svc: s, userID: userID}
	if err := c.run(ctx); err != nil {
		s.metrics.RecordCascadePartialFailure()
		slog.Error("ユーザーの連鎖削除が途中で失敗しました",
			slog.String("user_id", userID),
			slog.String("failed_step", err.FailedStep),
			slog.Int("completed_steps", len(err.CompletedSteps)),
			slog.String("error", err.Err.Error()),
		)
		return nil, err
	}

	s.metrics.RecordCascadeDeletion()
	event.PublishBestEffort(ctx, s.publisher, event.New(event.TypeUserDeleted, event.UserDeletedPayload{
		UserID:         userID,
		DeletedPostIDs: c.deletedPostIDs,
		ProfileID:      c.profileID,
		RepairedUsers:  c.repairedUserIDs,
	}))

	slog.Info("ユーザーの連鎖削除が完了しました",
		slog.String("user_id", userID),
		slog.Int("deleted_posts", len(c.deletedPostIDs)),
		slog.Int("repaired_users", len(c.repairedUserIDs)),
	)

	return user, nil
}

// cascade は1回の連鎖削除の進行状況を保持する。
type cascade struct {
	svc             *Service
	userID          string
	completed       []string
	deletedPostIDs  []string
	profileID       string
	repairedUserIDs []string
}

func (c *cascade) fail(step string, err error) *model.CascadeError {
	return &model.CascadeError{
		UserID:         c.userID,
		CompletedSteps: c.completed,
		FailedStep:     step,
		Err:            err,
	}
}

func (c *cascade) run(ctx context.Context) *model.CascadeError {
	s := c.svc

	// 1. 投稿
	posts, err := repository.Call(ctx, s.callTimeout, func(ctx context.Context) ([]*model.Post, error) {
		return s.postRepo.ListByUserID(ctx, c.userID)
	})
	if err != nil {
		return c.fail(StepListPosts, err)
	}
	for _, post := range posts {
		step := StepDeletePost + "/" + post.ID
		err := repository.Exec(ctx, s.callTimeout, func(ctx context.Context) error {
			_, err := s.postRepo.Delete(ctx, post.ID)
			return err
		})
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return c.fail(step, err)
		}
		c.completed = append(c.completed, step)
		c.deletedPostIDs = append(c.deletedPostIDs, post.ID)
	}

	// 2. プロフィール（存在しない場合も成功）
	profile, err := repository.Call(ctx, s.callTimeout, func(ctx context.Context) (*model.Profile, error) {
		return s.profileRepo.FindByUserID(ctx, c.userID)
	})
	if err != nil {
		return c.fail(StepFindProfile, err)
	}
	if profile != nil {
		step := StepDeleteProfile + "/" + profile.ID
		err := repository.Exec(ctx, s.callTimeout, func(ctx context.Context) error {
			_, err := s.profileRepo.Delete(ctx, profile.ID)
			return err
		})
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return c.fail(step, err)
		}
		c.completed = append(c.completed, step)
		c.profileID = profile.ID
	}

	// 3. 他ユーザーの購読リストからの参照
	if s.purger != nil {
		repaired, err := s.purger.PurgeReferencesTo(ctx, c.userID)
		for _, id := range repaired {
			c.completed = append(c.completed, StepPurgeReference+"/"+id)
		}
		c.repairedUserIDs = repaired
		if err != nil {
			return c.fail(StepPurgeReferences, err)
		}
	}

	// 4. ユーザー本体
	unlock, err := lock.Acquire(ctx, s.locker, lock.RecordKey(c.userID))
	if err != nil {
		return c.fail(StepDeleteUser, err)
	}
	defer unlock()

	err = repository.Exec(ctx, s.callTimeout, func(ctx context.Context) error {
		_, err := s.userRepo.Delete(ctx, c.userID)
		return err
	})
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return c.fail(StepDeleteUser, err)
	}
	c.completed = append(c.completed, StepDeleteUser)
	return nil
}

func (s *Service) requireUser(ctx context.Context, id string) (*model.User, error) {
	user, err := repository.Call(ctx, s.callTimeout, func(ctx context.Context) (*model.User, error) {
		return s.userRepo.FindByID(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(id)
	}
	return user, nil
}
