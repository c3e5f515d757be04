// Package subscription はユーザー間の購読関係（購読グラフ）を管理するドメインロジックを提供する。
//
// 購読関係は購読されるユーザー（target）の SubscribedToUserIDs に購読者（follower）のIDとして保持する。
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/hitoshi/memberhub/internal/event"
	"github.com/hitoshi/memberhub/internal/lock"
	"github.com/hitoshi/memberhub/internal/metrics"
	"github.com/hitoshi/memberhub/internal/model"
	"github.com/hitoshi/memberhub/internal/repository"
	"github.com/hitoshi/memberhub/internal/validation"
)

// 購読操作の種別（メトリクスのラベル）
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
)

// Service は購読グラフのサービス層。
type Service struct {
	userRepo    repository.UserRepository
	locker      lock.Locker
	publisher   event.Publisher
	metrics     metrics.MetricsCollector
	callTimeout time.Duration
}

// NewService はServiceの新しいインスタンスを生成する。
// publisher と collector は nil を許容する。
func NewService(
	userRepo repository.UserRepository,
	locker lock.Locker,
	publisher event.Publisher,
	collector metrics.MetricsCollector,
	callTimeout time.Duration,
) *Service {
	if publisher == nil {
		publisher = event.NoopPublisher{}
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		userRepo:    userRepo,
		locker:      locker,
		publisher:   publisher,
		metrics:     collector,
		callTimeout: callTimeout,
	}
}

// Subscribe は followerID のユーザーを targetID のユーザーの購読リストに追加し、更新後の target を返す。
// 既に購読済みの場合は何も変更せずに target を返す。
//
// follower の識別子ロックを保持したまま追加するため、follower の連鎖削除と並行しても
// 削除済みユーザーへの参照が残ることはない。
func (s *Service) Subscribe(ctx context.Context, followerID, targetID string) (*model.User, error) {
	if err := validation.ID(followerID); err != nil {
		return nil, err
	}
	if err := validation.ID(targetID); err != nil {
		return nil, err
	}
	if followerID == targetID {
		return nil, model.NewSelfSubscriptionError()
	}

	unlockFollower, err := lock.Acquire(ctx, s.locker, lock.IdentityKey(followerID))
	if err != nil {
		return nil, err
	}
	defer unlockFollower()

	if _, err := s.requireUser(ctx, followerID); err != nil {
		return nil, err
	}

	unlockTarget, err := lock.Acquire(ctx, s.locker, lock.RecordKey(targetID))
	if err != nil {
		return nil, err
	}
	defer unlockTarget()

	target, err := s.requireUser(ctx, targetID)
	if err != nil {
		return nil, err
	}

	if target.IsSubscribedBy(followerID) {
		return target, nil
	}

	ids := append(slices.Clone(target.SubscribedToUserIDs), followerID)
	updated, err := s.setSubscriptions(ctx, targetID, ids)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordSubscriptionOp(OpSubscribe)
	event.PublishBestEffort(ctx, s.publisher, event.New(event.TypeUserSubscribed, event.SubscriptionPayload{
		FollowerID: followerID,
		TargetID:   targetID,
	}))

	return updated, nil
}

// Unsubscribe は targetID のユーザーの購読リストから followerID の最初の出現を取り除き、更新後の target を返す。
// 購読リストに含まれていない場合は SUBSCRIPTION_NOT_FOUND を返す。
func (s *Service) Unsubscribe(ctx context.Context, followerID, targetID string) (*model.User, error) {
	if err := validation.ID(followerID); err != nil {
		return nil, err
	}
	if err := validation.ID(targetID); err != nil {
		return nil, err
	}

	if _, err := s.requireUser(ctx, followerID); err != nil {
		return nil, err
	}

	unlockTarget, err := lock.Acquire(ctx, s.locker, lock.RecordKey(targetID))
	if err != nil {
		return nil, err
	}
	defer unlockTarget()

	target, err := s.requireUser(ctx, targetID)
	if err != nil {
		return nil, err
	}

	idx := slices.Index(target.SubscribedToUserIDs, followerID)
	if idx < 0 {
		return nil, model.NewSubscriptionNotFoundError(followerID, targetID)
	}

	ids := slices.Delete(slices.Clone(target.SubscribedToUserIDs), idx, idx+1)
	updated, err := s.setSubscriptions(ctx, targetID, ids)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordSubscriptionOp(OpUnsubscribe)
	event.PublishBestEffort(ctx, s.publisher, event.New(event.TypeUserUnsubscribed, event.SubscriptionPayload{
		FollowerID: followerID,
		TargetID:   targetID,
	}))

	return updated, nil
}

// PurgeReferencesTo は userID を購読リストに含むすべてのユーザーから userID の全出現を取り除く。
// 各ユーザーはレコードロックの下で再取得した最新の購読リストを元に個別に更新する。
// 修復したユーザーのIDを返す。ストアの失敗で中断した場合は、それまでに修復したIDとエラーを返す。
//
// 連鎖削除からのみ呼び出される。呼び出し側は userID の識別子ロックを保持していること。
func (s *Service) PurgeReferencesTo(ctx context.Context, userID string) ([]string, error) {
	holders, err := repository.Call(ctx, s.callTimeout, func(ctx context.Context) ([]*model.User, error) {
		return s.userRepo.ListBySubscribedTo(ctx, userID)
	})
	if err != nil {
		return nil, fmt.Errorf("購読者の検索に失敗しました: %w", err)
	}

	purged := make([]string, 0, len(holders))
	for _, holder := range holders {
		repaired, err := s.purgeFrom(ctx, holder.ID, userID)
		if err != nil {
			return purged, err
		}
		if repaired {
			purged = append(purged, holder.ID)
		}
	}

	if len(purged) > 0 {
		s.metrics.RecordReferencesPurged(len(purged))
		slog.Info("purged subscription references",
			slog.String("user_id", userID),
			slog.Int("repaired_users", len(purged)),
		)
	}
	return purged, nil
}

// purgeFrom は holderID の購読リストから removedID をすべて取り除く。
// holder が既に削除されている、または参照が既に無い場合は repaired=false で成功とする。
func (s *Service) purgeFrom(ctx context.Context, holderID, removedID string) (repaired bool, err error) {
	unlock, err := lock.Acquire(ctx, s.locker, lock.RecordKey(holderID))
	if err != nil {
		return false, err
	}
	defer unlock()

	holder, err := s.findUser(ctx, holderID)
	if err != nil {
		return false, err
	}
	if holder == nil {
		return false, nil
	}

	remaining := RemoveAll(holder.SubscribedToUserIDs, removedID)
	if len(remaining) == len(holder.SubscribedToUserIDs) {
		return false, nil
	}

	_, err = repository.Call(ctx, s.callTimeout, func(ctx context.Context) (*model.User, error) {
		return s.userRepo.SetSubscriptions(ctx, holderID, remaining)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ユーザー %s の購読リストの更新に失敗しました: %w", holderID, err)
	}
	return true, nil
}

// RemoveAll は ids から target の全出現を取り除いた新しいスライスを返す。
func RemoveAll(ids []string, target string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

func (s *Service) findUser(ctx context.Context, id string) (*model.User, error) {
	user, err := repository.Call(ctx, s.callTimeout, func(ctx context.Context) (*model.User, error) {
		return s.userRepo.FindByID(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	return user, nil
}

func (s *Service) requireUser(ctx context.Context, id string) (*model.User, error) {
	user, err := s.findUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(id)
	}
	return user, nil
}

func (s *Service) setSubscriptions(ctx context.Context, id string, ids []string) (*model.User, error) {
	updated, err := repository.Call(ctx, s.callTimeout, func(ctx context.Context) (*model.User, error) {
		return s.userRepo.SetSubscriptions(ctx, id, ids)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NewUserNotFoundError(id)
	}
	if err != nil {
		return nil, fmt.Errorf("購読リストの更新に失敗しました: %w", err)
	}
	return updated, nil
}
