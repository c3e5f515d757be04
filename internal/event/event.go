// Package event はユーザー間の関係変更を外部に通知するイベント発行を提供する。
// 発行は処理の確定後に行い、失敗してもリクエストは失敗させない。
package event

import (
	"context"
	"log/slog"
	"time"
)

// イベント種別
const (
	TypeUserDeleted      = "user.deleted"
	TypeUserSubscribed   = "user.subscribed"
	TypeUserUnsubscribed = "user.unsubscribed"
)

// Event は発行するイベントのエンベロープ。
type Event struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload"`
}

// UserDeletedPayload は user.deleted イベントの内容。
type UserDeletedPayload struct {
	UserID         string   `json:"userId"`
	DeletedPostIDs []string `json:"deletedPostIds"`
	ProfileID      string   `json:"profileId,omitempty"`
	RepairedUsers  []string `json:"repairedUserIds"`
}

// SubscriptionPayload は user.subscribed / user.unsubscribed イベントの内容。
type SubscriptionPayload struct {
	FollowerID string `json:"followerId"`
	TargetID   string `json:"targetId"`
}

// Publisher はイベントを発行する。
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// New はイベントを生成する。
func New(eventType string, payload any) Event {
	return Event{Type: eventType, OccurredAt: time.Now().UTC(), Payload: payload}
}

// PublishBestEffort はイベントを発行し、失敗した場合はログに記録するだけで呼び出し元には返さない。
// publisherがnilの場合は何もしない。
func PublishBestEffort(ctx context.Context, publisher Publisher, ev Event) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, ev); err != nil {
		slog.Warn("failed to publish event",
			slog.String("type", ev.Type),
			slog.String("error", err.Error()),
		)
	}
}

// NoopPublisher はイベントを破棄するPublisher。AMQPが未設定の場合に使う。
type NoopPublisher struct{}

// Publish は何もしない。
func (NoopPublisher) Publish(context.Context, Event) error { return nil }

var _ Publisher = NoopPublisher{}
