package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/memberhub/internal/model"
)

// SubscriptionServiceInterface は購読ハンドラーが必要とするサービスインターフェース。
// どちらの操作も購読される側（target）の更新後のユーザーを返す。
type SubscriptionServiceInterface interface {
	Subscribe(ctx context.Context, followerID, targetID string) (*model.User, error)
	Unsubscribe(ctx context.Context, followerID, targetID string) (*model.User, error)
}

// SubscriptionHandler はユーザー間の購読操作のHTTPハンドラー。
type SubscriptionHandler struct {
	service SubscriptionServiceInterface
}

// NewSubscriptionHandler はSubscriptionHandlerを生成する。
func NewSubscriptionHandler(service SubscriptionServiceInterface) *SubscriptionHandler {
	return &SubscriptionHandler{service: service}
}

// subscriptionRequest の userId は購読される側のユーザー。
type subscriptionRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// SubscribeTo はパスのユーザーを userId のユーザーの購読者として追加する。
// POST /users/{id}/subscribeTo
func (h *SubscriptionHandler) SubscribeTo(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := decodeRequest(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	target, err := h.service.Subscribe(r.Context(), chi.URLParam(r, "id"), req.UserID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(target))
}

// UnsubscribeFrom はパスのユーザーを userId のユーザーの購読者から外す。
// POST /users/{id}/unsubscribeFrom
func (h *SubscriptionHandler) UnsubscribeFrom(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := decodeRequest(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	target, err := h.service.Unsubscribe(r.Context(), chi.URLParam(r, "id"), req.UserID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(target))
}
