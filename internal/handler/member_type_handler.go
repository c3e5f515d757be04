package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/memberhub/internal/model"
)

// MemberTypeServiceInterface は会員種別ハンドラーが必要とするサービスインターフェース。
type MemberTypeServiceInterface interface {
	List(ctx context.Context) ([]*model.MemberType, error)
	Get(ctx context.Context, id model.MemberTypeID) (*model.MemberType, error)
	Update(ctx context.Context, id model.MemberTypeID, patch model.MemberTypePatch) (*model.MemberType, error)
}

// MemberTypeHandler は会員種別のHTTPハンドラー。作成・削除はない。
type MemberTypeHandler struct {
	service MemberTypeServiceInterface
}

// NewMemberTypeHandler はMemberTypeHandlerを生成する。
func NewMemberTypeHandler(service MemberTypeServiceInterface) *MemberTypeHandler {
	return &MemberTypeHandler{service: service}
}

type updateMemberTypeRequest struct {
	Discount        *float64 `json:"discount" validate:"omitempty,gte=0,lte=100"`
	MonthPostsLimit *int     `json:"monthPostsLimit" validate:"omitempty,gte=0"`
}

// ListMemberTypes GET /member-types
func (h *MemberTypeHandler) ListMemberTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberTypeResponses(types))
}

// GetMemberType GET /member-types/{id}
func (h *MemberTypeHandler) GetMemberType(w http.ResponseWriter, r *http.Request) {
	mt, err := h.service.Get(r.Context(), model.MemberTypeID(chi.URLParam(r, "id")))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberTypeResponse(mt))
}

// UpdateMemberType は割引率と月間投稿上限を更新する。
// PATCH /member-types/{id}
func (h *MemberTypeHandler) UpdateMemberType(w http.ResponseWriter, r *http.Request) {
	var req updateMemberTypeRequest
	if err := decodeRequest(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	mt, err := h.service.Update(r.Context(), model.MemberTypeID(chi.URLParam(r, "id")), model.MemberTypePatch{
		Discount:        req.Discount,
		MonthPostsLimit: req.MonthPostsLimit,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberTypeResponse(mt))
}
