package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/memberhub/internal/model"
	"github.com/hitoshi/memberhub/internal/profile"
)

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	List(ctx context.Context) ([]*model.Profile, error)
	Get(ctx context.Context, id string) (*model.Profile, error)
	Create(ctx context.Context, in profile.CreateInput) (*model.Profile, error)
	Update(ctx context.Context, id string, patch model.ProfilePatch) (*model.Profile, error)
	Delete(ctx context.Context, id string) (*model.Profile, error)
}

// ProfileHandler はプロフィール管理のHTTPハンドラー。
type ProfileHandler struct {
	service ProfileServiceInterface
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{service: service}
}

// memberTypeId の列挙値チェックはサービス層で行い、INVALID_MEMBER_TYPE を返す。
type createProfileRequest struct {
	Avatar       string `json:"avatar" validate:"required,max=2048"`
	Sex          string `json:"sex" validate:"required,max=32"`
	Birthday     int64  `json:"birthday"`
	Country      string `json:"country" validate:"required,max=100"`
	Street       string `json:"street" validate:"required,max=200"`
	City         string `json:"city" validate:"required,max=100"`
	MemberTypeID string `json:"memberTypeId" validate:"required"`
	UserID       string `json:"userId" validate:"required"`
}

type updateProfileRequest struct {
	Avatar       *string `json:"avatar" validate:"omitempty,max=2048"`
	Sex          *string `json:"sex" validate:"omitempty,max=32"`
	Birthday     *int64  `json:"birthday"`
	Country      *string `json:"country" validate:"omitempty,max=100"`
	Street       *string `json:"street" validate:"omitempty,max=200"`
	City         *string `json:"city" validate:"omitempty,max=100"`
	MemberTypeID *string `json:"memberTypeId" validate:"omitempty,membertype"`
}

// ListProfiles GET /profiles
func (h *ProfileHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponses(profiles))
}

// GetProfile GET /profiles/{id}
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

// CreateProfile はユーザーのプロフィールを作成する。1ユーザーにつき1件まで。
// POST /profiles
func (h *ProfileHandler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	var req createProfileRequest
	if err := decodeRequest(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	p, err := h.service.Create(r.Context(), profile.CreateInput{
		Avatar:       req.Avatar,
		Sex:          req.Sex,
		Birthday:     req.Birthday,
		Country:      req.Country,
		Street:       req.Street,
		City:         req.City,
		MemberTypeID: model.MemberTypeID(req.MemberTypeID),
		UserID:       req.UserID,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

// UpdateProfile PATCH /profiles/{id}
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := decodeRequest(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	patch := model.ProfilePatch{
		Avatar:   req.Avatar,
		Sex:      req.Sex,
		Birthday: req.Birthday,
		Country:  req.Country,
		Street:   req.Street,
		City:     req.City,
	}
	if req.MemberTypeID != nil {
		id := model.MemberTypeID(*req.MemberTypeID)
		patch.MemberTypeID = &id
	}

	p, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

// DeleteProfile DELETE /profiles/{id}
func (h *ProfileHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}
