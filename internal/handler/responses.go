package handler

import "github.com/hitoshi/memberhub/internal/model"

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID                  string   `json:"id"`
	FirstName           string   `json:"firstName"`
	LastName            string   `json:"lastName"`
	Email               string   `json:"email"`
	SubscribedToUserIDs []string `json:"subscribedToUserIds"`
}

type profileResponse struct {
	ID           string `json:"id"`
	Avatar       string `json:"avatar"`
	Sex          string `json:"sex"`
	Birthday     int64  `json:"birthday"`
	Country      string `json:"country"`
	Street       string `json:"street"`
	City         string `json:"city"`
	MemberTypeID string `json:"memberTypeId"`
	UserID       string `json:"userId"`
}

type postResponse struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	UserID  string `json:"userId"`
}

type memberTypeResponse struct {
	ID              string  `json:"id"`
	Discount        float64 `json:"discount"`
	MonthPostsLimit int     `json:"monthPostsLimit"`
}

func toUserResponse(u *model.User) userResponse {
	ids := u.SubscribedToUserIDs
	if ids == nil {
		ids = []string{}
	}
	return userResponse{
		ID:                  u.ID,
		FirstName:           u.FirstName,
		LastName:            u.LastName,
		Email:               u.Email,
		SubscribedToUserIDs: ids,
	}
}

func toUserResponses(users []*model.User) []userResponse {
	out := make([]userResponse, len(users))
	for i, u := range users {
		out[i] = toUserResponse(u)
	}
	return out
}

func toProfileResponse(p *model.Profile) profileResponse {
	return profileResponse{
		ID:           p.ID,
		Avatar:       p.Avatar,
		Sex:          p.Sex,
		Birthday:     p.Birthday,
		Country:      p.Country,
		Street:       p.Street,
		City:         p.City,
		MemberTypeID: string(p.MemberTypeID),
		UserID:       p.UserID,
	}
}

func toProfileResponses(profiles []*model.Profile) []profileResponse {
	out := make([]profileResponse, len(profiles))
	for i, p := range profiles {
		out[i] = toProfileResponse(p)
	}
	return out
}

func toPostResponse(p *model.Post) postResponse {
	return postResponse{ID: p.ID, Title: p.Title, Content: p.Content, UserID: p.UserID}
}

func toPostResponses(posts []*model.Post) []postResponse {
	out := make([]postResponse, len(posts))
	for i, p := range posts {
		out[i] = toPostResponse(p)
	}
	return out
}

func toMemberTypeResponse(mt *model.MemberType) memberTypeResponse {
	return memberTypeResponse{
		ID:              string(mt.ID),
		Discount:        mt.Discount,
		MonthPostsLimit: mt.MonthPostsLimit,
	}
}

func toMemberTypeResponses(types []*model.MemberType) []memberTypeResponse {
	out := make([]memberTypeResponse, len(types))
	for i, mt := range types {
		out[i] = toMemberTypeResponse(mt)
	}
	return out
}
