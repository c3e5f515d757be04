// Package model はドメインモデルを定義する。
package model

// Profile はユーザーのプロフィールを表す。
// 1ユーザーにつき最大1件で、作成時にサービス層で一意性を検証する。
type Profile struct {
	ID           string
	Avatar       string
	Sex          string
	Birthday     int64 // UNIXミリ秒
	Country      string
	Street       string
	City         string
	MemberTypeID MemberTypeID
	UserID       string
}

// ProfilePatch はプロフィールの部分更新内容を表す。
// UserIDは変更不可のため含めない。
type ProfilePatch struct {
	Avatar       *string
	Sex          *string
	Birthday     *int64
	Country      *string
	Street       *string
	City         *string
	MemberTypeID *MemberTypeID
}

// Apply はパッチをプロフィールに適用する。
func (p ProfilePatch) Apply(pr *Profile) {
	if p.Avatar != nil {
		pr.Avatar = *p.Avatar
	}
	if p.Sex != nil {
		pr.Sex = *p.Sex
	}
	if p.Birthday != nil {
		pr.Birthday = *p.Birthday
	}
	if p.Country != nil {
		pr.Country = *p.Country
	}
	if p.Street != nil {
		pr.Street = *p.Street
	}
	if p.City != nil {
		pr.City = *p.City
	}
	if p.MemberTypeID != nil {
		pr.MemberTypeID = *p.MemberTypeID
	}
}

// Post はユーザーの投稿を表す。
type Post struct {
	ID      string
	Title   string
	Content string // サニタイズ済みHTML
	UserID  string
}

// PostPatch は投稿の部分更新内容を表す。
type PostPatch struct {
	Title   *string
	Content *string
}

// Apply はパッチを投稿に適用する。
func (p PostPatch) Apply(post *Post) {
	if p.Title != nil {
		post.Title = *p.Title
	}
	if p.Content != nil {
		post.Content = *p.Content
	}
}
