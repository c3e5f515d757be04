// Package model はドメインモデルを定義する。
package model

import "slices"

// User はサービス利用ユーザーを表す。
// SubscribedToUserIDs は購読関係（エッジ）の保持先で、各要素は既存ユーザーのIDを指す。
type User struct {
	ID                  string
	FirstName           string
	LastName            string
	Email               string
	SubscribedToUserIDs []string
}

// Clone はスライスを含めたディープコピーを返す。
// ストアから取得したスナップショットを呼び出し側が書き換えても、ストア内部に影響しないようにする。
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.SubscribedToUserIDs = slices.Clone(u.SubscribedToUserIDs)
	if c.SubscribedToUserIDs == nil {
		c.SubscribedToUserIDs = []string{}
	}
	return &c
}

// IsSubscribedBy は指定ユーザーIDがこのユーザーの購読リストに含まれるかを返す。
func (u *User) IsSubscribedBy(userID string) bool {
	return slices.Contains(u.SubscribedToUserIDs, userID)
}

// UserPatch はユーザーの部分更新内容を表す。nilのフィールドは変更しない。
// 購読リストは UserRepository.SetSubscriptions でのみ更新する。
type UserPatch struct {
	FirstName *string
	LastName  *string
	Email     *string
}

// Apply はパッチをユーザーに適用する。
func (p UserPatch) Apply(u *User) {
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
}
