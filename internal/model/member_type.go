// Package model はドメインモデルを定義する。
package model

// MemberTypeID は会員種別の識別子。固定の列挙値のみを取る。
type MemberTypeID string

const (
	// MemberTypeBasic は一般会員。
	MemberTypeBasic MemberTypeID = "basic"
	// MemberTypeBusiness はビジネス会員。
	MemberTypeBusiness MemberTypeID = "business"
)

// Valid は列挙値に含まれるかを返す。
func (id MemberTypeID) Valid() bool {
	switch id {
	case MemberTypeBasic, MemberTypeBusiness:
		return true
	default:
		return false
	}
}

// MemberType は会員種別と、その割引率・月間投稿上限を表す。
type MemberType struct {
	ID              MemberTypeID
	Discount        float64
	MonthPostsLimit int
}

// MemberTypePatch は会員種別の部分更新内容を表す。
type MemberTypePatch struct {
	Discount        *float64
	MonthPostsLimit *int
}

// Apply はパッチを会員種別に適用する。
func (p MemberTypePatch) Apply(mt *MemberType) {
	if p.Discount != nil {
		mt.Discount = *p.Discount
	}
	if p.MonthPostsLimit != nil {
		mt.MonthPostsLimit = *p.MonthPostsLimit
	}
}

// DefaultMemberTypes は初期投入する会員種別を返す。
// マイグレーションの初期データと同じ値を保つこと。
func DefaultMemberTypes() []MemberType {
	return []MemberType{
		{ID: MemberTypeBasic, Discount: 0, MonthPostsLimit: 20},
		{ID: MemberTypeBusiness, Discount: 5, MonthPostsLimit: 100},
	}
}
