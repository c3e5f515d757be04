// Package security は外部入力を扱うためのセキュリティ機能を提供する。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizer は投稿本文のHTMLを安全な形に変換する。
type ContentSanitizer interface {
	Sanitize(rawHTML string) string
}

// PostSanitizer は投稿本文向けの許可リスト型サニタイザ。
// ポリシーは生成時に1度だけ構築し、以降は並行に使用できる。
type PostSanitizer struct {
	policy *bluemonday.Policy
}

// NewPostSanitizer はPostSanitizerを生成する。
//
// 許可する要素:
//   - 段落・改行・見出し(h2〜h4)・リスト・引用・整形済みテキスト・強調
//   - a: href のみ。https と mailto の絶対URLに限り、rel="nofollow noreferrer" と target="_blank" を付与する
//   - img: src と alt のみ。src は https に限る
//
// それ以外の要素は中身のテキストを残して除去され、script・style は中身ごと除去される。
func NewPostSanitizer() *PostSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "h2", "h3", "h4",
		"ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AllowURLSchemes("https", "mailto")
	p.RequireNoFollowOnLinks(true)
	p.RequireNoReferrerOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")

	return &PostSanitizer{policy: p}
}

// Sanitize はHTMLをサニタイズする。空文字列には空文字列を返す。
func (s *PostSanitizer) Sanitize(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	return s.policy.Sanitize(rawHTML)
}

// compile-time interface check
var _ ContentSanitizer = (*PostSanitizer)(nil)
