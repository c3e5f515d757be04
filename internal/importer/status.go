package importer

import "fmt"

// FetchStatus は取得元のHTTPステータスの分類。
type FetchStatus int

const (
	// StatusOK は取り込み可能（200）。
	StatusOK FetchStatus = iota
	// StatusGone は取得元が存在しない（404/410）。
	StatusGone
	// StatusDenied は取得元がアクセスを拒否した（401/403）。
	StatusDenied
	// StatusRetryLater は時間をおけば取得できる可能性がある（429/5xx）。
	StatusRetryLater
	// StatusUnexpected はそれ以外。リダイレクトはクライアントが辿るため、ここに来るのは3xxの異常系など。
	StatusUnexpected
)

// ClassifyStatus はHTTPステータスコードを分類する。
func ClassifyStatus(code int) FetchStatus {
	switch {
	case code == 200:
		return StatusOK
	case code == 404 || code == 410:
		return StatusGone
	case code == 401 || code == 403:
		return StatusDenied
	case code == 429 || code >= 500:
		return StatusRetryLater
	default:
		return StatusUnexpected
	}
}

// Describe はエラーメッセージ用の説明を返す。
func (s FetchStatus) Describe(code int) string {
	switch s {
	case StatusGone:
		return fmt.Sprintf("取得元が見つかりません（HTTP %d）", code)
	case StatusDenied:
		return fmt.Sprintf("取得元にアクセスが拒否されました（HTTP %d）", code)
	case StatusRetryLater:
		return fmt.Sprintf("取得元が一時的に利用できません（HTTP %d）", code)
	default:
		return fmt.Sprintf("予期しないHTTPステータスです（HTTP %d）", code)
	}
}
