// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string         // エラーコード
	Message  string         // エラーメッセージ
	Category string         // カテゴリ: validation, user, profile, post, member_type, subscription, import, system
	Action   string         // ユーザー向け対処方法
	Details  map[string]any // 追加情報（フィールド別のバリデーション結果など）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidID            = "INVALID_ID"
	ErrCodeValidationFailed     = "VALIDATION_FAILED"
	ErrCodeInvalidMemberType    = "INVALID_MEMBER_TYPE"
	ErrCodeSelfSubscription     = "SELF_SUBSCRIPTION"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeProfileNotFound      = "PROFILE_NOT_FOUND"
	ErrCodePostNotFound         = "POST_NOT_FOUND"
	ErrCodeMemberTypeNotFound   = "MEMBER_TYPE_NOT_FOUND"
	ErrCodeSubscriptionNotFound = "SUBSCRIPTION_NOT_FOUND"
	ErrCodeProfileAlreadyExists = "PROFILE_ALREADY_EXISTS"
	ErrCodeCascadeIncomplete    = "CASCADE_INCOMPLETE"
	ErrCodeStoreUnavailable     = "STORE_UNAVAILABLE"
	ErrCodeInvalidURL           = "INVALID_URL"
	ErrCodeSSRFBlocked          = "SSRF_BLOCKED"
	ErrCodeFetchFailed          = "FETCH_FAILED"
	ErrCodeFeedNotDetected      = "FEED_NOT_DETECTED"
	ErrCodeParseFailed          = "PARSE_FAILED"
	ErrCodeImportIncomplete     = "IMPORT_INCOMPLETE"
)

// NewInvalidIDError は識別子の形式不正エラーを生成する。
func NewInvalidIDError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidID,
		Message:  fmt.Sprintf("識別子の形式が不正です: %q", id),
		Category: "validation",
		Action:   "UUID形式の識別子を指定してください。",
	}
}

// NewValidationError はリクエストのバリデーションエラーを生成する。
// detailsにはフィールド名ごとのエラー内容を格納する。
func NewValidationError(details map[string]any) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  "リクエストの内容が不正です。",
		Category: "validation",
		Action:   "details の各フィールドを確認してください。",
		Details:  details,
	}
}

// NewInvalidMemberTypeError は会員種別が列挙値外の場合のエラーを生成する。
func NewInvalidMemberTypeError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMemberType,
		Message:  fmt.Sprintf("無効な会員種別です: %q", id),
		Category: "validation",
		Action:   "会員種別には basic または business を指定してください。",
	}
}

// NewSelfSubscriptionError は自分自身を購読しようとした場合のエラーを生成する。
func NewSelfSubscriptionError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfSubscription,
		Message:  "自分自身を購読することはできません。",
		Category: "subscription",
		Action:   "購読対象には別のユーザーを指定してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("指定されたユーザーが見つかりません: %s", userID),
		Category: "user",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewProfileNotFoundError はプロフィールが見つからない場合のエラーを生成する。
func NewProfileNotFoundError(profileID string) *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  fmt.Sprintf("指定されたプロフィールが見つかりません: %s", profileID),
		Category: "profile",
		Action:   "プロフィールIDを確認してください。",
	}
}

// NewPostNotFoundError は投稿が見つからない場合のエラーを生成する。
func NewPostNotFoundError(postID string) *APIError {
	return &APIError{
		Code:     ErrCodePostNotFound,
		Message:  fmt.Sprintf("指定された投稿が見つかりません: %s", postID),
		Category: "post",
		Action:   "投稿IDを確認してください。",
	}
}

// NewMemberTypeNotFoundError は会員種別が見つからない場合のエラーを生成する。
func NewMemberTypeNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeMemberTypeNotFound,
		Message:  fmt.Sprintf("指定された会員種別が見つかりません: %s", id),
		Category: "member_type",
		Action:   "会員種別IDを確認してください。",
	}
}

// NewSubscriptionNotFoundError は解除対象の購読関係が存在しない場合のエラーを生成する。
func NewSubscriptionNotFoundError(followerID, targetID string) *APIError {
	return &APIError{
		Code:     ErrCodeSubscriptionNotFound,
		Message:  fmt.Sprintf("ユーザー %s の購読リストに %s は含まれていません。", targetID, followerID),
		Category: "subscription",
		Action:   "購読済みのユーザーに対してのみ解除できます。",
	}
}

// NewProfileAlreadyExistsError はユーザーが既にプロフィールを持つ場合のエラーを生成する。
func NewProfileAlreadyExistsError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeProfileAlreadyExists,
		Message:  fmt.Sprintf("ユーザー %s には既にプロフィールが存在します。", userID),
		Category: "profile",
		Action:   "既存のプロフィールを更新してください。",
	}
}

// NewStoreUnavailableError はストア呼び出しのタイムアウトなど再試行可能な障害のエラーを生成する。
func NewStoreUnavailableError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnavailable,
		Message:  fmt.Sprintf("データストアが一時的に利用できません: %s", reason),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "import",
		Action:   "公開されているWebサイトのURLを入力してください。",
	}
}

// NewFetchFailedError はインポート元の取得失敗エラーを生成する。
func NewFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeFetchFailed,
		Message:  fmt.Sprintf("URLの取得に失敗しました: %s", reason),
		Category: "import",
		Action:   "URLが正しいか確認し、しばらく待ってから再度お試しください。",
	}
}

// NewFeedNotDetectedError はフィード未検出エラーを生成する。
func NewFeedNotDetectedError(url string) *APIError {
	return &APIError{
		Code:     ErrCodeFeedNotDetected,
		Message:  fmt.Sprintf("指定されたURLからRSS/Atomフィードを検出できませんでした: %s", url),
		Category: "import",
		Action:   "RSS/AtomフィードのURLを直接指定してください。",
	}
}

// NewImportIncompleteError は取り込みが途中で失敗したエラーを生成する。
// 作成済みの投稿は削除されずに残るため、そのIDを details.createdPostIds で返す。
func NewImportIncompleteError(createdPostIDs []string) *APIError {
	if createdPostIDs == nil {
		createdPostIDs = []string{}
	}
	return &APIError{
		Code:     ErrCodeImportIncomplete,
		Message:  fmt.Sprintf("投稿の取り込みが途中で失敗しました（作成済み: %d件）", len(createdPostIDs)),
		Category: "import",
		Action:   "作成済みの投稿を確認してから再度お試しください。同じURLを再実行すると投稿が重複します。",
		Details: map[string]any{
			"createdPostIds": createdPostIDs,
		},
	}
}

// NewParseFailedError はパース失敗エラーを生成する。
func NewParseFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeParseFailed,
		Message:  "フィードの解析に失敗しました。",
		Category: "import",
		Action:   "有効なRSS/Atomフィードかどうか確認してください。",
	}
}

// CascadeError はユーザーの連鎖削除が途中で失敗したことを表す。
// 完了済みのステップと失敗したステップを保持し、再実行で残りを処理できるようにする。
// 削除済みの従属エンティティは再実行時に成功扱いとなるため、再実行は冪等。
type CascadeError struct {
	UserID         string
	CompletedSteps []string
	FailedStep     string
	Err            error
}

// Error はerrorインターフェースを実装する。
func (e *CascadeError) Error() string {
	return fmt.Sprintf("ユーザー %s の連鎖削除が %s で中断しました（完了: %s）: %v",
		e.UserID, e.FailedStep, strings.Join(e.CompletedSteps, ", "), e.Err)
}

// Unwrap は原因となったエラーを返す。
func (e *CascadeError) Unwrap() error {
	return e.Err
}

// APIError はレスポンス用のAPIErrorに変換する。
func (e *CascadeError) APIError() *APIError {
	completed := e.CompletedSteps
	if completed == nil {
		completed = []string{}
	}
	return &APIError{
		Code:     ErrCodeCascadeIncomplete,
		Message:  fmt.Sprintf("ユーザー %s の削除が途中で失敗しました: %s", e.UserID, e.FailedStep),
		Category: "user",
		Action:   "同じリクエストを再実行すると、残りの削除処理が続行されます。",
		Details: map[string]any{
			"completedSteps": completed,
			"failedStep":     e.FailedStep,
		},
	}
}
