// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, content, forum, payment, storage, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeInvalidURL         = "INVALID_URL"
	ErrCodeSSRFBlocked        = "SSRF_BLOCKED"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeAuthFailed         = "AUTH_FAILED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodePostNotFound       = "POST_NOT_FOUND"
	ErrCodeGameNotFound       = "GAME_NOT_FOUND"
	ErrCodeEditorNotFound     = "EDITOR_NOT_FOUND"
	ErrCodeForumPostNotFound  = "FORUM_POST_NOT_FOUND"
	ErrCodeCommentNotFound    = "COMMENT_NOT_FOUND"
	ErrCodeProfileNotFound    = "PROFILE_NOT_FOUND"
	ErrCodeProfileRequired    = "PROFILE_REQUIRED"
	ErrCodeHandleTaken        = "HANDLE_TAKEN"
	ErrCodeCustomerNotFound   = "CUSTOMER_NOT_FOUND"
	ErrCodeBucketNotFound     = "BUCKET_NOT_FOUND"
	ErrCodeInvalidPrice       = "INVALID_PRICE"
	ErrCodeInvalidSignature   = "INVALID_SIGNATURE"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeUpstream           = "UPSTREAM_ERROR"
	ErrCodeCSRF               = "CSRF_TOKEN_INVALID"
	ErrCodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力が不正です: %s", reason),
		Category: "validation",
		Action:   "必須項目を入力してから再度お試しください。",
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
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewUnauthorizedError は未ログインエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "ログインが必要です。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewAuthFailedError はIdPが認証操作を拒否した場合のエラーを生成する。
// messageにはIdPが返したメッセージをそのまま格納する。
func NewAuthFailedError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeAuthFailed,
		Message:  message,
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError(team string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  fmt.Sprintf("この操作には %s チームへの所属が必要です。", team),
		Category: "auth",
		Action:   "管理者に権限の付与を依頼してください。",
	}
}

// NewPostNotFoundError は記事未検出エラーを生成する。
func NewPostNotFoundError(postID string) *APIError {
	return &APIError{
		Code:     ErrCodePostNotFound,
		Message:  fmt.Sprintf("指定された記事が見つかりません: %s", postID),
		Category: "content",
		Action:   "記事IDを確認してください。",
	}
}

// NewGameNotFoundError はゲーム未検出エラーを生成する。
func NewGameNotFoundError(gameID string) *APIError {
	return &APIError{
		Code:     ErrCodeGameNotFound,
		Message:  fmt.Sprintf("指定されたゲームが見つかりません: %s", gameID),
		Category: "content",
		Action:   "ゲームIDを確認してください。",
	}
}

// NewEditorNotFoundError は編集者未検出エラーを生成する。
func NewEditorNotFoundError(editorID string) *APIError {
	return &APIError{
		Code:     ErrCodeEditorNotFound,
		Message:  fmt.Sprintf("指定された編集者が見つかりません: %s", editorID),
		Category: "content",
		Action:   "編集者IDを確認してください。",
	}
}

// NewForumPostNotFoundError はフォーラム投稿未検出エラーを生成する。
func NewForumPostNotFoundError(postID string) *APIError {
	return &APIError{
		Code:     ErrCodeForumPostNotFound,
		Message:  fmt.Sprintf("指定された投稿が見つかりません: %s", postID),
		Category: "forum",
		Action:   "投稿IDを確認してください。",
	}
}

// NewCommentNotFoundError はコメント未検出エラーを生成する。
func NewCommentNotFoundError(commentID string) *APIError {
	return &APIError{
		Code:     ErrCodeCommentNotFound,
		Message:  fmt.Sprintf("指定されたコメントが見つかりません: %s", commentID),
		Category: "forum",
		Action:   "コメントIDを確認してください。",
	}
}

// NewProfileNotFoundError はフォーラムプロフィール未検出エラーを生成する。
func NewProfileNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  "フォーラムプロフィールが見つかりません。",
		Category: "forum",
		Action:   "プロフィールIDを確認してください。",
	}
}

// NewProfileRequiredError はプロフィール未作成のユーザーが投稿しようとした場合のエラーを生成する。
func NewProfileRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileRequired,
		Message:  "フォーラムに投稿するにはプロフィールが必要です。",
		Category: "forum",
		Action:   "プロフィールを作成してから再度お試しください。",
	}
}

// NewHandleTakenError はハンドル名の重複エラーを生成する。
func NewHandleTakenError(handle string) *APIError {
	return &APIError{
		Code:     ErrCodeHandleTaken,
		Message:  fmt.Sprintf("ハンドル名は既に使用されています: %s", handle),
		Category: "forum",
		Action:   "別のハンドル名を入力してください。",
	}
}

// NewCustomerNotFoundError は有効な課金顧客が存在しない場合のエラーを生成する。
func NewCustomerNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeCustomerNotFound,
		Message:  "有効なサブスクリプションが見つかりません。",
		Category: "payment",
		Action:   "プレミアムプランに登録してから再度お試しください。",
	}
}

// NewBucketNotFoundError はユーザーバケット未作成エラーを生成する。
func NewBucketNotFoundError(bucketID string) *APIError {
	return &APIError{
		Code:     ErrCodeBucketNotFound,
		Message:  fmt.Sprintf("バケットが見つかりません: %s", bucketID),
		Category: "storage",
		Action:   "バケットを作成してから再度お試しください。",
	}
}

// NewInvalidPriceError はプランに対応する価格が設定されていない場合のエラーを生成する。
func NewInvalidPriceError(planType string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPrice,
		Message:  fmt.Sprintf("プランに対応する価格IDがありません: %s", planType),
		Category: "payment",
		Action:   "monthly または yearly を指定してください。",
	}
}

// NewInvalidSignatureError はWebhook署名検証失敗エラーを生成する。
func NewInvalidSignatureError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSignature,
		Message:  "Webhook署名の検証に失敗しました。",
		Category: "payment",
		Action:   "署名シークレットの設定を確認してください。",
	}
}

// NewServiceUnavailableError は外部サービスの認証情報が未設定の場合のエラーを生成する。
func NewServiceUnavailableError(service string) *APIError {
	return &APIError{
		Code:     ErrCodeServiceUnavailable,
		Message:  fmt.Sprintf("%s は現在利用できません。", service),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUpstreamError は外部サービス呼び出し失敗エラーを生成する。
func NewUpstreamError(service string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstream,
		Message:  fmt.Sprintf("%s との通信に失敗しました。", service),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewCSRFError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRF,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ残す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
