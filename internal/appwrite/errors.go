package appwrite

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// IdPが返すエラー種別のうち、アプリケーションが分岐に使うもの。
const (
	TypeMoreFactorsRequired   = "user_more_factors_required"
	TypeUserUnauthorized      = "user_unauthorized"
	TypeGeneralUnauthorized   = "general_unauthorized_scope"
	TypeTeamNotFound          = "team_not_found"
	TypeStorageBucketNotFound = "storage_bucket_not_found"
	TypeUserInvalidToken      = "user_invalid_token"
)

// Error はAppwriteのエラーレスポンス。
type Error struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	return fmt.Sprintf("appwrite: %d %s: %s", e.Code, e.Type, e.Message)
}

// parseError はエラーレスポンスをErrorに変換する。
// ボディがJSONでない場合はステータスコードのみを設定する。
func parseError(status int, body []byte) *Error {
	e := &Error{}
	if err := json.Unmarshal(body, e); err != nil || e.Message == "" {
		e.Message = http.StatusText(status)
	}
	e.Code = status
	return e
}

// AsError はerrから*Errorを取り出す。
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsType はerrが指定された種別のAppwriteエラーかを判定する。
func IsType(err error, typ string) bool {
	e, ok := AsError(err)
	return ok && e.Type == typ
}

// IsNotFound はerrが404のAppwriteエラーかを判定する。
func IsNotFound(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code == http.StatusNotFound
}

// IsUnauthorized はerrが401のAppwriteエラーかを判定する。
func IsUnauthorized(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code == http.StatusUnauthorized
}

// IsConflict はerrが409のAppwriteエラーかを判定する。チーム所属の重複作成などで返る。
func IsConflict(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code == http.StatusConflict
}
