package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/freecorps/pulse/internal/middleware"
	"github.com/freecorps/pulse/internal/model"
)

// maxJSONBodyBytes はJSONリクエストボディの上限。
const maxJSONBodyBytes = 1 << 20

var validate = newValidator()

// newValidator はエラーのフィールド名にJSONタグを使うValidatorを生成する。
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSON(w, statusCode, apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// writeUnavailable は認証情報が未設定の外部サービスについて503を返す。
func writeUnavailable(w http.ResponseWriter, service string) {
	writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewServiceUnavailableError(service))
}

// asAPIError はerrから*model.APIErrorを取り出す。
func asAPIError(err error) (*model.APIError, bool) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// passthrough は何もしないミドルウェア。
func passthrough(next http.Handler) http.Handler {
	return next
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	if apiErr, ok := asAPIError(err); ok {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation, model.ErrCodeInvalidURL,
		model.ErrCodeInvalidPrice, model.ErrCodeInvalidSignature:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized, model.ErrCodeAuthFailed:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden, model.ErrCodeSSRFBlocked,
		model.ErrCodeProfileRequired, model.ErrCodeCSRF:
		return http.StatusForbidden
	case model.ErrCodePostNotFound, model.ErrCodeGameNotFound, model.ErrCodeEditorNotFound,
		model.ErrCodeForumPostNotFound, model.ErrCodeCommentNotFound, model.ErrCodeProfileNotFound,
		model.ErrCodeCustomerNotFound, model.ErrCodeBucketNotFound:
		return http.StatusNotFound
	case model.ErrCodeHandleTaken:
		return http.StatusConflict
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeUpstream:
		return http.StatusBadGateway
	case model.ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON はリクエストボディをdstにデコードし、validateタグで検証する。
// 失敗した場合は400を書き込んでfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return false
	}
	return validateRequest(w, dst)
}

// validateRequest はvalidateタグで検証し、失敗した場合は400を書き込んでfalseを返す。
func validateRequest(w http.ResponseWriter, req any) bool {
	err := validate.Struct(req)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		slog.Error("request validation failed", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return false
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	writeAPIErrorResponse(w, http.StatusBadRequest,
		model.NewValidationError("必須パラメータが不足しているか不正です: "+strings.Join(fields, ", ")))
	return false
}

// requireUserID はログイン中のユーザーIDを返す。未ログインなら401を書き込む。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return userID, true
}

// authorizeUser はリクエストで指定されたユーザーIDがログイン中のユーザーと一致するかを確認する。
// 未ログインなら401、別ユーザーを指定していれば403を書き込む。
func authorizeUser(w http.ResponseWriter, r *http.Request, requested string) bool {
	userID, ok := requireUserID(w, r)
	if !ok {
		return false
	}
	if userID != requested {
		writeAPIErrorResponse(w, http.StatusForbidden, &model.APIError{
			Code:     model.ErrCodeForbidden,
			Message:  "他のユーザーのリソースは操作できません。",
			Category: "auth",
			Action:   "ログイン中のアカウントを確認してください。",
		})
		return false
	}
	return true
}
