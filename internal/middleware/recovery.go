package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
)

// PanicRecorder は回復したpanicをルート単位で記録する。metrics.Collectorが実装する。
type PanicRecorder interface {
	RecordPanic(route string)
}

// NewRecoveryMiddleware はハンドラーのpanicを回復して500を返すミドルウェアを生成する。
// ヘッダー送信後のpanicではレスポンスを書き換えない。
// http.ErrAbortHandlerはnet/httpに処理を任せるため再度panicする。
func NewRecoveryMiddleware(logger *slog.Logger, recorder PanicRecorder) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				route := routePattern(r)
				args := []any{
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("route", route),
					slog.String("stack", string(debug.Stack())),
				}
				if userID, err := UserIDFromContext(r.Context()); err == nil {
					args = append(args, slog.String("user_id", userID))
				}
				logger.Error("panic recovered", args...)

				if recorder != nil {
					recorder.RecordPanic(route)
				}
				if !sw.written {
					WriteInternalServerError(sw)
				}
			}()
			next.ServeHTTP(sw, r)
		})
	}
}

// routePattern はchiがマッチしたルートパターンを返す。
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
