package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

// newTestRouter は本番と同じ順序でミドルウェアを組み立てたルーターを返す。
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	rl := NewRateLimiter(testRateConfig(100, 100))
	t.Cleanup(rl.Stop)

	resolve := func(ctx context.Context, sid string) (string, error) {
		if sid == testSID {
			return "user-1", nil
		}
		return "", nil
	}
	csrf := CSRFConfig{ExemptPaths: []string{"/api/webhooks/"}}

	r := chi.NewRouter()
	r.Use(NewRecoveryMiddleware(logger, nil))
	r.Use(NewSecurityHeadersMiddleware(false))
	r.Use(NewCORSMiddleware([]string{"http://localhost:3000"}))
	r.Use(NewLoggingMiddleware(logger, nil))
	r.Use(NewSessionMiddleware(resolve, SessionConfig{}))
	r.Use(NewCSRFMiddleware(csrf))
	r.Use(rl.GeneralMiddleware())

	r.Post("/api/webhooks/stripe", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Group(func(r chi.Router) {
		r.Use(RequireUser)
		r.Post("/api/user-bucket", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		})
	})
	r.Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	return r
}

func TestChain_ProtectedRoute(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		name       string
		sid        string
		csrf       bool
		wantStatus int
	}{
		{name: "ログイン済み・トークンあり", sid: testSID, csrf: true, wantStatus: http.StatusCreated},
		{name: "CSRFトークンなし", sid: testSID, wantStatus: http.StatusForbidden},
		{name: "未ログイン", csrf: true, wantStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/user-bucket", nil)
			if tt.sid != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tt.sid})
			}
			if tt.csrf {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "tok"})
				req.Header.Set(csrfHeaderName, "tok")
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if w.Header().Get("X-Content-Type-Options") != "nosniff" {
				t.Error("security headers should be applied")
			}
		})
	}
}

func TestChain_WebhookBypassesCSRFAndSession(t *testing.T) {
	r := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestChain_PanicRecovered(t *testing.T) {
	r := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}
