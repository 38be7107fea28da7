package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/freecorps/pulse/internal/model"
)

// mockNewsletterService はNewsletterServiceInterfaceのモック実装。
type mockNewsletterService struct {
	subscribeFn func(ctx context.Context, email string) error
}

func (m *mockNewsletterService) Subscribe(ctx context.Context, email string) error {
	if m.subscribeFn != nil {
		return m.subscribeFn(ctx, email)
	}
	return nil
}

func TestNewsletterHandler_Subscribe(t *testing.T) {
	tests := []struct {
		name       string
		service    NewsletterServiceInterface
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "subscribed",
			service:    &mockNewsletterService{},
			body:       `{"email":"reader@example.com"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing email",
			service:    &mockNewsletterService{},
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   model.ErrCodeValidation,
		},
		{
			name:       "malformed email",
			service:    &mockNewsletterService{},
			body:       `{"email":"reader"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   model.ErrCodeValidation,
		},
		{
			name: "provider failure",
			service: &mockNewsletterService{subscribeFn: func(ctx context.Context, email string) error {
				return model.NewUpstreamError("ニュースレター")
			}},
			body:       `{"email":"reader@example.com"}`,
			wantStatus: http.StatusBadGateway,
			wantCode:   model.ErrCodeUpstream,
		},
		{
			name:       "not configured",
			body:       `{"email":"reader@example.com"}`,
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   model.ErrCodeServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewNewsletterHandler(tt.service)

			req := jsonRequest(http.MethodPost, "/api/newsletter", tt.body)
			w := httptest.NewRecorder()

			h.Subscribe(w, req)

			if tt.wantCode != "" {
				assertAPIError(t, w, tt.wantStatus, tt.wantCode)
				return
			}
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var resp map[string]bool
			decodeBody(t, w, &resp)
			if !resp["success"] {
				t.Error("success = false, want true")
			}
		})
	}
}
