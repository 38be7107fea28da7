package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/freecorps/pulse/internal/middleware"
	"github.com/freecorps/pulse/internal/model"
	"github.com/freecorps/pulse/internal/payment"
)

// maxWebhookBodyBytes はWebhookペイロードの上限。
const maxWebhookBodyBytes = 65536

// PaymentServiceInterface は決済ハンドラーが必要とするサービスインターフェース。
type PaymentServiceInterface interface {
	CreateCheckout(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error)
	CreatePortalSession(ctx context.Context, userID, returnURL string) (string, error)
}

// WebhookProcessor は署名付きWebhookペイロードを処理する。
type WebhookProcessor interface {
	Handle(ctx context.Context, payload []byte, signature string) error
}

// StripeHandler はCheckout・カスタマーポータル・WebhookのHTTPハンドラー。
// serviceまたはwebhookがnilの場合、対応するルートは503を返す。
type StripeHandler struct {
	service PaymentServiceInterface
	webhook WebhookProcessor
}

// NewStripeHandler はStripeHandlerを生成する。
func NewStripeHandler(service PaymentServiceInterface, webhook WebhookProcessor) *StripeHandler {
	return &StripeHandler{
		service: service,
		webhook: webhook,
	}
}

type checkoutRequest struct {
	UserID     string `json:"userId" validate:"required"`
	UserEmail  string `json:"userEmail" validate:"required,email"`
	PlanType   string `json:"planType" validate:"required"`
	SuccessURL string `json:"successUrl" validate:"required"`
	CancelURL  string `json:"cancelUrl" validate:"required"`
}

type checkoutResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

type portalRequest struct {
	UserID    string `json:"userId" validate:"required"`
	ReturnURL string `json:"returnUrl" validate:"required"`
}

// CreateCheckout はサブスクリプション用のCheckoutセッションを作成する。
// POST /api/stripe/create-checkout
func (h *StripeHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeUnavailable(w, "決済サービス")
		return
	}

	var req checkoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !authorizeUser(w, r, req.UserID) {
		return
	}

	cs, err := h.service.CreateCheckout(r.Context(), payment.CheckoutRequest{
		UserID:     req.UserID,
		UserEmail:  req.UserEmail,
		PlanType:   model.PlanType(req.PlanType),
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, checkoutResponse{SessionID: cs.SessionID, URL: cs.URL})
}

// CreatePortalSession は有効な顧客のカスタマーポータルURLを返す。
// POST /api/stripe/create-portal-session
func (h *StripeHandler) CreatePortalSession(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeUnavailable(w, "決済サービス")
		return
	}

	var req portalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !authorizeUser(w, r, req.UserID) {
		return
	}

	url, err := h.service.CreatePortalSession(r.Context(), req.UserID, req.ReturnURL)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// Webhook は決済プロバイダーからのイベントを処理する。
// 署名が不正な場合は400を返し、何も変更しない。
// POST /api/webhooks/stripe
func (h *StripeHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if h.webhook == nil {
		writeUnavailable(w, "決済Webhook")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		slog.Warn("failed to read webhook body", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディを読み取れませんでした"))
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidSignatureError())
		return
	}

	if err := h.webhook.Handle(r.Context(), payload, signature); err != nil {
		if _, ok := asAPIError(err); ok {
			handleServiceError(w, err)
			return
		}
		slog.Error("webhook handling failed", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
