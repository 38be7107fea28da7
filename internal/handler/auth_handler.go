// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/freecorps/pulse/internal/appwrite"
	"github.com/freecorps/pulse/internal/authstore"
	"github.com/freecorps/pulse/internal/identity"
	"github.com/freecorps/pulse/internal/middleware"
	"github.com/freecorps/pulse/internal/model"
)

// AuthStore は認証ハンドラーが必要とするブラウザセッション単位の認証状態ストア。
// *authstore.Storeが実装する。
type AuthStore interface {
	State() authstore.State

	Login(ctx context.Context, email, password string) error
	Register(ctx context.Context, email, password, name string) error
	LoginWithOAuth(ctx context.Context, provider, successURL, failureURL string, scopes []string) (string, error)
	CreateSession(ctx context.Context, userID, secret string) error
	Logout(ctx context.Context) error
	ResetPassword(ctx context.Context, email string) error
	UpdateUserPassword(ctx context.Context, userID, secret, password string) error
	UpdateProfilePicture(ctx context.Context, pictureURL string) error

	CreateMFARecoveryCodes(ctx context.Context) ([]string, error)
	CreateTOTP(ctx context.Context) (*model.MFAType, error)
	VerifyAuthenticator(ctx context.Context, otp string) error
	CreateMFAChallenge(ctx context.Context, factor model.MFAFactor) (*model.MFAChallenge, error)
	VerifyChallenge(ctx context.Context, challengeID, otp string) error
	ListMFAFactors(ctx context.Context) (*model.MFAFactors, error)
	UpdateMFA(ctx context.Context, enabled bool) error
	SetMFAStep(ctx context.Context, step model.MFAStep) error
	SetSelectedFactor(ctx context.Context, factor model.MFAFactor) error
	SetMFARecovery(ctx context.Context, recovery bool)
	SetMFAChallengeRequired(ctx context.Context, required bool)
}

// AuthStoreProvider はブラウザセッションIDからAuthStoreを取得する。
type AuthStoreProvider interface {
	Get(ctx context.Context, sessionID string) (AuthStore, error)
}

// URLValidator はリダイレクト先URLを検証する。
type URLValidator interface {
	Validate(rawURL string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	// BaseURL はOAuth完了後のリダイレクト先となるフロントエンドのURL。
	BaseURL   string
	Redirects URLValidator
}

// AuthHandler は認証状態ストアを操作するHTTPハンドラー。
// 各アクションの結果は成否にかかわらず最新の認証状態として返す。
type AuthHandler struct {
	stores AuthStoreProvider
	config AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(stores AuthStoreProvider, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		stores: stores,
		config: config,
	}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required"`
}

type oauthRequest struct {
	Provider   string   `json:"provider" validate:"required"`
	SuccessURL string   `json:"successUrl" validate:"required,url"`
	FailureURL string   `json:"failureUrl" validate:"required,url"`
	Scopes     []string `json:"scopes"`
}

type recoveryRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type recoveryConfirmRequest struct {
	UserID   string `json:"userId" validate:"required"`
	Secret   string `json:"secret" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

type otpRequest struct {
	OTP string `json:"otp" validate:"required"`
}

type challengeRequest struct {
	Factor model.MFAFactor `json:"factor" validate:"required"`
}

type verifyChallengeRequest struct {
	ChallengeID string `json:"challengeId"`
	OTP         string `json:"otp" validate:"required"`
}

type updateMFARequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// mfaUIRequest はMFAチャレンジ画面の表示状態の更新。nilのフィールドは変更しない。
type mfaUIRequest struct {
	Step              *model.MFAStep   `json:"mfaStep"`
	SelectedFactor    *model.MFAFactor `json:"selectedFactor"`
	Recovery          *bool            `json:"recovery"`
	ChallengeRequired *bool            `json:"isMFAChallengeRequired"`
}

type pictureRequest struct {
	URL string `json:"url" validate:"required,url"`
}

// store はリクエストのブラウザセッションに対応するAuthStoreを返す。
func (h *AuthHandler) store(w http.ResponseWriter, r *http.Request) (AuthStore, bool) {
	sid, err := middleware.SessionIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return nil, false
	}
	s, err := h.stores.Get(r.Context(), sid)
	if err != nil {
		slog.Error("failed to load auth store", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return nil, false
	}
	return s, true
}

// respond はアクションの結果に応じたステータスコードで認証状態を返す。
func (h *AuthHandler) respond(w http.ResponseWriter, s AuthStore, action string, err error) {
	status := http.StatusOK
	if err != nil {
		status = authErrorStatus(err)
		slog.Warn("auth action failed",
			slog.String("action", action),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, status, s.State())
}

// authErrorStatus はIdP呼び出しのエラーをHTTPステータスコードに変換する。
// IdPが4xxを返した場合はそのまま使い、それ以外は上流の障害として502とする。
func authErrorStatus(err error) int {
	if apiErr, ok := asAPIError(err); ok {
		return mapAPIErrorToHTTPStatus(apiErr)
	}
	if e, ok := appwrite.AsError(err); ok && e.Code >= 400 && e.Code < 500 {
		return e.Code
	}
	return http.StatusBadGateway
}

// State は現在の認証状態を返す。
// GET /api/auth/state
func (h *AuthHandler) State(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.State())
}

// Login はメールアドレスとパスワードでログインする。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	h.respond(w, s, "login", s.Login(r.Context(), req.Email, req.Password))
}

// Register はアカウントを作成してログインする。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	h.respond(w, s, "register", s.Register(r.Context(), req.Email, req.Password, req.Name))
}

// Logout は現在のセッションを削除する。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	h.respond(w, s, "logout", s.Logout(r.Context()))
}

// OAuth はOAuthプロバイダーのログイン画面へのURLを返す。
// POST /api/auth/oauth
func (h *AuthHandler) OAuth(w http.ResponseWriter, r *http.Request) {
	var req oauthRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if h.config.Redirects != nil {
		for _, u := range []string{req.SuccessURL, req.FailureURL} {
			if err := h.config.Redirects.Validate(u); err != nil {
				writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError(err.Error()))
				return
			}
		}
	}
	s, ok := h.store(w, r)
	if !ok {
		return
	}

	redirect, err := s.LoginWithOAuth(r.Context(), req.Provider, req.SuccessURL, req.FailureURL, req.Scopes)
	if err != nil {
		h.respond(w, s, "oauth", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": redirect})
}

// OAuthCallback はOAuthリダイレクトで受け取ったuserIdとsecretでセッションを作成し、
// フロントエンドへリダイレクトする。
// GET /api/auth/oauth/callback?userId=xxx&secret=yyy
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	secret := r.URL.Query().Get("secret")
	if userID == "" || secret == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("userId と secret は必須です"))
		return
	}
	s, ok := h.store(w, r)
	if !ok {
		return
	}

	if err := s.CreateSession(r.Context(), userID, secret); err != nil {
		slog.Warn("oauth session failed", slog.String("error", err.Error()))
		http.Redirect(w, r, h.frontendURL("/login", url.Values{"error": {identity.Message(err)}}), http.StatusTemporaryRedirect)
		return
	}
	if s.State().MFARequired {
		http.Redirect(w, r, h.frontendURL("/mfa", nil), http.StatusTemporaryRedirect)
		return
	}
	http.Redirect(w, r, h.frontendURL("/", nil), http.StatusTemporaryRedirect)
}

// frontendURL はフロントエンドのパスにクエリを付けたURLを返す。
func (h *AuthHandler) frontendURL(path string, query url.Values) string {
	u := h.config.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// Recovery はパスワード再設定メールの送信を要求する。
// POST /api/auth/recovery
func (h *AuthHandler) Recovery(w http.ResponseWriter, r *http.Request) {
	var req recoveryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	h.respond(w, s, "reset_password", s.ResetPassword(r.Context(), req.Email))
}

// RecoveryConfirm はメールのシークレットでパスワードを再設定する。
// POST /api/auth/recovery/confirm
func (h *AuthHandler) RecoveryConfirm(w http.ResponseWriter, r *http.Request) {
	var req recoveryConfirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	h.respond(w, s, "update_password", s.UpdateUserPassword(r.Context(), req.UserID, req.Secret, req.Password))
}

// UpdatePicture はプロフィール画像URLを更新する。
// PUT /api/auth/prefs/picture
func (h *AuthHandler) UpdatePicture(w http.ResponseWriter, r *http.Request) {
	var req pictureRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	h.respond(w, s, "update_picture", s.UpdateProfilePicture(r.Context(), req.URL))
}

// CreateRecoveryCodes はMFAのリカバリーコードを発行する。
// POST /api/auth/mfa/recovery-codes
func (h *AuthHandler) CreateRecoveryCodes(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	_, err := s.CreateMFARecoveryCodes(r.Context())
	h.respond(w, s, "mfa_recovery_codes", err)
}

// CreateTOTP はTOTP認証器を登録する。
// POST /api/auth/mfa/totp
func (h *AuthHandler) CreateTOTP(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	_, err := s.CreateTOTP(r.Context())
	h.respond(w, s, "mfa_totp", err)
}

// VerifyTOTP はTOTP認証器の登録を完了する。
// PUT /api/auth/mfa/totp
func (h *AuthHandler) VerifyTOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	h.respond(w, s, "mfa_verify_authenticator", s.VerifyAuthenticator(r.Context(), req.OTP))
}

// CreateChallenge は選択した要素のMFAチャレンジを作成する。
// POST /api/auth/mfa/challenge
func (h *AuthHandler) CreateChallenge(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	_, err := s.CreateMFAChallenge(r.Context(), req.Factor)
	h.respond(w, s, "mfa_challenge", err)
}

// VerifyChallenge はMFAチャレンジにコードを提出する。
// PUT /api/auth/mfa/challenge
func (h *AuthHandler) VerifyChallenge(w http.ResponseWriter, r *http.Request) {
	var req verifyChallengeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	h.respond(w, s, "mfa_verify_challenge", s.VerifyChallenge(r.Context(), req.ChallengeID, req.OTP))
}

// ListFactors は利用可能なMFA要素を返す。
// GET /api/auth/mfa/factors
func (h *AuthHandler) ListFactors(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	_, err := s.ListMFAFactors(r.Context())
	h.respond(w, s, "mfa_factors", err)
}

// UpdateMFA はアカウントのMFAを有効化・無効化する。
// PATCH /api/auth/mfa
func (h *AuthHandler) UpdateMFA(w http.ResponseWriter, r *http.Request) {
	var req updateMFARequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	h.respond(w, s, "mfa_update", s.UpdateMFA(r.Context(), *req.Enabled))
}

// UpdateMFAUI はMFAチャレンジ画面の表示状態を更新する。IdPは呼び出さない。
// PATCH /api/auth/mfa/ui
func (h *AuthHandler) UpdateMFAUI(w http.ResponseWriter, r *http.Request) {
	var req mfaUIRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, ok := h.store(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if req.ChallengeRequired != nil {
		s.SetMFAChallengeRequired(ctx, *req.ChallengeRequired)
	}
	if req.Step != nil {
		if err := s.SetMFAStep(ctx, *req.Step); err != nil {
			handleServiceError(w, err)
			return
		}
	}
	if req.SelectedFactor != nil {
		if err := s.SetSelectedFactor(ctx, *req.SelectedFactor); err != nil {
			handleServiceError(w, err)
			return
		}
	}
	if req.Recovery != nil {
		s.SetMFARecovery(ctx, *req.Recovery)
	}
	writeJSON(w, http.StatusOK, s.State())
}

// SetupAuthRoutes は認証関連のルーティングを設定する。
// authLimit が nil でない場合、ログイン・登録・パスワード再設定に適用する。
func SetupAuthRoutes(r chi.Router, h *AuthHandler, authLimit func(http.Handler) http.Handler) {
	if authLimit == nil {
		authLimit = passthrough
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Get("/state", h.State)
		r.Post("/logout", h.Logout)
		r.Post("/oauth", h.OAuth)
		r.Get("/oauth/callback", h.OAuthCallback)
		r.Put("/prefs/picture", h.UpdatePicture)

		r.With(authLimit).Post("/login", h.Login)
		r.With(authLimit).Post("/register", h.Register)
		r.With(authLimit).Post("/recovery", h.Recovery)
		r.With(authLimit).Post("/recovery/confirm", h.RecoveryConfirm)

		r.Route("/mfa", func(r chi.Router) {
			r.Patch("/", h.UpdateMFA)
			r.Patch("/ui", h.UpdateMFAUI)
			r.Get("/factors", h.ListFactors)
			r.Post("/recovery-codes", h.CreateRecoveryCodes)
			r.Post("/totp", h.CreateTOTP)
			r.Put("/totp", h.VerifyTOTP)
			r.Post("/challenge", h.CreateChallenge)
			r.Put("/challenge", h.VerifyChallenge)
		})
	})
}
