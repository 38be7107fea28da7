// Package identity はIdP（Appwrite Account API）への薄いゲートウェイを提供する。
// セッションを保持するため、ブラウザセッションごとに1つのGatewayを使う。
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/freecorps/pulse/internal/appwrite"
	"github.com/freecorps/pulse/internal/model"
)

// Gateway はIdPのセッション・アカウント・MFA操作のインターフェース。
type Gateway interface {
	CreateEmailPasswordSession(ctx context.Context, email, password string) (*model.Session, error)
	CreateSession(ctx context.Context, userID, secret string) (*model.Session, error)
	OAuth2TokenURL(provider, successURL, failureURL string, scopes []string) string
	GetAccount(ctx context.Context) (*model.User, error)
	CreateAccount(ctx context.Context, userID, email, password, name string) (*model.User, error)
	CreateVerification(ctx context.Context, redirectURL string) error
	DeleteSession(ctx context.Context, sessionID string) error

	CreateRecovery(ctx context.Context, email, redirectURL string) error
	UpdateRecovery(ctx context.Context, userID, secret, password string) error

	CreateMFARecoveryCodes(ctx context.Context) ([]string, error)
	CreateTOTP(ctx context.Context) (*model.MFAType, error)
	VerifyAuthenticator(ctx context.Context, otp string) (*model.User, error)
	CreateMFAChallenge(ctx context.Context, factor model.MFAFactor) (*model.MFAChallenge, error)
	UpdateMFAChallenge(ctx context.Context, challengeID, otp string) error
	ListMFAFactors(ctx context.Context) (*model.MFAFactors, error)
	UpdateMFA(ctx context.Context, enabled bool) (*model.User, error)
	UpdatePrefs(ctx context.Context, prefs map[string]any) (*model.User, error)

	// Session は永続化用のセッションシークレットを返す。
	Session() string
	// RestoreSession は永続化されたセッションシークレットを復元する。
	RestoreSession(secret string)
}

// Factory はブラウザセッション用のGatewayを生成する。
type Factory func() Gateway

// IsMoreFactorsRequired はerrがMFAの追加要素を要求するエラーかを判定する。
func IsMoreFactorsRequired(err error) bool {
	return appwrite.IsType(err, appwrite.TypeMoreFactorsRequired)
}

// IsUnauthorized はerrがセッション無効を示すエラーかを判定する。
func IsUnauthorized(err error) bool {
	return appwrite.IsUnauthorized(err)
}

// Message はIdPエラーからユーザー向けメッセージを取り出す。
// IdP以外のエラーはerr.Error()を返す。
func Message(err error) string {
	if e, ok := appwrite.AsError(err); ok {
		return e.Message
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

// AppwriteGateway はAppwrite Account APIによるGatewayの実装。
type AppwriteGateway struct {
	client *appwrite.Client
}

// NewAppwriteGateway はAppwriteGatewayを生成する。
// Account APIはセッション権限で呼び出すため、APIキーは設定しない。
func NewAppwriteGateway(endpoint, projectID string) *AppwriteGateway {
	return &AppwriteGateway{
		client: appwrite.NewClient(appwrite.Config{
			Endpoint:  endpoint,
			ProjectID: projectID,
		}),
	}
}

// NewFactory はAppwriteGatewayを生成するFactoryを返す。
func NewFactory(endpoint, projectID string) Factory {
	return func() Gateway {
		return NewAppwriteGateway(endpoint, projectID)
	}
}

type userDoc struct {
	ID                string         `json:"$id"`
	Name              string         `json:"name"`
	Email             string         `json:"email"`
	EmailVerification bool           `json:"emailVerification"`
	MFA               bool           `json:"mfa"`
	Prefs             map[string]any `json:"prefs"`
	Registration      time.Time      `json:"registration"`
}

func (d *userDoc) toModel() *model.User {
	return &model.User{
		ID:                d.ID,
		Email:             d.Email,
		Name:              d.Name,
		EmailVerification: d.EmailVerification,
		MFA:               d.MFA,
		Prefs:             d.Prefs,
		CreatedAt:         d.Registration,
	}
}

type sessionDoc struct {
	ID     string    `json:"$id"`
	UserID string    `json:"userId"`
	Secret string    `json:"secret"`
	Expire time.Time `json:"expire"`
}

// CreateEmailPasswordSession はメールアドレスとパスワードでセッションを作成する。
func (g *AppwriteGateway) CreateEmailPasswordSession(ctx context.Context, email, password string) (*model.Session, error) {
	return g.createSession(ctx, "/account/sessions/email", map[string]any{
		"email":    email,
		"password": password,
	})
}

// CreateSession はOAuthリダイレクトで受け取ったワンタイムシークレットをセッションに交換する。
func (g *AppwriteGateway) CreateSession(ctx context.Context, userID, secret string) (*model.Session, error) {
	return g.createSession(ctx, "/account/sessions/token", map[string]any{
		"userId": userID,
		"secret": secret,
	})
}

func (g *AppwriteGateway) createSession(ctx context.Context, path string, params map[string]any) (*model.Session, error) {
	var doc sessionDoc
	if err := g.client.Call(ctx, http.MethodPost, path, params, &doc); err != nil {
		return nil, err
	}
	// APIキーなしの呼び出しではシークレットはCookieで返る
	if doc.Secret != "" {
		g.client.SetSession(doc.Secret)
	}
	return &model.Session{
		ID:        doc.ID,
		UserID:    doc.UserID,
		Secret:    g.client.Session(),
		ExpiresAt: doc.Expire,
	}, nil
}

// OAuth2TokenURL はIdPがホストするOAuth認可画面へのリダイレクトURLを組み立てる。
// 完了後はsuccessURLへuserIdとsecretがクエリで渡される。
func (g *AppwriteGateway) OAuth2TokenURL(provider, successURL, failureURL string, scopes []string) string {
	q := url.Values{}
	q.Set("project", g.client.ProjectID())
	if successURL != "" {
		q.Set("success", successURL)
	}
	if failureURL != "" {
		q.Set("failure", failureURL)
	}
	for _, s := range scopes {
		q.Add("scopes[]", s)
	}
	return fmt.Sprintf("%s/account/tokens/oauth2/%s?%s", g.client.Endpoint(), url.PathEscape(provider), q.Encode())
}

// GetAccount は現在のセッションのユーザーを取得する。
func (g *AppwriteGateway) GetAccount(ctx context.Context) (*model.User, error) {
	var doc userDoc
	if err := g.client.Call(ctx, http.MethodGet, "/account", nil, &doc); err != nil {
		return nil, err
	}
	return doc.toModel(), nil
}

// CreateAccount はアカウントを作成する。
func (g *AppwriteGateway) CreateAccount(ctx context.Context, userID, email, password, name string) (*model.User, error) {
	var doc userDoc
	err := g.client.Call(ctx, http.MethodPost, "/account", map[string]any{
		"userId":   userID,
		"email":    email,
		"password": password,
		"name":     name,
	}, &doc)
	if err != nil {
		return nil, err
	}
	return doc.toModel(), nil
}

// CreateVerification は確認メールの送信を要求する。
func (g *AppwriteGateway) CreateVerification(ctx context.Context, redirectURL string) error {
	return g.client.Call(ctx, http.MethodPost, "/account/verification", map[string]any{
		"url": redirectURL,
	}, nil)
}

// DeleteSession はセッションを削除する。"current"で現在のセッションを指す。
func (g *AppwriteGateway) DeleteSession(ctx context.Context, sessionID string) error {
	if err := g.client.Call(ctx, http.MethodDelete, "/account/sessions/"+url.PathEscape(sessionID), nil, nil); err != nil {
		return err
	}
	if sessionID == "current" {
		g.client.SetSession("")
	}
	return nil
}

// CreateRecovery はパスワード再設定メールの送信を要求する。
func (g *AppwriteGateway) CreateRecovery(ctx context.Context, email, redirectURL string) error {
	return g.client.Call(ctx, http.MethodPost, "/account/recovery", map[string]any{
		"email": email,
		"url":   redirectURL,
	}, nil)
}

// UpdateRecovery はメールで受け取ったシークレットでパスワードを再設定する。
func (g *AppwriteGateway) UpdateRecovery(ctx context.Context, userID, secret, password string) error {
	return g.client.Call(ctx, http.MethodPut, "/account/recovery", map[string]any{
		"userId":   userID,
		"secret":   secret,
		"password": password,
	}, nil)
}

// CreateMFARecoveryCodes はリカバリーコードを発行する。
func (g *AppwriteGateway) CreateMFARecoveryCodes(ctx context.Context) ([]string, error) {
	var out struct {
		RecoveryCodes []string `json:"recoveryCodes"`
	}
	if err := g.client.Call(ctx, http.MethodPost, "/account/mfa/recovery-codes", nil, &out); err != nil {
		return nil, err
	}
	return out.RecoveryCodes, nil
}

// CreateTOTP はTOTP認証器を登録する。検証が完了するまで有効にならない。
func (g *AppwriteGateway) CreateTOTP(ctx context.Context) (*model.MFAType, error) {
	var out model.MFAType
	if err := g.client.Call(ctx, http.MethodPost, "/account/mfa/authenticators/totp", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyAuthenticator はTOTP認証器の登録を検証する。
func (g *AppwriteGateway) VerifyAuthenticator(ctx context.Context, otp string) (*model.User, error) {
	var doc userDoc
	err := g.client.Call(ctx, http.MethodPut, "/account/mfa/authenticators/totp", map[string]any{
		"otp": otp,
	}, &doc)
	if err != nil {
		return nil, err
	}
	return doc.toModel(), nil
}

// CreateMFAChallenge は指定要素のチャレンジを作成する。
func (g *AppwriteGateway) CreateMFAChallenge(ctx context.Context, factor model.MFAFactor) (*model.MFAChallenge, error) {
	var out struct {
		ID     string    `json:"$id"`
		UserID string    `json:"userId"`
		Expire time.Time `json:"expire"`
	}
	err := g.client.Call(ctx, http.MethodPost, "/account/mfa/challenge", map[string]any{
		"factor": string(factor),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &model.MFAChallenge{ID: out.ID, UserID: out.UserID, ExpiresAt: out.Expire}, nil
}

// UpdateMFAChallenge はチャレンジにコードを提出してセッションを完成させる。
func (g *AppwriteGateway) UpdateMFAChallenge(ctx context.Context, challengeID, otp string) error {
	return g.client.Call(ctx, http.MethodPut, "/account/mfa/challenge", map[string]any{
		"challengeId": challengeID,
		"otp":         otp,
	}, nil)
}

// ListMFAFactors は利用可能な要素を取得する。
func (g *AppwriteGateway) ListMFAFactors(ctx context.Context) (*model.MFAFactors, error) {
	var out model.MFAFactors
	if err := g.client.Call(ctx, http.MethodGet, "/account/mfa/factors", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateMFA はアカウントのMFAを有効化・無効化する。
func (g *AppwriteGateway) UpdateMFA(ctx context.Context, enabled bool) (*model.User, error) {
	var doc userDoc
	if err := g.client.Call(ctx, http.MethodPatch, "/account/mfa", map[string]any{"mfa": enabled}, &doc); err != nil {
		return nil, err
	}
	return doc.toModel(), nil
}

// UpdatePrefs はユーザー設定を置き換える。
func (g *AppwriteGateway) UpdatePrefs(ctx context.Context, prefs map[string]any) (*model.User, error) {
	var doc userDoc
	if err := g.client.Call(ctx, http.MethodPatch, "/account/prefs", map[string]any{"prefs": prefs}, &doc); err != nil {
		return nil, err
	}
	return doc.toModel(), nil
}

// Session は保持しているセッションシークレットを返す。
func (g *AppwriteGateway) Session() string {
	return g.client.Session()
}

// RestoreSession はセッションシークレットを復元する。
func (g *AppwriteGateway) RestoreSession(secret string) {
	g.client.SetSession(secret)
}

// compile-time interface check
var _ Gateway = (*AppwriteGateway)(nil)
