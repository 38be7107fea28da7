package authstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/freecorps/pulse/internal/identity"
	"github.com/freecorps/pulse/internal/model"
)

// Recorder は認証アクションの結果を記録するインターフェース。
// metrics.Collectorが実装する。
type Recorder interface {
	RecordAuthAction(action, outcome string)
}

// Options はStoreの設定。
type Options struct {
	// VerificationURL は確認メール内のリンク先。
	VerificationURL string
	// RecoveryURL はパスワード再設定メール内のリンク先。
	RecoveryURL string

	Persister Persister
	Recorder  Recorder
	Logger    *slog.Logger
}

// Store はブラウザセッション1つ分の認証状態。
// 状態の読み書きはミューテックスで保護するが、アクション自体は直列化しない。
// 同時に実行されたアクションは後に書いた方が勝つ。
type Store struct {
	id      string
	gateway identity.Gateway
	opts    Options
	newID   func() string

	mu    sync.Mutex
	state State
}

// New はStoreを生成する。idはスナップショットの保存キーに使う。
func New(id string, gateway identity.Gateway, opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		id:      id,
		gateway: gateway,
		opts:    opts,
		newID:   func() string { return uuid.NewString() },
	}
}

// ID はストアの識別子を返す。
func (s *Store) ID() string {
	return s.id
}

// State は現在の状態のコピーを返す。
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// User はキャッシュ中のユーザーを返す。未ログインの場合はnil。
func (s *Store) User() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.User
}

// anonymous はユーザーもMFAの途中状態もセッションも持たない場合にtrueを返す。
// 失敗したログイン試行だけのStoreが該当する。
func (s *Store) anonymous() bool {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()
	return st.User == nil && !st.MFARequired && !st.Recovery && s.gateway.Session() == ""
}

// restore はスナップショットから状態を復元する。
func (s *Store) restore(snap *Snapshot) {
	s.gateway.RestoreSession(snap.Session)
	s.mu.Lock()
	s.state = snap.state()
	s.mu.Unlock()
}

// set は状態を更新し、スナップショットを保存する。
// touchesUserがtrueの場合は更新後にセッションを再検証する。
func (s *Store) set(ctx context.Context, touchesUser bool, fn func(*State)) {
	s.mu.Lock()
	fn(&s.state)
	snap := snapshotOf(s.state, s.gateway.Session())
	s.mu.Unlock()

	s.persist(ctx, snap)

	if touchesUser {
		s.verifySession(ctx)
	}
}

func (s *Store) persist(ctx context.Context, snap Snapshot) {
	if s.opts.Persister == nil {
		return
	}
	if err := s.opts.Persister.Save(ctx, s.id, snap); err != nil {
		s.opts.Logger.Error("failed to persist auth state",
			slog.String("error", err.Error()),
		)
	}
}

// begin はアクション開始時にloadingを立て、前回のエラーを消す。
func (s *Store) begin(ctx context.Context) {
	s.set(ctx, false, func(st *State) {
		st.Loading = true
		st.Error = ""
	})
}

// fail はIdPのエラーを状態に格納し、loadingを下ろす。
func (s *Store) fail(ctx context.Context, action string, err error) error {
	msg := identity.Message(err)
	s.set(ctx, false, func(st *State) {
		st.Error = msg
		st.Loading = false
	})
	s.record(action, "error")
	return fmt.Errorf("%s failed: %w", action, err)
}

// done はloadingを下ろして成功を記録する。
func (s *Store) done(ctx context.Context, action string, touchesUser bool, fn func(*State)) {
	s.set(ctx, touchesUser, func(st *State) {
		if fn != nil {
			fn(st)
		}
		st.Loading = false
	})
	s.record(action, "success")
}

func (s *Store) record(action, outcome string) {
	if s.opts.Recorder != nil {
		s.opts.Recorder.RecordAuthAction(action, outcome)
	}
}

// requireMFA は追加要素が必要になった状態へ遷移する。ユーザーは設定しない。
func (s *Store) requireMFA(ctx context.Context, action string) {
	s.set(ctx, false, func(st *State) {
		st.MFARequired = true
		st.MFAStep = model.MFAStepSelect
		st.SelectedFactor = ""
		st.Recovery = false
		st.ChallengeID = ""
		st.Loading = false
	})
	s.record(action, "mfa_required")
}

// Login はメールアドレスとパスワードでログインし、ユーザーをキャッシュする。
// IdPが追加要素を要求した場合はエラーにせずMFAチャレンジ待ちの状態にする。
func (s *Store) Login(ctx context.Context, email, password string) error {
	s.begin(ctx)

	if _, err := s.gateway.CreateEmailPasswordSession(ctx, email, password); err != nil {
		if identity.IsMoreFactorsRequired(err) {
			s.requireMFA(ctx, "login")
			return nil
		}
		return s.fail(ctx, "login", err)
	}

	return s.loadAccount(ctx, "login")
}

// loadAccount はセッション確立後にユーザーを取得してキャッシュする。
func (s *Store) loadAccount(ctx context.Context, action string) error {
	user, err := s.gateway.GetAccount(ctx)
	if err != nil {
		if identity.IsMoreFactorsRequired(err) {
			s.requireMFA(ctx, action)
			return nil
		}
		return s.fail(ctx, action, err)
	}

	s.done(ctx, action, true, func(st *State) {
		st.User = user
		st.clearMFA()
	})
	return nil
}

// Register はアカウントを作成し、確認メールを要求してからログインする。
// いずれかの手順が失敗した場合はログインしない。
func (s *Store) Register(ctx context.Context, email, password, name string) error {
	s.begin(ctx)

	if _, err := s.gateway.CreateAccount(ctx, s.newID(), email, password, name); err != nil {
		return s.fail(ctx, "register", err)
	}
	if err := s.gateway.CreateVerification(ctx, s.opts.VerificationURL); err != nil {
		return s.fail(ctx, "register", err)
	}

	s.record("register", "success")
	return s.Login(ctx, email, password)
}

// LoginWithOAuth はIdPがホストするOAuth画面へのリダイレクトURLを返す。
// ログインの完了はCreateSessionで行う。
func (s *Store) LoginWithOAuth(ctx context.Context, provider, successURL, failureURL string, scopes []string) (string, error) {
	if provider == "" {
		return "", s.fail(ctx, "oauth", model.NewValidationError("provider is required"))
	}
	redirect := s.gateway.OAuth2TokenURL(provider, successURL, failureURL, scopes)
	s.done(ctx, "oauth", false, nil)
	return redirect, nil
}

// CreateSession はOAuthリダイレクトで受け取ったuserIdとsecretでセッションを作成する。
func (s *Store) CreateSession(ctx context.Context, userID, secret string) error {
	s.begin(ctx)

	if _, err := s.gateway.CreateSession(ctx, userID, secret); err != nil {
		if identity.IsMoreFactorsRequired(err) {
			s.requireMFA(ctx, "oauth_session")
			return nil
		}
		return s.fail(ctx, "oauth_session", err)
	}

	return s.loadAccount(ctx, "oauth_session")
}

// Logout は現在のセッションを削除し、ユーザーとMFA状態をクリアする。
func (s *Store) Logout(ctx context.Context) error {
	s.begin(ctx)

	if err := s.gateway.DeleteSession(ctx, "current"); err != nil {
		return s.fail(ctx, "logout", err)
	}

	s.done(ctx, "logout", true, func(st *State) {
		st.User = nil
		st.clearMFA()
		st.Factors = nil
		st.RecoveryCodes = nil
		st.TOTP = nil
	})
	return nil
}

// ResetPassword はパスワード再設定メールの送信を要求する。
func (s *Store) ResetPassword(ctx context.Context, email string) error {
	s.begin(ctx)

	if err := s.gateway.CreateRecovery(ctx, email, s.opts.RecoveryURL); err != nil {
		return s.fail(ctx, "reset_password", err)
	}

	s.done(ctx, "reset_password", false, nil)
	return nil
}

// UpdateUserPassword はメールのシークレットを使ってパスワードを再設定する。
func (s *Store) UpdateUserPassword(ctx context.Context, userID, secret, password string) error {
	s.begin(ctx)

	if err := s.gateway.UpdateRecovery(ctx, userID, secret, password); err != nil {
		return s.fail(ctx, "update_password", err)
	}

	s.done(ctx, "update_password", false, nil)
	return nil
}

// RemoveUser はキャッシュ中のユーザーを破棄する。IdPのセッションは変更しない。
func (s *Store) RemoveUser(ctx context.Context) {
	s.set(ctx, true, func(st *State) {
		st.User = nil
	})
}

// UpdateProfilePicture はユーザー設定のプロフィール画像URLを更新する。
func (s *Store) UpdateProfilePicture(ctx context.Context, pictureURL string) error {
	current := s.User()
	if current == nil {
		return s.fail(ctx, "update_picture", model.NewUnauthorizedError())
	}

	s.begin(ctx)

	prefs := make(map[string]any, len(current.Prefs)+1)
	for k, v := range current.Prefs {
		prefs[k] = v
	}
	prefs[model.PrefProfilePicture] = pictureURL

	user, err := s.gateway.UpdatePrefs(ctx, prefs)
	if err != nil {
		return s.fail(ctx, "update_picture", err)
	}

	s.done(ctx, "update_picture", true, func(st *State) {
		st.User = user
	})
	return nil
}
