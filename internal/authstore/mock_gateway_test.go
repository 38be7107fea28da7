package authstore

import (
	"context"
	"net/http"

	"github.com/freecorps/pulse/internal/appwrite"
	"github.com/freecorps/pulse/internal/model"
)

// --- モック定義 ---

// mockGateway はidentity.Gatewayのモック実装。
type mockGateway struct {
	createEmailPasswordSessionFn func(ctx context.Context, email, password string) (*model.Session, error)
	createSessionFn              func(ctx context.Context, userID, secret string) (*model.Session, error)
	getAccountFn                 func(ctx context.Context) (*model.User, error)
	createAccountFn              func(ctx context.Context, userID, email, password, name string) (*model.User, error)
	createVerificationFn         func(ctx context.Context, url string) error
	deleteSessionFn              func(ctx context.Context, id string) error
	createRecoveryFn             func(ctx context.Context, email, url string) error
	updateRecoveryFn             func(ctx context.Context, userID, secret, password string) error
	createMFARecoveryCodesFn     func(ctx context.Context) ([]string, error)
	createTOTPFn                 func(ctx context.Context) (*model.MFAType, error)
	verifyAuthenticatorFn        func(ctx context.Context, otp string) (*model.User, error)
	createMFAChallengeFn         func(ctx context.Context, factor model.MFAFactor) (*model.MFAChallenge, error)
	updateMFAChallengeFn         func(ctx context.Context, challengeID, otp string) error
	listMFAFactorsFn             func(ctx context.Context) (*model.MFAFactors, error)
	updateMFAFn                  func(ctx context.Context, enabled bool) (*model.User, error)
	updatePrefsFn                func(ctx context.Context, prefs map[string]any) (*model.User, error)

	session string
}

func (m *mockGateway) CreateEmailPasswordSession(ctx context.Context, email, password string) (*model.Session, error) {
	if m.createEmailPasswordSessionFn != nil {
		return m.createEmailPasswordSessionFn(ctx, email, password)
	}
	m.session = "secret"
	return &model.Session{ID: "s-1", Secret: "secret"}, nil
}

func (m *mockGateway) CreateSession(ctx context.Context, userID, secret string) (*model.Session, error) {
	if m.createSessionFn != nil {
		return m.createSessionFn(ctx, userID, secret)
	}
	m.session = "secret"
	return &model.Session{ID: "s-1", UserID: userID, Secret: "secret"}, nil
}

func (m *mockGateway) OAuth2TokenURL(provider, successURL, failureURL string, scopes []string) string {
	return "https://idp.example/oauth2/" + provider + "?success=" + successURL
}

func (m *mockGateway) GetAccount(ctx context.Context) (*model.User, error) {
	if m.getAccountFn != nil {
		return m.getAccountFn(ctx)
	}
	return &model.User{ID: "user-1", Email: "a@b.com"}, nil
}

func (m *mockGateway) CreateAccount(ctx context.Context, userID, email, password, name string) (*model.User, error) {
	if m.createAccountFn != nil {
		return m.createAccountFn(ctx, userID, email, password, name)
	}
	return &model.User{ID: userID, Email: email, Name: name}, nil
}

func (m *mockGateway) CreateVerification(ctx context.Context, url string) error {
	if m.createVerificationFn != nil {
		return m.createVerificationFn(ctx, url)
	}
	return nil
}

func (m *mockGateway) DeleteSession(ctx context.Context, id string) error {
	if m.deleteSessionFn != nil {
		return m.deleteSessionFn(ctx, id)
	}
	m.session = ""
	return nil
}

func (m *mockGateway) CreateRecovery(ctx context.Context, email, url string) error {
	if m.createRecoveryFn != nil {
		return m.createRecoveryFn(ctx, email, url)
	}
	return nil
}

func (m *mockGateway) UpdateRecovery(ctx context.Context, userID, secret, password string) error {
	if m.updateRecoveryFn != nil {
		return m.updateRecoveryFn(ctx, userID, secret, password)
	}
	return nil
}

func (m *mockGateway) CreateMFARecoveryCodes(ctx context.Context) ([]string, error) {
	if m.createMFARecoveryCodesFn != nil {
		return m.createMFARecoveryCodesFn(ctx)
	}
	return []string{"code-1", "code-2"}, nil
}

func (m *mockGateway) CreateTOTP(ctx context.Context) (*model.MFAType, error) {
	if m.createTOTPFn != nil {
		return m.createTOTPFn(ctx)
	}
	return &model.MFAType{Secret: "JBSWY3DP", URI: "otpauth://totp/pulse"}, nil
}

func (m *mockGateway) VerifyAuthenticator(ctx context.Context, otp string) (*model.User, error) {
	if m.verifyAuthenticatorFn != nil {
		return m.verifyAuthenticatorFn(ctx, otp)
	}
	return &model.User{ID: "user-1", MFA: true}, nil
}

func (m *mockGateway) CreateMFAChallenge(ctx context.Context, factor model.MFAFactor) (*model.MFAChallenge, error) {
	if m.createMFAChallengeFn != nil {
		return m.createMFAChallengeFn(ctx, factor)
	}
	return &model.MFAChallenge{ID: "challenge-1", UserID: "user-1"}, nil
}

func (m *mockGateway) UpdateMFAChallenge(ctx context.Context, challengeID, otp string) error {
	if m.updateMFAChallengeFn != nil {
		return m.updateMFAChallengeFn(ctx, challengeID, otp)
	}
	return nil
}

func (m *mockGateway) ListMFAFactors(ctx context.Context) (*model.MFAFactors, error) {
	if m.listMFAFactorsFn != nil {
		return m.listMFAFactorsFn(ctx)
	}
	return &model.MFAFactors{TOTP: true, Email: true}, nil
}

func (m *mockGateway) UpdateMFA(ctx context.Context, enabled bool) (*model.User, error) {
	if m.updateMFAFn != nil {
		return m.updateMFAFn(ctx, enabled)
	}
	return &model.User{ID: "user-1", MFA: enabled}, nil
}

func (m *mockGateway) UpdatePrefs(ctx context.Context, prefs map[string]any) (*model.User, error) {
	if m.updatePrefsFn != nil {
		return m.updatePrefsFn(ctx, prefs)
	}
	return &model.User{ID: "user-1", Prefs: prefs}, nil
}

func (m *mockGateway) Session() string { return m.session }

func (m *mockGateway) RestoreSession(secret string) { m.session = secret }

// mockRecorder はRecorderのモック実装。
type mockRecorder struct {
	calls []string
}

func (r *mockRecorder) RecordAuthAction(action, outcome string) {
	r.calls = append(r.calls, action+":"+outcome)
}

func errMoreFactors() error {
	return &appwrite.Error{
		Code:    http.StatusUnauthorized,
		Type:    appwrite.TypeMoreFactorsRequired,
		Message: "More factors are required to complete the sign in process.",
	}
}

func errUnauthorized() error {
	return &appwrite.Error{
		Code:    http.StatusUnauthorized,
		Type:    appwrite.TypeGeneralUnauthorized,
		Message: "User (role: guests) missing scope (account)",
	}
}

func errInvalidCredentials() error {
	return &appwrite.Error{
		Code:    http.StatusUnauthorized,
		Type:    "user_invalid_credentials",
		Message: "Invalid credentials. Please check the email and password.",
	}
}
