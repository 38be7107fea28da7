package authstore

import (
	"context"

	"github.com/freecorps/pulse/internal/model"
)

// CreateMFARecoveryCodes はリカバリーコードを発行して状態に格納する。
func (s *Store) CreateMFARecoveryCodes(ctx context.Context) ([]string, error) {
	s.begin(ctx)

	codes, err := s.gateway.CreateMFARecoveryCodes(ctx)
	if err != nil {
		return nil, s.fail(ctx, "mfa_recovery_codes", err)
	}

	s.done(ctx, "mfa_recovery_codes", false, func(st *State) {
		st.RecoveryCodes = codes
	})
	return codes, nil
}

// CreateTOTP はTOTP認証器を登録し、QRコード用のURIを状態に格納する。
func (s *Store) CreateTOTP(ctx context.Context) (*model.MFAType, error) {
	s.begin(ctx)

	totp, err := s.gateway.CreateTOTP(ctx)
	if err != nil {
		return nil, s.fail(ctx, "mfa_totp", err)
	}

	s.done(ctx, "mfa_totp", false, func(st *State) {
		st.TOTP = totp
	})
	return totp, nil
}

// VerifyAuthenticator はTOTP認証器の登録を完了する。
func (s *Store) VerifyAuthenticator(ctx context.Context, otp string) error {
	s.begin(ctx)

	user, err := s.gateway.VerifyAuthenticator(ctx, otp)
	if err != nil {
		return s.fail(ctx, "mfa_verify_authenticator", err)
	}

	s.done(ctx, "mfa_verify_authenticator", true, func(st *State) {
		st.User = user
		st.TOTP = nil
	})
	return nil
}

// CreateMFAChallenge は選択した要素のチャレンジを作成し、verify段階へ進む。
func (s *Store) CreateMFAChallenge(ctx context.Context, factor model.MFAFactor) (*model.MFAChallenge, error) {
	if !factor.Valid() {
		return nil, s.fail(ctx, "mfa_challenge", model.NewValidationError("unknown factor: "+string(factor)))
	}

	s.begin(ctx)

	challenge, err := s.gateway.CreateMFAChallenge(ctx, factor)
	if err != nil {
		return nil, s.fail(ctx, "mfa_challenge", err)
	}

	s.done(ctx, "mfa_challenge", false, func(st *State) {
		st.SelectedFactor = factor
		st.Recovery = factor == model.MFAFactorRecoveryCode
		st.ChallengeID = challenge.ID
		st.MFAStep = model.MFAStepVerify
	})
	return challenge, nil
}

// VerifyChallenge はチャレンジにコードを提出する。
// challengeIDが空の場合はキャッシュ中のチャレンジを使う。
// 成功するとMFA状態をクリアしてユーザーを取得する。失敗した場合はverify段階に留まる。
func (s *Store) VerifyChallenge(ctx context.Context, challengeID, otp string) error {
	if challengeID == "" {
		challengeID = s.State().ChallengeID
	}
	if challengeID == "" {
		return s.fail(ctx, "mfa_verify_challenge", model.NewValidationError("challenge id is required"))
	}

	s.begin(ctx)

	if err := s.gateway.UpdateMFAChallenge(ctx, challengeID, otp); err != nil {
		return s.fail(ctx, "mfa_verify_challenge", err)
	}

	user, err := s.gateway.GetAccount(ctx)
	if err != nil {
		return s.fail(ctx, "mfa_verify_challenge", err)
	}

	s.done(ctx, "mfa_verify_challenge", true, func(st *State) {
		st.User = user
		st.clearMFA()
	})
	return nil
}

// ListMFAFactors は利用可能な要素を取得して状態に格納する。
func (s *Store) ListMFAFactors(ctx context.Context) (*model.MFAFactors, error) {
	s.begin(ctx)

	factors, err := s.gateway.ListMFAFactors(ctx)
	if err != nil {
		return nil, s.fail(ctx, "mfa_factors", err)
	}

	s.done(ctx, "mfa_factors", false, func(st *State) {
		st.Factors = factors
	})
	return factors, nil
}

// UpdateMFA はアカウントのMFAを有効化・無効化する。
func (s *Store) UpdateMFA(ctx context.Context, enabled bool) error {
	s.begin(ctx)

	user, err := s.gateway.UpdateMFA(ctx, enabled)
	if err != nil {
		return s.fail(ctx, "mfa_update", err)
	}

	s.done(ctx, "mfa_update", true, func(st *State) {
		st.User = user
	})
	return nil
}

// SetMFAStep はチャレンジ画面の段階を切り替える。
func (s *Store) SetMFAStep(ctx context.Context, step model.MFAStep) error {
	if !step.Valid() {
		return model.NewValidationError("unknown mfa step: " + string(step))
	}
	s.set(ctx, false, func(st *State) {
		st.MFAStep = step
	})
	return nil
}

// SetSelectedFactor は選択中の要素を切り替える。
func (s *Store) SetSelectedFactor(ctx context.Context, factor model.MFAFactor) error {
	if factor != "" && !factor.Valid() {
		return model.NewValidationError("unknown factor: " + string(factor))
	}
	s.set(ctx, false, func(st *State) {
		st.SelectedFactor = factor
	})
	return nil
}

// SetMFARecovery はリカバリーコード入力モードを切り替える。
func (s *Store) SetMFARecovery(ctx context.Context, recovery bool) {
	s.set(ctx, false, func(st *State) {
		st.Recovery = recovery
	})
}

// SetMFAChallengeRequired はMFAチャレンジ待ちフラグを設定する。
// trueにした場合はselect段階から始める。
func (s *Store) SetMFAChallengeRequired(ctx context.Context, required bool) {
	s.set(ctx, false, func(st *State) {
		if required {
			st.MFARequired = true
			st.MFAStep = model.MFAStepSelect
			return
		}
		st.clearMFA()
	})
}
