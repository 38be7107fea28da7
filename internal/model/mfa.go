package model

import "time"

// MFAFactor は多要素認証の要素種別。
type MFAFactor string

const (
	MFAFactorTOTP         MFAFactor = "totp"
	MFAFactorEmail        MFAFactor = "email"
	MFAFactorPhone        MFAFactor = "phone"
	MFAFactorRecoveryCode MFAFactor = "recoverycode"
)

// Valid は既知の要素種別かを判定する。
func (f MFAFactor) Valid() bool {
	switch f {
	case MFAFactorTOTP, MFAFactorEmail, MFAFactorPhone, MFAFactorRecoveryCode:
		return true
	default:
		return false
	}
}

// MFAStep はMFAチャレンジ画面の段階。select → verify の順に進む。
type MFAStep string

const (
	MFAStepSelect MFAStep = "select"
	MFAStepVerify MFAStep = "verify"
)

// Valid は既知の段階かを判定する。空文字はMFA未進行を表し有効とする。
func (s MFAStep) Valid() bool {
	return s == "" || s == MFAStepSelect || s == MFAStepVerify
}

// MFAChallenge はIdPが発行する一度きりのチャレンジ。
type MFAChallenge struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expire"`
}

// MFAFactors はアカウントで利用可能な要素の一覧。
type MFAFactors struct {
	TOTP         bool `json:"totp"`
	Email        bool `json:"email"`
	Phone        bool `json:"phone"`
	RecoveryCode bool `json:"recoveryCode"`
}

// MFAType はTOTP認証器の登録情報。
type MFAType struct {
	Secret string `json:"secret"`
	URI    string `json:"uri"`
}
