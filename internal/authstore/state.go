// Package authstore はブラウザセッションごとの認証状態ストアを提供する。
// ログイン中のユーザーと進行中のMFAチャレンジを保持し、
// IdPを呼び出すアクションで状態を更新する。
package authstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/freecorps/pulse/internal/model"
)

// State は認証状態。フロントエンドにはこの値をそのまま返す。
type State struct {
	User    *model.User `json:"user"`
	Loading bool        `json:"loading"`
	Error   string      `json:"error,omitempty"`

	MFARequired    bool            `json:"isMFAChallengeRequired"`
	MFAStep        model.MFAStep   `json:"mfaStep,omitempty"`
	SelectedFactor model.MFAFactor `json:"selectedFactor,omitempty"`
	Recovery       bool            `json:"recovery"`
	ChallengeID    string          `json:"challengeId,omitempty"`

	// 直近のMFA管理操作の結果
	Factors       *model.MFAFactors `json:"factors,omitempty"`
	RecoveryCodes []string          `json:"recoveryCodes,omitempty"`
	TOTP          *model.MFAType    `json:"totp,omitempty"`
}

// clearMFA はMFAチャレンジの進行状態を初期化する。
func (s *State) clearMFA() {
	s.MFARequired = false
	s.MFAStep = ""
	s.SelectedFactor = ""
	s.Recovery = false
	s.ChallengeID = ""
}

// SnapshotVersion は永続化スナップショットのスキーマバージョン。
const SnapshotVersion = 1

// Snapshot はリロード後も維持する状態の部分集合。
type Snapshot struct {
	Version        int             `json:"v"`
	User           *model.User     `json:"user,omitempty"`
	MFARequired    bool            `json:"mfaRequired,omitempty"`
	MFAStep        model.MFAStep   `json:"mfaStep,omitempty"`
	SelectedFactor model.MFAFactor `json:"selectedFactor,omitempty"`
	Recovery       bool            `json:"recovery,omitempty"`
	ChallengeID    string          `json:"challengeId,omitempty"`
	Session        string          `json:"session,omitempty"`
	SavedAt        time.Time       `json:"savedAt"`
}

// snapshotOf は状態とセッションシークレットからスナップショットを作る。
func snapshotOf(st State, session string) Snapshot {
	return Snapshot{
		Version:        SnapshotVersion,
		User:           st.User,
		MFARequired:    st.MFARequired,
		MFAStep:        st.MFAStep,
		SelectedFactor: st.SelectedFactor,
		Recovery:       st.Recovery,
		ChallengeID:    st.ChallengeID,
		Session:        session,
		SavedAt:        time.Now().UTC(),
	}
}

// state はスナップショットから復元した状態を返す。
func (s Snapshot) state() State {
	return State{
		User:           s.User,
		MFARequired:    s.MFARequired,
		MFAStep:        s.MFAStep,
		SelectedFactor: s.SelectedFactor,
		Recovery:       s.Recovery,
		ChallengeID:    s.ChallengeID,
	}
}

// Validate はスナップショットが現在のスキーマとして妥当かを検証する。
func (s Snapshot) Validate() error {
	if s.Version != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version: %d", s.Version)
	}
	if !s.MFAStep.Valid() {
		return fmt.Errorf("invalid mfa step: %q", s.MFAStep)
	}
	if s.SelectedFactor != "" && !s.SelectedFactor.Valid() {
		return fmt.Errorf("invalid mfa factor: %q", s.SelectedFactor)
	}
	if s.MFAStep == model.MFAStepVerify && s.ChallengeID == "" {
		return fmt.Errorf("verify step without challenge id")
	}
	if s.User != nil && s.User.ID == "" {
		return fmt.Errorf("cached user without id")
	}
	return nil
}

// EncodeSnapshot はスナップショットをJSONに変換する。
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return b, nil
}

// DecodeSnapshot はJSONからスナップショットを復元し、検証する。
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
