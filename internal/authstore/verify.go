package authstore

import (
	"context"
	"log/slog"

	"github.com/freecorps/pulse/internal/identity"
)

// verifySession はユーザーを含む状態更新の後にIdPのセッションを確認する。
// セッションが無効（401）の場合はキャッシュ中のユーザーをnilに置き換える。
// それ以外のエラーではキャッシュを維持する。
// この更新自体は再検証を起こさない。
func (s *Store) verifySession(ctx context.Context) {
	_, err := s.gateway.GetAccount(ctx)
	if err == nil {
		return
	}

	if !identity.IsUnauthorized(err) {
		s.opts.Logger.Warn("session verification failed",
			slog.String("store_id", s.id),
			slog.String("error", err.Error()),
		)
		return
	}

	invalidated := false
	s.set(ctx, false, func(st *State) {
		invalidated = st.User != nil
		st.User = nil
	})
	if invalidated {
		s.record("verify_session", "invalidated")
	}
}
