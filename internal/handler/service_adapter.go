package handler

import (
	"context"

	"github.com/freecorps/pulse/internal/authstore"
	"github.com/freecorps/pulse/internal/bucket"
	"github.com/freecorps/pulse/internal/content"
	"github.com/freecorps/pulse/internal/forum"
	"github.com/freecorps/pulse/internal/middleware"
	"github.com/freecorps/pulse/internal/newsletter"
	"github.com/freecorps/pulse/internal/payment"
)

// AuthManagerAdapter は authstore.Manager を AuthStoreProvider に適合させるアダプタ。
type AuthManagerAdapter struct {
	manager *authstore.Manager
}

// NewAuthManagerAdapter はAuthManagerAdapterを生成する。
func NewAuthManagerAdapter(manager *authstore.Manager) *AuthManagerAdapter {
	return &AuthManagerAdapter{manager: manager}
}

// Get はブラウザセッションIDに対応するAuthStoreを返す。
func (a *AuthManagerAdapter) Get(ctx context.Context, sessionID string) (AuthStore, error) {
	store, err := a.manager.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewUserResolver はAuthStoreProviderからログイン中のユーザーIDを引くUserResolverを返す。
// 未ログインのセッションでは空文字を返す。
func NewUserResolver(stores AuthStoreProvider) middleware.UserResolver {
	return func(ctx context.Context, sessionID string) (string, error) {
		store, err := stores.Get(ctx, sessionID)
		if err != nil {
			return "", err
		}
		user := store.State().User
		if user == nil {
			return "", nil
		}
		return user.ID, nil
	}
}

// コンパイル時にインターフェースの実装を検証する。
var (
	_ AuthStoreProvider          = (*AuthManagerAdapter)(nil)
	_ AuthStore                  = (*authstore.Store)(nil)
	_ PaymentServiceInterface    = (*payment.Service)(nil)
	_ WebhookProcessor           = (*payment.Webhook)(nil)
	_ NewsletterServiceInterface = (*newsletter.Service)(nil)
	_ BucketServiceInterface     = (*bucket.Service)(nil)
	_ ContentServiceInterface    = (*content.Service)(nil)
	_ DraftEditor                = (*content.DraftManager)(nil)
	_ ForumServiceInterface      = (*forum.Service)(nil)
)
