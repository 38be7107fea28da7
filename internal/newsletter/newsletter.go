// Package newsletter はニュースレター購読者の登録を提供する。
package newsletter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/resend/resend-go/v2"

	"github.com/freecorps/pulse/internal/model"
)

// DefaultAudienceID は購読者を登録するオーディエンスの既定値。
const DefaultAudienceID = "aa185055-7560-419c-bcfc-a8b59b08aecd"

// ContactCreator はメール配信サービスの連絡先登録APIのインターフェース。
type ContactCreator interface {
	CreateContact(ctx context.Context, audienceID, email string) (string, error)
}

// ResendContacts はResendの連絡先APIを使うContactCreatorの実装。
type ResendContacts struct {
	client *resend.Client
}

// NewResendContacts はAPIキーからResendContactsを生成する。
func NewResendContacts(apiKey string) *ResendContacts {
	return &ResendContacts{client: resend.NewClient(apiKey)}
}

// CreateContact は購読状態の連絡先を登録し、連絡先IDを返す。
func (r *ResendContacts) CreateContact(ctx context.Context, audienceID, email string) (string, error) {
	resp, err := r.client.Contacts.CreateWithContext(ctx, &resend.CreateContactRequest{
		Email:        email,
		AudienceId:   audienceID,
		Unsubscribed: false,
	})
	if err != nil {
		return "", fmt.Errorf("resend contact create: %w", err)
	}
	return resp.Id, nil
}

var _ ContactCreator = (*ResendContacts)(nil)

// Service はニュースレターの購読を扱う。
type Service struct {
	contacts   ContactCreator
	audienceID string
	logger     *slog.Logger
}

// NewService はServiceを生成する。audienceIDが空の場合は既定値を使う。
func NewService(contacts ContactCreator, audienceID string, logger *slog.Logger) *Service {
	if audienceID == "" {
		audienceID = DefaultAudienceID
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{contacts: contacts, audienceID: audienceID, logger: logger}
}

// Subscribe はメールアドレスを購読者として登録する。
func (s *Service) Subscribe(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return model.NewValidationError("メールアドレスを入力してください")
	}

	id, err := s.contacts.CreateContact(ctx, s.audienceID, email)
	if err != nil {
		return fmt.Errorf("newsletter subscribe: %w", err)
	}
	s.logger.Info("newsletter contact created",
		slog.String("contact_id", id),
	)
	return nil
}
