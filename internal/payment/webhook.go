package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/freecorps/pulse/internal/model"
	"github.com/freecorps/pulse/internal/repository"
)

// 処理対象のイベント種別
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventPaymentFailed       = "invoice.payment_failed"
)

// Webhook処理結果（メトリクスのラベル）
const (
	OutcomeProcessed        = "processed"
	OutcomeDuplicate        = "duplicate"
	OutcomeIgnored          = "ignored"
	OutcomeInvalidSignature = "invalid_signature"
	OutcomeFailed           = "failed"
)

// ErrMissingUserID はCheckout完了イベントのメタデータにuserIdがない場合のエラー。
var ErrMissingUserID = errors.New("user ID not found in session metadata")

// PremiumGranter はプレミアム会員の付与と剥奪を行う。
type PremiumGranter interface {
	Grant(ctx context.Context, userID, email, redirectURL string) (*model.Membership, error)
	Revoke(ctx context.Context, userID string) (bool, error)
}

// CustomerCreator は顧客の作成とイベントの記録を行う。
type CustomerCreator interface {
	CreateWithEvent(ctx context.Context, customer *model.Customer, eventID, eventType string) error
}

// WebhookRecorder はWebhookの処理結果を記録する。
type WebhookRecorder interface {
	RecordWebhookEvent(eventType, outcome string)
}

// Webhook はStripeからのWebhookを検証して処理する。
type Webhook struct {
	secret    string
	premium   PremiumGranter
	customers CustomerCreator
	events    repository.WebhookEventRepository
	recorder  WebhookRecorder
	logger    *slog.Logger
	newID     func() string
	now       func() time.Time
}

// NewWebhook はWebhookを生成する。eventsがnilの場合は重複配信を検知しない。
func NewWebhook(secret string, premium PremiumGranter, customers CustomerCreator, events repository.WebhookEventRepository, recorder WebhookRecorder, logger *slog.Logger) *Webhook {
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		secret:    secret,
		premium:   premium,
		customers: customers,
		events:    events,
		recorder:  recorder,
		logger:    logger,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// Handle は署名を検証し、イベント種別に応じた処理を行う。
// 署名が不正な場合はInvalidSignatureErrorを返し、何も変更しない。
func (w *Webhook) Handle(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEventWithOptions(payload, signature, w.secret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		w.logger.Warn("webhook signature verification failed",
			slog.String("error", err.Error()),
		)
		w.record("unknown", OutcomeInvalidSignature)
		return model.NewInvalidSignatureError()
	}

	eventType := string(event.Type)

	if w.events != nil && event.ID != "" {
		seen, err := w.events.Exists(ctx, event.ID)
		if err != nil {
			w.record(eventType, OutcomeFailed)
			return fmt.Errorf("webhook event lookup: %w", err)
		}
		if seen {
			w.logger.Info("webhook event already processed",
				slog.String("event_id", event.ID),
				slog.String("type", eventType),
			)
			w.record(eventType, OutcomeDuplicate)
			return nil
		}
	}

	switch eventType {
	case EventCheckoutCompleted:
		err = w.handleCheckoutCompleted(ctx, event)
	case EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err = json.Unmarshal(event.Data.Raw, &sub); err == nil {
			w.revoke(ctx, event, sub.Metadata["userId"])
		}
	case EventPaymentFailed:
		var inv stripe.Invoice
		if err = json.Unmarshal(event.Data.Raw, &inv); err == nil {
			w.revoke(ctx, event, inv.Metadata["userId"])
		}
	default:
		w.record(eventType, OutcomeIgnored)
		return nil
	}

	if err != nil {
		w.logger.Error("webhook processing failed",
			slog.String("event_id", event.ID),
			slog.String("type", eventType),
			slog.String("error", err.Error()),
		)
		w.record(eventType, OutcomeFailed)
		return err
	}
	w.record(eventType, OutcomeProcessed)
	return nil
}

// handleCheckoutCompleted はプレミアムを付与し、顧客を記録する。
// userIdがない場合は外部呼び出しの前に中断する。
func (w *Webhook) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return fmt.Errorf("failed to decode checkout session: %w", err)
	}

	userID := cs.Metadata["userId"]
	if userID == "" {
		return ErrMissingUserID
	}
	email := cs.Metadata["userEmail"]

	if _, err := w.premium.Grant(ctx, userID, email, cs.Metadata["successUrl"]); err != nil {
		return err
	}

	customerID := ""
	if cs.Customer != nil {
		customerID = cs.Customer.ID
	}
	customer := &model.Customer{
		ID:          w.newID(),
		UserID:      userID,
		CustomerID:  customerID,
		Email:       email,
		PlanType:    model.PlanType(cs.Metadata["planType"]),
		Status:      model.CustomerStatusActive,
		Permissions: []string{model.PermissionRead(model.RoleUser(userID))},
		CreatedAt:   w.now(),
	}
	if err := w.customers.CreateWithEvent(ctx, customer, event.ID, string(event.Type)); err != nil {
		return err
	}
	return nil
}

// revoke はプレミアムを剥奪する。失敗はログに残すだけで呼び出し元には返さない。
func (w *Webhook) revoke(ctx context.Context, event stripe.Event, userID string) {
	if userID == "" {
		w.logger.Info("webhook event has no user id",
			slog.String("event_id", event.ID),
			slog.String("type", string(event.Type)),
		)
		return
	}

	revoked, err := w.premium.Revoke(ctx, userID)
	if err != nil {
		w.logger.Error("failed to revoke premium membership",
			slog.String("event_id", event.ID),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return
	}
	w.logger.Info("premium membership revoked",
		slog.String("user_id", userID),
		slog.Bool("removed", revoked),
	)

	if w.events != nil && event.ID != "" {
		if err := w.events.Record(ctx, event.ID, string(event.Type)); err != nil {
			w.logger.Warn("failed to record webhook event",
				slog.String("event_id", event.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (w *Webhook) record(eventType, outcome string) {
	if w.recorder != nil {
		w.recorder.RecordWebhookEvent(eventType, outcome)
	}
}
