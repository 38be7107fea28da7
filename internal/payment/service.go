package payment

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v82"

	"github.com/freecorps/pulse/internal/model"
)

// Prices はプランごとのStripe価格ID。
type Prices struct {
	Monthly string
	Yearly  string
}

// For はプランに対応する価格IDを返す。monthly以外は年額として扱う。
func (p Prices) For(plan model.PlanType) string {
	if plan == model.PlanMonthly {
		return p.Monthly
	}
	return p.Yearly
}

// URLValidator はリダイレクト先URLを検証する。
type URLValidator interface {
	Validate(rawURL string) error
}

// CustomerFinder は有効な決済顧客を検索する。
type CustomerFinder interface {
	FindActiveByUserID(ctx context.Context, userID string) (*model.Customer, error)
}

// CheckoutRequest はCheckoutセッション作成の入力。
type CheckoutRequest struct {
	UserID     string
	UserEmail  string
	PlanType   model.PlanType
	SuccessURL string
	CancelURL  string
}

// CheckoutSession は作成されたCheckoutセッション。
type CheckoutSession struct {
	SessionID string
	URL       string
}

// Service はCheckoutとカスタマーポータルのセッションを発行する。
type Service struct {
	api       API
	customers CustomerFinder
	redirects URLValidator
	prices    Prices
}

// NewService はServiceを生成する。
func NewService(api API, customers CustomerFinder, redirects URLValidator, prices Prices) *Service {
	return &Service{
		api:       api,
		customers: customers,
		redirects: redirects,
		prices:    prices,
	}
}

// CreateCheckout はサブスクリプション用のCheckoutセッションを作成する。
// メタデータのuserIdはWebhookでのプレミアム付与に使われる。
func (s *Service) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	priceID := s.prices.For(req.PlanType)
	if priceID == "" {
		return nil, model.NewInvalidPriceError(string(req.PlanType))
	}
	for _, u := range []string{req.SuccessURL, req.CancelURL} {
		if err := s.redirects.Validate(u); err != nil {
			return nil, model.NewInvalidURLError(err.Error())
		}
	}

	metadata := map[string]string{
		"userId":     req.UserID,
		"planType":   string(req.PlanType),
		"userEmail":  req.UserEmail,
		"successUrl": req.SuccessURL,
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:    stripe.String(req.SuccessURL),
		CancelURL:     stripe.String(req.CancelURL),
		CustomerEmail: stripe.String(req.UserEmail),
		// サブスクリプション側にもuserIdを残し、解約・支払い失敗のイベントで参照する
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"userId": req.UserID},
		},
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	cs, err := s.api.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("checkout session for user %s: %w", req.UserID, err)
	}
	return &CheckoutSession{SessionID: cs.ID, URL: cs.URL}, nil
}

// CreatePortalSession は有効な顧客のカスタマーポータルURLを返す。
func (s *Service) CreatePortalSession(ctx context.Context, userID, returnURL string) (string, error) {
	if err := s.redirects.Validate(returnURL); err != nil {
		return "", model.NewInvalidURLError(err.Error())
	}

	customer, err := s.customers.FindActiveByUserID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("customer lookup for user %s: %w", userID, err)
	}
	if customer == nil {
		return "", model.NewCustomerNotFoundError()
	}

	ps, err := s.api.CreatePortalSession(ctx, &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customer.CustomerID),
		ReturnURL: stripe.String(returnURL),
	})
	if err != nil {
		return "", fmt.Errorf("portal session for user %s: %w", userID, err)
	}
	return ps.URL, nil
}
