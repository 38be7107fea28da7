// Package payment はStripeによるプレミアムプランの決済を提供する。
package payment

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	"github.com/stripe/stripe-go/v82/checkout/session"
)

// API はStripeの呼び出しを抽象化したインターフェース。
type API interface {
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	CreatePortalSession(ctx context.Context, params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
}

// StripeClient はシークレットキーでStripe APIを呼び出す。
type StripeClient struct {
	checkout session.Client
	portal   portalsession.Client
}

// NewStripeClient はStripeClientを生成する。
func NewStripeClient(secretKey string) *StripeClient {
	backend := stripe.GetBackend(stripe.APIBackend)
	return &StripeClient{
		checkout: session.Client{B: backend, Key: secretKey},
		portal:   portalsession.Client{B: backend, Key: secretKey},
	}
}

// CreateCheckoutSession はCheckoutセッションを作成する。
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	params.Context = ctx
	s, err := c.checkout.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return s, nil
}

// CreatePortalSession はカスタマーポータルのセッションを作成する。
func (c *StripeClient) CreatePortalSession(ctx context.Context, params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
	params.Context = ctx
	s, err := c.portal.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create portal session: %w", err)
	}
	return s, nil
}

var _ API = (*StripeClient)(nil)
