package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v82"

	"github.com/freecorps/pulse/internal/model"
	"github.com/freecorps/pulse/internal/security"
)

var testPrices = Prices{Monthly: "price_monthly", Yearly: "price_yearly"}

func TestPrices_For(t *testing.T) {
	if got := testPrices.For(model.PlanMonthly); got != "price_monthly" {
		t.Errorf("monthly = %q", got)
	}
	if got := testPrices.For(model.PlanYearly); got != "price_yearly" {
		t.Errorf("yearly = %q", got)
	}
	// monthly以外は年額
	if got := testPrices.For("weekly"); got != "price_yearly" {
		t.Errorf("unknown plan = %q", got)
	}
}

func TestService_CreateCheckout_Success(t *testing.T) {
	var captured *stripe.CheckoutSessionParams
	api := &mockAPI{
		checkoutFn: func(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			captured = params
			return &stripe.CheckoutSession{ID: "cs_123", URL: "https://checkout.stripe.com/c/cs_123"}, nil
		},
	}
	svc := NewService(api, &mockCustomers{}, allowAll{}, testPrices)

	cs, err := svc.CreateCheckout(context.Background(), CheckoutRequest{
		UserID:     "u1",
		UserEmail:  "a@b.com",
		PlanType:   model.PlanMonthly,
		SuccessURL: "https://pulse.freecorps.xyz/premium?success=true",
		CancelURL:  "https://pulse.freecorps.xyz/premium",
	})
	if err != nil {
		t.Fatalf("CreateCheckout: %v", err)
	}
	if cs.SessionID != "cs_123" {
		t.Errorf("SessionID = %q", cs.SessionID)
	}

	if *captured.Mode != string(stripe.CheckoutSessionModeSubscription) {
		t.Errorf("mode = %q", *captured.Mode)
	}
	if len(captured.LineItems) != 1 || *captured.LineItems[0].Price != "price_monthly" || *captured.LineItems[0].Quantity != 1 {
		t.Errorf("line items = %+v", captured.LineItems)
	}
	if *captured.CustomerEmail != "a@b.com" {
		t.Errorf("customer email = %q", *captured.CustomerEmail)
	}
	want := map[string]string{
		"userId":     "u1",
		"planType":   "monthly",
		"userEmail":  "a@b.com",
		"successUrl": "https://pulse.freecorps.xyz/premium?success=true",
	}
	for k, v := range want {
		if captured.Metadata[k] != v {
			t.Errorf("metadata[%q] = %q, want %q", k, captured.Metadata[k], v)
		}
	}
	if captured.SubscriptionData.Metadata["userId"] != "u1" {
		t.Errorf("subscription metadata = %v", captured.SubscriptionData.Metadata)
	}
}

func TestService_CreateCheckout_MissingPrice(t *testing.T) {
	api := &mockAPI{
		checkoutFn: func(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			t.Error("Stripe should not be called without a price")
			return nil, nil
		},
	}
	svc := NewService(api, &mockCustomers{}, allowAll{}, Prices{Monthly: "price_monthly"})

	_, err := svc.CreateCheckout(context.Background(), CheckoutRequest{UserID: "u1", PlanType: model.PlanYearly})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidPrice {
		t.Errorf("err = %v, want INVALID_PRICE", err)
	}
}

func TestService_CreateCheckout_RejectsForeignRedirect(t *testing.T) {
	redirects := security.NewRedirectValidator(security.NewSSRFGuard(), []string{"https://pulse.freecorps.xyz"})
	svc := NewService(&mockAPI{}, &mockCustomers{}, redirects, testPrices)

	_, err := svc.CreateCheckout(context.Background(), CheckoutRequest{
		UserID:     "u1",
		UserEmail:  "a@b.com",
		PlanType:   model.PlanMonthly,
		SuccessURL: "https://phish.example.com/ok",
		CancelURL:  "https://pulse.freecorps.xyz/premium",
	})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidURL {
		t.Errorf("err = %v, want INVALID_URL", err)
	}
}

func TestService_CreateCheckout_StripeError(t *testing.T) {
	api := &mockAPI{
		checkoutFn: func(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			return nil, errors.New("card_declined")
		},
	}
	svc := NewService(api, &mockCustomers{}, allowAll{}, testPrices)

	_, err := svc.CreateCheckout(context.Background(), CheckoutRequest{UserID: "u1", PlanType: model.PlanMonthly})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("Stripe failure should not be an APIError: %v", err)
	}
}

func TestService_CreatePortalSession_Success(t *testing.T) {
	customers := &mockCustomers{
		findFn: func(ctx context.Context, userID string) (*model.Customer, error) {
			return &model.Customer{UserID: userID, CustomerID: "cus_42", Status: model.CustomerStatusActive}, nil
		},
	}
	api := &mockAPI{
		portalFn: func(ctx context.Context, params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
			if *params.Customer != "cus_42" {
				t.Errorf("customer = %q", *params.Customer)
			}
			if *params.ReturnURL != "https://pulse.freecorps.xyz/profile" {
				t.Errorf("return url = %q", *params.ReturnURL)
			}
			return &stripe.BillingPortalSession{URL: "https://billing.stripe.com/p/abc"}, nil
		},
	}
	svc := NewService(api, customers, allowAll{}, testPrices)

	url, err := svc.CreatePortalSession(context.Background(), "u1", "https://pulse.freecorps.xyz/profile")
	if err != nil {
		t.Fatalf("CreatePortalSession: %v", err)
	}
	if url != "https://billing.stripe.com/p/abc" {
		t.Errorf("url = %q", url)
	}
}

func TestService_CreatePortalSession_NoCustomer(t *testing.T) {
	api := &mockAPI{
		portalFn: func(ctx context.Context, params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
			t.Error("Stripe should not be called without a customer")
			return nil, nil
		},
	}
	svc := NewService(api, &mockCustomers{}, allowAll{}, testPrices)

	_, err := svc.CreatePortalSession(context.Background(), "u1", "https://pulse.freecorps.xyz/profile")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeCustomerNotFound {
		t.Errorf("err = %v, want CUSTOMER_NOT_FOUND", err)
	}
}
