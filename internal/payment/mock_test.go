package payment

import (
	"context"

	"github.com/stripe/stripe-go/v82"

	"github.com/freecorps/pulse/internal/model"
)

// mockAPI はAPIのモック実装。
type mockAPI struct {
	checkoutFn func(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	portalFn   func(ctx context.Context, params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
}

func (m *mockAPI) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if m.checkoutFn != nil {
		return m.checkoutFn(ctx, params)
	}
	return &stripe.CheckoutSession{ID: "cs_test_1"}, nil
}

func (m *mockAPI) CreatePortalSession(ctx context.Context, params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
	if m.portalFn != nil {
		return m.portalFn(ctx, params)
	}
	return &stripe.BillingPortalSession{URL: "https://billing.stripe.com/p/session_1"}, nil
}

// mockCustomers はCustomerFinderとCustomerCreatorのモック実装。
type mockCustomers struct {
	findFn   func(ctx context.Context, userID string) (*model.Customer, error)
	createFn func(ctx context.Context, customer *model.Customer, eventID, eventType string) error
	created  []*model.Customer
}

func (m *mockCustomers) FindActiveByUserID(ctx context.Context, userID string) (*model.Customer, error) {
	if m.findFn != nil {
		return m.findFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockCustomers) CreateWithEvent(ctx context.Context, customer *model.Customer, eventID, eventType string) error {
	m.created = append(m.created, customer)
	if m.createFn != nil {
		return m.createFn(ctx, customer, eventID, eventType)
	}
	return nil
}

// mockPremium はPremiumGranterのモック実装。
type mockPremium struct {
	grantFn  func(ctx context.Context, userID, email, redirectURL string) (*model.Membership, error)
	revokeFn func(ctx context.Context, userID string) (bool, error)
	grants   []string
	revokes  []string
}

func (m *mockPremium) Grant(ctx context.Context, userID, email, redirectURL string) (*model.Membership, error) {
	m.grants = append(m.grants, userID)
	if m.grantFn != nil {
		return m.grantFn(ctx, userID, email, redirectURL)
	}
	return &model.Membership{ID: "m1", TeamID: "premium", UserID: userID}, nil
}

func (m *mockPremium) Revoke(ctx context.Context, userID string) (bool, error) {
	m.revokes = append(m.revokes, userID)
	if m.revokeFn != nil {
		return m.revokeFn(ctx, userID)
	}
	return true, nil
}

// mockEvents はWebhookEventRepositoryのモック実装。
type mockEvents struct {
	seen map[string]bool
}

func (m *mockEvents) Exists(ctx context.Context, eventID string) (bool, error) {
	return m.seen[eventID], nil
}

func (m *mockEvents) Record(ctx context.Context, eventID, eventType string) error {
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	m.seen[eventID] = true
	return nil
}

// mockRecorder はWebhookRecorderのモック実装。
type mockRecorder struct {
	outcomes []string
}

func (m *mockRecorder) RecordWebhookEvent(eventType, outcome string) {
	m.outcomes = append(m.outcomes, eventType+":"+outcome)
}

// allowAll はすべてのURLを許可するURLValidator。
type allowAll struct{}

func (allowAll) Validate(string) error { return nil }
