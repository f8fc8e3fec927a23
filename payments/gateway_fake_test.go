package payments

import (
	"context"
)

// fakeGateway est un Gateway contrôlable pour les tests, avec compteurs
// d'appels pour vérifier qu'aucune mutation fournisseur n'a lieu quand
// elle est interdite.
type fakeGateway struct {
	customer    *Customer
	customerErr error

	subs    []*SubscriptionSnapshot
	subsErr error

	retrieved   *SubscriptionSnapshot
	retrieveErr error

	checkout    *CheckoutSnapshot
	checkoutErr error

	price    *PriceSnapshot
	priceErr error

	cancelErr error
	refundErr error

	portalURL string

	fetchCustomerCalls  int
	listCalls           int
	retrieveCalls       int
	createSessionCalls  int
	retrievePriceCalls  int
	cancelCalls         int
	refundCalls         int
	refundedPaymentIDs  []string
	createCustomerCalls int
}

func (f *fakeGateway) FetchCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	f.fetchCustomerCalls++
	if f.customerErr != nil {
		return nil, f.customerErr
	}
	if f.customer == nil {
		return nil, ErrCustomerNotFound
	}
	return f.customer, nil
}

func (f *fakeGateway) CreateCustomer(ctx context.Context, email string, name string) (*Customer, error) {
	f.createCustomerCalls++
	if f.customer != nil {
		return f.customer, nil
	}
	return &Customer{ID: "cus_new", Email: email, Name: name}, nil
}

func (f *fakeGateway) ListSubscriptions(ctx context.Context, customerID string, statuses []string) ([]*SubscriptionSnapshot, error) {
	f.listCalls++
	if f.subsErr != nil {
		return nil, f.subsErr
	}
	return f.subs, nil
}

func (f *fakeGateway) RetrieveSubscription(ctx context.Context, subscriptionID string) (*SubscriptionSnapshot, error) {
	f.retrieveCalls++
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}
	return f.retrieved, nil
}

func (f *fakeGateway) ListRecentPaymentIntents(ctx context.Context, customerID string, limit int64) ([]*PaymentIntentSnapshot, error) {
	return nil, nil
}

func (f *fakeGateway) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSnapshot, error) {
	if f.checkoutErr != nil {
		return nil, f.checkoutErr
	}
	return f.checkout, nil
}

func (f *fakeGateway) CreateCheckoutSession(ctx context.Context, customerID string, priceID string, successURL string, cancelURL string, clientReferenceID string) (*CheckoutSnapshot, error) {
	f.createSessionCalls++
	if f.checkoutErr != nil {
		return nil, f.checkoutErr
	}
	return f.checkout, nil
}

func (f *fakeGateway) RetrievePrice(ctx context.Context, priceID string) (*PriceSnapshot, error) {
	f.retrievePriceCalls++
	if f.priceErr != nil {
		return nil, f.priceErr
	}
	return f.price, nil
}

func (f *fakeGateway) CancelSubscription(ctx context.Context, subscriptionID string) error {
	f.cancelCalls++
	return f.cancelErr
}

func (f *fakeGateway) IssueRefund(ctx context.Context, paymentIntentID string, reason string) (*RefundSnapshot, error) {
	f.refundCalls++
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	f.refundedPaymentIDs = append(f.refundedPaymentIDs, paymentIntentID)
	return &RefundSnapshot{ID: "re_1", Status: "succeeded"}, nil
}

func (f *fakeGateway) CustomerPortalURL(ctx context.Context, customerID string, returnURL string) (string, error) {
	if f.portalURL == "" {
		return "https://billing.example.com/portal", nil
	}
	return f.portalURL, nil
}
