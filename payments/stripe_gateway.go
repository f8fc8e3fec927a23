package payments

import (
	"context"
	"errors"
	"os"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	bpsession "github.com/stripe/stripe-go/v82/billingportal/session"
	session "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/price"
	"github.com/stripe/stripe-go/v82/refund"
	stripeSubscription "github.com/stripe/stripe-go/v82/subscription"
)

const providerTimeout = 10 * time.Second

// StripeGateway implémente Gateway avec stripe-go. Chaque appel applique un
// timeout borné : un dépassement est classé ProviderUnavailable, jamais
// interprété comme "non abonné".
type StripeGateway struct {
	timeout time.Duration
}

func NewStripeGateway() *StripeGateway {
	return &StripeGateway{timeout: providerTimeout}
}

func (g *StripeGateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, g.timeout)
}

func (g *StripeGateway) FetchCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	iter := customer.List(params)
	for iter.Next() {
		cust := iter.Customer()
		return &Customer{ID: cust.ID, Email: cust.Email, Name: cust.Name}, nil
	}
	if err := iter.Err(); err != nil {
		return nil, classify("fetch customer", err)
	}
	return nil, ErrCustomerNotFound
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, email string, name string) (*Customer, error) {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx

	cust, err := customer.New(params)
	if err != nil {
		return nil, classify("create customer", err)
	}
	return &Customer{ID: cust.ID, Email: cust.Email, Name: cust.Name}, nil
}

func (g *StripeGateway) ListSubscriptions(ctx context.Context, customerID string, statuses []string) ([]*SubscriptionSnapshot, error) {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx

	var out []*SubscriptionSnapshot
	iter := stripeSubscription.List(params)
	for iter.Next() {
		snap := SnapshotFromStripeSubscription(iter.Subscription())
		if len(statuses) == 0 || containsStatus(statuses, snap.Status) {
			out = append(out, snap)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, classify("list subscriptions", err)
	}
	return out, nil
}

func (g *StripeGateway) RetrieveSubscription(ctx context.Context, subscriptionID string) (*SubscriptionSnapshot, error) {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := stripeSubscription.Get(subscriptionID, params)
	if err != nil {
		return nil, classify("retrieve subscription", err)
	}
	return SnapshotFromStripeSubscription(sub), nil
}

func (g *StripeGateway) ListRecentPaymentIntents(ctx context.Context, customerID string, limit int64) ([]*PaymentIntentSnapshot, error) {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.PaymentIntentListParams{Customer: stripe.String(customerID)}
	params.Context = ctx
	params.Limit = stripe.Int64(limit)

	var out []*PaymentIntentSnapshot
	iter := paymentintent.List(params)
	for iter.Next() {
		pi := iter.PaymentIntent()
		out = append(out, &PaymentIntentSnapshot{
			ID:       pi.ID,
			Status:   string(pi.Status),
			Amount:   pi.AmountReceived,
			Currency: string(pi.Currency),
			Created:  pi.Created,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, classify("list payment intents", err)
	}
	return out, nil
}

func (g *StripeGateway) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSnapshot, error) {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("subscription")
	params.AddExpand("payment_intent")
	params.AddExpand("customer")

	s, err := session.Get(sessionID, params)
	if err != nil {
		return nil, classify("retrieve checkout session", err)
	}
	return checkoutSnapshot(s), nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, customerID string, priceID string, successURL string, cancelURL string, clientReferenceID string) (*CheckoutSnapshot, error) {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(customerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(clientReferenceID),
	}
	params.Context = ctx

	s, err := session.New(params)
	if err != nil {
		return nil, classify("create checkout session", err)
	}
	return checkoutSnapshot(s), nil
}

func (g *StripeGateway) RetrievePrice(ctx context.Context, priceID string) (*PriceSnapshot, error) {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.PriceParams{}
	params.Context = ctx

	p, err := price.Get(priceID, params)
	if err != nil {
		return nil, classify("retrieve price", err)
	}
	snap := &PriceSnapshot{
		ID:         p.ID,
		Recurring:  p.Recurring != nil,
		UnitAmount: p.UnitAmount,
		Currency:   string(p.Currency),
		Nickname:   p.Nickname,
	}
	if p.Recurring != nil {
		snap.Interval = string(p.Recurring.Interval)
	}
	return snap, nil
}

func (g *StripeGateway) CancelSubscription(ctx context.Context, subscriptionID string) error {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.SubscriptionCancelParams{
		Prorate: stripe.Bool(false),
	}
	params.Context = ctx

	_, err := stripeSubscription.Cancel(subscriptionID, params)
	if err != nil {
		return classify("cancel subscription", err)
	}
	return nil
}

func (g *StripeGateway) IssueRefund(ctx context.Context, paymentIntentID string, reason string) (*RefundSnapshot, error) {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Reason:        stripe.String(reason),
	}
	params.Context = ctx

	r, err := refund.New(params)
	if err != nil {
		return nil, classify("issue refund", err)
	}
	return &RefundSnapshot{ID: r.ID, Status: string(r.Status)}, nil
}

func (g *StripeGateway) CustomerPortalURL(ctx context.Context, customerID string, returnURL string) (string, error) {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	s, err := bpsession.New(params)
	if err != nil {
		return "", classify("customer portal", err)
	}
	return s.URL, nil
}

// SnapshotFromStripeSubscription convertit un objet Stripe en instantané local.
// Depuis l'API Basil les bornes de période vivent sur les items, pas sur
// l'abonnement lui-même.
func SnapshotFromStripeSubscription(s *stripe.Subscription) *SubscriptionSnapshot {
	snap := &SubscriptionSnapshot{
		ID:                s.ID,
		Status:            string(s.Status),
		Created:           s.Created,
		TrialEnd:          s.TrialEnd,
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
	}
	if s.Customer != nil {
		snap.CustomerID = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		snap.CurrentPeriodStart = item.CurrentPeriodStart
		snap.CurrentPeriodEnd = item.CurrentPeriodEnd
		if item.Price != nil {
			snap.PriceID = item.Price.ID
		}
	}
	return snap
}

func checkoutSnapshot(s *stripe.CheckoutSession) *CheckoutSnapshot {
	snap := &CheckoutSnapshot{
		ID:                s.ID,
		URL:               s.URL,
		CustomerEmail:     s.CustomerEmail,
		ClientReferenceID: s.ClientReferenceID,
		PaymentStatus:     string(s.PaymentStatus),
		AmountTotal:       s.AmountTotal,
		Currency:          string(s.Currency),
	}
	if s.Customer != nil {
		snap.CustomerID = s.Customer.ID
		if snap.CustomerEmail == "" {
			snap.CustomerEmail = s.Customer.Email
		}
	}
	if s.CustomerDetails != nil && snap.CustomerEmail == "" {
		snap.CustomerEmail = s.CustomerDetails.Email
	}
	if s.PaymentIntent != nil {
		snap.PaymentIntentID = s.PaymentIntent.ID
	}
	if s.Subscription != nil {
		snap.Subscription = SnapshotFromStripeSubscription(s.Subscription)
	}
	return snap
}

func containsStatus(statuses []string, status string) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var sErr *stripe.Error
	if errors.As(err, &sErr) {
		retryable := sErr.HTTPStatusCode == 0 || sErr.HTTPStatusCode == 429 || sErr.HTTPStatusCode >= 500
		return &ProviderError{Op: op, Retryable: retryable, Err: err}
	}
	// Erreur réseau ou timeout : toujours réessayable
	return &ProviderError{Op: op, Retryable: true, Err: err}
}
