package payments

import (
	"context"
	"errors"
	"fmt"
)

// ErrCustomerNotFound : aucun client fournisseur pour cet email. Ce n'est pas
// une panne, un nouvel utilisateur n'a simplement pas encore de client Stripe.
var ErrCustomerNotFound = errors.New("provider customer not found")

// ProviderError enveloppe une erreur du prestataire de paiement.
// Retryable = vrai pour les pannes transitoires (réseau, timeout, 5xx),
// faux pour les rejets définitifs (4xx, identifiant invalide).
type ProviderError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsProviderUnavailable : l'appelant peut réessayer plus tard.
// Ne doit jamais être interprété comme "non abonné".
func IsProviderUnavailable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable
}

// IsProviderRejected : le fournisseur a refusé la requête, inutile de réessayer.
func IsProviderRejected(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && !pe.Retryable
}

type Customer struct {
	ID    string
	Email string
	Name  string
}

// SubscriptionSnapshot est la vérité fournisseur au moment de la lecture.
// Jamais persisté tel quel : relu à chaque réconciliation.
type SubscriptionSnapshot struct {
	ID                 string
	Status             string
	Created            int64
	CurrentPeriodStart int64
	CurrentPeriodEnd   int64
	TrialEnd           int64
	CustomerID         string
	PriceID            string
	CancelAtPeriodEnd  bool
}

type PaymentIntentSnapshot struct {
	ID       string
	Status   string
	Amount   int64
	Currency string
	Created  int64
}

type CheckoutSnapshot struct {
	ID                string
	URL               string
	CustomerID        string
	CustomerEmail     string
	ClientReferenceID string
	PaymentStatus     string
	PaymentIntentID   string
	AmountTotal       int64
	Currency          string
	Subscription      *SubscriptionSnapshot
}

type PriceSnapshot struct {
	ID         string
	Recurring  bool
	Interval   string
	UnitAmount int64
	Currency   string
	Nickname   string
}

type RefundSnapshot struct {
	ID     string
	Status string
}

// Gateway est la façade en lecture/écriture vers le prestataire de paiement.
// Aucune mutation d'état local : les handlers et le réconciliateur s'en chargent.
type Gateway interface {
	FetchCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	CreateCustomer(ctx context.Context, email string, name string) (*Customer, error)
	ListSubscriptions(ctx context.Context, customerID string, statuses []string) ([]*SubscriptionSnapshot, error)
	RetrieveSubscription(ctx context.Context, subscriptionID string) (*SubscriptionSnapshot, error)
	ListRecentPaymentIntents(ctx context.Context, customerID string, limit int64) ([]*PaymentIntentSnapshot, error)
	RetrieveCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSnapshot, error)
	CreateCheckoutSession(ctx context.Context, customerID string, priceID string, successURL string, cancelURL string, clientReferenceID string) (*CheckoutSnapshot, error)
	RetrievePrice(ctx context.Context, priceID string) (*PriceSnapshot, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
	IssueRefund(ctx context.Context, paymentIntentID string, reason string) (*RefundSnapshot, error)
	CustomerPortalURL(ctx context.Context, customerID string, returnURL string) (string, error)
}
