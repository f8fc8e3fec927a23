package stripe

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/models"
	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/payments"
	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/testutils"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	testutils.InitTestMain()
	os.Exit(m.Run())
}

const testUserID = "11111111-1111-1111-1111-111111111111"

// fakeGateway remplace le prestataire de paiement dans les tests de handlers.
// Les compteurs vérifient qu'aucune mutation fournisseur n'a lieu quand une
// garde doit couper court.
type fakeGateway struct {
	checkout    *payments.CheckoutSnapshot
	checkoutErr error
	subs        []*payments.SubscriptionSnapshot
	price       *payments.PriceSnapshot
	priceErr    error
	cancelErr   error
	refundErr   error

	retrievePriceCalls int
	createSessionCalls int
	cancelCalls        int
	refundCalls        int
}

func (f *fakeGateway) FetchCustomerByEmail(ctx context.Context, email string) (*payments.Customer, error) {
	return nil, payments.ErrCustomerNotFound
}

func (f *fakeGateway) CreateCustomer(ctx context.Context, email string, name string) (*payments.Customer, error) {
	return &payments.Customer{ID: "cus_new", Email: email, Name: name}, nil
}

func (f *fakeGateway) ListSubscriptions(ctx context.Context, customerID string, statuses []string) ([]*payments.SubscriptionSnapshot, error) {
	return f.subs, nil
}

func (f *fakeGateway) RetrieveSubscription(ctx context.Context, subscriptionID string) (*payments.SubscriptionSnapshot, error) {
	return nil, &payments.ProviderError{Op: "retrieve subscription", Retryable: false, Err: assert.AnError}
}

func (f *fakeGateway) ListRecentPaymentIntents(ctx context.Context, customerID string, limit int64) ([]*payments.PaymentIntentSnapshot, error) {
	return nil, nil
}

func (f *fakeGateway) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*payments.CheckoutSnapshot, error) {
	if f.checkoutErr != nil {
		return nil, f.checkoutErr
	}
	return f.checkout, nil
}

func (f *fakeGateway) CreateCheckoutSession(ctx context.Context, customerID string, priceID string, successURL string, cancelURL string, clientReferenceID string) (*payments.CheckoutSnapshot, error) {
	f.createSessionCalls++
	return f.checkout, nil
}

func (f *fakeGateway) RetrievePrice(ctx context.Context, priceID string) (*payments.PriceSnapshot, error) {
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

func (f *fakeGateway) IssueRefund(ctx context.Context, paymentIntentID string, reason string) (*payments.RefundSnapshot, error) {
	f.refundCalls++
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	return &payments.RefundSnapshot{ID: "re_1", Status: "succeeded"}, nil
}

func (f *fakeGateway) CustomerPortalURL(ctx context.Context, customerID string, returnURL string) (string, error) {
	return "https://billing.example.com/portal", nil
}

// useFakeGateway branche le faux prestataire sur les trois collaborateurs du
// package et rend une fonction de restauration.
func useFakeGateway(f *fakeGateway) func() {
	oldGateway, oldReconciler, oldRefund := gateway, reconciler, refundEngine
	gateway = f
	reconciler = payments.NewReconciler(f)
	refundEngine = payments.NewRefundEngine(f)
	return func() {
		gateway, reconciler, refundEngine = oldGateway, oldReconciler, oldRefund
	}
}

func performAuthed(handler gin.HandlerFunc, method, path string, body interface{}) *httptest.ResponseRecorder {
	r := testutils.SetupTestRouter()
	r.Handle(method, path, func(c *gin.Context) {
		c.Set("user_id", testUserID)
		handler(c)
	})

	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

var userColumns = []string{
	"id", "email", "password", "user_name", "role",
	"stripe_customer_id", "premium_override",
	"quit_date", "cigarettes_per_day", "pack_price",
	"email_verified_at", "created_at", "updated_at",
}

func userRow(customerID string, override bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(userColumns).
		AddRow(testUserID, "user@example.com", "hashed", "testeur", "USER",
			customerID, override, nil, 0, 0, nil, now, now)
}

var subscriptionColumns = []string{
	"id", "user_id", "plan_id", "status",
	"current_period_start", "current_period_end",
	"trial_ends_at", "canceled_at",
	"payment_provider", "provider_subscription_id",
	"created_at", "updated_at",
}

func subscriptionRow(status models.SubscriptionStatus, periodEnd time.Time) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(subscriptionColumns).
		AddRow("22222222-2222-2222-2222-222222222222", testUserID, "price_premium", string(status),
			now.Add(-24*time.Hour), periodEnd, nil, nil,
			"stripe", "sub_123", now.Add(-24*time.Hour), now.Add(-time.Hour))
}

var paymentColumns = []string{
	"id", "user_id", "amount", "currency", "status",
	"transaction_id", "metadata", "paid_at", "created_at", "updated_at",
}

func paymentRow(paidAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(paymentColumns).
		AddRow("33333333-3333-3333-3333-333333333333", testUserID, 999, "eur", "COMPLETED",
			"pi_123", []byte(`{}`), paidAt, paidAt, paidAt)
}

func TestCreateCheckoutRejectsDuplicateActiveSubscription(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	fake := &fakeGateway{}
	defer useFakeGateway(fake)()

	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnRows(userRow("cus_123", false))
	mock.ExpectQuery(`SELECT \* FROM "subscriptions"`).
		WillReturnRows(subscriptionRow(models.SubscriptionActive, time.Now().Add(20*24*time.Hour)))

	w := performAuthed(CreateCheckout, http.MethodPost, "/create-checkout",
		gin.H{"priceId": "price_premium"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "already have an active subscription")
	// La garde coupe avant tout appel fournisseur
	assert.Equal(t, 0, fake.retrievePriceCalls)
	assert.Equal(t, 0, fake.createSessionCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCheckoutRequiresPriceID(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	defer useFakeGateway(&fakeGateway{})()

	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnRows(userRow("cus_123", false))

	w := performAuthed(CreateCheckout, http.MethodPost, "/create-checkout", gin.H{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "priceId is required")
}

func TestCreateCheckoutRejectsNonRecurringPrice(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	fake := &fakeGateway{price: &payments.PriceSnapshot{ID: "price_onetime", Recurring: false}}
	defer useFakeGateway(fake)()

	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnRows(userRow("cus_123", false))
	mock.ExpectQuery(`SELECT \* FROM "subscriptions"`).
		WillReturnRows(sqlmock.NewRows(subscriptionColumns))

	w := performAuthed(CreateCheckout, http.MethodPost, "/create-checkout",
		gin.H{"priceId": "price_onetime"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "not a recurring plan")
	assert.Equal(t, 0, fake.createSessionCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCheckoutReusesRecentUnpaidSession(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	fake := &fakeGateway{price: &payments.PriceSnapshot{ID: "price_premium", Recurring: true, Interval: "month"}}
	defer useFakeGateway(fake)()

	now := time.Now()
	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnRows(userRow("cus_123", false))
	mock.ExpectQuery(`SELECT \* FROM "subscriptions"`).
		WillReturnRows(sqlmock.NewRows(subscriptionColumns))
	mock.ExpectQuery(`SELECT \* FROM "checkout_attempts"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "session_id", "price_id", "status", "url", "created_at", "updated_at"}).
			AddRow("44444444-4444-4444-4444-444444444444", testUserID, "cs_prev", "price_premium", "CREATED",
				"https://checkout.example.com/cs_prev", now.Add(-2*time.Minute), now.Add(-2*time.Minute)))

	w := performAuthed(CreateCheckout, http.MethodPost, "/create-checkout",
		gin.H{"priceId": "price_premium"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "https://checkout.example.com/cs_prev")
	// Session réutilisée, pas de nouvelle session fournisseur
	assert.Equal(t, 0, fake.createSessionCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCheckoutExpiresStaleAttemptsAndCreatesSession(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	fake := &fakeGateway{
		price: &payments.PriceSnapshot{ID: "price_premium", Recurring: true, Interval: "month"},
		checkout: &payments.CheckoutSnapshot{
			ID:  "cs_new",
			URL: "https://checkout.example.com/cs_new",
		},
	}
	defer useFakeGateway(fake)()

	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnRows(userRow("cus_123", false))
	mock.ExpectQuery(`SELECT \* FROM "subscriptions"`).
		WillReturnRows(sqlmock.NewRows(subscriptionColumns))
	// Aucune session réutilisable dans la fenêtre : les tentatives périmées
	// passent en EXPIRED avant la création d'une nouvelle session
	mock.ExpectQuery(`SELECT \* FROM "checkout_attempts"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "checkout_attempts"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "checkout_attempts"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("44444444-4444-4444-4444-444444444444"))
	mock.ExpectCommit()

	w := performAuthed(CreateCheckout, http.MethodPost, "/create-checkout",
		gin.H{"priceId": "price_premium"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "https://checkout.example.com/cs_new")
	assert.Equal(t, 1, fake.createSessionCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivateSubscriptionRequiresSessionID(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	defer useFakeGateway(&fakeGateway{})()

	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnRows(userRow("cus_123", false))

	w := performAuthed(ActivateSubscription, http.MethodPost, "/activate-subscription", gin.H{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "sessionId is required")
}

func TestActivateSubscriptionRejectsForeignSession(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	fake := &fakeGateway{
		checkout: &payments.CheckoutSnapshot{
			ID:            "cs_123",
			CustomerID:    "cus_other",
			CustomerEmail: "someone.else@example.com",
			PaymentStatus: "paid",
		},
	}
	defer useFakeGateway(fake)()

	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnRows(userRow("cus_123", false))

	w := performAuthed(ActivateSubscription, http.MethodPost, "/activate-subscription",
		gin.H{"sessionId": "cs_123"})

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "does not belong to you")
}

func TestActivateSubscriptionFreshCheckout(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	now := time.Now()
	trialEnd := now.Add(3 * 24 * time.Hour)
	snap := &payments.SubscriptionSnapshot{
		ID:                 "sub_123",
		Status:             "trialing",
		Created:            now.Unix(),
		CurrentPeriodStart: now.Unix(),
		CurrentPeriodEnd:   now.Add(30 * 24 * time.Hour).Unix(),
		TrialEnd:           trialEnd.Unix(),
		CustomerID:         "cus_123",
		PriceID:            "price_premium",
	}
	fake := &fakeGateway{
		checkout: &payments.CheckoutSnapshot{
			ID:              "cs_123",
			CustomerID:      "cus_123",
			PaymentStatus:   "paid",
			PaymentIntentID: "pi_123",
			AmountTotal:     999,
			Currency:        "eur",
			Subscription:    snap,
		},
		subs: []*payments.SubscriptionSnapshot{snap},
	}
	defer useFakeGateway(fake)()

	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnRows(userRow("cus_123", false))
	// Réconciliation : pas d'enregistrement existant, upsert
	mock.ExpectQuery(`SELECT \* FROM "subscriptions"`).
		WillReturnRows(sqlmock.NewRows(subscriptionColumns))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "subscriptions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("22222222-2222-2222-2222-222222222222"))
	mock.ExpectCommit()
	// Journal de paiement : transaction inconnue, insertion
	mock.ExpectQuery(`SELECT \* FROM "subscription_payments"`).
		WillReturnRows(sqlmock.NewRows(paymentColumns))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "subscription_payments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("33333333-3333-3333-3333-333333333333"))
	mock.ExpectCommit()
	// Tentative de checkout marquée COMPLETED
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "checkout_attempts"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := performAuthed(ActivateSubscription, http.MethodPost, "/activate-subscription",
		gin.H{"sessionId": "cs_123"})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, true, resp["subscribed"])
	assert.Equal(t, "TRIALING", resp["status"])
	assert.NotNil(t, resp["trial_end"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckSubscriptionEmptyReadKeepsAccess(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	// Fournisseur renvoie une liste vide : le poll garde l'enregistrement
	// actif tel quel et répond abonné
	fake := &fakeGateway{subs: nil}
	defer useFakeGateway(fake)()

	periodEnd := time.Now().Add(20 * 24 * time.Hour)
	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnRows(userRow("cus_123", false))
	mock.ExpectQuery(`SELECT \* FROM "subscriptions"`).
		WillReturnRows(subscriptionRow(models.SubscriptionActive, periodEnd))

	w := performAuthed(CheckSubscription, http.MethodPost, "/check-subscription", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["subscribed"])
	assert.Equal(t, "NoSmoking Premium", resp["plan_name"])
	assert.NotNil(t, resp["subscription_end"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckSubscriptionOverrideWithoutSubscription(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	fake := &fakeGateway{subs: nil}
	defer useFakeGateway(fake)()

	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnRows(userRow("cus_123", true))
	mock.ExpectQuery(`SELECT \* FROM "subscriptions"`).
		WillReturnRows(sqlmock.NewRows(subscriptionColumns))

	w := performAuthed(CheckSubscription, http.MethodPost, "/check-subscription", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["subscribed"])
	assert.Equal(t, "NoSmoking Premium", resp["plan_name"])
	assert.Nil(t, resp["subscription_end"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleSubscriptionCancelWithoutSubscription(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	defer useFakeGateway(&fakeGateway{})()

	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnRows(userRow("cus_123", false))
	mock.ExpectQuery(`SELECT \* FROM "subscriptions"`).
		WillReturnRows(sqlmock.NewRows(subscriptionColumns))

	w := performAuthed(HandleSubscriptionCancel, http.MethodPost, "/handle-subscription-cancel", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "No active subscription")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleSubscriptionCancelLateKeepsAccessUntilPeriodEnd(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	fake := &fakeGateway{}
	defer useFakeGateway(fake)()

	now := time.Now()
	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnRows(userRow("cus_123", false))
	mock.ExpectQuery(`SELECT \* FROM "subscriptions"`).
		WillReturnRows(subscriptionRow(models.SubscriptionActive, now.Add(20*24*time.Hour)))
	// Passage en CANCELED
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "subscriptions"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	// Dernier paiement il y a 10 jours : hors fenêtre de grâce
	mock.ExpectQuery(`SELECT \* FROM "subscription_payments"`).
		WillReturnRows(paymentRow(now.Add(-10 * 24 * time.Hour)))

	w := performAuthed(HandleSubscriptionCancel, http.MethodPost, "/handle-subscription-cancel", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, false, resp["refunded"])
	assert.Contains(t, resp["message"], "keep access")
	assert.Equal(t, 1, fake.cancelCalls)
	assert.Equal(t, 0, fake.refundCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleSubscriptionCancelDuringTrialRefunds(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	fake := &fakeGateway{}
	defer useFakeGateway(fake)()

	now := time.Now()
	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnRows(userRow("cus_123", false))
	mock.ExpectQuery(`SELECT \* FROM "subscriptions"`).
		WillReturnRows(subscriptionRow(models.SubscriptionTrialing, now.Add(25*24*time.Hour)))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "subscriptions"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	// Essai en cours : remboursé même si le paiement date
	mock.ExpectQuery(`SELECT \* FROM "subscription_payments"`).
		WillReturnRows(paymentRow(now.Add(-5 * 24 * time.Hour)))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "subscription_payments"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := performAuthed(HandleSubscriptionCancel, http.MethodPost, "/handle-subscription-cancel", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["refunded"])
	assert.Contains(t, resp["message"], "refunded")
	assert.Equal(t, 1, fake.refundCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCustomerPortalRequiresBillingAccount(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	defer useFakeGateway(&fakeGateway{})()

	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnRows(userRow("", false))

	w := performAuthed(CustomerPortal, http.MethodPost, "/customer-portal", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "No billing account")
}

func TestGetSubscriptionNotFound(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	defer useFakeGateway(&fakeGateway{})()

	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnRows(userRow("cus_123", false))
	mock.ExpectQuery(`SELECT \* FROM "subscriptions"`).
		WillReturnRows(sqlmock.NewRows(subscriptionColumns))

	w := performAuthed(GetSubscription, http.MethodGet, "/subscription", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
