package payments

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/models"
	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/testutils"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	testutils.InitTestMain()
	os.Exit(m.Run())
}

var subscriptionColumns = []string{
	"id", "user_id", "plan_id", "status",
	"current_period_start", "current_period_end",
	"trial_ends_at", "canceled_at",
	"payment_provider", "provider_subscription_id",
	"created_at", "updated_at",
}

func subscriptionRow(id, userID string, status models.SubscriptionStatus, periodEnd time.Time, providerSubID string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(subscriptionColumns).
		AddRow(id, userID, "price_premium", string(status),
			now.Add(-24*time.Hour), periodEnd,
			nil, nil,
			"stripe", providerSubID,
			now.Add(-24*time.Hour), now.Add(-time.Hour))
}

func TestReconcileNewUserWithoutCustomer(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	fake := &fakeGateway{} // aucun client fournisseur pour cet email
	r := NewReconciler(fake)

	user := &models.User{ID: "11111111-1111-1111-1111-111111111111", Email: "new@example.com"}
	outcome, err := r.Reconcile(context.Background(), user, TriggerPoll)

	assert.NoError(t, err)
	assert.Nil(t, outcome.Record)
	assert.False(t, outcome.Changed)
	assert.Equal(t, 1, fake.fetchCustomerCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileUpsertsProviderTruth(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	now := time.Now()
	fake := &fakeGateway{
		subs: []*SubscriptionSnapshot{
			{
				ID:                 "sub_123",
				Status:             "active",
				PriceID:            "price_premium",
				Created:            now.Add(-time.Hour).Unix(),
				CurrentPeriodStart: now.Add(-time.Hour).Unix(),
				CurrentPeriodEnd:   now.Add(29 * 24 * time.Hour).Unix(),
			},
		},
	}
	r := NewReconciler(fake)
	user := &models.User{ID: "11111111-1111-1111-1111-111111111111", Email: "user@example.com", StripeCustomerId: "cus_123"}

	mock.ExpectQuery(`SELECT \* FROM "subscriptions"`).
		WillReturnRows(sqlmock.NewRows(subscriptionColumns))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "subscriptions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("22222222-2222-2222-2222-222222222222"))
	mock.ExpectCommit()

	outcome, err := r.Reconcile(context.Background(), user, TriggerWebhook)

	assert.NoError(t, err)
	assert.NotNil(t, outcome.Record)
	assert.True(t, outcome.Changed)
	assert.Equal(t, models.SubscriptionActive, outcome.Record.Status)
	assert.Equal(t, "sub_123", outcome.Record.ProviderSubscriptionID)
	assert.Equal(t, 0, fake.fetchCustomerCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileIsIdempotent(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	now := time.Now()
	fake := &fakeGateway{
		subs: []*SubscriptionSnapshot{
			{
				ID:                 "sub_123",
				Status:             "active",
				PriceID:            "price_premium",
				Created:            now.Add(-time.Hour).Unix(),
				CurrentPeriodStart: now.Add(-time.Hour).Unix(),
				CurrentPeriodEnd:   now.Add(29 * 24 * time.Hour).Unix(),
			},
		},
	}
	r := NewReconciler(fake)
	user := &models.User{ID: "11111111-1111-1111-1111-111111111111", Email: "user@example.com", StripeCustomerId: "cus_123"}

	// Deuxième passage : l'enregistrement existe déjà avec le même statut,
	// l'upsert converge sans signaler de changement.
	mock.ExpectQuery(`SELECT \* FROM "subscriptions"`).
		WillReturnRows(subscriptionRow("22222222-2222-2222-2222-222222222222", user.ID,
			models.SubscriptionActive, now.Add(29*24*time.Hour), "sub_123"))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "subscriptions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("22222222-2222-2222-2222-222222222222"))
	mock.ExpectCommit()

	outcome, err := r.Reconcile(context.Background(), user, TriggerWebhook)

	assert.NoError(t, err)
	assert.False(t, outcome.Changed)
	assert.Equal(t, models.SubscriptionActive, outcome.Record.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcilePollEmptyNeverDowngrades(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	// Lecture vide côté fournisseur (cohérence éventuelle) : le poll ne doit
	// ni rétrograder l'enregistrement actif, ni interroger le fournisseur
	// pour confirmation.
	fake := &fakeGateway{subs: nil}
	r := NewReconciler(fake)
	user := &models.User{ID: "11111111-1111-1111-1111-111111111111", Email: "user@example.com", StripeCustomerId: "cus_123"}

	now := time.Now()
	mock.ExpectQuery(`SELECT \* FROM "subscriptions"`).
		WillReturnRows(subscriptionRow("22222222-2222-2222-2222-222222222222", user.ID,
			models.SubscriptionActive, now.Add(20*24*time.Hour), "sub_123"))

	outcome, err := r.Reconcile(context.Background(), user, TriggerPoll)

	assert.NoError(t, err)
	assert.NotNil(t, outcome.Record)
	assert.False(t, outcome.Changed)
	assert.Equal(t, models.SubscriptionActive, outcome.Record.Status)
	assert.Equal(t, 0, fake.retrieveCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileDefinitiveEmptyConfirmsCancellation(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	fake := &fakeGateway{
		subs:      nil,
		retrieved: &SubscriptionSnapshot{ID: "sub_123", Status: "canceled"},
	}
	r := NewReconciler(fake)
	user := &models.User{ID: "11111111-1111-1111-1111-111111111111", Email: "user@example.com", StripeCustomerId: "cus_123"}

	now := time.Now()
	mock.ExpectQuery(`SELECT \* FROM "subscriptions"`).
		WillReturnRows(subscriptionRow("22222222-2222-2222-2222-222222222222", user.ID,
			models.SubscriptionActive, now.Add(20*24*time.Hour), "sub_123"))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "subscriptions"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	outcome, err := r.Reconcile(context.Background(), user, TriggerWebhook)

	assert.NoError(t, err)
	assert.True(t, outcome.Changed)
	assert.Equal(t, models.SubscriptionCanceled, outcome.Record.Status)
	assert.NotNil(t, outcome.Record.CanceledAt)
	assert.Equal(t, 1, fake.retrieveCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileDefinitiveEmptyProviderUnavailable(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	fake := &fakeGateway{
		subs:        nil,
		retrieveErr: &ProviderError{Op: "subscription.retrieve", Retryable: true, Err: errors.New("connection reset")},
	}
	r := NewReconciler(fake)
	user := &models.User{ID: "11111111-1111-1111-1111-111111111111", Email: "user@example.com", StripeCustomerId: "cus_123"}

	now := time.Now()
	mock.ExpectQuery(`SELECT \* FROM "subscriptions"`).
		WillReturnRows(subscriptionRow("22222222-2222-2222-2222-222222222222", user.ID,
			models.SubscriptionActive, now.Add(20*24*time.Hour), "sub_123"))

	outcome, err := r.Reconcile(context.Background(), user, TriggerWebhook)

	// Fournisseur injoignable : erreur remontée, aucune rétrogradation
	assert.Error(t, err)
	assert.True(t, IsProviderUnavailable(err))
	assert.Nil(t, outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectAuthoritativePrefersMostRecent(t *testing.T) {
	old := &SubscriptionSnapshot{ID: "sub_old", Status: "active", Created: 100, CurrentPeriodEnd: 500}
	recent := &SubscriptionSnapshot{ID: "sub_new", Status: "trialing", Created: 200, CurrentPeriodEnd: 400}
	canceled := &SubscriptionSnapshot{ID: "sub_dead", Status: "canceled", Created: 300}

	best := selectAuthoritative([]*SubscriptionSnapshot{old, recent, canceled})
	assert.Equal(t, "sub_new", best.ID)

	// Départage à date de création égale : la borne de fin la plus haute gagne
	tied := &SubscriptionSnapshot{ID: "sub_tied", Status: "active", Created: 200, CurrentPeriodEnd: 900}
	best = selectAuthoritative([]*SubscriptionSnapshot{recent, tied})
	assert.Equal(t, "sub_tied", best.ID)

	assert.Nil(t, selectAuthoritative([]*SubscriptionSnapshot{canceled}))
	assert.Nil(t, selectAuthoritative(nil))
}

func TestNormalizePeriodDefaults(t *testing.T) {
	now := time.Now()

	// Bornes manquantes : début -> maintenant, fin -> maintenant + 30 jours
	start, end, trialEnd := normalizePeriod(&SubscriptionSnapshot{}, now)
	assert.Equal(t, now, start)
	assert.Equal(t, now.Add(30*24*time.Hour), end)
	assert.Nil(t, trialEnd)

	// Fin antérieure au début : incohérente, remplacée par la valeur par défaut
	snap := &SubscriptionSnapshot{
		CurrentPeriodStart: now.Unix(),
		CurrentPeriodEnd:   now.Add(-time.Hour).Unix(),
	}
	start, end, _ = normalizePeriod(snap, now)
	assert.Equal(t, now.Unix(), start.Unix())
	assert.Equal(t, now.Add(30*24*time.Hour), end)

	// Bornes complètes : reprises telles quelles
	trial := now.Add(3 * 24 * time.Hour)
	snap = &SubscriptionSnapshot{
		CurrentPeriodStart: now.Unix(),
		CurrentPeriodEnd:   now.Add(30 * 24 * time.Hour).Unix(),
		TrialEnd:           trial.Unix(),
	}
	start, end, trialEnd = normalizePeriod(snap, now)
	assert.Equal(t, now.Unix(), start.Unix())
	assert.Equal(t, now.Add(30*24*time.Hour).Unix(), end.Unix())
	assert.NotNil(t, trialEnd)
	assert.Equal(t, trial.Unix(), trialEnd.Unix())
}
