package payments

import (
	"context"
	"sort"
	"time"

	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/db"
	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/models"
	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/utils"

	"gorm.io/gorm/clause"
)

// Trigger identifie le chemin d'entrée d'une réconciliation. Le poll
// périodique n'est pas définitif : il ne peut jamais rétrograder un
// enregistrement actif sur une simple lecture vide.
type Trigger string

const (
	TriggerWebhook    Trigger = "webhook"
	TriggerActivation Trigger = "activation"
	TriggerPoll       Trigger = "poll"
)

// Durée de période par défaut quand le fournisseur ne renvoie pas de borne
// exploitable. Un timestamp manquant ne doit jamais bloquer l'entitlement.
const defaultPeriod = 30 * 24 * time.Hour

// Outcome est le résultat d'une réconciliation. Record nil = verdict
// "non abonné" sans écriture (sentinelle).
type Outcome struct {
	Record  *models.Subscription
	Changed bool
}

// Reconciler est l'unique point d'écriture de l'enregistrement d'abonnement.
// Les trois déclencheurs (webhook, activation explicite, poll client) passent
// tous par Reconcile : pas de logique dupliquée par handler.
type Reconciler struct {
	gateway Gateway
}

func NewReconciler(g Gateway) *Reconciler {
	return &Reconciler{gateway: g}
}

// Reconcile confronte la vérité fournisseur à l'enregistrement local et
// applique l'écriture corrective minimale, par upsert sur user_id.
// Idempotent : deux appels consécutifs sans changement côté fournisseur
// produisent le même état stocké.
func (r *Reconciler) Reconcile(ctx context.Context, user *models.User, trigger Trigger) (*Outcome, error) {
	customerID := user.StripeCustomerId
	if customerID == "" {
		cust, err := r.gateway.FetchCustomerByEmail(ctx, user.Email)
		if err == ErrCustomerNotFound {
			// Nouvel utilisateur sans client fournisseur : verdict "non
			// abonné", aucune écriture. Ce n'est pas une erreur.
			return &Outcome{}, nil
		}
		if err != nil {
			return nil, err
		}
		customerID = cust.ID
		if err := db.DB.Model(&models.User{}).Where("id = ?", user.ID).
			Update("stripe_customer_id", cust.ID).Error; err != nil {
			utils.LogErrorWithUser(user.ID, err, "Impossible de sauvegarder le stripe_customer_id dans Reconcile")
		}
		user.StripeCustomerId = cust.ID
	}

	subs, err := r.gateway.ListSubscriptions(ctx, customerID, []string{"active", "trialing"})
	if err != nil {
		return nil, err
	}

	existing, err := FindEntitlement(user.ID)
	if err != nil {
		return nil, err
	}

	best := selectAuthoritative(subs)
	if best == nil {
		return r.reconcileEmpty(ctx, user, existing, trigger)
	}

	now := time.Now()
	status := models.SubscriptionActive
	if best.Status == "trialing" {
		status = models.SubscriptionTrialing
	}
	start, end, trialEnd := normalizePeriod(best, now)

	record := models.Subscription{
		UserID:                 user.ID,
		PlanID:                 best.PriceID,
		Status:                 status,
		CurrentPeriodStart:     start,
		CurrentPeriodEnd:       end,
		TrialEndsAt:            trialEnd,
		CanceledAt:             nil,
		PaymentProvider:        "stripe",
		ProviderSubscriptionID: best.ID,
	}

	// Upsert sur la contrainte unique user_id : les réconciliations
	// concurrentes convergent au lieu de dupliquer ou de se perdre.
	err = db.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"plan_id", "status", "current_period_start", "current_period_end",
			"trial_ends_at", "canceled_at", "payment_provider",
			"provider_subscription_id", "updated_at",
		}),
	}).Create(&record).Error
	if err != nil {
		return nil, err
	}

	changed := existing == nil || existing.Status != status
	return &Outcome{Record: &record, Changed: changed}, nil
}

// reconcileEmpty : aucun abonnement qualifiant côté fournisseur. Un poll ne
// rétrograde jamais ; un déclencheur définitif confirme d'abord le statut
// par une lecture directe avant de passer l'enregistrement en CANCELED ou
// PAST_DUE. Une lecture vide transitoire (cohérence éventuelle juste après
// le checkout) ne révoque donc jamais l'accès à tort.
func (r *Reconciler) reconcileEmpty(ctx context.Context, user *models.User, existing *models.Subscription, trigger Trigger) (*Outcome, error) {
	if existing == nil {
		return &Outcome{}, nil
	}
	if existing.Status != models.SubscriptionActive && existing.Status != models.SubscriptionTrialing {
		return &Outcome{Record: existing}, nil
	}
	if trigger == TriggerPoll {
		return &Outcome{Record: existing}, nil
	}
	if existing.ProviderSubscriptionID == "" {
		return &Outcome{Record: existing}, nil
	}

	snap, err := r.gateway.RetrieveSubscription(ctx, existing.ProviderSubscriptionID)
	if err != nil {
		if IsProviderRejected(err) {
			// L'abonnement n'existe plus chez le fournisseur
			utils.LogErrorWithUser(user.ID, err, "Abonnement fournisseur introuvable, passage en CANCELED dans Reconcile")
			if err := CancelEntitlement(existing); err != nil {
				return nil, err
			}
			return &Outcome{Record: existing, Changed: true}, nil
		}
		// ProviderUnavailable : on réessaiera, jamais "non abonné"
		return nil, err
	}

	switch snap.Status {
	case "canceled", "incomplete_expired":
		if err := CancelEntitlement(existing); err != nil {
			return nil, err
		}
		return &Outcome{Record: existing, Changed: true}, nil
	case "past_due", "unpaid":
		if err := MarkPastDue(existing); err != nil {
			return nil, err
		}
		return &Outcome{Record: existing, Changed: true}, nil
	}
	return &Outcome{Record: existing}, nil
}

// selectAuthoritative choisit l'abonnement qualifiant le plus récent
// (départage : borne de fin la plus haute). Le système ne vise qu'un seul
// abonnement actif par client, mais le fournisseur peut renvoyer des
// doublons périmés.
func selectAuthoritative(subs []*SubscriptionSnapshot) *SubscriptionSnapshot {
	qualifying := make([]*SubscriptionSnapshot, 0, len(subs))
	for _, s := range subs {
		if s.Status == "active" || s.Status == "trialing" {
			qualifying = append(qualifying, s)
		}
	}
	if len(qualifying) == 0 {
		return nil
	}
	sort.SliceStable(qualifying, func(i, j int) bool {
		if qualifying[i].Created != qualifying[j].Created {
			return qualifying[i].Created > qualifying[j].Created
		}
		return qualifying[i].CurrentPeriodEnd > qualifying[j].CurrentPeriodEnd
	})
	return qualifying[0]
}

// normalizePeriod convertit les bornes epoch du fournisseur en timestamps,
// avec valeurs par défaut pour tout champ manquant ou incohérent :
// début -> maintenant, fin -> maintenant + 30 jours.
func normalizePeriod(snap *SubscriptionSnapshot, now time.Time) (time.Time, time.Time, *time.Time) {
	start := now
	if snap.CurrentPeriodStart > 0 {
		start = time.Unix(snap.CurrentPeriodStart, 0)
	}

	end := now.Add(defaultPeriod)
	if snap.CurrentPeriodEnd > 0 {
		candidate := time.Unix(snap.CurrentPeriodEnd, 0)
		if candidate.After(start) {
			end = candidate
		}
	}

	var trialEnd *time.Time
	if snap.TrialEnd > 0 {
		t := time.Unix(snap.TrialEnd, 0)
		trialEnd = &t
	}
	return start, end, trialEnd
}
