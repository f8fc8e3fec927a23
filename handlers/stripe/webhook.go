package stripe

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/db"
	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/models"
	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/payments"
	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/utils"
	mailsmodels "github.com/Gulzhigitov-Baiaman/nosmoking-sub000/utils/mails-models"

	"github.com/gin-gonic/gin"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/datatypes"
)

// StripeWebhookHandler reçoit les événements poussés par Stripe. Non
// authentifié mais vérifié par signature. Doit répondre 200 rapidement ;
// un type d'événement inconnu est un no-op logué, pas une erreur.
func StripeWebhookHandler(c *gin.Context) {
	const MaxBodyBytes = int64(65536)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Impossible de lire le corps de la requête"})
		return
	}

	secret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	if secret == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook secret non configuré"})
		return
	}

	sig := c.GetHeader("Stripe-Signature")
	event, err := webhook.ConstructEvent(payload, sig, secret)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Vérification de la signature Stripe échouée"})
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		handleCheckoutSessionCompleted(c, event)
	case "customer.subscription.updated":
		handleSubscriptionUpdated(c, event)
	case "customer.subscription.deleted":
		handleSubscriptionDeleted(c, event)
	case "invoice.payment_succeeded":
		handleInvoicePaymentSucceeded(c, event)
	case "invoice.payment_failed":
		handleInvoicePaymentFailed(c, event)
	default:
		utils.LogInfo("Événement Stripe ignoré: " + string(event.Type))
		c.JSON(http.StatusOK, gin.H{"message": "Événement ignoré"})
	}
}

// userForCustomer retrouve l'utilisateur local d'un customer Stripe, avec
// repli sur le ClientReferenceID (notre user_id posé à la création de session).
func userForCustomer(customerID string, clientReferenceID string) (*models.User, bool) {
	var user models.User
	if customerID != "" {
		if err := db.DB.First(&user, "stripe_customer_id = ?", customerID).Error; err == nil {
			return &user, true
		}
	}
	if clientReferenceID != "" {
		if err := db.DB.First(&user, "id = ?", clientReferenceID).Error; err == nil {
			return &user, true
		}
	}
	return nil, false
}

func handleCheckoutSessionCompleted(c *gin.Context, event stripe.Event) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Erreur parsing CheckoutSession"})
		return
	}

	var customerID string
	if session.Customer != nil {
		customerID = session.Customer.ID
	}

	user, found := userForCustomer(customerID, session.ClientReferenceID)
	if !found {
		// 200 quand même : Stripe ne doit pas redélivrer indéfiniment
		utils.LogError(nil, "Utilisateur introuvable pour le customer "+utils.TruncateID(customerID)+" dans handleCheckoutSessionCompleted")
		c.JSON(http.StatusOK, gin.H{"message": "Utilisateur non trouvé pour ce customer"})
		return
	}

	if user.StripeCustomerId == "" && customerID != "" {
		db.DB.Model(user).Update("stripe_customer_id", customerID)
		user.StripeCustomerId = customerID
	}

	outcome, err := reconciler.Reconcile(c.Request.Context(), user, payments.TriggerWebhook)
	if err != nil {
		if payments.IsProviderUnavailable(err) {
			// Stripe redélivrera l'événement
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Fournisseur indisponible, réessai attendu"})
			return
		}
		utils.LogErrorWithUser(user.ID, err, "Echec de réconciliation dans handleCheckoutSessionCompleted")
		c.JSON(http.StatusOK, gin.H{"message": "Réconciliation impossible pour cet événement"})
		return
	}

	if session.PaymentStatus == "paid" {
		txID := session.ID
		if session.PaymentIntent != nil {
			txID = session.PaymentIntent.ID
		}
		meta := datatypes.JSONMap{"checkout_session": session.ID}
		if session.Subscription != nil {
			meta["provider_subscription"] = session.Subscription.ID
		}
		if _, err := payments.RecordPayment(user.ID, int(session.AmountTotal), string(session.Currency), txID, meta); err != nil {
			utils.LogErrorWithUser(user.ID, err, "Erreur création du paiement dans handleCheckoutSessionCompleted")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur création du paiement"})
			return
		}
	}

	db.DB.Model(&models.CheckoutAttempt{}).
		Where("session_id = ?", session.ID).
		Update("status", models.CheckoutCompleted)

	if outcome.Changed && outcome.Record != nil && outcome.Record.IsCurrent(time.Now()) {
		go mailsmodels.SubscriptionConfirmation(user.Email, outcome.Record.CurrentPeriodEnd)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Abonnement réconcilié via checkout.session.completed"})
}

func handleSubscriptionUpdated(c *gin.Context, event stripe.Event) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Erreur parsing Subscription"})
		return
	}

	var customerID string
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}

	user, found := userForCustomer(customerID, "")
	if !found {
		c.JSON(http.StatusOK, gin.H{"message": "Utilisateur non trouvé pour ce customer"})
		return
	}

	_, err := reconciler.Reconcile(c.Request.Context(), user, payments.TriggerWebhook)
	if err != nil {
		if payments.IsProviderUnavailable(err) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Fournisseur indisponible, réessai attendu"})
			return
		}
		utils.LogErrorWithUser(user.ID, err, "Echec de réconciliation dans handleSubscriptionUpdated")
	}
	c.JSON(http.StatusOK, gin.H{"message": "Abonnement réconcilié via customer.subscription.updated"})
}

func handleSubscriptionDeleted(c *gin.Context, event stripe.Event) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Erreur parsing Subscription"})
		return
	}

	var record models.Subscription
	if err := db.DB.First(&record, "provider_subscription_id = ?", sub.ID).Error; err != nil {
		c.JSON(http.StatusOK, gin.H{"message": "Subscription locale non trouvée"})
		return
	}

	if record.Status == models.SubscriptionCanceled {
		// Déjà annulé (annulation explicite ou événement redélivré) : no-op
		c.JSON(http.StatusOK, gin.H{"message": "Subscription déjà annulée"})
		return
	}

	wasTrialing := record.Status == models.SubscriptionTrialing

	if err := payments.CancelEntitlement(&record); err != nil {
		utils.LogErrorWithUser(record.UserID, err, "Erreur lors de la mise à jour du statut dans handleSubscriptionDeleted")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur mise à jour subscription"})
		return
	}

	decision := refundEngine.EvaluateRefund(c.Request.Context(), record.UserID, wasTrialing, time.Now())

	var user models.User
	if err := db.DB.First(&user, "id = ?", record.UserID).Error; err == nil {
		go mailsmodels.CancellationConfirmation(user.Email, record.CurrentPeriodEnd)
		if decision.Refunded {
			go mailsmodels.RefundNotice(user.Email, decision.Amount, decision.Currency)
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "Subscription annulée via customer.subscription.deleted", "refunded": decision.Refunded})
}

func handleInvoicePaymentSucceeded(c *gin.Context, event stripe.Event) {
	var invoiceData map[string]interface{}
	if err := json.Unmarshal(event.Data.Raw, &invoiceData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Erreur parsing Invoice"})
		return
	}

	stripeSubID := invoiceSubscriptionID(invoiceData)
	if stripeSubID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Subscription ID invalide"})
		return
	}

	var record models.Subscription
	if err := db.DB.First(&record, "provider_subscription_id = ?", stripeSubID).Error; err != nil {
		c.JSON(http.StatusOK, gin.H{"message": "Subscription locale non trouvée"})
		return
	}

	var paymentIntentID string
	if pi, ok := invoiceData["payment_intent"].(string); ok {
		paymentIntentID = pi
	}

	var amount int
	if amountPaid, ok := invoiceData["amount_paid"].(float64); ok {
		amount = int(amountPaid)
	} else {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Montant invalide"})
		return
	}

	currency := "eur"
	if cur, ok := invoiceData["currency"].(string); ok && cur != "" {
		currency = cur
	}

	txID := paymentIntentID
	if txID == "" {
		// Certaines factures n'exposent pas le payment_intent : l'id de
		// facture est tout aussi stable pour la déduplication
		if invID, ok := invoiceData["id"].(string); ok {
			txID = invID
		}
	}

	created, err := payments.RecordPayment(record.UserID, amount, currency, txID,
		datatypes.JSONMap{"provider_subscription": stripeSubID, "invoice": invoiceData["id"]})
	if err != nil {
		utils.LogErrorWithUser(record.UserID, err, "Erreur création du paiement dans handleInvoicePaymentSucceeded")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur création du paiement"})
		return
	}
	if !created {
		c.JSON(http.StatusOK, gin.H{"message": "Paiement déjà enregistré"})
		return
	}

	// Rafraîchir les bornes de période (rollover de renouvellement)
	var user models.User
	if err := db.DB.First(&user, "id = ?", record.UserID).Error; err == nil {
		if _, err := reconciler.Reconcile(c.Request.Context(), &user, payments.TriggerWebhook); err != nil {
			utils.LogErrorWithUser(user.ID, err, "Echec de réconciliation dans handleInvoicePaymentSucceeded")
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "Paiement enregistré via invoice.payment_succeeded"})
}

func handleInvoicePaymentFailed(c *gin.Context, event stripe.Event) {
	var invoiceData map[string]interface{}
	if err := json.Unmarshal(event.Data.Raw, &invoiceData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Erreur parsing Invoice"})
		return
	}

	stripeSubID := invoiceSubscriptionID(invoiceData)
	if stripeSubID == "" {
		c.JSON(http.StatusOK, gin.H{"message": "Facture sans subscription, ignorée"})
		return
	}

	var record models.Subscription
	if err := db.DB.First(&record, "provider_subscription_id = ?", stripeSubID).Error; err != nil {
		c.JSON(http.StatusOK, gin.H{"message": "Subscription locale non trouvée"})
		return
	}

	if record.Status == models.SubscriptionCanceled {
		c.JSON(http.StatusOK, gin.H{"message": "Subscription déjà annulée"})
		return
	}

	if err := payments.MarkPastDue(&record); err != nil {
		utils.LogErrorWithUser(record.UserID, err, "Erreur lors du passage en PAST_DUE dans handleInvoicePaymentFailed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur mise à jour subscription"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Subscription en échec de paiement via invoice.payment_failed"})
}

// invoiceSubscriptionID extrait l'id d'abonnement d'une facture. Depuis
// l'API Basil il vit sous parent.subscription_details, avec repli sur
// l'ancien champ subscription.
func invoiceSubscriptionID(invoiceData map[string]interface{}) string {
	if parent, ok := invoiceData["parent"].(map[string]interface{}); ok {
		if subDetails, ok := parent["subscription_details"].(map[string]interface{}); ok {
			if sub, ok := subDetails["subscription"].(string); ok && sub != "" {
				return sub
			}
		}
	}
	if v, ok := invoiceData["subscription"]; ok && v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}
