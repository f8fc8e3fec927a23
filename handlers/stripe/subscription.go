package stripe

import (
	"net/http"
	"os"
	"time"

	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/db"
	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/models"
	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/payments"
	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/utils"
	mailsmodels "github.com/Gulzhigitov-Baiaman/nosmoking-sub000/utils/mails-models"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

// Fenêtre de déduplication des sessions de paiement impayées
const checkoutDedupeWindow = 10 * time.Minute

const planName = "NoSmoking Premium"

// Les trois déclencheurs (webhook, activation, poll) partagent le même
// réconciliateur : aucune logique d'écriture propre à un handler.
var (
	gateway      payments.Gateway = payments.NewStripeGateway()
	reconciler                    = payments.NewReconciler(gateway)
	refundEngine                  = payments.NewRefundEngine(gateway)
)

type activateInput struct {
	SessionID string `json:"sessionId"`
}

type checkoutInput struct {
	PriceID string `json:"priceId"`
}

func currentUser(c *gin.Context) (*models.User, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		utils.LogError(nil, "User not authenticated dans currentUser")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return nil, false
	}

	var user models.User
	if err := db.DB.First(&user, "id = ?", userID).Error; err != nil {
		utils.LogErrorWithUser(userID, err, "User not found dans currentUser")
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return nil, false
	}
	return &user, true
}

func providerErrorStatus(err error) int {
	if payments.IsProviderRejected(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// ActivateSubscription vérifie une session de paiement terminée et réconcilie
// l'abonnement de l'utilisateur. Appelé par le client au retour du checkout.
// @Summary Activate a subscription after checkout
// @Description Verify the checkout session belongs to the authenticated user, reconcile the subscription state and record the payment.
// @Tags subscriptions
// @Accept json
// @Produce json
// @Param body body activateInput true "Checkout session ID"
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "success, subscribed, status, trial_end, current_period_end"
// @Failure 400 {object} map[string]interface{} "error: missing or invalid sessionId"
// @Failure 403 {object} map[string]interface{} "error: session does not belong to this user"
// @Failure 500 {object} map[string]interface{} "error: provider unavailable, retry later"
// @Router /activate-subscription [post]
func ActivateSubscription(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var input activateInput
	if err := c.ShouldBindJSON(&input); err != nil || input.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "sessionId is required"})
		return
	}

	sess, err := gateway.RetrieveCheckoutSession(c.Request.Context(), input.SessionID)
	if err != nil {
		utils.LogErrorWithUser(user.ID, err, "Session de checkout illisible dans ActivateSubscription")
		c.JSON(providerErrorStatus(err), gin.H{"success": false, "error": "Unable to verify the checkout session. Please retry."})
		return
	}

	// La session doit appartenir à l'utilisateur authentifié
	owned := (sess.CustomerID != "" && sess.CustomerID == user.StripeCustomerId) ||
		(sess.CustomerEmail != "" && sess.CustomerEmail == user.Email)
	if !owned {
		utils.LogErrorWithUser(user.ID, nil, "Session de checkout d'un autre client dans ActivateSubscription")
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": "This checkout session does not belong to you"})
		return
	}

	if user.StripeCustomerId == "" && sess.CustomerID != "" {
		db.DB.Model(user).Update("stripe_customer_id", sess.CustomerID)
		user.StripeCustomerId = sess.CustomerID
	}

	outcome, err := reconciler.Reconcile(c.Request.Context(), user, payments.TriggerActivation)
	if err != nil {
		utils.LogErrorWithUser(user.ID, err, "Echec de réconciliation dans ActivateSubscription")
		c.JSON(providerErrorStatus(err), gin.H{"success": false, "error": "Activation failed. Please retry."})
		return
	}

	if sess.PaymentStatus == "paid" {
		txID := sess.PaymentIntentID
		if txID == "" {
			txID = sess.ID
		}
		meta := datatypes.JSONMap{"checkout_session": sess.ID}
		if sess.Subscription != nil {
			meta["provider_subscription"] = sess.Subscription.ID
		}
		if _, err := payments.RecordPayment(user.ID, int(sess.AmountTotal), sess.Currency, txID, meta); err != nil {
			utils.LogErrorWithUser(user.ID, err, "Echec d'enregistrement du paiement dans ActivateSubscription")
		}
	}

	db.DB.Model(&models.CheckoutAttempt{}).
		Where("session_id = ?", sess.ID).
		Update("status", models.CheckoutCompleted)

	record := outcome.Record
	if outcome.Changed && record != nil && record.IsCurrent(time.Now()) {
		go mailsmodels.SubscriptionConfirmation(user.Email, record.CurrentPeriodEnd)
	}

	resp := gin.H{
		"success":    true,
		"subscribed": payments.IsEntitled(record, user.PremiumOverride, time.Now()),
	}
	if record != nil {
		resp["status"] = record.Status
		resp["trial_end"] = record.TrialEndsAt
		resp["current_period_end"] = record.CurrentPeriodEnd
	}
	utils.LogSuccessWithUser(user.ID, "Abonnement activé avec succès dans ActivateSubscription")
	c.JSON(http.StatusOK, resp)
}

// CheckSubscription réconcilie puis renvoie le verdict d'entitlement.
// Prévu pour le poll périodique du client (intervalle documenté : 60s) :
// une lecture vide ne rétrograde jamais un abonnement actif.
// @Summary Check the current subscription state
// @Description Reconcile against the payment provider and return the entitlement verdict. Intended for periodic client polling.
// @Tags subscriptions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "subscribed, plan_name, subscription_end"
// @Failure 500 {object} map[string]interface{} "error: provider unavailable, next poll supersedes"
// @Router /check-subscription [post]
func CheckSubscription(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	outcome, err := reconciler.Reconcile(c.Request.Context(), user, payments.TriggerPoll)
	if err != nil {
		// Echec silencieux côté client : le prochain poll prendra le relais
		utils.LogErrorWithUser(user.ID, err, "Echec de réconciliation dans CheckSubscription")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Subscription check unavailable"})
		return
	}

	now := time.Now()
	subscribed := payments.IsEntitled(outcome.Record, user.PremiumOverride, now)

	resp := gin.H{
		"subscribed":       subscribed,
		"plan_name":        nil,
		"subscription_end": nil,
	}
	if outcome.Record != nil && subscribed {
		resp["plan_name"] = planName
		resp["subscription_end"] = outcome.Record.CurrentPeriodEnd
	} else if subscribed {
		// Override local sans abonnement fournisseur
		resp["plan_name"] = planName
	}
	c.JSON(http.StatusOK, resp)
}

// GetSubscription renvoie l'enregistrement local sans appel fournisseur.
// @Summary Read the local subscription record
// @Description Return the stored entitlement record without a provider round trip.
// @Tags subscriptions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Subscription
// @Failure 404 {object} map[string]interface{} "error: no subscription record"
// @Router /subscription [get]
func GetSubscription(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	sub, err := payments.FindEntitlement(user.ID)
	if err != nil {
		utils.LogErrorWithUser(user.ID, err, "Erreur de lecture de l'abonnement dans GetSubscription")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error fetching subscription"})
		return
	}
	if sub == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No subscription record"})
		return
	}
	c.JSON(http.StatusOK, sub)
}

// CreateCheckout démarre une session de paiement pour un plan récurrent.
// @Summary Create a checkout session
// @Description Validate the price is a recurring plan, guard against duplicate active subscriptions and duplicate in-flight unpaid sessions, then return the provider checkout URL.
// @Tags subscriptions
// @Accept json
// @Produce json
// @Param body body checkoutInput true "Price ID of the recurring plan"
// @Security BearerAuth
// @Success 200 {object} map[string]string "url: provider checkout URL"
// @Failure 400 {object} map[string]interface{} "error: missing priceId, non-recurring plan or duplicate subscription"
// @Failure 500 {object} map[string]interface{} "error: provider error"
// @Router /create-checkout [post]
func CreateCheckout(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var input checkoutInput
	if err := c.ShouldBindJSON(&input); err != nil || input.PriceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "priceId is required"})
		return
	}

	// Garde anti-doublon AVANT tout appel fournisseur : pas de mutation
	// côté Stripe si un abonnement actif existe déjà
	existing, err := payments.FindEntitlement(user.ID)
	if err != nil {
		utils.LogErrorWithUser(user.ID, err, "Erreur de lecture de l'abonnement dans CreateCheckout")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error checking existing subscription"})
		return
	}
	if existing.IsCurrent(time.Now()) {
		utils.LogErrorWithUser(user.ID, nil, "Abonnement déjà actif dans CreateCheckout")
		c.JSON(http.StatusBadRequest, gin.H{"error": "You already have an active subscription. Use the customer portal to manage it."})
		return
	}

	price, err := gateway.RetrievePrice(c.Request.Context(), input.PriceID)
	if err != nil {
		utils.LogErrorWithUser(user.ID, err, "Prix illisible dans CreateCheckout")
		c.JSON(providerErrorStatus(err), gin.H{"error": "Unable to verify the selected plan"})
		return
	}
	if !price.Recurring {
		c.JSON(http.StatusBadRequest, gin.H{"error": "The selected price is not a recurring plan"})
		return
	}

	// Déduplication des sessions impayées récentes : renvoyer l'URL
	// existante plutôt que d'empiler les sessions
	var attempt models.CheckoutAttempt
	err = db.DB.Where("user_id = ? AND price_id = ? AND status = ? AND created_at > ?",
		user.ID, input.PriceID, models.CheckoutCreated, time.Now().Add(-checkoutDedupeWindow)).
		Order("created_at DESC").
		First(&attempt).Error
	if err == nil {
		utils.LogSuccessWithUser(user.ID, "Session de checkout existante réutilisée dans CreateCheckout")
		c.JSON(http.StatusOK, gin.H{"url": attempt.URL})
		return
	}

	// Les sessions impayées sorties de la fenêtre ne seront plus réutilisées :
	// on les marque expirées avant d'en créer une nouvelle
	if err := db.DB.Model(&models.CheckoutAttempt{}).
		Where("user_id = ? AND status = ? AND created_at <= ?",
			user.ID, models.CheckoutCreated, time.Now().Add(-checkoutDedupeWindow)).
		Update("status", models.CheckoutExpired).Error; err != nil {
		utils.LogErrorWithUser(user.ID, err, "Echec d'expiration des tentatives périmées dans CreateCheckout")
	}

	customerID := user.StripeCustomerId
	if customerID == "" {
		cust, err := gateway.FetchCustomerByEmail(c.Request.Context(), user.Email)
		if err == payments.ErrCustomerNotFound {
			cust, err = gateway.CreateCustomer(c.Request.Context(), user.Email, user.UserName)
		}
		if err != nil {
			utils.LogErrorWithUser(user.ID, err, "Erreur lors de la création du client Stripe dans CreateCheckout")
			c.JSON(providerErrorStatus(err), gin.H{"error": "Erreur lors de la création du client Stripe"})
			return
		}
		db.DB.Model(user).Update("stripe_customer_id", cust.ID)
		customerID = cust.ID
		user.StripeCustomerId = cust.ID
	}

	frontendURL := os.Getenv("FRONTEND_URL")
	sess, err := gateway.CreateCheckoutSession(c.Request.Context(), customerID, input.PriceID,
		frontendURL+"/premium/success?session_id={CHECKOUT_SESSION_ID}", frontendURL+"/premium/cancel", user.ID)
	if err != nil {
		utils.LogErrorWithUser(user.ID, err, "Erreur lors de la création de la session Stripe dans CreateCheckout")
		c.JSON(providerErrorStatus(err), gin.H{"error": "Erreur lors de la création de la session de paiement"})
		return
	}

	if err := db.DB.Create(&models.CheckoutAttempt{
		UserID:    user.ID,
		SessionID: sess.ID,
		PriceID:   input.PriceID,
		Status:    models.CheckoutCreated,
		URL:       sess.URL,
	}).Error; err != nil {
		utils.LogErrorWithUser(user.ID, err, "Echec d'enregistrement de la tentative de checkout dans CreateCheckout")
	}

	utils.LogSuccessWithUser(user.ID, "Session Stripe de souscription créée avec succès dans CreateCheckout")
	c.JSON(http.StatusOK, gin.H{"url": sess.URL})
}

// CustomerPortal renvoie l'URL du portail de gestion hébergé par le fournisseur.
// @Summary Get the customer portal URL
// @Description Return a provider-hosted subscription management URL for the authenticated user.
// @Tags subscriptions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string "url: provider portal URL"
// @Failure 400 {object} map[string]interface{} "error: no billing account"
// @Router /customer-portal [post]
func CustomerPortal(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	if user.StripeCustomerId == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No billing account for this user"})
		return
	}

	url, err := gateway.CustomerPortalURL(c.Request.Context(), user.StripeCustomerId, os.Getenv("FRONTEND_URL")+"/settings")
	if err != nil {
		utils.LogErrorWithUser(user.ID, err, "Erreur lors de la création du portail client dans CustomerPortal")
		c.JSON(providerErrorStatus(err), gin.H{"error": "Unable to open the customer portal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// HandleSubscriptionCancel annule l'abonnement et applique la politique de
// remboursement. L'annulation fait foi même si le remboursement échoue.
// @Summary Cancel the subscription
// @Description Cancel the provider subscription, mark the local record canceled and evaluate the refund policy (72h grace window, trialing always refunded).
// @Tags subscriptions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "success, refunded, message"
// @Failure 400 {object} map[string]interface{} "error: no active subscription"
// @Failure 500 {object} map[string]interface{} "error: provider unavailable, retry later"
// @Router /handle-subscription-cancel [post]
func HandleSubscriptionCancel(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	sub, err := payments.FindEntitlement(user.ID)
	if err != nil {
		utils.LogErrorWithUser(user.ID, err, "Erreur de lecture de l'abonnement dans HandleSubscriptionCancel")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Error fetching subscription"})
		return
	}
	if sub == nil || sub.Status == models.SubscriptionCanceled {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "No active subscription to cancel"})
		return
	}

	wasTrialing := sub.Status == models.SubscriptionTrialing

	if sub.ProviderSubscriptionID != "" {
		err := gateway.CancelSubscription(c.Request.Context(), sub.ProviderSubscriptionID)
		if err != nil && payments.IsProviderUnavailable(err) {
			utils.LogErrorWithUser(user.ID, err, "Fournisseur indisponible dans HandleSubscriptionCancel")
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Cancellation temporarily unavailable. Please retry."})
			return
		}
		if err != nil {
			// Rejet définitif (déjà annulé côté fournisseur) :
			// l'annulation locale fait foi, on continue
			utils.LogErrorWithUser(user.ID, err, "Annulation rejetée par le fournisseur dans HandleSubscriptionCancel")
		}
	}

	if err := payments.CancelEntitlement(sub); err != nil {
		utils.LogErrorWithUser(user.ID, err, "Erreur lors de la mise à jour du statut dans HandleSubscriptionCancel")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Error when updating the subscription status"})
		return
	}

	decision := refundEngine.EvaluateRefund(c.Request.Context(), user.ID, wasTrialing, time.Now())

	go mailsmodels.CancellationConfirmation(user.Email, sub.CurrentPeriodEnd)
	if decision.Refunded {
		go mailsmodels.RefundNotice(user.Email, decision.Amount, decision.Currency)
	}

	var message string
	switch {
	case decision.Refunded:
		message = "Subscription canceled. Your last payment has been refunded."
	case decision.Failed:
		message = "Subscription canceled. The refund could not be processed automatically, our team has been notified."
	default:
		message = "Subscription canceled. You keep access until the end of the paid period."
	}

	utils.LogSuccessWithUser(user.ID, "Abonnement annulé avec succès dans HandleSubscriptionCancel")
	c.JSON(http.StatusOK, gin.H{"success": true, "refunded": decision.Refunded, "message": message})
}
