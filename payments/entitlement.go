package payments

import (
	"errors"
	"time"

	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/db"
	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/models"
	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/utils"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// IsEntitled compose le verdict du réconciliateur avec l'override local
// (code promotionnel racheté) par un OU logique.
func IsEntitled(sub *models.Subscription, override bool, now time.Time) bool {
	return sub.IsCurrent(now) || override
}

// FindEntitlement charge l'enregistrement d'abonnement d'un utilisateur.
// Retourne (nil, nil) s'il n'en a pas.
func FindEntitlement(userID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := db.DB.Where("user_id = ?", userID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// RecordPayment insère un paiement dans le journal, dédupliqué sur
// transaction_id. Retourne vrai si une ligne a été créée.
func RecordPayment(userID string, amount int, currency string, transactionID string, metadata datatypes.JSONMap) (bool, error) {
	if transactionID == "" {
		utils.LogErrorWithUser(userID, nil, "Paiement sans transaction_id ignoré dans RecordPayment")
		return false, nil
	}

	var existing models.SubscriptionPayment
	if err := db.DB.First(&existing, "transaction_id = ?", transactionID).Error; err == nil {
		// Paiement déjà enregistré : no-op, l'idempotence prime
		return false, nil
	}

	payment := models.SubscriptionPayment{
		UserID:        userID,
		Amount:        amount,
		Currency:      currency,
		Status:        models.PaymentCompleted,
		TransactionID: transactionID,
		Metadata:      metadata,
		PaidAt:        time.Now(),
	}
	if err := db.DB.Create(&payment).Error; err != nil {
		return false, err
	}
	return true, nil
}

// LatestCompletedPayment retourne le dernier paiement réussi d'un utilisateur,
// ou (nil, nil) s'il n'y en a aucun.
func LatestCompletedPayment(userID string) (*models.SubscriptionPayment, error) {
	var payment models.SubscriptionPayment
	err := db.DB.Where("user_id = ? AND status = ?", userID, models.PaymentCompleted).
		Order("paid_at DESC").
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// CancelEntitlement passe l'enregistrement en CANCELED et tamponne canceled_at.
// L'enregistrement n'est jamais supprimé : l'historique sert au calcul de
// la fenêtre de remboursement.
func CancelEntitlement(sub *models.Subscription) error {
	now := time.Now()
	err := db.DB.Model(sub).Updates(map[string]interface{}{
		"status":      models.SubscriptionCanceled,
		"canceled_at": now,
	}).Error
	if err != nil {
		return err
	}
	sub.Status = models.SubscriptionCanceled
	sub.CanceledAt = &now
	return nil
}

// MarkPastDue : paiement de renouvellement échoué. Les bornes de période
// sont conservées, seule la prétention à l'accès change.
func MarkPastDue(sub *models.Subscription) error {
	err := db.DB.Model(sub).Update("status", models.SubscriptionPastDue).Error
	if err != nil {
		return err
	}
	sub.Status = models.SubscriptionPastDue
	return nil
}
