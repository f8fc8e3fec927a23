package payments

import (
	"context"
	"time"

	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/db"
	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/models"
	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/utils"
)

// RefundGraceWindow : un paiement remonté à moins de 72h de l'annulation est
// remboursé. Au-delà, l'accès court jusqu'à la fin de la période payée.
const RefundGraceWindow = 72 * time.Hour

type RefundDecision struct {
	Refunded bool
	Failed   bool
	Amount   int
	Currency string
	Reason   string
}

// RefundEngine décide, sur un événement d'annulation, si un remboursement est
// dû, et l'émet. L'échec d'un remboursement ne remet jamais en cause
// l'annulation : il est logué et signalé, pas réessayé ici.
type RefundEngine struct {
	gateway Gateway
}

func NewRefundEngine(g Gateway) *RefundEngine {
	return &RefundEngine{gateway: g}
}

// EvaluateRefund applique la règle : dernier statut TRIALING avant annulation,
// OU dernier paiement réussi dans la fenêtre de grâce -> remboursement du
// dernier paiement.
func (e *RefundEngine) EvaluateRefund(ctx context.Context, userID string, wasTrialing bool, now time.Time) RefundDecision {
	payment, err := LatestCompletedPayment(userID)
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Erreur de lecture du dernier paiement dans EvaluateRefund")
		return RefundDecision{Refunded: false, Failed: true, Reason: "payment_lookup_failed"}
	}
	if payment == nil {
		return RefundDecision{Refunded: false, Reason: "no_payment"}
	}

	withinWindow := now.Sub(payment.PaidAt) < RefundGraceWindow
	if !wasTrialing && !withinWindow {
		return RefundDecision{Refunded: false, Reason: "outside_grace_window"}
	}

	_, err = e.gateway.IssueRefund(ctx, payment.TransactionID, "requested_by_customer")
	if err != nil {
		// L'annulation fait foi quoi qu'il arrive : on signale l'échec aux
		// opérateurs, la reprise est un processus manuel séparé.
		utils.LogErrorWithUser(userID, err, "Echec d'émission du remboursement dans EvaluateRefund")
		return RefundDecision{Refunded: false, Failed: true, Reason: "refund_failed"}
	}

	if err := db.DB.Model(payment).Update("status", models.PaymentRefunded).Error; err != nil {
		utils.LogErrorWithUser(userID, err, "Remboursement émis mais statut du paiement non mis à jour dans EvaluateRefund")
	}

	reason := "within_grace_window"
	if wasTrialing {
		reason = "trialing"
	}
	return RefundDecision{
		Refunded: true,
		Amount:   payment.Amount,
		Currency: payment.Currency,
		Reason:   reason,
	}
}
