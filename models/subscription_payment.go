package models

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// SubscriptionPayment est un journal en append-only : jamais supprimé,
// seul le statut peut changer après insertion (remboursement).
type SubscriptionPayment struct {
	ID            string            `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	UserID        string            `json:"userId" gorm:"type:uuid;not null;index"`
	Amount        int               `json:"amount"`
	Currency      string            `json:"currency" gorm:"type:varchar(3);default:'eur'"`
	Status        PaymentStatus     `json:"status" gorm:"type:varchar(20);default:'COMPLETED'"`
	TransactionID string            `json:"transactionId" gorm:"uniqueIndex;not null"`
	Metadata      datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
	PaidAt        time.Time         `json:"paidAt"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}
