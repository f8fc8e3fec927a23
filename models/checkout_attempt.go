package models

import (
	"time"
)

type CheckoutAttemptStatus string

const (
	CheckoutCreated   CheckoutAttemptStatus = "CREATED"
	CheckoutCompleted CheckoutAttemptStatus = "COMPLETED"
	CheckoutExpired   CheckoutAttemptStatus = "EXPIRED"
)

// CheckoutAttempt trace les sessions de paiement créées, pour la fenêtre de
// déduplication des sessions impayées (10 minutes).
type CheckoutAttempt struct {
	ID        string                `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	UserID    string                `json:"userId" gorm:"type:uuid;not null;index"`
	SessionID string                `json:"sessionId" gorm:"uniqueIndex;not null"`
	PriceID   string                `json:"priceId"`
	Status    CheckoutAttemptStatus `json:"status" gorm:"type:varchar(20);default:'CREATED'"`
	URL       string                `json:"url"`
	CreatedAt time.Time             `json:"createdAt"`
	UpdatedAt time.Time             `json:"updatedAt"`
}
