package models

import (
	"time"
)

// UnlockCode est un code promotionnel à usage unique, stocké haché côté
// serveur. Remplace l'ancien secret de déblocage embarqué dans le client.
type UnlockCode struct {
	ID         string     `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	CodeHash   string     `json:"-" gorm:"uniqueIndex;not null"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	RedeemedBy *string    `json:"redeemedBy" gorm:"type:uuid"`
	RedeemedAt *time.Time `json:"redeemedAt"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}
