package models

import (
	"time"
)

type SubscriptionStatus string

const (
	SubscriptionTrialing SubscriptionStatus = "TRIALING"
	SubscriptionActive   SubscriptionStatus = "ACTIVE"
	SubscriptionPastDue  SubscriptionStatus = "PAST_DUE"
	SubscriptionCanceled SubscriptionStatus = "CANCELED"
	SubscriptionPending  SubscriptionStatus = "PENDING"
)

// Subscription est l'enregistrement d'abonnement local : une seule ligne par
// utilisateur (contrainte unique sur user_id), mise à jour par upsert.
type Subscription struct {
	ID                     string             `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	UserID                 string             `json:"userId" gorm:"type:uuid;not null;uniqueIndex"`
	PlanID                 string             `json:"planId"`
	Status                 SubscriptionStatus `json:"status" gorm:"type:varchar(20);default:'PENDING'"`
	CurrentPeriodStart     time.Time          `json:"currentPeriodStart"`
	CurrentPeriodEnd       time.Time          `json:"currentPeriodEnd"`
	TrialEndsAt            *time.Time         `json:"trialEndsAt"`
	CanceledAt             *time.Time         `json:"canceledAt"`
	PaymentProvider        string             `json:"paymentProvider" gorm:"type:varchar(20);default:'stripe'"`
	ProviderSubscriptionID string             `json:"providerSubscriptionId"`
	CreatedAt              time.Time          `json:"createdAt"`
	UpdatedAt              time.Time          `json:"updatedAt"`
}

// IsCurrent indique si le statut donne accès au premium et si la période
// payée n'est pas écoulée. L'override local n'est pas pris en compte ici.
func (s *Subscription) IsCurrent(now time.Time) bool {
	if s == nil {
		return false
	}
	if s.Status != SubscriptionActive && s.Status != SubscriptionTrialing {
		return false
	}
	return s.CurrentPeriodEnd.After(now)
}
