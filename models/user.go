package models

import (
	"database/sql"
	"time"
)

type Role string

// Définir les valeurs possibles pour le rôle
const (
	AdminRole Role = "ADMIN"
	UserRole  Role = "USER"
)

type User struct {
	ID               string       `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	Email            string       `json:"email" gorm:"uniqueIndex" binding:"required,email"`
	Password         string       `json:"password,omitempty" binding:"required,min=6"`
	UserName         string       `json:"username"`
	Role             Role         `json:"role" gorm:"type:varchar(20);default:'USER'"`
	StripeCustomerId string       `json:"stripeCustomerId"`
	PremiumOverride  bool         `json:"premiumOverride" gorm:"default:false"`
	QuitDate         *time.Time   `json:"quitDate"`
	CigarettesPerDay int          `json:"cigarettesPerDay"`
	PackPrice        int          `json:"packPrice"`
	EmailVerifiedAt  sql.NullTime `json:"emailVerifiedAt"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

type UserCreate struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type OnboardingUpdate struct {
	QuitDate         *time.Time `json:"quitDate"`
	CigarettesPerDay int        `json:"cigarettesPerDay"`
	PackPrice        int        `json:"packPrice"`
}
