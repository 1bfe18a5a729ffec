package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	CreditSourceStripe = "stripe"
	CreditSourceGrant  = "grant"
)

// CreditPurchase is one lot of credits. RemainingCredits never drops below 0.
type CreditPurchase struct {
	ID               string     `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID           string     `gorm:"column:user_id;type:uuid;index" json:"user_id"`
	Amount           int        `gorm:"column:amount;type:integer" json:"amount"`
	RemainingCredits int        `gorm:"column:remaining_credits;type:integer" json:"remaining_credits"`
	Source           string     `gorm:"column:source;type:text" json:"source"`
	ExternalRef      *string    `gorm:"column:external_ref;type:text;uniqueIndex" json:"external_ref,omitempty"`
	ExpiresAt        *time.Time `gorm:"column:expires_at;type:timestamptz" json:"expires_at,omitempty"`
	CreatedAt        time.Time  `gorm:"column:created_at;type:timestamptz" json:"created_at"`
}

func (CreditPurchase) TableName() string { return "credit_purchases" }

// Usable reports whether the lot still counts toward the available balance.
func (p *CreditPurchase) Usable(now time.Time) bool {
	if p.RemainingCredits <= 0 {
		return false
	}
	return p.ExpiresAt == nil || p.ExpiresAt.After(now)
}

// CreditUsage is one debit, tied to the scan it paid for.
type CreditUsage struct {
	ID              string         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID          string         `gorm:"column:user_id;type:uuid;index" json:"user_id"`
	PurchaseID      string         `gorm:"column:purchase_id;type:uuid" json:"purchase_id"`
	ScanID          string         `gorm:"column:scan_id;type:uuid;uniqueIndex" json:"scan_id"`
	Amount          int            `gorm:"column:amount;type:integer" json:"amount"`
	RequestPayload  datatypes.JSON `gorm:"column:request_payload;type:jsonb" json:"request_payload,omitempty"`
	ResponsePayload datatypes.JSON `gorm:"column:response_payload;type:jsonb" json:"response_payload,omitempty"`
	CreatedAt       time.Time      `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (CreditUsage) TableName() string { return "credit_usages" }

type CreditBalance struct {
	Available int              `json:"available"`
	Lots      []CreditPurchase `json:"lots"`
}
