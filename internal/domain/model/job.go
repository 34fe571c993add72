package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// JobListing is an employer's posting gated by a minimum reputation.
type JobListing struct {
	ID              string          `gorm:"primaryKey;size:36" json:"id"`
	EmployerID      string          `gorm:"size:36;not null;index" json:"employer_id"`
	FreelancerID    string          `gorm:"size:36;index" json:"freelancer_id,omitempty"`
	Title           string          `gorm:"size:256;not null" json:"title"`
	Description     string          `gorm:"type:text" json:"description"`
	JobType         string          `gorm:"size:32" json:"job_type"`
	MinReputation   int64           `gorm:"not null;default:0;index" json:"min_reputation"`
	PaymentAmount   decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"payment_amount"`
	PaymentCurrency string          `gorm:"size:16;not null;default:APT" json:"payment_currency"`
	EscrowAmount    decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"escrow_amount"`
	Status          JobStatus       `gorm:"size:16;not null;index" json:"status"`
	Ruling          Ruling          `gorm:"size:32" json:"ruling,omitempty"`
	// ReputationApplied flips once the completion or dispute deltas reached the ledger.
	ReputationApplied bool      `gorm:"not null;default:false" json:"reputation_applied"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName pins the job table name.
func (JobListing) TableName() string { return "job_listings" }

// JobFilter narrows job listing queries.
type JobFilter struct {
	Status JobStatus
	// MaxMinReputation keeps jobs whose gate is at or below this score (eligibility).
	MaxMinReputation *int64
	// MinReputation keeps jobs whose gate is at least this value.
	MinReputation *int64
	EmployerID    string
	Limit         int
	Offset        int
}
