package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is a wallet-identified account. ReputationScore and Version change only
// through ledger application.
type User struct {
	ID              string          `gorm:"primaryKey;size:36" json:"id"`
	WalletAddress   string          `gorm:"size:128;uniqueIndex;not null" json:"wallet_address"`
	Username        string          `gorm:"size:64" json:"username,omitempty"`
	ReputationScore int64           `gorm:"not null" json:"reputation_score"`
	Version         int64           `gorm:"not null;default:0" json:"-"`
	JobsCompleted   int64           `gorm:"not null;default:0" json:"jobs_completed"`
	TotalEarnings   decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"total_earnings"`
	IsVerified      bool            `gorm:"not null;default:false" json:"is_verified"`
	IsActive        bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName pins the user table name.
func (User) TableName() string { return "users" }

// UserStats aggregates a user's credentials.
type UserStats struct {
	UserID               string  `json:"user_id"`
	ReputationScore      int64   `json:"reputation_score"`
	JobsCompleted        int64   `json:"jobs_completed"`
	TotalEarnings        string  `json:"total_earnings"`
	SkillBadges          int     `json:"skill_badges_count"`
	EndorsementsReceived int     `json:"endorsements_received"`
	AvgEndorsementWeight float64 `json:"avg_endorsement_weight"`
	PendingLedgerUpdates int     `json:"pending_ledger_updates"`
}
