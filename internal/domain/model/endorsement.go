package model

import "time"

// Endorsement is a directed edge from an endorser to a skill badge.
// EndorserReputation and Weight are snapshotted at creation and never recomputed.
type Endorsement struct {
	ID                 string       `gorm:"primaryKey;size:36" json:"id"`
	EndorserID         string       `gorm:"size:36;not null;uniqueIndex:idx_endorsement_pair,priority:1" json:"endorser_id"`
	EndorsedID         string       `gorm:"size:36;not null;index" json:"endorsed_id"`
	SkillBadgeID       string       `gorm:"size:36;not null;uniqueIndex:idx_endorsement_pair,priority:2" json:"skill_badge_id"`
	Message            string       `gorm:"size:1024" json:"message,omitempty"`
	EndorserReputation int64        `gorm:"not null" json:"endorser_reputation"`
	Weight             float64      `gorm:"not null" json:"weight"`
	Delta              int64        `gorm:"not null" json:"delta"`
	LedgerStatus       LedgerStatus `gorm:"size:16;not null;index" json:"ledger_status"`
	LedgerError        string       `gorm:"size:512" json:"ledger_error,omitempty"`
	TransactionHash    *string      `gorm:"size:128" json:"transaction_hash,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// TableName pins the endorsement table name.
func (Endorsement) TableName() string { return "endorsements" }

// SourceRef is the ledger idempotency key for this endorsement's delta.
func (e Endorsement) SourceRef() string { return "endorsement:" + e.ID }
