package model

import (
	"time"

	"gorm.io/datatypes"
)

// SkillBadge is a non-transferable credential for one verified skill.
// Evidence holds the encoded verification payload; see package verification.
type SkillBadge struct {
	ID               string           `gorm:"primaryKey;size:36" json:"id"`
	UserID           string           `gorm:"size:36;not null;index" json:"user_id"`
	SkillID          string           `gorm:"size:64;not null" json:"skill_id"`
	Level            Level            `gorm:"size:16;not null" json:"level"`
	VerificationType VerificationType `gorm:"size:16;not null" json:"verification_type"`
	Evidence         datatypes.JSON   `json:"evidence,omitempty"`
	// On-chain issuance references, absent until the chain confirms.
	TransactionHash  *string   `gorm:"size:128" json:"transaction_hash,omitempty"`
	TokenID          *string   `gorm:"size:128" json:"token_id,omitempty"`
	EndorsementCount int64     `gorm:"not null;default:0" json:"endorsement_count"`
	IsVerified       bool      `gorm:"not null;default:false" json:"is_verified"`
	IssuedAt         time.Time `json:"issued_at"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName pins the badge table name.
func (SkillBadge) TableName() string { return "skill_badges" }
