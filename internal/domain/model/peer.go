package model

import (
	"time"

	"gorm.io/datatypes"
)

// PeerVerificationRequest is a panel of peers voting on one skill claim.
type PeerVerificationRequest struct {
	ID                string                      `gorm:"primaryKey;size:36" json:"id"`
	RequesterID       string                      `gorm:"size:36;not null;index" json:"requester_id"`
	SkillID           string                      `gorm:"size:64;not null" json:"skill_id"`
	Level             Level                       `gorm:"size:16;not null" json:"level"`
	EvidenceRefs      datatypes.JSONSlice[string] `json:"evidence_refs"`
	RequiredApprovals int                         `gorm:"not null" json:"required_approvals"`
	Approvals         int                         `gorm:"not null;default:0" json:"approvals"`
	Rejections        int                         `gorm:"not null;default:0" json:"rejections"`
	Status            PeerRequestStatus           `gorm:"size:16;not null" json:"status"`
	BadgeID           string                      `gorm:"size:36" json:"badge_id,omitempty"`
	CreatedAt         time.Time                   `json:"created_at"`
	UpdatedAt         time.Time                   `json:"updated_at"`
}

// TableName pins the peer request table name.
func (PeerVerificationRequest) TableName() string { return "peer_verification_requests" }

// PeerVerificationResponse is one peer's vote.
type PeerVerificationResponse struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	RequestID string    `gorm:"size:36;not null;uniqueIndex:idx_peer_vote,priority:1" json:"request_id"`
	PeerID    string    `gorm:"size:36;not null;uniqueIndex:idx_peer_vote,priority:2" json:"peer_id"`
	Approved  bool      `gorm:"not null" json:"approved"`
	Feedback  string    `gorm:"size:1024" json:"feedback,omitempty"`
	CreatedAt time.Time `json:"responded_at"`
}

// TableName pins the peer response table name.
func (PeerVerificationResponse) TableName() string { return "peer_verification_responses" }
