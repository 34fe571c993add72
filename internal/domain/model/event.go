package model

import "time"

// ReputationEvent is an immutable ledger entry. A user's score always equals the
// initial score plus the sum of AppliedDelta over that user's events.
type ReputationEvent struct {
	ID     string `gorm:"primaryKey;size:36" json:"id"`
	UserID string `gorm:"size:36;not null;uniqueIndex:idx_event_source,priority:1;index" json:"user_id"`
	// RequestedDelta is what the producer asked for; AppliedDelta is what the
	// floor clamp let through.
	RequestedDelta int64      `gorm:"not null" json:"requested_delta"`
	AppliedDelta   int64      `gorm:"not null" json:"applied_delta"`
	ScoreAfter     int64      `gorm:"not null" json:"score_after"`
	Reason         ReasonCode `gorm:"size:64;not null" json:"reason"`
	SourceRef      string     `gorm:"size:191;not null;uniqueIndex:idx_event_source,priority:2" json:"source_ref"`
	CreatedAt      time.Time  `json:"created_at"`
}

// TableName pins the event table name.
func (ReputationEvent) TableName() string { return "reputation_events" }

// ScoreChange asks a store to append one event and move the cached score.
// The store clamps the resulting score at Floor and records what it applied.
type ScoreChange struct {
	UserID    string
	Delta     int64
	Reason    ReasonCode
	SourceRef string
	Floor     int64
}
