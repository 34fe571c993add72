// Package model contains domain models passed between layers.
package model

import "strings"

// Level is the proficiency level carried by a skill badge.
type Level string

// Skill levels.
const (
	LevelBeginner     Level = "Beginner"
	LevelIntermediate Level = "Intermediate"
	LevelAdvanced     Level = "Advanced"
	LevelExpert       Level = "Expert"
)

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced, LevelExpert:
		return true
	}
	return false
}

// ParseLevel accepts any casing of a level name.
func ParseLevel(s string) (Level, bool) {
	for _, l := range []Level{LevelBeginner, LevelIntermediate, LevelAdvanced, LevelExpert} {
		if strings.EqualFold(string(l), strings.TrimSpace(s)) {
			return l, true
		}
	}
	return "", false
}

// VerificationType is the method by which a skill claim was substantiated.
type VerificationType string

// Verification types.
const (
	VerificationTest    VerificationType = "test"
	VerificationPeer    VerificationType = "peer"
	VerificationProject VerificationType = "project"
)

// Valid reports whether t is a known verification type.
func (t VerificationType) Valid() bool {
	switch t {
	case VerificationTest, VerificationPeer, VerificationProject:
		return true
	}
	return false
}

// Outcome is the final result of a verification attempt.
type Outcome string

// Verification outcomes.
const (
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
)

// JobStatus is the lifecycle state of a job listing.
type JobStatus string

// Job lifecycle states.
const (
	JobOpen       JobStatus = "open"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobDisputed   JobStatus = "disputed"
	JobCancelled  JobStatus = "cancelled"
)

// Ruling is the adjudicated outcome of a dispute.
type Ruling string

// Dispute rulings.
const (
	RulingNone              Ruling = ""
	RulingFreelancerAtFault Ruling = "freelancer_at_fault"
	RulingEmployerAtFault   Ruling = "employer_at_fault"
	RulingNoFault           Ruling = "no_fault"
)

// Valid reports whether r is a final ruling.
func (r Ruling) Valid() bool {
	switch r {
	case RulingFreelancerAtFault, RulingEmployerAtFault, RulingNoFault:
		return true
	}
	return false
}

// ReasonCode classifies why a reputation delta was applied.
type ReasonCode string

// Reason codes.
const (
	ReasonTestVerification    ReasonCode = "verification.test"
	ReasonPeerVerification    ReasonCode = "verification.peer"
	ReasonProjectVerification ReasonCode = "verification.project"
	ReasonEndorsement         ReasonCode = "endorsement"
	ReasonJobCompleted        ReasonCode = "job.completed"
	ReasonDisputePenalty      ReasonCode = "dispute.penalty"
	ReasonConsistencyBonus    ReasonCode = "consistency.bonus"
)

// VerificationReason maps a verification type to its reason code.
func VerificationReason(t VerificationType) ReasonCode {
	switch t {
	case VerificationTest:
		return ReasonTestVerification
	case VerificationPeer:
		return ReasonPeerVerification
	case VerificationProject:
		return ReasonProjectVerification
	}
	return ""
}

// EventState tracks one reputation-affecting event through the aggregator.
type EventState string

// Aggregator states.
const (
	StateReceived  EventState = "received"
	StateValidated EventState = "validated"
	StateApplied   EventState = "applied"
	StateRejected  EventState = "rejected"
)

// LedgerStatus records whether an endorsement's delta reached the ledger.
type LedgerStatus string

// Endorsement ledger states.
const (
	LedgerApplied LedgerStatus = "applied"
	LedgerPending LedgerStatus = "pending"
	LedgerNoDelta LedgerStatus = "no_delta"
	LedgerFailed  LedgerStatus = "failed"
)

// PeerRequestStatus is the state of a peer verification panel.
type PeerRequestStatus string

// Peer verification request states.
const (
	PeerPending  PeerRequestStatus = "pending"
	PeerApproved PeerRequestStatus = "approved"
	PeerRejected PeerRequestStatus = "rejected"
)
