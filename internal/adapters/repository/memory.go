package repository

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/okian/credence/internal/domain/model"
	"github.com/okian/credence/pkg/metrics"
)

// userRecord serializes score changes for one user. score mirrors
// user.ReputationScore for lock-free reads.
type userRecord struct {
	mu      sync.Mutex
	user    model.User
	score   atomic.Int64
	events  []model.ReputationEvent
	sources map[string]struct{}
}

// MemoryStore implements Store in process memory. Score changes for different
// users proceed in parallel; changes for one user are serialized.
type MemoryStore struct {
	mu           sync.RWMutex
	users        map[string]*userRecord
	wallets      map[string]string
	badges       map[string]model.SkillBadge
	endorsements map[string]model.Endorsement
	pairs        map[string]string
	jobs         map[string]model.JobListing
	peerRequests map[string]model.PeerVerificationRequest
	peerVotes    map[string]model.PeerVerificationResponse

	now func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[string]*userRecord),
		wallets:      make(map[string]string),
		badges:       make(map[string]model.SkillBadge),
		endorsements: make(map[string]model.Endorsement),
		pairs:        make(map[string]string),
		jobs:         make(map[string]model.JobListing),
		peerRequests: make(map[string]model.PeerVerificationRequest),
		peerVotes:    make(map[string]model.PeerVerificationResponse),
		now:          time.Now,
	}
}

// Name implements Store.
func (s *MemoryStore) Name() string { return "memory" }

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

func observe(store, op string, start time.Time) {
	metrics.RecordRepositoryQueryLatency(store, op, float64(time.Since(start).Microseconds())/1000)
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func pairKey(a, b string) string { return a + "\x00" + b }

func (s *MemoryStore) record(id string) (*userRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.users[id]
	return rec, ok
}

// CreateUser implements UserStore.
func (s *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wallet := strings.ToLower(u.WalletAddress)
	if _, taken := s.wallets[wallet]; taken {
		return ErrWalletTaken
	}
	if u.ID == "" {
		u.ID = newID()
	}
	if _, exists := s.users[u.ID]; exists {
		return ErrWalletTaken
	}
	now := s.now()
	u.CreatedAt, u.UpdatedAt = now, now

	rec := &userRecord{user: *u, sources: make(map[string]struct{})}
	rec.score.Store(u.ReputationScore)
	s.users[u.ID] = rec
	s.wallets[wallet] = u.ID
	return nil
}

// GetUser implements UserStore.
func (s *MemoryStore) GetUser(_ context.Context, id string) (model.User, error) {
	rec, ok := s.record(id)
	if !ok {
		return model.User{}, ErrUserNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.user, nil
}

// Score returns the cached score without taking the user's lock. The value
// may trail an in-flight change.
func (s *MemoryStore) Score(id string) (int64, bool) {
	rec, ok := s.record(id)
	if !ok {
		return 0, false
	}
	return rec.score.Load(), true
}

// GetUserByWallet implements UserStore.
func (s *MemoryStore) GetUserByWallet(ctx context.Context, wallet string) (model.User, error) {
	s.mu.RLock()
	id, ok := s.wallets[strings.ToLower(wallet)]
	s.mu.RUnlock()
	if !ok {
		return model.User{}, ErrUserNotFound
	}
	return s.GetUser(ctx, id)
}

// SetUserActive implements UserStore.
func (s *MemoryStore) SetUserActive(_ context.Context, id string, active bool) error {
	rec, ok := s.record(id)
	if !ok {
		return ErrUserNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.user.IsActive = active
	rec.user.UpdatedAt = s.now()
	return nil
}

// ListUsers implements UserStore.
func (s *MemoryStore) ListUsers(_ context.Context) ([]model.User, error) {
	s.mu.RLock()
	recs := make([]*userRecord, 0, len(s.users))
	for _, rec := range s.users {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	out := make([]model.User, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		out = append(out, rec.user)
		rec.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CountUsers implements UserStore.
func (s *MemoryStore) CountUsers(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

// ApplyScoreChange implements LedgerStore.
func (s *MemoryStore) ApplyScoreChange(_ context.Context, c model.ScoreChange) (model.ReputationEvent, error) {
	defer observe("memory", "apply_score_change", time.Now())

	rec, ok := s.record(c.UserID)
	if !ok {
		return model.ReputationEvent{}, ErrUserNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if _, dup := rec.sources[c.SourceRef]; dup {
		return model.ReputationEvent{}, ErrSourceApplied
	}

	current := rec.user.ReputationScore
	next := max(current+c.Delta, c.Floor)
	now := s.now()
	ev := model.ReputationEvent{
		ID:             newID(),
		UserID:         c.UserID,
		RequestedDelta: c.Delta,
		AppliedDelta:   next - current,
		ScoreAfter:     next,
		Reason:         c.Reason,
		SourceRef:      c.SourceRef,
		CreatedAt:      now,
	}

	rec.events = append(rec.events, ev)
	rec.sources[c.SourceRef] = struct{}{}
	rec.user.ReputationScore = next
	rec.user.Version++
	rec.user.UpdatedAt = now
	rec.score.Store(next)
	return ev, nil
}

// Events implements LedgerStore.
func (s *MemoryStore) Events(_ context.Context, userID string, limit int) ([]model.ReputationEvent, error) {
	rec, ok := s.record(userID)
	if !ok {
		return nil, ErrUserNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	n := len(rec.events)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.ReputationEvent, 0, n)
	for i := len(rec.events) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, rec.events[i])
	}
	return out, nil
}

// creditFreelancer bumps completed job count and earnings. Caller holds s.mu.
func (s *MemoryStore) creditFreelancer(j model.JobListing) error {
	rec, ok := s.users[j.FreelancerID]
	if !ok {
		return ErrUserNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.user.JobsCompleted++
	rec.user.TotalEarnings = rec.user.TotalEarnings.Add(creditAmount(j))
	rec.user.UpdatedAt = s.now()
	return nil
}

// CreateBadge implements BadgeStore.
func (s *MemoryStore) CreateBadge(_ context.Context, b *model.SkillBadge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[b.UserID]; !ok {
		return ErrUserNotFound
	}
	if b.ID == "" {
		b.ID = newID()
	}
	now := s.now()
	b.CreatedAt, b.UpdatedAt = now, now
	if b.IssuedAt.IsZero() {
		b.IssuedAt = now
	}
	s.badges[b.ID] = *b
	return nil
}

// GetBadge implements BadgeStore.
func (s *MemoryStore) GetBadge(_ context.Context, id string) (model.SkillBadge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.badges[id]
	if !ok {
		return model.SkillBadge{}, ErrBadgeNotFound
	}
	return b, nil
}

// ListBadges implements BadgeStore.
func (s *MemoryStore) ListBadges(_ context.Context, userID string) ([]model.SkillBadge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.SkillBadge
	for _, b := range s.badges {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// SetBadgeIssuance implements BadgeStore.
func (s *MemoryStore) SetBadgeIssuance(_ context.Context, id, txHash, tokenID string) (model.SkillBadge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.badges[id]
	if !ok {
		return model.SkillBadge{}, ErrBadgeNotFound
	}
	b.TransactionHash = &txHash
	if tokenID != "" {
		b.TokenID = &tokenID
	}
	b.UpdatedAt = s.now()
	s.badges[id] = b
	return b, nil
}

// SetBadgeVerified implements BadgeStore.
func (s *MemoryStore) SetBadgeVerified(_ context.Context, id string, verified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.badges[id]
	if !ok {
		return ErrBadgeNotFound
	}
	b.IsVerified = verified
	b.UpdatedAt = s.now()
	s.badges[id] = b
	return nil
}

// CreateEndorsement implements EndorsementStore.
func (s *MemoryStore) CreateEndorsement(_ context.Context, e *model.Endorsement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.badges[e.SkillBadgeID]
	if !ok {
		return ErrBadgeNotFound
	}
	key := pairKey(e.EndorserID, e.SkillBadgeID)
	if _, dup := s.pairs[key]; dup {
		return ErrAlreadyEndorsed
	}
	if e.ID == "" {
		e.ID = newID()
	}
	now := s.now()
	e.CreatedAt, e.UpdatedAt = now, now

	s.endorsements[e.ID] = *e
	s.pairs[key] = e.ID
	b.EndorsementCount++
	b.UpdatedAt = now
	s.badges[b.ID] = b
	return nil
}

// GetEndorsement implements EndorsementStore.
func (s *MemoryStore) GetEndorsement(_ context.Context, id string) (model.Endorsement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.endorsements[id]
	if !ok {
		return model.Endorsement{}, ErrEndorsementNotFound
	}
	return e, nil
}

// SetEndorsementLedger implements EndorsementStore.
func (s *MemoryStore) SetEndorsementLedger(_ context.Context, id string, status model.LedgerStatus, ledgerErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.endorsements[id]
	if !ok {
		return ErrEndorsementNotFound
	}
	e.LedgerStatus = status
	e.LedgerError = ledgerErr
	e.UpdatedAt = s.now()
	s.endorsements[id] = e
	return nil
}

// ListEndorsementsFor implements EndorsementStore.
func (s *MemoryStore) ListEndorsementsFor(_ context.Context, endorsedID string) ([]model.Endorsement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Endorsement
	for _, e := range s.endorsements {
		if e.EndorsedID == endorsedID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// ListPendingEndorsements implements EndorsementStore.
func (s *MemoryStore) ListPendingEndorsements(_ context.Context, limit int) ([]model.Endorsement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Endorsement
	for _, e := range s.endorsements {
		if e.LedgerStatus == model.LedgerPending {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CreateJob implements JobStore.
func (s *MemoryStore) CreateJob(_ context.Context, j *model.JobListing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[j.EmployerID]; !ok {
		return ErrUserNotFound
	}
	if j.ID == "" {
		j.ID = newID()
	}
	now := s.now()
	j.CreatedAt, j.UpdatedAt = now, now
	s.jobs[j.ID] = *j
	return nil
}

// GetJob implements JobStore.
func (s *MemoryStore) GetJob(_ context.Context, id string) (model.JobListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return model.JobListing{}, ErrJobNotFound
	}
	return j, nil
}

// ListJobs implements JobStore.
func (s *MemoryStore) ListJobs(_ context.Context, f model.JobFilter) ([]model.JobListing, error) {
	s.mu.RLock()
	out := make([]model.JobListing, 0, len(s.jobs))
	for _, j := range s.jobs {
		if matchJob(j, f) {
			out = append(out, j)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matchJob(j model.JobListing, f model.JobFilter) bool {
	switch {
	case f.Status != "" && j.Status != f.Status:
		return false
	case f.EmployerID != "" && j.EmployerID != f.EmployerID:
		return false
	case f.MaxMinReputation != nil && j.MinReputation > *f.MaxMinReputation:
		return false
	case f.MinReputation != nil && j.MinReputation < *f.MinReputation:
		return false
	}
	return true
}

// TransitionJob implements JobStore.
func (s *MemoryStore) TransitionJob(_ context.Context, id string, from, to model.JobStatus, freelancerID string) (model.JobListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return model.JobListing{}, ErrJobNotFound
	}
	if j.Status != from {
		return j, ErrJobConflict
	}
	if freelancerID != "" {
		if _, ok := s.users[freelancerID]; !ok {
			return j, ErrUserNotFound
		}
		j.FreelancerID = freelancerID
	}
	j.Status = to
	j.UpdatedAt = s.now()
	s.jobs[id] = j
	return j, nil
}

// SetJobRuling implements JobStore.
func (s *MemoryStore) SetJobRuling(_ context.Context, id string, ruling model.Ruling) (model.JobListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return model.JobListing{}, ErrJobNotFound
	}
	if j.Status != model.JobDisputed || j.Ruling != model.RulingNone {
		return j, ErrJobConflict
	}
	j.Ruling = ruling
	j.UpdatedAt = s.now()
	s.jobs[id] = j
	return j, nil
}

// SettleJob implements JobStore.
func (s *MemoryStore) SettleJob(_ context.Context, id string, credit bool) (model.JobListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return model.JobListing{}, ErrJobNotFound
	}
	if j.ReputationApplied {
		return j, ErrAlreadySettled
	}
	if credit {
		if err := s.creditFreelancer(j); err != nil {
			return j, err
		}
	}
	j.ReputationApplied = true
	j.UpdatedAt = s.now()
	s.jobs[id] = j
	return j, nil
}

// CreatePeerRequest implements PeerStore.
func (s *MemoryStore) CreatePeerRequest(_ context.Context, r *model.PeerVerificationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[r.RequesterID]; !ok {
		return ErrUserNotFound
	}
	if r.ID == "" {
		r.ID = newID()
	}
	if _, exists := s.peerRequests[r.ID]; exists {
		return ErrDuplicateRequest
	}
	now := s.now()
	r.CreatedAt, r.UpdatedAt = now, now
	r.EvidenceRefs = slices.Clone(r.EvidenceRefs)
	s.peerRequests[r.ID] = *r
	return nil
}

// GetPeerRequest implements PeerStore.
func (s *MemoryStore) GetPeerRequest(_ context.Context, id string) (model.PeerVerificationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.peerRequests[id]
	if !ok {
		return model.PeerVerificationRequest{}, ErrPeerRequestNotFound
	}
	return r, nil
}

// ListPeerRequests implements PeerStore.
func (s *MemoryStore) ListPeerRequests(_ context.Context, requesterID string) ([]model.PeerVerificationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.PeerVerificationRequest
	for _, r := range s.peerRequests {
		if r.RequesterID == requesterID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// RecordPeerVote implements PeerStore.
func (s *MemoryStore) RecordPeerVote(_ context.Context, resp *model.PeerVerificationResponse, decide PeerDecision) (model.PeerVerificationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.peerRequests[resp.RequestID]
	if !ok {
		return model.PeerVerificationRequest{}, ErrPeerRequestNotFound
	}
	key := pairKey(resp.RequestID, resp.PeerID)
	_, voted := s.peerVotes[key]

	updated, err := decide(req, voted)
	if err != nil {
		return req, err
	}
	if resp.ID == "" {
		resp.ID = newID()
	}
	now := s.now()
	resp.CreatedAt = now
	updated.UpdatedAt = now
	s.peerVotes[key] = *resp
	s.peerRequests[req.ID] = updated
	return updated, nil
}

// SetPeerRequestBadge implements PeerStore.
func (s *MemoryStore) SetPeerRequestBadge(_ context.Context, id, badgeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.peerRequests[id]
	if !ok {
		return ErrPeerRequestNotFound
	}
	r.BadgeID = badgeID
	r.UpdatedAt = s.now()
	s.peerRequests[id] = r
	return nil
}
