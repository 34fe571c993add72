package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/credence/internal/domain/model"
	"github.com/okian/credence/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// GormStore implements Store on a relational database through gorm. The
// cached score carries a version column; every score change is a
// compare-and-set on it inside the same transaction as the event insert.
type GormStore struct {
	db           *gorm.DB
	name         string
	rowLocks     bool
	maxOpenConns int
	autoMigrate  bool
	logger       logger.Logger
}

// models lists every table managed by the store.
func models() []any {
	return []any{
		&model.User{},
		&model.ReputationEvent{},
		&model.SkillBadge{},
		&model.Endorsement{},
		&model.JobListing{},
		&model.PeerVerificationRequest{},
		&model.PeerVerificationResponse{},
	}
}

// NewGormStore opens a store on dialector and migrates the schema.
func NewGormStore(dialector gorm.Dialector, opts ...Option) (*GormStore, error) {
	s := &GormStore{maxOpenConns: 10, autoMigrate: true}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("repository")
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialector.Name(), err)
	}
	s.db = db
	s.name = db.Dialector.Name()
	s.rowLocks = s.name == "postgres"

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql DB: %w", err)
	}
	if s.name == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(s.maxOpenConns)
	}

	if s.autoMigrate {
		if err := db.AutoMigrate(models()...); err != nil {
			return nil, fmt.Errorf("auto migrate models: %w", err)
		}
	}
	s.logger.Info(context.Background(), "store opened", logger.String("driver", s.name))
	return s, nil
}

// Name implements Store.
func (s *GormStore) Name() string { return s.name }

// Close implements Store.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

func (s *GormStore) locked(tx *gorm.DB) *gorm.DB {
	if s.rowLocks {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// CreateUser implements UserStore.
func (s *GormStore) CreateUser(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		u.ID = newID()
	}
	err := s.db.WithContext(ctx).Create(u).Error
	return translate("gorm.create_user", err, ErrWalletTaken, nil)
}

// GetUser implements UserStore.
func (s *GormStore) GetUser(ctx context.Context, id string) (model.User, error) {
	defer observe(s.name, "get_user", time.Now())
	var u model.User
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&u).Error
	return u, translate("gorm.get_user", err, nil, ErrUserNotFound)
}

// GetUserByWallet implements UserStore.
func (s *GormStore) GetUserByWallet(ctx context.Context, wallet string) (model.User, error) {
	var u model.User
	err := s.db.WithContext(ctx).Where("wallet_address = ?", wallet).Take(&u).Error
	return u, translate("gorm.get_user_by_wallet", err, nil, ErrUserNotFound)
}

// SetUserActive implements UserStore.
func (s *GormStore) SetUserActive(ctx context.Context, id string, active bool) error {
	res := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).
		Updates(map[string]any{"is_active": active, "updated_at": time.Now()})
	if res.Error != nil {
		return translate("gorm.set_user_active", res.Error, nil, nil)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ListUsers implements UserStore.
func (s *GormStore) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	err := s.db.WithContext(ctx).Order("id").Find(&users).Error
	return users, translate("gorm.list_users", err, nil, nil)
}

// CountUsers implements UserStore.
func (s *GormStore) CountUsers(ctx context.Context) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.User{}).Count(&n).Error
	return int(n), translate("gorm.count_users", err, nil, nil)
}

// ApplyScoreChange implements LedgerStore.
func (s *GormStore) ApplyScoreChange(ctx context.Context, c model.ScoreChange) (model.ReputationEvent, error) {
	const op = "gorm.apply_score_change"
	defer observe(s.name, "apply_score_change", time.Now())

	var ev model.ReputationEvent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u model.User
		if err := s.locked(tx).Where("id = ?", c.UserID).Take(&u).Error; err != nil {
			return translate(op, err, nil, ErrUserNotFound)
		}

		next := max(u.ReputationScore+c.Delta, c.Floor)
		now := time.Now()
		ev = model.ReputationEvent{
			ID:             newID(),
			UserID:         c.UserID,
			RequestedDelta: c.Delta,
			AppliedDelta:   next - u.ReputationScore,
			ScoreAfter:     next,
			Reason:         c.Reason,
			SourceRef:      c.SourceRef,
			CreatedAt:      now,
		}
		if err := tx.Create(&ev).Error; err != nil {
			return translate(op, err, ErrSourceApplied, nil)
		}

		res := tx.Model(&model.User{}).
			Where("id = ? AND version = ?", u.ID, u.Version).
			Updates(map[string]any{
				"reputation_score": next,
				"version":          gorm.Expr("version + ?", 1),
				"updated_at":       now,
			})
		if res.Error != nil {
			return translate(op, res.Error, nil, nil)
		}
		if res.RowsAffected == 0 {
			return ErrVersionConflict
		}
		return nil
	})
	if err != nil {
		return model.ReputationEvent{}, translate(op, err, nil, nil)
	}
	return ev, nil
}

// Events implements LedgerStore.
func (s *GormStore) Events(ctx context.Context, userID string, limit int) ([]model.ReputationEvent, error) {
	const op = "gorm.events"
	defer observe(s.name, "events", time.Now())

	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []model.ReputationEvent
	err := q.Find(&out).Error
	return out, translate(op, err, nil, nil)
}

// CreateBadge implements BadgeStore.
func (s *GormStore) CreateBadge(ctx context.Context, b *model.SkillBadge) error {
	if _, err := s.GetUser(ctx, b.UserID); err != nil {
		return err
	}
	if b.ID == "" {
		b.ID = newID()
	}
	if b.IssuedAt.IsZero() {
		b.IssuedAt = time.Now()
	}
	return translate("gorm.create_badge", s.db.WithContext(ctx).Create(b).Error, nil, nil)
}

// GetBadge implements BadgeStore.
func (s *GormStore) GetBadge(ctx context.Context, id string) (model.SkillBadge, error) {
	var b model.SkillBadge
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&b).Error
	return b, translate("gorm.get_badge", err, nil, ErrBadgeNotFound)
}

// ListBadges implements BadgeStore.
func (s *GormStore) ListBadges(ctx context.Context, userID string) ([]model.SkillBadge, error) {
	var out []model.SkillBadge
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&out).Error
	return out, translate("gorm.list_badges", err, nil, nil)
}

// SetBadgeIssuance implements BadgeStore.
func (s *GormStore) SetBadgeIssuance(ctx context.Context, id, txHash, tokenID string) (model.SkillBadge, error) {
	updates := map[string]any{"transaction_hash": txHash, "updated_at": time.Now()}
	if tokenID != "" {
		updates["token_id"] = tokenID
	}
	res := s.db.WithContext(ctx).Model(&model.SkillBadge{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return model.SkillBadge{}, translate("gorm.set_badge_issuance", res.Error, nil, nil)
	}
	if res.RowsAffected == 0 {
		return model.SkillBadge{}, ErrBadgeNotFound
	}
	return s.GetBadge(ctx, id)
}

// SetBadgeVerified implements BadgeStore.
func (s *GormStore) SetBadgeVerified(ctx context.Context, id string, verified bool) error {
	res := s.db.WithContext(ctx).Model(&model.SkillBadge{}).Where("id = ?", id).
		Updates(map[string]any{"is_verified": verified, "updated_at": time.Now()})
	if res.Error != nil {
		return translate("gorm.set_badge_verified", res.Error, nil, nil)
	}
	if res.RowsAffected == 0 {
		return ErrBadgeNotFound
	}
	return nil
}

// CreateEndorsement implements EndorsementStore.
func (s *GormStore) CreateEndorsement(ctx context.Context, e *model.Endorsement) error {
	const op = "gorm.create_endorsement"
	if e.ID == "" {
		e.ID = newID()
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b model.SkillBadge
		if err := tx.Where("id = ?", e.SkillBadgeID).Take(&b).Error; err != nil {
			return translate(op, err, nil, ErrBadgeNotFound)
		}
		if err := tx.Create(e).Error; err != nil {
			return translate(op, err, ErrAlreadyEndorsed, nil)
		}
		return tx.Model(&model.SkillBadge{}).Where("id = ?", b.ID).Updates(map[string]any{
			"endorsement_count": gorm.Expr("endorsement_count + ?", 1),
			"updated_at":        time.Now(),
		}).Error
	})
	return translate(op, err, ErrAlreadyEndorsed, nil)
}

// GetEndorsement implements EndorsementStore.
func (s *GormStore) GetEndorsement(ctx context.Context, id string) (model.Endorsement, error) {
	var e model.Endorsement
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&e).Error
	return e, translate("gorm.get_endorsement", err, nil, ErrEndorsementNotFound)
}

// SetEndorsementLedger implements EndorsementStore.
func (s *GormStore) SetEndorsementLedger(ctx context.Context, id string, status model.LedgerStatus, ledgerErr string) error {
	res := s.db.WithContext(ctx).Model(&model.Endorsement{}).Where("id = ?", id).Updates(map[string]any{
		"ledger_status": status,
		"ledger_error":  ledgerErr,
		"updated_at":    time.Now(),
	})
	if res.Error != nil {
		return translate("gorm.set_endorsement_ledger", res.Error, nil, nil)
	}
	if res.RowsAffected == 0 {
		return ErrEndorsementNotFound
	}
	return nil
}

// ListEndorsementsFor implements EndorsementStore.
func (s *GormStore) ListEndorsementsFor(ctx context.Context, endorsedID string) ([]model.Endorsement, error) {
	var out []model.Endorsement
	err := s.db.WithContext(ctx).Where("endorsed_id = ?", endorsedID).Order("created_at DESC, id DESC").Find(&out).Error
	return out, translate("gorm.list_endorsements", err, nil, nil)
}

// ListPendingEndorsements implements EndorsementStore.
func (s *GormStore) ListPendingEndorsements(ctx context.Context, limit int) ([]model.Endorsement, error) {
	q := s.db.WithContext(ctx).Where("ledger_status = ?", model.LedgerPending).Order("created_at, id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []model.Endorsement
	err := q.Find(&out).Error
	return out, translate("gorm.list_pending_endorsements", err, nil, nil)
}

// CreateJob implements JobStore.
func (s *GormStore) CreateJob(ctx context.Context, j *model.JobListing) error {
	if _, err := s.GetUser(ctx, j.EmployerID); err != nil {
		return err
	}
	if j.ID == "" {
		j.ID = newID()
	}
	return translate("gorm.create_job", s.db.WithContext(ctx).Create(j).Error, nil, nil)
}

// GetJob implements JobStore.
func (s *GormStore) GetJob(ctx context.Context, id string) (model.JobListing, error) {
	var j model.JobListing
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&j).Error
	return j, translate("gorm.get_job", err, nil, ErrJobNotFound)
}

// ListJobs implements JobStore.
func (s *GormStore) ListJobs(ctx context.Context, f model.JobFilter) ([]model.JobListing, error) {
	defer observe(s.name, "list_jobs", time.Now())

	q := s.db.WithContext(ctx).Model(&model.JobListing{}).Order("created_at DESC, id DESC")
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.EmployerID != "" {
		q = q.Where("employer_id = ?", f.EmployerID)
	}
	if f.MaxMinReputation != nil {
		q = q.Where("min_reputation <= ?", *f.MaxMinReputation)
	}
	if f.MinReputation != nil {
		q = q.Where("min_reputation >= ?", *f.MinReputation)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var out []model.JobListing
	err := q.Find(&out).Error
	return out, translate("gorm.list_jobs", err, nil, nil)
}

// conditional runs a guarded update and distinguishes a missing job from a
// failed guard.
func (s *GormStore) conditional(ctx context.Context, op, id string, guard *gorm.DB, updates map[string]any) (model.JobListing, error) {
	updates["updated_at"] = time.Now()
	res := guard.Updates(updates)
	if res.Error != nil {
		return model.JobListing{}, translate(op, res.Error, nil, nil)
	}
	j, err := s.GetJob(ctx, id)
	if err != nil {
		return j, err
	}
	if res.RowsAffected == 0 {
		return j, ErrJobConflict
	}
	return j, nil
}

// TransitionJob implements JobStore.
func (s *GormStore) TransitionJob(ctx context.Context, id string, from, to model.JobStatus, freelancerID string) (model.JobListing, error) {
	updates := map[string]any{"status": to}
	if freelancerID != "" {
		if _, err := s.GetUser(ctx, freelancerID); err != nil {
			return model.JobListing{}, err
		}
		updates["freelancer_id"] = freelancerID
	}
	guard := s.db.WithContext(ctx).Model(&model.JobListing{}).Where("id = ? AND status = ?", id, from)
	return s.conditional(ctx, "gorm.transition_job", id, guard, updates)
}

// SetJobRuling implements JobStore.
func (s *GormStore) SetJobRuling(ctx context.Context, id string, ruling model.Ruling) (model.JobListing, error) {
	guard := s.db.WithContext(ctx).Model(&model.JobListing{}).
		Where("id = ? AND status = ? AND (ruling = '' OR ruling IS NULL)", id, model.JobDisputed)
	return s.conditional(ctx, "gorm.set_job_ruling", id, guard, map[string]any{"ruling": ruling})
}

// SettleJob implements JobStore.
func (s *GormStore) SettleJob(ctx context.Context, id string, credit bool) (model.JobListing, error) {
	const op = "gorm.settle_job"
	var j model.JobListing
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.locked(tx).Where("id = ?", id).Take(&j).Error; err != nil {
			return translate(op, err, nil, ErrJobNotFound)
		}
		res := tx.Model(&model.JobListing{}).Where("id = ? AND reputation_applied = ?", id, false).
			Updates(map[string]any{"reputation_applied": true, "updated_at": time.Now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadySettled
		}
		j.ReputationApplied = true
		if !credit {
			return nil
		}
		res = tx.Model(&model.User{}).Where("id = ?", j.FreelancerID).Updates(map[string]any{
			"jobs_completed": gorm.Expr("jobs_completed + ?", 1),
			"total_earnings": gorm.Expr("total_earnings + ?", creditAmount(j)),
			"updated_at":     time.Now(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrUserNotFound
		}
		return nil
	})
	return j, translate(op, err, nil, nil)
}

// CreatePeerRequest implements PeerStore.
func (s *GormStore) CreatePeerRequest(ctx context.Context, r *model.PeerVerificationRequest) error {
	if _, err := s.GetUser(ctx, r.RequesterID); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = newID()
	}
	return translate("gorm.create_peer_request", s.db.WithContext(ctx).Create(r).Error, ErrDuplicateRequest, nil)
}

// GetPeerRequest implements PeerStore.
func (s *GormStore) GetPeerRequest(ctx context.Context, id string) (model.PeerVerificationRequest, error) {
	var r model.PeerVerificationRequest
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&r).Error
	return r, translate("gorm.get_peer_request", err, nil, ErrPeerRequestNotFound)
}

// ListPeerRequests implements PeerStore.
func (s *GormStore) ListPeerRequests(ctx context.Context, requesterID string) ([]model.PeerVerificationRequest, error) {
	var out []model.PeerVerificationRequest
	err := s.db.WithContext(ctx).Where("requester_id = ?", requesterID).Order("created_at DESC, id").Find(&out).Error
	return out, translate("gorm.list_peer_requests", err, nil, nil)
}

// RecordPeerVote implements PeerStore.
func (s *GormStore) RecordPeerVote(ctx context.Context, resp *model.PeerVerificationResponse, decide PeerDecision) (model.PeerVerificationRequest, error) {
	const op = "gorm.record_peer_vote"
	var updated model.PeerVerificationRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req model.PeerVerificationRequest
		if err := s.locked(tx).Where("id = ?", resp.RequestID).Take(&req).Error; err != nil {
			return translate(op, err, nil, ErrPeerRequestNotFound)
		}
		var votes int64
		if err := tx.Model(&model.PeerVerificationResponse{}).
			Where("request_id = ? AND peer_id = ?", resp.RequestID, resp.PeerID).
			Count(&votes).Error; err != nil {
			return err
		}

		var err error
		updated, err = decide(req, votes > 0)
		if err != nil {
			return err
		}
		if resp.ID == "" {
			resp.ID = newID()
		}
		if err := tx.Create(resp).Error; err != nil {
			return translate(op, err, nil, nil)
		}
		return tx.Model(&model.PeerVerificationRequest{}).Where("id = ?", req.ID).Updates(map[string]any{
			"approvals":  updated.Approvals,
			"rejections": updated.Rejections,
			"status":     updated.Status,
			"updated_at": time.Now(),
		}).Error
	})
	if err != nil {
		return model.PeerVerificationRequest{}, translate(op, err, nil, nil)
	}
	return updated, nil
}

// SetPeerRequestBadge implements PeerStore.
func (s *GormStore) SetPeerRequestBadge(ctx context.Context, id, badgeID string) error {
	res := s.db.WithContext(ctx).Model(&model.PeerVerificationRequest{}).Where("id = ?", id).
		Updates(map[string]any{"badge_id": badgeID, "updated_at": time.Now()})
	if res.Error != nil {
		return translate("gorm.set_peer_request_badge", res.Error, nil, nil)
	}
	if res.RowsAffected == 0 {
		return ErrPeerRequestNotFound
	}
	return nil
}
