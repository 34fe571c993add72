package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/credence/internal/domain/errkind"
	"gorm.io/gorm"
)

// Sentinel kinds for store errors. Each wraps an errkind sentinel so callers
// can branch on either.
var (
	ErrUserNotFound        = fmt.Errorf("user %w", errkind.ErrNotFound)
	ErrBadgeNotFound       = fmt.Errorf("skill badge %w", errkind.ErrNotFound)
	ErrEndorsementNotFound = fmt.Errorf("endorsement %w", errkind.ErrNotFound)
	ErrJobNotFound         = fmt.Errorf("job %w", errkind.ErrNotFound)
	ErrPeerRequestNotFound = fmt.Errorf("peer request %w", errkind.ErrNotFound)
	ErrRankNotFound        = fmt.Errorf("rank entry %w", errkind.ErrNotFound)

	ErrWalletTaken      = fmt.Errorf("wallet address already registered: %w", errkind.ErrDuplicateSource)
	ErrSourceApplied    = fmt.Errorf("source already applied: %w", errkind.ErrDuplicateSource)
	ErrAlreadyEndorsed  = fmt.Errorf("badge already endorsed by endorser: %w", errkind.ErrDuplicateSource)
	ErrJobConflict      = fmt.Errorf("job state changed: %w", errkind.ErrDuplicateSource)
	ErrAlreadySettled   = fmt.Errorf("job reputation already applied: %w", errkind.ErrDuplicateSource)
	ErrVersionConflict  = fmt.Errorf("concurrent score update: %w", errkind.ErrTransient)
	ErrInvalidLimit     = fmt.Errorf("invalid leaderboard limit: %w", errkind.ErrValidation)
	ErrUnknownDriver    = fmt.Errorf("unknown storage driver: %w", errkind.ErrValidation)
	ErrDuplicateRequest = fmt.Errorf("peer request already exists: %w", errkind.ErrDuplicateSource)
)

// translate maps a gorm or driver error onto the errkind taxonomy. dup is the
// error to report for unique violations and missing for record-not-found.
func translate(op string, err, dup, missing error) error {
	switch {
	case err == nil:
		return nil
	case errkind.KindOf(err) != nil:
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		if missing == nil {
			missing = errkind.ErrNotFound
		}
		return fmt.Errorf("%s: %w", op, missing)
	case errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err):
		if dup == nil {
			dup = errkind.ErrDuplicateSource
		}
		return fmt.Errorf("%s: %w", op, dup)
	case isTransient(err):
		return errkind.Wrap(op, errkind.ErrTransient, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}

// isTransient recognises lock contention, serialization failures and timeouts.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{
		"database is locked",
		"database table is locked",
		"SQLITE_BUSY",
		"SQLSTATE 40001",
		"SQLSTATE 40P01",
		"deadlock detected",
		"could not serialize access",
		"connection reset by peer",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
