package loadtest

import (
	"context"
	"fmt"

	"github.com/okian/credence/pkg/logger"
)

// verifyResults checks every user's final score against the deltas the run
// saw applied, audit consistency and leaderboard ordering. Mismatches are
// recorded on stats; an error is returned when any were found.
func verifyResults(ctx context.Context, config *Config, users []User, applied []int64, snaps []Snapshot, leaderboard []Entry, stats *Stats) error {
	log := logger.Get()
	log.Info(ctx, "verifying results")

	mismatch := func(format string, args ...any) {
		stats.Mismatches = append(stats.Mismatches, fmt.Sprintf(format, args...))
	}

	wantApplied := config.BonusesPerUser
	for i, u := range users {
		s := snaps[i]
		if s.Err != nil {
			mismatch("user %s: %v", u.ID, s.Err)
			continue
		}
		want := u.ReputationScore + applied[i]
		if s.Rank.Score != want {
			mismatch("user %s: score %d, want %d", u.ID, s.Rank.Score, want)
		}
		if !s.Audit.Consistent {
			mismatch("user %s: audit inconsistent (score %d, applied %d)", u.ID, s.Audit.Score, s.Audit.SumApplied)
		} else {
			stats.AuditsConsistent++
		}
		if s.Audit.Events != wantApplied {
			mismatch("user %s: %d ledger events, want %d", u.ID, s.Audit.Events, wantApplied)
		}
	}

	if err := verifyLeaderboard(leaderboard); err != nil {
		mismatch("leaderboard: %v", err)
	}

	if n := len(stats.Mismatches); n > 0 {
		shown := stats.Mismatches
		if len(shown) > maxReportedMismatch {
			shown = shown[:maxReportedMismatch]
		}
		for _, m := range shown {
			log.Warn(ctx, "mismatch", logger.String("detail", m))
		}
		return fmt.Errorf("%d mismatches", n)
	}
	log.Info(ctx, "results verified", logger.Int("users", len(users)))
	return nil
}

// verifyLeaderboard checks ordering and competition ranking: tied scores
// share the rank of the first of them.
func verifyLeaderboard(leaderboard []Entry) error {
	for i, e := range leaderboard {
		want := i + 1
		if i > 0 {
			prev := leaderboard[i-1]
			if e.Score > prev.Score {
				return fmt.Errorf("entry %d scores above entry %d", i, i-1)
			}
			if e.Score == prev.Score {
				want = prev.Rank
			}
		}
		if e.Rank != want {
			return fmt.Errorf("entry %d has rank %d, want %d", i, e.Rank, want)
		}
	}
	return nil
}
